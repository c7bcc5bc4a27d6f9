package recognizer

import (
	"fmt"

	"golang.org/x/text/language"
)

// Recognition modes
const (
	ModeAccurate = "accurate"
	ModeFast     = "fast"
)

// tesseractOverrides maps ISO 639-2 codes onto tesseract model names where
// the two differ
var tesseractOverrides = map[string]string{
	"zho/Hans": "chi_sim",
	"zho/Hant": "chi_tra",
	"zho":      "chi_sim",
	"aze/Cyrl": "aze_cyrl",
	"srp/Latn": "srp_latn",
	"uzb/Cyrl": "uzb_cyrl",
}

// Options configures a recognition pass
type Options struct {
	// BCP-47 tags, e.g. "pt-BR"
	Languages []string

	// "accurate" reads the frame as a page, "fast" looks for sparse text
	Mode string

	// LanguageCorrection keeps the tesseract dictionaries enabled
	LanguageCorrection bool

	// Frames wider than this are downscaled before recognition; 0 disables
	MaxWidth int

	// Size of the tesseract client pool; 0 means one per CPU
	PoolSize int
}

// DefaultOptions returns options matching the live scanner
func DefaultOptions() Options {
	return Options{
		Languages:          []string{"pt-BR", "en-US", "es-ES"},
		Mode:               ModeAccurate,
		LanguageCorrection: true,
		MaxWidth:           1280,
	}
}

// FastOptions trades accuracy for latency
func FastOptions() Options {
	opts := DefaultOptions()
	opts.Mode = ModeFast
	opts.LanguageCorrection = false
	opts.MaxWidth = 640
	return opts
}

// WithLanguages returns options recognizing the given languages
func (o Options) WithLanguages(langs ...string) Options {
	o.Languages = append([]string(nil), langs...)
	return o
}

// WithMode returns options using the given recognition mode
func (o Options) WithMode(mode string) Options {
	o.Mode = mode
	return o
}

// WithLanguageCorrection toggles dictionary based correction
func (o Options) WithLanguageCorrection(enabled bool) Options {
	o.LanguageCorrection = enabled
	return o
}

// WithMaxWidth sets the downscale limit
func (o Options) WithMaxWidth(width int) Options {
	o.MaxWidth = width
	return o
}

// Validate checks the mode and languages
func (o Options) Validate() error {
	if o.Mode != ModeAccurate && o.Mode != ModeFast {
		return fmt.Errorf("unsupported recognition mode: %q", o.Mode)
	}
	if _, err := o.TesseractLanguages(); err != nil {
		return err
	}
	return nil
}

// TesseractLanguages converts the configured BCP-47 tags into tesseract
// model names, keeping order and dropping duplicates.
func (o Options) TesseractLanguages() ([]string, error) {
	if len(o.Languages) == 0 {
		return nil, fmt.Errorf("at least one recognition language is required")
	}

	seen := make(map[string]bool, len(o.Languages))
	out := make([]string, 0, len(o.Languages))
	for _, raw := range o.Languages {
		code, err := tesseractCode(raw)
		if err != nil {
			return nil, err
		}
		if seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	return out, nil
}

func tesseractCode(raw string) (string, error) {
	tag, err := language.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid language %q: %w", raw, err)
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", fmt.Errorf("unknown language %q", raw)
	}
	iso3 := base.ISO3()

	if script, sconf := tag.Script(); sconf == language.Exact {
		if code, ok := tesseractOverrides[iso3+"/"+script.String()]; ok {
			return code, nil
		}
	}
	if code, ok := tesseractOverrides[iso3]; ok {
		return code, nil
	}
	return iso3, nil
}

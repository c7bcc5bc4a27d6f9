package recognizer

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/anime-shed/live-text-go/internal/logger"
	"github.com/anime-shed/live-text-go/pkg/models"
	"github.com/otiai10/gosseract/v2"
	"github.com/sirupsen/logrus"
)

// tesseractRecognizer runs tesseract through a pool of gosseract clients.
// A gosseract client is not safe for concurrent use, so each call borrows one.
type tesseractRecognizer struct {
	opts      Options
	languages []string
	clients   chan *gosseract.Client
	bufPool   sync.Pool

	// configFile holds init-only variables; dictionaries load before SetVariable applies
	configFile string

	mu     sync.Mutex
	closed bool
}

// NewTesseractRecognizer creates a tesseract backed recognizer
func NewTesseractRecognizer(opts Options) (Recognizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	langs, err := opts.TesseractLanguages()
	if err != nil {
		return nil, err
	}
	size := opts.PoolSize
	if size <= 0 {
		size = runtime.NumCPU()
	}

	logger.WithFields(logrus.Fields{
		"languages":           langs,
		"mode":                opts.Mode,
		"language_correction": opts.LanguageCorrection,
		"pool_size":           size,
	}).Info("Tesseract recognizer configured")

	t := &tesseractRecognizer{
		opts:      opts,
		languages: langs,
		clients:   make(chan *gosseract.Client, size),
		bufPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
	if !opts.LanguageCorrection {
		path, err := writeInitConfig(dictionaryOffConfig)
		if err != nil {
			return nil, err
		}
		t.configFile = path
	}
	return t, nil
}

const dictionaryOffConfig = "load_system_dawg F\nload_freq_dawg F\n"

// writeInitConfig stores tesseract init variables in a temp config file
func writeInitConfig(content string) (string, error) {
	f, err := os.CreateTemp("", "live-text-tess-*.cfg")
	if err != nil {
		return "", fmt.Errorf("create tesseract config: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write tesseract config: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write tesseract config: %w", err)
	}
	return f.Name(), nil
}

// Recognize returns one candidate per text line found in img
func (t *tesseractRecognizer) Recognize(ctx context.Context, img image.Image) (models.FrameResult, error) {
	result := models.FrameResult{CapturedAt: time.Now()}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	img = downscale(img, t.opts.MaxWidth)

	buf := t.bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer t.bufPool.Put(buf)
	if err := png.Encode(buf, img); err != nil {
		return result, fmt.Errorf("encode frame: %w", err)
	}

	client, err := t.acquire()
	if err != nil {
		return result, err
	}
	defer t.release(client)

	if err := client.SetImageFromBytes(buf.Bytes()); err != nil {
		return result, fmt.Errorf("set image: %w", err)
	}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return result, fmt.Errorf("recognize text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	bounds := img.Bounds()
	result.Candidates = make([]models.RecognitionCandidate, 0, len(boxes))
	for _, box := range boxes {
		result.Candidates = append(result.Candidates, models.RecognitionCandidate{
			Text:       box.Word,
			Confidence: clampConfidence(box.Confidence / 100),
			Box:        normalizeBox(box.Box, bounds),
		})
	}
	return result, nil
}

// acquire returns an idle client or creates a configured one
func (t *tesseractRecognizer) acquire() (*gosseract.Client, error) {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("recognizer closed")
	}

	select {
	case c, ok := <-t.clients:
		if !ok {
			return nil, fmt.Errorf("recognizer closed")
		}
		return c, nil
	default:
	}

	c := gosseract.NewClient()
	if err := t.configure(c); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

// release returns c to the pool, closing it when the pool is full or closed
func (t *tesseractRecognizer) release(c *gosseract.Client) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		c.Close()
		return
	}
	select {
	case t.clients <- c:
	default:
		c.Close()
	}
}

func (t *tesseractRecognizer) configure(c *gosseract.Client) error {
	if err := c.SetLanguage(t.languages...); err != nil {
		return fmt.Errorf("set languages: %w", err)
	}

	psm := gosseract.PSM_AUTO
	if t.opts.Mode == ModeFast {
		psm = gosseract.PSM_SPARSE_TEXT
	}
	if err := c.SetPageSegMode(psm); err != nil {
		return fmt.Errorf("set page segmentation mode: %w", err)
	}

	if t.configFile != "" {
		if err := c.SetConfigFile(t.configFile); err != nil {
			return fmt.Errorf("set config file: %w", err)
		}
	}
	return nil
}

// Close releases every pooled client
func (t *tesseractRecognizer) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	close(t.clients)
	var firstErr error
	for c := range t.clients {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if t.configFile != "" {
		if err := os.Remove(t.configFile); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	}
	return c
}

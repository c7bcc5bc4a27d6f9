package models

import "time"

// RecognitionCandidate is the top-ranked text for one detected region of a frame
type RecognitionCandidate struct {
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"`
	Box        NormalizedRect `json:"box"`
}

// FrameResult holds every candidate the recognizer produced for one frame,
// in the order the recognizer returned them.
type FrameResult struct {
	Seq        uint64                 `json:"seq"`
	CapturedAt time.Time              `json:"captured_at"`
	Candidates []RecognitionCandidate `json:"candidates"`
}

// Selection is the candidate chosen as a frame's output. Text is already trimmed.
type Selection struct {
	Text       string         `json:"text"`
	Confidence float64        `json:"confidence"`
	Box        NormalizedRect `json:"box"`
}

// Overlay is the highlight currently drawn over the preview
type Overlay struct {
	FrameSeq uint64     `json:"frame_seq"`
	Rect     ScreenRect `json:"rect"`
}

// DisplayState is a point-in-time copy of what the preview shows
type DisplayState struct {
	Text      string    `json:"text"`
	Overlay   *Overlay  `json:"overlay,omitempty"`
	Viewport  Viewport  `json:"viewport"`
	LastSeq   uint64    `json:"last_seq"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Accuracy compares the selected text with a known reference
type Accuracy struct {
	ExpectedText string  `json:"expected_text"`
	CER          float64 `json:"cer"`
	WER          float64 `json:"wer"`
	EditDistance int     `json:"edit_distance"`
	WordErrors   int     `json:"word_errors"`
}

// RecognitionResponse is returned for a single still image
type RecognitionResponse struct {
	ImageURL          string                 `json:"image_url,omitempty"`
	Timestamp         string                 `json:"timestamp"`
	ProcessingTimeSec float64                `json:"processing_time_sec"`
	Candidates        []RecognitionCandidate `json:"candidates"`
	Selection         *Selection             `json:"selection,omitempty"`
	Overlay           *ScreenRect            `json:"overlay,omitempty"`
	Accuracy          *Accuracy              `json:"accuracy,omitempty"`
}

package models

// RecognizeURLRequest asks for recognition of an image fetched from a URL
type RecognizeURLRequest struct {
	URL            string `json:"url" binding:"required,url"`
	ExpectedText   string `json:"expected_text,omitempty"`
	ViewportWidth  int    `json:"viewport_width,omitempty"`
	ViewportHeight int    `json:"viewport_height,omitempty"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string `json:"error"`
	Message   string `json:"message,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

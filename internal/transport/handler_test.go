package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/anime-shed/live-text-go/internal/config"
	apperrors "github.com/anime-shed/live-text-go/internal/errors"
	"github.com/anime-shed/live-text-go/internal/pipeline"
	"github.com/anime-shed/live-text-go/pkg/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeService struct {
	resp        *models.RecognitionResponse
	err         error
	validateErr error

	gotExpected string
	gotViewport models.Viewport
	gotURL      string
}

func (f *fakeService) RecognizeImage(ctx context.Context, img image.Image, expectedText string, vp models.Viewport) (*models.RecognitionResponse, error) {
	f.gotExpected = expectedText
	f.gotViewport = vp
	return f.resp, f.err
}

func (f *fakeService) RecognizeURL(ctx context.Context, imageURL string, expectedText string, vp models.Viewport) (*models.RecognitionResponse, error) {
	f.gotURL = imageURL
	f.gotExpected = expectedText
	f.gotViewport = vp
	return f.resp, f.err
}

func (f *fakeService) ValidateImageURL(imageURL string) error { return f.validateErr }

type fakeDisplay struct {
	state models.DisplayState
	vp    models.Viewport
}

func (f *fakeDisplay) Snapshot(ctx context.Context) (models.DisplayState, error) {
	return f.state, nil
}

func (f *fakeDisplay) SetViewport(ctx context.Context, vp models.Viewport) error {
	f.vp = vp
	return nil
}

type fakeMetrics struct{}

func (fakeMetrics) GetMetrics() map[string]interface{} {
	return map[string]interface{}{"frames_selected": int64(3)}
}

type fakePool struct{}

func (fakePool) Stats() pipeline.PoolStats { return pipeline.PoolStats{TotalJobs: 5} }

func testConfig() *config.Config {
	return &config.Config{
		RequestTimeout:     5 * time.Second,
		MaxRequestBodySize: 1 << 20,
		ViewportWidth:      390,
		ViewportHeight:     844,
	}
}

func okResponse() *models.RecognitionResponse {
	return &models.RecognitionResponse{
		Candidates: []models.RecognitionCandidate{{Text: "EXIT", Confidence: 0.9}},
		Selection:  &models.Selection{Text: "EXIT", Confidence: 0.9},
	}
}

func pngUpload(t *testing.T, fields map[string]string, withImage bool, imageBytes []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if withImage {
		part, err := w.CreateFormFile("image", "frame.png")
		if err != nil {
			t.Fatal(err)
		}
		if imageBytes == nil {
			if err := png.Encode(part, image.NewGray(image.Rect(0, 0, 8, 8))); err != nil {
				t.Fatal(err)
			}
		} else {
			part.Write(imageBytes)
		}
	}
	for k, v := range fields {
		w.WriteField(k, v)
	}
	w.Close()
	return &body, w.FormDataContentType()
}

func TestHealthCheck(t *testing.T) {
	h := NewHandler(Dependencies{Service: &fakeService{}, Config: testConfig()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("Expected a generated request ID")
	}
}

func TestRequestID_Propagated(t *testing.T) {
	h := NewHandler(Dependencies{Service: &fakeService{}, Config: testConfig()})

	req := httptest.NewRequest(http.MethodGet, "/text", nil)
	req.Header.Set(requestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if got := rec.Header().Get(requestIDHeader); got != "abc-123" {
		t.Errorf("request ID = %q", got)
	}
	var errResp models.ErrorResponse
	json.Unmarshal(rec.Body.Bytes(), &errResp)
	if errResp.RequestID != "abc-123" {
		t.Errorf("error body request ID = %q", errResp.RequestID)
	}
}

func TestCurrentText(t *testing.T) {
	tests := []struct {
		name       string
		display    DisplayView
		wantStatus int
		wantText   string
	}{
		{
			name: "Live display",
			display: &fakeDisplay{state: models.DisplayState{
				Text:    "EXIT",
				Overlay: &models.Overlay{FrameSeq: 4, Rect: models.ScreenRect{X: 1, Y: 2, Width: 3, Height: 4}},
			}},
			wantStatus: http.StatusOK,
			wantText:   "EXIT",
		},
		{
			name:       "Scanning disabled",
			display:    nil,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(Dependencies{Service: &fakeService{}, Display: tt.display, Config: testConfig()})
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/text", nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantText != "" {
				var state models.DisplayState
				if err := json.Unmarshal(rec.Body.Bytes(), &state); err != nil {
					t.Fatal(err)
				}
				if state.Text != tt.wantText || state.Overlay == nil || state.Overlay.FrameSeq != 4 {
					t.Errorf("Unexpected state %+v", state)
				}
			}
		})
	}
}

func TestSetViewport(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"Valid", `{"width":1080,"height":1920}`, http.StatusOK},
		{"Zero width", `{"width":0,"height":1920}`, http.StatusBadRequest},
		{"Malformed", `{"width":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			disp := &fakeDisplay{}
			h := NewHandler(Dependencies{Service: &fakeService{}, Display: disp, Config: testConfig()})

			req := httptest.NewRequest(http.MethodPut, "/viewport", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK && (disp.vp.Width != 1080 || disp.vp.Height != 1920) {
				t.Errorf("viewport not applied: %+v", disp.vp)
			}
		})
	}
}

func TestRecognizeUpload(t *testing.T) {
	tests := []struct {
		name         string
		fields       map[string]string
		withImage    bool
		imageBytes   []byte
		svcErr       error
		wantStatus   int
		wantViewport models.Viewport
	}{
		{
			name:         "Default viewport",
			fields:       map[string]string{"expected_text": "EXIT"},
			withImage:    true,
			wantStatus:   http.StatusOK,
			wantViewport: models.Viewport{Width: 390, Height: 844},
		},
		{
			name:         "Custom viewport",
			fields:       map[string]string{"viewport_width": "100", "viewport_height": "200"},
			withImage:    true,
			wantStatus:   http.StatusOK,
			wantViewport: models.Viewport{Width: 100, Height: 200},
		},
		{
			name:       "Bad viewport",
			fields:     map[string]string{"viewport_width": "-1", "viewport_height": "200"},
			withImage:  true,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Missing image",
			withImage:  false,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Undecodable image",
			withImage:  true,
			imageBytes: []byte("not an image"),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Recognizer failure",
			withImage:  true,
			svcErr:     apperrors.NewRecognitionError("engine crashed", nil),
			wantStatus: http.StatusUnprocessableEntity,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{resp: okResponse(), err: tt.svcErr}
			h := NewHandler(Dependencies{Service: svc, Config: testConfig()})

			body, contentType := pngUpload(t, tt.fields, tt.withImage, tt.imageBytes)
			req := httptest.NewRequest(http.MethodPost, "/recognize", body)
			req.Header.Set("Content-Type", contentType)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if svc.gotViewport != tt.wantViewport {
				t.Errorf("viewport = %+v, want %+v", svc.gotViewport, tt.wantViewport)
			}
			if svc.gotExpected != tt.fields["expected_text"] {
				t.Errorf("expected text = %q", svc.gotExpected)
			}
			var resp models.RecognitionResponse
			if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
				t.Fatal(err)
			}
			if resp.Selection == nil || resp.Selection.Text != "EXIT" {
				t.Errorf("Unexpected response %+v", resp)
			}
		})
	}
}

func TestRecognizeUpload_BodyTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRequestBodySize = 64
	h := NewHandler(Dependencies{Service: &fakeService{resp: okResponse()}, Config: cfg})

	body, contentType := pngUpload(t, nil, true, bytes.Repeat([]byte{0}, 4096))
	req := httptest.NewRequest(http.MethodPost, "/recognize", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code == http.StatusOK {
		t.Fatal("Expected oversized upload to be rejected")
	}
}

func TestRecognizeURL(t *testing.T) {
	tests := []struct {
		name         string
		body         string
		validateErr  error
		svcErr       error
		wantStatus   int
		wantViewport models.Viewport
	}{
		{
			name:         "Valid request",
			body:         `{"url":"https://example.com/a.png","expected_text":"EXIT"}`,
			wantStatus:   http.StatusOK,
			wantViewport: models.Viewport{Width: 390, Height: 844},
		},
		{
			name:         "Viewport override",
			body:         `{"url":"https://example.com/a.png","viewport_width":10,"viewport_height":20}`,
			wantStatus:   http.StatusOK,
			wantViewport: models.Viewport{Width: 10, Height: 20},
		},
		{
			name:       "Missing URL",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:        "Rejected URL",
			body:        `{"url":"https://example.com/a.png"}`,
			validateErr: apperrors.NewValidationError("URL host not allowed", nil),
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:       "Fetch failure",
			body:       `{"url":"https://example.com/a.png"}`,
			svcErr:     apperrors.NewNetworkError("down", nil),
			wantStatus: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{resp: okResponse(), err: tt.svcErr, validateErr: tt.validateErr}
			h := NewHandler(Dependencies{Service: svc, Config: testConfig()})

			req := httptest.NewRequest(http.MethodPost, "/recognize/url", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus == http.StatusOK {
				if svc.gotURL != "https://example.com/a.png" {
					t.Errorf("url = %q", svc.gotURL)
				}
				if svc.gotViewport != tt.wantViewport {
					t.Errorf("viewport = %+v, want %+v", svc.gotViewport, tt.wantViewport)
				}
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	h := NewHandler(Dependencies{
		Service: &fakeService{},
		Metrics: fakeMetrics{},
		Pool:    fakePool{},
		Config:  testConfig(),
	})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var body struct {
		Frames map[string]interface{} `json:"frames"`
		Pool   pipeline.PoolStats     `json:"pool"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body.Frames["frames_selected"] != float64(3) {
		t.Errorf("frames = %+v", body.Frames)
	}
	if body.Pool.TotalJobs != 5 {
		t.Errorf("pool = %+v", body.Pool)
	}
}

func TestStreamEvents_Disabled(t *testing.T) {
	h := NewHandler(Dependencies{Service: &fakeService{}, Config: testConfig()})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestErrorHandler_WrapsUnexpectedErrors(t *testing.T) {
	r := gin.New()
	r.Use(errorHandler())
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errors.New("boom"))
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", rec.Code)
	}
	var resp models.ErrorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Message, "internal: unexpected error") || !strings.Contains(resp.Message, "boom") {
		t.Errorf("Expected internal error wrapping the cause, got %q", resp.Message)
	}
}

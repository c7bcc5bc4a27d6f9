package service

import (
	"context"
	"image"
	"strings"
	"time"

	"github.com/arbovm/levenshtein"
	"github.com/codycollier/wer"

	apperrors "github.com/anime-shed/live-text-go/internal/errors"
	"github.com/anime-shed/live-text-go/internal/logger"
	"github.com/anime-shed/live-text-go/internal/recognizer"
	"github.com/anime-shed/live-text-go/internal/repository"
	"github.com/anime-shed/live-text-go/internal/selection"
	"github.com/anime-shed/live-text-go/pkg/models"
	"github.com/sirupsen/logrus"
)

// RecognitionService recognizes text in still images with the same
// selection policy the live scanner uses
type RecognitionService interface {
	RecognizeImage(ctx context.Context, img image.Image, expectedText string, vp models.Viewport) (*models.RecognitionResponse, error)
	RecognizeURL(ctx context.Context, imageURL string, expectedText string, vp models.Viewport) (*models.RecognitionResponse, error)
	ValidateImageURL(imageURL string) error
}

type recognitionService struct {
	imageRepo  repository.ImageRepository
	recognizer recognizer.Recognizer
	policy     selection.Policy
	timeout    time.Duration
}

// NewRecognitionService creates a new recognition service
func NewRecognitionService(
	imageRepository repository.ImageRepository,
	rec recognizer.Recognizer,
	policy selection.Policy,
	timeout time.Duration,
) RecognitionService {
	return &recognitionService{
		imageRepo:  imageRepository,
		recognizer: rec,
		policy:     policy,
		timeout:    timeout,
	}
}

// RecognizeURL fetches an image and recognizes it
func (s *recognitionService) RecognizeURL(ctx context.Context, imageURL string, expectedText string, vp models.Viewport) (*models.RecognitionResponse, error) {
	img, err := s.imageRepo.FetchImage(ctx, imageURL)
	if err != nil {
		return nil, err
	}

	resp, err := s.RecognizeImage(ctx, img, expectedText, vp)
	if err != nil {
		return nil, err
	}
	resp.ImageURL = imageURL
	return resp, nil
}

// RecognizeImage runs the recognizer and the selection policy on img. Unlike
// the live path, a recognizer error is returned to the caller.
func (s *recognitionService) RecognizeImage(ctx context.Context, img image.Image, expectedText string, vp models.Viewport) (*models.RecognitionResponse, error) {
	if img == nil {
		return nil, apperrors.NewValidationError("Image is required", nil)
	}
	if vp.Width <= 0 || vp.Height <= 0 {
		return nil, apperrors.NewValidationError("Viewport dimensions must be positive", nil)
	}

	rctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.recognizer.Recognize(rctx, img)
	elapsed := time.Since(start)
	if err != nil {
		if rctx.Err() == context.DeadlineExceeded {
			return nil, apperrors.NewTimeoutError("Recognition timed out", err)
		}
		return nil, apperrors.NewRecognitionError("Text recognition failed", err)
	}

	resp := &models.RecognitionResponse{
		Timestamp:         start.UTC().Format(time.RFC3339),
		ProcessingTimeSec: elapsed.Seconds(),
		Candidates:        result.Candidates,
	}
	if resp.Candidates == nil {
		resp.Candidates = []models.RecognitionCandidate{}
	}

	if sel, ok := s.policy.Select(result); ok {
		resp.Selection = &sel
		rect := selection.ToScreen(sel.Box, vp)
		resp.Overlay = &rect
	}

	if expectedText != "" {
		got := ""
		if resp.Selection != nil {
			got = resp.Selection.Text
		}
		acc := MeasureAccuracy(expectedText, got)
		resp.Accuracy = &acc
	}

	logger.WithFields(logrus.Fields{
		"candidates": len(resp.Candidates),
		"selected":   resp.Selection != nil,
		"duration":   elapsed,
	}).Debug("Still image recognized")

	return resp, nil
}

// ValidateImageURL validates the image URL
func (s *recognitionService) ValidateImageURL(imageURL string) error {
	return s.imageRepo.ValidateImageURL(imageURL)
}

// MeasureAccuracy scores recognized text against the expected text. CER is
// the rune edit distance over the expected length; WER is computed on
// whitespace separated words. Both compare case-folded, trimmed text.
func MeasureAccuracy(expected, recognized string) models.Accuracy {
	ref := strings.ToLower(selection.Trim(expected))
	hyp := strings.ToLower(selection.Trim(recognized))

	acc := models.Accuracy{ExpectedText: expected}

	acc.EditDistance = levenshtein.Distance(ref, hyp)
	if n := len([]rune(ref)); n > 0 {
		acc.CER = float64(acc.EditDistance) / float64(n)
	} else if hyp != "" {
		acc.CER = 1
	}

	refWords := strings.Fields(ref)
	hypWords := strings.Fields(hyp)
	switch {
	case len(refWords) == 0 && len(hypWords) == 0:
	case len(refWords) == 0:
		acc.WER = 1
		acc.WordErrors = len(hypWords)
	default:
		acc.WER, acc.WordErrors = wer.WER(refWords, hypWords)
	}

	return acc
}

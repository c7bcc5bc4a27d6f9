// Package webcam reads frames from a local capture device through OpenCV.
package webcam

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/anime-shed/live-text-go/internal/capture"
	apperrors "github.com/anime-shed/live-text-go/internal/errors"
	"github.com/anime-shed/live-text-go/internal/logger"
	"github.com/sirupsen/logrus"
	"gocv.io/x/gocv"
)

// Source captures frames from a webcam
type Source struct {
	device      string
	interval    time.Duration
	orientation capture.Orientation

	mu  sync.Mutex
	cap *gocv.VideoCapture
}

// Open opens the capture device. A device that cannot be opened yields an
// error wrapping capture.ErrNoCamera.
func Open(device string, interval time.Duration) (*Source, error) {
	var id interface{} = device
	if n, err := strconv.Atoi(device); err == nil {
		id = n
	}

	vc, err := gocv.OpenVideoCapture(id)
	if err != nil {
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("could not open capture device %q", device),
			fmt.Errorf("%w: %v", capture.ErrNoCamera, err),
		)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, apperrors.NewConfigurationError(
			fmt.Sprintf("capture device %q is not available", device),
			capture.ErrNoCamera,
		)
	}
	if interval > 0 {
		vc.Set(gocv.VideoCaptureFPS, float64(time.Second)/float64(interval))
	}

	logger.WithFields(logrus.Fields{
		"device":   device,
		"interval": interval,
	}).Info("Camera opened")

	return &Source{device: device, interval: interval, cap: vc}, nil
}

// WithOrientation sets the orientation tag applied to every frame
func (s *Source) WithOrientation(o capture.Orientation) *Source {
	s.orientation = o
	return s
}

// Frames reads from the device until ctx is cancelled or the device stops
func (s *Source) Frames(ctx context.Context) (<-chan capture.Frame, error) {
	s.mu.Lock()
	vc := s.cap
	s.mu.Unlock()
	if vc == nil {
		return nil, apperrors.NewUnavailableError("camera closed", capture.ErrNoCamera)
	}

	out := make(chan capture.Frame)
	go func() {
		defer close(out)
		mat := gocv.NewMat()
		defer mat.Close()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		var seq uint64
		misses := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			if ok := vc.Read(&mat); !ok || mat.Empty() {
				misses++
				if misses%30 == 1 {
					logger.WithField("device", s.device).Debug("Unable to read frame from camera")
				}
				continue
			}
			misses = 0

			img, err := mat.ToImage()
			if err != nil {
				logger.WithError(err).Debug("Unable to convert camera frame")
				continue
			}

			seq++
			frame := capture.Frame{
				Seq:         seq,
				Image:       img,
				Orientation: s.orientation,
				CapturedAt:  time.Now(),
			}
			select {
			case out <- frame:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Close releases the capture device
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cap == nil {
		return nil
	}
	err := s.cap.Close()
	s.cap = nil
	return err
}

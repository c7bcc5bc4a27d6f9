package capture

import (
	"context"
	"image"
	"sync/atomic"
	"time"

	"github.com/anime-shed/live-text-go/internal/logger"
	"github.com/sirupsen/logrus"
)

// ImageFetcher loads a still image. storage.ImageFetcher satisfies it.
type ImageFetcher interface {
	FetchImage(ctx context.Context, imageURL string) (image.Image, error)
}

// SnapshotSource polls a still-image URL, such as an IP camera snapshot
// endpoint, at a fixed interval.
type SnapshotSource struct {
	fetcher      ImageFetcher
	url          string
	interval     time.Duration
	fetchTimeout time.Duration
	orientation  Orientation
	seq          atomic.Uint64
}

// NewSnapshotSource creates a polling source
func NewSnapshotSource(fetcher ImageFetcher, url string, interval, fetchTimeout time.Duration) *SnapshotSource {
	return &SnapshotSource{
		fetcher:      fetcher,
		url:          url,
		interval:     interval,
		fetchTimeout: fetchTimeout,
	}
}

// WithOrientation sets the orientation tag applied to every frame
func (s *SnapshotSource) WithOrientation(o Orientation) *SnapshotSource {
	s.orientation = o
	return s
}

// Frames starts polling. Failed fetches are logged and produce no frame.
func (s *SnapshotSource) Frames(ctx context.Context) (<-chan Frame, error) {
	out := make(chan Frame)
	go func() {
		defer close(out)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			img, err := s.fetch(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.WithError(err).WithFields(logrus.Fields{
					"url": s.url,
				}).Warn("Snapshot fetch failed")
				continue
			}

			frame := Frame{
				Seq:         s.seq.Add(1),
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

func (s *SnapshotSource) fetch(ctx context.Context) (image.Image, error) {
	if s.fetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.fetchTimeout)
		defer cancel()
	}
	return s.fetcher.FetchImage(ctx, s.url)
}

// Close is a no-op; polling stops with the context passed to Frames
func (s *SnapshotSource) Close() error { return nil }

// Package pipeline moves frames from a capture source through text
// recognition and the selection policy to the display.
package pipeline

import (
	"context"
	"time"

	"github.com/anime-shed/live-text-go/internal/capture"
	"github.com/anime-shed/live-text-go/internal/display"
	"github.com/anime-shed/live-text-go/internal/logger"
	"github.com/anime-shed/live-text-go/internal/observer"
	"github.com/anime-shed/live-text-go/internal/recognizer"
	"github.com/anime-shed/live-text-go/internal/selection"
	"github.com/sirupsen/logrus"
)

// Scanner runs the live scanning loop
type Scanner struct {
	source     capture.Source
	recognizer recognizer.Recognizer
	policy     selection.Policy
	display    *display.Display
	pool       *WorkerPool
	gate       *Gate
	publisher  observer.Subject
	timeout    time.Duration
}

// NewScanner wires a scanner. gate may be nil to recognize every frame.
func NewScanner(
	source capture.Source,
	rec recognizer.Recognizer,
	policy selection.Policy,
	disp *display.Display,
	pool *WorkerPool,
	gate *Gate,
	publisher observer.Subject,
	timeout time.Duration,
) *Scanner {
	return &Scanner{
		source:     source,
		recognizer: rec,
		policy:     policy,
		display:    disp,
		pool:       pool,
		gate:       gate,
		publisher:  publisher,
		timeout:    timeout,
	}
}

// Run reads frames until the source stops or ctx is cancelled, then waits
// for in-flight recognition to finish.
func (s *Scanner) Run(ctx context.Context) error {
	frames, err := s.source.Frames(ctx)
	if err != nil {
		return err
	}
	s.pool.Start()
	defer s.pool.Wait()

	logger.Info("Scanner started")
	for frame := range frames {
		s.dispatch(ctx, frame)
	}
	logger.WithFields(logrus.Fields{
		"pool": s.pool.GetStats(),
	}).Info("Scanner stopped")
	return nil
}

// dispatch runs on the capture goroutine and never blocks on recognition
func (s *Scanner) dispatch(ctx context.Context, frame capture.Frame) {
	if s.gate != nil {
		if ok, reason := s.gate.Admit(frame.Image); !ok {
			s.notify(ctx, observer.FrameEvent{
				EventType: observer.FrameSkipped,
				FrameSeq:  frame.Seq,
				Metadata:  map[string]interface{}{"reason": reason},
			})
			return
		}
	}

	if !s.pool.TrySubmit(func() { s.process(ctx, frame) }) {
		// a dropped frame was never recognized, so it must not become the gate baseline
		if s.gate != nil {
			s.gate.Reset()
		}
		s.notify(ctx, observer.FrameEvent{
			EventType: observer.FrameDropped,
			FrameSeq:  frame.Seq,
			Metadata:  map[string]interface{}{"reason": "workers_busy"},
		})
	}
}

// process runs on a worker goroutine and hands its outcome to the display
func (s *Scanner) process(ctx context.Context, frame capture.Frame) {
	outcome := s.Recognize(ctx, frame)
	if err := s.display.Apply(ctx, outcome); err != nil && ctx.Err() == nil {
		logger.WithFrame(frame.Seq).WithError(err).Warn("Display rejected frame outcome")
	}
}

// Recognize runs recognition and the selection policy for one frame. A
// recognizer error is reported in the outcome, not returned.
func (s *Scanner) Recognize(ctx context.Context, frame capture.Frame) display.Outcome {
	start := time.Now()
	rctx := ctx
	if s.timeout > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	outcome := display.Outcome{Seq: frame.Seq}
	result, err := s.recognizer.Recognize(rctx, frame.Upright())
	outcome.ProcessingTime = time.Since(start)
	if err != nil {
		logger.WithFrame(frame.Seq).WithError(err).Debug("Recognition failed")
		outcome.Err = err
		return outcome
	}

	result.Seq = frame.Seq
	result.CapturedAt = frame.CapturedAt
	outcome.Candidates = len(result.Candidates)
	if sel, ok := s.policy.Select(result); ok {
		outcome.Selection = &sel
	}
	return outcome
}

func (s *Scanner) notify(ctx context.Context, event observer.FrameEvent) {
	if s.publisher == nil {
		return
	}
	event.Timestamp = time.Now()
	s.publisher.NotifyObservers(ctx, event)
}

// Stats returns the worker pool counters
func (s *Scanner) Stats() PoolStats {
	return s.pool.GetStats()
}

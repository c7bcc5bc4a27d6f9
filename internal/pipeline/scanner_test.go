package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/anime-shed/live-text-go/internal/capture"
	"github.com/anime-shed/live-text-go/internal/display"
	"github.com/anime-shed/live-text-go/internal/observer"
	"github.com/anime-shed/live-text-go/internal/recognizer"
	"github.com/anime-shed/live-text-go/internal/selection"
	"github.com/anime-shed/live-text-go/pkg/models"
)

// sliceSource replays a fixed list of frames
type sliceSource struct {
	frames []capture.Frame
}

func (s *sliceSource) Frames(ctx context.Context) (<-chan capture.Frame, error) {
	out := make(chan capture.Frame)
	go func() {
		defer close(out)
		for _, f := range s.frames {
			select {
			case out <- f:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *sliceSource) Close() error { return nil }

type failingSource struct{}

func (failingSource) Frames(ctx context.Context) (<-chan capture.Frame, error) {
	return nil, capture.ErrNoCamera
}
func (failingSource) Close() error { return nil }

type collector struct {
	mu     sync.Mutex
	events []observer.FrameEvent
}

func (c *collector) OnEvent(ctx context.Context, e observer.FrameEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *collector) GetObserverName() string { return "collector" }

func (c *collector) count(t observer.EventType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, e := range c.events {
		if e.EventType == t {
			n++
		}
	}
	return n
}

var centerBox = models.NormalizedRect{X: 0.3, Y: 0.4, Width: 0.4, Height: 0.2}

// scriptedRecognizer returns candidates keyed by the frame's width
func scriptedRecognizer(byWidth map[int][]models.RecognitionCandidate, fail map[int]bool) recognizer.Recognizer {
	return recognizer.RecognizerFunc(func(ctx context.Context, img image.Image) (models.FrameResult, error) {
		w := img.Bounds().Dx()
		if fail[w] {
			return models.FrameResult{}, errors.New("recognizer unavailable")
		}
		return models.FrameResult{Candidates: byWidth[w]}, nil
	})
}

func frameOfWidth(seq uint64, w int) capture.Frame {
	return capture.Frame{Seq: seq, Image: image.NewGray(image.Rect(0, 0, w, 10)), CapturedAt: time.Now()}
}

func newTestScanner(src capture.Source, rec recognizer.Recognizer) (*Scanner, *display.Display, *collector, context.CancelFunc) {
	col := &collector{}
	pub := observer.NewEventPublisher()
	pub.Subscribe(col)

	disp := display.New(models.Viewport{Width: 100, Height: 100}, "", pub)
	ctx, cancel := context.WithCancel(context.Background())
	go disp.Run(ctx)

	pool := NewWorkerPool(1)
	s := NewScanner(src, rec, selection.DefaultPolicy(), disp, pool, nil, pub, time.Second)
	return s, disp, col, cancel
}

func TestScanner_Recognize(t *testing.T) {
	rec := scriptedRecognizer(map[int][]models.RecognitionCandidate{
		10: {
			{Text: "A", Confidence: 0.4, Box: centerBox},
			{Text: " B\n", Confidence: 0.9, Box: centerBox},
		},
		20: {{Text: "corner", Confidence: 0.9, Box: models.NormalizedRect{Width: 0.1, Height: 0.1}}},
	}, map[int]bool{30: true})

	s, _, _, cancel := newTestScanner(&sliceSource{}, rec)
	defer cancel()
	ctx := context.Background()

	out := s.Recognize(ctx, frameOfWidth(1, 10))
	if out.Selection == nil || out.Selection.Text != "B" || out.Selection.Confidence != 0.9 {
		t.Errorf("Expected selection B/0.9, got %+v", out.Selection)
	}
	if out.Candidates != 2 || out.Seq != 1 {
		t.Errorf("Unexpected outcome %+v", out)
	}

	if out := s.Recognize(ctx, frameOfWidth(2, 20)); out.Selection != nil {
		t.Errorf("Expected no selection for off-centre text, got %+v", out.Selection)
	}

	out = s.Recognize(ctx, frameOfWidth(3, 30))
	if out.Err == nil || out.Selection != nil {
		t.Errorf("Expected recognizer error without selection, got %+v", out)
	}
}

func TestScanner_Run(t *testing.T) {
	rec := scriptedRecognizer(map[int][]models.RecognitionCandidate{
		10: {{Text: "first", Confidence: 0.8, Box: centerBox}},
		20: nil,
		30: {{Text: "third", Confidence: 0.8, Box: centerBox}},
	}, nil)
	src := &sliceSource{frames: []capture.Frame{
		frameOfWidth(1, 10),
		frameOfWidth(2, 20),
		frameOfWidth(3, 30),
	}}

	s, disp, col, cancel := newTestScanner(src, rec)
	defer cancel()

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// Snapshot is served after every pending outcome has been applied
	st, err := disp.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if st.LastSeq == 0 {
		t.Error("Expected at least one frame to reach the display")
	}

	stats := s.Stats()
	processed := col.count(observer.TextSelected) + col.count(observer.NoSelection) + col.count(observer.FrameDropped)
	if processed != 3 {
		t.Errorf("Expected 3 frame events, got %d (stats %+v)", processed, stats)
	}
	if stats.TotalJobs+stats.DroppedJobs != 3 {
		t.Errorf("Expected every frame to be submitted or dropped, got %+v", stats)
	}
}

func TestScanner_RunSourceError(t *testing.T) {
	s, _, _, cancel := newTestScanner(failingSource{}, scriptedRecognizer(nil, nil))
	defer cancel()

	if err := s.Run(context.Background()); !errors.Is(err, capture.ErrNoCamera) {
		t.Errorf("Expected ErrNoCamera, got %v", err)
	}
}

func TestScanner_GateSkipsRepeatedFrames(t *testing.T) {
	img := checkerImage(64, 64, 8)
	src := &sliceSource{frames: []capture.Frame{
		{Seq: 1, Image: img},
		{Seq: 2, Image: img},
	}}
	rec := scriptedRecognizer(map[int][]models.RecognitionCandidate{
		64: {{Text: "same", Confidence: 0.9, Box: centerBox}},
	}, nil)

	s, disp, col, cancel := newTestScanner(src, rec)
	defer cancel()
	s.gate = NewGate(DefaultGateOptions())

	if err := s.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := disp.Snapshot(context.Background()); err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if got := col.count(observer.FrameSkipped); got != 1 {
		t.Errorf("Expected 1 skipped frame, got %d", got)
	}
	if got := col.count(observer.TextSelected); got != 1 {
		t.Errorf("Expected 1 selection, got %d", got)
	}
}

func TestScanner_DroppedFrameDoesNotPoisonGate(t *testing.T) {
	changed := checkerImage(64, 64, 8)
	rec := scriptedRecognizer(map[int][]models.RecognitionCandidate{
		80: {{Text: "old", Confidence: 0.9, Box: centerBox}},
		64: {{Text: "new", Confidence: 0.9, Box: centerBox}},
	}, nil)

	s, disp, col, cancel := newTestScanner(&sliceSource{}, rec)
	defer cancel()
	s.gate = NewGate(DefaultGateOptions())
	ctx := context.Background()
	s.pool.Start()
	defer s.pool.Close()

	s.dispatch(ctx, capture.Frame{Seq: 1, Image: stripeImage(80, 64)})
	s.pool.Wait()

	// one running job plus a full queue
	release := make(chan struct{})
	for i := 0; i < 3; i++ {
		s.pool.Submit(func() { <-release })
	}

	s.dispatch(ctx, capture.Frame{Seq: 2, Image: changed})
	if got := col.count(observer.FrameDropped); got != 1 {
		t.Fatalf("Expected the changed scene to be dropped while busy, got %d drops", got)
	}

	close(release)
	s.pool.Wait()

	s.dispatch(ctx, capture.Frame{Seq: 3, Image: changed})
	s.pool.Wait()

	st, err := disp.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if st.Text != "new" {
		t.Errorf("Expected the changed scene to be recognized after a drop, got %q", st.Text)
	}
	if got := col.count(observer.FrameSkipped); got != 0 {
		t.Errorf("Expected no skipped frames, got %d", got)
	}
}

// Package display owns the state a viewer sees: the current text and the
// overlay drawn over the preview. All of it is read and written on a single
// goroutine; other goroutines reach it through Apply, Snapshot and SetViewport.
package display

import (
	"context"
	"errors"
	"time"

	"github.com/anime-shed/live-text-go/internal/observer"
	"github.com/anime-shed/live-text-go/internal/selection"
	"github.com/anime-shed/live-text-go/pkg/models"
)

// ErrStopped is returned once the owner goroutine has exited
var ErrStopped = errors.New("display stopped")

// Outcome is the result of processing one frame
type Outcome struct {
	Seq            uint64
	Selection      *models.Selection
	Candidates     int
	ProcessingTime time.Duration
	Err            error
}

type state struct {
	text       string
	overlay    *models.Overlay
	overlayBox models.NormalizedRect
	viewport   models.Viewport
	lastSeq    uint64
	updatedAt  time.Time
}

// Display is the single owner of the visible state
type Display struct {
	outcomes  chan Outcome
	requests  chan func(*state)
	done      chan struct{}
	publisher observer.Subject
	st        state
}

// New creates a display showing initialText until the first selection
func New(vp models.Viewport, initialText string, publisher observer.Subject) *Display {
	return &Display{
		outcomes:  make(chan Outcome),
		requests:  make(chan func(*state)),
		done:      make(chan struct{}),
		publisher: publisher,
		st: state{
			text:     initialText,
			viewport: vp,
		},
	}
}

// Run processes outcomes and requests until ctx is cancelled
func (d *Display) Run(ctx context.Context) {
	defer close(d.done)
	for {
		select {
		case <-ctx.Done():
			d.st.overlay = nil
			return
		case o := <-d.outcomes:
			d.apply(ctx, o)
		case req := <-d.requests:
			req(&d.st)
		}
	}
}

// Apply hands a frame outcome to the owner goroutine. It returns once the
// owner has taken it, so a later Snapshot observes its effect.
func (d *Display) Apply(ctx context.Context, o Outcome) error {
	select {
	case d.outcomes <- o:
		return nil
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns a copy of the visible state
func (d *Display) Snapshot(ctx context.Context) (models.DisplayState, error) {
	var out models.DisplayState
	err := d.do(ctx, func(st *state) {
		out = models.DisplayState{
			Text:      st.text,
			Viewport:  st.viewport,
			LastSeq:   st.lastSeq,
			UpdatedAt: st.updatedAt,
		}
		if st.overlay != nil {
			ov := *st.overlay
			out.Overlay = &ov
		}
	})
	return out, err
}

// SetViewport changes the overlay surface size and redraws the current
// overlay, if any, for the new size.
func (d *Display) SetViewport(ctx context.Context, vp models.Viewport) error {
	return d.do(ctx, func(st *state) {
		st.viewport = vp
		if st.overlay != nil {
			st.overlay = &models.Overlay{
				FrameSeq: st.overlay.FrameSeq,
				Rect:     selection.ToScreen(st.overlayBox, vp),
			}
		}
	})
}

func (d *Display) do(ctx context.Context, fn func(*state)) error {
	finished := make(chan struct{})
	req := func(st *state) {
		fn(st)
		close(finished)
	}
	select {
	case d.requests <- req:
	case <-d.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	<-finished
	return nil
}

// apply runs on the owner goroutine. The overlay is cleared for every frame
// before a new one is drawn. Outcomes for frames older than the last applied
// one are discarded.
func (d *Display) apply(ctx context.Context, o Outcome) {
	st := &d.st
	if o.Seq != 0 && o.Seq <= st.lastSeq {
		d.publish(ctx, observer.FrameEvent{
			EventType: observer.FrameDropped,
			FrameSeq:  o.Seq,
			Metadata:  map[string]interface{}{"reason": "stale"},
		})
		return
	}
	if o.Seq != 0 {
		st.lastSeq = o.Seq
	}

	st.overlay = nil
	st.overlayBox = models.NormalizedRect{}
	st.updatedAt = time.Now()

	event := observer.FrameEvent{
		FrameSeq:       o.Seq,
		ProcessingTime: o.ProcessingTime,
		Metadata:       map[string]interface{}{"candidates": o.Candidates},
	}

	switch {
	case o.Err != nil:
		event.EventType = observer.RecognitionFailed
		event.ErrorMessage = o.Err.Error()
	case o.Selection == nil:
		event.EventType = observer.NoSelection
	default:
		sel := *o.Selection
		rect := selection.ToScreen(sel.Box, st.viewport)
		st.text = sel.Text
		st.overlayBox = sel.Box
		st.overlay = &models.Overlay{FrameSeq: o.Seq, Rect: rect}

		event.EventType = observer.TextSelected
		event.Text = sel.Text
		event.Confidence = sel.Confidence
		event.Overlay = &rect
	}
	d.publish(ctx, event)
}

func (d *Display) publish(ctx context.Context, event observer.FrameEvent) {
	if d.publisher == nil {
		return
	}
	event.Timestamp = time.Now()
	d.publisher.NotifyObservers(ctx, event)
}

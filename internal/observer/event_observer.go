package observer

import (
	"context"
	"sync"
	"time"

	"github.com/anime-shed/live-text-go/pkg/models"
	"github.com/sirupsen/logrus"
)

// FrameEvent describes what happened to one frame
type FrameEvent struct {
	EventType      EventType              `json:"event_type"`
	Timestamp      time.Time              `json:"timestamp"`
	FrameSeq       uint64                 `json:"frame_seq"`
	ProcessingTime time.Duration          `json:"processing_time"`
	Text           string                 `json:"text,omitempty"`
	Confidence     float64                `json:"confidence,omitempty"`
	Overlay        *models.ScreenRect     `json:"overlay,omitempty"`
	ErrorMessage   string                 `json:"error_message,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// EventType represents the type of frame event
type EventType string

const (
	// TextSelected when a frame produced a selection
	TextSelected EventType = "text_selected"
	// NoSelection when a frame was recognized but nothing qualified
	NoSelection EventType = "no_selection"
	// RecognitionFailed when the recognizer returned an error for a frame
	RecognitionFailed EventType = "recognition_failed"
	// FrameSkipped when the frame gate decided recognition was unnecessary
	FrameSkipped EventType = "frame_skipped"
	// FrameDropped when a frame was discarded because workers were busy
	// or its result arrived after a newer one
	FrameDropped EventType = "frame_dropped"
)

// Observer defines the interface for event observers
type Observer interface {
	OnEvent(ctx context.Context, event FrameEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event FrameEvent)
}

// LoggingObserver logs frame events
type LoggingObserver struct {
	logger *logrus.Logger
}

// NewLoggingObserver creates a new logging observer
func NewLoggingObserver(logger *logrus.Logger) Observer {
	return &LoggingObserver{
		logger: logger,
	}
}

// OnEvent handles frame events by logging them
func (o *LoggingObserver) OnEvent(ctx context.Context, event FrameEvent) {
	fields := logrus.Fields{
		"event_type":         event.EventType,
		"frame_seq":          event.FrameSeq,
		"processing_time_ms": event.ProcessingTime.Milliseconds(),
	}

	if event.Text != "" {
		fields["text"] = event.Text
		fields["confidence"] = event.Confidence
	}
	if event.ErrorMessage != "" {
		fields["error"] = event.ErrorMessage
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	switch event.EventType {
	case TextSelected:
		o.logger.WithFields(fields).Info("Text selected")
	case RecognitionFailed:
		o.logger.WithFields(fields).Warn("Text recognition failed")
	case NoSelection, FrameSkipped, FrameDropped:
		o.logger.WithFields(fields).Debug("Frame produced no selection")
	default:
		o.logger.WithFields(fields).Info("Frame event occurred")
	}
}

// GetObserverName returns the observer name
func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver counts frame events
type MetricsObserver struct {
	mu                  sync.RWMutex
	counts              map[EventType]int64
	recognizedFrames    int64
	totalProcessingTime time.Duration
	lastText            string
}

// NewMetricsObserver creates a new metrics observer
func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{
		counts: make(map[EventType]int64),
	}
}

// OnEvent handles frame events by collecting metrics
func (o *MetricsObserver) OnEvent(ctx context.Context, event FrameEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.counts[event.EventType]++
	switch event.EventType {
	case TextSelected:
		o.lastText = event.Text
		fallthrough
	case NoSelection:
		o.recognizedFrames++
		o.totalProcessingTime += event.ProcessingTime
	}
}

// GetObserverName returns the observer name
func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns current metrics
func (o *MetricsObserver) GetMetrics() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avgProcessingTime := time.Duration(0)
	if o.recognizedFrames > 0 {
		avgProcessingTime = o.totalProcessingTime / time.Duration(o.recognizedFrames)
	}

	return map[string]interface{}{
		"frames_selected":        o.counts[TextSelected],
		"frames_without_text":    o.counts[NoSelection],
		"frames_failed":          o.counts[RecognitionFailed],
		"frames_skipped":         o.counts[FrameSkipped],
		"frames_dropped":         o.counts[FrameDropped],
		"total_processing_time":  o.totalProcessingTime.String(),
		"avg_processing_time_ms": avgProcessingTime.Milliseconds(),
		"last_text":              o.lastText,
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher() *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
	}
}

// Subscribe adds an observer
func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer in subscription order on
// the caller's goroutine, so events reach each observer in frame order.
// Observers must not block.
func (p *EventPublisher) NotifyObservers(ctx context.Context, event FrameEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, observer := range observers {
		notify(ctx, observer, event)
	}
}

func notify(ctx context.Context, obs Observer, event FrameEvent) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("observer", obs.GetObserverName()).
				WithField("panic", r).
				Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}

package progress

import (
	"context"
	"sync"

	"fyne.io/fyne/v2/data/binding"
	log "github.com/sirupsen/logrus"

	"github.com/ytget/episode-downloader/internal/model"
)

// Sink consumes events drained from a subscription
type Sink interface {
	Handle(Event)
}

// SinkFunc adapts a function to Sink
type SinkFunc func(Event)

// Handle calls f(e)
func (f SinkFunc) Handle(e Event) {
	f(e)
}

// Drain feeds every event of sub to sink until the subscription closes or ctx
// is done. The subscription is closed on return.
func Drain(ctx context.Context, sub *Subscription, sink Sink) {
	defer sub.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-sub.C:
			if !ok {
				return
			}
			sink.Handle(e)
		}
	}
}

// LogSink writes state changes and failures to a logger. Byte progress of a
// transferring item is logged at debug level.
type LogSink struct {
	Logger log.FieldLogger

	mu   sync.Mutex
	last map[int]model.ItemState
}

// NewLogSink creates a LogSink writing to logger
func NewLogSink(logger log.FieldLogger) *LogSink {
	return &LogSink{Logger: logger, last: make(map[int]model.ItemState)}
}

// Handle logs e
func (s *LogSink) Handle(e Event) {
	s.mu.Lock()
	changed := s.last[e.Ordinal] != e.State
	s.last[e.Ordinal] = e.State
	s.mu.Unlock()

	entry := s.Logger.WithField("ordinal", e.Ordinal).WithField("state", e.State)
	if e.Attempt > 0 {
		entry = entry.WithField("attempt", e.Attempt)
	}

	switch e.State {
	case model.ItemStateFailed:
		entry.WithField("error", e.Err).Warn("attempt failed")
	case model.ItemStateExhausted:
		entry.WithField("error", e.Err).Error("giving up")
	case model.ItemStateTransferring:
		entry = entry.
			WithField("received", e.BytesReceived).
			WithField("total", e.TotalBytes).
			WithField("rate", FormatRate(e.BytesPerSecond))
		if changed {
			entry.Info("transfer started")
		} else {
			entry.Debug("transferring")
		}
	default:
		if !changed {
			return
		}
		if e.Err != "" {
			entry = entry.WithField("error", e.Err)
		}
		entry.Info(Status(e))
	}
}

// BindingSink mirrors events into fyne data bindings so a fyne front end can
// bind progress bars and labels per item.
type BindingSink struct {
	mu       sync.Mutex
	fraction map[int]binding.Float
	status   map[int]binding.String
	overall  binding.String
}

// NewBindingSink creates an empty BindingSink
func NewBindingSink() *BindingSink {
	return &BindingSink{
		fraction: make(map[int]binding.Float),
		status:   make(map[int]binding.String),
		overall:  binding.NewString(),
	}
}

// Fraction returns the progress binding of ordinal
func (s *BindingSink) Fraction(ordinal int) binding.Float {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fraction[ordinal]
	if !ok {
		f = binding.NewFloat()
		s.fraction[ordinal] = f
	}
	return f
}

// Status returns the status line binding of ordinal
func (s *BindingSink) Status(ordinal int) binding.String {
	s.mu.Lock()
	defer s.mu.Unlock()
	str, ok := s.status[ordinal]
	if !ok {
		str = binding.NewString()
		s.status[ordinal] = str
	}
	return str
}

// Latest returns the binding holding the status line of the last event
func (s *BindingSink) Latest() binding.String {
	return s.overall
}

// Handle updates the bindings of e.Ordinal
func (s *BindingSink) Handle(e Event) {
	line := Status(e)
	// Set on bindings made by binding.NewFloat and binding.NewString never fails
	_ = s.Fraction(e.Ordinal).Set(e.Fraction)
	_ = s.Status(e.Ordinal).Set(line)
	_ = s.overall.Set(line)
}

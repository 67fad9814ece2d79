package progress

import (
	"time"

	"github.com/ytget/episode-downloader/internal/model"
)

// visuallyDoneThreshold is how close to 1.0 a fraction must be to render as done
const visuallyDoneThreshold = 0.99

// Event is one progress notification for an item
type Event struct {
	Ordinal        int
	State          model.ItemState
	Fraction       float64
	BytesReceived  int64
	TotalBytes     int64
	BytesPerSecond int64
	Attempt        int
	Err            string
	At             time.Time
}

// New builds an event for ordinal in state, deriving Fraction from the byte counts
func New(ordinal int, state model.ItemState, received, total, rate int64) Event {
	return Event{
		Ordinal:        ordinal,
		State:          state,
		Fraction:       fraction(received, total),
		BytesReceived:  received,
		TotalBytes:     total,
		BytesPerSecond: max(rate, 0),
		At:             time.Now(),
	}
}

// Done is the event published when an item is complete on disk
func Done(ordinal int, total int64) Event {
	e := New(ordinal, model.ItemStateCompleted, total, total, 0)
	e.Fraction = 1
	return e
}

// Zero is an event with no progress, used for ignored and skipped items
func Zero(ordinal int, state model.ItemState) Event {
	return New(ordinal, state, 0, 0, 0)
}

// Start is the first event of a transfer attempt
func Start(ordinal int, received, total int64) Event {
	return New(ordinal, model.ItemStateTransferring, received, total, 0)
}

// WithAttempt returns a copy of e carrying attempt
func (e Event) WithAttempt(attempt int) Event {
	e.Attempt = attempt
	return e
}

// WithError returns a copy of e carrying the message of err
func (e Event) WithError(err error) Event {
	if err != nil {
		e.Err = err.Error()
	}
	return e
}

// VisuallyDone reports whether the fraction would render as complete.
// It is not a completion signal; only the completed state is.
func (e Event) VisuallyDone() bool {
	return e.Fraction >= visuallyDoneThreshold
}

func fraction(received, total int64) float64 {
	if total <= 0 || received <= 0 {
		return 0
	}
	if received >= total {
		return 1
	}
	return float64(received) / float64(total)
}

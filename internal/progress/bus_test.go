package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"fyne.io/fyne/v2/test"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ytget/episode-downloader/internal/model"
)

func TestBus_DeliversInOrderToEverySubscriber(t *testing.T) {
	bus := NewBus()
	first := bus.Subscribe(1)
	second := bus.Subscribe(0)

	const count = 100
	go func() {
		for i := int64(0); i < count; i++ {
			bus.Publish(Start(1, i, count))
		}
		bus.Close()
	}()

	var wg sync.WaitGroup
	for _, sub := range []*Subscription{first, second} {
		wg.Add(1)
		go func(sub *Subscription) {
			defer wg.Done()
			var received []int64
			for e := range sub.C {
				received = append(received, e.BytesReceived)
			}
			require.Len(t, received, count)
			for i, got := range received {
				assert.Equal(t, int64(i), got)
			}
		}(sub)
	}
	wg.Wait()
}

func TestBus_ClosedSubscriptionDoesNotBlock(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	other := bus.Subscribe(10)

	bus.Publish(Zero(1, model.ItemStatePending))
	done := make(chan struct{})
	go func() {
		// the second publish blocks on the full subscription until it is closed
		bus.Publish(Zero(2, model.ItemStatePending))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	sub.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish stayed blocked after the subscriber closed")
	}

	assert.Equal(t, 1, bus.Len())
	assert.Len(t, other.C, 2)

	// buffered event is still readable, then the channel is closed
	e, ok := <-sub.C
	assert.True(t, ok)
	assert.Equal(t, 1, e.Ordinal)
	_, ok = <-sub.C
	assert.False(t, ok)

	// closing twice is harmless
	sub.Close()
}

func TestBus_CloseReleasesBlockedPublisher(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)
	bus.Publish(Zero(1, model.ItemStatePending))

	done := make(chan struct{})
	go func() {
		bus.Publish(Zero(2, model.ItemStatePending))
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	bus.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish stayed blocked after the bus closed")
	}

	count := 0
	for range sub.C {
		count++
	}
	assert.Equal(t, 1, count)

	// publishing and subscribing after close are no-ops
	bus.Publish(Zero(3, model.ItemStatePending))
	late := bus.Subscribe(1)
	_, ok := <-late.C
	assert.False(t, ok)
}

func TestDrain(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(10)

	var got []int
	finished := make(chan struct{})
	go func() {
		Drain(context.Background(), sub, SinkFunc(func(e Event) {
			got = append(got, e.Ordinal)
		}))
		close(finished)
	}()

	bus.Publish(Zero(1, model.ItemStateSkipped))
	bus.Publish(Zero(2, model.ItemStateSkipped))
	bus.Close()
	<-finished

	assert.Equal(t, []int{1, 2}, got)
}

func TestDrain_ContextCancel(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	Drain(ctx, sub, SinkFunc(func(Event) {}))

	assert.Equal(t, 0, bus.Len())
}

func TestLogSink(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sink := NewLogSink(logger)

	sink.Handle(Start(1, 0, 100))
	sink.Handle(Start(1, 50, 100))
	sink.Handle(Zero(1, model.ItemStateFailed).WithAttempt(1).WithError(errTest))
	sink.Handle(Done(1, 100))
	sink.Handle(Done(1, 100))

	entries := hook.AllEntries()
	require.Len(t, entries, 4)
	assert.Equal(t, "transfer started", entries[0].Message)
	assert.Equal(t, logrus.DebugLevel, entries[1].Level)
	assert.Equal(t, logrus.WarnLevel, entries[2].Level)
	assert.Equal(t, 1, entries[2].Data["attempt"])
	assert.Equal(t, "test error", entries[2].Data["error"])
	assert.Equal(t, 1, entries[3].Data["ordinal"])
}

func TestBindingSink(t *testing.T) {
	test.NewApp()
	sink := NewBindingSink()

	sink.Handle(Start(7, 25, 100))

	fraction, err := sink.Fraction(7).Get()
	require.NoError(t, err)
	assert.Equal(t, 0.25, fraction)

	status, err := sink.Status(7).Get()
	require.NoError(t, err)
	assert.Contains(t, status, "#7 transferring")

	sink.Handle(Done(7, 100))
	fraction, _ = sink.Fraction(7).Get()
	assert.Equal(t, 1.0, fraction)

	latest, _ := sink.Latest().Get()
	assert.Contains(t, latest, "#7 completed")

	// unknown ordinals start empty
	fraction, _ = sink.Fraction(8).Get()
	assert.Equal(t, 0.0, fraction)
}

package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func closeBus(t *testing.T, b *Bus) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	b.Close(ctx)
}

func TestPublishReachesSubscriber(t *testing.T) {
	b := New()

	var mu sync.Mutex
	var got []Event
	b.Subscribe(EventTypeSnapshot, func(e Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, e)
	})

	b.Publish(Event{Type: EventTypeSnapshot, Data: map[string]interface{}{"host": "10.0.0.1"}})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "10.0.0.1", got[0].Data["host"])

	closeBus(t, b)
}

func TestPublishOnlyMatchingType(t *testing.T) {
	b := New()

	var count sync.WaitGroup
	count.Add(1)
	b.Subscribe(EventTypeTopology, func(e Event) { count.Done() })

	var wrong bool
	var mu sync.Mutex
	b.Subscribe(EventTypeCommand, func(e Event) {
		mu.Lock()
		wrong = true
		mu.Unlock()
	})

	b.Publish(Event{Type: EventTypeTopology})
	count.Wait()

	closeBus(t, b)

	mu.Lock()
	defer mu.Unlock()
	assert.False(t, wrong)
}

func TestUnsubscribe(t *testing.T) {
	b := New()

	var mu sync.Mutex
	delivered := 0
	id := b.Subscribe(EventTypeAvailability, func(e Event) {
		mu.Lock()
		delivered++
		mu.Unlock()
	})

	b.Publish(Event{Type: EventTypeAvailability})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return delivered == 1
	}, time.Second, 5*time.Millisecond)

	b.Unsubscribe(id)
	b.Publish(Event{Type: EventTypeAvailability})

	closeBus(t, b)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, delivered)
}

func TestPublishAfterCloseIsDropped(t *testing.T) {
	b := New()
	b.Subscribe(EventTypeSnapshot, func(e Event) {
		t.Error("handler invoked after close")
	})

	closeBus(t, b)

	// Dropped without panicking on the closed work queue.
	b.Publish(Event{Type: EventTypeSnapshot})
}

func TestConcurrentPublishAndClose(t *testing.T) {
	b := NewWithConfig(2, 4)
	b.Subscribe(EventTypeCommand, func(e Event) {})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.Publish(Event{Type: EventTypeCommand})
			}
		}()
	}

	closeBus(t, b)
	wg.Wait()
}

func TestHandlerPanicDoesNotKillWorkers(t *testing.T) {
	b := NewWithConfig(1, 10)

	b.Subscribe(EventTypeCommand, func(e Event) {
		panic("boom")
	})

	var mu sync.Mutex
	survived := false
	b.Subscribe(EventTypeSnapshot, func(e Event) {
		mu.Lock()
		survived = true
		mu.Unlock()
	})

	b.Publish(Event{Type: EventTypeCommand})
	b.Publish(Event{Type: EventTypeSnapshot})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return survived
	}, time.Second, 5*time.Millisecond)

	closeBus(t, b)
}

package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bidscreen/bidscreen-server/policy"
)

// Update represents a bulk policy update
type Update struct {
	Policies map[string]json.RawMessage `json:"policies"`
}

// Invalidation represents a bulk policy invalidation
type Invalidation struct {
	Policies []string `json:"policies"`
}

// EventProducer will produce cache update and invalidation events on its channels
type EventProducer interface {
	Updates() <-chan Update
	Invalidations() <-chan Invalidation
}

// EventListener provides information about how many events a listener has processed
// and a mechanism to stop the listener goroutine
type EventListener struct {
	stop              chan struct{}
	updateCount       int
	invalidationCount int
}

// Stop the event listener
func (e *EventListener) Stop() {
	e.stop <- struct{}{}
}

// Counts returns the number of updates and invalidations that were propagated
func (e *EventListener) Counts() (updates int, invalidations int) {
	return e.updateCount, e.invalidationCount
}

// WaitFor the specified number of events to be propagated
func (e *EventListener) WaitFor(ctx context.Context, updates int, invalidations int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
			if e.updateCount >= updates && e.invalidationCount >= invalidations {
				return
			}
			time.Sleep(1 * time.Millisecond)
		}
	}
}

// Listen runs a goroutine that saves/invalidates cached policies as events occur
func Listen(cache policy.Cache, events EventProducer) *EventListener {
	listener := &EventListener{
		stop:              make(chan struct{}),
		updateCount:       0,
		invalidationCount: 0,
	}

	go func() {
		defer close(listener.stop)
		for {
			select {
			case update := <-events.Updates():
				cache.Save(context.Background(), update.Policies)
				listener.updateCount++
			case invalidation := <-events.Invalidations():
				cache.Invalidate(context.Background(), invalidation.Policies)
				listener.invalidationCount++
			case <-listener.stop:
				return
			}
		}
	}()

	return listener
}

package eventbus

import (
	"log/slog"
	"sync"

	"github.com/oklog/ulid/v2"
)

type subscriber struct {
	ch       chan *Event
	lossless bool
	done     chan struct{}
	stop     sync.Once
}

// Bus fans events out to subscribers. For a plain subscriber Publish never
// blocks and a full buffer misses the event; a lossless subscriber makes
// Publish wait until the event is taken or the subscriber leaves.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]*subscriber
}

func New() *Bus {
	return &Bus{
		subscribers: make(map[string]*subscriber),
	}
}

func (b *Bus) Subscribe(bufSize int) (string, <-chan *Event) {
	return b.subscribe(bufSize, false)
}

// SubscribeLossless is for subscribers that must see every event. They have
// to keep reading until they Unsubscribe.
func (b *Bus) SubscribeLossless(bufSize int) (string, <-chan *Event) {
	return b.subscribe(bufSize, true)
}

func (b *Bus) subscribe(bufSize int, lossless bool) (string, <-chan *Event) {
	id := ulid.Make().String()
	sub := &subscriber{
		ch:       make(chan *Event, bufSize),
		lossless: lossless,
		done:     make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[id] = sub
	b.mu.Unlock()
	return id, sub.ch
}

func (b *Bus) Unsubscribe(id string) {
	b.mu.RLock()
	sub, ok := b.subscribers[id]
	b.mu.RUnlock()
	if !ok {
		return
	}
	// Release a Publish blocked on this subscriber before taking the write lock.
	sub.stop.Do(func() { close(sub.done) })

	b.mu.Lock()
	if _, ok := b.subscribers[id]; ok {
		close(sub.ch)
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
}

func (b *Bus) Publish(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for id, sub := range b.subscribers {
		if sub.lossless {
			select {
			case sub.ch <- event:
			case <-sub.done:
			}
			continue
		}
		select {
		case sub.ch <- event:
		default:
			slog.Warn("event dropped, subscriber buffer full",
				"subscriber", id, "event_type", event.Type, "project_id", event.ProjectID)
		}
	}
}

func (b *Bus) PublishNew(eventType EventType, projectID, resourceID string, metadata map[string]string) {
	b.Publish(NewEvent(eventType, projectID, resourceID, metadata))
}

// Package events provides a small in-process publish/subscribe bus used to
// push engine activity (calibration updates, focus rebuilds) to listeners
// such as the websocket stream.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies the kind of event.
type EventType string

const (
	CalibrationUpdated EventType = "calibration_updated"
	FocusRebuilt       EventType = "focus_rebuilt"
	ConsensusChanged   EventType = "consensus_changed"
	BackupCompleted    EventType = "backup_completed"
)

// Event is one bus message. Data must be JSON-serializable.
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// Bus fans events out to subscribers. Publishing never blocks: subscribers
// with a full channel miss the event rather than stalling the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan Event
	nextID      int
	log         zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[int]chan Event),
		log:         log.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers a listener. The returned cancel function removes the
// subscription and closes the channel.
func (b *Bus) Subscribe(buffer int) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++

	ch := make(chan Event, buffer)
	b.subscribers[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subscribers[id]; ok {
			delete(b.subscribers, id)
			close(sub)
		}
	}

	return ch, cancel
}

// Publish delivers an event to all current subscribers.
func (b *Bus) Publish(eventType EventType, data interface{}) {
	event := Event{
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		select {
		case ch <- event:
		default:
			b.log.Debug().
				Int("subscriber", id).
				Str("event", string(eventType)).
				Msg("Subscriber channel full, dropping event")
		}
	}
}

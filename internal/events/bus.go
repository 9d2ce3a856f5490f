// Package events carries timestamped, severity-tagged lifecycle events from
// the tunnel/scan/diag cores to whatever presentation layer is attached, and
// journals them to events.jsonl for later inspection.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Level is the severity tag attached to every event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Bus fans events out to subscribers and appends them to the journal.
// Publish never blocks: a subscriber that falls behind misses events rather
// than stalling the session that produced them.
type Bus struct {
	mu      sync.Mutex
	subs    []chan Event
	journal *Store
}

// NewBus creates a bus backed by the default journal store.
func NewBus() *Bus {
	return &Bus{journal: NewStore()}
}

// Subscribe returns a channel receiving all events published after the call.
func (b *Bus) Subscribe() <-chan Event {
	ch := make(chan Event, 64)
	b.mu.Lock()
	b.subs = append(b.subs, ch)
	b.mu.Unlock()
	return ch
}

// Publish delivers an event to all subscribers and the journal. Safe to call
// on a nil bus, which makes the cores usable without any presentation layer
// attached (unit tests construct sessions with a nil bus).
func (b *Bus) Publish(level Level, category, message string) {
	if b == nil {
		return
	}
	evt := Event{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Category:  category,
		Message:   message,
	}
	if b.journal != nil {
		if err := b.journal.Append(evt); err != nil {
			slog.Warn("failed to journal event", "category", category, "error", err)
		}
	}
	b.mu.Lock()
	for _, ch := range b.subs {
		select {
		case ch <- evt:
		default:
		}
	}
	b.mu.Unlock()
}

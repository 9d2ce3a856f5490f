// Package events tests cover the journal's append/read filtering and the
// bus's fan-out behavior. All tests isolate XDG_CONFIG_HOME so the journal is
// written to a temp directory.
package events

import (
	"testing"
	"time"
)

// TestStoreAppendRead verifies append order is preserved and the category,
// level, since, and limit filters behave.
func TestStoreAppendRead(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()

	base := time.Now().UTC().Add(-time.Hour)
	fixtures := []Event{
		{Timestamp: base, Level: LevelInfo, Category: "tunnel", Message: "starting tunnel"},
		{Timestamp: base.Add(time.Minute), Level: LevelSuccess, Category: "tunnel", Message: "tunnel open"},
		{Timestamp: base.Add(2 * time.Minute), Level: LevelError, Category: "scan", Message: "scan failed"},
		{Timestamp: base.Add(3 * time.Minute), Level: LevelWarning, Category: "tunnel", Message: "tunnel closed"},
	}
	for _, evt := range fixtures {
		if err := s.Append(evt); err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.Read(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 4 {
		t.Fatalf("expected 4 events, got %d", len(all))
	}
	if all[0].Message != "starting tunnel" || all[3].Message != "tunnel closed" {
		t.Fatalf("append order lost: %+v", all)
	}

	tunnelOnly, err := s.Read(Query{Category: "tunnel"})
	if err != nil {
		t.Fatal(err)
	}
	if len(tunnelOnly) != 3 {
		t.Fatalf("expected 3 tunnel events, got %d", len(tunnelOnly))
	}

	errorsOnly, err := s.Read(Query{Level: LevelError})
	if err != nil {
		t.Fatal(err)
	}
	if len(errorsOnly) != 1 || errorsOnly[0].Category != "scan" {
		t.Fatalf("unexpected error events: %+v", errorsOnly)
	}

	recent, err := s.Read(Query{Since: base.Add(90 * time.Second)})
	if err != nil {
		t.Fatal(err)
	}
	if len(recent) != 2 {
		t.Fatalf("expected 2 recent events, got %d", len(recent))
	}

	limited, err := s.Read(Query{Limit: 2})
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 || limited[1].Message != "tunnel closed" {
		t.Fatalf("limit must keep the newest events, got %+v", limited)
	}
}

// TestStoreReadMissing verifies a journal that was never written reads as
// empty, not as an error.
func TestStoreReadMissing(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	s := NewStore()
	out, err := s.Read(Query{})
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 0 {
		t.Fatalf("expected no events, got %d", len(out))
	}
}

// TestBusFanOut verifies every subscriber receives a published event and that
// events carry the level, category, and message they were published with.
func TestBusFanOut(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	b := NewBus()
	sub1 := b.Subscribe()
	sub2 := b.Subscribe()

	b.Publish(LevelSuccess, "tunnel", "tunnel open")

	for i, sub := range []<-chan Event{sub1, sub2} {
		select {
		case evt := <-sub:
			if evt.Level != LevelSuccess || evt.Category != "tunnel" || evt.Message != "tunnel open" {
				t.Fatalf("subscriber %d got %+v", i, evt)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d never received the event", i)
		}
	}

	// The publish must also have been journaled.
	journaled, err := NewStore().Read(Query{Category: "tunnel"})
	if err != nil {
		t.Fatal(err)
	}
	if len(journaled) != 1 {
		t.Fatalf("expected 1 journaled event, got %d", len(journaled))
	}
}

// TestBusSlowSubscriber verifies a full subscriber buffer drops events for
// that subscriber instead of blocking the publisher.
func TestBusSlowSubscriber(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	b := NewBus()
	sub := b.Subscribe()

	// Overfill the subscriber's buffer; Publish must return promptly every
	// time.
	for i := 0; i < 200; i++ {
		b.Publish(LevelInfo, "scan", "line")
	}

	n := 0
	for {
		select {
		case <-sub:
			n++
		default:
			if n == 0 || n > 64 {
				t.Fatalf("expected between 1 and 64 buffered events, got %d", n)
			}
			return
		}
	}
}

// TestNilBusPublish verifies cores can run without any bus attached.
func TestNilBusPublish(t *testing.T) {
	var b *Bus
	b.Publish(LevelInfo, "tunnel", "ignored") // must not panic
}

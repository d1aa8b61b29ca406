package stream

import (
	"testing"

	"github.com/logwell/logwell/internal/domain"
)

func TestHubDeliversOnlyToMatchingProject(t *testing.T) {
	hub := NewHub()
	var gotA, gotB []string
	hub.Subscribe("proj-a", func(entry domain.Log) { gotA = append(gotA, entry.ID) })
	hub.Subscribe("proj-b", func(entry domain.Log) { gotB = append(gotB, entry.ID) })

	hub.Emit(domain.Log{ID: "1", ProjectID: "proj-a"})
	hub.Emit(domain.Log{ID: "2", ProjectID: "proj-b"})
	hub.Emit(domain.Log{ID: "3", ProjectID: "proj-c"})

	if len(gotA) != 1 || gotA[0] != "1" {
		t.Fatalf("proj-a received %v", gotA)
	}
	if len(gotB) != 1 || gotB[0] != "2" {
		t.Fatalf("proj-b received %v", gotB)
	}
}

func TestUnsubscribeIsIdempotent(t *testing.T) {
	hub := NewHub()
	first := hub.Subscribe("proj", func(domain.Log) {})
	second := hub.Subscribe("proj", func(domain.Log) {})
	if got := hub.ListenerCount("proj"); got != 2 {
		t.Fatalf("expected 2 listeners, got %d", got)
	}

	first.Unsubscribe()
	first.Unsubscribe()
	if got := hub.ListenerCount("proj"); got != 1 {
		t.Fatalf("double unsubscribe removed another listener: %d left", got)
	}

	second.Unsubscribe()
	if got := hub.ListenerCount("proj"); got != 0 {
		t.Fatalf("expected no listeners, got %d", got)
	}
}

func TestHandlerMayUnsubscribeDuringEmit(t *testing.T) {
	hub := NewHub()
	var sub *Subscription
	calls := 0
	sub = hub.Subscribe("proj", func(domain.Log) {
		calls++
		sub.Unsubscribe()
	})

	hub.Emit(domain.Log{ProjectID: "proj"})
	hub.Emit(domain.Log{ProjectID: "proj"})
	if calls != 1 {
		t.Fatalf("expected one delivery, got %d", calls)
	}
}

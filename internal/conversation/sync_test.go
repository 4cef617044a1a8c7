package conversation

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

type fakePatcher struct {
	mu      sync.Mutex
	err     error
	patches []ConversationPatch
}

func (f *fakePatcher) UpdateConversation(_ context.Context, _ string, patch ConversationPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	return f.err
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seededCache() *ListCache {
	c := NewListCache()
	c.Set([]Conversation{
		{ID: "c1", Title: "first", DatasetCount: 2},
		{ID: "c2", Title: "", IsPinned: true},
		{ID: "c3", Title: "third"},
	})
	return c
}

func TestPatchTitlePreservesOrderAndFields(t *testing.T) {
	cache := seededCache()
	s := NewSynchronizer(cache, nil, quietLogger())

	s.PatchTitle("c2", "Revenue by region")

	list := cache.List()
	if list[0].ID != "c1" || list[1].ID != "c2" || list[2].ID != "c3" {
		t.Fatalf("order changed: %+v", list)
	}
	if list[1].Title != "Revenue by region" || !list[1].IsPinned {
		t.Fatalf("unexpected entry: %+v", list[1])
	}
	if list[0].Title != "first" || list[0].DatasetCount != 2 {
		t.Fatalf("neighbour modified: %+v", list[0])
	}
}

func TestPatchTitleMissingIsNoOp(t *testing.T) {
	cache := seededCache()
	s := NewSynchronizer(cache, nil, quietLogger())

	var notified int
	cache.Subscribe(func([]Conversation) { notified++ })

	s.PatchTitle("missing", "x")
	s.PatchTitle("missing", "x")

	if notified != 0 || cache.Len() != 3 {
		t.Fatalf("cache changed: notified=%d len=%d", notified, cache.Len())
	}
}

func TestPatchTitleIdempotent(t *testing.T) {
	cache := seededCache()
	s := NewSynchronizer(cache, nil, quietLogger())

	var notified int
	cache.Subscribe(func([]Conversation) { notified++ })

	s.PatchTitle("c1", "renamed")
	s.PatchTitle("c1", "renamed")
	if notified != 1 {
		t.Fatalf("notified = %d, want 1", notified)
	}
}

func TestApplyTitleFailureLeavesCache(t *testing.T) {
	cache := seededCache()
	remote := &fakePatcher{err: errors.New("boom")}
	s := NewSynchronizer(cache, remote, quietLogger())

	if err := s.ApplyTitle(context.Background(), "c1", "new"); err == nil {
		t.Fatal("expected error")
	}
	if conv, _ := cache.Get("c1"); conv.Title != "first" {
		t.Fatalf("title = %q, want unchanged", conv.Title)
	}

	remote.err = nil
	if err := s.ApplyTitle(context.Background(), "c1", "new"); err != nil {
		t.Fatal(err)
	}
	if conv, _ := cache.Get("c1"); conv.Title != "new" {
		t.Fatalf("title = %q, want new", conv.Title)
	}
	if len(remote.patches) != 2 || remote.patches[1].Title == nil || *remote.patches[1].Title != "new" {
		t.Fatalf("unexpected patches: %+v", remote.patches)
	}
}

func TestSetPinnedRollsBack(t *testing.T) {
	cache := seededCache()
	remote := &fakePatcher{err: errors.New("offline")}
	s := NewSynchronizer(cache, remote, quietLogger())

	var states []bool
	cache.Subscribe(func(list []Conversation) { states = append(states, list[0].IsPinned) })

	if err := s.SetPinned(context.Background(), "c1", true); err == nil {
		t.Fatal("expected error")
	}
	if len(states) != 2 || !states[0] || states[1] {
		t.Fatalf("expected optimistic true then rollback false, got %v", states)
	}
	if conv, _ := cache.Get("c1"); conv.IsPinned {
		t.Fatal("pin not rolled back")
	}
}

func TestSetPinnedSuccess(t *testing.T) {
	cache := seededCache()
	remote := &fakePatcher{}
	s := NewSynchronizer(cache, remote, quietLogger())

	if err := s.SetPinned(context.Background(), "c3", true); err != nil {
		t.Fatal(err)
	}
	if conv, _ := cache.Get("c3"); !conv.IsPinned {
		t.Fatal("pin not applied")
	}
	if p := remote.patches[0]; p.IsPinned == nil || !*p.IsPinned || p.Title != nil {
		t.Fatalf("unexpected patch: %+v", p)
	}
}

func TestTrackInsertsOnce(t *testing.T) {
	cache := seededCache()
	s := NewSynchronizer(cache, nil, quietLogger())

	s.Track(Conversation{ID: "c4"})
	s.Track(Conversation{ID: "c4", Title: "dup"})

	list := cache.List()
	if len(list) != 4 || list[0].ID != "c4" || list[0].Title != "" {
		t.Fatalf("unexpected list: %+v", list)
	}
}

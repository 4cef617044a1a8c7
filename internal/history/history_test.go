package history

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/wilbur182/datachat/internal/conversation"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "nested", "history.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestConversationsKeepOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	updated := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)

	convs := []conversation.Conversation{
		{ID: "c2", Title: "second", IsPinned: true, DatasetCount: 1, UpdatedAt: updated},
		{ID: "c1", Title: "first"},
	}
	if err := s.SaveConversations(ctx, convs); err != nil {
		t.Fatalf("SaveConversations: %v", err)
	}

	got, err := s.LoadConversations(ctx)
	if err != nil {
		t.Fatalf("LoadConversations: %v", err)
	}
	if len(got) != 2 || got[0].ID != "c2" || !got[0].IsPinned || !got[0].UpdatedAt.Equal(updated) || got[1].ID != "c1" {
		t.Fatalf("unexpected conversations: %+v", got)
	}

	// saving again replaces the list
	if err := s.SaveConversations(ctx, convs[1:]); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.LoadConversations(ctx); len(got) != 1 {
		t.Fatalf("expected replaced list, got %+v", got)
	}
}

func TestMessagesWithTraces(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msgs := []conversation.Message{
		{ID: "m1", Role: conversation.RoleUser, Content: "rows?", CreatedAt: time.Unix(10, 0).UTC()},
		{
			ID:        "m2",
			Role:      conversation.RoleAssistant,
			Content:   "There are 3.",
			Reasoning: "counted",
			SQLExecutions: []conversation.SQLExecution{{
				Query:     "SELECT count(*) FROM t",
				Columns:   []string{"count"},
				Rows:      [][]any{{float64(3)}},
				TotalRows: 1,
			}},
		},
	}
	if err := s.SaveMessages(ctx, "c1", msgs); err != nil {
		t.Fatalf("SaveMessages: %v", err)
	}

	got, err := s.LoadMessages(ctx, "c1")
	if err != nil {
		t.Fatalf("LoadMessages: %v", err)
	}
	if len(got) != 2 || got[0].ID != "m1" || got[1].Reasoning != "counted" {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if tr := got[1].SQLExecutions; len(tr) != 1 || tr[0].Rows[0][0] != float64(3) {
		t.Fatalf("traces not restored: %+v", tr)
	}
	if !got[0].CreatedAt.Equal(time.Unix(10, 0)) || !got[1].CreatedAt.IsZero() {
		t.Fatalf("timestamps not restored: %v %v", got[0].CreatedAt, got[1].CreatedAt)
	}

	if err := s.DeleteConversation(ctx, "c1"); err != nil {
		t.Fatal(err)
	}
	if got, _ := s.LoadMessages(ctx, "c1"); len(got) != 0 {
		t.Fatalf("messages survived delete: %+v", got)
	}
}

type fakeRemote struct {
	convs    []conversation.Conversation
	msgs     map[string][]conversation.Message
	err      error
	msgCalls int
}

func (f *fakeRemote) ListConversations(ctx context.Context) ([]conversation.Conversation, error) {
	return f.convs, f.err
}

func (f *fakeRemote) ListMessages(ctx context.Context, id string) ([]conversation.Message, error) {
	f.msgCalls++
	if f.err != nil {
		return nil, f.err
	}
	return f.msgs[id], nil
}

func TestLoaderCacheThenRemoteThenMirror(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	v1 := time.Unix(100, 0)

	remote := &fakeRemote{msgs: map[string][]conversation.Message{
		"c1": {{ID: "m1", Role: conversation.RoleUser, Content: "hi"}},
	}}
	l := NewLoader(remote, s, 8, quietLogger())
	conv := conversation.Conversation{ID: "c1", UpdatedAt: v1}

	msgs, src, err := l.Messages(ctx, conv)
	if err != nil || src != SourceRemote || len(msgs) != 1 {
		t.Fatalf("first load: %v %v %v", msgs, src, err)
	}

	_, src, _ = l.Messages(ctx, conv)
	if src != SourceCache || remote.msgCalls != 1 {
		t.Fatalf("second load should hit the cache: src=%v calls=%d", src, remote.msgCalls)
	}

	// newer version on the server, but it is unreachable
	remote.err = errors.New("connection refused")
	conv.UpdatedAt = v1.Add(time.Hour)
	msgs, src, err = l.Messages(ctx, conv)
	if err != nil || src != SourceOffline || msgs[0].Content != "hi" {
		t.Fatalf("offline load: %v %v %v", msgs, src, err)
	}

	if _, _, err := l.Messages(ctx, conversation.Conversation{ID: "unknown"}); err == nil {
		t.Fatal("expected error with nothing mirrored")
	}
}

func TestLoaderConversationsFallback(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	_ = s.SaveConversations(ctx, []conversation.Conversation{{ID: "c9", Title: "saved"}})

	remote := &fakeRemote{err: errors.New("down")}
	l := NewLoader(remote, s, 8, quietLogger())

	convs, src, err := l.Conversations(ctx)
	if err != nil || src != SourceOffline || convs[0].ID != "c9" {
		t.Fatalf("got %v %v %v", convs, src, err)
	}

	noMirror := NewLoader(remote, nil, 8, quietLogger())
	if _, _, err := noMirror.Conversations(ctx); err == nil {
		t.Fatal("expected error without a mirror")
	}
}

func TestMirrorWritesSettledState(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	list := conversation.NewListCache()
	store := conversation.NewStore()
	convID := "c1"

	m := NewMirror(s, quietLogger())
	m.WatchList(list)
	m.WatchStore(store, func(uint64) string { return convID })
	defer m.Close()

	list.Set([]conversation.Conversation{{ID: "c1", Title: "t"}})
	store.AppendMessage(conversation.Message{ID: "u1", Role: conversation.RoleUser, Content: "q"})
	store.AppendMessage(conversation.Message{ID: "u2", Role: conversation.RoleUser, Content: "failed", SendFailed: true})

	// a turn in flight must not be mirrored
	store.SetUIPhase(conversation.PhaseThinking)
	store.AppendMessage(conversation.Message{ID: "a1", Role: conversation.RoleAssistant})

	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	msgs, _ := s.LoadMessages(ctx, "c1")
	if len(msgs) != 1 || msgs[0].ID != "u1" {
		t.Fatalf("unexpected mirrored messages: %+v", msgs)
	}
	if convs, _ := s.LoadConversations(ctx); len(convs) != 1 {
		t.Fatalf("list not mirrored: %+v", convs)
	}

	store.SetUIPhase(conversation.PhaseIdle)
	if err := m.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if msgs, _ := s.LoadMessages(ctx, "c1"); len(msgs) != 2 {
		t.Fatalf("settled state not mirrored: %+v", msgs)
	}
}

func TestMirrorRunFlushesOnCancel(t *testing.T) {
	s := openTestStore(t)
	list := conversation.NewListCache()

	m := NewMirror(s, quietLogger())
	m.WatchList(list)
	defer m.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	list.Set([]conversation.Conversation{{ID: "c1"}, {ID: "c2"}})
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	convs, err := s.LoadConversations(context.Background())
	if err != nil || len(convs) != 2 {
		t.Fatalf("list not flushed: %v %v", convs, err)
	}
}

func TestMirrorSkipsUnboundGeneration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := s.SaveMessages(ctx, "c2", []conversation.Message{
		{ID: "x1", Role: conversation.RoleUser, Content: "q"},
		{ID: "x2", Role: conversation.RoleAssistant, Content: "a"},
	}); err != nil {
		t.Fatal(err)
	}

	store := conversation.NewStore()
	store.AppendMessage(conversation.Message{ID: "u1", Role: conversation.RoleUser, Content: "c1 question"})
	bound := map[uint64]string{store.Generation(): "c1"}

	m := NewMirror(s, quietLogger())
	m.WatchStore(store, func(gen uint64) string { return bound[gen] })
	defer m.Close()

	// switching to c2: the cleared store belongs to nobody until c2 loads
	gen := store.Reset()
	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if msgs, _ := s.LoadMessages(ctx, "c2"); len(msgs) != 2 {
		t.Fatalf("c2 history erased by the switch: %+v", msgs)
	}

	bound[gen] = "c2"
	store.Replace([]conversation.Message{
		{ID: "x1", Role: conversation.RoleUser, Content: "q"},
		{ID: "x2", Role: conversation.RoleAssistant, Content: "a"},
	})
	store.Reset()

	if err := m.Flush(ctx); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if msgs, _ := s.LoadMessages(ctx, "c2"); len(msgs) != 2 {
		t.Fatalf("c2 history lost: %+v", msgs)
	}
	if msgs, _ := s.LoadMessages(ctx, "c1"); len(msgs) != 0 {
		t.Fatalf("c1 should not be mirrored without a settled snapshot: %+v", msgs)
	}
}

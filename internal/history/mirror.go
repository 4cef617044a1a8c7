package history

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/wilbur182/datachat/internal/conversation"
)

// Mirror writes list-cache and store changes through to a Store from a
// single background goroutine. Observers only record the latest state, so
// the controller never waits on disk.
type Mirror struct {
	store  *Store
	logger *slog.Logger

	mu      sync.Mutex
	list    []conversation.Conversation
	listSet bool
	msgs    map[string][]conversation.Message
	unsubs  []func()

	wake chan struct{}
}

// NewMirror creates a mirror writing to store.
func NewMirror(store *Store, logger *slog.Logger) *Mirror {
	if logger == nil {
		logger = slog.Default()
	}
	return &Mirror{
		store:  store,
		logger: logger,
		msgs:   make(map[string][]conversation.Message),
		wake:   make(chan struct{}, 1),
	}
}

// WatchList mirrors every change of cache.
func (m *Mirror) WatchList(cache *conversation.ListCache) {
	unsub := cache.Subscribe(func(list []conversation.Conversation) {
		m.mu.Lock()
		m.list = list
		m.listSet = true
		m.mu.Unlock()
		m.signal()
	})
	m.addUnsub(unsub)
}

// WatchStore mirrors the active conversation whenever it settles: no turn
// outstanding and the conversation id known. conversationID returns the id
// bound to a store generation, or "" while the contents at that generation
// belong to no conversation yet. Failed sends never reached the server and
// are not mirrored.
func (m *Mirror) WatchStore(store *conversation.Store, conversationID func(generation uint64) string) {
	unsub := store.Subscribe(func(snap conversation.Snapshot) {
		if snap.Session.Phase != conversation.PhaseIdle || snap.UIPhase != conversation.PhaseIdle {
			return
		}
		id := conversationID(snap.Generation)
		if id == "" {
			return
		}

		msgs := make([]conversation.Message, 0, len(snap.Messages))
		for _, msg := range snap.Messages {
			if !msg.SendFailed {
				msgs = append(msgs, msg)
			}
		}

		m.mu.Lock()
		m.msgs[id] = msgs
		m.mu.Unlock()
		m.signal()
	})
	m.addUnsub(unsub)
}

func (m *Mirror) addUnsub(fn func()) {
	m.mu.Lock()
	m.unsubs = append(m.unsubs, fn)
	m.mu.Unlock()
}

func (m *Mirror) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// Run writes pending changes until ctx is done, then flushes once more.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			if err := m.Flush(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("final history flush failed", "err", err)
			}
			return ctx.Err()
		case <-m.wake:
			if err := m.Flush(ctx); err != nil {
				m.logger.Warn("history flush failed", "err", err)
			}
		}
	}
}

// Flush writes everything recorded so far.
func (m *Mirror) Flush(ctx context.Context) error {
	m.mu.Lock()
	list, listSet := m.list, m.listSet
	m.list, m.listSet = nil, false
	msgs := m.msgs
	m.msgs = make(map[string][]conversation.Message)
	m.mu.Unlock()

	var errs []error
	if listSet {
		if err := m.store.SaveConversations(ctx, list); err != nil {
			errs = append(errs, err)
		}
	}
	for id, history := range msgs {
		if err := m.store.SaveMessages(ctx, id, history); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close stops observing. Pending changes stay until the next Flush.
func (m *Mirror) Close() {
	m.mu.Lock()
	unsubs := m.unsubs
	m.unsubs = nil
	m.mu.Unlock()

	for _, fn := range unsubs {
		fn()
	}
}

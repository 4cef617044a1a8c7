package conversation

import (
	"context"
	"fmt"
	"log/slog"
)

// Patcher applies a conversation patch on the remote side.
type Patcher interface {
	UpdateConversation(ctx context.Context, id string, patch ConversationPatch) error
}

// Synchronizer is the only writer of conversation fields in the ListCache.
// Every operation tolerates the cache not holding the target conversation.
type Synchronizer struct {
	cache  *ListCache
	remote Patcher
	logger *slog.Logger
}

// NewSynchronizer creates a synchronizer over cache. remote may be nil for
// local-only use.
func NewSynchronizer(cache *ListCache, remote Patcher, logger *slog.Logger) *Synchronizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Synchronizer{cache: cache, remote: remote, logger: logger}
}

// Cache returns the list cache this synchronizer writes to.
func (s *Synchronizer) Cache() *ListCache {
	return s.cache
}

// PatchTitle replaces the title of id in the cache, leaving every other
// field and the list order alone. It never panics into the caller; it is
// called from background tasks.
func (s *Synchronizer) PatchTitle(id, title string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("title patch panicked", "conversation", id, "panic", r)
		}
	}()
	if !s.cache.Patch(id, func(c *Conversation) { c.Title = title }) {
		s.logger.Debug("title patch skipped", "conversation", id)
	}
}

// ApplyTitle sends the title to the remote side and patches the cache only
// when that succeeds. On failure the cache is left untouched.
func (s *Synchronizer) ApplyTitle(ctx context.Context, id, title string) error {
	if s.remote != nil {
		if err := s.remote.UpdateConversation(ctx, id, ConversationPatch{Title: &title}); err != nil {
			return fmt.Errorf("datachat: patch title: %w", err)
		}
	}
	s.PatchTitle(id, title)
	return nil
}

// SetPinned writes the pin state locally first and restores the previous
// value if the remote update fails.
func (s *Synchronizer) SetPinned(ctx context.Context, id string, pinned bool) error {
	prev, ok := s.cache.Get(id)
	s.cache.Patch(id, func(c *Conversation) { c.IsPinned = pinned })

	if s.remote == nil {
		return nil
	}
	if err := s.remote.UpdateConversation(ctx, id, ConversationPatch{IsPinned: &pinned}); err != nil {
		if ok {
			s.cache.Patch(id, func(c *Conversation) { c.IsPinned = prev.IsPinned })
		}
		s.logger.Warn("pin update failed, rolled back", "conversation", id, "err", err)
		return fmt.Errorf("datachat: set pinned: %w", err)
	}
	return nil
}

// Track inserts a conversation created lazily by a send so other surfaces
// see it before the next list refresh.
func (s *Synchronizer) Track(conv Conversation) {
	if s.cache.Insert(conv) {
		s.logger.Debug("conversation tracked", "conversation", conv.ID)
	}
}

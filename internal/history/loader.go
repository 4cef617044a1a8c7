package history

import (
	"context"
	"log/slog"

	"github.com/wilbur182/datachat/internal/cache"
	"github.com/wilbur182/datachat/internal/conversation"
)

// Source says where a history came from.
type Source int

const (
	SourceCache Source = iota
	SourceRemote
	SourceOffline
)

func (s Source) String() string {
	switch s {
	case SourceCache:
		return "cache"
	case SourceRemote:
		return "remote"
	default:
		return "offline"
	}
}

// Remote is the server side of history.
type Remote interface {
	ListConversations(ctx context.Context) ([]conversation.Conversation, error)
	ListMessages(ctx context.Context, conversationID string) ([]conversation.Message, error)
}

// Loader resolves histories from the in-memory cache, then the server, then
// the local mirror.
type Loader struct {
	remote Remote
	store  *Store
	cache  *cache.Cache[[]conversation.Message]
	logger *slog.Logger
}

// NewLoader creates a loader. store may be nil when mirroring is disabled.
func NewLoader(remote Remote, store *Store, cacheSize int, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		remote: remote,
		store:  store,
		cache:  cache.New[[]conversation.Message](cacheSize),
		logger: logger,
	}
}

// Messages loads the history of conv. Remote failures fall back to the
// mirror when it holds anything for conv.
func (l *Loader) Messages(ctx context.Context, conv conversation.Conversation) ([]conversation.Message, Source, error) {
	if msgs, ok := l.cache.Get(conv.ID, conv.UpdatedAt); ok {
		return msgs, SourceCache, nil
	}

	msgs, err := l.remote.ListMessages(ctx, conv.ID)
	if err == nil {
		l.cache.Set(conv.ID, msgs, conv.UpdatedAt)
		if l.store != nil {
			if err := l.store.SaveMessages(ctx, conv.ID, msgs); err != nil {
				l.logger.Warn("history mirror write failed", "conversation", conv.ID, "err", err)
			}
		}
		return msgs, SourceRemote, nil
	}

	if l.store != nil {
		offline, serr := l.store.LoadMessages(ctx, conv.ID)
		if serr == nil && len(offline) > 0 {
			l.logger.Info("serving mirrored history", "conversation", conv.ID, "err", err)
			return offline, SourceOffline, nil
		}
	}
	return nil, SourceRemote, err
}

// Conversations loads the conversation list, falling back to the mirror.
func (l *Loader) Conversations(ctx context.Context) ([]conversation.Conversation, Source, error) {
	convs, err := l.remote.ListConversations(ctx)
	if err == nil {
		for _, c := range convs {
			l.cache.InvalidateIfChanged(c.ID, c.UpdatedAt)
		}
		return convs, SourceRemote, nil
	}

	if l.store != nil {
		offline, serr := l.store.LoadConversations(ctx)
		if serr == nil && len(offline) > 0 {
			l.logger.Info("serving mirrored conversation list", "err", err)
			return offline, SourceOffline, nil
		}
	}
	return nil, SourceRemote, err
}

// Invalidate drops the cached history of id, e.g. after new turns were added
// to it locally.
func (l *Loader) Invalidate(id string) {
	if id != "" {
		l.cache.Delete(id)
	}
}

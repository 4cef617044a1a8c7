package conversation

import (
	"errors"
	"fmt"
	"sync"
)

// ErrSessionActive is returned by BeginStreaming when a session is already
// in progress. Callers treat it as a broken serialization guarantee.
var ErrSessionActive = errors.New("conversation: streaming session already active")

// Phase is the progress of an assistant turn.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseThinking
	PhaseStreaming
)

func (p Phase) String() string {
	switch p {
	case PhaseThinking:
		return "thinking"
	case PhaseStreaming:
		return "streaming"
	default:
		return "idle"
	}
}

// StreamingSession tracks the single in-flight assistant message. The
// message itself stays empty in the list until finalized; its text lives
// here.
type StreamingSession struct {
	ActiveMessageID string
	BufferedText    string
	Phase           Phase
}

// Snapshot is a consistent copy of the store handed to observers.
type Snapshot struct {
	Messages   []Message
	Session    StreamingSession
	UIPhase    Phase
	Generation uint64
}

// Store is the authoritative record of the active conversation. Every
// mutation is atomic and observers are notified after the lock is released.
type Store struct {
	mu         sync.RWMutex
	messages   []Message
	session    StreamingSession
	uiPhase    Phase
	generation uint64

	obsMu     sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{observers: make(map[int]func(Snapshot))}
}

// Subscribe registers fn to receive a snapshot after every mutation.
// The returned function removes the subscription.
func (s *Store) Subscribe(fn func(Snapshot)) func() {
	s.obsMu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		delete(s.observers, id)
		s.obsMu.Unlock()
	}
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() Snapshot {
	msgs := make([]Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		Messages:   msgs,
		Session:    s.session,
		UIPhase:    s.uiPhase,
		Generation: s.generation,
	}
}

// mutate runs fn under the write lock and notifies observers if fn reports
// a change.
func (s *Store) mutate(fn func() bool) bool {
	s.mu.Lock()
	changed := fn()
	var snap Snapshot
	if changed {
		snap = s.snapshotLocked()
	}
	s.mu.Unlock()

	if changed {
		s.notify(snap)
	}
	return changed
}

func (s *Store) notify(snap Snapshot) {
	s.obsMu.Lock()
	fns := make([]func(Snapshot), 0, len(s.observers))
	for _, fn := range s.observers {
		fns = append(fns, fn)
	}
	s.obsMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// Messages returns a copy of the message list.
func (s *Store) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Message looks up a message by id.
func (s *Store) Message(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i := s.indexLocked(id); i >= 0 {
		return s.messages[i], true
	}
	return Message{}, false
}

// Index returns the position of the message with id, or -1.
func (s *Store) Index(id string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.indexLocked(id)
}

func (s *Store) indexLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

// Session returns the current streaming session.
func (s *Store) Session() StreamingSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

// UIPhase returns the phase renderers observe: thinking from dispatch until
// the first token, streaming while tokens arrive, idle otherwise.
func (s *Store) UIPhase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.uiPhase
}

// SetUIPhase updates the renderer-facing phase.
func (s *Store) SetUIPhase(p Phase) {
	s.mutate(func() bool {
		if s.uiPhase == p {
			return false
		}
		s.uiPhase = p
		return true
	})
}

// Generation is bumped by Reset so observers can detect a conversation switch.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// AppendMessage appends msg to the tail. A duplicate id is a programming
// error and panics.
func (s *Store) AppendMessage(msg Message) {
	s.mutate(func() bool {
		if s.indexLocked(msg.ID) >= 0 {
			panic(fmt.Sprintf("conversation: duplicate message id %q", msg.ID))
		}
		s.messages = append(s.messages, msg)
		return true
	})
}

// RemoveMessage removes the first message with id. Absent ids are a no-op.
func (s *Store) RemoveMessage(id string) bool {
	return s.mutate(func() bool {
		i := s.indexLocked(id)
		if i < 0 {
			return false
		}
		s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
		return true
	})
}

// MarkFailed flags a user message whose dispatch failed.
func (s *Store) MarkFailed(id string) bool {
	return s.mutate(func() bool {
		i := s.indexLocked(id)
		if i < 0 || s.messages[i].Role != RoleUser || s.messages[i].SendFailed {
			return false
		}
		s.messages[i].SendFailed = true
		return true
	})
}

// TruncateFrom discards the message with id and everything after it.
func (s *Store) TruncateFrom(id string) bool {
	return s.mutate(func() bool {
		i := s.indexLocked(id)
		if i < 0 {
			return false
		}
		s.messages = s.messages[:i:i]
		return true
	})
}

// Replace swaps in a loaded history. Any streaming session is discarded.
func (s *Store) Replace(msgs []Message) {
	s.mutate(func() bool {
		s.messages = make([]Message, len(msgs))
		copy(s.messages, msgs)
		s.session = StreamingSession{}
		s.uiPhase = PhaseIdle
		return true
	})
}

// BeginStreaming opens the session for messageID. It fails with
// ErrSessionActive unless the session is idle.
func (s *Store) BeginStreaming(messageID string) error {
	var err error
	s.mutate(func() bool {
		if s.session.Phase != PhaseIdle {
			err = ErrSessionActive
			return false
		}
		s.session = StreamingSession{ActiveMessageID: messageID, Phase: PhaseThinking}
		return true
	})
	return err
}

// AppendToken adds delta to the buffer. It is ignored when no session is
// open so stray events after a cancel cannot land anywhere.
func (s *Store) AppendToken(delta string) bool {
	return s.mutate(func() bool {
		if s.session.Phase == PhaseIdle {
			return false
		}
		s.session.Phase = PhaseStreaming
		s.session.BufferedText += delta
		return true
	})
}

// FinalizeStreaming commits the buffer into the active message, merges
// extra onto it and closes the session.
func (s *Store) FinalizeStreaming(extra Finalization) bool {
	return s.mutate(func() bool {
		if s.session.Phase == PhaseIdle {
			return false
		}
		if i := s.indexLocked(s.session.ActiveMessageID); i >= 0 {
			msg := &s.messages[i]
			msg.Content = s.session.BufferedText
			if len(extra.SQLExecutions) > 0 {
				msg.SQLExecutions = extra.SQLExecutions
			}
			if extra.Reasoning != "" {
				msg.Reasoning = extra.Reasoning
			}
		}
		s.session = StreamingSession{}
		return true
	})
}

// FailStreaming discards the buffer and closes the session. The placeholder
// never held committed text, so it is dropped from the list.
func (s *Store) FailStreaming() bool {
	return s.mutate(func() bool {
		if s.session.Phase == PhaseIdle {
			return false
		}
		if i := s.indexLocked(s.session.ActiveMessageID); i >= 0 {
			msg := s.messages[i]
			if msg.Role == RoleAssistant && msg.Content == "" {
				s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
			}
		}
		s.session = StreamingSession{}
		return true
	})
}

// Reset clears all state, discarding any in-flight session, and returns the
// new generation.
func (s *Store) Reset() uint64 {
	var gen uint64
	s.mutate(func() bool {
		s.messages = nil
		s.session = StreamingSession{}
		s.uiPhase = PhaseIdle
		s.generation++
		gen = s.generation
		return true
	})
	return gen
}

// OpenTurn appends the assistant placeholder and opens its session with the
// first delta as one change. It applies only while generation gen is current
// and the UI is still thinking; a cancel or reset that got there first wins
// and OpenTurn reports false. An already open session is ErrSessionActive.
func (s *Store) OpenTurn(gen uint64, placeholder Message, delta string) (bool, error) {
	var err error
	opened := s.mutate(func() bool {
		if s.generation != gen || s.uiPhase != PhaseThinking {
			return false
		}
		if s.session.Phase != PhaseIdle {
			err = ErrSessionActive
			return false
		}
		if s.indexLocked(placeholder.ID) >= 0 {
			panic(fmt.Sprintf("conversation: duplicate message id %q", placeholder.ID))
		}
		s.messages = append(s.messages, placeholder)
		s.session = StreamingSession{ActiveMessageID: placeholder.ID, BufferedText: delta, Phase: PhaseStreaming}
		s.uiPhase = PhaseStreaming
		return true
	})
	return opened, err
}

// AppendAnswer appends msg as the answer of a turn that finished without
// streaming any text. The same guards as OpenTurn apply.
func (s *Store) AppendAnswer(gen uint64, msg Message) bool {
	return s.mutate(func() bool {
		if s.generation != gen || s.uiPhase != PhaseThinking || s.session.Phase != PhaseIdle {
			return false
		}
		if s.indexLocked(msg.ID) >= 0 {
			panic(fmt.Sprintf("conversation: duplicate message id %q", msg.ID))
		}
		s.messages = append(s.messages, msg)
		return true
	})
}

// CancelTurn discards any open session like FailStreaming and returns the UI
// to idle as one change, so observers never see a half cancelled turn.
func (s *Store) CancelTurn() bool {
	return s.mutate(func() bool {
		if s.session.Phase == PhaseIdle && s.uiPhase == PhaseIdle {
			return false
		}
		if s.session.Phase != PhaseIdle {
			if i := s.indexLocked(s.session.ActiveMessageID); i >= 0 {
				msg := s.messages[i]
				if msg.Role == RoleAssistant && msg.Content == "" {
					s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
				}
			}
		}
		s.session = StreamingSession{}
		s.uiPhase = PhaseIdle
		return true
	})
}

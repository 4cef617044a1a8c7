package conversation

import "sync"

// ListCache is the conversation list shared by every surface that shows
// conversations. It is written only through Synchronizer and the list loader.
type ListCache struct {
	mu    sync.RWMutex
	items []Conversation

	obsMu     sync.Mutex
	observers map[int]func([]Conversation)
	nextObs   int
}

// NewListCache creates an empty cache.
func NewListCache() *ListCache {
	return &ListCache{observers: make(map[int]func([]Conversation))}
}

// Subscribe registers fn to receive the list after every change.
func (c *ListCache) Subscribe(fn func([]Conversation)) func() {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	return func() {
		c.obsMu.Lock()
		delete(c.observers, id)
		c.obsMu.Unlock()
	}
}

// List returns a copy of the cached conversations in display order.
func (c *ListCache) List() []Conversation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.copyLocked()
}

func (c *ListCache) copyLocked() []Conversation {
	out := make([]Conversation, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of cached conversations.
func (c *ListCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Get returns the conversation with id.
func (c *ListCache) Get(id string) (Conversation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, conv := range c.items {
		if conv.ID == id {
			return conv, true
		}
	}
	return Conversation{}, false
}

// Set replaces the whole list, keeping the given order.
func (c *ListCache) Set(items []Conversation) {
	c.update(func() bool {
		c.items = make([]Conversation, len(items))
		copy(c.items, items)
		return true
	})
}

// Insert adds conv at the head unless a conversation with the same id is
// already cached.
func (c *ListCache) Insert(conv Conversation) bool {
	return c.update(func() bool {
		for _, existing := range c.items {
			if existing.ID == conv.ID {
				return false
			}
		}
		c.items = append([]Conversation{conv}, c.items...)
		return true
	})
}

// Remove drops the conversation with id.
func (c *ListCache) Remove(id string) bool {
	return c.update(func() bool {
		for i := range c.items {
			if c.items[i].ID == id {
				c.items = append(c.items[:i:i], c.items[i+1:]...)
				return true
			}
		}
		return false
	})
}

// Patch applies fn to the conversation with id in place. Missing ids are a
// no-op; order and the other entries are untouched.
func (c *ListCache) Patch(id string, fn func(*Conversation)) bool {
	return c.update(func() bool {
		for i := range c.items {
			if c.items[i].ID == id {
				before := c.items[i]
				fn(&c.items[i])
				return before != c.items[i]
			}
		}
		return false
	})
}

func (c *ListCache) update(fn func() bool) bool {
	c.mu.Lock()
	changed := fn()
	var items []Conversation
	if changed {
		items = c.copyLocked()
	}
	c.mu.Unlock()

	if changed {
		c.obsMu.Lock()
		fns := make([]func([]Conversation), 0, len(c.observers))
		for _, fn := range c.observers {
			fns = append(fns, fn)
		}
		c.obsMu.Unlock()
		for _, fn := range fns {
			fn(items)
		}
	}
	return changed
}

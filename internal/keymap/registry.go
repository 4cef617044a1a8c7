// Package keymap maps keys to command ids per focus context.
package keymap

import (
	"sort"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// GlobalContext holds bindings active in every context.
const GlobalContext = "global"

// Command is a registered command handler.
type Command struct {
	ID      string
	Name    string
	Context string
	Handler func() tea.Cmd
}

// Binding maps a key to a command.
type Binding struct {
	Key     string // e.g. "tab", "ctrl+r", "p"
	Command string // command id
	Context string // GlobalContext or a plugin focus context
}

// Registry manages key bindings and command dispatch.
type Registry struct {
	mu            sync.RWMutex
	commands      map[string]Command   // id -> command
	bindings      map[string][]Binding // context -> bindings
	userOverrides map[string]string    // key -> command id
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		commands:      make(map[string]Command),
		bindings:      make(map[string][]Binding),
		userOverrides: make(map[string]string),
	}
}

// RegisterCommand adds or replaces a command.
func (r *Registry) RegisterCommand(cmd Command) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[cmd.ID] = cmd
}

// RegisterBinding adds a key binding.
func (r *Registry) RegisterBinding(b Binding) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bindings[b.Context] = append(r.bindings[b.Context], b)
}

// RegisterPluginBinding satisfies plugin.BindingRegistrar.
func (r *Registry) RegisterPluginBinding(key, command, context string) {
	r.RegisterBinding(Binding{Key: key, Command: command, Context: context})
}

// SetUserOverride binds key to commandID ahead of every context.
func (r *Registry) SetUserOverride(key, commandID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userOverrides[key] = commandID
}

// ApplyOverrides replaces all user overrides, e.g. after a config reload.
func (r *Registry) ApplyOverrides(overrides map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.userOverrides = make(map[string]string, len(overrides))
	for k, v := range overrides {
		r.userOverrides[k] = v
	}
}

// Resolve finds the command id bound to key. Precedence: user override,
// active context, global.
func (r *Registry) Resolve(key tea.KeyMsg, activeContext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.resolveLocked(keyToString(key), activeContext)
}

func (r *Registry) resolveLocked(key, activeContext string) (string, bool) {
	if id, ok := r.userOverrides[key]; ok {
		if _, known := r.commands[id]; known {
			return id, true
		}
	}
	if activeContext != "" && activeContext != GlobalContext {
		if id, ok := r.findInContext(key, activeContext); ok {
			return id, true
		}
	}
	return r.findInContext(key, GlobalContext)
}

func (r *Registry) findInContext(key, context string) (string, bool) {
	for _, b := range r.bindings[context] {
		if b.Key == key {
			if _, ok := r.commands[b.Command]; ok {
				return b.Command, true
			}
		}
	}
	return "", false
}

// Handle dispatches key to the bound command's handler. It returns nil when
// nothing is bound.
func (r *Registry) Handle(key tea.KeyMsg, activeContext string) tea.Cmd {
	r.mu.RLock()
	id, ok := r.resolveLocked(keyToString(key), activeContext)
	cmd := r.commands[id]
	r.mu.RUnlock()

	if !ok || cmd.Handler == nil {
		return nil
	}
	return cmd.Handler()
}

// GetCommand retrieves a command by id.
func (r *Registry) GetCommand(id string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[id]
	return cmd, ok
}

// KeysFor returns the keys that trigger commandID in context, overrides
// first, for footer hints.
func (r *Registry) KeysFor(commandID, context string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var keys []string
	for k, id := range r.userOverrides {
		if id == commandID {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, ctx := range []string{context, GlobalContext} {
		for _, b := range r.bindings[ctx] {
			if b.Command == commandID {
				if _, shadowed := r.userOverrides[b.Key]; !shadowed {
					keys = append(keys, b.Key)
				}
			}
		}
	}
	return keys
}

// BindingsForContext returns a copy of the bindings of context.
func (r *Registry) BindingsForContext(context string) []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Binding, len(r.bindings[context]))
	copy(out, r.bindings[context])
	return out
}

func keyToString(key tea.KeyMsg) string {
	switch key.Type {
	case tea.KeySpace:
		return "space"
	case tea.KeyRunes:
		if key.Alt {
			return "alt+" + string(key.Runes)
		}
		return string(key.Runes)
	default:
		return key.String()
	}
}

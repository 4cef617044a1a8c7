package plugin

import (
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// Registry manages plugin registration and lifecycle.
type Registry struct {
	plugins     []Plugin
	unavailable map[string]string // pluginID -> error reason
	ctx         *Context
	mu          sync.RWMutex
}

// NewRegistry creates a new plugin registry with the given context.
func NewRegistry(ctx *Context) *Registry {
	return &Registry{
		plugins:     make([]Plugin, 0),
		unavailable: make(map[string]string),
		ctx:         ctx,
	}
}

// Register adds a plugin. A plugin whose Init fails is recorded as
// unavailable and left out of the tabs.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.safeInit(p); err != nil {
		r.unavailable[p.ID()] = err.Error()
		if r.ctx != nil && r.ctx.Logger != nil {
			r.ctx.Logger.Debug("plugin unavailable", "id", p.ID(), "reason", err)
		}
		return nil
	}

	r.plugins = append(r.plugins, p)
	return nil
}

// safeInit calls Init with panic recovery.
func (r *Registry) safeInit(p Plugin) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic: %v", rec)
		}
	}()
	return p.Init(r.ctx)
}

// Start starts all registered plugins and returns their initial commands.
func (r *Registry) Start() []tea.Cmd {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cmds := make([]tea.Cmd, 0, len(r.plugins))
	for _, p := range r.plugins {
		if cmd := r.safeStart(p); cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// safeStart calls Start with panic recovery.
func (r *Registry) safeStart(p Plugin) (cmd tea.Cmd) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.ctx != nil && r.ctx.Logger != nil {
				r.ctx.Logger.Error("plugin start panic", "id", p.ID(), "error", rec)
			}
			cmd = nil
		}
	}()
	return p.Start()
}

// Stop stops all registered plugins in reverse order.
func (r *Registry) Stop() {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.plugins) - 1; i >= 0; i-- {
		r.safeStop(r.plugins[i])
	}
}

// safeStop calls Stop with panic recovery.
func (r *Registry) safeStop(p Plugin) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.ctx != nil && r.ctx.Logger != nil {
				r.ctx.Logger.Error("plugin stop panic", "id", p.ID(), "error", rec)
			}
		}
	}()
	p.Stop()
}

// Plugins returns all active plugins.
func (r *Registry) Plugins() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Get returns a plugin by ID, or nil if not found.
func (r *Registry) Get(id string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.ID() == id {
			return p
		}
	}
	return nil
}

// Unavailable returns a map of plugin IDs to their failure reasons.
func (r *Registry) Unavailable() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]string, len(r.unavailable))
	for k, v := range r.unavailable {
		result[k] = v
	}
	return result
}

// SwitchEpoch invalidates pending async results of every plugin, e.g. after
// the active conversation changed, and returns the new epoch.
func (r *Registry) SwitchEpoch() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.ctx == nil {
		return 0
	}
	epoch := r.ctx.BumpEpoch()
	if r.ctx.Logger != nil {
		r.ctx.Logger.Debug("plugin epoch bumped", "epoch", epoch)
	}
	return epoch
}

// Broadcast delivers msg to every plugin, not only the active one, and
// collects their commands.
func (r *Registry) Broadcast(msg tea.Msg) []tea.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()

	var cmds []tea.Cmd
	for i, p := range r.plugins {
		next, cmd := r.safeUpdate(p, msg)
		if next != nil {
			r.plugins[i] = next
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

// Deliver sends msg to the plugin with the given id only.
func (r *Registry) Deliver(id string, msg tea.Msg) tea.Cmd {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, p := range r.plugins {
		if p.ID() != id {
			continue
		}
		next, cmd := r.safeUpdate(p, msg)
		if next != nil {
			r.plugins[i] = next
		}
		return cmd
	}
	return nil
}

// safeUpdate calls Update with panic recovery.
func (r *Registry) safeUpdate(p Plugin, msg tea.Msg) (next Plugin, cmd tea.Cmd) {
	defer func() {
		if rec := recover(); rec != nil {
			if r.ctx != nil && r.ctx.Logger != nil {
				r.ctx.Logger.Error("plugin update panic", "id", p.ID(), "error", rec)
			}
			next, cmd = p, nil
		}
	}()
	return p.Update(msg)
}

// Context returns the current context.
func (r *Registry) Context() *Context {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ctx
}

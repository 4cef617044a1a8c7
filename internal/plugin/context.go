package plugin

import (
	"log/slog"
	"sync/atomic"

	"github.com/wilbur182/datachat/internal/api/client"
	"github.com/wilbur182/datachat/internal/config"
	"github.com/wilbur182/datachat/internal/controller"
	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/history"
)

// BindingRegistrar allows plugins to register key bindings dynamically.
// This is implemented by keymap.Registry.
type BindingRegistrar interface {
	RegisterPluginBinding(key, command, context string)
}

// Context provides shared resources to plugins during initialization.
type Context struct {
	Config     *config.Config
	Controller *controller.Controller
	Sync       *conversation.Synchronizer
	Loader     *history.Loader
	Client     *client.Client
	Events     controller.EventSource // feed source, defaults to Client
	Logger     *slog.Logger
	Keymap     BindingRegistrar

	epoch atomic.Uint64
}

// EventSource returns Events, or Client when unset.
func (c *Context) EventSource() controller.EventSource {
	if c.Events != nil {
		return c.Events
	}
	if c.Client == nil {
		return nil
	}
	return c.Client
}

// List returns the shared conversation-list cache.
func (c *Context) List() *conversation.ListCache {
	return c.Sync.Cache()
}

// CurrentEpoch returns the epoch async results must carry to be applied.
func (c *Context) CurrentEpoch() uint64 {
	return c.epoch.Load()
}

// BumpEpoch invalidates every async result issued so far.
func (c *Context) BumpEpoch() uint64 {
	return c.epoch.Add(1)
}

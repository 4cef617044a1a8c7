package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/wilbur182/datachat/internal/app"
	"github.com/wilbur182/datachat/internal/community"
	"github.com/wilbur182/datachat/internal/config"
	"github.com/wilbur182/datachat/internal/features"
	"github.com/wilbur182/datachat/internal/history"
	"github.com/wilbur182/datachat/internal/keymap"
	"github.com/wilbur182/datachat/internal/logging"
	"github.com/wilbur182/datachat/internal/plugin"
	"github.com/wilbur182/datachat/internal/plugins/chat"
	"github.com/wilbur182/datachat/internal/plugins/conversations"
	"github.com/wilbur182/datachat/internal/styles"
)

const noticeBuffer = 16

func runTUI(cmd *cobra.Command, flags globalFlags, metricsAddr string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if metricsAddr != "" {
		cfg.Metrics.Addr = metricsAddr
	}

	// The TUI owns the terminal, so logs go to a file.
	logger, closer, err := logging.NewFile(cfg.Log.File, logging.ParseLevel(cfg.Log.Level))
	if err != nil {
		return err
	}
	defer closer.Close()

	features.Init(cfg)
	community.RegisterThemes()
	styles.ApplyThemeWithOverrides(cfg.UI.Theme.Name, cfg.UI.Theme.Overrides)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	notices := app.NewNotifier(noticeBuffer)
	svc := newServices(cfg, logger, notices, true)
	defer svc.Close()

	// Background services share one group; the deferred wait runs before
	// svc.Close so the mirror's final flush sees an open store.
	g, gctx := errgroup.WithContext(ctx)
	var mirror *history.Mirror
	defer func() {
		if mirror != nil {
			mirror.Close()
		}
		cancel()
		_ = g.Wait()
	}()

	if cfg.Metrics.Addr != "" {
		g.Go(func() error {
			if err := svc.metrics.Serve(gctx, cfg.Metrics.Addr, logger); err != nil {
				logger.Error("metrics server", "err", err)
			}
			return nil
		})
	}

	if svc.history != nil {
		mirror = history.NewMirror(svc.history, logger)
		mirror.WatchList(svc.sync.Cache())
		mirror.WatchStore(svc.ctrl.Store(), svc.ctrl.ConversationAt)
		g.Go(func() error {
			_ = mirror.Run(gctx)
			return nil
		})
	}

	km := keymap.NewRegistry()
	keymap.RegisterDefaults(km, app.Dispatch)
	km.ApplyOverrides(cfg.Keymap.Overrides)

	pluginCtx := &plugin.Context{
		Config:     cfg,
		Controller: svc.ctrl,
		Sync:       svc.sync,
		Loader:     svc.loader,
		Client:     svc.client,
		Logger:     logger,
		Keymap:     km,
	}
	registry := plugin.NewRegistry(pluginCtx)
	// Registration order is tab order.
	_ = registry.Register(chat.New())
	_ = registry.Register(conversations.New())
	for id, reason := range registry.Unavailable() {
		logger.Warn("plugin unavailable", "id", id, "reason", reason)
	}

	updates, err := config.Watch(ctx, config.ConfigPath(), logger)
	if err != nil {
		logger.Warn("config hot reload disabled", "err", err)
	}

	model := app.New(registry, km, cfg, app.Options{
		Notices:       notices,
		ConfigUpdates: updates,
		Logger:        logger,
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("run application: %w", err)
	}
	registry.Stop()
	return nil
}

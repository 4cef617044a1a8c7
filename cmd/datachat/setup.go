package main

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/wilbur182/datachat/internal/api/client"
	"github.com/wilbur182/datachat/internal/config"
	"github.com/wilbur182/datachat/internal/controller"
	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/history"
	"github.com/wilbur182/datachat/internal/logging"
	"github.com/wilbur182/datachat/internal/metrics"
)

// loadConfig reads the config file and applies flag overrides. A --config
// path also becomes the target of runtime saves.
func loadConfig(flags globalFlags) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if flags.configPath != "" {
		config.SetPath(flags.configPath)
		cfg, err = config.LoadFrom(flags.configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if flags.serverURL != "" {
		cfg.Server.URL = flags.serverURL
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if flags.debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newClient(cfg *config.Config, logger *slog.Logger) *client.Client {
	opts := []client.Option{
		client.WithTransport(cfg.Server.Transport),
		client.WithLogger(logger),
	}
	if cfg.Server.Token != "" {
		opts = append(opts, client.WithToken(cfg.Server.Token))
	}
	return client.New(cfg.Server.URL, cfg.Server.Workspace, opts...)
}

// services is the object graph shared by the TUI and headless commands.
type services struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *client.Client
	sync    *conversation.Synchronizer
	ctrl    *controller.Controller
	loader  *history.Loader
	history *history.Store // nil when the mirror is disabled or unavailable
	metrics *metrics.Metrics
}

func newServices(cfg *config.Config, logger *slog.Logger, notify controller.Notifier, withHistory bool) *services {
	s := &services{
		cfg:     cfg,
		logger:  logger,
		client:  newClient(cfg, logger),
		metrics: metrics.New(),
	}
	if withHistory && cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			logger.Warn("history mirror disabled", "path", cfg.History.Path, "err", err)
		} else {
			s.history = store
		}
	}

	s.sync = conversation.NewSynchronizer(conversation.NewListCache(), s.client, logger)
	s.loader = history.NewLoader(s.client, s.history, cfg.History.CacheSize, logger)
	s.ctrl = controller.New(conversation.NewStore(), s.sync, s.client, notify, controller.Options{
		Logger:         logger,
		Metrics:        s.metrics,
		RequestTimeout: cfg.Server.RequestTimeout,
		CancelTimeout:  cfg.Server.CancelTimeout,
	})
	return s
}

func (s *services) Close() {
	s.ctrl.Wait()
	if s.history != nil {
		if err := s.history.Close(); err != nil {
			s.logger.Warn("close history", "err", err)
		}
	}
}

// stderrNotifier prints controller notices for headless commands and
// remembers whether an error was shown.
type stderrNotifier struct {
	mu     sync.Mutex
	w      io.Writer
	failed bool
}

func (n *stderrNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failed = true
	fmt.Fprintln(n.w, "error: "+msg)
}

func (n *stderrNotifier) Info(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.w, msg)
}

func (n *stderrNotifier) Failed() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.failed
}

func headlessLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	return logging.New(w, logging.ParseLevel(cfg.Log.Level))
}

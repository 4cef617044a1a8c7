package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const fullYAML = `
server:
  url: https://analytics.example.com/
  transport: WebSocket
  workspace: finance
  token: secret
  request_timeout: 10s
  cancel_timeout: 2s
history:
  enabled: false
  path: /tmp/datachat/history.db
  cache_size: 4
ui:
  show_clock: false
  theme:
    name: dracula
    overrides:
      primary: "#ff00ff"
keymap:
  overrides:
    ctrl+s: chat.send
log:
  level: debug
  file: /tmp/datachat/datachat.log
metrics:
  addr: 127.0.0.1:9091
features:
  flags:
    show_reasoning: true
`

func TestParseFull(t *testing.T) {
	cfg, err := Parse([]byte(fullYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Server.URL != "https://analytics.example.com" {
		t.Errorf("url = %q, trailing slash should be trimmed", cfg.Server.URL)
	}
	if cfg.Server.Transport != TransportWebSocket {
		t.Errorf("transport = %q", cfg.Server.Transport)
	}
	if cfg.Server.Workspace != "finance" || cfg.Server.Token != "secret" {
		t.Errorf("workspace/token = %q/%q", cfg.Server.Workspace, cfg.Server.Token)
	}
	if cfg.Server.RequestTimeout != 10*time.Second || cfg.Server.CancelTimeout != 2*time.Second {
		t.Errorf("timeouts = %v/%v", cfg.Server.RequestTimeout, cfg.Server.CancelTimeout)
	}
	if cfg.History.Enabled || cfg.History.CacheSize != 4 || cfg.History.Path != "/tmp/datachat/history.db" {
		t.Errorf("history = %+v", cfg.History)
	}
	if cfg.UI.ShowClock || cfg.UI.Theme.Name != "dracula" || cfg.UI.Theme.Overrides["primary"] != "#ff00ff" {
		t.Errorf("ui = %+v", cfg.UI)
	}
	if cfg.Keymap.Overrides["ctrl+s"] != "chat.send" {
		t.Errorf("keymap = %+v", cfg.Keymap)
	}
	if cfg.Log.Level != "debug" || cfg.Metrics.Addr != "127.0.0.1:9091" {
		t.Errorf("log/metrics = %+v %+v", cfg.Log, cfg.Metrics)
	}
	if !cfg.Features.Flags["show_reasoning"] {
		t.Error("feature flag not parsed")
	}
}

func TestParseEmptyUsesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.URL != defaultServerURL || cfg.Server.Transport != TransportSSE {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.RequestTimeout != defaultRequestTimeout || cfg.Server.CancelTimeout != defaultCancelTimeout {
		t.Errorf("timeouts = %+v", cfg.Server)
	}
	if !cfg.History.Enabled || cfg.History.Path == "" || cfg.Log.File == "" {
		t.Errorf("history/log defaults missing: %+v %+v", cfg.History, cfg.Log)
	}
	if cfg.Keymap.Overrides == nil || cfg.Features.Flags == nil {
		t.Error("maps should be initialized")
	}
}

func TestParseFixesNonPositiveTimeouts(t *testing.T) {
	cfg, err := Parse([]byte("server:\n  request_timeout: -1s\n  cancel_timeout: 0s\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Server.RequestTimeout != defaultRequestTimeout || cfg.Server.CancelTimeout != defaultCancelTimeout {
		t.Errorf("timeouts = %v/%v", cfg.Server.RequestTimeout, cfg.Server.CancelTimeout)
	}
}

func TestValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want []string
	}{
		{"bad transport", "server:\n  transport: grpc\n", []string{"server.transport"}},
		{"bad scheme", "server:\n  url: ftp://host\n", []string{"server.url"}},
		{"missing host", "server:\n  url: http://\n", []string{"missing host"}},
		{"bad level", "log:\n  level: loud\n", []string{"log.level"}},
		{
			"collects all",
			"server:\n  transport: grpc\nlog:\n  level: loud\n",
			[]string{"server.transport", "log.level"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			for _, w := range tt.want {
				if !strings.Contains(err.Error(), w) {
					t.Errorf("error %q does not mention %q", err, w)
				}
			}
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("server: [")); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	cfg, err := LoadFrom(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.URL != defaultServerURL {
		t.Errorf("url = %q", cfg.Server.URL)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	SetTestConfigPath(path)
	t.Cleanup(ResetTestConfigPath)

	cfg := Default()
	cfg.Server.Transport = TransportWebSocket
	cfg.Server.RequestTimeout = 12 * time.Second
	cfg.Keymap.Overrides["ctrl+s"] = "chat.send"
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := SaveTheme("nord"); err != nil {
		t.Fatalf("SaveTheme: %v", err)
	}
	if err := SaveFeature("sql_traces", false); err != nil {
		t.Fatalf("SaveFeature: %v", err)
	}

	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Server.Transport != TransportWebSocket || got.Server.RequestTimeout != 12*time.Second {
		t.Errorf("server = %+v", got.Server)
	}
	if got.UI.Theme.Name != "nord" || got.Keymap.Overrides["ctrl+s"] != "chat.send" {
		t.Errorf("ui/keymap = %+v %+v", got.UI, got.Keymap)
	}
	if enabled, ok := got.Features.Flags["sql_traces"]; !ok || enabled {
		t.Errorf("flags = %+v", got.Features.Flags)
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := ExpandPath("~/x/y.db"); got != filepath.Join(home, "x", "y.db") {
		t.Errorf("ExpandPath = %q", got)
	}
	if got := ExpandPath("/abs/path"); got != "/abs/path" {
		t.Errorf("ExpandPath = %q", got)
	}
}

func TestWatchReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ui:\n  theme:\n    name: default\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	updates, err := Watch(ctx, path, logger)
	if err != nil {
		t.Fatalf("Watch: %v", err)
	}

	if err := os.WriteFile(path, []byte("ui:\n  theme:\n    name: dracula\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(3 * time.Second)
	for {
		select {
		case cfg := <-updates:
			if cfg.UI.Theme.Name == "dracula" {
				cancel()
				return
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

package plugin

import (
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

type stubPlugin struct {
	id       string
	initErr  error
	panicOn  string
	started  bool
	stopped  bool
	received []tea.Msg
}

func (s *stubPlugin) ID() string   { return s.id }
func (s *stubPlugin) Name() string { return s.id }
func (s *stubPlugin) Icon() string { return "" }
func (s *stubPlugin) Init(ctx *Context) error {
	if s.panicOn == "init" {
		panic("boom")
	}
	return s.initErr
}
func (s *stubPlugin) Start() tea.Cmd {
	s.started = true
	return func() tea.Msg { return s.id }
}
func (s *stubPlugin) Stop() { s.stopped = true }
func (s *stubPlugin) Update(msg tea.Msg) (Plugin, tea.Cmd) {
	if s.panicOn == "update" {
		panic("boom")
	}
	s.received = append(s.received, msg)
	return s, nil
}
func (s *stubPlugin) View(width, height int) string { return "" }
func (s *stubPlugin) IsFocused() bool               { return false }
func (s *stubPlugin) SetFocused(bool)               {}
func (s *stubPlugin) Commands() []Command           { return nil }
func (s *stubPlugin) FocusContext() string          { return s.id }

func TestRegisterDegradesSilently(t *testing.T) {
	r := NewRegistry(&Context{})
	_ = r.Register(&stubPlugin{id: "chat"})
	_ = r.Register(&stubPlugin{id: "broken", initErr: errors.New("no server")})
	_ = r.Register(&stubPlugin{id: "panicky", panicOn: "init"})

	if got := len(r.Plugins()); got != 1 {
		t.Fatalf("plugins = %d, want 1", got)
	}
	un := r.Unavailable()
	if un["broken"] != "no server" || un["panicky"] == "" {
		t.Fatalf("unavailable = %v", un)
	}
	if r.Get("chat") == nil || r.Get("broken") != nil {
		t.Fatal("Get returned the wrong plugins")
	}
}

func TestStartStopAndBroadcast(t *testing.T) {
	a := &stubPlugin{id: "a"}
	b := &stubPlugin{id: "b", panicOn: "update"}
	r := NewRegistry(&Context{})
	_ = r.Register(a)
	_ = r.Register(b)

	if cmds := r.Start(); len(cmds) != 2 || !a.started || !b.started {
		t.Fatalf("start: %d cmds", len(cmds))
	}

	r.Broadcast("hello")
	if len(a.received) != 1 || a.received[0] != "hello" {
		t.Fatalf("a received %v", a.received)
	}
	if r.Get("b") != b {
		t.Fatal("panicking plugin should stay registered")
	}

	r.Stop()
	if !a.stopped || !b.stopped {
		t.Fatal("plugins not stopped")
	}
}

type epochMsg uint64

func (m epochMsg) GetEpoch() uint64 { return uint64(m) }

func TestSwitchEpochMarksStale(t *testing.T) {
	ctx := &Context{}
	r := NewRegistry(ctx)

	issued := epochMsg(ctx.CurrentEpoch())
	if IsStale(ctx, issued) {
		t.Fatal("fresh message reported stale")
	}
	if got := r.SwitchEpoch(); got != 1 {
		t.Fatalf("epoch = %d", got)
	}
	if !IsStale(ctx, issued) {
		t.Fatal("message from the previous epoch should be stale")
	}
	if IsStale(nil, issued) {
		t.Fatal("nil context never marks stale")
	}
}

func TestDeliverTargetsOnePlugin(t *testing.T) {
	a := &stubPlugin{id: "a"}
	b := &stubPlugin{id: "b"}
	r := NewRegistry(&Context{})
	_ = r.Register(a)
	_ = r.Register(b)

	r.Deliver("b", "only-b")
	if len(a.received) != 0 || len(b.received) != 1 {
		t.Fatalf("a=%v b=%v", a.received, b.received)
	}
	if cmd := r.Deliver("missing", "x"); cmd != nil {
		t.Fatal("unknown id should be a no-op")
	}
}

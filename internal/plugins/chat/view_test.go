package chat

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/wilbur182/datachat/internal/conversation"
)

func TestEmptyState(t *testing.T) {
	p, _ := newPlugin(t, &fakeBackend{})
	out := stripANSI(p.renderMessages(80))
	if !strings.Contains(out, "Ask a question") {
		t.Errorf("empty state = %q", out)
	}
}

func TestLoadingState(t *testing.T) {
	p, _ := newPlugin(t, &fakeBackend{})
	p.loading = true
	if out := stripANSI(p.renderMessages(80)); !strings.Contains(out, "Loading conversation") {
		t.Errorf("loading state = %q", out)
	}
}

func TestUserAndFailedRendering(t *testing.T) {
	p, _ := newPlugin(t, &fakeBackend{})
	seed(p, "c1",
		conversation.Message{ID: "u1", Role: conversation.RoleUser, Content: "Hello world"},
		conversation.Message{ID: "u2", Role: conversation.RoleUser, Content: "lost", SendFailed: true},
	)

	out := stripANSI(p.renderMessages(80))
	for _, want := range []string{"> Hello world", "> lost", "not sent", "ctrl+r to retry"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Count(out, "not sent") != 1 {
		t.Errorf("only the failed message gets a badge:\n%s", out)
	}
}

func TestThinkingAndStreaming(t *testing.T) {
	p, _ := newPlugin(t, &fakeBackend{})
	p.snap = conversation.Snapshot{
		Messages: []conversation.Message{{ID: "u1", Role: conversation.RoleUser, Content: "q"}},
		UIPhase:  conversation.PhaseThinking,
	}
	if out := stripANSI(p.renderMessages(80)); !strings.Contains(out, "Thinking...") {
		t.Errorf("thinking indicator missing:\n%s", out)
	}

	p.snap = conversation.Snapshot{
		Messages: []conversation.Message{
			{ID: "u1", Role: conversation.RoleUser, Content: "q"},
			{ID: "a1", Role: conversation.RoleAssistant},
		},
		Session: conversation.StreamingSession{ActiveMessageID: "a1", BufferedText: "Partial answ", Phase: conversation.PhaseStreaming},
		UIPhase: conversation.PhaseStreaming,
	}
	out := stripANSI(p.renderMessages(80))
	if !strings.Contains(out, "Partial answ▍") {
		t.Errorf("streaming text missing:\n%s", out)
	}
	if strings.Contains(out, "Thinking...") {
		t.Errorf("thinking shown while streaming:\n%s", out)
	}
}

func TestAnswerWithTrace(t *testing.T) {
	p, _ := newPlugin(t, &fakeBackend{})
	seed(p, "c1", conversation.Message{
		ID:      "a1",
		Role:    conversation.RoleAssistant,
		Content: "North leads",
		SQLExecutions: []conversation.SQLExecution{
			{
				Query:     "SELECT region, total FROM sales",
				Columns:   []string{"region", "total"},
				Rows:      [][]any{{"North", float64(12)}},
				TotalRows: 1,
			},
			{Query: "SELECT broken", Error: "no such column"},
		},
	})

	out := stripANSI(p.renderMessages(80))
	for _, want := range []string{"North leads", "SELECT region, total FROM sales", "region", "North", "error: no such column"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestStatusBar(t *testing.T) {
	p, _ := newPlugin(t, &fakeBackend{})
	if bar := stripANSI(p.renderStatusBar(60)); !strings.Contains(bar, "New conversation") || !strings.Contains(bar, "Ready") {
		t.Errorf("status = %q", bar)
	}

	p.ctx.List().Insert(conversation.Conversation{ID: "c1", Title: "Revenue by quarter"})
	seed(p, "c1")
	p.snap.UIPhase = conversation.PhaseThinking
	bar := stripANSI(p.renderStatusBar(60))
	if !strings.Contains(bar, "Revenue by quarter") || !strings.Contains(bar, "Thinking") {
		t.Errorf("status = %q", bar)
	}
}

func TestViewFitsHeight(t *testing.T) {
	p, _ := newPlugin(t, &fakeBackend{})
	out := p.View(60, 20)
	if h := strings.Count(out, "\n") + 1; h > 20 {
		t.Errorf("view height = %d", h)
	}
}

func TestInputSubmit(t *testing.T) {
	in := NewInput()
	in.Focus()
	in.SetValue("  count rows  ")

	_, cmd := in.Update(tea.KeyMsg{Type: tea.KeyEnter})
	msg, ok := cmd().(SendPromptMsg)
	if !ok || msg.Content != "count rows" {
		t.Fatalf("submit = %#v", msg)
	}
	if in.Value() != "" {
		t.Fatal("input should clear after submit")
	}

	in.SetValue("blocked")
	in.SetSubmitting(true, "")
	if _, cmd := in.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatal("submit while busy should be ignored")
	}

	in.SetSubmitting(false, "")
	in.Reset()
	if _, cmd := in.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatal("blank input should not submit")
	}
}

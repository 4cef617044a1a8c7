package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wilbur182/datachat/internal/conversation"
)

// fakeServer serves the REST endpoints and an SSE feed that answers every
// posted message.
type fakeServer struct {
	t       *testing.T
	mu      sync.Mutex
	convs   []conversation.Conversation
	patches []map[string]any
	sent    []string
	answers chan string
	fail    bool
}

func newFakeServer(t *testing.T) (*fakeServer, *httptest.Server) {
	t.Helper()
	fs := &fakeServer{t: t, answers: make(chan string, 4)}
	srv := httptest.NewServer(fs)
	t.Cleanup(srv.Close)
	return fs, srv
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/api/events":
		f.serveEvents(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/conversations":
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.fail {
			http.Error(w, `{"error":"database down"}`, http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(f.convs)
	case r.Method == http.MethodPost && r.URL.Path == "/api/conversations":
		_ = json.NewEncoder(w).Encode(conversation.Conversation{ID: "c1"})
	case r.Method == http.MethodPost && r.URL.Path == "/api/conversations/c1/messages":
		var body struct {
			Content string `json:"content"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.sent = append(f.sent, body.Content)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(conversation.SendAck{MessageID: "m1", Status: "accepted"})
		f.answers <- body.Content
	case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/messages"):
		_ = json.NewEncoder(w).Encode([]conversation.Message{
			{ID: "u1", Role: conversation.RoleUser, Content: "How many orders?"},
			{ID: "a1", Role: conversation.RoleAssistant, Content: "There were **42** orders."},
		})
	case r.Method == http.MethodPatch:
		var patch map[string]any
		_ = json.NewDecoder(r.Body).Decode(&patch)
		f.mu.Lock()
		f.patches = append(f.patches, patch)
		f.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	case r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/cancel"):
		_, _ = w.Write([]byte(`{"status":"cancelled"}`))
	default:
		f.t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		http.NotFound(w, r)
	}
}

func (f *fakeServer) serveEvents(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	flusher := w.(http.Flusher)
	fmt.Fprint(w, "event: server.connected\ndata: {}\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-f.answers:
			for _, raw := range []string{
				`event: message.delta` + "\n" + `data: {"conversationId":"c1","replyTo":"m1","content":"Revenue grew "}`,
				`event: message.delta` + "\n" + `data: {"conversationId":"c1","replyTo":"m1","content":"12%."}`,
				`event: message.complete` + "\n" + `data: {"conversationId":"c1","replyTo":"m1","sqlExecutions":[{"query":"SELECT region, growth FROM revenue","columns":["region","growth"],"rows":[["EU",0.12]],"totalRows":1}]}`,
			} {
				fmt.Fprint(w, raw+"\n\n")
				flusher.Flush()
			}
		}
	}
}

func (f *fakeServer) patchList() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.patches...)
}

// writeConfig writes a config with the mirror off so tests never touch the
// home directory.
func writeConfig(t *testing.T, serverURL string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := fmt.Sprintf("server:\n  url: %s\n  request_timeout: 5s\nhistory:\n  enabled: false\nlog:\n  level: error\n", serverURL)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func runCmd(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersionCmd(t *testing.T) {
	orig := Version
	Version = "1.2.3"
	defer func() { Version = orig }()

	out, _, err := runCmd(t, "version")
	if err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if !strings.Contains(out, "datachat 1.2.3") {
		t.Errorf("expected version in output, got: %s", out)
	}
}

func TestEffectiveVersionFallback(t *testing.T) {
	if got := effectiveVersion("v9"); got != "v9" {
		t.Errorf("effectiveVersion = %q", got)
	}
	if got := effectiveVersion(""); got == "" {
		t.Error("fallback version should not be empty")
	}
}

func TestRootCmdHelp(t *testing.T) {
	out, _, err := runCmd(t, "--help")
	if err != nil {
		t.Fatalf("help failed: %v", err)
	}
	for _, sub := range []string{"ask", "conversations", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("help missing %q:\n%s", sub, out)
		}
	}
}

func TestConversationsList(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.convs = []conversation.Conversation{
		{ID: "c1", Title: "Revenue by region", DatasetCount: 2},
		{ID: "c2", Title: "", IsPinned: true},
	}
	cfg := writeConfig(t, srv.URL)

	out, _, err := runCmd(t, "--config", cfg, "conversations", "list")
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "ID") {
		t.Fatalf("output:\n%s", out)
	}
	if !strings.HasPrefix(lines[1], "c2") || !strings.Contains(lines[1], "New conversation") {
		t.Errorf("pinned placeholder row should come first: %q", lines[1])
	}
	if !strings.Contains(lines[2], "Revenue by region") {
		t.Errorf("row = %q", lines[2])
	}

	out, _, err = runCmd(t, "--config", cfg, "conversations", "list", "--pinned", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var got []conversation.Conversation
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("json: %v\n%s", err, out)
	}
	if len(got) != 1 || got[0].ID != "c2" {
		t.Errorf("pinned only = %+v", got)
	}
}

func TestConversationsListServerError(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.fail = true

	_, _, err := runCmd(t, "--config", writeConfig(t, srv.URL), "conversations", "list")
	if err == nil || !strings.Contains(err.Error(), "database down") {
		t.Fatalf("err = %v", err)
	}
}

func TestConversationsPinAndRename(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.convs = []conversation.Conversation{{ID: "c1", Title: "Revenue"}}
	cfg := writeConfig(t, srv.URL)

	out, _, err := runCmd(t, "--config", cfg, "conversations", "pin", "c1")
	if err != nil || !strings.Contains(out, "pinned c1") {
		t.Fatalf("pin: %v %q", err, out)
	}
	out, _, err = runCmd(t, "--config", cfg, "conversations", "rename", "c1", "Revenue", "2024")
	if err != nil || !strings.Contains(out, `"Revenue 2024"`) {
		t.Fatalf("rename: %v %q", err, out)
	}

	patches := fs.patchList()
	if len(patches) != 2 || patches[0]["isPinned"] != true || patches[1]["title"] != "Revenue 2024" {
		t.Fatalf("patches = %v", patches)
	}

	if _, _, err := runCmd(t, "--config", cfg, "conversations", "rename", "c1", "  "); err == nil {
		t.Fatal("blank title should fail")
	}
}

func TestConversationsExport(t *testing.T) {
	fs, srv := newFakeServer(t)
	fs.convs = []conversation.Conversation{{ID: "c9", Title: "Orders"}}

	out, _, err := runCmd(t, "--config", writeConfig(t, srv.URL), "conversations", "export", "c9")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	for _, want := range []string{"Orders", "How many orders?", "**42**"} {
		if !strings.Contains(out, want) {
			t.Errorf("export missing %q:\n%s", want, out)
		}
	}
}

func TestAskStreamsAnswerAndTraces(t *testing.T) {
	fs, srv := newFakeServer(t)

	out, errOut, err := runCmd(t, "--config", writeConfig(t, srv.URL), "ask", "How", "did", "revenue", "change?")
	if err != nil {
		t.Fatalf("ask failed: %v\nstderr: %s", err, errOut)
	}
	if !strings.Contains(out, "Revenue grew 12%.\n") {
		t.Errorf("answer not streamed:\n%s", out)
	}
	for _, want := range []string{"-- query 1", "SELECT", "EU"} {
		if !strings.Contains(out, want) {
			t.Errorf("trace missing %q:\n%s", want, out)
		}
	}
	if !strings.Contains(errOut, "conversation: c1") {
		t.Errorf("stderr = %q", errOut)
	}

	fs.mu.Lock()
	sent := fs.sent
	fs.mu.Unlock()
	if len(sent) != 1 || sent[0] != "How did revenue change?" {
		t.Errorf("sent = %v", sent)
	}

	// The first message names the conversation in the background.
	deadline := time.Now().Add(time.Second)
	for len(fs.patchList()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if p := fs.patchList(); len(p) != 1 || p[0]["title"] == nil {
		t.Errorf("title patch = %v", p)
	}
}

func TestAskNoTraces(t *testing.T) {
	_, srv := newFakeServer(t)

	out, _, err := runCmd(t, "--config", writeConfig(t, srv.URL), "ask", "--no-traces", "growth?")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(out, "-- query") {
		t.Errorf("traces printed:\n%s", out)
	}
}

func TestAskUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := fmt.Sprintf("server:\n  url: %s\n  request_timeout: 200ms\nhistory:\n  enabled: false\nlog:\n  level: error\n", url)
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	if _, _, err := runCmd(t, "--config", path, "ask", "hello"); err == nil || !strings.Contains(err.Error(), "event feed unavailable") {
		t.Fatalf("err = %v", err)
	}
}

func TestSortPinnedFirst(t *testing.T) {
	list := []conversation.Conversation{{ID: "a"}, {ID: "b", IsPinned: true}, {ID: "c"}}
	got := sortPinnedFirst(list, false)
	if got[0].ID != "b" || got[1].ID != "a" || got[2].ID != "c" {
		t.Errorf("order = %v", got)
	}
	if got := sortPinnedFirst(list, true); len(got) != 1 {
		t.Errorf("pinned only = %v", got)
	}
}

func TestStreamPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := newStreamPrinter(&buf, true)
	snap := func(id, text string) conversation.Snapshot {
		return conversation.Snapshot{Session: conversation.StreamingSession{
			ActiveMessageID: id, BufferedText: text, Phase: conversation.PhaseStreaming,
		}}
	}
	p.update(snap("a", "Hel"))
	p.update(snap("a", "Hello"))
	p.update(conversation.Snapshot{})
	p.finish("Hello")
	if buf.String() != "Hello\n" {
		t.Errorf("printed %q", buf.String())
	}

	buf.Reset()
	quiet := newStreamPrinter(&buf, true)
	quiet.finish("whole answer")
	if buf.String() != "whole answer\n" {
		t.Errorf("unstreamed answer = %q", buf.String())
	}
}

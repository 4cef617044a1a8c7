package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wilbur182/datachat/internal/controller"
	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/markdown"
	"github.com/wilbur182/datachat/internal/transcript"
)

const (
	defaultAskWidth = 100
	askTraceRows    = 20
)

// ErrFeedUnavailable is returned when the event feed does not connect in
// time. Sending without it would lose the answer.
var ErrFeedUnavailable = errors.New("event feed unavailable")

// errAnswerFailed is returned after the failure was already printed.
var errAnswerFailed = errors.New("no answer")

type askOptions struct {
	conversationID string
	raw            bool
	noTraces       bool
}

func newAskCmd(flags *globalFlags) *cobra.Command {
	var opts askOptions

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask one question and print the answer",
		Long: "Sends one question and prints the answer with its SQL traces. " +
			"Output is rendered as markdown on a terminal and streamed raw otherwise. " +
			"Ctrl-C stops the answer.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(cmd, *flags, opts, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&opts.conversationID, "conversation", "", "continue an existing conversation")
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "stream tokens without markdown rendering")
	cmd.Flags().BoolVar(&opts.noTraces, "no-traces", false, "do not print SQL traces")
	return cmd
}

// isTerminal reports whether w is a terminal, and its width.
func isTerminal(w io.Writer) (bool, int) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return false, 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		width = defaultAskWidth
	}
	return true, width
}

func runAsk(cmd *cobra.Command, flags globalFlags, opts askOptions, question string) error {
	cfg, err := loadConfig(flags)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()

	logger := headlessLogger(cfg, errOut)
	notify := &stderrNotifier{w: errOut}
	svc := newServices(cfg, logger, notify, false)
	defer svc.Close()

	tty, width := isTerminal(out)
	stream := opts.raw || !tty
	if width == 0 {
		width = defaultAskWidth
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if opts.conversationID != "" {
		conv := conversation.Conversation{ID: opts.conversationID}
		msgs, _, err := svc.loader.Messages(ctx, conv)
		if err != nil {
			return fmt.Errorf("load conversation %s: %w", opts.conversationID, err)
		}
		svc.sync.Track(conv)
		svc.ctrl.SwitchConversation(opts.conversationID, msgs)
	}

	// Follow is the only goroutine feeding the controller.
	connected := make(chan struct{})
	var once sync.Once
	feedDone := make(chan struct{})
	go func() {
		defer close(feedDone)
		_ = svc.ctrl.Follow(ctx, svc.client, func(up bool) {
			if up {
				once.Do(func() { close(connected) })
			}
		})
	}()
	defer func() {
		cancel()
		<-feedDone
	}()

	select {
	case <-connected:
	case <-time.After(cfg.Server.RequestTimeout):
		return fmt.Errorf("%w at %s", ErrFeedUnavailable, cfg.Server.URL)
	case <-ctx.Done():
		return ctx.Err()
	}

	printer := newStreamPrinter(out, stream)
	done := make(chan struct{})
	var (
		doneOnce sync.Once
		busyMu   sync.Mutex
		sawBusy  bool
	)
	// The optimistic user append is idle too, so the turn has only ended
	// once an idle snapshot follows a busy one.
	unsub := svc.ctrl.Store().Subscribe(func(snap conversation.Snapshot) {
		printer.update(snap)
		idle := snap.UIPhase == conversation.PhaseIdle && snap.Session.Phase == conversation.PhaseIdle
		busyMu.Lock()
		defer busyMu.Unlock()
		if !idle {
			sawBusy = true
			return
		}
		if sawBusy {
			doneOnce.Do(func() { close(done) })
		}
	})
	defer unsub()

	interrupts := make(chan os.Signal, 1)
	signal.Notify(interrupts, os.Interrupt)
	defer signal.Stop(interrupts)

	if !stream {
		fmt.Fprintln(errOut, "Thinking...")
	}
	before := len(svc.ctrl.Store().Messages())
	err = svc.ctrl.Send(ctx, question)
	if err != nil {
		if !controller.Reported(err) {
			fmt.Fprintln(errOut, "error: "+controller.UserMessage(err))
		}
		return errAnswerFailed
	}
	if !svc.ctrl.Busy() {
		doneOnce.Do(func() { close(done) })
	}

	select {
	case <-done:
	case <-interrupts:
		// A second interrupt ends the command without waiting for the stop.
		go func() {
			<-interrupts
			cancel()
		}()
		svc.ctrl.Stop(ctx)
		select {
		case <-done:
		case <-ctx.Done():
		}
	case <-ctx.Done():
		return ctx.Err()
	}

	answer, ok := newAnswer(svc.ctrl.Store().Messages(), before)
	if !ok {
		if notify.Failed() {
			return errAnswerFailed
		}
		return nil
	}

	if stream {
		printer.finish(answer.Content)
	} else {
		fmt.Fprintln(out, markdown.NewRenderer(logger).Render(answer.Content, width))
	}
	if !opts.noTraces {
		printTraces(out, answer.SQLExecutions, width)
	}
	if id := svc.ctrl.ConversationID(); id != "" {
		fmt.Fprintf(errOut, "conversation: %s\n", id)
	}
	return nil
}

// newAnswer returns the assistant message added after index before.
func newAnswer(msgs []conversation.Message, before int) (conversation.Message, bool) {
	for i := len(msgs) - 1; i >= before && i >= 0; i-- {
		if msgs[i].Role == conversation.RoleAssistant {
			return msgs[i], true
		}
	}
	return conversation.Message{}, false
}

func printTraces(w io.Writer, execs []conversation.SQLExecution, width int) {
	if len(execs) == 0 {
		return
	}
	hl := transcript.NewSQLHighlighter()
	for i, exec := range execs {
		fmt.Fprintf(w, "\n-- query %d\n", i+1)
		for _, line := range hl.Highlight(exec.Query) {
			fmt.Fprintln(w, line)
		}
		if exec.Error != "" {
			fmt.Fprintln(w, "error: "+exec.Error)
			continue
		}
		for _, line := range transcript.Grid(exec, width, askTraceRows) {
			fmt.Fprintln(w, line)
		}
	}
}

// streamPrinter writes the buffered answer text as it grows.
type streamPrinter struct {
	mu      sync.Mutex
	w       io.Writer
	enabled bool
	active  string
	printed int
	wrote   bool
}

func newStreamPrinter(w io.Writer, enabled bool) *streamPrinter {
	return &streamPrinter{w: w, enabled: enabled}
}

func (p *streamPrinter) update(snap conversation.Snapshot) {
	if !p.enabled {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	s := snap.Session
	if s.Phase == conversation.PhaseIdle || s.ActiveMessageID == "" {
		return
	}
	if s.ActiveMessageID != p.active {
		p.active = s.ActiveMessageID
		p.printed = 0
	}
	if len(s.BufferedText) > p.printed {
		fmt.Fprint(p.w, s.BufferedText[p.printed:])
		p.printed = len(s.BufferedText)
		p.wrote = true
	}
}

// finish ends the streamed answer with a newline. An answer that never
// streamed is printed whole.
func (p *streamPrinter) finish(content string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.wrote && content != "" {
		fmt.Fprint(p.w, content)
		p.wrote = true
	}
	if p.wrote {
		fmt.Fprintln(p.w)
	}
}

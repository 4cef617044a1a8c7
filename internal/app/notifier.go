package app

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wilbur182/datachat/internal/plugin"
)

// Notifier delivers controller notices to the model as toasts. Sends never
// block; notices arriving while the buffer is full are dropped.
type Notifier struct {
	ch chan plugin.ToastMsg
}

// NewNotifier creates a notifier buffering up to size notices.
func NewNotifier(size int) *Notifier {
	if size < 1 {
		size = 1
	}
	return &Notifier{ch: make(chan plugin.ToastMsg, size)}
}

// Error queues an error toast.
func (n *Notifier) Error(msg string) { n.push(plugin.ToastMsg{Message: msg, IsError: true}) }

// Info queues an info toast.
func (n *Notifier) Info(msg string) { n.push(plugin.ToastMsg{Message: msg}) }

func (n *Notifier) push(msg plugin.ToastMsg) {
	select {
	case n.ch <- msg:
	default:
	}
}

// listen waits for the next notice.
func (n *Notifier) listen() tea.Cmd {
	if n == nil {
		return nil
	}
	return func() tea.Msg {
		return noticeMsg(<-n.ch)
	}
}

// noticeMsg wraps a toast that came from the notifier so the model knows to
// re-arm the listener.
type noticeMsg plugin.ToastMsg

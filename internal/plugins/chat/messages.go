package chat

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/wilbur182/datachat/internal/conversation"
	"github.com/wilbur182/datachat/internal/history"
)

// StoreChangedMsg carries the newest store snapshot.
type StoreChangedMsg struct {
	Snapshot conversation.Snapshot
}

// FeedStateMsg reports that the event feed connected or dropped.
type FeedStateMsg struct {
	Connected bool
}

// SendResultMsg is the outcome of a send, retry, edit or redo.
// Implements plugin.EpochMessage.
type SendResultMsg struct {
	Err   error
	Epoch uint64
}

// GetEpoch implements plugin.EpochMessage.
func (m SendResultMsg) GetEpoch() uint64 { return m.Epoch }

// HistoryLoadedMsg carries the history of a conversation being switched to.
// Implements plugin.EpochMessage.
type HistoryLoadedMsg struct {
	Conversation conversation.Conversation
	Messages     []conversation.Message
	Source       history.Source
	Err          error
	Epoch        uint64
}

// GetEpoch implements plugin.EpochMessage.
func (m HistoryLoadedMsg) GetEpoch() uint64 { return m.Epoch }

// ConnectionErrorMsg carries the startup health check failure.
// Implements plugin.EpochMessage.
type ConnectionErrorMsg struct {
	Err   error
	Epoch uint64
}

// GetEpoch implements plugin.EpochMessage.
func (m ConnectionErrorMsg) GetEpoch() uint64 { return m.Epoch }

// SendPromptMsg signals that the user submitted the input.
type SendPromptMsg struct {
	Content string
}

var _ tea.Msg = StoreChangedMsg{}
var _ tea.Msg = FeedStateMsg{}
var _ tea.Msg = SendResultMsg{}
var _ tea.Msg = HistoryLoadedMsg{}
var _ tea.Msg = ConnectionErrorMsg{}
var _ tea.Msg = SendPromptMsg{}

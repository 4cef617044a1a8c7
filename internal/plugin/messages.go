package plugin

import "github.com/wilbur182/datachat/internal/conversation"

// SwitchConversationMsg asks every plugin to make Conversation active.
type SwitchConversationMsg struct {
	Conversation conversation.Conversation
}

// NewConversationMsg asks every plugin to start an empty conversation.
type NewConversationMsg struct{}

// ToastMsg shows a transient notice in the app footer.
type ToastMsg struct {
	Message string
	IsError bool
}

// ThemeChangedMsg is broadcast after the active theme changed.
type ThemeChangedMsg struct{}

package controller

import (
	"context"
	"errors"
)

var (
	// ErrEmptyMessage is returned when the text to send is blank.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrRetryNotAllowed is returned when the target is not a failed user
	// message or a turn is outstanding.
	ErrRetryNotAllowed = errors.New("only a failed message can be retried while idle")
	// ErrEditNotAllowed is returned when the target is not an editable user
	// message or a turn is outstanding.
	ErrEditNotAllowed = errors.New("message cannot be edited right now")
	// ErrRedoNotAllowed is returned when the target is not an assistant
	// answer with a preceding question, or a turn is outstanding.
	ErrRedoNotAllowed = errors.New("answer cannot be regenerated right now")
	// ErrSuperseded is returned when the conversation was switched while a
	// send was waiting on the server. The send's results are discarded.
	ErrSuperseded = errors.New("conversation switched during send")

	// ErrCreateConversation wraps failures of the conversation create call.
	ErrCreateConversation = errors.New("could not create conversation")
	// ErrDispatch wraps failures of the message send call.
	ErrDispatch = errors.New("could not send message")
)

// UserMessage normalizes err into the single human-readable string shown to
// the user. Errors may provide their own text by implementing
// UserMessage() string.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var friendly interface{ UserMessage() string }
	if errors.As(err, &friendly) {
		if msg := friendly.UserMessage(); msg != "" {
			return msg
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "The server took too long to respond. Please try again."
	case errors.Is(err, ErrCreateConversation):
		return "Could not start a new conversation. Please try again."
	case errors.Is(err, ErrDispatch):
		return "Could not send your message. Please try again."
	case errors.Is(err, ErrEmptyMessage):
		return "Type a question first."
	case errors.Is(err, ErrRetryNotAllowed):
		return "Only a failed message can be retried, and only while no answer is streaming."
	case errors.Is(err, ErrEditNotAllowed):
		return "This message cannot be edited while an answer is in progress."
	case errors.Is(err, ErrRedoNotAllowed):
		return "This answer cannot be regenerated right now."
	default:
		return "Something went wrong. Please try again."
	}
}

// Reported tells whether err was already shown through the Notifier, or
// needs no message at all.
func Reported(err error) bool {
	return errors.Is(err, ErrCreateConversation) ||
		errors.Is(err, ErrDispatch) ||
		errors.Is(err, ErrSuperseded)
}

package workflow

import "github.com/mahir/coursebot/pkg/agent"

// State is the conversation state threaded through the workflow stages.
// It is immutable per step: each stage receives a value and returns a new one.
type State struct {
	Messages  []agent.ChatMessage
	Course    agent.Label
	SessionID string
}

// NewState builds the initial state for a single user message.
func NewState(message, sessionID string) State {
	return State{
		Messages:  []agent.ChatMessage{{Role: "user", Content: message}},
		SessionID: sessionID,
	}
}

// LastMessage returns the most recent message, or false when empty.
func (s State) LastMessage() (agent.ChatMessage, bool) {
	if len(s.Messages) == 0 {
		return agent.ChatMessage{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// withReply returns a copy of the state with the assistant reply appended.
func (s State) withReply(reply string) State {
	msgs := make([]agent.ChatMessage, len(s.Messages), len(s.Messages)+1)
	copy(msgs, s.Messages)
	s.Messages = append(msgs, agent.ChatMessage{Role: "assistant", Content: reply})
	return s
}

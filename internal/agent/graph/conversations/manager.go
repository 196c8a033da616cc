package conversations

import (
	"strings"

	"github.com/knu-deptqa/server/internal/agent/model"
)

// MessagesManager builds the textual context handed to the classifier and
// summarizer models from a thread's state.
type MessagesManager struct {
	contextTurns int
	window       int
}

func NewMessagesManager(config model.ConversationConfig) *MessagesManager {
	config = config.Normalize()
	return &MessagesManager{
		contextTurns: config.ContextTurns,
		window:       config.Window,
	}
}

// Window is the number of messages kept in a thread after each turn.
func (cm *MessagesManager) Window() int {
	return cm.window
}

// =========== Function for classifiers ===========

// BuildClassifierContext renders the summary and the most recent turns that
// precede the current question. The current question itself is excluded.
func (cm *MessagesManager) BuildClassifierContext(state model.ConversationState) string {
	history := state.Messages
	if n := len(history); n > 0 && history[n-1].Role == model.RoleUser {
		history = history[:n-1]
	}
	recent := trimTail(history, cm.contextTurns)

	var b strings.Builder
	if s := strings.TrimSpace(state.Summarization); s != "" {
		b.WriteString("<summary>\n")
		b.WriteString(s)
		b.WriteString("\n</summary>\n")
	}
	if len(recent) > 0 {
		b.WriteString("<recent_messages>\n")
		writeMessages(&b, recent)
		b.WriteString("</recent_messages>")
	}
	return strings.TrimSpace(b.String())
}

// =========== Function for summarizer ===========

// BuildTranscript renders every message of the thread, oldest first.
func (cm *MessagesManager) BuildTranscript(messages []model.Message) string {
	var b strings.Builder
	b.WriteString("<conversation>\n")
	writeMessages(&b, messages)
	b.WriteString("</conversation>")
	return b.String()
}

// ====================== Helper function ======================
func writeMessages(b *strings.Builder, messages []model.Message) {
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case model.RoleUser:
			b.WriteString("UserMessage(" + msg.Content + ")\n")
		case model.RoleAssistant:
			b.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}
}

func trimTail(messages []model.Message, maxTurns int) []model.Message {
	if maxTurns <= 0 {
		return nil
	}
	if len(messages) <= maxTurns {
		return append([]model.Message(nil), messages...)
	}
	return append([]model.Message(nil), messages[len(messages)-maxTurns:]...)
}

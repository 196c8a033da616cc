package conversations

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/knu-deptqa/server/internal/agent/model"
)

func history(contents ...string) []model.Message {
	out := make([]model.Message, 0, len(contents))
	for i, c := range contents {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		out = append(out, model.NewMessage(role, c))
	}
	return out
}

func TestBuildClassifierContext(t *testing.T) {
	cm := NewMessagesManager(model.ConversationConfig{ContextTurns: 2})

	state := model.ConversationState{
		Summarization: "장학금 문의",
		Messages:      history("q1", "a1", "q2", "a2", "current"),
	}
	got := cm.BuildClassifierContext(state)

	assert.Contains(t, got, "<summary>\n장학금 문의\n</summary>")
	assert.Contains(t, got, "UserMessage(q2)")
	assert.Contains(t, got, "AssistantMessage(a2)")
	assert.NotContains(t, got, "q1")
	assert.NotContains(t, got, "current")
}

func TestBuildClassifierContextEmpty(t *testing.T) {
	cm := NewMessagesManager(model.ConversationConfig{})
	state := model.ConversationState{Messages: history("only question")}
	assert.Empty(t, cm.BuildClassifierContext(state))
}

func TestBuildTranscript(t *testing.T) {
	cm := NewMessagesManager(model.ConversationConfig{})
	got := cm.BuildTranscript(history("안녕", "", "질문"))
	assert.Equal(t, "<conversation>\nUserMessage(안녕)\nUserMessage(질문)\n</conversation>", got)
}

func TestTrimTail(t *testing.T) {
	msgs := history("a", "b", "c")

	assert.Len(t, trimTail(msgs, 5), 3)
	assert.Nil(t, trimTail(msgs, 0))

	tail := trimTail(msgs, 2)
	assert.Equal(t, "b", tail[0].Content)
	tail[0].Content = "changed"
	assert.Equal(t, "b", msgs[1].Content)
}

func TestWindowDefaults(t *testing.T) {
	assert.Equal(t, model.DefaultWindow, NewMessagesManager(model.ConversationConfig{}).Window())
}

package model

import (
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
)

// Role is the canonical author of a Message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Language is the response language of a turn.
type Language string

const (
	Korean  Language = "ko"
	English Language = "en"
)

// DefaultLanguage is used whenever no language can be derived.
const DefaultLanguage = Korean

// ParseLanguage normalises v into a known Language, falling back to DefaultLanguage.
func ParseLanguage(v string) Language {
	switch Language(v) {
	case English:
		return English
	case Korean:
		return Korean
	default:
		return DefaultLanguage
	}
}

// Message is one turn record in a thread.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// NewMessage stamps a message with a fresh id and creation time.
func NewMessage(role Role, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now().UTC(),
	}
}

// ToSchema converts the message to the eino representation used at the model boundary.
func (m Message) ToSchema() *schema.Message {
	switch m.Role {
	case RoleAssistant:
		return schema.AssistantMessage(m.Content, nil)
	case RoleSystem:
		return schema.SystemMessage(m.Content)
	default:
		return schema.UserMessage(m.Content)
	}
}

// DocumentMetadata is carried verbatim from the vector store.
type DocumentMetadata struct {
	FileName   string `json:"file_name"`
	Department string `json:"department"`
	URL        string `json:"url"`
	Date       string `json:"date"`
}

// Document is a retrieved chunk with its originating metadata.
type Document struct {
	Content  string           `json:"content"`
	Metadata DocumentMetadata `json:"metadata"`
}

// ConversationState is the persisted unit of work for one thread.
type ConversationState struct {
	ThreadID            string     `json:"thread_id"`
	Messages            []Message  `json:"messages"`
	Language            Language   `json:"language"`
	Documents           []Document `json:"documents"`
	QuestionAppropriate *bool      `json:"question_appropriate"`
	QuestionReason      string     `json:"question_reason,omitempty"`
	// Summarization is synthesized context; it is never replayed as a message.
	Summarization     string    `json:"summarization,omitempty"`
	CurrentDepartment string    `json:"current_department,omitempty"`
	FollowUp          bool      `json:"follow_up"`
	FollowUpChain     []string  `json:"follow_up_chain,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// NewConversationState returns the empty state of a thread's first turn.
func NewConversationState(threadID string) *ConversationState {
	now := time.Now().UTC()
	return &ConversationState{
		ThreadID:  threadID,
		Messages:  []Message{},
		Language:  DefaultLanguage,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy so a turn never mutates a stored state in place.
func (c *ConversationState) Clone() *ConversationState {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = append([]Message(nil), c.Messages...)
	out.Documents = append([]Document(nil), c.Documents...)
	out.FollowUpChain = append([]string(nil), c.FollowUpChain...)
	if c.QuestionAppropriate != nil {
		v := *c.QuestionAppropriate
		out.QuestionAppropriate = &v
	}
	return &out
}

// LastMessage returns the newest message of the thread, if any.
func (c *ConversationState) LastMessage() (Message, bool) {
	if len(c.Messages) == 0 {
		return Message{}, false
	}
	return c.Messages[len(c.Messages)-1], true
}

// ThreadSummary is the listing view of a stored thread.
type ThreadSummary struct {
	ThreadID     string    `json:"thread_id"`
	MessageCount int       `json:"message_count"`
	LastMessage  string    `json:"last_message,omitempty"`
	Language     Language  `json:"language"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Summary builds the listing view of the state.
func (c *ConversationState) Summary() ThreadSummary {
	s := ThreadSummary{
		ThreadID:     c.ThreadID,
		MessageCount: len(c.Messages),
		Language:     c.Language,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if last, ok := c.LastMessage(); ok {
		s.LastMessage = last.Content
	}
	return s
}

// Bool returns a pointer to v, for tri-state fields.
func Bool(v bool) *bool {
	return &v
}

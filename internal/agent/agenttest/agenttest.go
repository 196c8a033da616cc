// Package agenttest provides scripted collaborators for graph and node tests.
package agenttest

import (
	"context"
	"fmt"
	"sync"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/schema"

	"github.com/knu-deptqa/server/internal/agent/retrieval"
)

// Responder produces the reply of one scripted call.
type Responder func(msgs []*schema.Message) (string, error)

// Call records one model invocation.
type Call struct {
	Task     string
	Messages []*schema.Message
}

// ChatModel is a scripted einomodel.BaseChatModel. Calls are routed on the
// task name carried by the leading system message.
type ChatModel struct {
	mu      sync.Mutex
	scripts map[string]Responder
	calls   []Call
	usage   *schema.TokenUsage
}

func NewChatModel() *ChatModel {
	return &ChatModel{scripts: map[string]Responder{}}
}

// Reply makes every call of task return text.
func (m *ChatModel) Reply(task, text string) *ChatModel {
	return m.Script(task, func([]*schema.Message) (string, error) { return text, nil })
}

// Fail makes every call of task return err.
func (m *ChatModel) Fail(task string, err error) *ChatModel {
	return m.Script(task, func([]*schema.Message) (string, error) { return "", err })
}

func (m *ChatModel) Script(task string, fn Responder) *ChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[task] = fn
	return m
}

// WithUsage attaches token usage to every response.
func (m *ChatModel) WithUsage(prompt, completion int) *ChatModel {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = &schema.TokenUsage{PromptTokens: prompt, CompletionTokens: completion, TotalTokens: prompt + completion}
	return m
}

func (m *ChatModel) Generate(ctx context.Context, input []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	task := ""
	if len(input) > 0 && input[0] != nil {
		task = input[0].Name
	}

	m.mu.Lock()
	m.calls = append(m.calls, Call{Task: task, Messages: input})
	fn, ok := m.scripts[task]
	usage := m.usage
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("agenttest: no script for task %q", task)
	}
	text, err := fn(input)
	if err != nil {
		return nil, err
	}
	out := schema.AssistantMessage(text, nil)
	if usage != nil {
		u := *usage
		out.ResponseMeta = &schema.ResponseMeta{Usage: &u}
	}
	return out, nil
}

func (m *ChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	out, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{out}), nil
}

// Calls returns the recorded calls, optionally restricted to tasks.
func (m *ChatModel) Calls(tasks ...string) []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(tasks) == 0 {
		return append([]Call(nil), m.calls...)
	}
	var out []Call
	for _, c := range m.calls {
		for _, t := range tasks {
			if c.Task == t {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// SearchCall records one retrieval.
type SearchCall struct {
	Query       string
	Departments []string
	TopK        int
}

// Retriever is an in-memory retriever.Retriever that filters documents on
// their department metadata.
type Retriever struct {
	mu    sync.Mutex
	docs  []*schema.Document
	err   error
	calls []SearchCall
}

func NewRetriever(docs ...*schema.Document) *Retriever {
	return &Retriever{docs: docs}
}

// Failing returns a retriever whose every call fails with err.
func Failing(err error) *Retriever {
	return &Retriever{err: err}
}

func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...retriever.Option) ([]*schema.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topK := 0
	options := retriever.GetCommonOptions(&retriever.Options{TopK: &topK}, opts...)
	var departments []string
	if v, ok := options.DSLInfo[retrieval.DSLDepartmentKey].([]string); ok {
		departments = v
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, SearchCall{Query: query, Departments: departments, TopK: *options.TopK})
	if r.err != nil {
		return nil, r.err
	}

	var out []*schema.Document
	for _, d := range r.docs {
		if len(departments) > 0 && !contains(departments, fmt.Sprint(d.MetaData[retrieval.MetaDepartment])) {
			continue
		}
		out = append(out, d)
		if *options.TopK > 0 && len(out) == *options.TopK {
			break
		}
	}
	return out, nil
}

func (r *Retriever) Calls() []SearchCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]SearchCall(nil), r.calls...)
}

// Document builds a retrieved document with the canonical metadata keys.
func Document(content, fileName, department, url, date string) *schema.Document {
	return &schema.Document{
		Content: content,
		MetaData: map[string]any{
			retrieval.MetaFileName:   fileName,
			retrieval.MetaDepartment: department,
			retrieval.MetaURL:        url,
			retrieval.MetaDate:       date,
		},
	}
}

func contains(values []string, v string) bool {
	for _, s := range values {
		if s == v {
			return true
		}
	}
	return false
}

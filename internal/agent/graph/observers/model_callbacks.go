package observers

import (
	"context"
	"strings"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"

	logx "github.com/knu-deptqa/server/pkg/logger"
)

// newModelHandler logs every chat model call with its task tag and usage.
func newModelHandler() *callbackHelper.ModelCallbackHandler {
	return &callbackHelper.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *einocb.RunInfo, input *model.CallbackInput) context.Context {
			if input == nil {
				return ctx
			}
			logx.Debug().
				Str("component", info.Type).
				Str("task", TaskOf(input.Messages)).
				Int("messages", len(input.Messages)).
				Str("user", truncate(lastUserContent(input.Messages), 200)).
				Msg("Model call started")
			return ctx
		},
		OnEnd: func(ctx context.Context, info *einocb.RunInfo, output *model.CallbackOutput) context.Context {
			if output == nil {
				return ctx
			}
			ev := logx.Debug().Str("component", info.Type)
			if output.Message != nil {
				ev = ev.Str("assistant", truncate(strings.TrimSpace(output.Message.Content), 200))
			}
			if output.TokenUsage != nil {
				ev = ev.
					Int("prompt_tokens", output.TokenUsage.PromptTokens).
					Int("completion_tokens", output.TokenUsage.CompletionTokens)
			}
			ev.Msg("Model call finished")
			return ctx
		},
		OnError: func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Warn().Err(err).Str("component", info.Type).Msg("Model call failed")
			return ctx
		},
	}
}

// TaskOf returns the task tag carried by the system message of a model call.
func TaskOf(msgs []*schema.Message) string {
	for _, m := range msgs {
		if m != nil && m.Role == schema.System {
			return m.Name
		}
	}
	return ""
}

func lastUserContent(msgs []*schema.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		if m == nil {
			continue
		}
		if m.Role == schema.User {
			return strings.TrimSpace(m.Content)
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

package nodes

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
	"github.com/knu-deptqa/server/internal/metrics"
	logx "github.com/knu-deptqa/server/pkg/logger"
)

// Task names carried on the system message of every model call.
const (
	TaskLanguage   = "language"
	TaskGate       = "gate"
	TaskDepartment = "department"
	TaskFollowUp   = "followup"
	TaskRewrite    = "rewrite"
	TaskExamples   = "examples"
	TaskAnswer     = "answer"
	TaskSummary    = "summary"
)

// ChatModelConfig holds the configuration for chat model creation
type ChatModelConfig struct {
	Client     *genai.Client
	Classifier *model.ClassifierModelConfig
	Response   *model.ResponseModelConfig
}

// ChatModels holds the classifier and generator chat models
type ChatModels struct {
	Classifier     einomodel.BaseChatModel
	Generator      einomodel.BaseChatModel
	ClassifierName string
	GeneratorName  string
}

// Completion is the text of one model call and its cost.
type Completion struct {
	Text    string
	CostUSD float64
}

// NewChatModels creates both classifier and generator Gemini chat models sharing one client
func NewChatModels(ctx context.Context, config ChatModelConfig) (*ChatModels, error) {
	if config.Client == nil || config.Classifier == nil || config.Response == nil {
		return nil, fmt.Errorf("chat model config is incomplete")
	}

	classifier, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.Classifier.Model,
		Temperature: &config.Classifier.Temperature,
		MaxTokens:   &config.Classifier.MaxTokens,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating classifier model")
		return nil, fmt.Errorf("error creating classifier model: %w", err)
	}

	generator, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      config.Client,
		Model:       config.Response.Model,
		Temperature: &config.Response.Temperature,
		MaxTokens:   &config.Response.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			ThinkingBudget: genai.Ptr(config.Response.ThinkingBudget),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating response model")
		return nil, fmt.Errorf("error creating response model: %w", err)
	}

	return &ChatModels{
		Classifier:     classifier,
		Generator:      generator,
		ClassifierName: config.Classifier.Model,
		GeneratorName:  config.Response.Model,
	}, nil
}

// Classify issues a single-shot instruction-following call: system
// instructions plus one user text.
func (cm *ChatModels) Classify(ctx context.Context, task, instructions, text string) (Completion, error) {
	return complete(ctx, cm.Classifier, cm.ClassifierName, task, instructions, []*schema.Message{schema.UserMessage(text)})
}

// Generate issues a multi-message completion call.
func (cm *ChatModels) Generate(ctx context.Context, task, instructions string, msgs ...*schema.Message) (Completion, error) {
	return complete(ctx, cm.Generator, cm.GeneratorName, task, instructions, msgs)
}

func complete(ctx context.Context, m einomodel.BaseChatModel, modelName, task, instructions string, msgs []*schema.Message) (Completion, error) {
	if m == nil {
		return Completion{}, errx.WrapModel(fmt.Errorf("%s: chat model not configured", task))
	}
	sys := schema.SystemMessage(instructions)
	sys.Name = task
	in := append([]*schema.Message{sys}, msgs...)

	out, err := m.Generate(ctx, in)
	if err != nil {
		if ctx.Err() != nil {
			return Completion{}, ctx.Err()
		}
		return Completion{}, errx.WrapModel(fmt.Errorf("%s: %w", task, err))
	}
	if out == nil {
		return Completion{}, errx.WrapModel(fmt.Errorf("%s: empty response", task))
	}

	c := Completion{Text: strings.TrimSpace(out.Content)}
	if usage := model.UsageOf(out); usage != nil {
		cost := model.ResolvePricing(modelName).CostOf(usage)
		c.CostUSD = cost.Total()
		metrics.RecordLLMUsage(modelName, usage.PromptTokens, usage.CompletionTokens, c.CostUSD)
		logx.Debug().
			Str("task", task).
			Str("model", modelName).
			Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Int("total_tokens", usage.TotalTokens).
			Float64("input_cost_usd", cost.Input).
			Float64("output_cost_usd", cost.Output).
			Float64("total_cost_usd", c.CostUSD).
			Msg("LLM usage")
	}
	return c, nil
}

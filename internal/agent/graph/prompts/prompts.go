package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/knu-deptqa/server/internal/agent/model"
)

var (
	//go:embed template/language.txt
	languagePrompt string
	//go:embed template/gate.txt
	gatePrompt string
	//go:embed template/department.txt
	departmentPrompt string
	//go:embed template/followup.txt
	followUpPrompt string
	//go:embed template/rewrite.txt
	rewritePrompt string
	//go:embed template/examples.txt
	examplesPrompt string
	//go:embed template/answer_standard.txt
	answerStandardPrompt string
	//go:embed template/answer_user_focused.txt
	answerUserFocusedPrompt string
	//go:embed template/summary.txt
	summaryPrompt string
)

// Variants of the answer prompt.
const (
	VariantStandard    = "standard"
	VariantUserFocused = "user_focused"
)

// render formats a single system message template through the Eino prompt
// component so prompt callbacks fire for every rendered prompt.
func render(ctx context.Context, name, tpl string, vars map[string]any) (string, error) {
	msgs, err := prompt.FromMessages(schema.GoTemplate, schema.SystemMessage(tpl)).Format(ctx, vars)
	if err != nil {
		return "", fmt.Errorf("%s prompt: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return "", fmt.Errorf("%s prompt: empty result", name)
	}
	return msgs[0].Content, nil
}

// LanguageName returns the English name of lang used inside prompts.
func LanguageName(lang model.Language) string {
	if lang == model.English {
		return "English"
	}
	return "Korean"
}

func RenderLanguage(ctx context.Context) (string, error) {
	return render(ctx, "language", languagePrompt, map[string]any{})
}

// RenderGate renders the admissibility prompt. history is the conversation
// summary plus recent turns and may be empty.
func RenderGate(ctx context.Context, cfg model.PromptConfig, history string) (string, error) {
	return render(ctx, "gate", gatePrompt, map[string]any{
		"Organization": cfg.Organization,
		"Departments":  model.DepartmentNames(),
		"Categories":   model.DocumentCategories,
		"Context":      history,
	})
}

func RenderDepartment(ctx context.Context) (string, error) {
	return render(ctx, "department", departmentPrompt, map[string]any{
		"Departments": model.DepartmentNames(),
	})
}

func RenderFollowUp(ctx context.Context, previous []string, department string) (string, error) {
	return render(ctx, "followup", followUpPrompt, map[string]any{
		"Previous":   previous,
		"Department": department,
	})
}

func RenderRewrite(ctx context.Context, previous []string, department string) (string, error) {
	return render(ctx, "rewrite", rewritePrompt, map[string]any{
		"Previous":   previous,
		"Department": department,
	})
}

func RenderExamples(ctx context.Context, cfg model.PromptConfig, lang model.Language, reason string) (string, error) {
	return render(ctx, "examples", examplesPrompt, map[string]any{
		"Organization": cfg.Organization,
		"Reason":       reason,
		"Departments":  model.DepartmentNames(),
		"LanguageName": LanguageName(lang),
	})
}

// RenderAnswer renders the answer prompt for the configured variant.
// Unknown variants fall back to the standard prompt.
func RenderAnswer(ctx context.Context, cfg model.PromptConfig, lang model.Language, documents, summary string) (string, error) {
	tpl := answerStandardPrompt
	if cfg.Variant == VariantUserFocused {
		tpl = answerUserFocusedPrompt
	}
	return render(ctx, "answer", tpl, map[string]any{
		"Organization": cfg.Organization,
		"Documents":    documents,
		"Summary":      summary,
		"LanguageName": LanguageName(lang),
	})
}

// RenderSummary renders the extend-or-create summarization prompt. The
// transcript itself is sent as the user message.
func RenderSummary(ctx context.Context, lang model.Language, previous string) (string, error) {
	return render(ctx, "summary", summaryPrompt, map[string]any{
		"Previous":     previous,
		"LanguageName": LanguageName(lang),
	})
}

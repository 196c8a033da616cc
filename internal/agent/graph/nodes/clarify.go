package nodes

import (
	"context"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/knu-deptqa/server/internal/agent/graph/parsers"
	"github.com/knu-deptqa/server/internal/agent/graph/prompts"
	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
)

const (
	unclearKo  = "질문이 다음과 같은 이유로 불명확합니다. 질문을 다시 입력해주세요."
	unclearEn  = "Your question is unclear for the following reason. Please enter your question again."
	examplesKo = "이렇게 질문하는건 어떨까요?"
	examplesEn = "How about asking like this?"
)

// localizedReasons maps internal reasons to user-facing text per language.
var localizedReasons = map[string][2]string{
	errx.SearchUnavailableMessage:     {"문서 검색 서비스를 일시적으로 사용할 수 없습니다.", "The document search service is temporarily unavailable."},
	errx.NoDocumentsMessage:           {"질문과 관련된 공식 문서를 찾지 못했습니다.", "No official documents related to the question were found."},
	errx.GenerationUnavailableMessage: {"답변 생성 서비스를 일시적으로 사용할 수 없습니다.", "The answer service is temporarily unavailable."},
	errx.MalformedOutputMessage:       {"질문을 분석하지 못했습니다.", "The question could not be analyzed."},
	errx.SystemErrorMessage:           {"일시적인 오류가 발생했습니다.", "A temporary error occurred."},
	errx.InvariantMessage:             {"일시적인 오류가 발생했습니다.", "A temporary error occurred."},
	EmptyQuestionReason:               {"질문이 비어 있습니다.", "The question is empty."},
	parsers.DefaultRejectReason:       {"학과 공식 문서로 답변할 수 있는 질문이 아닙니다.", "The question cannot be answered from the official department documents."},
}

// Clarify appends the three-part clarification message. It never fails: when
// the example generator is unavailable, static examples are used. The
// follow-up chain is cleared so a rejected question cannot seed a follow-up.
func Clarify(d Deps) Node {
	return func(ctx context.Context, s model.TurnState) (model.Update, error) {
		log := nodeLogger(s, NodeClarify)
		lang := model.ParseLanguage(string(s.Conversation.Language))
		reason := s.Failure
		if reason == "" {
			reason = s.Conversation.QuestionReason
		}
		shown := LocalizeReason(reason, lang)

		var (
			examples []string
			cost     float64
		)
		// Model-backed examples only when the turn has not already hit a service failure.
		if s.Failure == "" && s.Question != "" {
			var err error
			examples, cost, err = generateExamples(ctx, d, s.Question, lang, shown)
			if err != nil {
				if ctx.Err() != nil {
					return model.Update{}, ctx.Err()
				}
				log.Warn().Err(err).Msg("Example generation failed - using static examples")
			}
		}
		if len(examples) == 0 {
			examples = StaticExamples(lang, s.Conversation.CurrentDepartment)
		}

		log.Debug().Str("reason", reason).Int("examples", len(examples)).Msg("Clarification composed")
		return model.Update{
			Append:        []model.Message{model.NewMessage(model.RoleAssistant, ClarificationMessage(lang, shown, examples))},
			FollowUpChain: nil,
			ReplaceChain:  true,
			Route:         model.RouteClarify,
			CostUSD:       cost,
		}, nil
	}
}

// ClarificationMessage renders the unclear statement, the reason and the
// example questions as three paragraphs.
func ClarificationMessage(lang model.Language, reason string, examples []string) string {
	unclear, header := unclearKo, examplesKo
	if lang == model.English {
		unclear, header = unclearEn, examplesEn
	}
	var b strings.Builder
	b.WriteString(header)
	for _, ex := range examples {
		b.WriteString("\n- ")
		b.WriteString(ex)
	}
	return strings.Join([]string{unclear, reason, b.String()}, "\n\n")
}

// LocalizeReason returns the user-facing text of a known reason. Reasons
// produced by the gate are passed through.
func LocalizeReason(reason string, lang model.Language) string {
	idx := 0
	if lang == model.English {
		idx = 1
	}
	if reason == "" {
		return localizedReasons[parsers.DefaultRejectReason][idx]
	}
	if text, ok := localizedReasons[reason]; ok {
		return text[idx]
	}
	return reason
}

// StaticExamples builds two example questions from the department catalog.
func StaticExamples(lang model.Language, department string) []string {
	if _, ok := model.LookupDepartment(department); !ok {
		department = model.Departments[0].Name
	}
	if lang == model.English {
		return []string{
			"What are the graduation requirements of " + department + "?",
			"When is the scholarship application period of " + department + "?",
		}
	}
	return []string{
		department + " 졸업요건을 알려주세요.",
		department + " 장학금 신청 기간은 언제인가요?",
	}
}

func generateExamples(ctx context.Context, d Deps, question string, lang model.Language, reason string) ([]string, float64, error) {
	instructions, err := prompts.RenderExamples(ctx, d.Prompt, lang, reason)
	if err != nil {
		return nil, 0, err
	}
	comp, err := d.Models.Generate(ctx, TaskExamples, instructions, schema.UserMessage(question))
	if err != nil {
		return nil, comp.CostUSD, err
	}
	return parsers.ParseExamples(comp.Text), comp.CostUSD, nil
}

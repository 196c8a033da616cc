package nodes

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knu-deptqa/server/internal/agent/agenttest"
	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
)

var facultyDoc = model.Document{
	Content: "교수 연락처: kim@kongju.ac.kr",
	Metadata: model.DocumentMetadata{
		FileName:   "교수진 소개",
		Department: "컴퓨터공학과",
		URL:        "https://ce.kongju.ac.kr/faculty",
		Date:       "2024-03-01",
	},
}

func answerable(question string, docs ...model.Document) model.TurnState {
	s := accepted(turn(question))
	s.Conversation.Documents = docs
	return s
}

func TestGenerateKeepsSourcesVerbatim(t *testing.T) {
	m := agenttest.NewChatModel().Reply(TaskAnswer, "김교수님의 이메일은 kim@kongju.ac.kr 입니다.")
	s := answerable("컴퓨터공학과 교수님 이메일 알려주세요", facultyDoc)
	s.Conversation.Summarization = "이전에 학과 위치를 물었다."

	upd, err := Generate(testDeps(m, nil))(context.Background(), s)
	require.NoError(t, err)

	got := applied(s, upd)
	require.NotNil(t, got.Reply)
	assert.Contains(t, got.Reply.Content, "김교수님의 이메일은 kim@kongju.ac.kr 입니다.")
	assert.Contains(t, got.Reply.Content, "https://ce.kongju.ac.kr/faculty")
	assert.Contains(t, got.Reply.Content, "교수진 소개")
	assert.Equal(t, model.RouteRetrieve, got.Route)

	prompt := systemPrompt(m.Calls(TaskAnswer)[0])
	assert.Contains(t, prompt, "content: 교수 연락처: kim@kongju.ac.kr")
	assert.Contains(t, prompt, "source: https://ce.kongju.ac.kr/faculty")
	assert.Contains(t, prompt, "이전에 학과 위치를 물었다.")
	assert.Contains(t, prompt, "Korean")
}

func TestGenerateUserFocusedVariant(t *testing.T) {
	m := agenttest.NewChatModel().Reply(TaskAnswer, "answer")
	d := testDeps(m, nil)
	d.Prompt.Variant = "user_focused"
	s := answerable("q", facultyDoc)
	s.Conversation.Language = model.English

	upd, err := Generate(d)(context.Background(), s)
	require.NoError(t, err)
	assert.Contains(t, upd.Append[0].Content, "Sources:")
	assert.Contains(t, systemPrompt(m.Calls(TaskAnswer)[0]), "friendly")
}

func TestGenerateRequiresAcceptedQuestion(t *testing.T) {
	m := agenttest.NewChatModel().Reply(TaskAnswer, "answer")
	for _, appropriate := range []*bool{nil, model.Bool(false)} {
		s := turn("q")
		s.Conversation.QuestionAppropriate = appropriate
		s.Conversation.Documents = []model.Document{facultyDoc}

		_, err := Generate(testDeps(m, nil))(context.Background(), s)
		require.Error(t, err)
		assert.Equal(t, errx.InvariantMessage, errx.SafeMessage(err))
	}
	assert.Empty(t, m.Calls())
}

func TestGenerateFailures(t *testing.T) {
	m := agenttest.NewChatModel().Fail(TaskAnswer, errors.New("500"))
	_, err := Generate(testDeps(m, nil))(context.Background(), answerable("q", facultyDoc))
	assert.Equal(t, errx.GenerationUnavailableMessage, errx.SafeMessage(err))

	m = agenttest.NewChatModel().Reply(TaskAnswer, "  ")
	_, err = Generate(testDeps(m, nil))(context.Background(), answerable("q", facultyDoc))
	assert.Equal(t, errx.GenerationUnavailableMessage, errx.SafeMessage(err))

	_, err = Generate(testDeps(m, nil))(context.Background(), answerable("q"))
	assert.ErrorIs(t, err, ErrNoDocuments)
}

func TestFormatDocumentsOrder(t *testing.T) {
	docs := []model.Document{
		{Content: "first", Metadata: model.DocumentMetadata{FileName: "a"}},
		{Content: "second", Metadata: model.DocumentMetadata{FileName: "b"}},
	}
	out := FormatDocuments(docs)
	blocks := strings.Split(out, "\n---\n")
	require.Len(t, blocks, 2)
	assert.Contains(t, blocks[0], "content: first")
	assert.Contains(t, blocks[1], "content: second")
}

func TestSourcesSection(t *testing.T) {
	out := SourcesSection(model.Korean, []model.Document{facultyDoc, {Metadata: model.DocumentMetadata{FileName: "only name"}}})
	assert.Equal(t, "참고 문서:\n- 교수진 소개 (컴퓨터공학과, 2024-03-01) https://ce.kongju.ac.kr/faculty\n- only name", out)
}

func TestSummarizeMemoryBound(t *testing.T) {
	window := model.DefaultWindow
	for _, n := range []int{0, 1, window, 3 * window} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			m := agenttest.NewChatModel().Reply(TaskSummary, "요약")
			s := turn("q")
			s.Conversation.Messages = nil
			for i := 0; i < n; i++ {
				s.Conversation.Messages = append(s.Conversation.Messages, model.NewMessage(model.RoleUser, fmt.Sprintf("m%d", i)))
			}

			upd, err := Summarize(testDeps(m, nil))(context.Background(), s)
			require.NoError(t, err)

			got := applied(s, upd)
			assert.LessOrEqual(t, len(got.Conversation.Messages), window)
			assert.Equal(t, min(n, window), len(got.Conversation.Messages))
			if n > 0 {
				assert.Equal(t, fmt.Sprintf("m%d", n-1), got.Conversation.Messages[len(got.Conversation.Messages)-1].Content)
				assert.Equal(t, "요약", got.Conversation.Summarization)
			} else {
				assert.Empty(t, m.Calls())
			}
		})
	}
}

func TestSummarizeExtendsPriorSummary(t *testing.T) {
	m := agenttest.NewChatModel().Reply(TaskSummary, "확장된 요약")
	s := turn("장학금은?")
	s.Conversation.Summarization = "기존 요약"

	upd, err := Summarize(testDeps(m, nil))(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, "확장된 요약", *upd.Summary)

	call := m.Calls(TaskSummary)[0]
	assert.Contains(t, systemPrompt(call), "기존 요약")
	assert.Contains(t, systemPrompt(call), "Extend the summary")
	assert.Contains(t, lastUser(call), "UserMessage(장학금은?)")
}

func TestSummarizeFailureKeepsPriorSummary(t *testing.T) {
	m := agenttest.NewChatModel().Fail(TaskSummary, errors.New("timeout"))
	s := turn("q")
	s.Conversation.Summarization = "기존 요약"

	upd, err := Summarize(testDeps(m, nil))(context.Background(), s)
	require.NoError(t, err)

	got := applied(s, upd)
	assert.Equal(t, "기존 요약", got.Conversation.Summarization)
	assert.Len(t, got.Conversation.Messages, 1)
}

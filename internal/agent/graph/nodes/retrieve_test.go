package nodes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/knu-deptqa/server/internal/agent/agenttest"
	"github.com/knu-deptqa/server/internal/agent/graph/tools"
	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
)

func corpus() *agenttest.Retriever {
	return agenttest.NewRetriever(
		agenttest.Document("2024학년도 1학기 수강신청은 2월 20일부터입니다.", "수강신청 안내", "소프트웨어학과", "https://sw.kongju.ac.kr/notice/1", "2024-02-01"),
		agenttest.Document("교수 연락처: kim@kongju.ac.kr", "교수진 소개", "컴퓨터공학과", "https://ce.kongju.ac.kr/faculty", "2024-03-01"),
		agenttest.Document("사업단 공모전 안내", "SW 공모전", "공주대학교 SW중심대학사업단", "https://swuniv.kongju.ac.kr/1", "2024-05-10"),
		agenttest.Document("장학금 신청은 3월입니다.", "장학 안내", "소프트웨어학과", "https://sw.kongju.ac.kr/notice/2", "2024-02-15"),
	)
}

func accepted(s model.TurnState) model.TurnState {
	s.Conversation.QuestionAppropriate = model.Bool(true)
	return s
}

func TestRetrieveFollowUpKeepsDepartment(t *testing.T) {
	m := agenttest.NewChatModel()
	r := corpus()
	s := accepted(turn("그럼 장학금은?"))
	s.Conversation.FollowUp = true
	s.Conversation.CurrentDepartment = "소프트웨어학과"
	s.SearchQuery = "소프트웨어학과 장학금 신청 기간"

	upd, err := Retrieve(testDeps(m, r))(context.Background(), s)
	require.NoError(t, err)

	got := applied(s, upd)
	assert.Equal(t, "소프트웨어학과", got.Department)
	assert.Equal(t, model.DepartmentFollowUp, got.DepartmentSource)
	assert.Equal(t, "소프트웨어학과", got.Conversation.CurrentDepartment)
	assert.Empty(t, m.Calls(TaskDepartment))

	calls := r.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "소프트웨어학과 장학금 신청 기간", calls[0].Query)
	assert.Equal(t, []string{"소프트웨어학과"}, calls[0].Departments)
	assert.Equal(t, model.DefaultTopK, calls[0].TopK)
	require.Len(t, got.RawResults, 1)
}

func TestRetrieveMentionedDepartment(t *testing.T) {
	m := agenttest.NewChatModel()
	r := corpus()
	s := accepted(turn("컴퓨터공학과 교수님 이메일 알려주세요"))
	s.Apply(model.Update{Department: "컴퓨터공학과", DepartmentSource: model.DepartmentMentioned})

	upd, err := Retrieve(testDeps(m, r))(context.Background(), s)
	require.NoError(t, err)

	assert.Empty(t, m.Calls(TaskDepartment))
	assert.Equal(t, []string{"컴퓨터공학과"}, r.Calls()[0].Departments)
	assert.Equal(t, "컴퓨터공학과", *upd.CurrentDepartment)

	out, err := tools.DecodeSearchOutput(upd.RawResults[0])
	require.NoError(t, err)
	require.Equal(t, 1, out.Total)
	assert.Equal(t, "https://ce.kongju.ac.kr/faculty", out.Documents[0].Metadata.URL)
}

func TestRetrievePredictsDepartmentWithAliases(t *testing.T) {
	m := agenttest.NewChatModel().Reply(TaskDepartment, "SW중심대학사업단")
	r := corpus()
	s := accepted(turn("사업단 공모전 있어?"))

	upd, err := Retrieve(testDeps(m, r))(context.Background(), s)
	require.NoError(t, err)

	got := applied(s, upd)
	assert.Equal(t, model.DepartmentPredicted, got.DepartmentSource)
	assert.ElementsMatch(t, []string{"SW중심대학사업단", "공주대학교 SW중심대학사업단"}, r.Calls()[0].Departments)

	out, err := tools.DecodeSearchOutput(got.RawResults[0])
	require.NoError(t, err)
	assert.Equal(t, 1, out.Total)
}

func TestRetrieveUnrecognizedPredictionSearchesUnfiltered(t *testing.T) {
	for name, m := range map[string]*agenttest.ChatModel{
		"none":    agenttest.NewChatModel().Reply(TaskDepartment, "none"),
		"unknown": agenttest.NewChatModel().Reply(TaskDepartment, "경영학과"),
		"failure": agenttest.NewChatModel().Fail(TaskDepartment, errors.New("503")),
	} {
		t.Run(name, func(t *testing.T) {
			r := corpus()
			s := accepted(turn("수강신청 언제야"))
			s.Conversation.CurrentDepartment = "컴퓨터공학과"

			upd, err := Retrieve(testDeps(m, r))(context.Background(), s)
			require.NoError(t, err)

			got := applied(s, upd)
			assert.Empty(t, r.Calls()[0].Departments)
			assert.Empty(t, got.Department)
			assert.Empty(t, got.Conversation.CurrentDepartment)
		})
	}
}

func TestRetrieveFailure(t *testing.T) {
	m := agenttest.NewChatModel().Reply(TaskDepartment, "소프트웨어학과")
	s := accepted(turn("소프트웨어학과 수강신청"))

	upd, err := Retrieve(testDeps(m, agenttest.Failing(errors.New("connection refused"))))(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, errx.SearchUnavailableMessage, errx.SafeMessage(err))
	assert.Empty(t, upd.RawResults)
}

func rawOutput(t *testing.T, n int) string {
	t.Helper()
	out := tools.SearchDocumentsOutput{}
	for i := 0; i < n; i++ {
		out.Documents = append(out.Documents, model.Document{
			Content:  fmt.Sprintf("chunk %d", i),
			Metadata: model.DocumentMetadata{FileName: fmt.Sprintf("file-%d", i), Department: "소프트웨어학과", URL: fmt.Sprintf("https://sw.kongju.ac.kr/%d", i), Date: "2024-01-01"},
		})
	}
	out.Total = n
	b, err := json.Marshal(out)
	require.NoError(t, err)
	return string(b)
}

func TestCollectDocumentsCap(t *testing.T) {
	maxDocs := model.DefaultMaxDocs
	for _, n := range []int{0, 1, maxDocs, 2 * maxDocs} {
		t.Run(fmt.Sprint(n), func(t *testing.T) {
			docs := CollectDocuments([]string{rawOutput(t, n)}, maxDocs)
			assert.LessOrEqual(t, len(docs), maxDocs)
			assert.Equal(t, min(n, maxDocs), len(docs))
			for i, d := range docs {
				assert.Equal(t, fmt.Sprintf("chunk %d", i), d.Content)
				assert.Equal(t, fmt.Sprintf("https://sw.kongju.ac.kr/%d", i), d.Metadata.URL)
			}
		})
	}
}

func TestCollectDocumentsAcrossOutputs(t *testing.T) {
	raws := make([]string, 0, 2*model.DefaultMaxDocs)
	for i := 0; i < 2*model.DefaultMaxDocs; i++ {
		raws = append(raws, rawOutput(t, 1))
	}
	raws = append([]string{"not json", `{"documents":[{"content":"  "}]}`}, raws...)
	assert.Len(t, CollectDocuments(raws, model.DefaultMaxDocs), model.DefaultMaxDocs)
}

func TestCollectNoDocuments(t *testing.T) {
	s := accepted(turn("q"))
	s.Conversation.Documents = []model.Document{{Content: "stale"}}
	s.RawResults = []string{rawOutput(t, 0)}

	upd, err := Collect(testDeps(agenttest.NewChatModel(), nil))(context.Background(), s)
	require.ErrorIs(t, err, ErrNoDocuments)
	assert.Equal(t, errx.NoDocumentsMessage, errx.SafeMessage(err))

	got := applied(s, upd)
	assert.Empty(t, got.Conversation.Documents)
}

func TestCollectReplacesDocuments(t *testing.T) {
	s := accepted(turn("q"))
	s.Conversation.Documents = []model.Document{{Content: "stale"}}
	s.RawResults = []string{rawOutput(t, 2)}

	upd, err := Collect(testDeps(agenttest.NewChatModel(), nil))(context.Background(), s)
	require.NoError(t, err)

	got := applied(s, upd)
	require.Len(t, got.Conversation.Documents, 2)
	assert.Equal(t, "chunk 0", got.Conversation.Documents[0].Content)
}

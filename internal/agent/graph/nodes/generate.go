package nodes

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/schema"

	"github.com/knu-deptqa/server/internal/agent/graph/prompts"
	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
)

const documentSeparator = "\n---\n"

// Generate composes the grounded answer from the collected documents. The
// reply ends with a sources section copied from the document metadata.
func Generate(d Deps) Node {
	return func(ctx context.Context, s model.TurnState) (model.Update, error) {
		if ok, set := s.Appropriate(); !set || !ok {
			return model.Update{}, errx.Invariant("generation reached without an accepted question")
		}
		docs := s.Conversation.Documents
		if len(docs) == 0 {
			return model.Update{}, ErrNoDocuments
		}
		lang := model.ParseLanguage(string(s.Conversation.Language))

		instructions, err := prompts.RenderAnswer(ctx, d.Prompt, lang, FormatDocuments(docs), s.Conversation.Summarization)
		if err != nil {
			return model.Update{}, errx.WrapModel(err)
		}
		question := s.SearchQuery
		if question == "" {
			question = s.Question
		}
		comp, err := d.Models.Generate(ctx, TaskAnswer, instructions, schema.UserMessage(question))
		if err != nil {
			return model.Update{CostUSD: comp.CostUSD}, err
		}
		if comp.Text == "" {
			return model.Update{CostUSD: comp.CostUSD}, errx.WrapModel(fmt.Errorf("empty answer"))
		}

		log := nodeLogger(s, NodeGenerate)
		log.Debug().Int("documents", len(docs)).Float64("cost_usd", comp.CostUSD).Msg("Answer generated")
		reply := comp.Text + "\n\n" + SourcesSection(lang, docs)
		return model.Update{
			Append:  []model.Message{model.NewMessage(model.RoleAssistant, reply)},
			Route:   model.RouteRetrieve,
			CostUSD: comp.CostUSD,
		}, nil
	}
}

// FormatDocuments renders documents in their original order with content and
// metadata verbatim, separated by "---".
func FormatDocuments(docs []model.Document) string {
	blocks := make([]string, 0, len(docs))
	for i, doc := range docs {
		var b strings.Builder
		b.WriteString("[document " + strconv.Itoa(i+1) + "]\n")
		b.WriteString("content: " + doc.Content + "\n")
		b.WriteString("title: " + doc.Metadata.FileName + "\n")
		b.WriteString("department: " + doc.Metadata.Department + "\n")
		b.WriteString("date: " + doc.Metadata.Date + "\n")
		b.WriteString("source: " + doc.Metadata.URL)
		blocks = append(blocks, b.String())
	}
	return strings.Join(blocks, documentSeparator)
}

// SourcesSection lists every document's file name, department, date and url.
func SourcesSection(lang model.Language, docs []model.Document) string {
	header := "참고 문서:"
	if lang == model.English {
		header = "Sources:"
	}
	var b strings.Builder
	b.WriteString(header)
	for _, doc := range docs {
		m := doc.Metadata
		b.WriteString("\n- ")
		b.WriteString(m.FileName)
		var details []string
		for _, v := range []string{m.Department, m.Date} {
			if v != "" {
				details = append(details, v)
			}
		}
		if len(details) > 0 {
			b.WriteString(" (" + strings.Join(details, ", ") + ")")
		}
		if m.URL != "" {
			b.WriteString(" " + m.URL)
		}
	}
	return b.String()
}

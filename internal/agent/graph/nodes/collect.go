package nodes

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/knu-deptqa/server/internal/agent/graph/tools"
	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
	"github.com/knu-deptqa/server/internal/metrics"
)

// ErrNoDocuments is the turn failure of a retrieval that yielded nothing usable.
var ErrNoDocuments = errx.New(fmt.Errorf("retrieval returned no documents"), http.StatusNotFound, errx.NoDocumentsMessage)

// Collect normalizes this turn's raw search outputs into the document list of
// the thread, replacing the previous turn's documents.
func Collect(d Deps) Node {
	maxDocs := d.Conversation.Normalize().Retrieval.MaxDocs
	return func(ctx context.Context, s model.TurnState) (model.Update, error) {
		log := nodeLogger(s, NodeCollect)
		docs := CollectDocuments(s.RawResults, maxDocs)
		metrics.RecordRetrievedDocuments(len(docs))
		if len(docs) == 0 {
			return model.Update{ReplaceDocuments: true}, ErrNoDocuments
		}
		log.Debug().Int("documents", len(docs)).Msg("Documents collected")
		return model.Update{Documents: docs, ReplaceDocuments: true}, nil
	}
}

// CollectDocuments decodes raw tool outputs in order, drops undecodable
// outputs and empty contents, and keeps at most maxDocs documents. Metadata
// is carried unmodified.
func CollectDocuments(raw []string, maxDocs int) []model.Document {
	if maxDocs <= 0 {
		maxDocs = model.DefaultMaxDocs
	}
	docs := make([]model.Document, 0, maxDocs)
	for _, r := range raw {
		out, err := tools.DecodeSearchOutput(r)
		if err != nil {
			continue
		}
		for _, doc := range out.Documents {
			if strings.TrimSpace(doc.Content) == "" {
				continue
			}
			docs = append(docs, doc)
			if len(docs) == maxDocs {
				return docs
			}
		}
	}
	return docs
}

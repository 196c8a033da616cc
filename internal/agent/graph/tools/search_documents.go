package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/retriever"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/knu-deptqa/server/internal/agent/model"
	"github.com/knu-deptqa/server/internal/agent/retrieval"
)

// ===================================
// Search Documents Tool
// ===================================

const SearchDocumentsToolName = "search_documents"

type SearchDocumentsInput struct {
	Query       string   `json:"query"`
	Departments []string `json:"departments,omitempty"`
	TopK        int      `json:"top_k,omitempty"`
}

type SearchDocumentsOutput struct {
	Documents []model.Document `json:"documents"`
	Total     int              `json:"total"`
}

// NewSearchDocumentsTool wraps a retriever as an Eino tool. Departments, when
// given, are passed to the retriever as an OR-filter.
func NewSearchDocumentsTool(r retriever.Retriever, defaultTopK int) tool.InvokableTool {
	if defaultTopK <= 0 {
		defaultTopK = model.DefaultTopK
	}
	return utils.NewTool(
		&schema.ToolInfo{
			Name: SearchDocumentsToolName,
			Desc: "Search the official department documents of the university. Returns ranked document chunks with file name, department, date and url.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"query": {
					Type:     "string",
					Desc:     "Standalone search question in Korean or English.",
					Required: true,
				},
				"departments": {
					Type:     "array",
					Desc:     "Optional department name and its aliases; a document matches if it belongs to any of them.",
					ElemInfo: &schema.ParameterInfo{Type: "string"},
				},
				"top_k": {
					Type: "number",
					Desc: fmt.Sprintf("Maximum number of documents to return (default: %d)", defaultTopK),
				},
			}),
		},
		func(ctx context.Context, in *SearchDocumentsInput) (*SearchDocumentsOutput, error) {
			if strings.TrimSpace(in.Query) == "" {
				return nil, fmt.Errorf("query is required")
			}
			if in.TopK <= 0 {
				in.TopK = defaultTopK
			}

			opts := []retriever.Option{retriever.WithTopK(in.TopK)}
			if len(in.Departments) > 0 {
				opts = append(opts, retriever.WithDSLInfo(map[string]any{
					retrieval.DSLDepartmentKey: in.Departments,
				}))
			}

			docs, err := r.Retrieve(ctx, in.Query, opts...)
			if err != nil {
				return nil, err
			}

			out := &SearchDocumentsOutput{Documents: make([]model.Document, 0, len(docs))}
			for _, d := range docs {
				if d == nil {
					continue
				}
				out.Documents = append(out.Documents, model.Document{
					Content:  d.Content,
					Metadata: retrieval.MetadataOf(d.MetaData),
				})
			}
			out.Total = len(out.Documents)
			return out, nil
		},
	)
}

// Invoke runs t outside a ToolsNode while still reporting the call to the
// tool callbacks of ctx.
func Invoke(ctx context.Context, t tool.InvokableTool, args string) (string, error) {
	name := SearchDocumentsToolName
	if info, err := t.Info(ctx); err == nil && info != nil {
		name = info.Name
	}
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      name,
		Type:      "InvokableTool",
		Component: components.ComponentOfTool,
	})
	ctx = callbacks.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: args})
	out, err := t.InvokableRun(ctx, args)
	if err != nil {
		callbacks.OnError(ctx, err)
		return "", err
	}
	callbacks.OnEnd(ctx, &tool.CallbackOutput{Response: out})
	return out, nil
}

// SearchArguments encodes a tool call for NewSearchDocumentsTool.
func SearchArguments(in SearchDocumentsInput) (string, error) {
	b, err := json.Marshal(in)
	if err != nil {
		return "", fmt.Errorf("encode %s arguments: %w", SearchDocumentsToolName, err)
	}
	return string(b), nil
}

// DecodeSearchOutput decodes the raw output of NewSearchDocumentsTool.
func DecodeSearchOutput(raw string) (SearchDocumentsOutput, error) {
	var out SearchDocumentsOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return SearchDocumentsOutput{}, fmt.Errorf("decode %s output: %w", SearchDocumentsToolName, err)
	}
	return out, nil
}

// Package observers attaches logging, tracing and metrics to graph runs
// through Eino callbacks.
package observers

import (
	einocb "github.com/cloudwego/eino/callbacks"
	callbackHelper "github.com/cloudwego/eino/utils/callbacks"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope of graph spans.
const TracerName = "github.com/knu-deptqa/server/internal/agent/graph"

// NewAllCallbacks aggregates the component observers (model, prompt, tool)
// and the node observer into the handlers passed to compose.WithCallbacks.
// A nil tracer uses the global provider.
func NewAllCallbacks(tracer trace.Tracer) []einocb.Handler {
	if tracer == nil {
		tracer = otel.Tracer(TracerName)
	}
	components := callbackHelper.NewHandlerHelper().
		Tool(newToolHandler()).
		ChatModel(newModelHandler()).
		Prompt(newPromptHandler()).
		Handler()
	return []einocb.Handler{components, NewNodeCallbacks(tracer)}
}

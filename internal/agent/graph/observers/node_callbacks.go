package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/knu-deptqa/server/internal/metrics"
	logx "github.com/knu-deptqa/server/pkg/logger"
)

// SpanPrefix prefixes the span name of every graph node.
const SpanPrefix = "deptqa.node."

type nodeStartKey struct{}

type nodeStart struct {
	at   time.Time
	span trace.Span
}

// NewNodeCallbacks times every lambda node of the graph and wraps it in a span.
func NewNodeCallbacks(tracer trace.Tracer) einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackInput) context.Context {
			if !isNode(info) {
				return ctx
			}
			ctx, span := tracer.Start(ctx, SpanPrefix+info.Name,
				trace.WithSpanKind(trace.SpanKindInternal),
				trace.WithAttributes(attribute.String("deptqa.node", info.Name)),
			)
			return context.WithValue(ctx, nodeStartKey{}, &nodeStart{at: time.Now(), span: span})
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, _ einocb.CallbackOutput) context.Context {
			if st := finish(ctx, info); st != nil {
				st.span.SetStatus(codes.Ok, "")
				st.span.End()
			}
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			if st := finish(ctx, info); st != nil {
				st.span.RecordError(err)
				st.span.SetStatus(codes.Error, err.Error())
				st.span.End()
				logx.Warn().Err(err).Str("node", info.Name).Msg("Node aborted the turn")
			}
			return ctx
		}).
		Build()
}

func isNode(info *einocb.RunInfo) bool {
	return info != nil && info.Component == compose.ComponentOfLambda && info.Name != ""
}

func finish(ctx context.Context, info *einocb.RunInfo) *nodeStart {
	if !isNode(info) {
		return nil
	}
	st, ok := ctx.Value(nodeStartKey{}).(*nodeStart)
	if !ok {
		return nil
	}
	metrics.RecordNodeDuration(info.Name, time.Since(st.at).Seconds())
	return st
}

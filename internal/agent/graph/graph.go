package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/knu-deptqa/server/internal/agent/graph/conversations"
	"github.com/knu-deptqa/server/internal/agent/graph/nodes"
	"github.com/knu-deptqa/server/internal/agent/graph/observers"
	"github.com/knu-deptqa/server/internal/agent/model"
	errx "github.com/knu-deptqa/server/internal/core/error"
	"github.com/knu-deptqa/server/internal/metrics"
	logx "github.com/knu-deptqa/server/pkg/logger"
)

const maxRunSteps = 20

// Runner executes turns of the conversation graph against stored threads.
type Runner interface {
	Invoke(ctx context.Context, in model.QueryInput) (*model.TurnResult, error)
	Thread(ctx context.Context, threadID string) (*model.ConversationState, error)
	Threads(ctx context.Context) ([]model.ThreadSummary, error)
	DeleteThread(ctx context.Context, threadID string) error
}

// Config holds everything needed to compose the graph end-to-end.
type Config struct {
	Models       *nodes.ChatModels
	Search       tool.InvokableTool
	Repository   model.StateRepository
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
	// Tracer defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
}

// GraphBuilder handles the construction of the conversation graph
type GraphBuilder struct {
	deps     nodes.Deps
	language model.Language
	graph    *compose.Graph[model.TurnInput, *model.TurnResult]
}

type graphRunner struct {
	runnable  compose.Runnable[model.TurnInput, *model.TurnResult]
	repo      model.StateRepository
	locks     *threadLocks
	callbacks []einocb.Handler
	tracer    trace.Tracer
	language  model.Language
	window    int
	// summarize compacts the memory of turns the graph could not finish.
	summarize nodes.Node
}

// BuildResponseGraph builds the graph and returns a Runner over cfg.Repository.
func BuildResponseGraph(ctx context.Context, cfg Config) (Runner, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("state repository is nil")
	}
	conv := cfg.Conversation.Normalize()
	deps := nodes.Deps{
		Models:       cfg.Models,
		Search:       cfg.Search,
		Messages:     conversations.NewMessagesManager(conv),
		Prompt:       cfg.Prompt,
		Conversation: conv,
	}

	runnable, err := BuildGraph(ctx, deps)
	if err != nil {
		return nil, err
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = otel.Tracer(observers.TracerName)
	}

	logx.Debug().Msg("Response graph built successfully")
	return &graphRunner{
		runnable:  runnable,
		repo:      cfg.Repository,
		locks:     newThreadLocks(),
		callbacks: observers.NewAllCallbacks(tracer),
		tracer:    tracer,
		language:  model.Language(conv.Language),
		window:    conv.Window,
		summarize: nodes.Summarize(deps),
	}, nil
}

// BuildGraph constructs and returns the compiled conversation graph
func BuildGraph(ctx context.Context, deps nodes.Deps) (compose.Runnable[model.TurnInput, *model.TurnResult], error) {
	if deps.Models == nil || deps.Models.Classifier == nil || deps.Models.Generator == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}
	if deps.Search == nil {
		return nil, fmt.Errorf("search tool is nil")
	}
	if deps.Messages == nil {
		return nil, fmt.Errorf("messages manager is nil")
	}
	deps.Conversation = deps.Conversation.Normalize()

	builder := &GraphBuilder{
		deps:     deps,
		language: model.Language(deps.Conversation.Language),
		graph: compose.NewGraph[model.TurnInput, *model.TurnResult](
			compose.WithGenLocalState(func(ctx context.Context) *model.TurnState {
				return &model.TurnState{}
			}),
		),
	}

	if err := builder.addNodes(); err != nil {
		return nil, err
	}
	if err := builder.addEdges(); err != nil {
		return nil, err
	}
	if err := builder.addBranches(); err != nil {
		return nil, err
	}

	return builder.compile(ctx)
}

// addNodes adds all processing nodes to the graph
func (b *GraphBuilder) addNodes() error {
	d := b.deps
	if err := b.graph.AddLambdaNode(nodes.NodeStart,
		nodes.NewStartNode(),
		compose.WithStatePreHandler(nodes.NewStartPreHandler(b.language)),
		compose.WithNodeName(nodes.NodeStart),
	); err != nil {
		return fmt.Errorf("error adding node %s: %w", nodes.NodeStart, err)
	}

	steps := []struct {
		key string
		fn  nodes.Node
	}{
		{nodes.NodeDetectLanguage, nodes.DetectLanguage(d)},
		{nodes.NodeFollowUp, nodes.FollowUp(d)},
		{nodes.NodeGate, nodes.Gate(d)},
		{nodes.NodeRetrieve, nodes.Retrieve(d)},
		{nodes.NodeCollect, nodes.Collect(d)},
		{nodes.NodeGenerate, nodes.Generate(d)},
		{nodes.NodeClarify, nodes.Clarify(d)},
		{nodes.NodeSummarize, nodes.Summarize(d)},
	}
	for _, s := range steps {
		if err := b.graph.AddLambdaNode(s.key, nodes.Lambda(s.key, s.fn), compose.WithNodeName(s.key)); err != nil {
			return fmt.Errorf("error adding node %s: %w", s.key, err)
		}
	}

	if err := b.graph.AddLambdaNode(nodes.NodeFinish, nodes.NewFinishNode(), compose.WithNodeName(nodes.NodeFinish)); err != nil {
		return fmt.Errorf("error adding node %s: %w", nodes.NodeFinish, err)
	}
	return nil
}

// addEdges creates the unconditional connections between nodes
func (b *GraphBuilder) addEdges() error {
	edges := [][2]string{
		{compose.START, nodes.NodeStart},
		{nodes.NodeClarify, nodes.NodeSummarize},
		{nodes.NodeSummarize, nodes.NodeFinish},
		{nodes.NodeFinish, compose.END},
	}

	for _, edge := range edges {
		if err := b.graph.AddEdge(edge[0], edge[1]); err != nil {
			logx.Error().Err(err).Str("from", edge[0]).Str("to", edge[1]).Msg("Error adding edge")
			return fmt.Errorf("error adding edge %s -> %s: %w", edge[0], edge[1], err)
		}
	}
	return nil
}

// addBranches creates the conditional routing. Every branching node can fall
// through to clarify.
func (b *GraphBuilder) addBranches() error {
	branches := []struct {
		from string
		cond func(context.Context, model.Step) (string, error)
		to   string
	}{
		{nodes.NodeStart, nodes.NewContinueCondition(nodes.NodeDetectLanguage), nodes.NodeDetectLanguage},
		{nodes.NodeDetectLanguage, nodes.NewContinueCondition(nodes.NodeFollowUp), nodes.NodeFollowUp},
		{nodes.NodeFollowUp, nodes.NewContinueCondition(nodes.NodeGate), nodes.NodeGate},
		{nodes.NodeGate, nodes.NewRouteCondition(), nodes.NodeRetrieve},
		{nodes.NodeRetrieve, nodes.NewContinueCondition(nodes.NodeCollect), nodes.NodeCollect},
		{nodes.NodeCollect, nodes.NewContinueCondition(nodes.NodeGenerate), nodes.NodeGenerate},
		{nodes.NodeGenerate, nodes.NewContinueCondition(nodes.NodeSummarize), nodes.NodeSummarize},
	}

	for _, br := range branches {
		branch := compose.NewGraphBranch(br.cond, map[string]bool{
			br.to:             true,
			nodes.NodeClarify: true,
		})
		if err := b.graph.AddBranch(br.from, branch); err != nil {
			logx.Error().Err(err).Str("from", br.from).Msg("Error adding branch")
			return fmt.Errorf("error adding branch after %s: %w", br.from, err)
		}
	}
	return nil
}

// compile finalizes and compiles the graph
func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[model.TurnInput, *model.TurnResult], error) {
	runnable, err := b.graph.Compile(ctx, compose.WithMaxRunSteps(maxRunSteps))
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}

	logx.Debug().Msg("Graph compiled successfully")
	return runnable, nil
}

// Invoke runs one turn. Turns of the same thread are serialized; a cancelled
// turn persists nothing.
func (r *graphRunner) Invoke(ctx context.Context, in model.QueryInput) (*model.TurnResult, error) {
	threadID := strings.TrimSpace(in.ThreadID)
	if threadID == "" {
		threadID = uuid.NewString()
	}

	unlock := r.locks.lock(threadID)
	defer unlock()

	ctx, span := r.tracer.Start(ctx, "deptqa.turn",
		trace.WithAttributes(attribute.String("deptqa.thread_id", threadID)),
	)
	defer span.End()

	res, err := r.invoke(ctx, threadID, in.Question)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, errx.SafeMessage(err))
		metrics.RecordTurn("", "error")
		return nil, err
	}

	span.SetAttributes(
		attribute.String("deptqa.route", string(res.Route)),
		attribute.Float64("deptqa.cost_usd", res.CostUSD),
	)
	metrics.RecordTurn(string(res.Route), "success")
	return res, nil
}

func (r *graphRunner) invoke(ctx context.Context, threadID, question string) (*model.TurnResult, error) {
	log := logx.Thread(threadID)

	persist := true
	state, err := r.repo.Load(ctx, threadID)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil, ctx.Err()
	case errors.Is(err, model.ErrThreadNotFound):
		state = r.newState(threadID)
	default:
		// An unreadable thread is answered from an empty state and never overwritten.
		log.Error().Err(err).Msg("Failed to load thread state - answering without history")
		state = r.newState(threadID)
		persist = false
	}

	res, err := r.runnable.Invoke(ctx, model.TurnInput{Question: question, State: state},
		compose.WithCallbacks(r.callbacks...),
	)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			log.Warn().Err(ctxErr).Msg("Turn cancelled - nothing persisted")
			return nil, ctxErr
		}
		log.Error().Err(err).Msg("Graph failed - replying with fallback clarification")
		res, err = r.fallback(ctx, state, question, err)
		if err != nil {
			log.Warn().Err(err).Msg("Turn cancelled - nothing persisted")
			return nil, err
		}
	}

	res.State.UpdatedAt = time.Now().UTC()
	if !persist {
		log.Warn().Msg("Thread state not saved after a failed load")
	} else if err := r.repo.Save(ctx, res.State); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The reply is still delivered; the thread resumes from its last saved turn.
		log.Error().Err(err).Msg("Failed to save thread state")
	}

	log.Info().
		Str("route", string(res.Route)).
		Str("language", string(res.Language)).
		Str("department", res.Department).
		Bool("follow_up", res.FollowUp).
		Int("documents", len(res.Documents)).
		Float64("cost_usd", res.CostUSD).
		Msg("Turn completed")
	return res, nil
}

func (r *graphRunner) newState(threadID string) *model.ConversationState {
	state := model.NewConversationState(threadID)
	state.Language = r.language
	return state
}

// fallback completes a turn the graph could not finish with a clarification
// built from static examples, then summarizes and trims memory like any
// other turn. Only a cancelled context is returned as an error.
func (r *graphRunner) fallback(ctx context.Context, state *model.ConversationState, question string, cause error) (*model.TurnResult, error) {
	c := state.Clone()
	if c.Language == "" {
		c.Language = r.language
	}
	lang := c.Language
	reason := nodes.LocalizeReason(errx.SafeMessage(cause), lang)
	reply := model.NewMessage(model.RoleAssistant,
		nodes.ClarificationMessage(lang, reason, nodes.StaticExamples(lang, c.CurrentDepartment)))

	c.Messages = append(c.Messages, model.NewMessage(model.RoleUser, question), reply)
	c.QuestionAppropriate = nil
	c.QuestionReason = reason
	c.FollowUp = false
	c.FollowUpChain = nil
	c.Documents = nil

	ts := model.TurnState{Conversation: *c, Question: question, Route: model.RouteClarify}
	upd := model.Update{Window: r.window}
	if r.summarize != nil {
		var err error
		if upd, err = r.summarize(ctx, ts); err != nil {
			return nil, err
		}
	}
	ts.Apply(upd)
	c = &ts.Conversation

	return &model.TurnResult{
		ThreadID:   c.ThreadID,
		Reply:      reply,
		Route:      model.RouteClarify,
		Language:   lang,
		Department: c.CurrentDepartment,
		Summary:    c.Summarization,
		CostUSD:    ts.CostUSD,
		State:      c,
	}, nil
}

// Thread returns the stored state of a thread, or model.ErrThreadNotFound.
func (r *graphRunner) Thread(ctx context.Context, threadID string) (*model.ConversationState, error) {
	return r.repo.Load(ctx, threadID)
}

// DeleteThread removes a thread's state once its running turn, if any, completes.
func (r *graphRunner) DeleteThread(ctx context.Context, threadID string) error {
	unlock := r.locks.lock(threadID)
	defer unlock()
	if err := r.repo.Delete(ctx, threadID); err != nil {
		return err
	}
	log := logx.Thread(threadID)
	log.Info().Msg("Thread deleted")
	return nil
}

// Threads lists the stored threads, newest first.
func (r *graphRunner) Threads(ctx context.Context) ([]model.ThreadSummary, error) {
	return r.repo.List(ctx)
}

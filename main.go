package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/knu-deptqa/server/internal/agent/graph"
	"github.com/knu-deptqa/server/internal/agent/graph/nodes"
	"github.com/knu-deptqa/server/internal/agent/graph/tools"
	"github.com/knu-deptqa/server/internal/agent/model"
	"github.com/knu-deptqa/server/internal/agent/repo"
	"github.com/knu-deptqa/server/internal/agent/retrieval"
	"github.com/knu-deptqa/server/internal/core"
	"github.com/knu-deptqa/server/internal/metrics"
	pkggemini "github.com/knu-deptqa/server/pkg/gemini"
	logx "github.com/knu-deptqa/server/pkg/logger"
	pkgqdrant "github.com/knu-deptqa/server/pkg/qdrant"
	pkgredis "github.com/knu-deptqa/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the engine,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	MetricsAddr string `envconfig:"METRICS_ADDR"`

	// Infrastructure
	Redis  pkgredis.Config
	Qdrant pkgqdrant.Config
	Gemini pkggemini.Config

	// Agent configs
	Classifier   model.ClassifierModelConfig
	Response     model.ResponseModelConfig
	Embedding    model.EmbeddingConfig
	Prompt       model.PromptConfig
	Conversation model.ConversationConfig
}

func main() {
	ctx := context.Background()
	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		logx.Warn().Err(err).Msg("Could not load .env file")
	}

	// Load structured config from env
	var envCfg AppConfig
	if err := envconfig.Process("", &envCfg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to process environment config")
	}

	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(envCfg.Environment),
		Level:       envCfg.LogLevel,
	})

	if envCfg.MetricsAddr != "" {
		serveMetrics(envCfg.MetricsAddr)
	}

	rdb, err := envCfg.Redis.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Redis client")
	}
	defer rdb.Close()
	logx.Info().Msg("Connected to Redis successfully")

	qc, err := envCfg.Qdrant.New()
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Qdrant client")
	}
	defer qc.Close()

	gc, err := envCfg.Gemini.New(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to initialise Gemini client")
	}

	// ====================================================
	// Build graph config entirely from env
	ttl, err := time.ParseDuration(envCfg.Conversation.TTL)
	if err != nil {
		logx.Fatal().Err(err).Str("ttl", envCfg.Conversation.TTL).Msg("Invalid CONVERSATION_TTL")
	}
	conv := envCfg.Conversation.Normalize()

	models, err := nodes.NewChatModels(ctx, nodes.ChatModelConfig{
		Client:     gc,
		Classifier: &envCfg.Classifier,
		Response:   &envCfg.Response,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create chat models")
	}

	embedder, err := retrieval.NewGenAIEmbedder(gc, envCfg.Embedding.Model)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create embedder")
	}
	documents, err := retrieval.NewQdrantRetriever(retrieval.QdrantConfig{
		Client:      qc,
		Embedder:    embedder,
		Collection:  envCfg.Qdrant.Collection,
		ContentKey:  envCfg.Qdrant.ContentKey,
		MetadataKey: envCfg.Qdrant.MetadataKey,
		TopK:        conv.Retrieval.TopK,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to create document retriever")
	}

	runner, err := graph.BuildResponseGraph(ctx, graph.Config{
		Models:       models,
		Search:       tools.NewSearchDocumentsTool(documents, conv.Retrieval.TopK),
		Repository:   repo.NewRedisStateRepository(rdb, ttl),
		Prompt:       envCfg.Prompt,
		Conversation: conv,
	})
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to build graph")
	}

	// Demo threads start from an empty history on every run.
	for _, id := range []string{"demo-thread-1", "demo-thread-2"} {
		if err := runner.DeleteThread(ctx, id); err != nil {
			logx.Fatal().Err(err).Str("thread_id", id).Msg("Failed to reset demo thread")
		}
	}

	testQueries := []struct {
		description string
		threadID    string
		question    string
	}{
		{"Greeting is clarified", "demo-thread-1", "안녕하세요"},
		{"Department question", "demo-thread-1", "소프트웨어학과 수강신청 기간이 언제야?"},
		{"Follow-up on the same department", "demo-thread-1", "그럼 장학금 신청은?"},
		{"English question on another thread", "demo-thread-2", "What are the graduation requirements of the Department of Computer Engineering?"},
	}

	for i, test := range testQueries {
		logx.Info().Int("test", i+1).Str("thread_id", test.threadID).Str("question", test.question).Msg(test.description)

		res, err := runner.Invoke(ctx, model.QueryInput{
			ThreadID: test.threadID,
			Question: test.question,
		})
		if err != nil {
			logx.Fatal().Err(err).Int("test", i+1).Msg("Failed to invoke graph")
		}

		fmt.Printf("\n[%s] route=%s language=%s department=%q cost=$%.6f\n%s\n",
			res.ThreadID, res.Route, res.Language, res.Department, res.CostUSD, res.Reply.Content)
	}

	threads, err := runner.Threads(ctx)
	if err != nil {
		logx.Fatal().Err(err).Msg("Failed to list threads")
	}
	for _, t := range threads {
		logx.Info().
			Str("thread_id", t.ThreadID).
			Int("messages", t.MessageCount).
			Time("updated_at", t.UpdatedAt).
			Msg("Stored thread")
	}
}

// serveMetrics exposes the Prometheus collectors on addr in the background.
func serveMetrics(addr string) {
	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		logx.Fatal().Err(err).Msg("Failed to register metrics")
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	go func() {
		srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	logx.Info().Str("addr", addr).Msg("Serving metrics")
}

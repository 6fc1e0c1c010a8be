package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/assembler"
	"github.com/spetersoncode/careflow/client"
	"github.com/spetersoncode/careflow/conversation"
	"github.com/spetersoncode/careflow/decision"
	"github.com/spetersoncode/careflow/generator"
	"github.com/spetersoncode/careflow/insights"
	"github.com/spetersoncode/careflow/internal/retry"
	"github.com/spetersoncode/careflow/model"
	"github.com/spetersoncode/careflow/workflow"
)

// App holds the shared services behind the HTTP and MCP surfaces.
type App struct {
	cfg       *Config
	log       *slog.Logger
	registry  *workflow.Registry
	provider  careflow.ChatProvider
	evaluator *decision.Evaluator
	analyst   *insights.Analyst
	upgrader  websocket.Upgrader

	connections atomic.Int64
}

// NewApp wires the services around provider.
func NewApp(cfg *Config, provider careflow.ChatProvider, log *slog.Logger) (*App, error) {
	analyst, err := insights.NewAnalyst(provider,
		insights.WithTTL(cfg.CacheTTL),
		insights.WithCacheSize(cfg.CacheSize),
		insights.WithLogger(log),
	)
	if err != nil {
		return nil, fmt.Errorf("create analyst: %w", err)
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		registry:  workflow.DefaultRegistry(),
		provider:  provider,
		evaluator: decision.NewEvaluator(provider, decision.WithLogger(log)),
		analyst:   analyst,
	}
	a.upgrader = websocket.Upgrader{CheckOrigin: a.allowOrigin}
	return a, nil
}

// newClient builds the provider client for the configured provider and model.
func newClient(cfg *Config, log *slog.Logger) (*client.Client, error) {
	m, err := model.Parse(careflow.Provider(cfg.Provider), cfg.Model)
	if err != nil {
		return nil, err
	}

	var rc *retry.Config
	if cfg.MaxAttempts > 1 {
		backoff := retry.Backoff(cfg.MaxAttempts)
		rc = &backoff
	}

	return client.New(client.Config{
		APIKeys: client.APIKeys{
			Anthropic: cfg.AnthropicKey,
			OpenAI:    cfg.OpenAIKey,
			Google:    cfg.GoogleKey,
		},
		Default: m,
		Retry:   rc,
		Logger:  log,
	}), nil
}

// newSession starts a generation session with an empty history, or with
// the given prior turns.
func (a *App) newSession(prior ...careflow.Message) *generator.Session {
	history := conversation.New(conversation.WithTurnBudget(a.cfg.TurnBudget))
	history.Append(prior...)
	return generator.NewSession(a.provider, a.registry,
		generator.WithHistory(history),
		generator.WithTimeout(a.cfg.StreamTimeout),
		generator.WithWindow(a.cfg.HistoryWindow),
		generator.WithAssemblerOptions(
			assembler.WithSplitMarkers(a.cfg.SplitMarkers),
			assembler.WithLogger(a.log),
		),
		generator.WithLogger(a.log),
	)
}

// apiConfigured reports whether the provider has a usable credential.
func (a *App) apiConfigured() bool {
	if a.provider == nil {
		return false
	}
	if c, ok := a.provider.(interface{ Available() bool }); ok {
		return c.Available()
	}
	return true
}

func (a *App) allowOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	return origin == "" || slices.Contains(a.cfg.CORSOrigins, "*") || slices.Contains(a.cfg.CORSOrigins, origin)
}

// Routes returns the HTTP handler for every endpoint.
func (a *App) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", a.rootHandler)
	mux.HandleFunc("GET /api/health", a.healthHandler)
	mux.HandleFunc("GET /ws/workflow-chat", a.workflowChatHandler)
	mux.Handle("POST /api/agent/workflow", &AgentHandler{app: a})
	mux.HandleFunc("POST /api/evaluate-condition", a.evaluateConditionHandler)
	mux.HandleFunc("POST /api/evaluate-loop", a.evaluateLoopHandler)
	mux.HandleFunc("POST /api/validate-workflow", a.validateWorkflowHandler)
	mux.HandleFunc("POST /api/parse-block-references", a.parseBlockReferencesHandler)
	mux.HandleFunc("GET /api/block-types", a.blockTypesHandler)
	mux.HandleFunc("POST /api/practice-insights", a.practiceInsightsHandler)
	mux.HandleFunc("POST /api/practice-ask", a.practiceAskHandler)
	return a.corsMiddleware(mux)
}

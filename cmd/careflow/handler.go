package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	aguievents "github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/careflow/agui"
	"github.com/spetersoncode/careflow/decision"
	"github.com/spetersoncode/careflow/workflow"
)

const serviceName = "careflow"

// AgentHandler runs one generation turn and streams it as AG-UI events
// over SSE.
type AgentHandler struct {
	app *App
}

// ServeHTTP handles POST requests to generate a workflow and stream events via SSE.
func (h *AgentHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var input agui.RunAgentInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		h.app.log.Warn("invalid request body", "error", err)
		http.Error(w, "Invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	prepared, err := input.Prepare()
	if err != nil {
		h.app.log.Warn("invalid input", "error", err)
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	log := h.app.log.With(
		"run_id", prepared.RunID,
		"thread_id", prepared.ThreadID,
	)
	log.Info("request started", "history", len(prepared.History))

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Error("streaming not supported")
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	session := h.app.newSession(prepared.History...)
	mapper := agui.NewMapper(prepared.ThreadID, prepared.RunID)

	var eventCount int
	for ev := range mapper.MapStream(ctx, session.Generate(ctx, prepared.Request)) {
		eventCount++
		log.Debug("sending SSE event",
			"event_type", ev.Type(),
			"event_num", eventCount,
		)
		if err := writeSSE(w, flusher, ev); err != nil {
			log.Error("failed to write SSE event", "error", err, "event_type", ev.Type())
			return
		}
	}

	log.Info("request completed",
		"duration_ms", time.Since(start).Milliseconds(),
		"events_sent", eventCount,
	)
}

// writeSSE writes an AG-UI event in SSE format.
func writeSSE(w http.ResponseWriter, flusher http.Flusher, ev aguievents.Event) error {
	data, err := ev.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}

	// event: TYPE\ndata: {json}\n\n
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type(), string(data)); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	flusher.Flush()
	return nil
}

// corsMiddleware adds CORS headers for the configured frontend origins.
func (a *App) corsMiddleware(next http.Handler) http.Handler {
	wildcard := slices.Contains(a.cfg.CORSOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case wildcard:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(a.cfg.CORSOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *App) rootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"service":   serviceName,
		"version":   version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *App) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":                       "healthy",
		"api_configured":               a.apiConfigured(),
		"active_websocket_connections": a.connections.Load(),
		"timestamp":                    time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *App) evaluateConditionHandler(w http.ResponseWriter, r *http.Request) {
	var req decision.ConditionRequest
	if !a.decode(w, r, &req) {
		return
	}
	d, err := a.evaluator.EvaluateCondition(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (a *App) evaluateLoopHandler(w http.ResponseWriter, r *http.Request) {
	var req decision.LoopRequest
	if !a.decode(w, r, &req) {
		return
	}
	d, err := a.evaluator.EvaluateLoop(r.Context(), req)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type validateRequest struct {
	Workflow json.RawMessage `json:"workflow"`
}

type validateResponse struct {
	Valid      bool                 `json:"valid"`
	Violations []workflow.Violation `json:"violations"`
}

func (a *App) validateWorkflowHandler(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !a.decode(w, r, &req) {
		return
	}
	if len(req.Workflow) == 0 || string(req.Workflow) == "null" {
		writeError(w, http.StatusBadRequest, "workflow is required")
		return
	}
	_, violations := a.registry.ValidateJSON(req.Workflow)
	if violations == nil {
		violations = []workflow.Violation{}
	}
	writeJSON(w, http.StatusOK, validateResponse{Valid: len(violations) == 0, Violations: violations})
}

// parseBlockReferencesHandler reads text from the query string, or from a
// JSON body when the query has none.
func (a *App) parseBlockReferencesHandler(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	if text == "" && r.ContentLength != 0 {
		var body struct {
			Text string `json:"text"`
		}
		if !a.decode(w, r, &body) {
			return
		}
		text = body.Text
	}
	refs := workflow.ParseReferences(text)
	if refs == nil {
		refs = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"text":              text,
		"referenced_blocks": refs,
		"count":             len(refs),
	})
}

func (a *App) blockTypesHandler(w http.ResponseWriter, r *http.Request) {
	wt := workflow.Type(r.URL.Query().Get("workflow_type"))
	if wt == "" {
		wt = workflow.TypePatient
	}
	if !wt.Valid() {
		writeError(w, http.StatusBadRequest, "workflow_type must be 'patient' or 'practice'")
		return
	}
	writeJSON(w, http.StatusOK, a.registry.TypesFor(wt))
}

type insightsRequest struct {
	PracticeData map[string]any `json:"practice_data"`
}

func (a *App) practiceInsightsHandler(w http.ResponseWriter, r *http.Request) {
	var req insightsRequest
	if !a.decode(w, r, &req) {
		return
	}
	if len(req.PracticeData) == 0 {
		writeError(w, http.StatusBadRequest, "practice_data is required")
		return
	}
	report := a.analyst.Insights(r.Context(), req.PracticeData)
	writeJSON(w, http.StatusOK, map[string]any{
		"insights":  report.Insights,
		"cached":    report.Cached,
		"fallback":  report.Fallback,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

type askRequest struct {
	Question     string         `json:"question"`
	PracticeData map[string]any `json:"practice_data"`
}

func (a *App) practiceAskHandler(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !a.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}
	if len(req.PracticeData) == 0 {
		writeError(w, http.StatusBadRequest, "practice_data is required")
		return
	}
	reply := a.analyst.Answer(r.Context(), req.Question, req.PracticeData)
	writeJSON(w, http.StatusOK, map[string]any{
		"answer":    reply.Answer,
		"question":  req.Question,
		"cached":    reply.Cached,
		"fallback":  reply.Fallback,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// decode reads a JSON body into v, answering 400 on failure.
func (a *App) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		a.log.Warn("invalid request body", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

// fail maps an operation error onto a status code.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, decision.ErrInvalidRequest) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a.log.Error("request failed", "path", r.URL.Path, "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

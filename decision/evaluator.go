package decision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/client"
)

// ErrInvalidRequest wraps request validation failures.
var ErrInvalidRequest = errors.New("decision: invalid request")

// ConditionRequest asks whether a branch condition holds.
type ConditionRequest struct {
	ConditionDescription string         `json:"condition_description" validate:"required"`
	WorkflowContext      map[string]any `json:"workflow_context"`
	ReferencedBlockIDs   []string       `json:"referenced_block_ids"`
	InstanceID           string         `json:"instance_id"`
}

// LoopRequest asks whether a loop should run another iteration.
type LoopRequest struct {
	ContinueRule       string         `json:"continue_rule" validate:"required"`
	BreakRule          string         `json:"break_rule" validate:"required"`
	EscalationRule     string         `json:"escalation_rule,omitempty"`
	WorkflowContext    map[string]any `json:"workflow_context"`
	ReferencedBlockIDs []string       `json:"referenced_block_ids"`
	IterationCount     int            `json:"iteration_count" validate:"gte=0"`
	InstanceID         string         `json:"instance_id"`
}

// EvaluatorOption configures an Evaluator.
type EvaluatorOption func(*Evaluator)

// WithChatOptions sets options passed on every model call.
func WithChatOptions(opts ...careflow.Option) EvaluatorOption {
	return func(e *Evaluator) {
		e.chatOpts = append(e.chatOpts, opts...)
	}
}

// WithLogger sets the evaluator's logger.
func WithLogger(logger *slog.Logger) EvaluatorOption {
	return func(e *Evaluator) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Evaluator runs condition and loop decisions against a chat provider.
// It is safe for concurrent use.
type Evaluator struct {
	provider careflow.ChatProvider
	chatOpts []careflow.Option
	logger   *slog.Logger
	validate *validator.Validate
}

// NewEvaluator creates an evaluator. A nil provider is allowed and makes
// every decision fall back as if no credential were configured.
func NewEvaluator(provider careflow.ChatProvider, opts ...EvaluatorOption) *Evaluator {
	e := &Evaluator{
		provider: provider,
		chatOpts: []careflow.Option{careflow.WithMaxTokens(500)},
		logger:   slog.Default(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EvaluateCondition decides a branch condition. The error is non-nil only
// for an invalid request; provider failures produce an escalation.
func (e *Evaluator) EvaluateCondition(ctx context.Context, req ConditionRequest) (Condition, error) {
	if err := e.validate.Struct(req); err != nil {
		return Condition{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	log := e.logger.With("instance_id", req.InstanceID, "kind", "condition")

	text, err := e.ask(ctx, conditionPrompt(req))
	if err != nil {
		if isMissingKey(err) {
			log.Warn("condition evaluation without credential")
			return ConditionFallback("No API key configured; escalating for human review."), nil
		}
		log.Error("condition evaluation failed", "error", err)
		return ConditionFallback("Evaluation failed: " + err.Error()), nil
	}

	d := ExtractCondition(text)
	log.Info("condition evaluated", "decision", d.Decision)
	return d, nil
}

// EvaluateLoop decides a loop iteration. The error is non-nil only for an
// invalid request. A missing credential escalates; other provider failures
// break the loop.
func (e *Evaluator) EvaluateLoop(ctx context.Context, req LoopRequest) (Loop, error) {
	if err := e.validate.Struct(req); err != nil {
		return Loop{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	log := e.logger.With("instance_id", req.InstanceID, "kind", "loop", "iteration", req.IterationCount)

	text, err := e.ask(ctx, loopPrompt(req))
	if err != nil {
		if isMissingKey(err) {
			log.Warn("loop evaluation without credential")
			return Loop{
				Action:     ActionEscalate,
				Reasoning:  "No API key configured; escalating for human review.",
				Confidence: zero(),
			}, nil
		}
		log.Error("loop evaluation failed", "error", err)
		return LoopFallback("Evaluation failed: " + err.Error()), nil
	}

	d := ExtractLoop(text)
	log.Info("loop evaluated", "action", d.Action)
	return d, nil
}

func (e *Evaluator) ask(ctx context.Context, prompt string) (string, error) {
	if e.provider == nil {
		return "", &client.ErrMissingAPIKey{}
	}
	resp, err := e.provider.Chat(ctx, []careflow.Message{
		{Role: careflow.RoleUser, Content: prompt},
	}, e.chatOpts...)
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func isMissingKey(err error) bool {
	var missing *client.ErrMissingAPIKey
	return errors.As(err, &missing)
}

func conditionPrompt(req ConditionRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Evaluate: %s\n", req.ConditionDescription)
	fmt.Fprintf(&sb, "Context: %s\n", contextJSON(req.WorkflowContext))
	if len(req.ReferencedBlockIDs) > 0 {
		fmt.Fprintf(&sb, "Referenced blocks: %s\n", strings.Join(req.ReferencedBlockIDs, ", "))
	}
	sb.WriteString(`Respond JSON: {"decision": "true|false|escalate", "reasoning": "...", "confidence": 0.9}`)
	return sb.String()
}

func loopPrompt(req LoopRequest) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Loop iteration %d\n", req.IterationCount)
	fmt.Fprintf(&sb, "Continue: %s\n", req.ContinueRule)
	fmt.Fprintf(&sb, "Break: %s\n", req.BreakRule)
	if req.EscalationRule != "" {
		fmt.Fprintf(&sb, "Escalate: %s\n", req.EscalationRule)
	}
	fmt.Fprintf(&sb, "Context: %s\n", contextJSON(req.WorkflowContext))
	if len(req.ReferencedBlockIDs) > 0 {
		fmt.Fprintf(&sb, "Referenced blocks: %s\n", strings.Join(req.ReferencedBlockIDs, ", "))
	}
	sb.WriteString(`Respond JSON: {"action": "continue|break|escalate", "reasoning": "...", "confidence": 0.9}`)
	return sb.String()
}

func contextJSON(ctx map[string]any) string {
	if len(ctx) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(ctx)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

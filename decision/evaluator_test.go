package decision

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/client"
	"github.com/spetersoncode/careflow/internal/fake"
)

func conditionRequest() ConditionRequest {
	return ConditionRequest{
		ConditionDescription: "Patient completed the intake form",
		WorkflowContext:      map[string]any{"intake": map[string]any{"status": "submitted"}},
		ReferencedBlockIDs:   []string{"intake-1"},
		InstanceID:           "inst-1",
	}
}

func loopRequest() LoopRequest {
	return LoopRequest{
		ContinueRule:   "no reply received",
		BreakRule:      "patient replied",
		EscalationRule: "patient reports pain",
		IterationCount: 2,
		InstanceID:     "inst-2",
	}
}

func TestEvaluateCondition(t *testing.T) {
	p := &fake.Provider{Reply: `{"decision":"true","reasoning":"form submitted","confidence":0.95}`}
	e := NewEvaluator(p)

	d, err := e.EvaluateCondition(context.Background(), conditionRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeTrue, d.Decision)
	assert.Equal(t, "form submitted", d.Reasoning)

	calls := p.Calls()
	require.Len(t, calls, 1)
	prompt := calls[0][0].Content
	assert.Equal(t, careflow.RoleUser, calls[0][0].Role)
	assert.Contains(t, prompt, "Evaluate: Patient completed the intake form")
	assert.Contains(t, prompt, `Context: {"intake":{"status":"submitted"}}`)
	assert.Contains(t, prompt, "Referenced blocks: intake-1")
	assert.Contains(t, prompt, `"decision": "true|false|escalate"`)
}

func TestEvaluateLoop(t *testing.T) {
	p := &fake.Provider{Reply: `{"action":"continue","reasoning":"still waiting"}`}
	d, err := NewEvaluator(p).EvaluateLoop(context.Background(), loopRequest())
	require.NoError(t, err)
	assert.Equal(t, ActionContinue, d.Action)

	prompt := p.Calls()[0][0].Content
	assert.Contains(t, prompt, "Loop iteration 2")
	assert.Contains(t, prompt, "Continue: no reply received")
	assert.Contains(t, prompt, "Break: patient replied")
	assert.Contains(t, prompt, "Escalate: patient reports pain")
	assert.Contains(t, prompt, "Context: {}")
}

func TestEvaluator_MissingCredentialEscalates(t *testing.T) {
	for name, e := range map[string]*Evaluator{
		"nil provider":  NewEvaluator(nil),
		"missing key":   NewEvaluator(&fake.Provider{Err: &client.ErrMissingAPIKey{Provider: "anthropic"}}),
		"wrapped error": NewEvaluator(&fake.Provider{Err: fmt.Errorf("chat: %w", &client.ErrMissingAPIKey{})}),
	} {
		t.Run(name, func(t *testing.T) {
			c, err := e.EvaluateCondition(context.Background(), conditionRequest())
			require.NoError(t, err)
			assert.Equal(t, OutcomeEscalate, c.Decision)
			assert.Contains(t, c.Reasoning, "No API key")

			l, err := e.EvaluateLoop(context.Background(), loopRequest())
			require.NoError(t, err)
			assert.Equal(t, ActionEscalate, l.Action)
			assert.Contains(t, l.Reasoning, "No API key")
		})
	}
}

func TestEvaluator_ProviderFailure(t *testing.T) {
	e := NewEvaluator(&fake.Provider{Err: errors.New("connection reset")})

	c, err := e.EvaluateCondition(context.Background(), conditionRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeEscalate, c.Decision)
	assert.Contains(t, c.Reasoning, "connection reset")

	l, err := e.EvaluateLoop(context.Background(), loopRequest())
	require.NoError(t, err)
	assert.Equal(t, ActionBreak, l.Action)
	assert.Contains(t, l.Reasoning, "connection reset")
}

func TestEvaluator_UnparseableOutput(t *testing.T) {
	e := NewEvaluator(&fake.Provider{Reply: "I think so?"})

	c, err := e.EvaluateCondition(context.Background(), conditionRequest())
	require.NoError(t, err)
	assert.Equal(t, OutcomeEscalate, c.Decision)

	l, err := e.EvaluateLoop(context.Background(), loopRequest())
	require.NoError(t, err)
	assert.Equal(t, ActionBreak, l.Action)
}

func TestEvaluator_InvalidRequest(t *testing.T) {
	p := &fake.Provider{Reply: `{"decision":"true"}`}
	e := NewEvaluator(p)

	_, err := e.EvaluateCondition(context.Background(), ConditionRequest{})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.EvaluateLoop(context.Background(), LoopRequest{ContinueRule: "x", BreakRule: "y", IterationCount: -1})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = e.EvaluateLoop(context.Background(), LoopRequest{ContinueRule: "x"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.Zero(t, p.CallCount())
}

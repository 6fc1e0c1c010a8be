package agui

import (
	"encoding/json"
	"errors"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/generator"
	"github.com/spetersoncode/careflow/workflow"
)

// RunAgentInput represents the AG-UI protocol request for running an agent.
type RunAgentInput struct {
	ThreadID       string           `json:"thread_id"`
	RunID          string           `json:"run_id"`
	Messages       []events.Message `json:"messages"`
	Tools          []any            `json:"tools,omitempty"`
	Context        []any            `json:"context,omitempty"`
	State          any              `json:"state,omitempty"`
	ForwardedProps any              `json:"forwarded_props,omitempty"`
}

// RunState is the frontend state a generation run understands.
type RunState struct {
	WorkflowType   workflow.Type `json:"workflow_type"`
	ExistingBlocks int           `json:"existing_blocks"`
}

// PreparedInput is a validated run ready for generation.
type PreparedInput struct {
	ThreadID string
	RunID    string
	// History holds the messages before the final user message.
	History []careflow.Message
	Request generator.Request
}

var (
	// ErrNoMessages is returned when the input contains no messages.
	ErrNoMessages = errors.New("no messages provided")
	// ErrNoUserMessage is returned when the last message is not from the user.
	ErrNoUserMessage = errors.New("last message is not a user message")
)

// Prepare validates the input and turns its final user message into a
// generation request. Thread and run IDs are generated when absent.
func (r *RunAgentInput) Prepare() (*PreparedInput, error) {
	messages := ToMessages(r.Messages)
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}
	last := messages[len(messages)-1]
	if last.Role != careflow.RoleUser {
		return nil, ErrNoUserMessage
	}

	state, err := DecodeState[RunState](r.State)
	if err != nil {
		return nil, err
	}

	threadID, runID := r.ThreadID, r.RunID
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	if runID == "" {
		runID = events.GenerateRunID()
	}

	return &PreparedInput{
		ThreadID: threadID,
		RunID:    runID,
		History:  messages[:len(messages)-1],
		Request: generator.Request{
			Message:        last.Content,
			WorkflowType:   state.WorkflowType,
			ExistingBlocks: state.ExistingBlocks,
		},
	}, nil
}

// DecodeState decodes raw frontend state into T.
// Returns the zero value of T if state is nil.
func DecodeState[T any](state any) (T, error) {
	var result T
	if state == nil {
		return result, nil
	}

	// Re-marshal and unmarshal to get proper typing
	data, err := json.Marshal(state)
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return result, err
	}
	return result, nil
}

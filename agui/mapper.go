package agui

import (
	"context"
	"encoding/json"

	"github.com/ag-ui-protocol/ag-ui/sdks/community/go/pkg/core/events"

	"github.com/spetersoncode/careflow/event"
	"github.com/spetersoncode/careflow/workflow"
)

// ToolCreateWorkflow is the tool name under which documents are delivered.
const ToolCreateWorkflow = "create_workflow"

// WorkflowArgs is the argument payload of a create_workflow tool call.
type WorkflowArgs struct {
	Workflow   *workflow.Document   `json:"workflow"`
	Violations []workflow.Violation `json:"violations"`
}

// Mapper converts generation events to AG-UI events for a single run.
// It tracks the open text message so that AG-UI's Start-Content-End
// sequence is preserved.
type Mapper struct {
	threadID  string
	runID     string
	messageID string
}

// NewMapper creates a new Mapper for a single run.
// The threadID and runID are used in lifecycle events (RUN_STARTED, RUN_FINISHED).
func NewMapper(threadID, runID string) *Mapper {
	if threadID == "" {
		threadID = events.GenerateThreadID()
	}
	if runID == "" {
		runID = events.GenerateRunID()
	}
	return &Mapper{
		threadID: threadID,
		runID:    runID,
	}
}

// ThreadID returns the thread ID for this mapper.
func (m *Mapper) ThreadID() string {
	return m.threadID
}

// RunID returns the run ID for this mapper.
func (m *Mapper) RunID() string {
	return m.runID
}

// RunStarted returns a RUN_STARTED event.
func (m *Mapper) RunStarted() events.Event {
	return events.NewRunStartedEvent(m.threadID, m.runID)
}

// RunFinished returns a RUN_FINISHED event.
func (m *Mapper) RunFinished() events.Event {
	return events.NewRunFinishedEvent(m.threadID, m.runID)
}

// RunError returns a RUN_ERROR event.
func (m *Mapper) RunError(err error) events.Event {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return events.NewRunErrorEvent(msg)
}

// Map converts one generation event into zero or more AG-UI events.
func (m *Mapper) Map(e event.Event) []events.Event {
	switch e.Type {
	case event.ProcessingStarted:
		return []events.Event{m.RunStarted()}

	case event.ChatMessage:
		if e.Content == "" {
			return nil
		}
		var out []events.Event
		if m.messageID == "" {
			m.messageID = events.GenerateMessageID()
			out = append(out, events.NewTextMessageStartEvent(m.messageID, events.WithRole(RoleAssistant)))
		}
		return append(out, events.NewTextMessageContentEvent(m.messageID, e.Content))

	case event.WorkflowCreated:
		args, err := json.Marshal(WorkflowArgs{Workflow: e.Workflow, Violations: e.Violations})
		if err != nil {
			return append(m.closeMessage(), m.RunError(err))
		}
		callID := "call-" + events.GenerateMessageID()
		return append(m.closeMessage(),
			events.NewToolCallStartEvent(callID, ToolCreateWorkflow),
			events.NewToolCallArgsEvent(callID, string(args)),
			events.NewToolCallEndEvent(callID),
		)

	case event.GenerationComplete:
		return append(m.closeMessage(), m.RunFinished())

	case event.Error:
		return append(m.closeMessage(), m.RunError(e.Err))

	default:
		// Session control events have no AG-UI equivalent
		return nil
	}
}

// closeMessage ends the open text message, if any.
func (m *Mapper) closeMessage() []events.Event {
	if m.messageID == "" {
		return nil
	}
	id := m.messageID
	m.messageID = ""
	return []events.Event{events.NewTextMessageEndEvent(id)}
}

// MapStream maps every event from in until it closes or ctx is done.
func (m *Mapper) MapStream(ctx context.Context, in <-chan event.Event) <-chan events.Event {
	out := make(chan events.Event)
	go func() {
		defer close(out)
		for e := range in {
			for _, ev := range m.Map(e) {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Package event defines the discriminated events a generation session
// relays to its transport. Every event serializes to a flat JSON object
// with a "type" discriminator and a "done" flag marking the last event of a
// request.
package event

import (
	"context"
	"encoding/json"
	"time"

	"github.com/spetersoncode/careflow/workflow"
)

// Type identifies the kind of event.
type Type string

// Generation lifecycle events
const (
	// ProcessingStarted fires when a request has been accepted.
	ProcessingStarted Type = "processing_started"

	// ChatMessage carries a fragment of conversational prose.
	ChatMessage Type = "chat_message"

	// WorkflowCreated carries the parsed workflow document and any
	// validation violations.
	WorkflowCreated Type = "workflow_created"

	// GenerationComplete ends a successful request.
	GenerationComplete Type = "generation_complete"

	// Error ends a failed request.
	Error Type = "error"
)

// Session control events
const (
	ConversationReset Type = "conversation_reset"
	Pong              Type = "pong"
)

// Event is one item relayed to a client.
type Event struct {
	Type Type

	// Content is the prose fragment for ChatMessage events.
	Content string

	// Workflow and Violations are set on WorkflowCreated events.
	Workflow   *workflow.Document
	Violations []workflow.Violation

	// BlocksCreated is the block count for GenerationComplete events.
	BlocksCreated int

	// Err is set on Error events.
	Err error

	// Message is optional human-readable context.
	Message string

	Timestamp time.Time
}

// Done reports whether e is the last event of its request.
func (e Event) Done() bool {
	switch e.Type {
	case GenerationComplete, Error, ConversationReset, Pong:
		return true
	}
	return false
}

type wire struct {
	Type          Type                 `json:"type"`
	Content       string               `json:"content,omitempty"`
	Workflow      *workflow.Document   `json:"workflow,omitempty"`
	Violations    []workflow.Violation `json:"violations,omitempty"`
	BlocksCreated *int                 `json:"blocks_created,omitempty"`
	Error         string               `json:"error,omitempty"`
	Message       string               `json:"message,omitempty"`
	Timestamp     string               `json:"timestamp,omitempty"`
	Done          bool                 `json:"done"`
}

// MarshalJSON encodes the event in its wire form.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wire{
		Type:       e.Type,
		Content:    e.Content,
		Workflow:   e.Workflow,
		Violations: e.Violations,
		Message:    e.Message,
		Done:       e.Done(),
	}
	if e.Type == GenerationComplete {
		n := e.BlocksCreated
		w.BlocksCreated = &n
	}
	if e.Err != nil {
		w.Error = e.Err.Error()
	}
	if !e.Timestamp.IsZero() {
		w.Timestamp = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

// Chat returns a ChatMessage event.
func Chat(content string) Event {
	return Event{Type: ChatMessage, Content: content}
}

// Created returns a WorkflowCreated event.
func Created(doc *workflow.Document, violations []workflow.Violation) Event {
	return Event{Type: WorkflowCreated, Workflow: doc, Violations: violations}
}

// Complete returns a GenerationComplete event.
func Complete(blocks int) Event {
	return Event{Type: GenerationComplete, BlocksCreated: blocks}
}

// Failed returns an Error event.
func Failed(err error) Event {
	return Event{Type: Error, Err: err}
}

// Emit stamps e and sends it on ch, giving up when ctx is done. It reports
// whether the event was delivered.
func Emit(ctx context.Context, ch chan<- Event, e Event) bool {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case ch <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

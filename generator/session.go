// Package generator runs workflow generation turns for one conversation.
//
// A Session turns a natural-language request into a stream of events: the
// model's prose is relayed as chat fragments, the workflow document that
// follows the marker is validated against the block registry and emitted
// once, and the turn ends with a completion or error event.
package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/assembler"
	"github.com/spetersoncode/careflow/conversation"
	"github.com/spetersoncode/careflow/event"
	"github.com/spetersoncode/careflow/workflow"
)

// DefaultTimeout bounds one generation turn.
const DefaultTimeout = 120 * time.Second

var (
	// ErrNoProvider is reported when the session has no chat provider.
	ErrNoProvider = errors.New("generator: no chat provider configured")
	// ErrTimeout is reported when a turn exceeds the session timeout.
	ErrTimeout = errors.New("generator: generation timed out")
	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("generator: invalid request")
)

// Request is one generation turn.
type Request struct {
	Message      string        `json:"message" validate:"required"`
	WorkflowType workflow.Type `json:"workflow_type" validate:"omitempty,oneof=patient practice"`
	// ExistingBlocks is the size of the workflow the client currently shows.
	// Zero falls back to the number of blocks created in this session.
	ExistingBlocks int `json:"existing_blocks" validate:"gte=0"`
}

// Option configures a Session.
type Option func(*Session)

// WithTimeout bounds each turn. Values below one are ignored.
func WithTimeout(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithWindow sets how many trailing turns are injected into the prompt.
func WithWindow(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.window = n
		}
	}
}

// WithHistory replaces the session's conversation history.
func WithHistory(h *conversation.History) Option {
	return func(s *Session) {
		if h != nil {
			s.history = h
		}
	}
}

// WithAssemblerOptions configures how the response stream is split.
func WithAssemblerOptions(opts ...assembler.Option) Option {
	return func(s *Session) {
		s.assemblerOpts = append(s.assemblerOpts, opts...)
	}
}

// WithMarker changes the marker the model is told to emit and the
// assembler scans for.
func WithMarker(marker string) Option {
	return func(s *Session) {
		if marker != "" {
			s.marker = marker
		}
	}
}

// WithChatOptions sets options passed to every provider call.
func WithChatOptions(opts ...careflow.Option) Option {
	return func(s *Session) {
		s.chatOpts = append(s.chatOpts, opts...)
	}
}

// WithLogger sets the session logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Session holds the conversation state for one client. Turns within a
// session run one at a time.
type Session struct {
	id            string
	provider      careflow.ChatProvider
	registry      *workflow.Registry
	history       *conversation.History
	window        int
	timeout       time.Duration
	marker        string
	assemblerOpts []assembler.Option
	chatOpts      []careflow.Option
	logger        *slog.Logger
	validate      *validator.Validate

	turn sync.Mutex
}

// NewSession creates a session generating against provider with the
// vocabulary of reg. A nil reg uses workflow.DefaultRegistry().
func NewSession(provider careflow.ChatProvider, reg *workflow.Registry, opts ...Option) *Session {
	if reg == nil {
		reg = workflow.DefaultRegistry()
	}
	s := &Session{
		id:       uuid.NewString(),
		provider: provider,
		registry: reg,
		history:  conversation.New(),
		window:   conversation.DefaultWindow,
		timeout:  DefaultTimeout,
		marker:   assembler.DefaultMarker,
		logger:   slog.Default(),
		validate: validator.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("session", s.id)
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// History returns the session's conversation history.
func (s *Session) History() *conversation.History { return s.history }

// Reset clears the conversation history and block counter.
func (s *Session) Reset() {
	s.history.Reset()
	s.logger.Info("conversation reset")
}

// Generate runs one turn and returns its events. The channel closes after
// the terminal event, which is either GenerationComplete or Error. If ctx is
// cancelled the channel closes without a terminal event.
func (s *Session) Generate(ctx context.Context, req Request) <-chan event.Event {
	out := make(chan event.Event)
	go func() {
		defer close(out)
		s.turn.Lock()
		defer s.turn.Unlock()
		s.run(ctx, req, out)
	}()
	return out
}

func (s *Session) run(ctx context.Context, req Request, out chan<- event.Event) {
	if req.WorkflowType == "" {
		req.WorkflowType = workflow.TypePatient
	}
	if err := s.validate.Struct(req); err != nil {
		event.Emit(ctx, out, event.Failed(fmt.Errorf("%w: %w", ErrInvalidRequest, err)))
		return
	}
	if s.provider == nil {
		event.Emit(ctx, out, event.Failed(ErrNoProvider))
		return
	}

	log := s.logger.With("workflow_type", req.WorkflowType)
	log.Info("generation started", "existing_blocks", req.ExistingBlocks)
	if !event.Emit(ctx, out, event.Event{Type: event.ProcessingStarted}) {
		return
	}

	existing := req.ExistingBlocks
	if existing == 0 {
		existing = s.history.BlocksCreated()
	}
	messages := []careflow.Message{
		{Role: careflow.RoleSystem, Content: systemPrompt(s.registry, req.WorkflowType, s.marker)},
		{Role: careflow.RoleUser, Content: userPrompt(req, existing, s.history.Window(s.window), s.marker)},
	}

	streamCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stream, err := s.provider.ChatStream(streamCtx, messages, s.chatOpts...)
	if err != nil {
		log.Error("generation failed to start",
			"error", err,
			"status", careflow.StatusCodeOf(err),
			"permanent", careflow.IsPermanent(err),
		)
		event.Emit(ctx, out, event.Failed(err))
		return
	}
	s.history.Append(careflow.Message{ID: careflow.GenerateMessageID(), Role: careflow.RoleUser, Content: req.Message})

	opts := append([]assembler.Option{assembler.WithMarker(s.marker), assembler.WithLogger(log)}, s.assemblerOpts...)

	var transcript strings.Builder
	var streamErr error
	blocks := 0
	for o := range assembler.Assemble(streamCtx, stream, opts...) {
		switch {
		case o.Err != nil:
			streamErr = o.Err
		case o.Document != nil:
			violations := append(o.Violations, s.registry.Validate(o.Document)...)
			blocks = len(o.Document.Blocks)
			s.history.RecordBlocks(blocks)
			transcript.WriteString(s.marker + " " + compact(o.Document))
			log.Info("workflow created", "blocks", blocks, "violations", len(violations))
			if !event.Emit(ctx, out, event.Created(o.Document, violations)) {
				return
			}
		default:
			transcript.WriteString(o.Chat)
			if !event.Emit(ctx, out, event.Chat(o.Chat)) {
				return
			}
		}
	}

	switch {
	case ctx.Err() != nil:
		return
	case errors.Is(streamCtx.Err(), context.DeadlineExceeded):
		log.Error("generation timed out", "timeout", s.timeout)
		event.Emit(ctx, out, event.Failed(fmt.Errorf("%w after %s", ErrTimeout, s.timeout)))
		return
	case streamErr != nil:
		log.Error("generation failed",
			"error", streamErr,
			"status", careflow.StatusCodeOf(streamErr),
			"permanent", careflow.IsPermanent(streamErr),
		)
		event.Emit(ctx, out, event.Failed(streamErr))
		return
	}

	s.history.Append(careflow.Message{ID: careflow.GenerateMessageID(), Role: careflow.RoleAssistant, Content: transcript.String()})
	log.Info("generation complete", "blocks_created", blocks)
	event.Emit(ctx, out, event.Complete(blocks))
}

func compact(doc *workflow.Document) string {
	raw, err := json.Marshal(doc)
	if err != nil {
		return ""
	}
	return string(raw)
}

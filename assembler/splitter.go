// Package assembler separates a streamed model response into chat prose and
// the workflow document embedded after a marker.
//
// Text before the marker is forwarded as chat. Text after it accumulates in
// a candidate buffer that is re-parsed as fragments arrive; the first
// successful parse completes the document. There is no closing sentinel.
//
//	s := assembler.NewSplitter()
//	for _, frag := range fragments {
//		for _, out := range s.Feed(frag) {
//			// out.Chat or out.Document
//		}
//	}
//	s.Finish()
package assembler

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/spetersoncode/careflow/workflow"
)

// DefaultMarker introduces the workflow document in a model response.
const DefaultMarker = "WORKFLOW_JSON:"

// State is the phase of a Splitter.
type State int

const (
	// Scanning forwards fragments as chat while looking for the marker.
	Scanning State = iota
	// Accumulating buffers fragments until the document parses.
	Accumulating
	// Done forwards everything after the parsed document as chat.
	Done
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Accumulating:
		return "accumulating"
	case Done:
		return "done"
	}
	return "unknown"
}

// Output is one item produced by the splitter. Exactly one of Chat,
// Document and Err is set.
type Output struct {
	Chat     string
	Document *workflow.Document
	// Violations lists members of the document that had the wrong JSON
	// type and were left out of Document. Only set alongside Document.
	Violations []workflow.Violation
	// Err is terminal and only produced by Assemble.
	Err error
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithMarker overrides DefaultMarker. An empty marker is ignored.
func WithMarker(marker string) Option {
	return func(s *Splitter) {
		if marker != "" {
			s.marker = marker
		}
	}
}

// WithSplitMarkers enables recognition of a marker split across fragments.
// When enabled, a fragment tail that could begin the marker is held back
// until the next fragment or the end of the stream. By default each
// fragment is scanned on its own.
func WithSplitMarkers(enabled bool) Option {
	return func(s *Splitter) {
		s.splitMarkers = enabled
	}
}

// WithLogger sets the logger used to report an unfinished document at the
// end of the stream.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Splitter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Splitter is the synchronous state machine behind Assemble. It is not safe
// for concurrent use.
type Splitter struct {
	marker       string
	splitMarkers bool
	logger       *slog.Logger

	state State
	held  string
	buf   strings.Builder
}

// NewSplitter returns a Splitter in the Scanning state.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		marker: DefaultMarker,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current phase.
func (s *Splitter) State() State {
	return s.state
}

// Feed classifies one fragment.
func (s *Splitter) Feed(fragment string) []Output {
	switch s.state {
	case Scanning:
		return s.scan(fragment)
	case Accumulating:
		s.buf.WriteString(fragment)
		if !strings.ContainsRune(fragment, '}') {
			return nil
		}
		return s.tryParse()
	default:
		return chat(nil, fragment)
	}
}

// Finish flushes held-back text at the end of the stream. A candidate
// buffer that never parsed yields no document.
func (s *Splitter) Finish() []Output {
	switch s.state {
	case Scanning:
		held := s.held
		s.held = ""
		return chat(nil, held)
	case Accumulating:
		s.logger.Warn("stream ended before workflow document was complete",
			"buffered_bytes", s.buf.Len(),
		)
	}
	return nil
}

func (s *Splitter) scan(fragment string) []Output {
	text := s.held + fragment
	s.held = ""

	idx := strings.Index(text, s.marker)
	if idx < 0 {
		if s.splitMarkers {
			n := partialMarker(text, s.marker)
			s.held = text[len(text)-n:]
			text = text[:len(text)-n]
		}
		return chat(nil, text)
	}

	out := chat(nil, text[:idx])
	s.state = Accumulating
	rest := text[idx+len(s.marker):]
	s.buf.WriteString(rest)
	if strings.ContainsRune(rest, '}') {
		out = append(out, s.tryParse()...)
	}
	return out
}

// tryParse decodes the first JSON value of the buffer. Only syntax decides
// completion; a failure means the document is still incomplete. Members of
// the wrong type are reported by workflow.DecodeDocument instead.
func (s *Splitter) tryParse() []Output {
	candidate := strings.TrimLeft(s.buf.String(), " \t\r\n")
	if !strings.HasPrefix(candidate, "{") {
		return nil
	}

	dec := json.NewDecoder(strings.NewReader(candidate))
	var raw json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		return nil
	}

	remainder := candidate[dec.InputOffset():]
	s.state = Done
	s.buf.Reset()
	doc, violations := workflow.DecodeDocument(raw)
	return chat([]Output{{Document: doc, Violations: violations}}, remainder)
}

// partialMarker returns the length of the longest suffix of text that is a
// proper prefix of marker.
func partialMarker(text, marker string) int {
	for n := min(len(marker)-1, len(text)); n > 0; n-- {
		if strings.HasSuffix(text, marker[:n]) {
			return n
		}
	}
	return 0
}

func chat(out []Output, text string) []Output {
	if text == "" {
		return out
	}
	return append(out, Output{Chat: text})
}

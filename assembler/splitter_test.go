package assembler

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/careflow/workflow"
)

const sampleDocument = `{"blocks":[{"id":"msg-1","type":"send-message","config":{"channel":"sms","message":"Hi {name}, see you soon"}},` +
	`{"id":"wait-1","type":"wait","config":{"waitType":"time","duration":2,"unit":"days"}}],` +
	`"connections":[{"from":"msg-1","to":"wait-1"}]}`

// collect feeds fragments through a splitter and returns the concatenated
// chat text and every emitted document.
func collect(s *Splitter, fragments ...string) (string, []*workflow.Document) {
	var sb strings.Builder
	var docs []*workflow.Document
	handle := func(outs []Output) {
		for _, o := range outs {
			if o.Document != nil {
				docs = append(docs, o.Document)
			} else {
				sb.WriteString(o.Chat)
			}
		}
	}
	for _, f := range fragments {
		handle(s.Feed(f))
	}
	handle(s.Finish())
	return sb.String(), docs
}

func parseDocument(t *testing.T, raw string) *workflow.Document {
	t.Helper()
	var doc workflow.Document
	require.NoError(t, json.Unmarshal([]byte(raw), &doc))
	return &doc
}

func TestSplitter_NoMarker(t *testing.T) {
	s := NewSplitter()
	chat, docs := collect(s, "No JSON here.")
	assert.Equal(t, "No JSON here.", chat)
	assert.Empty(t, docs)
	assert.Equal(t, Scanning, s.State())
}

func TestSplitter_DocumentAcrossFragments(t *testing.T) {
	s := NewSplitter()

	outs := s.Feed("Sure! ")
	assert.Equal(t, []Output{{Chat: "Sure! "}}, outs)

	outs = s.Feed(`WORKFLOW_JSON: {"blocks":[`)
	assert.Empty(t, outs)
	assert.Equal(t, Accumulating, s.State())

	outs = s.Feed(`],"connections":[]}`)
	require.Len(t, outs, 1)
	require.NotNil(t, outs[0].Document)
	assert.Empty(t, outs[0].Document.Blocks)
	assert.Equal(t, Done, s.State())

	assert.Equal(t, []Output{{Chat: " Anything else?"}}, s.Feed(" Anything else?"))
}

func TestSplitter_SingleFragment(t *testing.T) {
	chat, docs := collect(NewSplitter(), "Here you go WORKFLOW_JSON:\n"+sampleDocument+"\nWant changes?")
	assert.Equal(t, "Here you go \nWant changes?", chat)
	require.Len(t, docs, 1)
	assert.Equal(t, parseDocument(t, sampleDocument), docs[0])
}

func TestSplitter_TrailingProseWithoutWhitespace(t *testing.T) {
	chat, docs := collect(NewSplitter(), `WORKFLOW_JSON: {"blocks":[],"connections":[]}Done!`)
	require.Len(t, docs, 1)
	assert.Equal(t, "Done!", chat)
}

func TestSplitter_OnlyFirstMarker(t *testing.T) {
	second := `WORKFLOW_JSON: {"blocks":[],"connections":[]}`
	chat, docs := collect(NewSplitter(), `WORKFLOW_JSON: {"blocks":[],"connections":[]}`, " ", second)
	assert.Len(t, docs, 1)
	assert.Equal(t, " "+second, chat)
}

func TestSplitter_MarkerSplitAcrossFragments(t *testing.T) {
	fragments := []string{"...intro WORKFLOW_J", `SON: {"blocks":[],"connections":[]}`}

	t.Run("whole fragment scanning", func(t *testing.T) {
		s := NewSplitter()
		chat, docs := collect(s, fragments...)
		assert.Empty(t, docs)
		assert.Equal(t, strings.Join(fragments, ""), chat)
		assert.Equal(t, Scanning, s.State())
	})

	t.Run("split tolerant", func(t *testing.T) {
		s := NewSplitter(WithSplitMarkers(true))
		chat, docs := collect(s, fragments...)
		require.Len(t, docs, 1)
		assert.Equal(t, &workflow.Document{Blocks: []workflow.Block{}, Connections: []workflow.Connection{}}, docs[0])
		assert.Equal(t, "...intro ", chat)
	})
}

func TestSplitter_SplitTolerantReleasesHeldText(t *testing.T) {
	s := NewSplitter(WithSplitMarkers(true))

	assert.Equal(t, []Output{{Chat: "A "}}, s.Feed("A WORKFLOW"))
	assert.Equal(t, []Output{{Chat: "WORKFLOWS are great"}}, s.Feed("S are great"))

	assert.Equal(t, []Output{{Chat: "ends with "}}, s.Feed("ends with WORK"))
	assert.Equal(t, []Output{{Chat: "WORK"}}, s.Finish())
	assert.Empty(t, s.Finish())
}

func TestSplitter_NeverParses(t *testing.T) {
	var logs bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))

	s := NewSplitter(WithLogger(logger))
	chat, docs := collect(s, "Working on it. ", `WORKFLOW_JSON: {"blocks":[{"id":"a"`, `,"type":"note"}`)
	assert.Equal(t, "Working on it. ", chat)
	assert.Empty(t, docs)
	assert.Equal(t, Accumulating, s.State())
	assert.Contains(t, logs.String(), "stream ended before workflow document was complete")
}

func TestSplitter_WrongTypedMembersStillComplete(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		field  string
		blocks int
	}{
		{"numeric id", `{"blocks":[{"id":1,"type":"task","config":{}}],"connections":[]}`, "blocks[0].id", 0},
		{"config not an object", `{"blocks":[{"id":"n","type":"note","config":"none"}],"connections":[]}`, "config", 0},
		{"connections not a list", `{"blocks":[{"id":"n","type":"note","config":{"content":"x"}}],"connections":{}}`, "connections", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewSplitter()
			var outs []Output
			outs = append(outs, s.Feed("Here. WORKFLOW_JSON: "+tt.doc)...)
			outs = append(outs, s.Feed(" Anything else?")...)
			outs = append(outs, s.Finish()...)

			assert.Equal(t, Done, s.State())
			require.Len(t, outs, 3)
			assert.Equal(t, "Here. ", outs[0].Chat)
			require.NotNil(t, outs[1].Document)
			assert.Len(t, outs[1].Document.Blocks, tt.blocks)
			require.Len(t, outs[1].Violations, 1)
			assert.Equal(t, workflow.CodeWrongKind, outs[1].Violations[0].Code)
			assert.Equal(t, tt.field, outs[1].Violations[0].Field)
			assert.Equal(t, " Anything else?", outs[2].Chat)
		})
	}
}

func TestSplitter_WellTypedDocumentHasNoViolations(t *testing.T) {
	outs := NewSplitter().Feed("WORKFLOW_JSON: " + sampleDocument)
	require.Len(t, outs, 1)
	assert.Equal(t, parseDocument(t, sampleDocument), outs[0].Document)
	assert.Empty(t, outs[0].Violations)
}

func TestSplitter_ProseBeforeBraceNeverParses(t *testing.T) {
	_, docs := collect(NewSplitter(), `WORKFLOW_JSON: here it is {"blocks":[],"connections":[]}`)
	assert.Empty(t, docs)
}

func TestSplitter_CustomMarker(t *testing.T) {
	chat, docs := collect(NewSplitter(WithMarker("<<DOC>>")), `hi <<DOC>>{"blocks":[],"connections":[]}`)
	assert.Equal(t, "hi ", chat)
	assert.Len(t, docs, 1)

	s := NewSplitter(WithMarker(""))
	assert.Equal(t, DefaultMarker, s.marker)
}

func chunk(text string, cuts []int) []string {
	var out []string
	prev := 0
	for _, c := range cuts {
		out = append(out, text[prev:c])
		prev = c
	}
	return append(out, text[prev:])
}

func randomCuts(r *rand.Rand, lo, hi int) []int {
	var cuts []int
	for i := lo + 1; i < hi; i++ {
		if r.IntN(4) == 0 {
			cuts = append(cuts, i)
		}
	}
	return cuts
}

func TestSplitter_ChunkingInvariance(t *testing.T) {
	prefix := "Here's a follow-up workflow. "
	suffix := "\nLet me know if you want changes."
	text := prefix + DefaultMarker + " " + sampleDocument + suffix
	want := parseDocument(t, sampleDocument)

	t.Run("split tolerant, every fixed chunk size", func(t *testing.T) {
		for size := 1; size <= len(text); size++ {
			var cuts []int
			for c := size; c < len(text); c += size {
				cuts = append(cuts, c)
			}
			chat, docs := collect(NewSplitter(WithSplitMarkers(true)), chunk(text, cuts)...)
			require.Len(t, docs, 1, "size %d", size)
			assert.Equal(t, want, docs[0], "size %d", size)
			assert.Equal(t, prefix+suffix, chat, "size %d", size)
		}
	})

	t.Run("whole fragment, random cuts outside the marker", func(t *testing.T) {
		r := rand.New(rand.NewPCG(1, 2))
		start := len(prefix)
		end := start + len(DefaultMarker)
		for i := 0; i < 200; i++ {
			cuts := append(randomCuts(r, 0, start), randomCuts(r, end, len(text))...)
			chat, docs := collect(NewSplitter(), chunk(text, cuts)...)
			require.Len(t, docs, 1, "cuts %v", cuts)
			assert.Equal(t, want, docs[0])
			assert.Equal(t, prefix+suffix, chat)
		}
	})
}

func TestSplitter_NoMarkerChatIsExact(t *testing.T) {
	text := "A note about {braces} and WORKFLOW words, but no marker: {\"blocks\":[]}"
	r := rand.New(rand.NewPCG(3, 4))
	for _, tolerant := range []bool{false, true} {
		for i := 0; i < 100; i++ {
			chat, docs := collect(NewSplitter(WithSplitMarkers(tolerant)), chunk(text, randomCuts(r, 0, len(text)))...)
			assert.Empty(t, docs)
			assert.Equal(t, text, chat)
		}
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "scanning", Scanning.String())
	assert.Equal(t, "accumulating", Accumulating.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "unknown", State(9).String())
}

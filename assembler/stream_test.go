package assembler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/spetersoncode/careflow"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// feed emits events on a channel until they run out or ctx is cancelled.
func feed(ctx context.Context, events ...careflow.StreamEvent) <-chan careflow.StreamEvent {
	ch := make(chan careflow.StreamEvent)
	go func() {
		defer close(ch)
		for _, ev := range events {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch
}

func deltas(fragments ...string) []careflow.StreamEvent {
	events := make([]careflow.StreamEvent, 0, len(fragments)+1)
	for _, f := range fragments {
		events = append(events, careflow.StreamEvent{Delta: f})
	}
	return append(events, careflow.StreamEvent{Done: true, Response: &careflow.Response{}})
}

func drain(out <-chan Output) []Output {
	var items []Output
	for o := range out {
		items = append(items, o)
	}
	return items
}

func TestAssemble_ChatAndDocument(t *testing.T) {
	ctx := context.Background()
	in := feed(ctx, deltas("Building it now. ", "WORKFLOW_JSON: ", sampleDocument[:40], sampleDocument[40:], " Done.")...)

	items := drain(Assemble(ctx, in))
	require.Len(t, items, 3)
	assert.Equal(t, "Building it now. ", items[0].Chat)
	require.NotNil(t, items[1].Document)
	assert.Len(t, items[1].Document.Blocks, 2)
	assert.Equal(t, " Done.", items[2].Chat)
}

func TestAssemble_SplitMarkersOption(t *testing.T) {
	ctx := context.Background()
	in := feed(ctx, deltas("intro WORKFLOW_J", `SON: {"blocks":[],"connections":[]}`)...)

	items := drain(Assemble(ctx, in, WithSplitMarkers(true)))
	require.Len(t, items, 2)
	assert.Equal(t, "intro ", items[0].Chat)
	assert.NotNil(t, items[1].Document)
}

func TestAssemble_UpstreamErrorDropsPartialDocument(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	boom := errors.New("upstream timeout")
	in := feed(ctx,
		careflow.StreamEvent{Delta: "Sure. "},
		careflow.StreamEvent{Delta: `WORKFLOW_JSON: {"blocks":[`},
		careflow.StreamEvent{Err: boom},
		careflow.StreamEvent{Delta: `],"connections":[]}`},
	)

	items := drain(Assemble(ctx, in))
	require.Len(t, items, 2)
	assert.Equal(t, "Sure. ", items[0].Chat)
	assert.ErrorIs(t, items[1].Err, boom)
	assert.Nil(t, items[1].Document)
}

func TestAssemble_EmptyStream(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, drain(Assemble(ctx, feed(ctx))))
}

func TestAssemble_AbandonedConsumer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// an endless producer
	in := make(chan careflow.StreamEvent)
	go func() {
		defer close(in)
		for {
			select {
			case in <- careflow.StreamEvent{Delta: "more text "}:
			case <-ctx.Done():
				return
			}
		}
	}()

	out := Assemble(ctx, in)
	first := <-out
	assert.Equal(t, "more text ", first.Chat)

	cancel()
	select {
	case <-closed(out):
	case <-time.After(2 * time.Second):
		t.Fatal("assembler did not stop after cancellation")
	}
}

// closed drains out in the background and reports when it is closed.
func closed(out <-chan Output) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		for range out {
		}
		close(done)
	}()
	return done
}

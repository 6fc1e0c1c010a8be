package main

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spetersoncode/careflow/internal/fake"
)

func dial(t *testing.T, app *App) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(app.Routes())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/workflow-chat"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readUntilDone collects frames up to and including the first with done set.
func readUntilDone(t *testing.T, conn *websocket.Conn) []map[string]any {
	t.Helper()
	var frames []map[string]any
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var frame map[string]any
		require.NoError(t, conn.ReadJSON(&frame))
		frames = append(frames, frame)
		if frame["done"] == true {
			return frames
		}
	}
}

func frameTypes(frames []map[string]any) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i], _ = f["type"].(string)
	}
	return out
}

func TestWorkflowChat_Generate(t *testing.T) {
	p := &fake.Provider{Fragments: []string{
		"Sure. ",
		"WORKFLOW_JSON: " + intakeDocument,
	}}
	conn := dial(t, newTestApp(t, p))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":            "chat_message",
		"message":         "Create an intake workflow",
		"workflow_type":   "patient",
		"existing_blocks": []any{map[string]any{"id": "x"}},
	}))
	frames := readUntilDone(t, conn)
	types := frameTypes(frames)

	assert.Equal(t, "processing_started", types[0])
	assert.Contains(t, types, "chat_message")
	assert.Contains(t, types, "workflow_created")
	last := frames[len(frames)-1]
	assert.Equal(t, "generation_complete", last["type"])
	assert.EqualValues(t, 2, last["blocks_created"])

	prompt := p.Calls()[0][1].Content
	assert.Contains(t, prompt, "Current workflow has 1 blocks.")
}

func TestWorkflowChat_SessionControl(t *testing.T) {
	conn := dial(t, newTestApp(t, &fake.Provider{}))

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	frames := readUntilDone(t, conn)
	require.Len(t, frames, 1)
	assert.Equal(t, "pong", frames[0]["type"])
	assert.NotEmpty(t, frames[0]["timestamp"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "reset_conversation"}))
	frames = readUntilDone(t, conn)
	assert.Equal(t, "conversation_reset", frames[0]["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "dance"}))
	frames = readUntilDone(t, conn)
	assert.Equal(t, "error", frames[0]["type"])
	assert.Contains(t, frames[0]["error"], "unknown message type")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	frames = readUntilDone(t, conn)
	assert.Equal(t, "error", frames[0]["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	frames = readUntilDone(t, conn)
	assert.Equal(t, "pong", frames[0]["type"], "connection survives bad frames")
}

// readFrame reads one frame with a deadline.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func TestWorkflowChat_ControlMessagesDuringTurn(t *testing.T) {
	p := &fake.Provider{Fragments: []string{"Thinking about it. "}, Block: true}
	conn := dial(t, newTestApp(t, p))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat_message", "message": "Create a workflow"}))
	assert.Equal(t, "processing_started", readFrame(t, conn)["type"])
	assert.Equal(t, "chat_message", readFrame(t, conn)["type"])

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, "pong", readFrame(t, conn)["type"], "ping is answered while the turn is running")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "reset_conversation"}))
	cancelled := readFrame(t, conn)
	assert.Equal(t, "error", cancelled["type"])
	assert.Contains(t, cancelled["error"], "cancelled by conversation reset")
	assert.Equal(t, "conversation_reset", readFrame(t, conn)["type"])
}

func TestWorkflowChat_QueuedRequestsRunInOrder(t *testing.T) {
	p := &fake.Provider{Fragments: []string{"Done."}}
	conn := dial(t, newTestApp(t, p))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat_message", "message": "first"}))
	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat_message", "message": "second"}))
	for range 2 {
		frames := readUntilDone(t, conn)
		assert.Equal(t, "generation_complete", frames[len(frames)-1]["type"])
	}

	calls := p.Calls()
	require.Len(t, calls, 2)
	assert.Contains(t, calls[0][1].Content, "User request: first")
	assert.Contains(t, calls[1][1].Content, "User request: second")
}

func TestWorkflowChat_DisconnectCancelsTurn(t *testing.T) {
	p := &fake.Provider{Fragments: []string{"Working. "}, Block: true}
	app := newTestApp(t, p)
	conn := dial(t, app)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "chat_message", "message": "Create a workflow"}))
	assert.Equal(t, "processing_started", readFrame(t, conn)["type"])
	require.Equal(t, int64(1), app.connections.Load())

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return app.connections.Load() == 0 },
		2*time.Second, 10*time.Millisecond, "handler exits before the stream timeout")
}

func TestWorkflowChat_InvalidWorkflowType(t *testing.T) {
	p := &fake.Provider{}
	conn := dial(t, newTestApp(t, p))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type":          "chat_message",
		"message":       "Create a workflow",
		"workflow_type": "hospital",
	}))
	frames := readUntilDone(t, conn)
	assert.Equal(t, "error", frames[len(frames)-1]["type"])
	assert.Zero(t, p.CallCount())
}

func TestBlockCount(t *testing.T) {
	assert.Equal(t, 0, blockCount(nil))
	assert.Equal(t, 2, blockCount(json.RawMessage(`[{},{}]`)))
	assert.Equal(t, 5, blockCount(json.RawMessage(`5`)))
	assert.Equal(t, 0, blockCount(json.RawMessage(`-3`)))
	assert.Equal(t, 0, blockCount(json.RawMessage(`"many"`)))
}

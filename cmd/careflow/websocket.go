package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/spetersoncode/careflow/event"
	"github.com/spetersoncode/careflow/generator"
	"github.com/spetersoncode/careflow/workflow"
)

// Client message types accepted on the workflow chat socket.
const (
	msgChat  = "chat_message"
	msgReset = "reset_conversation"
	msgPing  = "ping"
)

// clientMessage is one frame sent by the frontend.
type clientMessage struct {
	Type         string `json:"type"`
	Message      string `json:"message"`
	WorkflowType string `json:"workflow_type"`
	// ExistingBlocks is either the client's block list or its length.
	ExistingBlocks json.RawMessage `json:"existing_blocks"`
}

func (m clientMessage) request() generator.Request {
	return generator.Request{
		Message:        m.Message,
		WorkflowType:   workflow.Type(m.WorkflowType),
		ExistingBlocks: blockCount(m.ExistingBlocks),
	}
}

func blockCount(raw json.RawMessage) int {
	if len(raw) == 0 {
		return 0
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		return len(list)
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil && n > 0 {
		return n
	}
	return 0
}

// errTurnCancelled ends a turn interrupted by reset_conversation.
var errTurnCancelled = errors.New("generation cancelled by conversation reset")

// inbound is one decoded client frame.
type inbound struct {
	msg clientMessage
	err error
}

// workflowChatHandler serves one conversation per connection. Chat requests
// run one at a time, in order; ping and reset_conversation are answered
// while a turn is running. A reset cancels the running turn and drops
// queued requests. Closing the connection cancels the running turn.
func (a *App) workflowChatHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	a.connections.Add(1)
	defer a.connections.Add(-1)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	session := a.newSession()
	log := a.log.With("session_id", session.ID())
	log.Info("client connected")
	defer log.Info("client disconnected")

	incoming := readFrames(ctx, cancel, conn, log)

	var (
		turn     <-chan event.Event
		stopTurn context.CancelFunc
		queue    []generator.Request
	)
	start := func(req generator.Request) {
		var turnCtx context.Context
		turnCtx, stopTurn = context.WithCancel(ctx)
		turn = session.Generate(turnCtx, req)
	}
	finish := func() {
		stopTurn()
		turn = nil
	}

	for {
		select {
		case ev, ok := <-turn:
			if !ok {
				finish()
				if len(queue) > 0 {
					start(queue[0])
					queue = queue[1:]
				}
				continue
			}
			if !send(conn, ev) {
				return
			}

		case in, ok := <-incoming:
			if !ok {
				return
			}
			if in.err != nil {
				if !send(conn, event.Failed(in.err)) {
					return
				}
				continue
			}
			log.Debug("message received", "type", in.msg.Type)

			switch in.msg.Type {
			case msgChat:
				if turn == nil {
					start(in.msg.request())
				} else {
					queue = append(queue, in.msg.request())
				}
			case msgReset:
				if turn != nil {
					stopTurn()
					for range turn {
					}
					finish()
					queue = nil
					log.Info("generation cancelled by reset")
					if !send(conn, event.Failed(errTurnCancelled)) {
						return
					}
				}
				session.Reset()
				if !send(conn, event.Event{Type: event.ConversationReset, Message: "Conversation history cleared"}) {
					return
				}
			case msgPing:
				if !send(conn, event.Event{Type: event.Pong}) {
					return
				}
			default:
				if !send(conn, event.Failed(fmt.Errorf("unknown message type: %s", in.msg.Type))) {
					return
				}
			}
		}
	}
}

// readFrames reads client frames until the connection fails, then cancels
// the connection context and closes the returned channel.
func readFrames(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, log *slog.Logger) <-chan inbound {
	out := make(chan inbound)
	go func() {
		defer close(out)
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("websocket read failed", "error", err)
				}
				return
			}
			var in inbound
			if err := json.Unmarshal(data, &in.msg); err != nil {
				in.err = fmt.Errorf("invalid message: %w", err)
			}
			select {
			case out <- in:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// send writes e as a JSON frame and reports whether the connection is
// still usable.
func send(conn *websocket.Conn, e event.Event) bool {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return conn.WriteJSON(e) == nil
}

// Package fake provides a scripted chat provider for tests.
package fake

import (
	"context"
	"sync"

	"github.com/spetersoncode/careflow"
)

// Provider is a careflow.ChatProvider that replays scripted output and
// records every request it receives.
type Provider struct {
	// Reply is returned by Chat.
	Reply string
	// Fragments are streamed by ChatStream, one event each.
	Fragments []string
	// Err is returned by both Chat and ChatStream before any output.
	Err error
	// StreamErr is sent as a terminal event after Fragments.
	StreamErr error
	// Block makes ChatStream wait for ctx cancellation after Fragments.
	Block bool

	mu    sync.Mutex
	calls [][]careflow.Message
}

// Chat implements careflow.ChatProvider.
func (p *Provider) Chat(_ context.Context, messages []careflow.Message, _ ...careflow.Option) (*careflow.Response, error) {
	p.record(messages)
	if p.Err != nil {
		return nil, p.Err
	}
	return &careflow.Response{Content: p.Reply, FinishReason: "stop"}, nil
}

// ChatStream implements careflow.ChatProvider.
func (p *Provider) ChatStream(ctx context.Context, messages []careflow.Message, _ ...careflow.Option) (<-chan careflow.StreamEvent, error) {
	p.record(messages)
	if p.Err != nil {
		return nil, p.Err
	}

	ch := make(chan careflow.StreamEvent)
	go func() {
		defer close(ch)
		send := func(ev careflow.StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}
		for _, f := range p.Fragments {
			if !send(careflow.StreamEvent{Delta: f}) {
				return
			}
		}
		if p.Block {
			<-ctx.Done()
			send(careflow.StreamEvent{Err: ctx.Err()})
			return
		}
		if p.StreamErr != nil {
			send(careflow.StreamEvent{Err: p.StreamErr})
			return
		}
		send(careflow.StreamEvent{Done: true, Response: &careflow.Response{FinishReason: "stop"}})
	}()
	return ch, nil
}

// Calls returns the message lists received so far.
func (p *Provider) Calls() [][]careflow.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]careflow.Message, len(p.calls))
	copy(out, p.calls)
	return out
}

// CallCount returns how many requests were received.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *Provider) record(messages []careflow.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]careflow.Message(nil), messages...))
}

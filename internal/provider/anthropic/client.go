// Package anthropic adapts the Anthropic Messages API to careflow's
// text-only ChatProvider.
package anthropic

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/internal/provider"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "claude-sonnet-4-5"

const defaultMaxTokens = 4096

// Client wraps the Anthropic SDK to implement careflow.ChatProvider.
type Client struct {
	client *anthropic.Client
	model  string
}

// New creates a new Anthropic client with the given API key.
func New(apiKey string, opts ...option.RequestOption) *Client {
	client := anthropic.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Client{client: &client, model: DefaultModel}
}

func (c *Client) params(messages []careflow.Message, opts []careflow.Option) anthropic.MessageNewParams {
	options := careflow.ApplyOptions(opts...)
	model := c.model
	if options.Model != nil {
		model = options.Model.String()
	}
	maxTokens := int64(defaultMaxTokens)
	if options.MaxTokens > 0 {
		maxTokens = int64(options.MaxTokens)
	}

	msgs, system := convertMessages(messages)
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if len(system) > 0 {
		params.System = system
	}
	if options.Temperature != nil {
		params.Temperature = anthropic.Float(*options.Temperature)
	}
	return params
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []careflow.Message, opts ...careflow.Option) (*careflow.Response, error) {
	resp, err := c.client.Messages.New(ctx, c.params(messages, opts))
	if err != nil {
		return nil, wrapError(err)
	}
	return toResponse(resp), nil
}

// ChatStream sends a conversation and returns a channel of streaming events.
func (c *Client) ChatStream(ctx context.Context, messages []careflow.Message, opts ...careflow.Option) (<-chan careflow.StreamEvent, error) {
	stream := c.client.Messages.NewStreaming(ctx, c.params(messages, opts))
	ch := make(chan careflow.StreamEvent)

	go func() {
		defer close(ch)
		defer stream.Close()

		send := func(ev careflow.StreamEvent) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		var acc anthropic.Message
		for stream.Next() {
			event := stream.Current()
			if err := acc.Accumulate(event); err != nil {
				send(careflow.StreamEvent{Err: err})
				return
			}
			if event.Type != "content_block_delta" {
				continue
			}
			delta := event.AsContentBlockDelta().Delta.AsTextDelta()
			if delta.Type == "text_delta" && delta.Text != "" {
				if !send(careflow.StreamEvent{Delta: delta.Text}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(careflow.StreamEvent{Err: wrapError(err)})
			return
		}
		send(careflow.StreamEvent{Done: true, Response: toResponse(&acc)})
	}()

	return ch, nil
}

func convertMessages(messages []careflow.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var result []anthropic.MessageParam
	var system []anthropic.TextBlockParam

	for _, msg := range messages {
		// Anthropic rejects empty text blocks
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case careflow.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case careflow.RoleAssistant:
			result = append(result, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result, system
}

func toResponse(msg *anthropic.Message) *careflow.Response {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &careflow.Response{
		Content:      sb.String(),
		FinishReason: string(msg.StopReason),
		Usage: careflow.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

// wrapError categorizes an Anthropic API error by status code. Other errors
// are returned unchanged.
func wrapError(err error) error {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	return careflow.NewStatusError("anthropic: request failed", apiErr.StatusCode, provider.RetryAfter(apiErr.Response), err)
}

var _ careflow.ChatProvider = (*Client)(nil)

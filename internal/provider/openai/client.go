// Package openai adapts the OpenAI chat completions API to careflow's
// text-only ChatProvider.
package openai

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/spetersoncode/careflow"
	"github.com/spetersoncode/careflow/internal/provider"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "gpt-5-mini"

// Client wraps the OpenAI SDK to implement careflow.ChatProvider.
type Client struct {
	client *openai.Client
	model  string
}

// New creates a new OpenAI client with the given API key.
func New(apiKey string, opts ...option.RequestOption) *Client {
	client := openai.NewClient(append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)...)
	return &Client{client: &client, model: DefaultModel}
}

func (c *Client) params(messages []careflow.Message, opts []careflow.Option) openai.ChatCompletionNewParams {
	options := careflow.ApplyOptions(opts...)
	model := c.model
	if options.Model != nil {
		model = options.Model.String()
	}

	params := openai.ChatCompletionNewParams{
		Model:    model,
		Messages: convertMessages(messages),
	}
	if options.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(options.MaxTokens))
	}
	if options.Temperature != nil {
		params.Temperature = openai.Float(*options.Temperature)
	}
	return params
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []careflow.Message, opts ...careflow.Option) (*careflow.Response, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(messages, opts))
	if err != nil {
		return nil, wrapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	return &careflow.Response{
		Content:      resp.Choices[0].Message.Content,
		FinishReason: string(resp.Choices[0].FinishReason),
		Usage: careflow.Usage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// ChatStream sends a conversation and returns a channel of streaming events.
func (c *Client) ChatStream(ctx context.Context, messages []careflow.Message, opts ...careflow.Option) (<-chan careflow.StreamEvent, error) {
	params := c.params(messages, opts)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
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

		var acc openai.ChatCompletionAccumulator
		for stream.Next() {
			chunk := stream.Current()
			acc.AddChunk(chunk)

			if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
				if !send(careflow.StreamEvent{Delta: chunk.Choices[0].Delta.Content}) {
					return
				}
			}
		}

		if err := stream.Err(); err != nil {
			send(careflow.StreamEvent{Err: wrapError(err)})
			return
		}

		resp := &careflow.Response{
			Usage: careflow.Usage{
				InputTokens:  int(acc.Usage.PromptTokens),
				OutputTokens: int(acc.Usage.CompletionTokens),
			},
		}
		if len(acc.Choices) > 0 {
			resp.Content = acc.Choices[0].Message.Content
			resp.FinishReason = string(acc.Choices[0].FinishReason)
		}
		send(careflow.StreamEvent{Done: true, Response: resp})
	}()

	return ch, nil
}

func convertMessages(messages []careflow.Message) []openai.ChatCompletionMessageParamUnion {
	var result []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case careflow.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case careflow.RoleAssistant:
			result = append(result, openai.AssistantMessage(msg.Content))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

// wrapError categorizes an OpenAI API error by status code. Other errors
// are returned unchanged.
func wrapError(err error) error {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	return careflow.NewStatusError("openai: request failed", apiErr.StatusCode, provider.RetryAfter(apiErr.Response), err)
}

var _ careflow.ChatProvider = (*Client)(nil)

// Package google adapts the Gemini API to careflow's text-only
// ChatProvider.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/spetersoncode/careflow"
)

// DefaultModel is used when a request names no model.
const DefaultModel = "gemini-2.5-flash"

// BlockedError indicates the request was blocked by content filtering.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("google: content blocked: %s", e.Reason)
}

// Client wraps the Google GenAI SDK to implement careflow.ChatProvider.
type Client struct {
	client *genai.Client
	model  string
}

// New creates a new Google GenAI client with the given API key.
func New(ctx context.Context, apiKey string) (*Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, err
	}
	return &Client{client: client, model: DefaultModel}, nil
}

func (c *Client) request(messages []careflow.Message, opts []careflow.Option) (string, []*genai.Content, *genai.GenerateContentConfig) {
	options := careflow.ApplyOptions(opts...)
	model := c.model
	if options.Model != nil {
		model = options.Model.String()
	}

	contents, system := convertMessages(messages)
	config := &genai.GenerateContentConfig{SystemInstruction: system}
	if options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(options.MaxTokens)
	}
	if options.Temperature != nil {
		temp := float32(*options.Temperature)
		config.Temperature = &temp
	}
	return model, contents, config
}

// Chat sends a conversation and returns a complete response.
func (c *Client) Chat(ctx context.Context, messages []careflow.Message, opts ...careflow.Option) (*careflow.Response, error) {
	model, contents, config := c.request(messages, opts)
	resp, err := c.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, wrapError(err)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)}
	}

	out := &careflow.Response{}
	if len(resp.Candidates) > 0 {
		out.Content = candidateText(resp.Candidates[0])
		out.FinishReason = string(resp.Candidates[0].FinishReason)
	}
	if resp.UsageMetadata != nil {
		out.Usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.Usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out, nil
}

// ChatStream sends a conversation and returns a channel of streaming events.
func (c *Client) ChatStream(ctx context.Context, messages []careflow.Message, opts ...careflow.Option) (<-chan careflow.StreamEvent, error) {
	model, contents, config := c.request(messages, opts)
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

		var full strings.Builder
		final := &careflow.Response{}
		for resp, err := range c.client.Models.GenerateContentStream(ctx, model, contents, config) {
			if err != nil {
				send(careflow.StreamEvent{Err: wrapError(err)})
				return
			}
			if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
				send(careflow.StreamEvent{Err: &BlockedError{Reason: string(resp.PromptFeedback.BlockReason)}})
				return
			}
			if len(resp.Candidates) > 0 {
				if text := candidateText(resp.Candidates[0]); text != "" {
					full.WriteString(text)
					if !send(careflow.StreamEvent{Delta: text}) {
						return
					}
				}
				final.FinishReason = string(resp.Candidates[0].FinishReason)
			}
			if resp.UsageMetadata != nil {
				final.Usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
				final.Usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
			}
		}

		final.Content = full.String()
		send(careflow.StreamEvent{Done: true, Response: final})
	}()

	return ch, nil
}

func candidateText(c *genai.Candidate) string {
	if c == nil || c.Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range c.Content.Parts {
		if part != nil && !part.Thought {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

// convertMessages maps turns onto Gemini contents. System messages become
// the system instruction.
func convertMessages(messages []careflow.Message) ([]*genai.Content, *genai.Content) {
	var contents []*genai.Content
	var system *genai.Content

	for _, msg := range messages {
		if msg.Content == "" {
			continue
		}
		switch msg.Role {
		case careflow.RoleSystem:
			if system == nil {
				system = &genai.Content{}
			}
			system.Parts = append(system.Parts, &genai.Part{Text: msg.Content})
		case careflow.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(msg.Content, genai.RoleUser))
		}
	}
	return contents, system
}

// wrapError categorizes a Gemini API error by status code. The API does
// not expose Retry-After.
func wrapError(err error) error {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	return careflow.NewStatusError("google: request failed", apiErr.Code, 0, err)
}

var _ careflow.ChatProvider = (*Client)(nil)

package backend

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// completionClient abstracts the chat-completions call we use, enabling
// test mocks.
type completionClient interface {
	New(ctx context.Context, params openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

// OpenAI implements Generator on the OpenAI chat-completions API.
type OpenAI struct {
	completions completionClient
	model       string
	temperature float64
}

// OpenAIOpts holds parameters for creating an OpenAI generator.
type OpenAIOpts struct {
	APIKey      string
	Model       string  // defaults to gpt-4o
	Temperature float64 // defaults to 0.7
	// For testing: inject a mock client instead of the real API.
	Client completionClient
}

// NewOpenAI creates an OpenAI generator.
func NewOpenAI(opts OpenAIOpts) (*OpenAI, error) {
	if opts.Client == nil && opts.APIKey == "" {
		return nil, fmt.Errorf("backend: openai api key is required")
	}
	model := opts.Model
	if model == "" {
		model = openai.ChatModelGPT4o
	}
	temperature := opts.Temperature
	if temperature == 0 {
		temperature = 0.7
	}

	g := &OpenAI{
		completions: opts.Client,
		model:       model,
		temperature: temperature,
	}
	if g.completions == nil {
		client := openai.NewClient(option.WithAPIKey(opts.APIKey))
		g.completions = &client.Chat.Completions
	}
	return g, nil
}

// Generate sends the prompt as a single user message and returns the
// completion text. Transport, quota, and deadline failures all surface as
// *Error.
func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model:       openai.ChatModel(g.model),
		Temperature: openai.Float(g.temperature),
	})
	if err != nil {
		return "", &Error{Op: "chat completion", Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &Error{Op: "chat completion", Err: fmt.Errorf("no choices in response")}
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", &Error{Op: "chat completion", Err: fmt.Errorf("empty completion")}
	}
	return text, nil
}

package generation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
)

// DefaultOpenAIModel is used when no generation model is configured.
const DefaultOpenAIModel = openai.ChatModelGPT4oMini

// OpenAI implements Generator against the OpenAI chat completions API.
type OpenAI struct {
	client  openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAI creates the generator. The API key is read from OPENAI_API_KEY.
// timeout bounds every Generate call.
func NewOpenAI(model string, timeout time.Duration) (*OpenAI, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("generation timeout is required")
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAI{
		client:  openai.NewClient(),
		model:   model,
		timeout: timeout,
	}, nil
}

// Generate implements Generator.
func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(prompt),
		},
		Model: g.model,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", classifyErr(callCtx.Err()), err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion response", ErrUnavailable)
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("%w: completion contained no text", ErrUnavailable)
	}
	return answer, nil
}

// Ping implements Generator by listing models, the cheapest authenticated
// round trip the API offers.
func (g *OpenAI) Ping(ctx context.Context) error {
	callCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := g.client.Models.List(callCtx); err != nil {
		return fmt.Errorf("%w: %v", classifyErr(callCtx.Err()), err)
	}
	return nil
}

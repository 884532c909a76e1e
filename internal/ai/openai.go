package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// OpenAIClient names the service behind an OTP message when the keyword
// table has no match.
type OpenAIClient struct {
	client   *openai.Client
	services []string
}

func NewOpenAIClient(apiKey string, services []string, opts ...option.RequestOption) *OpenAIClient {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey)}, opts...)
	client := openai.NewClient(opts...)
	return &OpenAIClient{client: &client, services: services}
}

// ClassifyService returns one of the known service names, or "" when the model
// is unsure or answers with something outside the list.
func (c *OpenAIClient) ClassifyService(ctx context.Context, text string) (string, error) {
	response, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModelGPT4oMini,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage("You identify which online service sent a one-time passcode SMS. Answer with the service name only."),
			openai.UserMessage(c.buildPrompt(text)),
		},
		Temperature: openai.Float(0),
		MaxTokens:   openai.Int(10),
	})
	if err != nil {
		return "", fmt.Errorf("openai request failed: %w", err)
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}

	return c.match(response.Choices[0].Message.Content), nil
}

func (c *OpenAIClient) buildPrompt(text string) string {
	var sb strings.Builder
	sb.WriteString("Pick the sender of this message from the list, or answer Unknown.\n")
	sb.WriteString("Services: ")
	sb.WriteString(strings.Join(c.services, ", "))
	sb.WriteString("\n\nMessage:\n")
	sb.WriteString(text)
	return sb.String()
}

func (c *OpenAIClient) match(answer string) string {
	answer = strings.Trim(strings.TrimSpace(answer), ".\"'")
	for _, name := range c.services {
		if strings.EqualFold(name, answer) {
			return name
		}
	}
	return ""
}

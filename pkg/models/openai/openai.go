package openai

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/nstogner/selfimprove/pkg/models"
	goopenai "github.com/sashabaranov/go-openai"
)

// Provider implements models.Provider using the OpenAI chat completions API.
type Provider struct {
	client *goopenai.Client
}

var _ models.Provider = (*Provider)(nil)

// New creates a new OpenAI provider. An empty baseURL uses the public API.
func New(apiKey, baseURL string) *Provider {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Provider{client: goopenai.NewClientWithConfig(cfg)}
}

func (p *Provider) Name() string { return "openai" }

// isReasoningModel reports whether model belongs to the o-series, which
// rejects temperature and max_tokens.
func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") || strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4")
}

// Stream sends the conversation to OpenAI and returns a stream over the reply.
func (p *Provider) Stream(ctx context.Context, req models.Request) (models.ModelStream, error) {
	slog.Debug("OpenAI.Stream", "model", req.Model, "messageCount", len(req.Messages))

	var messages []goopenai.ChatCompletionMessage
	if req.System != "" {
		messages = append(messages, goopenai.ChatCompletionMessage{
			Role:    goopenai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, msg := range req.Messages {
		role := goopenai.ChatMessageRoleUser
		switch msg.Role {
		case models.RoleAssistant:
			role = goopenai.ChatMessageRoleAssistant
		case models.RoleSystem:
			role = goopenai.ChatMessageRoleSystem
		}
		messages = append(messages, goopenai.ChatCompletionMessage{Role: role, Content: msg.Content})
	}

	creq := goopenai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: messages,
	}
	if isReasoningModel(req.Model) {
		creq.MaxCompletionTokens = req.MaxTokens
	} else {
		creq.MaxTokens = req.MaxTokens
		creq.Temperature = req.Temperature
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, creq)
	if err != nil {
		return nil, &models.ProviderError{Provider: p.Name(), Model: req.Model, Err: err}
	}
	return &openaiStream{stream: stream, model: req.Model}, nil
}

type openaiStream struct {
	stream *goopenai.ChatCompletionStream
	model  string
}

func (s *openaiStream) FullMessage() (models.Message, error) {
	var fullText strings.Builder
	for {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return models.Message{}, &models.ProviderError{Provider: "openai", Model: s.model, Err: err}
		}
		for _, choice := range resp.Choices {
			fullText.WriteString(choice.Delta.Content)
		}
	}
	return models.Message{Role: models.RoleAssistant, Content: fullText.String()}, nil
}

func (s *openaiStream) Close() error {
	return s.stream.Close()
}

package conversation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nstogner/selfimprove/pkg/models"
)

const (
	// MaxOutputTokens bounds every reply.
	MaxOutputTokens = 4096
	// DefaultTemperature is used when the caller passes UseDefaultTemperature.
	DefaultTemperature = 0.7
	// UseDefaultTemperature asks SendTurn to apply DefaultTemperature.
	UseDefaultTemperature = -1
)

// Driver performs single request/response turns against a model provider.
type Driver struct {
	provider models.Provider
}

// NewDriver creates a Driver backed by provider.
func NewDriver(provider models.Provider) *Driver {
	return &Driver{provider: provider}
}

// SendTurn appends newMessage to history, asks the model for a reply and
// returns the reply along with the history extended by both messages.
//
// Provider failures are returned to the caller as-is (wrapped); there is no
// retry or backoff here.
func (d *Driver) SendTurn(ctx context.Context, history History, newMessage, system, model string, temperature float32) (string, History, error) {
	if temperature < 0 {
		temperature = DefaultTemperature
	}

	user := models.Message{Role: models.RoleUser, Content: newMessage}
	pending := history.Append(user)

	slog.Debug("Calling model", "model", model, "historyLen", pending.Len())
	stream, err := d.provider.Stream(ctx, models.Request{
		Model:       model,
		System:      system,
		Messages:    pending.Messages(),
		Temperature: temperature,
		MaxTokens:   MaxOutputTokens,
	})
	if err != nil {
		return "", history, fmt.Errorf("model stream error: %w", err)
	}
	defer stream.Close()

	reply, err := stream.FullMessage()
	if err != nil {
		return "", history, fmt.Errorf("model response error: %w", err)
	}

	return reply.Content, pending.Append(models.Message{Role: models.RoleAssistant, Content: reply.Content}), nil
}

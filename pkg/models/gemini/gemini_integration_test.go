package gemini_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nstogner/selfimprove/pkg/models"
	"github.com/nstogner/selfimprove/pkg/models/gemini"
	"github.com/stretchr/testify/require"
)

func TestIntegration_Gemini(t *testing.T) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		t.Skip("Skipping Gemini integration test: GEMINI_API_KEY not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	model, err := gemini.New(ctx, apiKey)
	require.NoError(t, err)
	defer model.Close()

	modelsList, err := model.List(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, modelsList)

	stream, err := model.Stream(ctx, models.Request{
		Model:       "gemini-2.5-flash",
		System:      "You are a coding agent.",
		Messages:    []models.Message{{Role: models.RoleUser, Content: "Hello, just verify you work."}},
		Temperature: 0.7,
		MaxTokens:   256,
	})
	require.NoError(t, err)
	defer stream.Close()

	resp, err := stream.FullMessage()
	require.NoError(t, err)
	require.Equal(t, models.RoleAssistant, resp.Role)
	t.Logf("Response: %s", resp.Content)
}

package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	goopenai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nstogner/selfimprove/pkg/models"
)

// fakeAPI serves /v1/chat/completions as an event stream of the given
// chunks and records every request body.
type fakeAPI struct {
	mu     sync.Mutex
	bodies []map[string]any
	chunks []string
	status int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		http.NotFound(w, r)
		return
	}
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	f.bodies = append(f.bodies, body)
	f.mu.Unlock()

	if f.status != 0 {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(f.status)
		fmt.Fprint(w, `{"error":{"message":"rate limited","type":"rate_limit_error"}}`)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	for _, c := range f.chunks {
		fmt.Fprintf(w, "data: {\"id\":\"1\",\"object\":\"chat.completion.chunk\",\"model\":\"m\",\"choices\":[{\"index\":0,\"delta\":{\"content\":%q}}]}\n\n", c)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func (f *fakeAPI) lastBody(t *testing.T) map[string]any {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.bodies)
	return f.bodies[len(f.bodies)-1]
}

func newTestProvider(t *testing.T, api *fakeAPI) *Provider {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New("test-key", srv.URL+"/v1")
}

func fullMessage(t *testing.T, p *Provider, req models.Request) (models.Message, error) {
	t.Helper()
	stream, err := p.Stream(context.Background(), req)
	if err != nil {
		return models.Message{}, err
	}
	defer stream.Close()
	return stream.FullMessage()
}

func TestStream_ChatModel(t *testing.T) {
	api := &fakeAPI{chunks: []string{"Hel", "lo"}}
	p := newTestProvider(t, api)

	msg, err := fullMessage(t, p, models.Request{
		Model:       "gpt-4o",
		System:      "You are a coding agent.",
		Messages:    []models.Message{{Role: models.RoleUser, Content: "Fix the parser"}},
		Temperature: 0.5,
		MaxTokens:   4096,
	})
	require.NoError(t, err)
	assert.Equal(t, models.Message{Role: models.RoleAssistant, Content: "Hello"}, msg)

	body := api.lastBody(t)
	assert.Equal(t, "gpt-4o", body["model"])
	assert.Equal(t, true, body["stream"])
	assert.EqualValues(t, 4096, body["max_tokens"])
	assert.EqualValues(t, 0.5, body["temperature"])
	assert.NotContains(t, body, "max_completion_tokens")

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Equal(t, "You are a coding agent.", msgs[0].(map[string]any)["content"])
	assert.Equal(t, "user", msgs[1].(map[string]any)["role"])
}

func TestStream_ReasoningModel(t *testing.T) {
	api := &fakeAPI{chunks: []string{"done"}}
	p := newTestProvider(t, api)

	msg, err := fullMessage(t, p, models.Request{
		Model:       "o3-mini",
		Messages:    []models.Message{{Role: models.RoleUser, Content: "Fix the parser"}},
		Temperature: 0.7,
		MaxTokens:   4096,
	})
	require.NoError(t, err)
	assert.Equal(t, "done", msg.Content)

	body := api.lastBody(t)
	assert.EqualValues(t, 4096, body["max_completion_tokens"])
	assert.NotContains(t, body, "max_tokens")
	assert.NotContains(t, body, "temperature")
}

func TestStream_APIErrorIsProviderError(t *testing.T) {
	api := &fakeAPI{status: http.StatusTooManyRequests}
	p := newTestProvider(t, api)

	_, err := fullMessage(t, p, models.Request{
		Model:    "gpt-4o",
		Messages: []models.Message{{Role: models.RoleUser, Content: "hi"}},
	})
	require.Error(t, err)

	var perr *models.ProviderError
	require.True(t, errors.As(err, &perr), "got %T: %v", err, err)
	assert.Equal(t, "openai", perr.Provider)
	assert.Equal(t, "gpt-4o", perr.Model)

	var apiErr *goopenai.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.HTTPStatusCode)
}

func TestIsReasoningModel(t *testing.T) {
	for model, want := range map[string]bool{
		"o1":          true,
		"o3-mini":     true,
		"o4-mini":     true,
		"gpt-4o":      false,
		"gpt-4o-mini": false,
	} {
		assert.Equal(t, want, isReasoningModel(model), model)
	}
}

package models_test

import (
	"context"
	"errors"
	"testing"

	"github.com/nstogner/selfimprove/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedProvider struct{ name string }

func (p *namedProvider) Name() string { return p.name }

func (p *namedProvider) Stream(ctx context.Context, req models.Request) (models.ModelStream, error) {
	return nil, errors.New("not implemented")
}

func TestRouter_Resolve(t *testing.T) {
	gem := &namedProvider{name: "gemini"}
	oai := &namedProvider{name: "openai"}

	r := models.NewRouter()
	r.Handle(gem, "gemini")
	r.Handle(oai, "gpt-", "o1-", "o3-")

	p, err := r.Resolve("gemini-2.5-pro")
	require.NoError(t, err)
	assert.Equal(t, "gemini", p.Name())

	p, err = r.Resolve("o3-mini-2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = r.Resolve("claude-3-5-sonnet")
	assert.ErrorContains(t, err, "model claude-3-5-sonnet not supported")
}

func TestRouter_StreamUnknownModelIsProviderError(t *testing.T) {
	r := models.NewRouter()

	_, err := r.Stream(context.Background(), models.Request{Model: "mystery"})
	var perr *models.ProviderError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "mystery", perr.Model)
}

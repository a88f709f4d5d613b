package diagnosis

import (
	"context"
	"errors"
	"testing"

	"github.com/nstogner/selfimprove/pkg/conversation"
	"github.com/nstogner/selfimprove/pkg/models/modeltest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractProblemStatement(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"fenced", "Here you go:\n```json\n{\"problem_statement\": \"Off-by-one in parser\"}\n```\nthanks", "Off-by-one in parser"},
		{"bare object", `{"problem_statement": "Crash on empty input"}`, "Crash on empty input"},
		{"camel case", `{"problemStatement": "Leak in cache"}`, "Leak in cache"},
		{"snake preferred", `{"problem_statement": "a", "problemStatement": "b"}`, "a"},
		{"fence wins over text", "{\"problem_statement\": \"outer\"}\n```json\n{\"problem_statement\": \"inner\"}\n```", "inner"},
		{"invalid fence", "```json\n{nope}\n```", ""},
		{"prose", "I think the parser is wrong.", ""},
		{"missing key", `{"summary": "x"}`, ""},
		{"blank statement", `{"problem_statement": "  "}`, ""},
		{"not an object", `["x"]`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractProblemStatement(tt.reply))
		})
	}
}

func TestStage_Diagnose(t *testing.T) {
	p := modeltest.New("```json\n{\"problem_statement\": \"Fix off-by-one in parser\"}\n```")
	s := New(conversation.NewDriver(p), "diag-model", 0)

	res := s.Diagnose(context.Background(), "django__django-10999", "abc123")
	require.NotNil(t, res)
	assert.Equal(t, "Fix off-by-one in parser", res.ProblemStatement)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "diag-model", reqs[0].Model)
	assert.Equal(t, systemMessage, reqs[0].System)
	require.Len(t, reqs[0].Messages, 1)
	assert.Equal(t, "Diagnose the bug for task django__django-10999 at commit abc123.", reqs[0].Messages[0].Content)
}

func TestStage_DiagnoseFailures(t *testing.T) {
	t.Run("provider error", func(t *testing.T) {
		s := New(conversation.NewDriver(modeltest.Failing(errors.New("rate limited"))), "m", 0)
		assert.Nil(t, s.Diagnose(context.Background(), "task", "c"))
	})
	t.Run("no statement", func(t *testing.T) {
		s := New(conversation.NewDriver(modeltest.New("no idea")), "m", 0)
		assert.Nil(t, s.Diagnose(context.Background(), "task", "c"))
	})
	t.Run("cancelled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s := New(conversation.NewDriver(modeltest.New(`{"problem_statement": "x"}`)), "m", 0)
		assert.Nil(t, s.Diagnose(ctx, "task", "c"))
	})
}

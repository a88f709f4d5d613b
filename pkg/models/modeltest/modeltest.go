// Package modeltest provides a scripted models.Provider for tests.
package modeltest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nstogner/selfimprove/pkg/models"
)

// Scripted replies with a fixed sequence of responses and records every
// request it receives.
type Scripted struct {
	mu       sync.Mutex
	replies  []string
	err      error
	requests []models.Request
}

var _ models.Provider = (*Scripted)(nil)

// New returns a provider that answers with replies in order.
func New(replies ...string) *Scripted {
	return &Scripted{replies: replies}
}

// Failing returns a provider whose every call fails with err.
func Failing(err error) *Scripted {
	return &Scripted{err: err}
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Stream(ctx context.Context, req models.Request) (models.ModelStream, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, &models.ProviderError{Provider: s.Name(), Model: req.Model, Err: s.err}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.replies) == 0 {
		return nil, &models.ProviderError{Provider: s.Name(), Model: req.Model, Err: fmt.Errorf("script exhausted")}
	}
	reply := s.replies[0]
	s.replies = s.replies[1:]
	return &stream{msg: models.Message{Role: models.RoleAssistant, Content: reply}}, nil
}

// Requests returns a copy of the requests seen so far.
func (s *Scripted) Requests() []models.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Request(nil), s.requests...)
}

type stream struct {
	msg models.Message
}

func (s *stream) FullMessage() (models.Message, error) { return s.msg, nil }
func (s *stream) Close() error                         { return nil }

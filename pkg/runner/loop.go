package runner

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nstogner/selfimprove/pkg/conversation"
	"github.com/nstogner/selfimprove/pkg/models"
	"github.com/nstogner/selfimprove/pkg/tools"
)

// State is a position in the dispatch loop.
type State string

const (
	StateAwaitingReply State = "awaiting_reply"
	StateHasReply      State = "has_reply"
	StateToolRequested State = "tool_requested"
	StateToolExecuted  State = "tool_executed"
	StateDone          State = "done"
)

// StopReason explains why the loop ended.
type StopReason string

const (
	// ReasonNoDirective is the normal end: the model replied without a tool call.
	ReasonNoDirective  StopReason = "no_directive"
	ReasonTurnLimit    StopReason = "turn_limit"
	ReasonMalformed    StopReason = "malformed_directive"
	ReasonCancelled    StopReason = "cancelled"
	ReasonProviderFail StopReason = "provider_error"
)

const (
	DefaultMaxTurns       = 50
	DefaultMaxCorrections = 3
)

// Config controls a dispatch loop.
type Config struct {
	Model  string
	System string
	// Temperature < 0 selects conversation.DefaultTemperature.
	Temperature float32
	// MaxTurns caps the number of model calls. Zero disables the cap.
	MaxTurns int
	// MaxCorrections is how many consecutive malformed directives are
	// answered with a correction before the loop gives up.
	MaxCorrections int
	// Timeout bounds the whole loop. Zero disables the deadline.
	Timeout time.Duration
}

// Result is the outcome of a loop run. It is returned even when Run fails.
type Result struct {
	History   conversation.History
	State     State
	Reason    StopReason
	Turns     int
	ToolCalls int
}

// Loop alternates model turns and tool invocations until the model stops
// asking for tools.
type Loop struct {
	driver   *conversation.Driver
	registry *tools.Registry
	cfg      Config
	observer func(models.Message)
}

// Option configures a Loop.
type Option func(*Loop)

// WithObserver registers fn to receive every message appended to the history.
func WithObserver(fn func(models.Message)) Option {
	return func(l *Loop) { l.observer = fn }
}

// NewLoop creates a dispatch loop.
func NewLoop(driver *conversation.Driver, registry *tools.Registry, cfg Config, opts ...Option) *Loop {
	if cfg.MaxCorrections <= 0 {
		cfg.MaxCorrections = DefaultMaxCorrections
	}
	l := &Loop{driver: driver, registry: registry, cfg: cfg}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run sends instruction as the first turn and drives the conversation to
// completion.
func (l *Loop) Run(ctx context.Context, instruction string) (*Result, error) {
	if l.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.Timeout)
		defer cancel()
	}

	res := &Result{State: StateAwaitingReply}
	reply, err := l.send(ctx, res, instruction)
	if err != nil {
		return res, err
	}

	corrections := 0
	for {
		res.State = StateHasReply

		inv, perr := ParseDirective(reply)
		if perr == nil && inv == nil {
			slog.Info("No tool directive in reply, finishing", "turns", res.Turns, "toolCalls", res.ToolCalls)
			return l.finish(res, ReasonNoDirective), nil
		}
		if l.cfg.MaxTurns > 0 && res.Turns >= l.cfg.MaxTurns {
			slog.Warn("Turn limit reached", "maxTurns", l.cfg.MaxTurns)
			return l.finish(res, ReasonTurnLimit), nil
		}

		var next string
		if perr != nil {
			corrections++
			slog.Warn("Malformed tool directive", "error", perr, "attempt", corrections)
			if corrections > l.cfg.MaxCorrections {
				return l.finish(res, ReasonMalformed), nil
			}
			next = correctionMessage(perr)
		} else {
			corrections = 0
			res.State = StateToolRequested
			result := l.invoke(ctx, inv)
			res.ToolCalls++
			res.State = StateToolExecuted
			next = FormatToolResult(inv, result)
		}

		res.State = StateAwaitingReply
		reply, err = l.send(ctx, res, next)
		if err != nil {
			return res, err
		}
	}
}

func (l *Loop) send(ctx context.Context, res *Result, msg string) (string, error) {
	reply, h, err := l.driver.SendTurn(ctx, res.History, msg, l.cfg.System, l.cfg.Model, l.cfg.Temperature)
	if err != nil {
		res.Reason = ReasonProviderFail
		if ctx.Err() != nil {
			res.Reason = ReasonCancelled
		}
		return "", fmt.Errorf("turn %d: %w", res.Turns+1, err)
	}

	res.Turns++
	if l.observer != nil {
		msgs := h.Messages()
		for _, m := range msgs[res.History.Len():] {
			l.observer(m)
		}
	}
	res.History = h
	return reply, nil
}

func (l *Loop) invoke(ctx context.Context, inv *Invocation) tools.Result {
	tool, ok := l.registry.Get(inv.ToolName)
	if !ok {
		slog.Warn("Unknown tool called", "tool", inv.ToolName)
		return tools.Result{Text: fmt.Sprintf("Error: tool %s not found", inv.ToolName)}
	}
	slog.Info("Invoking tool", "tool", inv.ToolName)
	return tool.Invoke(ctx, inv.Input)
}

func (l *Loop) finish(res *Result, reason StopReason) *Result {
	res.State = StateDone
	res.Reason = reason
	return res
}

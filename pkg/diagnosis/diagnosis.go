// Package diagnosis turns a task identifier into a problem statement by
// asking a model once.
package diagnosis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/nstogner/selfimprove/pkg/conversation"
)

const systemMessage = "You are a helpful assistant that summarizes issues."

var fencedJSON = regexp.MustCompile("(?s)```json\\n(.*?)\\n```")

// Result is a successful diagnosis.
type Result struct {
	ProblemStatement string
}

// Stage performs diagnosis with a model.
type Stage struct {
	driver  *conversation.Driver
	model   string
	timeout time.Duration
}

// New creates a stage. A zero timeout means no deadline beyond ctx.
func New(driver *conversation.Driver, model string, timeout time.Duration) *Stage {
	return &Stage{driver: driver, model: model, timeout: timeout}
}

// Prompt returns the request sent for a task at a commit.
func Prompt(task, commit string) string {
	return fmt.Sprintf("Diagnose the bug for task %s at commit %s.", task, commit)
}

// Diagnose returns nil when the model fails or its reply carries no
// problem statement. Failures are logged, never returned.
func (s *Stage) Diagnose(ctx context.Context, task, commit string) *Result {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	reply, _, err := s.driver.SendTurn(ctx, conversation.NewHistory(), Prompt(task, commit), systemMessage, s.model, conversation.UseDefaultTemperature)
	if err != nil {
		slog.Error("Failed to diagnose problem", "task", task, "commit", commit, "error", err)
		return nil
	}

	statement := ExtractProblemStatement(reply)
	if statement == "" {
		slog.Warn("Diagnosis reply has no problem statement", "task", task, "replyLen", len(reply))
		return nil
	}
	slog.Info("Problem diagnosed", "task", task, "statementLen", len(statement))
	return &Result{ProblemStatement: statement}
}

// ExtractProblemStatement reads the problem statement from a reply. The
// first ```json fence is used when present, otherwise the whole reply
// must be a JSON object. Both problem_statement and problemStatement keys
// are accepted.
func ExtractProblemStatement(reply string) string {
	payload := reply
	if m := fencedJSON.FindStringSubmatch(reply); m != nil {
		payload = m[1]
	}

	var fields struct {
		Snake string `json:"problem_statement"`
		Camel string `json:"problemStatement"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &fields); err != nil {
		return ""
	}
	if s := strings.TrimSpace(fields.Snake); s != "" {
		return s
	}
	return strings.TrimSpace(fields.Camel)
}

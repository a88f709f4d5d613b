package pipeline

import (
	"time"

	"github.com/google/uuid"
)

const runIDTimeFormat = "20060102T150405Z"

// NewRunID returns an identifier that sorts by start time and does not
// collide between concurrent runs.
func NewRunID(now time.Time) string {
	return now.UTC().Format(runIDTimeFormat) + "-" + uuid.NewString()[:8]
}

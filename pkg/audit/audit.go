package audit

import (
	"fmt"
	"time"

	"github.com/laconorg/deployer/pkg/version"
)

// Outcome is how a deployment ended. There is exactly one audit entry
// per deployment that got as far as touching anything.
type Outcome string

// These are all the outcomes.
const (
	// The requested version is running and healthy.
	OutcomeSuccess Outcome = "success"
	// The requested version failed; the previous version is back and
	// healthy.
	OutcomeRolledBack Outcome = "failed-rolled-back"
	// The requested version failed, and so did going back to the
	// previous version. Someone needs to look.
	OutcomeRollbackFailed Outcome = "failed-rollback-failed"
	// The requested version failed, and there was nothing to go back
	// to.
	OutcomeNoRollback Outcome = "failed-no-rollback"
)

const (
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// ExitCode is what a process reporting this outcome should exit with.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess:
		return 0
	case OutcomeRolledBack, OutcomeNoRollback:
		return 1
	case OutcomeRollbackFailed:
		return 2
	}
	return 2
}

// LogLevel says how much attention the outcome deserves.
func (o Outcome) LogLevel() string {
	switch o {
	case OutcomeSuccess:
		return LogLevelInfo
	case OutcomeRolledBack, OutcomeNoRollback:
		return LogLevelWarn
	}
	return LogLevelError
}

// Entry records one deployment.
type Entry struct {
	Time     time.Time `json:"time"`
	Hostname string    `json:"hostname"`
	// Version is the short identifier of the version requested.
	Version string  `json:"version"`
	Outcome Outcome `json:"outcome"`
	// Previous is the short identifier of the version running before,
	// if there was one.
	Previous string `json:"previous,omitempty"`

	// TriggeredBy is whatever the trigger said about itself. It is
	// not part of the audit line.
	TriggeredBy string `json:"triggeredBy,omitempty"`
}

// String renders the entry as an audit line (without the newline).
func (e Entry) String() string {
	return fmt.Sprintf("%s [%s] deployed %s (%s) previous: %s",
		e.Time.UTC().Format(time.RFC3339),
		e.Hostname,
		version.Tag(e.Version),
		e.Outcome,
		version.Display(e.Previous),
	)
}

// Writer records entries somewhere durable.
type Writer interface {
	Append(Entry) error
}

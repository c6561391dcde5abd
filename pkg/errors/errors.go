package errors

import (
	"errors"
)

// Representation of errors surfaced by the deployer. These are divided
// into a small number of categories, essentially distinguished by how
// far a deployment got before failing; i.e., is this error:
//  - a problem with what we were given, so nothing was touched?
//  - a problem moving the service to a version, so worth rolling back?
//  - a problem with the rollback itself, so a human has to look?
type Error struct {
	Type Type
	// a message that can be printed out for the operator
	Help string
	// the underlying error that can be e.g., logged for developers to look at
	Err error
}

func (e *Error) Error() string {
	return e.Err.Error()
}

// Cause lets github.com/pkg/errors.Cause see through to the underlying
// error.
func (e *Error) Cause() error {
	return e.Err
}

type Type string

const (
	// The inputs were missing or invalid; no state was changed
	Config Type = "config"
	// Pulling or starting the service failed, or timed out
	Transition Type = "transition"
	// The service started but never reported ready
	Health Type = "health"
	// Moving back to the previous version failed as well
	Rollback Type = "rollback"
)

func IsConfig(err error) bool {
	return isType(err, Config)
}

func IsRollback(err error) bool {
	return isType(err, Rollback)
}

func isType(err error, t Type) bool {
	var e *Error
	if errors.As(err, &e) && e.Type == t {
		return true
	}
	return false
}

// ConfigError marks err as a configuration problem; the help text is
// shown to whoever invoked the deployment.
func ConfigError(err error, help string) *Error {
	return &Error{
		Type: Config,
		Err:  err,
		Help: help,
	}
}

func CoverAllError(err error) *Error {
	return &Error{
		Type: Config,
		Err:  err,
		Help: `Error: ` + err.Error() + `

We don't have a specific help message for the error above.

Check the arguments given to deployctl and the files they point at,
then try again. Nothing has been changed on the host.
`,
	}
}

package main

import (
	"errors"
	"fmt"
)

type usageError struct {
	error
}

func newUsageError(msg string) usageError {
	return usageError{error: errors.New(msg)}
}

func wantedArgs(names ...string) func(int) error {
	return func(n int) error {
		if n != len(names) {
			return newUsageError(fmt.Sprintf("expected %d argument(s) (%v), got %d", len(names), names, n))
		}
		return nil
	}
}

var errorWantedNoArgs = newUsageError("expected no (non-flag) arguments")

// exitError makes the process exit with the code given, having
// already said why.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

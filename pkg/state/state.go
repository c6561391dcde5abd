package state

import (
	"context"
)

// DefaultKey is the variable in the version record that holds the
// current image tag. It is what the compose file interpolates.
const DefaultKey = "IMAGE_TAG"

// State is where the currently-active version of a target is
// recorded.
type State interface {
	// Current fetches the recorded version as it was stored,
	// returning an empty string if none has been recorded yet.
	Current(ctx context.Context) (string, error)
	// Record makes the short identifier given the current version.
	Record(ctx context.Context, short string) error
	// String returns a string representation of where the state is
	// recorded (e.g., for referring to it in logs)
	String() string
}

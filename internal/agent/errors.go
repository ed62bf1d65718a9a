package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthRequired means the web app showed its login UI. This is fatal
	// and never retried automatically: someone has to log the profile in
	// interactively before the agent can run again.
	ErrAuthRequired = errors.New("authentication required: log in to the profile interactively and retry")

	// ErrSessionClosed means the page or browser disappeared mid-operation.
	// Discovered during a poll it is a normal termination signal, not a bug.
	ErrSessionClosed = errors.New("browser session closed")

	// ErrNoResult means polling expired without the page ever producing a
	// new result element.
	ErrNoResult = errors.New("no results produced before the poll budget expired")

	// ErrExtractFailed means a result appeared but neither the download
	// affordance nor the in-page fetch could read its bytes.
	ErrExtractFailed = errors.New("result extraction failed")
)

// GenerationError carries the error message the remote UI displayed when a
// submission kept failing.
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation failed: %s", e.Message)
}

// SelectorError means the automation target's DOM has drifted from what the
// agent expects. Fatal: retrying will not help until the selectors are
// updated.
type SelectorError struct {
	Purpose string
	Err     error
}

func (e *SelectorError) Error() string {
	return fmt.Sprintf("selector drift while locating %s: %v", e.Purpose, e.Err)
}

func (e *SelectorError) Unwrap() error {
	return e.Err
}

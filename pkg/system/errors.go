package system

import "fmt"

// ExternalCommandError reports a command that failed or timed out after
// every retry.
type ExternalCommandError struct {
	Command  string
	Err      error
	TimedOut bool
}

func (e *ExternalCommandError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s timed out: %v", e.Command, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Command, e.Err)
}

func (e *ExternalCommandError) Unwrap() error {
	return e.Err
}

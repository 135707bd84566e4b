package model

import (
	"fmt"
	"strings"
)

// EmptyChannelError reports that a required input glob matched nothing.
// It is fatal and aborts the run before any task is dispatched.
type EmptyChannelError struct {
	Channel string
	Pattern string
}

func (e *EmptyChannelError) Error() string {
	return fmt.Sprintf("channel %s: required glob %q matched no files", e.Channel, e.Pattern)
}

// TaskExecutionError reports that an external command exited non-zero
// or that a required output glob went unmatched. It fails the affected
// sample's branch, not the scheduler.
type TaskExecutionError struct {
	Stage      string
	SampleID   string
	ExitCode   int
	Stderr     string // captured tail of stderr
	Reason     string // non-empty for unmatched-output failures
}

func (e *TaskExecutionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage %s, sample %s: ", e.Stage, e.SampleID)
	if e.Reason != "" {
		b.WriteString(e.Reason)
	} else {
		fmt.Fprintf(&b, "command exited with code %d", e.ExitCode)
	}
	if e.Stderr != "" {
		fmt.Fprintf(&b, "\nstderr: %s", e.Stderr)
	}
	return b.String()
}

// PublishError reports a failure while copying or linking task outputs
// into the shared output tree. It never retroactively fails the task;
// it is surfaced as a separate event.
type PublishError struct {
	Stage    string
	SampleID string
	Path     string
	Err      error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish %s (stage %s, sample %s): %v", e.Path, e.Stage, e.SampleID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

// ConfigurationError reports a malformed pipeline definition: bad
// resource directive, unresolvable channel reference, invalid glob.
// It is fatal at graph-build time, before execution starts.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Message
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Message)
}

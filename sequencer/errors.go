package sequencer

import "fmt"

// InvalidStateTransitionError is returned for an operation the current state
// does not allow
type InvalidStateTransitionError struct {
	From State
	Op   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s: not allowed while %s", e.Op, e.From)
}

// ConfigurationError is returned by Play when a collaborator is missing
type ConfigurationError struct {
	Missing string
}

func (e *ConfigurationError) Error() string {
	return "performance not configured: missing " + e.Missing
}

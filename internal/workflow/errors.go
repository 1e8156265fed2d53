package workflow

import (
	"errors"
	"fmt"

	"ytreport/internal/services"
)

// ErrRunCancelled is the cancellation cause used when a caller cancels a run.
// Any other cancellation of an executing run is treated as process shutdown.
var ErrRunCancelled = errors.New("run cancelled")

// ErrRunActive is returned when a run cannot be resumed because a worker owns it.
var ErrRunActive = errors.New("run is active")

// RetryableError marks a capability failure as transient regardless of its kind.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// Retryable wraps err as a RetryableError. A nil err stays nil.
func Retryable(err error) error {
	if err == nil {
		return nil
	}
	return &RetryableError{Err: err}
}

// FatalError marks a capability failure as permanent regardless of its kind.
type FatalError struct {
	Err error
}

func (e *FatalError) Error() string { return e.Err.Error() }

func (e *FatalError) Unwrap() error { return e.Err }

// Fatal wraps err as a FatalError. A nil err stays nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

// ContractError reports a stage that read or wrote context keys outside its
// declaration.
type ContractError struct {
	Stage  string
	Key    string
	Reason string
}

func (e *ContractError) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("stage %s: %s", e.Stage, e.Reason)
	}
	return fmt.Sprintf("stage %s: key %q: %s", e.Stage, e.Key, e.Reason)
}

// ErrorKind classifies contract violations for persistence.
func (e *ContractError) ErrorKind() services.Kind { return services.KindContract }

// GraphErrorKind names the structural problem found in a graph.
type GraphErrorKind string

const (
	GraphInvalid         GraphErrorKind = "invalid"
	GraphDuplicateStage  GraphErrorKind = "duplicate_stage"
	GraphUnknownTarget   GraphErrorKind = "unknown_target"
	GraphCycle           GraphErrorKind = "cycle"
	GraphUnreachable     GraphErrorKind = "unreachable_stage"
	GraphUnwrittenInput  GraphErrorKind = "unwritten_input"
	GraphDuplicateWriter GraphErrorKind = "duplicate_writer"
	GraphNoMatchingEdge  GraphErrorKind = "no_matching_edge"
	GraphUnknown         GraphErrorKind = "unknown_graph"
)

// GraphConfigurationError reports an invalid graph. NewGraph returns it for
// structural problems; the executor returns it when no edge guard matches.
type GraphConfigurationError struct {
	Graph string
	Kind  GraphErrorKind
	Stage string
	Msg   string
}

func (e *GraphConfigurationError) Error() string {
	prefix := "graph"
	if e.Graph != "" {
		prefix = "graph " + e.Graph
	}
	if e.Stage != "" {
		return fmt.Sprintf("%s: %s: stage %s: %s", prefix, e.Kind, e.Stage, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %s", prefix, e.Kind, e.Msg)
}

// ErrorKind classifies graph errors for persistence.
func (e *GraphConfigurationError) ErrorKind() services.Kind {
	return services.KindGraphConfiguration
}

func graphError(graph string, kind GraphErrorKind, stage, format string, args ...any) *GraphConfigurationError {
	return &GraphConfigurationError{Graph: graph, Kind: kind, Stage: stage, Msg: fmt.Sprintf(format, args...)}
}

// classify maps a capability error onto the retry taxonomy. Explicit
// RetryableError and FatalError wrappers win over the kind-based policy.
func classify(err error, policy RetryPolicy) (services.Kind, bool) {
	kind := services.KindOf(err)
	var fatal *FatalError
	if errors.As(err, &fatal) {
		return kind, false
	}
	var contract *ContractError
	if errors.As(err, &contract) {
		return services.KindContract, false
	}
	var retryable *RetryableError
	if errors.As(err, &retryable) {
		return kind, true
	}
	return kind, policy.retries(kind)
}

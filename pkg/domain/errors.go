package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrParse is matched by every *ParseError.
	ErrParse = errors.New("parse error")

	// ErrGraph is matched by every *GraphError and *ValidationError.
	ErrGraph = errors.New("invalid workflow graph")

	// ErrExecutor is matched by every *ExecutorError.
	ErrExecutor = errors.New("executor error")

	// ErrAction is matched by every *ActionError.
	ErrAction = errors.New("action error")

	// ErrRunNotFound is returned when a run ID cannot be found in the store.
	ErrRunNotFound = errors.New("run not found")

	// ErrWorkflowNotFound is returned when a loader has no workflow with the requested name.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrPromptNotFound is returned when a prompt library has no prompt with the requested name.
	ErrPromptNotFound = errors.New("prompt not found")

	// ErrRunActive is returned when a run is already being driven by this process.
	ErrRunActive = errors.New("run is already active")

	// ErrRunFinished is returned when an operation requires a non-terminal run.
	ErrRunFinished = errors.New("run already finished")

	// ErrNonIdempotentResume is returned when resuming would re-execute an
	// interrupted action that is not safe to retry.
	ErrNonIdempotentResume = errors.New("cannot resume: interrupted action is not idempotent")

	// ErrInvalidParameters is matched by parameter validation failures.
	ErrInvalidParameters = errors.New("invalid workflow parameters")
)

// ParseError reports malformed diagram source.
type ParseError struct {
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("parse error at line %d: %s", e.Line, e.Msg)
	}
	return "parse error: " + e.Msg
}

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// GraphErrorKind classifies structural problems found by the analyzer.
type GraphErrorKind string

const (
	GraphMissingStart           GraphErrorKind = "MissingStart"
	GraphMultipleStart          GraphErrorKind = "MultipleStart"
	GraphNoReachableEnd         GraphErrorKind = "NoReachableEnd"
	GraphDanglingTransition     GraphErrorKind = "DanglingTransition"
	GraphCircularDependency     GraphErrorKind = "CircularDependency"
	GraphTerminalHasTransitions GraphErrorKind = "TerminalHasTransitions"
	GraphInvalidAction          GraphErrorKind = "InvalidAction"
)

// GraphError reports a structural invalidity of a workflow definition.
type GraphError struct {
	Kind   GraphErrorKind
	States []StateID
	Msg    string
}

func (e *GraphError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *GraphError) Is(target error) bool { return target == ErrGraph }

// ValidationError aggregates the structural errors of one workflow.
type ValidationError struct {
	Workflow WorkflowName
	Errors   []*GraphError
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("workflow %q: %s", e.Workflow, e.Errors[0].Error())
	}
	msgs := make([]string, len(e.Errors))
	for i, ge := range e.Errors {
		msgs[i] = ge.Error()
	}
	return fmt.Sprintf("workflow %q has %d errors: %s", e.Workflow, len(e.Errors), strings.Join(msgs, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrGraph }

// Unwrap exposes the individual graph errors to errors.As.
func (e *ValidationError) Unwrap() []error {
	out := make([]error, len(e.Errors))
	for i, ge := range e.Errors {
		out[i] = ge
	}
	return out
}

// ExecutorErrorKind classifies run-fatal executor failures.
type ExecutorErrorKind string

const (
	ExecNoMatchingTransition ExecutorErrorKind = "NoMatchingTransition"
	ExecStateNotFound        ExecutorErrorKind = "StateNotFound"
	ExecInvalidTransition    ExecutorErrorKind = "InvalidTransition"
	ExecTimeout              ExecutorErrorKind = "Timeout"
)

// ExecutorError is fatal to a single run. It sets the run status to failed.
type ExecutorError struct {
	Kind  ExecutorErrorKind
	State StateID
	Msg   string
}

func (e *ExecutorError) Error() string {
	if e.State != "" {
		return fmt.Sprintf("%s at state %q: %s", e.Kind, e.State, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ExecutorError) Is(target error) bool { return target == ErrExecutor }

// ActionErrorKind classifies action failures.
type ActionErrorKind string

const (
	ActionErrTimeout   ActionErrorKind = "Timeout"
	ActionErrRateLimit ActionErrorKind = "RateLimit"
	ActionErrExecution ActionErrorKind = "Execution"
	ActionErrRecursion ActionErrorKind = "Recursion"
	ActionErrNotFound  ActionErrorKind = "NotFound"
	ActionErrTemplate  ActionErrorKind = "Template"
)

// ActionError is surfaced to the executor as a failed ActionResult and
// participates in on_failure matching.
type ActionError struct {
	Kind     ActionErrorKind `json:"kind"`
	Msg      string          `json:"message"`
	WaitTime time.Duration   `json:"wait_time,omitempty"` // Set for RateLimit
	Cause    error           `json:"-"`
}

func (e *ActionError) Error() string {
	if e.Kind == ActionErrRateLimit && e.WaitTime > 0 {
		return fmt.Sprintf("%s: %s (retry after %s)", e.Kind, e.Msg, e.WaitTime)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *ActionError) Is(target error) bool { return target == ErrAction }

func (e *ActionError) Unwrap() error { return e.Cause }

// Retryable reports whether a retry policy may act on this error.
func (e *ActionError) Retryable() bool {
	return e.Kind == ActionErrTimeout || e.Kind == ActionErrRateLimit
}

// NewActionError builds an ActionError of the given kind.
func NewActionError(kind ActionErrorKind, cause error, format string, args ...any) *ActionError {
	return &ActionError{Kind: kind, Msg: fmt.Sprintf(format, args...), Cause: cause}
}

// AsActionError converts any error into an *ActionError, keeping typed ones intact.
func AsActionError(err error) *ActionError {
	if err == nil {
		return nil
	}
	var ae *ActionError
	if errors.As(err, &ae) {
		return ae
	}
	return &ActionError{Kind: ActionErrExecution, Msg: err.Error(), Cause: err}
}

package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is the run-level outcome surfaced to callers of the engine.
type Code string

const (
	BadRequest                 Code = "BadRequest"
	PlanningFailed             Code = "PlanningFailed"
	NoSourcesFound             Code = "NoSourcesFound"
	InsufficientSources        Code = "InsufficientSources"
	SynthesisContractViolation Code = "SynthesisContractViolation"
	SynthesisFailed            Code = "SynthesisFailed"
	Timeout                    Code = "Timeout"

	// Canceled means the caller abandoned the run before its deadline.
	Canceled Code = "Canceled"
)

// Audience tells a caller what to do about a failed run.
type Audience string

const (
	FixInput      Audience = "fix_input"
	TryLater      Audience = "try_later"
	InternalFault Audience = "internal_fault"
)

// RunError terminates a brief run.
type RunError struct {
	Code  Code
	Stage string
	Err   error
}

func (e *RunError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s in %s", e.Code, e.Stage)
	}
	return fmt.Sprintf("%s in %s: %v", e.Code, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// NewRunError builds a RunError for the given stage.
func NewRunError(code Code, stage string, err error) *RunError {
	return &RunError{Code: code, Stage: stage, Err: err}
}

// Audience maps the code to the kind of remedy the caller should attempt.
func (e *RunError) Audience() Audience {
	switch e.Code {
	case BadRequest:
		return FixInput
	case SynthesisContractViolation:
		return InternalFault
	default:
		return TryLater
	}
}

// HTTPStatus maps the code to a response status for the HTTP transport.
func (e *RunError) HTTPStatus() int {
	switch e.Code {
	case BadRequest:
		return http.StatusBadRequest
	case Timeout:
		return http.StatusGatewayTimeout
	case Canceled:
		return http.StatusRequestTimeout
	case PlanningFailed, SynthesisFailed:
		return http.StatusBadGateway
	case NoSourcesFound, InsufficientSources:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf extracts the run code from err, or "" when err is not a RunError.
func CodeOf(err error) Code {
	var re *RunError
	if errors.As(err, &re) {
		return re.Code
	}
	return ""
}

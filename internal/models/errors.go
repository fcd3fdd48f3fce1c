package models

import (
	"errors"
	"fmt"
)

type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryExternal   ErrorCategory = "external"
	CategoryInternal   ErrorCategory = "internal"
	CategoryTimeout    ErrorCategory = "timeout"
	CategoryNotFound   ErrorCategory = "not_found"
)

// Error codes for the pipeline fault taxonomy. Retrieval being unavailable is
// non-fatal (treated as an empty result); a scoring fault always escalates; a
// persistence fault must never let a transition commit.
const (
	CodeRetrievalUnavailable = "RETRIEVAL_UNAVAILABLE"
	CodeGenerationTimeout    = "GENERATION_TIMEOUT"
	CodeGenerationFault      = "GENERATION_FAULT"
	CodeScoringFault         = "SCORING_FAULT"
	CodePersistenceFault     = "PERSISTENCE_FAULT"
	CodeDeliveryFault        = "DELIVERY_FAULT"
	CodeCaseNotFound         = "CASE_NOT_FOUND"
	CodeCaseCancelled        = "CASE_CANCELLED"
)

type PipelineError struct {
	Code     string                 `json:"code"`
	Message  string                 `json:"message"`
	Category ErrorCategory          `json:"category"`
	Cause    error                  `json:"-"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// WithCause returns a copy carrying the underlying error, so shared error
// values are never mutated.
func (e *PipelineError) WithCause(cause error) *PipelineError {
	clone := e.clone()
	clone.Cause = cause
	return clone
}

func (e *PipelineError) WithMetadata(key string, value interface{}) *PipelineError {
	clone := e.clone()
	if clone.Metadata == nil {
		clone.Metadata = make(map[string]interface{})
	}
	clone.Metadata[key] = value
	return clone
}

func (e *PipelineError) clone() *PipelineError {
	metadata := make(map[string]interface{}, len(e.Metadata))
	for k, v := range e.Metadata {
		metadata[k] = v
	}
	if len(metadata) == 0 {
		metadata = nil
	}
	return &PipelineError{
		Code:     e.Code,
		Message:  e.Message,
		Category: e.Category,
		Cause:    e.Cause,
		Metadata: metadata,
	}
}

func NewValidationError(code, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message, Category: CategoryValidation}
}

func NewExternalError(code, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message, Category: CategoryExternal}
}

func NewInternalError(code, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message, Category: CategoryInternal}
}

func NewTimeoutError(code, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message, Category: CategoryTimeout}
}

func NewNotFoundError(code, message string) *PipelineError {
	return &PipelineError{Code: code, Message: message, Category: CategoryNotFound}
}

func WrapExternalError(service string, err error) *PipelineError {
	return NewExternalError(service+"_FAILED", "external service call failed").WithCause(err)
}

var (
	ErrCaseNotFound  = NewNotFoundError(CodeCaseNotFound, "case not found")
	ErrCaseCancelled = NewValidationError(CodeCaseCancelled, "case has been cancelled")
)

func NewPersistenceFault(cause error) *PipelineError {
	return NewExternalError(CodePersistenceFault, "case store operation failed").WithCause(cause)
}

func NewScoringFault(cause error) *PipelineError {
	return NewInternalError(CodeScoringFault, "trust score could not be computed").WithCause(cause)
}

func NewGenerationTimeout(cause error) *PipelineError {
	return NewTimeoutError(CodeGenerationTimeout, "generation model call timed out").WithCause(cause)
}

func NewGenerationFault(cause error) *PipelineError {
	return NewExternalError(CodeGenerationFault, "generation model call failed").WithCause(cause)
}

func NewRetrievalUnavailable(cause error) *PipelineError {
	return NewExternalError(CodeRetrievalUnavailable, "document index unavailable").WithCause(cause)
}

func NewDeliveryFault(cause error) *PipelineError {
	return NewExternalError(CodeDeliveryFault, "delivery channel call failed").WithCause(cause)
}

// HasCode reports whether err is a PipelineError carrying the given code.
func HasCode(err error, code string) bool {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr.Code == code
	}
	return false
}

package tools

import (
	stdErrors "errors"
	"fmt"

	apperrors "QueryChain/internal/errors"
)

const (
	// CodeUnknownTool marks a plan step naming a tool that is not registered.
	CodeUnknownTool apperrors.Code = "UNKNOWN_TOOL"
	// CodeUnknownOperation marks a step naming an operation its tool lacks.
	CodeUnknownOperation apperrors.Code = "UNKNOWN_OPERATION"
	// CodeToolExecutionFailed wraps a domain failure raised by a tool.
	CodeToolExecutionFailed apperrors.Code = "TOOL_EXECUTION_FAILED"
)

func init() {
	apperrors.Register(CodeUnknownTool, apperrors.Attributes{Message: "unknown tool", Severity: apperrors.SeverityCritical, Alert: true})
	apperrors.Register(CodeUnknownOperation, apperrors.Attributes{Message: "unknown operation", Severity: apperrors.SeverityCritical, Alert: true})
	apperrors.Register(CodeToolExecutionFailed, apperrors.Attributes{Message: "tool execution failed", Severity: apperrors.SeverityWarning})
}

// ErrorKind classifies a domain failure.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindUnsupported    ErrorKind = "unsupported"
	KindInvalidInput   ErrorKind = "invalid_input"
	KindDivisionByZero ErrorKind = "division_by_zero"
	KindLookupMiss     ErrorKind = "lookup_miss"
	KindUnavailable    ErrorKind = "unavailable"
)

// DomainError is the error a tool operation returns for an expected failure.
type DomainError struct {
	Kind    ErrorKind
	Message string
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Fail builds a DomainError with a formatted message.
func Fail(kind ErrorKind, format string, args ...any) *DomainError {
	return &DomainError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// KindOf recovers the failure kind from anywhere in err's chain.
func KindOf(err error) (ErrorKind, bool) {
	if err == nil {
		return "", false
	}
	var domain *DomainError
	if stdErrors.As(err, &domain) {
		return domain.Kind, true
	}
	if kind, ok := apperrors.MetadataOf(err, "kind"); ok {
		return ErrorKind(kind), true
	}
	return "", false
}

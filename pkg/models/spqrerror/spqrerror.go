package spqrerror

import (
	"errors"
	"fmt"
)

const (
	RR_UNEXPECTED        = "RRUNX"
	RR_CONFIGURATION     = "RRCFG"
	RR_INVALID_OPERATION = "RRINV"
	RR_EXECUTION         = "RREXE"
)

var existingErrorCodeMap = map[string]string{
	RR_CONFIGURATION:     "ConfigurationError",
	RR_INVALID_OPERATION: "InvalidOperationError",
	RR_EXECUTION:         "ExecutionError",
}

// Sentinels for errors.Is matching by code.
var (
	ErrConfiguration    = &SpqrError{ErrorCode: RR_CONFIGURATION}
	ErrInvalidOperation = &SpqrError{ErrorCode: RR_INVALID_OPERATION}
	ErrExecution        = &SpqrError{ErrorCode: RR_EXECUTION}
)

func GetMessageByCode(errorCode string) string {
	rep, ok := existingErrorCodeMap[errorCode]
	if ok {
		return rep
	}
	return "Unexpected error"
}

var _ error = &SpqrError{}

type SpqrError struct {
	Err error

	ErrorCode string
}

// New creates a coded error with a plain message.
func New(errorCode string, errorMsg string) *SpqrError {
	return &SpqrError{
		Err:       errors.New(errorMsg),
		ErrorCode: errorCode,
	}
}

// Newf creates a coded error with a formatted message. %w verbs are
// honoured, so the cause stays reachable through errors.Unwrap.
func Newf(errorCode string, format string, a ...any) *SpqrError {
	return &SpqrError{
		Err:       fmt.Errorf(format, a...),
		ErrorCode: errorCode,
	}
}

func (er *SpqrError) Error() string {
	if er.Err == nil {
		return GetMessageByCode(er.ErrorCode)
	}
	return fmt.Sprintf("%s: %s", GetMessageByCode(er.ErrorCode), er.Err)
}

func (er *SpqrError) Unwrap() error {
	return er.Err
}

// Is reports whether target is a SpqrError carrying the same code.
func (er *SpqrError) Is(target error) bool {
	t, ok := target.(*SpqrError)
	if !ok {
		return false
	}
	return t.ErrorCode == er.ErrorCode
}

// Message returns the bare description without the error class prefix.
func (er *SpqrError) Message() string {
	if er.Err == nil {
		return ""
	}
	return er.Err.Error()
}

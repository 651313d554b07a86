// Copyright (c) 2024 Telar Social
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package interfaces

import (
	"fmt"
	"time"
)

// Error codes
const (
	CodeConfiguration        = "CONFIGURATION"
	CodeState                = "STATE"
	CodeValidation           = "VALIDATION"
	CodeNotImplemented       = "NOT_IMPLEMENTED"
	CodeUnsupportedOperation = "UNSUPPORTED_OPERATION"
)

// Common errors. DBError.Is matches on Code, so errors.Is(err, ErrState)
// holds for every state error regardless of its message.
var (
	ErrConfiguration        = NewDBError(CodeConfiguration, "invalid database configuration", nil)
	ErrState                = NewDBError(CodeState, "database is not in the required state", nil)
	ErrValidation           = NewDBError(CodeValidation, "validation failed", nil)
	ErrNotImplemented       = NewDBError(CodeNotImplemented, "API not implemented", nil)
	ErrUnsupportedOperation = NewDBError(CodeUnsupportedOperation, "unsupported operation", nil)
)

// DBError represents a database layer error. Errors raised by the
// underlying engines are never wrapped in a DBError.
type DBError struct {
	Code    string
	Message string
	Cause   error
	Time    time.Time
}

func (e *DBError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *DBError) Unwrap() error {
	return e.Cause
}

// Is reports whether target is a DBError carrying the same code
func (e *DBError) Is(target error) bool {
	t, ok := target.(*DBError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewDBError creates a new DBError
func NewDBError(code, message string, cause error) *DBError {
	return &DBError{
		Code:    code,
		Message: message,
		Cause:   cause,
		Time:    time.Now(),
	}
}

// ConfigurationError reports a missing or invalid driver configuration
func ConfigurationError(format string, a ...interface{}) *DBError {
	return NewDBError(CodeConfiguration, fmt.Sprintf(format, a...), nil)
}

// StateError reports an operation attempted outside its lifecycle state
func StateError(format string, a ...interface{}) *DBError {
	return NewDBError(CodeState, fmt.Sprintf(format, a...), nil)
}

// ValidationError reports malformed expressions, criteria or mismatched models
func ValidationError(cause error, format string, a ...interface{}) *DBError {
	return NewDBError(CodeValidation, fmt.Sprintf(format, a...), cause)
}

// NotImplementedError reports a driver hook that is not overridden
func NotImplementedError(hook string) *DBError {
	return NewDBError(CodeNotImplemented, fmt.Sprintf("%s is not implemented by the driver", hook), nil)
}

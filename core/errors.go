package core

import "errors"

// ErrCircuitOpen is returned while the circuit breaker rejects calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ErrTooManyProbes is returned when the half-open probe budget is used up.
var ErrTooManyProbes = errors.New("too many half-open probes")

// DataValidationError reports client data that cannot be turned into a valid Pet.
type DataValidationError struct {
	Message string
	Err     error
}

// NewDataValidationError creates a DataValidationError with an optional cause.
func NewDataValidationError(message string, err error) *DataValidationError {
	return &DataValidationError{Message: message, Err: err}
}

func (e *DataValidationError) Error() string {
	return e.Message
}

func (e *DataValidationError) Unwrap() error {
	return e.Err
}

// DatabaseConnectionError reports a document store that cannot be reached or that keeps
// failing after retries.
type DatabaseConnectionError struct {
	Message string
	Err     error
}

// NewDatabaseConnectionError creates a DatabaseConnectionError with an optional cause.
func NewDatabaseConnectionError(message string, err error) *DatabaseConnectionError {
	return &DatabaseConnectionError{Message: message, Err: err}
}

func (e *DatabaseConnectionError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DatabaseConnectionError) Unwrap() error {
	return e.Err
}

// IsDataValidationError reports whether err wraps a DataValidationError.
func IsDataValidationError(err error) bool {
	var target *DataValidationError
	return errors.As(err, &target)
}

// IsDatabaseConnectionError reports whether err wraps a DatabaseConnectionError.
func IsDatabaseConnectionError(err error) bool {
	var target *DatabaseConnectionError
	return errors.As(err, &target)
}

// Package ddberr defines the distinct error kinds the core raises.
//
// Names are informative, not literal wire values: callers should use
// errors.As to recover the concrete type rather than matching on strings.
package ddberr

import "fmt"

// ConfigurationError reports a registration-time invariant violation or
// missing required configuration (for example, a missing tenant id when
// tenancy is required).
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string { return "configuration: " + e.Msg }

func Configuration(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}

// ValidationError reports a field value that failed its validator, or a
// required field missing at create.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Msg
	}
	return fmt.Sprintf("validation: field %q: %s", e.Field, e.Msg)
}

func Validation(field, format string, args ...any) error {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// ItemNotFoundError reports that an update/delete targeted an id with no
// live row.
type ItemNotFoundError struct {
	ID string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item not found: %s", e.ID)
}

func NotFound(id string) error {
	return &ItemNotFoundError{ID: id}
}

// ConditionalError is the surfacing form both for backend condition-check
// failures (a caller-supplied condition, or an optimistic version check,
// did not hold) and for uniqueness-constraint violations, whether caught
// pre-flight or only by the backend on a transaction cancellation race.
type ConditionalError struct {
	Msg string
}

func (e *ConditionalError) Error() string { return "conditional check failed: " + e.Msg }

func Conditional(format string, args ...any) error {
	return &ConditionalError{Msg: fmt.Sprintf(format, args...)}
}

// QueryError reports a compile-time error in a user-supplied condition or
// key-condition. No backend call is made when this error is raised.
type QueryError struct {
	Msg string
}

func (e *QueryError) Error() string { return "query: " + e.Msg }

func Query(format string, args ...any) error {
	return &QueryError{Msg: fmt.Sprintf(format, args...)}
}

// BatchTimeoutError reports that the 10s per-batch hard timeout fired
// before a bulk read could complete.
type BatchTimeoutError struct {
	BatchID string
}

func (e *BatchTimeoutError) Error() string {
	return fmt.Sprintf("batch %s: hard timeout exceeded", e.BatchID)
}

func BatchTimeout(batchID string) error {
	return &BatchTimeoutError{BatchID: batchID}
}

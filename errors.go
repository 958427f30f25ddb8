package sharedstream

import (
	"errors"
	"fmt"
)

// Sentinel construction errors, checkable with errors.Is. New and the
// sharing factories always wrap one of these rather than panicking.
var (
	ErrNegativeReplay           = errors.New("sharedstream: replay must be >= 0")
	ErrNegativeBuffer           = errors.New("sharedstream: extra buffer must be >= 0")
	ErrInitialValueWithoutReplay = errors.New("sharedstream: initial value requires replay >= 1")
	ErrZeroCapacitySuspend      = errors.New("sharedstream: zero total capacity requires the suspend overflow policy")
	ErrNegativeDelay            = errors.New("sharedstream: stop delay and replay expiration must be >= 0")
)

// ConfigError wraps one of the sentinel errors above with the field that
// failed validation, so callers that want the offending value can recover it
// without parsing a message.
type ConfigError struct {
	Field string
	Cause error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("sharedstream: invalid %s: %s", e.Field, e.Cause)
}

func (e *ConfigError) Unwrap() error {
	return e.Cause
}

func newConfigError(field string, cause error) error {
	return &ConfigError{Field: field, Cause: cause}
}

package assetforge

import (
	"errors"
	"fmt"
)

// ConfigError reports a reference to an unknown artifact kind or group.
type ConfigError struct {
	Ref string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("assetforge: unknown artifact reference %q", e.Ref)
}

// IOError reports a read or write that failed after bounded retries, or a
// filesystem watch the monitor could not install.
// Err carries the last underlying failure.
type IOError struct {
	Op   string // "read", "write" or "watch"
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("assetforge: %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// InvalidInputError reports a spec the processors cannot act on
// (empty sprite source set, missing output path, malformed URL).
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "assetforge: invalid input: " + e.Reason
}

// CapacityError reports that the coordinator's entry limit was reached.
// Entries live until explicit Remove, so the cap is the only bound on
// watch-handle growth.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("assetforge: entry capacity reached (limit %d)", e.Limit)
}

// IsConfig reports whether err is (or wraps) a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsIO reports whether err is (or wraps) an IOError.
func IsIO(err error) bool {
	var ioe *IOError
	return errors.As(err, &ioe)
}

// IsCapacity reports whether err is (or wraps) a CapacityError.
func IsCapacity(err error) bool {
	var ce *CapacityError
	return errors.As(err, &ce)
}

// IsInvalidInput reports whether err is (or wraps) an InvalidInputError.
func IsInvalidInput(err error) bool {
	var iie *InvalidInputError
	return errors.As(err, &iie)
}

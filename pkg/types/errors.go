package types

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks unsupported modes and inconsistent requests
	ErrConfiguration = errors.New("configuration error")
	// ErrDataAccess marks a video, object or frame missing from the store
	ErrDataAccess = errors.New("data access error")
	// ErrSampling marks a pair sampling request that cannot be satisfied
	ErrSampling = errors.New("sampling error")
)

// ConfigErrorf returns an error that matches ErrConfiguration.
// The format accepts %w like fmt.Errorf.
func ConfigErrorf(format string, a ...any) error {
	return &kindError{kind: ErrConfiguration, err: fmt.Errorf(format, a...)}
}

// DataAccessErrorf returns an error that matches ErrDataAccess
func DataAccessErrorf(format string, a ...any) error {
	return &kindError{kind: ErrDataAccess, err: fmt.Errorf(format, a...)}
}

// SamplingErrorf returns an error that matches ErrSampling
func SamplingErrorf(format string, a ...any) error {
	return &kindError{kind: ErrSampling, err: fmt.Errorf(format, a...)}
}

type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return e.kind.Error() + ": " + e.err.Error()
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.err}
}

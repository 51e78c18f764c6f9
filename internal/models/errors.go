package models

import (
	"errors"
	"fmt"
)

// ErrorType represents different categories of errors
type ErrorType int

const (
	ErrInvalidConfig ErrorType = iota
	ErrDescription
	ErrDiscovery
	ErrRewrite
	ErrEngine
)

// String returns the string representation of ErrorType
func (e ErrorType) String() string {
	switch e {
	case ErrInvalidConfig:
		return "InvalidConfig"
	case ErrDescription:
		return "Description"
	case ErrDiscovery:
		return "Discovery"
	case ErrRewrite:
		return "Rewrite"
	case ErrEngine:
		return "Engine"
	default:
		return "Unknown"
	}
}

// MillError represents an error raised while preparing or running a build
type MillError struct {
	Type ErrorType
	// Subject names what the error is about (a file, a repository alias), if anything
	Subject string
	Err     error
}

// Error implements the error interface
func (e *MillError) Error() string {
	if e.Subject != "" {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Subject, e.Err)
	}
	return fmt.Sprintf("[%s] %v", e.Type, e.Err)
}

// Unwrap returns the wrapped error
func (e *MillError) Unwrap() error {
	return e.Err
}

// IsErrorType reports whether err wraps a MillError of the given type
func IsErrorType(err error, t ErrorType) bool {
	var me *MillError
	return errors.As(err, &me) && me.Type == t
}

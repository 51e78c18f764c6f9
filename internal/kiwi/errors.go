package kiwi

import (
	"errors"
	"fmt"
)

// ErrPrivileges is returned when an action needs root privileges
var ErrPrivileges = errors.New("operation requires root privileges")

// RootDirExistsError is returned by prepare when the sysroot already exists
// and reuse was not allowed
type RootDirExistsError struct {
	Path string
}

// Error implements the error interface
func (e *RootDirExistsError) Error() string {
	return fmt.Sprintf("Root directory %s already exists", e.Path)
}

// Markers kiwi-ng prints when failing with the matching exception
const (
	privilegesMarker = "KiwiPrivilegesError"
	rootExistsMarker = "KiwiRootDirExists"
)

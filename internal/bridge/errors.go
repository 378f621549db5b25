package bridge

import (
	"errors"
	"fmt"
)

var ErrMethodNotSupported = errors.New("method not supported by host")

// MethodNotSupportedError is returned before anything is sent when the host's
// contract version predates method.
type MethodNotSupportedError struct {
	Method     string
	Version    string
	MinVersion string
}

func (e *MethodNotSupportedError) Error() string {
	if e.MinVersion == "" {
		return fmt.Sprintf("method %s is not supported by host contract %s", e.Method, e.Version)
	}
	return fmt.Sprintf("method %s requires contract %s, host has %s", e.Method, e.MinVersion, e.Version)
}

func (e *MethodNotSupportedError) Is(target error) bool { return target == ErrMethodNotSupported }

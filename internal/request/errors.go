package request

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout          = errors.New("request timed out")
	ErrDuplicateRequest = errors.New("request id already in flight")
)

// TimeoutError names the method whose response never arrived.
type TimeoutError struct {
	Method  string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s timed out after %s", e.Method, e.Timeout)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// HostError is a failure the host reported on a response message.
type HostError struct {
	Method  string
	ReqID   string
	Message string
}

func (e *HostError) Error() string {
	if e.Method == "" {
		return "host error: " + e.Message
	}
	return fmt.Sprintf("host error on %s: %s", e.Method, e.Message)
}

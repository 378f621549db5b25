package wallet

import "fmt"

// ErrorCode follows the WalletConnect / JSON-RPC numbering so a code means
// the same thing whichever transport produced it.
type ErrorCode int

const (
	UserRejected       ErrorCode = 5000
	UnsupportedChains  ErrorCode = 5100
	UnsupportedMethods ErrorCode = 5101
	InvalidParams      ErrorCode = -32602
	InternalError      ErrorCode = -32603
)

func (c ErrorCode) String() string {
	switch c {
	case UserRejected:
		return "user rejected"
	case UnsupportedChains:
		return "unsupported chains"
	case UnsupportedMethods:
		return "unsupported methods"
	case InvalidParams:
		return "invalid params"
	case InternalError:
		return "internal error"
	}
	return fmt.Sprintf("code %d", int(c))
}

type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("wallet error %d: %s", int(e.Code), e.Code)
	}
	return fmt.Sprintf("wallet error %d: %s", int(e.Code), e.Message)
}

// Is matches another *Error with the same code. A target without a message
// matches any message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Message == "" || t.Message == e.Message)
}

var (
	ErrUserRejected        = &Error{Code: UserRejected}
	ErrAccountNotConnected = &Error{Code: InternalError, Message: "account not connected"}
)

func internalError(format string, args ...any) *Error {
	return &Error{Code: InternalError, Message: fmt.Sprintf(format, args...)}
}

package adclient

import (
	"errors"
	"fmt"

	"github.com/isometry/terraform-provider-adclient/internal/ldap"
)

// Kind is the fault class of a failed operation.
type Kind int

const (
	KindBind Kind = iota + 1
	KindSearch
	KindOperational
)

func (k Kind) String() string {
	switch k {
	case KindBind:
		return "ADBindError"
	case KindSearch:
		return "ADSearchError"
	case KindOperational:
		return "ADOperationalError"
	default:
		return "ADError"
	}
}

// kindError is the sentinel type behind ErrBind, ErrSearch and ErrOperational.
type kindError Kind

func (k kindError) Error() string { return Kind(k).String() }

// Sentinels for errors.Is matching by fault kind.
var (
	ErrBind        error = kindError(KindBind)
	ErrSearch      error = kindError(KindSearch)
	ErrOperational error = kindError(KindOperational)
)

// ErrNotBound is the cause of every operation attempted before a successful Login.
var ErrNotBound = errors.New("not logged in")

// Local error numbers, outside the LDAP result code range.
const (
	CodeNotBound        = 1000
	CodeInvalidArgument = 1001
	CodeUnknown         = 1002
)

// Error is returned by every failing ADClient operation.
type Error struct {
	Kind Kind
	Op   string
	Code int
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s (code %d) in %s: %v", e.Kind, e.Code, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindError)
	return ok && Kind(k) == e.Kind
}

// newError classifies err, taking the code from any LDAP result in its chain.
func newError(kind Kind, op string, err error) *Error {
	code := int(ldap.ResultCode(err))
	switch {
	case errors.Is(err, ErrNotBound):
		code = CodeNotBound
	case code == 0:
		code = CodeUnknown
	}
	return &Error{Kind: kind, Op: op, Code: code, Err: err}
}

func invalidArgument(op, format string, args ...any) *Error {
	return &Error{Kind: KindOperational, Op: op, Code: CodeInvalidArgument, Err: fmt.Errorf(format, args...)}
}

// ErrorCode returns the error number carried by err, 0 for nil.
func ErrorCode(err error) int {
	if err == nil {
		return 0
	}
	var adErr *Error
	if errors.As(err, &adErr) {
		return adErr.Code
	}
	if code := ldap.ResultCode(err); code != 0 {
		return int(code)
	}
	return CodeUnknown
}

// paygate/pkg/errors/errors.go
package errors

import (
	stderrors "errors"
	"fmt"
)

const (
	CodeCircuitOpen           = "CIRCUIT_OPEN"
	CodeBankCommunication     = "BANK_COMMUNICATION"
	CodeDownstreamUnavailable = "DOWNSTREAM_UNAVAILABLE"
	CodeNotFound              = "NOT_FOUND"
	CodeInvalidArgument       = "INVALID_ARGUMENT"
	CodeUnexpected            = "UNEXPECTED"
)

type E struct {
	Code    string
	Message string
	Err     error
}

func (e E) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e E) Unwrap() error { return e.Err }

func New(code, msg string) error {
	return E{Code: code, Message: msg}
}

func Wrap(code, msg string, err error) error {
	return E{Code: code, Message: msg, Err: err}
}

// CodeOf returns the code of the outermost E in the chain, or "" when there is none.
func CodeOf(err error) string {
	var e E
	if stderrors.As(err, &e) {
		return e.Code
	}
	return ""
}

// HasCode reports whether any E in the chain carries code.
func HasCode(err error, code string) bool {
	for err != nil {
		var e E
		if !stderrors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

package errors

import (
	"errors"
	"fmt"
)

// Code is a stable, machine-readable error type mapped to process exit codes.
type Code int

const (
	CodeSuccess               Code = 0
	CodeInternal              Code = 1
	CodeUsage                 Code = 2
	CodeUnavailable           Code = 12
	CodeUnsupported           Code = 13
	CodeBlocked               Code = 16
	CodeInvalidAddress        Code = 20
	CodeInvalidAmount         Code = 21
	CodeInsufficientBalance   Code = 22
	CodeInsufficientAllowance Code = 23
	CodeTransaction           Code = 24
	CodeNotFound              Code = 25
	CodeConfiguration         Code = 26
)

// Error is a typed error that carries a stable error code.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Details map[string]string
}

func (e *Error) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// WithDetail attaches a key/value pair that is rendered next to the message.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = map[string]string{}
	}
	e.Details[key] = value
	return e
}

func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	cliErr, ok := As(err)
	return ok && cliErr.Code == code
}

func ExitCode(err error) int {
	if err == nil {
		return int(CodeSuccess)
	}
	if cliErr, ok := As(err); ok {
		return int(cliErr.Code)
	}
	return int(CodeInternal)
}

// TypeOf returns the type string rendered in error payloads.
func TypeOf(err error) string {
	cliErr, ok := As(err)
	if !ok {
		return "internal_error"
	}
	switch cliErr.Code {
	case CodeUsage:
		return "usage_error"
	case CodeUnavailable:
		return "rpc_error"
	case CodeUnsupported:
		return "unsupported"
	case CodeBlocked:
		return "command_blocked"
	case CodeInvalidAddress:
		return "invalid_address"
	case CodeInvalidAmount:
		return "invalid_amount"
	case CodeInsufficientBalance:
		return "insufficient_balance"
	case CodeInsufficientAllowance:
		return "insufficient_allowance"
	case CodeTransaction:
		return "transaction_error"
	case CodeNotFound:
		return "not_found"
	case CodeConfiguration:
		return "configuration_error"
	default:
		return "internal_error"
	}
}

// CodeOf is the inverse of TypeOf; unknown types map to CodeInternal.
func CodeOf(typ string) Code {
	for _, code := range []Code{
		CodeUsage, CodeUnavailable, CodeUnsupported, CodeBlocked, CodeInvalidAddress,
		CodeInvalidAmount, CodeInsufficientBalance, CodeInsufficientAllowance,
		CodeTransaction, CodeNotFound, CodeConfiguration,
	} {
		if TypeOf(New(code, "")) == typ {
			return code
		}
	}
	return CodeInternal
}

// Package serrors provides errors that carry a stable machine-readable code.
package serrors

import (
	"errors"
)

type Base interface {
	error
	ErrorCode() string
	ErrorMessage() string
}

type BaseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Detail is kept for logs and never rendered to clients.
	Detail string `json:"-"`
}

func NewError(code, message, detail string) *BaseError {
	return &BaseError{
		Code:    code,
		Message: message,
		Detail:  detail,
	}
}

func (b *BaseError) Error() string {
	if b.Detail != "" {
		return b.Code + ": " + b.Message + " (" + b.Detail + ")"
	}
	return b.Code + ": " + b.Message
}

func (b *BaseError) ErrorCode() string {
	return b.Code
}

func (b *BaseError) ErrorMessage() string {
	return b.Message
}

// Is matches any BaseError carrying the same code, so detailed copies still
// compare equal to the sentinel they were derived from.
func (b *BaseError) Is(target error) bool {
	var other *BaseError
	if !errors.As(target, &other) {
		return false
	}
	return other.Code == b.Code
}

// WithDetail returns a copy of the error with a log-only detail attached.
func (b *BaseError) WithDetail(detail string) *BaseError {
	return &BaseError{
		Code:    b.Code,
		Message: b.Message,
		Detail:  detail,
	}
}

// Code extracts the code of the first Base in the chain.
func Code(err error) (string, bool) {
	var b Base
	if errors.As(err, &b) {
		return b.ErrorCode(), true
	}
	return "", false
}

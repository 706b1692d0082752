// Package errcode provides layered error codes.
// Error code format: MMBBBB (MM = module code 2 digits, BBBB = business code 4 digits)
package errcode

import (
	"fmt"
	"net/http"
)

// LayeredError layered error code.
// Supports error chaining, context data and HTTP status code mapping.
type LayeredError struct {
	module     string
	code       int
	msg        string
	httpStatus int
	data       map[string]interface{}
	cause      error
}

// New creates a layered error code.
// moduleCode: module code (10-99)
// businessCode: business code (0001-9999)
func New(moduleCode, businessCode int, module, msg string, httpStatus ...int) *LayeredError {
	code := moduleCode*10000 + businessCode
	status := http.StatusOK
	if len(httpStatus) > 0 {
		status = httpStatus[0]
	}
	return &LayeredError{
		module:     module,
		code:       code,
		msg:        msg,
		httpStatus: status,
		data:       make(map[string]interface{}),
	}
}

// Error implements the error interface.
func (e *LayeredError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

// Code returns the full error code (MMBBBB).
func (e *LayeredError) Code() int {
	return e.code
}

// Module returns the module name.
func (e *LayeredError) Module() string {
	return e.module
}

// Message returns the default message.
func (e *LayeredError) Message() string {
	return e.msg
}

// HTTPStatus returns the mapped HTTP status code.
func (e *LayeredError) HTTPStatus() int {
	return e.httpStatus
}

// Data returns the attached context data.
func (e *LayeredError) Data() map[string]interface{} {
	return e.data
}

// Unwrap returns the wrapped cause.
func (e *LayeredError) Unwrap() error {
	return e.cause
}

// WithCause returns a copy carrying the original error.
func (e *LayeredError) WithCause(cause error) *LayeredError {
	clone := e.clone()
	clone.cause = cause
	return clone
}

// WithMessage returns a copy with an overridden message.
func (e *LayeredError) WithMessage(msg string) *LayeredError {
	clone := e.clone()
	clone.msg = msg
	return clone
}

// WithData returns a copy with one context entry added.
func (e *LayeredError) WithData(key string, value interface{}) *LayeredError {
	clone := e.clone()
	clone.data[key] = value
	return clone
}

// Is matches two layered errors by code, so errors.Is works on copies
// produced by WithCause / WithData.
func (e *LayeredError) Is(target error) bool {
	t, ok := target.(*LayeredError)
	if !ok {
		return false
	}
	return e.code == t.code
}

func (e *LayeredError) clone() *LayeredError {
	data := make(map[string]interface{}, len(e.data))
	for k, v := range e.data {
		data[k] = v
	}
	return &LayeredError{
		module:     e.module,
		code:       e.code,
		msg:        e.msg,
		httpStatus: e.httpStatus,
		data:       data,
		cause:      e.cause,
	}
}

package errutil

import (
	"errors"
	"fmt"
)

type BaseError struct {
	Code    CoreStatus `json:"code"`
	Message string     `json:"message"`
	Err     error      `json:"-"`
}

func (e BaseError) Status() CoreStatus {
	return e.Code
}

func (e BaseError) Unwrap() error {
	return e.Err
}

func (e BaseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

type Option func(*BaseError)

func WithErr(err error) Option {
	return func(be *BaseError) { be.Err = err }
}

func New(code CoreStatus, message string, opts ...Option) error {
	be := BaseError{Code: code, Message: message}
	for _, opt := range opts {
		opt(&be)
	}
	return be
}

// HasStatus reports whether err carries the given CoreStatus.
func HasStatus(err error, code CoreStatus) bool {
	var be BaseError
	if errors.As(err, &be) {
		return be.Code == code
	}
	return false
}

func DuplicateEvent(msg string, options ...Option) error {
	return New(StatusDuplicateEvent, msg, options...)
}

func ContactNotFound(msg string, options ...Option) error {
	return New(StatusContactNotFound, msg, options...)
}

func Storage(msg string, err error, options ...Option) error {
	return New(StatusStorage, msg, append(options, WithErr(err))...)
}

func DeliveryFailure(msg string, err error, options ...Option) error {
	return New(StatusDeliveryFailure, msg, append(options, WithErr(err))...)
}

func InvalidConfiguration(msg string, options ...Option) error {
	return New(StatusInvalidConfiguration, msg, options...)
}

func Conflict(msg string, options ...Option) error {
	return New(StatusConflict, msg, options...)
}

func NotFound(msg string, options ...Option) error {
	return New(StatusNotFound, msg, options...)
}

func BadRequest(msg string, options ...Option) error {
	return New(StatusBadRequest, msg, options...)
}

func Internal(msg string, err error, options ...Option) error {
	return New(StatusInternal, msg, append(options, WithErr(err))...)
}

package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrUnknownCollection = errors.New("unknown collection")
	ErrUnknownComponent  = errors.New("unknown pipeline component")
	ErrInvalidInput      = errors.New("invalid input")
)

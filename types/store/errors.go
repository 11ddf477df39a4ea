package store

import "github.com/pkg/errors"

var (
	ErrNotFound      = errors.New("item not found")
	ErrInvalidData   = errors.New("invalid data")
	ErrInvalidRecord = errors.New("invalid record")
	ErrClosed        = errors.New("store closed")
)

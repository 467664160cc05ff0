package services

import (
	"errors"

	"github.com/addonhub/addonhub/internal/content"
)

// Every exported service operation fails with one of these, wrapped with context. Callers
// test them with errors.Is.
var (
	ErrInvalidFormat = content.ErrInvalidFormat
	ErrTooLarge      = content.ErrTooLarge
	ErrInvalidInput  = errors.New("invalid input")
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrForbidden     = errors.New("forbidden")
	ErrInternal      = errors.New("internal error")
)

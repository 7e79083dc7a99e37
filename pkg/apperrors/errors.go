package apperrors

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAccessDenied = errors.New("access denied")
	ErrValidation   = errors.New("validation failed")
	ErrConfig       = errors.New("invalid configuration")
	ErrNotOwner     = errors.New("operation requires entry owner")
)

package app

import "errors"

// ErrNotFound and related errors describe lookup and input failures
// surfaced by the service layer.
var (
	ErrNotFound     = errors.New("not found")
	ErrEmptyPatch   = errors.New("empty patch")
	ErrInvalidPage  = errors.New("invalid page request")
	ErrInvalidLimit = errors.New("invalid limit")
)

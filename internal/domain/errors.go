package domain

import "errors"

var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidName       = errors.New("invalid name")
	ErrInvalidTitle      = errors.New("invalid title")
	ErrInvalidPriority   = errors.New("invalid priority")
	ErrInvalidStatus     = errors.New("invalid status")
	ErrInvalidEngineerID = errors.New("invalid engineer id")
	ErrInvalidEmail      = errors.New("invalid email")
)

// Business-rule failures from the lifecycle and assignment engine. They are
// deterministic given current state and are never retried automatically.
var (
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrEngineerUnavailable = errors.New("engineer unavailable")
	ErrProjectArchived     = errors.New("project archived")
	ErrAlreadyArchived     = errors.New("project already archived")
)

// Transient failures. Callers may retry with backoff; the engine itself does
// not retry them, so real conflicts stay visible.
var (
	ErrMutationInProgress = errors.New("mutation in progress")
	ErrGatewayUnavailable = errors.New("recommendation gateway unavailable")
)

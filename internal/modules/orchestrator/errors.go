package orchestrator

import "errors"

var (
	ErrActionInProgress  = errors.New("another action is in progress for this booking")
	ErrNotDismissed      = errors.New("previous action result has not been dismissed")
	ErrInvalidTransition = errors.New("invalid action state transition")
)

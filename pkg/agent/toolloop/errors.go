package toolloop

import "errors"

var (
	// ErrInvalidState indicates a LoopState without a transcript or with a non-positive step budget.
	ErrInvalidState = errors.New("invalid loop state")

	// ErrNoExecutor indicates the loop was built without a capability executor.
	ErrNoExecutor = errors.New("no capability executor configured")
)

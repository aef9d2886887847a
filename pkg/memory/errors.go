package memory

import "errors"

var (
	// ErrEmptyUserID is returned when a conversation operation has no user.
	ErrEmptyUserID = errors.New("memory: user id is required")
)

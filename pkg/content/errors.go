package content

import (
	"errors"
)

var (
	// ErrUsage signals a call missing required input, such as a list read
	// without ids or list, or a write without a key.
	ErrUsage = errors.New("usage error")
)

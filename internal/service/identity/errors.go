package identity

import "errors"

// Sentinel errors for identity resolution.
var (
	ErrNotFound     = errors.New("identity not found")
	ErrInvalidToken = errors.New("invalid identity token")
)

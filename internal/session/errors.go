package session

import "errors"

var (
	// ErrSessionNotActive is returned for handles that were evicted, signed
	// out, expired, or are being torn down. Never retry under the same handle.
	ErrSessionNotActive = errors.New("session is not active")
	ErrInvalidPrincipal = errors.New("principal must have a valid kind and identifier")
)

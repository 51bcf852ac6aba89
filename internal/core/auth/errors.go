package auth

import "errors"

// Authentication errors. All map to UNAUTHENTICATED so a caller cannot tell
// an unknown secret ID from a bad signature by status code alone.
var (
	ErrMissingKey       = errors.New("API key required in x-api-key metadata")
	ErrInvalidKeyFormat = errors.New("invalid API key format")
	ErrUnknownKey       = errors.New("unknown secret ID")
	ErrInvalidKey       = errors.New("invalid API key")
)

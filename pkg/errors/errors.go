package upload_errors

import (
	"errors"
)

// Pipeline error kinds. The orchestrator and handlers branch on these with
// errors.Is; everything else wraps them with context.
var (
	ErrValidation  = errors.New("invalid input")
	ErrTooLarge    = errors.New("file too large")
	ErrIO          = errors.New("stream read failed")
	ErrCrypto      = errors.New("encryption failed")
	ErrTransport   = errors.New("object store transfer failed")
	ErrStore       = errors.New("secret store write failed")
	ErrNotFound    = errors.New("not found")
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("upload job timed out")
)

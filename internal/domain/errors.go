package domain

import "errors"

var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidContentType = errors.New("invalid content type")
	ErrJobTerminal        = errors.New("job already terminal")
	ErrNothingToRetry     = errors.New("nothing to retry")
	// ErrProviderFailure marks chunk errors caused by the generation
	// collaborator itself (transport, rate limit, upstream status) as
	// opposed to unusable model output.
	ErrProviderFailure = errors.New("provider failure")
)

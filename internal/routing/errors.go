package routing

import "errors"

var (
	// ErrUnknownModel is returned when an explicit selection is not in the registry
	ErrUnknownModel = errors.New("unknown model")

	// ErrEmptyReply is recorded when a model answers with no content
	ErrEmptyReply = errors.New("empty model reply")

	// ErrMissingImageKey is recorded when an image model is selected without a key
	ErrMissingImageKey = errors.New("an OpenAI API key is required")

	// ErrInvalidTarget is recorded when the router names a model that cannot be forwarded to
	ErrInvalidTarget = errors.New("router target is not forwardable")
)

package domain

import "errors"

var (
	// ErrValidation signals a malformed or incomplete search request.
	ErrValidation = errors.New("invalid request")
	// ErrUnknownModel signals a model key outside the static registry.
	ErrUnknownModel = errors.New("unknown model")
	// ErrArtworkNotFound signals a missing artwork document.
	ErrArtworkNotFound = errors.New("artwork not found")
	// ErrEmbeddingBackend signals an unreachable or misbehaving embedding backend.
	ErrEmbeddingBackend = errors.New("embedding backend error")
	// ErrImageNotSupported signals an image payload sent to a text-only model.
	ErrImageNotSupported = errors.New("model does not support image input")
	// ErrRetrievalFailed signals that every requested retrieval mode failed.
	// Individual mode failures degrade silently and never surface this.
	ErrRetrievalFailed = errors.New("all retrieval modes failed")
)

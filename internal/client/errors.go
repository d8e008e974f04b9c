package client

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned when the model produced no text.
var ErrEmptyResponse = errors.New("empty response from model")

// ErrCachingUnsupported is returned by providers without a context cache.
var ErrCachingUnsupported = errors.New("provider does not support context caching")

// ReasoningError wraps a failed architect or chat request.
type ReasoningError struct {
	Op  string // "architect" or "chat"
	Err error
}

func (e *ReasoningError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *ReasoningError) Unwrap() error { return e.Err }

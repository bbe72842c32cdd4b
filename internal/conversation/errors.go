package conversation

import (
	"errors"
	"fmt"

	"chat-cache/internal/storage"
)

type Kind string

const (
	KindConfig        Kind = "config"
	KindEndpoint      Kind = "endpoint"
	KindSerialization Kind = "serialization"
	KindStorage       Kind = "storage"
)

type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("conversation: %s error (%s)", e.Kind, e.Op)
	}
	return fmt.Sprintf("conversation: %s error (%s): %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// IsKind reports whether err carries a conversation error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

func cacheError(op string, err error) *Error {
	if errors.Is(err, storage.ErrEncode) {
		return newError(KindSerialization, op, err)
	}
	return newError(KindStorage, op, err)
}

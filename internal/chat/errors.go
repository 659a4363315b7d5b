package chat

import (
	"errors"
	"fmt"

	"github.com/Tyrowin/chatgate/internal/auth"
)

var (
	// ErrNotFound reports a missing conversation, message or actor.
	ErrNotFound = errors.New("not found")
	// ErrForbidden reports an authenticated actor acting outside its rights.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument reports malformed input such as empty text.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrMessageDeleted rejects changes to a soft-deleted message.
	ErrMessageDeleted = errors.New("message is deleted")
	// ErrStorage wraps any storage collaborator failure other than not found.
	ErrStorage = errors.New("storage error")
)

// Wire error codes.
const (
	CodeUnauthenticated = "unauthenticated"
	CodeForbidden       = "forbidden"
	CodeNotFound        = "not_found"
	CodeInvalidArgument = "invalid_argument"
	CodeConflict        = "conflict"
	CodeStorage         = "storage_error"
	CodeInternal        = "internal"
)

// Code maps an error returned by this package to its wire code.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, auth.ErrUnauthenticated):
		return CodeUnauthenticated
	case errors.Is(err, ErrForbidden):
		return CodeForbidden
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, ErrMessageDeleted):
		return CodeConflict
	case errors.Is(err, ErrStorage):
		return CodeStorage
	default:
		return CodeInternal
	}
}

// storageErr classifies a store error: not-found passes through, anything
// else is wrapped as ErrStorage.
func storageErr(op string, err error) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

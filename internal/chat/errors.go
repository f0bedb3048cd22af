package chat

import (
	"adoptchat/backend/internal/storage"
	"errors"
	"fmt"
)

var (
	ErrForbidden     = errors.New("not a participant")
	ErrNotAuthor     = errors.New("only the author can change this message")
	ErrMessageGone   = errors.New("message was deleted")
	ErrSystemMessage = errors.New("system messages cannot be changed")
)

// Localization keys of user-visible failures.
const (
	KeyEmptyMessage   = "chat.empty_message"
	KeyMessageTooLong = "chat.message_too_long"
	KeyUnknownUser    = "chat.unknown_user"
	KeyInvalidPair    = "chat.invalid_pair"
	KeyRoomCreate     = "chat.room_create_failed"
	KeyForbidden      = "chat.forbidden"
	KeyNotFound       = "chat.not_found"
	KeyNotAuthor      = "chat.not_author"
	KeyMessageGone    = "chat.message_gone"
	KeySystemMessage  = "chat.system_message"
	KeyInternal       = "error.internal"
)

// UserError is a failure the sender should see, identified by a
// localization key.
type UserError struct {
	Key string
	Err error
}

func userError(key string, err error) *UserError {
	return &UserError{Key: key, Err: err}
}

func (e *UserError) Error() string {
	if e.Err == nil {
		return e.Key
	}
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

func (e *UserError) Unwrap() error { return e.Err }

// Key maps an error returned by Service to its localization key.
func Key(err error) string {
	var ue *UserError
	switch {
	case errors.As(err, &ue):
		return ue.Key
	case errors.Is(err, ErrForbidden):
		return KeyForbidden
	case errors.Is(err, ErrNotAuthor):
		return KeyNotAuthor
	case errors.Is(err, ErrMessageGone):
		return KeyMessageGone
	case errors.Is(err, ErrSystemMessage):
		return KeySystemMessage
	case errors.Is(err, storage.ErrNotFound):
		return KeyNotFound
	}
	return KeyInternal
}

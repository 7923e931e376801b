package domain

import "errors"

var (
	ErrRoomNotFound   = errors.New("chat room not found")
	ErrUserNotFound   = errors.New("user not found")
	ErrNotParticipant = errors.New("user is not a participant of the chat room")
	ErrSelfChat       = errors.New("cannot open a chat room with yourself")
	ErrMissingRoomID  = errors.New("chat room id is required")
	ErrMissingTarget  = errors.New("target user id is required")
	ErrEmptyContent   = errors.New("message content is required")
	ErrContentTooLong = errors.New("message content is too long")
	ErrInvalidCursor  = errors.New("invalid cursor")

	ErrUnauthenticated = errors.New("authentication token required")
	ErrInvalidToken    = errors.New("invalid authentication token")
)

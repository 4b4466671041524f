package service

import (
	"errors"
	"fmt"

	"lobbyd/internal/model"
)

// Kind classifies an application error
type Kind string

const (
	KindUnauthorized  Kind = "unauthorized"
	KindInvalid       Kind = "invalid"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindForbidden     Kind = "forbidden"
	KindInvalidState  Kind = "invalid_state"
	KindTransientBusy Kind = "transient_busy"
	KindInternal      Kind = "internal"
)

// Error is returned by every service operation. Room is set when the caller
// needs to know which room caused a conflict.
type Error struct {
	Kind    Kind
	Message string
	Room    *model.RoomRef
	cause   error
}

func (e *Error) Error() string {
	if e.Room != nil {
		return fmt.Sprintf("%s: %s (room %s %q)", e.Kind, e.Message, e.Room.Code, e.Room.Name)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error of the same kind, so errors.Is(err, ErrConflict) works
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return t.Kind == e.Kind && t.Message == ""
	}
	return false
}

// Kind sentinels for errors.Is
var (
	ErrUnauthorized  = &Error{Kind: KindUnauthorized}
	ErrInvalid       = &Error{Kind: KindInvalid}
	ErrNotFound      = &Error{Kind: KindNotFound}
	ErrConflict      = &Error{Kind: KindConflict}
	ErrForbidden     = &Error{Kind: KindForbidden}
	ErrInvalidState  = &Error{Kind: KindInvalidState}
	ErrTransientBusy = &Error{Kind: KindTransientBusy}
	ErrInternal      = &Error{Kind: KindInternal}
)

// Messages clients can match on
const (
	MsgRoomFull        = "room full"
	MsgAlreadyInRoom   = "already in another room"
	MsgAlreadyHosting  = "already hosting an active room"
	MsgCodesExhausted  = "could not allocate a unique room code"
	MsgWrongPassword   = "wrong room password"
	MsgNotHost         = "only the host can do this"
	MsgNotMember       = "not a member of this room"
	MsgRoomNotFound    = "room not found"
	MsgRoomUnavailable = "room is no longer active"
	MsgBusy            = "room is busy, retry shortly"
)

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func conflictWithRoom(msg string, room *model.Room) *Error {
	return &Error{Kind: KindConflict, Message: msg, Room: room.Ref()}
}

func internalError(msg string, cause error) *Error {
	return &Error{Kind: KindInternal, Message: msg, cause: cause}
}

// KindOf extracts the kind of err, defaulting to internal
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

package repository

import "errors"

// ErrDuplicate is returned when an insert violates a unique index
// (room code, seat position, or user already seated in the room).
var ErrDuplicate = errors.New("repository: duplicate key")

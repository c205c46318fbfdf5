package core

import "errors"

var (
	// ErrNameTaken means the requested username is already held by another
	// authenticated connection.
	ErrNameTaken = errors.New("username already in use")
	// ErrRoomFull means the room is at its member capacity.
	ErrRoomFull = errors.New("room is full")
	// ErrNotInRoom means the sender is not a member of the room.
	ErrNotInRoom = errors.New("not in room")
	// ErrRoomNotFound means no room with that name exists.
	ErrRoomNotFound = errors.New("room not found")
	// ErrUserNotFound means no authenticated connection holds that username.
	ErrUserNotFound = errors.New("user not found")
)

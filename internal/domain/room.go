package domain

import (
	"errors"
	"strings"
)

const MaxRoomNameLen = 36

var ErrRoomNameInvalid = errors.New("invalid room name")

type RoomName string

// ParseRoomName normalizes a client supplied room name.
func ParseRoomName(raw string) (RoomName, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	if name == "" || len(name) > MaxRoomNameLen {
		return "", ErrRoomNameInvalid
	}
	return RoomName(name), nil
}

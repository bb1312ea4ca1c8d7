// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxUserIDLen   = 64
	MaxUsernameLen = 36
)

var (
	ErrUserIDTooLong   = errors.New("user id too long")
	ErrUserIDEmpty     = errors.New("user id empty")
	ErrUsernameTooLong = errors.New("username too long")
)

// UserID is the externally supplied identity of a participant.
// It is presentation-only inside a room and never used for authorization.
type UserID string

type User struct {
	ID       UserID `json:"id"`
	Username string `json:"username"`
}

// NewGuest creates a user with a fresh random id.
func NewGuest() *User {
	return &User{ID: UserID(uuid.NewString()), Username: "guest"}
}

// ParseUserID validates an identity value supplied by a client at join.
func ParseUserID(raw string) (UserID, error) {
	if len(raw) == 0 {
		return "", ErrUserIDEmpty
	}
	if len(raw) > MaxUserIDLen {
		return "", ErrUserIDTooLong
	}
	return UserID(raw), nil
}

func (u *User) SetUsername(username string) error {
	if len(username) > MaxUsernameLen {
		return ErrUsernameTooLong
	}
	if username == "" {
		username = "guest"
	}
	u.Username = username
	return nil
}

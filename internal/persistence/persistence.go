package persistence

import (
	"errors"
)

var ErrUserNotFound = errors.New("user not found")

// User is the part of a user document the relay reads.
type User struct {
	Id       string
	Contacts []string
}

package user

import "errors"

var (
	ErrUserNotFound = errors.New("user not found")
	ErrNoAvatar     = errors.New("user has no avatar")
)

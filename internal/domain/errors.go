package domain

import "errors"

var (
	// ErrUserNotFound — запрошенный пользователь не существует.
	ErrUserNotFound = errors.New("пользователь не найден")
)

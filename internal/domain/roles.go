package domain

import "strings"

// UserRole описывает роль пользователя на платформе.
type UserRole string

const (
	UserRoleUser       UserRole = "user"
	UserRoleWriter     UserRole = "writer"
	UserRoleAdmin      UserRole = "admin"
	UserRoleSuperadmin UserRole = "superadmin"
)

// ParseRole приводит строку к известной роли. Неизвестные значения
// трактуются как обычный пользователь.
func ParseRole(raw string) UserRole {
	switch UserRole(strings.ToLower(strings.TrimSpace(raw))) {
	case UserRoleWriter:
		return UserRoleWriter
	case UserRoleAdmin:
		return UserRoleAdmin
	case UserRoleSuperadmin:
		return UserRoleSuperadmin
	default:
		return UserRoleUser
	}
}

// CanViewAnalytics сообщает, доступна ли роли аналитика по всей площадке.
func (r UserRole) CanViewAnalytics() bool {
	return r == UserRoleAdmin || r == UserRoleSuperadmin
}

package models

import "time"

// Roles a user may hold. Moderators and admins may modify any package.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// User is a package author. Accounts are managed outside this service.
type User struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// IsStaffRole reports whether role grants moderation rights over other users' packages.
func IsStaffRole(role string) bool {
	return role == RoleModerator || role == RoleAdmin
}

package domain

import "time"

// Role enumerates the closed set of portal roles.
type Role string

const (
	RoleCitizen        Role = "citizen"
	RoleStaff          Role = "staff"
	RoleDepartmentHead Role = "department_head"
	RoleAdmin          Role = "admin"
	RoleSystemAdmin    Role = "system_admin"
)

// ValidRole reports whether the role is a member of the closed enum.
func ValidRole(role Role) bool {
	switch role {
	case RoleCitizen, RoleStaff, RoleDepartmentHead, RoleAdmin, RoleSystemAdmin:
		return true
	}
	return false
}

// IsAdmin treats admin and system_admin as equivalent. Every admin gate in the
// codebase must go through this helper rather than comparing roles directly.
func IsAdmin(role Role) bool {
	return role == RoleAdmin || role == RoleSystemAdmin
}

// IsStaffRole reports whether the role works issues on behalf of a department.
func IsStaffRole(role Role) bool {
	return role == RoleStaff || role == RoleDepartmentHead
}

// User is the resolved identity attached to every inbound call. Credential
// issuance lives outside the core; only role, department and the active flag
// feed authorization decisions here.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	Role         Role
	Department   *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

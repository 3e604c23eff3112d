package domain

import "time"

// User is any identity known to the platform: citizens and municipal staff alike.
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         Role
	DepartmentID *string
	ManagerID    *string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// InDepartment reports whether the user belongs to departmentID.
func (u *User) InDepartment(departmentID string) bool {
	return u != nil && u.DepartmentID != nil && *u.DepartmentID == departmentID
}

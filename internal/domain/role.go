package domain

// Role enumerates every identity role in the platform.
type Role string

const (
	RoleCitizen    Role = "citizen"
	RoleDeptHead   Role = "dept_head"
	RoleTeamLeader Role = "team_leader"
	RoleTeamMember Role = "team_member"
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

// AllRoles lists the closed role set in display order.
var AllRoles = []Role{RoleCitizen, RoleDeptHead, RoleTeamLeader, RoleTeamMember, RoleAdmin, RoleSuperAdmin}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	for _, candidate := range AllRoles {
		if r == candidate {
			return true
		}
	}
	return false
}

// IsAdmin covers both admin tiers.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin || r == RoleSuperAdmin
}

// Actor identifies who performs a lifecycle operation.
type Actor struct {
	UserID       string
	Role         Role
	DepartmentID *string
}

// ActorFromUser builds an Actor for an authenticated user.
func ActorFromUser(u *User) Actor {
	if u == nil {
		return Actor{}
	}
	return Actor{UserID: u.ID, Role: u.Role, DepartmentID: u.DepartmentID}
}

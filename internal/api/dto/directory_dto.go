package dto

import "time"

// CreateDepartmentRequest payload.
type CreateDepartmentRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	SLAHours    int            `json:"sla_hours"`
	CategorySLA map[string]int `json:"category_sla"`
}

// UpdateDepartmentSLARequest payload; a nil category map keeps the current overrides.
type UpdateDepartmentSLARequest struct {
	SLAHours    *int           `json:"sla_hours"`
	CategorySLA map[string]int `json:"category_sla"`
}

// UserIDRequest names one user, as for head or leader appointments.
type UserIDRequest struct {
	UserID string `json:"user_id"`
}

// CreateTeamRequest payload.
type CreateTeamRequest struct {
	DepartmentID string   `json:"department_id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	LeaderID     string   `json:"leader_id"`
	MemberIDs    []string `json:"member_ids"`
}

// TeamMembersRequest payload.
type TeamMembersRequest struct {
	UserIDs []string `json:"user_ids"`
}

// DepartmentResponse payload.
type DepartmentResponse struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	HeadID      *string        `json:"head_id,omitempty"`
	SLAHours    int            `json:"sla_hours"`
	CategorySLA map[string]int `json:"category_sla"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TeamResponse payload.
type TeamResponse struct {
	ID           string    `json:"id"`
	DepartmentID string    `json:"department_id"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	LeaderID     string    `json:"leader_id"`
	MemberIDs    []string  `json:"member_ids"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

package dto

import (
	"time"

	"github.com/spec-kit/civic-service/internal/domain"
)

// CreateRequestRequest payload.
type CreateRequestRequest struct {
	ServiceType   string           `json:"service_type"`
	Description   string           `json:"description"`
	Location      *domain.Location `json:"location"`
	DepartmentID  *string          `json:"department_id"`
	AttachmentURL string           `json:"attachment_url"`
}

// ValidateRequestRequest carries the triage decision.
type ValidateRequestRequest struct {
	Decision domain.ValidationDecision `json:"decision"`
	Notes    string                    `json:"notes"`
}

// AssignRequestRequest names the team leader by id or email.
type AssignRequestRequest struct {
	TeamLeaderID    string     `json:"team_leader_id"`
	TeamLeaderEmail string     `json:"team_leader_email"`
	Deadline        *time.Time `json:"deadline"`
	Notes           string     `json:"notes"`
	CostEstimate    *float64   `json:"cost_estimate"`
}

// CreateTaskRequest payload.
type CreateTaskRequest struct {
	Title              string     `json:"title"`
	AssignedTeamID     *string    `json:"assigned_team_id"`
	AssignedTo         *string    `json:"assigned_to"`
	AssignedMembers    []string   `json:"assigned_members"`
	EstimatedTimeHours float64    `json:"estimated_time_hours"`
	RequiredWorkers    int        `json:"required_workers"`
	Deadline           *time.Time `json:"deadline"`
	Instructions       string     `json:"instructions"`
	Notes              string     `json:"notes"`
}

// UpdateTaskStatusRequest payload.
type UpdateTaskStatusRequest struct {
	Status domain.TaskStatus `json:"status"`
	Note   string            `json:"note"`
}

// VerifyCompletionRequest carries the review decision.
type VerifyCompletionRequest struct {
	Decision domain.ReportStatus `json:"decision"`
	Notes    string              `json:"notes"`
}

// FeedbackRequest payload.
type FeedbackRequest struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// MergeRequestsRequest payload.
type MergeRequestsRequest struct {
	ParentID string   `json:"parent_id"`
	ChildIDs []string `json:"child_ids"`
}

// SimilarRequestsRequest payload.
type SimilarRequestsRequest struct {
	ServiceType string   `json:"service_type"`
	Description string   `json:"description"`
	Address     string   `json:"address"`
	Lat         *float64 `json:"lat"`
	Lng         *float64 `json:"lng"`
}

// SweepRequest optionally narrows a sweep to one department.
type SweepRequest struct {
	DepartmentID *string `json:"department_id"`
}

// RequestSummary is the list view of a request.
type RequestSummary struct {
	ID           string               `json:"id"`
	CitizenID    string               `json:"citizen_id"`
	ServiceType  string               `json:"service_type"`
	Status       domain.RequestStatus `json:"status"`
	DepartmentID *string              `json:"department_id,omitempty"`
	AssignedTo   *string              `json:"assigned_to,omitempty"`
	Address      string               `json:"address,omitempty"`
	SupportCount int                  `json:"support_count"`
	Escalated    bool                 `json:"escalated"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// RequestDetail is the full aggregate view.
type RequestDetail struct {
	ID                string                   `json:"id"`
	CitizenID         string                   `json:"citizen_id"`
	ServiceType       string                   `json:"service_type"`
	Description       string                   `json:"description"`
	Location          *domain.Location         `json:"location,omitempty"`
	DepartmentID      *string                  `json:"department_id,omitempty"`
	AttachmentURL     string                   `json:"attachment_url,omitempty"`
	Status            domain.RequestStatus     `json:"status"`
	ValidationStatus  domain.ValidationStatus  `json:"validation_status"`
	ValidationHistory []domain.ValidationEntry `json:"validation_history"`
	Assignment        *domain.Assignment       `json:"assignment,omitempty"`
	AssignedTo        *string                  `json:"assigned_to,omitempty"`
	TimeLogs          domain.TimeLogs          `json:"time_logs"`
	Tasks             []domain.Task            `json:"tasks"`
	Completion        *domain.Completion       `json:"completion,omitempty"`
	Verification      *domain.Verification     `json:"verification,omitempty"`
	SupportCount      int                      `json:"support_count"`
	Escalated         bool                     `json:"escalated"`
	EscalatedAt       *time.Time               `json:"escalated_at,omitempty"`
	EscalatedTo       *string                  `json:"escalated_to,omitempty"`
	ParentRequestID   *string                  `json:"parent_request_id,omitempty"`
	MergedChildren    []string                 `json:"merged_children"`
	Feedback          *domain.CitizenFeedback  `json:"feedback,omitempty"`
	Version           int                      `json:"version"`
	CreatedAt         time.Time                `json:"created_at"`
	UpdatedAt         time.Time                `json:"updated_at"`
}

// EvidenceResponse is stored evidence metadata.
type EvidenceResponse struct {
	ID         string    `json:"id"`
	TaskID     string    `json:"task_id"`
	URL        string    `json:"url"`
	FileName   string    `json:"file_name"`
	MimeType   string    `json:"mime_type"`
	SizeBytes  int64     `json:"size_bytes"`
	UploadedBy string    `json:"uploaded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

// CompletionRequest is the report body; multipart submissions carry the same fields as
// form values alongside the "evidence" files.
type CompletionRequest struct {
	TaskID         string   `json:"task_id" form:"task_id"`
	TimeTakenHours float64  `json:"time_taken_hours" form:"time_taken_hours"`
	CostIncurred   float64  `json:"cost_incurred" form:"cost_incurred"`
	MaterialsUsed  []string `json:"materials_used" form:"materials_used"`
	MemberNames    []string `json:"member_names" form:"member_names"`
	Notes          string   `json:"notes" form:"notes"`
}

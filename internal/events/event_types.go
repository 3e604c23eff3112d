package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/civic-service/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventRequestCreated      EventType = "request_created"
	EventRequestValidated    EventType = "request_validated"
	EventRequestAssigned     EventType = "request_assigned"
	EventTaskCreated         EventType = "task_created"
	EventTaskStatusChanged   EventType = "task_status_changed"
	EventCompletionSubmitted EventType = "completion_submitted"
	EventCompletionVerified  EventType = "completion_verified"
	EventFeedbackAdded       EventType = "feedback_added"
	EventRequestSupported    EventType = "request_supported"
	EventRequestsMerged      EventType = "requests_merged"
	EventRequestEscalated    EventType = "request_escalated"
	EventDepartmentHeadSet   EventType = "department_head_assigned"
	EventTeamLeaderChanged   EventType = "team_leader_reassigned"
)

// Actor encapsulates actor metadata for an event. A nil UserID marks a system action.
type Actor struct {
	UserID *string     `json:"user_id,omitempty"`
	Role   domain.Role `json:"role,omitempty"`
}

// Event represents a domain event emitted by services.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	RequestID string    `json:"request_id,omitempty"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// New stamps an event with an id.
func New(eventType EventType, requestID string, actor *domain.Actor, at time.Time, payload any) Event {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		RequestID: requestID,
		Timestamp: at,
		Payload:   payload,
	}
	if actor != nil {
		id := actor.UserID
		ev.Actor = Actor{UserID: &id, Role: actor.Role}
	}
	return ev
}

// StatusChangedPayload accompanies every request status transition.
type StatusChangedPayload struct {
	OldStatus domain.RequestStatus `json:"old_status"`
	NewStatus domain.RequestStatus `json:"new_status"`
	CitizenID string               `json:"citizen_id"`
	Message   string               `json:"message,omitempty"`
}

// RequestAssignedPayload payload.
type RequestAssignedPayload struct {
	TeamLeaderID string     `json:"team_leader_id"`
	Deadline     *time.Time `json:"deadline,omitempty"`
}

// TaskPayload payload.
type TaskPayload struct {
	TaskID          string            `json:"task_id"`
	Title           string            `json:"title"`
	Status          domain.TaskStatus `json:"status"`
	AssignedTeamID  *string           `json:"assigned_team_id,omitempty"`
	AssignedMembers []string          `json:"assigned_members,omitempty"`
}

// CompletionVerifiedPayload payload.
type CompletionVerifiedPayload struct {
	TaskID   string              `json:"task_id"`
	Decision domain.ReportStatus `json:"decision"`
	Notes    string              `json:"notes,omitempty"`
}

// RequestsMergedPayload payload.
type RequestsMergedPayload struct {
	ParentID string   `json:"parent_id"`
	ChildIDs []string `json:"child_ids"`
}

// EscalatedPayload payload.
type EscalatedPayload struct {
	DepartmentID *string `json:"department_id,omitempty"`
	EscalatedTo  *string `json:"escalated_to,omitempty"`
	SLAHours     int     `json:"sla_hours"`
	HoursOverdue float64 `json:"hours_overdue"`
}

// DirectoryPayload describes a leadership change in the directory.
type DirectoryPayload struct {
	DepartmentID string  `json:"department_id,omitempty"`
	TeamID       string  `json:"team_id,omitempty"`
	PreviousID   *string `json:"previous_id,omitempty"`
	NewID        string  `json:"new_id"`
	Reassigned   int     `json:"reassigned_requests,omitempty"`
}

package domain

import (
	"fmt"
	"time"

	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

// TaskStatus enumerates the task sub-state machine.
type TaskStatus string

const (
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusBlocked    TaskStatus = "blocked"
	TaskStatusCompleted  TaskStatus = "completed"
)

// ReportStatus tracks review of a task's completion report.
type ReportStatus string

const (
	ReportStatusPending  ReportStatus = "pending"
	ReportStatusAccepted ReportStatus = "accepted"
	ReportStatusRejected ReportStatus = "rejected"
)

var allowedTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskStatusTodo:       {TaskStatusInProgress},
	TaskStatusInProgress: {TaskStatusBlocked, TaskStatusCompleted},
	TaskStatusBlocked:    {TaskStatusInProgress, TaskStatusCompleted},
	TaskStatusCompleted:  {},
}

// AllowedTaskTransitions returns the valid targets from status.
func AllowedTaskTransitions(status TaskStatus) []TaskStatus {
	return append([]TaskStatus(nil), allowedTaskTransitions[status]...)
}

// IsValidTaskTransition reports whether current -> next is in the transition table.
func IsValidTaskTransition(current, next TaskStatus) bool {
	for _, candidate := range allowedTaskTransitions[current] {
		if candidate == next {
			return true
		}
	}
	return false
}

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	_, ok := allowedTaskTransitions[s]
	return ok
}

// TaskStatusChange is one entry of a task's own transition log.
type TaskStatusChange struct {
	From      TaskStatus `json:"from"`
	To        TaskStatus `json:"to"`
	ChangedBy string     `json:"changed_by"`
	Note      string     `json:"note,omitempty"`
	ChangedAt time.Time  `json:"changed_at"`
}

// CompletionReport is the leader's account of work done on a task.
type CompletionReport struct {
	TimeTakenHours float64  `json:"time_taken_hours"`
	CostIncurred   float64  `json:"cost_incurred"`
	MaterialsUsed  []string `json:"materials_used,omitempty"`
	MemberNames    []string `json:"member_names,omitempty"`
	Notes          string   `json:"notes,omitempty"`
	EvidenceURLs   []string `json:"evidence_urls,omitempty"`
}

// Task is a unit of assigned work embedded in a Request.
type Task struct {
	ID                 string             `json:"id"`
	Title              string             `json:"title"`
	AssignedTeamID     *string            `json:"assigned_team_id,omitempty"`
	AssignedTo         *string            `json:"assigned_to,omitempty"`
	AssignedMembers    []string           `json:"assigned_members"`
	EstimatedTimeHours float64            `json:"estimated_time_hours,omitempty"`
	RequiredWorkers    int                `json:"required_workers,omitempty"`
	Deadline           *time.Time         `json:"deadline,omitempty"`
	Instructions       string             `json:"instructions,omitempty"`
	Notes              string             `json:"notes,omitempty"`
	Status             TaskStatus         `json:"status"`
	StatusHistory      []TaskStatusChange `json:"status_history"`
	CreatedBy          string             `json:"created_by"`
	CreatedAt          time.Time          `json:"created_at"`
	StartedAt          *time.Time         `json:"started_at,omitempty"`
	CompletedAt        *time.Time         `json:"completed_at,omitempty"`
	CompletedBy        *string            `json:"completed_by,omitempty"`

	ReportSubmitted   bool              `json:"report_submitted"`
	ReportStatus      ReportStatus      `json:"report_status,omitempty"`
	ReportSubmittedAt *time.Time        `json:"report_submitted_at,omitempty"`
	ReportReviewedBy  *string           `json:"report_reviewed_by,omitempty"`
	ReportReviewedAt  *time.Time        `json:"report_reviewed_at,omitempty"`
	ReportReviewNotes string            `json:"report_review_notes,omitempty"`
	Report            *CompletionReport `json:"report,omitempty"`
}

// IsActive is true while the task still blocks creation of another task:
// unfinished, finished without a report, or with a report awaiting review.
func (t *Task) IsActive() bool {
	if t.Status != TaskStatusCompleted {
		return true
	}
	if !t.ReportSubmitted {
		return true
	}
	return t.ReportStatus == ReportStatusPending
}

// HasMember reports whether userID is individually assigned to the task.
func (t *Task) HasMember(userID string) bool {
	for _, id := range t.AssignedMembers {
		if id == userID {
			return true
		}
	}
	return t.AssignedTo != nil && *t.AssignedTo == userID
}

// Transition moves the task to next, enforcing the transition table.
func (t *Task) Transition(next TaskStatus, actorID, note string, now time.Time) error {
	if !next.Valid() {
		return apperrors.NewValidationError("unknown task status", map[string]any{"status": next})
	}
	if !IsValidTaskTransition(t.Status, next) {
		allowed := AllowedTaskTransitions(t.Status)
		return apperrors.NewStateError(
			fmt.Sprintf("cannot move task from %s to %s; allowed: %v", t.Status, next, allowed),
			string(t.Status), taskStatusStrings(allowed))
	}
	change := TaskStatusChange{From: t.Status, To: next, ChangedBy: actorID, Note: note, ChangedAt: now}
	t.Status = next
	switch next {
	case TaskStatusInProgress:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
	case TaskStatusCompleted:
		t.CompletedAt = &now
		by := actorID
		t.CompletedBy = &by
	}
	t.StatusHistory = append(t.StatusHistory, change)
	return nil
}

func taskStatusStrings(list []TaskStatus) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		out = append(out, string(s))
	}
	return out
}

package domain

import "time"

// RequestStatus is the single source of truth for where a request is in its lifecycle.
type RequestStatus string

const (
	StatusSubmitted         RequestStatus = "submitted"
	StatusValidating        RequestStatus = "validating"
	StatusPendingAssignment RequestStatus = "pending_assignment"
	StatusAssigned          RequestStatus = "assigned"
	StatusWorking           RequestStatus = "working"
	StatusCompletedOnSite   RequestStatus = "completed_on_site"
	StatusInReview          RequestStatus = "in_review"
	StatusReworkRequired    RequestStatus = "rework_required"
	StatusCompleted         RequestStatus = "completed"
	StatusClosed            RequestStatus = "closed"
	StatusInvalid           RequestStatus = "invalid"
	StatusMerged            RequestStatus = "merged"
)

// AllRequestStatuses lists the twelve lifecycle states.
var AllRequestStatuses = []RequestStatus{
	StatusSubmitted, StatusValidating, StatusPendingAssignment, StatusAssigned, StatusWorking,
	StatusCompletedOnSite, StatusInReview, StatusReworkRequired, StatusCompleted, StatusClosed,
	StatusInvalid, StatusMerged,
}

// ResolvedStatuses are excluded from SLA evaluation and sweeps.
var ResolvedStatuses = []RequestStatus{StatusCompleted, StatusClosed, StatusInvalid, StatusMerged}

// Valid reports whether s is one of the lifecycle states.
func (s RequestStatus) Valid() bool {
	return statusIn(s, AllRequestStatuses)
}

// IsResolved reports whether s belongs to the closed family.
func (s RequestStatus) IsResolved() bool {
	return statusIn(s, ResolvedStatuses)
}

func statusIn(s RequestStatus, set []RequestStatus) bool {
	for _, candidate := range set {
		if s == candidate {
			return true
		}
	}
	return false
}

// ValidationDecision is the department head's triage outcome.
type ValidationDecision string

const (
	DecisionValid   ValidationDecision = "valid"
	DecisionInvalid ValidationDecision = "invalid"
)

// ValidationStatus mirrors the latest triage decision.
type ValidationStatus string

const (
	ValidationPending ValidationStatus = "pending"
	ValidationValid   ValidationStatus = "valid"
	ValidationInvalid ValidationStatus = "invalid"
)

// Location is an optional geo point plus free-form address.
type Location struct {
	Address string   `json:"address,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// HasCoordinates reports whether both lat and lng are set.
func (l *Location) HasCoordinates() bool {
	return l != nil && l.Lat != nil && l.Lng != nil
}

// TimeLogs holds lifecycle milestone timestamps.
type TimeLogs struct {
	Created      time.Time  `json:"created"`
	Validated    *time.Time `json:"validated,omitempty"`
	Assigned     *time.Time `json:"assigned,omitempty"`
	WorkingStart *time.Time `json:"working_start,omitempty"`
	Completed    *time.Time `json:"completed,omitempty"`
	Verified     *time.Time `json:"verified,omitempty"`
}

// Assignment points at the team leader currently responsible for the request.
type Assignment struct {
	TeamLeaderID string     `json:"team_leader_id"`
	AssignedBy   string     `json:"assigned_by"`
	AssignedAt   time.Time  `json:"assigned_at"`
	Deadline     *time.Time `json:"deadline,omitempty"`
	Notes        string     `json:"notes,omitempty"`
	CostEstimate *float64   `json:"cost_estimate,omitempty"`
}

// Completion is the flat projection of the most recent completion report.
type Completion struct {
	TaskID      string    `json:"task_id"`
	SubmittedBy string    `json:"submitted_by"`
	SubmittedAt time.Time `json:"submitted_at"`
	CompletionReport
}

// Verification is the flat projection of the most recent report review.
type Verification struct {
	TaskID     string       `json:"task_id"`
	Decision   ReportStatus `json:"decision"`
	VerifiedBy string       `json:"verified_by"`
	VerifiedAt time.Time    `json:"verified_at"`
	Notes      string       `json:"notes,omitempty"`
}

// CitizenFeedback is the owner's one-time rating of the resolution.
type CitizenFeedback struct {
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidationEntry is one triage decision in the append-only validation log.
type ValidationEntry struct {
	Decision    ValidationDecision `json:"decision"`
	Notes       string             `json:"notes,omitempty"`
	ValidatedBy string             `json:"validated_by"`
	ValidatedAt time.Time          `json:"validated_at"`
}

// HistoryEntry is one line of the request timeline. ActorID is nil for system entries.
type HistoryEntry struct {
	ID        string        `json:"id"`
	Status    RequestStatus `json:"status"`
	ActorID   *string       `json:"actor_id,omitempty"`
	ActorRole Role          `json:"actor_role,omitempty"`
	Message   string        `json:"message"`
	Timestamp time.Time     `json:"timestamp"`
}

// Request is the aggregate root of the lifecycle engine.
type Request struct {
	ID            string
	CitizenID     string
	ServiceType   string
	Description   string
	Location      *Location
	DepartmentID  *string
	AttachmentURL string

	Status            RequestStatus
	ValidationStatus  ValidationStatus
	ValidationHistory []ValidationEntry

	Assignment *Assignment
	AssignedTo *string
	TimeLogs   TimeLogs
	Tasks      []Task

	Completion   *Completion
	Verification *Verification

	Supporters   []string
	SupportCount int
	History      []HistoryEntry

	Escalated   bool
	EscalatedAt *time.Time
	EscalatedTo *string

	ParentRequestID *string
	MergedChildren  []string
	Feedback        *CitizenFeedback

	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TaskByID returns a pointer into the task list.
func (r *Request) TaskByID(taskID string) *Task {
	for i := range r.Tasks {
		if r.Tasks[i].ID == taskID {
			return &r.Tasks[i]
		}
	}
	return nil
}

// ActiveTask returns the task currently blocking creation of another one, if any.
func (r *Request) ActiveTask() *Task {
	for i := range r.Tasks {
		if r.Tasks[i].IsActive() {
			return &r.Tasks[i]
		}
	}
	return nil
}

// LatestTask returns the most recently created task.
func (r *Request) LatestTask() *Task {
	if len(r.Tasks) == 0 {
		return nil
	}
	return &r.Tasks[len(r.Tasks)-1]
}

// PendingReportTask returns the task whose submitted report awaits review.
func (r *Request) PendingReportTask() *Task {
	for i := range r.Tasks {
		t := &r.Tasks[i]
		if t.ReportSubmitted && t.ReportStatus == ReportStatusPending {
			return t
		}
	}
	return nil
}

// IsOwner reports whether userID filed the request.
func (r *Request) IsOwner(userID string) bool {
	return r.CitizenID != "" && r.CitizenID == userID
}

// HasSupporter reports whether userID already supports the request.
func (r *Request) HasSupporter(userID string) bool {
	for _, id := range r.Supporters {
		if id == userID {
			return true
		}
	}
	return false
}

// IsAssignedLeader reports whether userID is the current team leader on the request.
func (r *Request) IsAssignedLeader(userID string) bool {
	return r.AssignedTo != nil && *r.AssignedTo == userID
}

// Clone returns a deep copy so callers can mutate without aliasing stored state.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	out := *r
	if r.Location != nil {
		loc := *r.Location
		out.Location = &loc
	}
	out.ValidationHistory = append([]ValidationEntry(nil), r.ValidationHistory...)
	if r.Assignment != nil {
		a := *r.Assignment
		out.Assignment = &a
	}
	out.Tasks = make([]Task, len(r.Tasks))
	for i, t := range r.Tasks {
		t.AssignedMembers = append([]string(nil), t.AssignedMembers...)
		t.StatusHistory = append([]TaskStatusChange(nil), t.StatusHistory...)
		if t.Report != nil {
			rep := *t.Report
			t.Report = &rep
		}
		out.Tasks[i] = t
	}
	if r.Completion != nil {
		c := *r.Completion
		out.Completion = &c
	}
	if r.Verification != nil {
		v := *r.Verification
		out.Verification = &v
	}
	out.Supporters = append([]string(nil), r.Supporters...)
	out.History = append([]HistoryEntry(nil), r.History...)
	out.MergedChildren = append([]string(nil), r.MergedChildren...)
	if r.Feedback != nil {
		f := *r.Feedback
		out.Feedback = &f
	}
	return &out
}

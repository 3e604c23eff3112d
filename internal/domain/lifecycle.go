package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

// Source states accepted by each lifecycle command.
var (
	ValidateSources = []RequestStatus{StatusSubmitted, StatusValidating}
	AssignSources   = []RequestStatus{StatusPendingAssignment, StatusAssigned, StatusReworkRequired}
	VerifySources   = []RequestStatus{StatusCompletedOnSite, StatusInReview}
	FeedbackSources = []RequestStatus{StatusCompleted, StatusClosed}
	TaskableSources = []RequestStatus{StatusPendingAssignment, StatusAssigned, StatusWorking, StatusReworkRequired, StatusCompletedOnSite, StatusInReview}
	// task progress and reports are only accepted while the request is still open
	TaskWorkSources = TaskableSources

	// entering working from these stamps WorkingStart
	workingEntrySources = []RequestStatus{StatusAssigned, StatusPendingAssignment, StatusReworkRequired}
)

// NewRequestInput carries citizen-supplied fields for a new request.
type NewRequestInput struct {
	ServiceType   string
	Description   string
	Location      *Location
	DepartmentID  *string
	AttachmentURL string
}

// NewRequest builds a submitted request owned by the acting citizen.
func NewRequest(in NewRequestInput, actor Actor, now time.Time) (*Request, error) {
	if actor.UserID == "" {
		return nil, apperrors.NewUnauthorized("citizen context required")
	}
	serviceType := strings.TrimSpace(in.ServiceType)
	if serviceType == "" {
		return nil, apperrors.NewValidationError("service_type is required", nil)
	}
	r := &Request{
		CitizenID:        actor.UserID,
		ServiceType:      serviceType,
		Description:      strings.TrimSpace(in.Description),
		Location:         in.Location,
		DepartmentID:     in.DepartmentID,
		AttachmentURL:    in.AttachmentURL,
		Status:           StatusSubmitted,
		ValidationStatus: ValidationPending,
		TimeLogs:         TimeLogs{Created: now},
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	r.appendHistory(&actor, "Request submitted", now)
	return r, nil
}

// Validate records a triage decision and moves to pending_assignment or invalid.
func (r *Request) Validate(decision ValidationDecision, notes string, actor Actor, now time.Time) error {
	if decision != DecisionValid && decision != DecisionInvalid {
		return apperrors.NewValidationError("decision must be one of valid, invalid", map[string]any{"decision": decision})
	}
	if err := r.requireStatus("validate", ValidateSources); err != nil {
		return err
	}
	r.ValidationHistory = append(r.ValidationHistory, ValidationEntry{
		Decision:    decision,
		Notes:       notes,
		ValidatedBy: actor.UserID,
		ValidatedAt: now,
	})
	r.TimeLogs.Validated = &now
	if decision == DecisionValid {
		r.ValidationStatus = ValidationValid
		r.Status = StatusPendingAssignment
		r.appendHistory(&actor, withNotes("Request validated", notes), now)
		return nil
	}
	r.ValidationStatus = ValidationInvalid
	r.Status = StatusInvalid
	r.appendHistory(&actor, withNotes("Request marked invalid", notes), now)
	return nil
}

// AssignmentInput describes a team-leader assignment.
type AssignmentInput struct {
	Deadline     *time.Time
	Notes        string
	CostEstimate *float64
}

// AssignTeamLeader points the request at leaderID. Reassignment overwrites the previous leader.
func (r *Request) AssignTeamLeader(leaderID string, in AssignmentInput, actor Actor, now time.Time) error {
	if leaderID == "" {
		return apperrors.NewValidationError("team leader is required", nil)
	}
	if err := r.requireStatus("assign", AssignSources); err != nil {
		return err
	}
	message := "Assigned to team leader"
	if r.AssignedTo != nil && *r.AssignedTo != leaderID {
		message = fmt.Sprintf("Reassigned from team leader %s", *r.AssignedTo)
	}
	r.Assignment = &Assignment{
		TeamLeaderID: leaderID,
		AssignedBy:   actor.UserID,
		AssignedAt:   now,
		Deadline:     in.Deadline,
		Notes:        in.Notes,
		CostEstimate: in.CostEstimate,
	}
	leader := leaderID
	r.AssignedTo = &leader
	r.Status = StatusAssigned
	r.TimeLogs.Assigned = &now
	r.appendHistory(&actor, withNotes(message, in.Notes), now)
	return nil
}

// RepointLeader moves an active request from its current leader to leaderID without
// changing status. Used when a team's leader is replaced.
func (r *Request) RepointLeader(leaderID string, now time.Time) {
	if r.Assignment == nil {
		r.Assignment = &Assignment{AssignedAt: now}
	}
	r.Assignment.TeamLeaderID = leaderID
	leader := leaderID
	r.AssignedTo = &leader
	r.appendHistory(nil, "Team leader replaced; request transferred", now)
}

// EnsureCanAddTask is the aggregate guard for the single-active-task invariant.
func (r *Request) EnsureCanAddTask() error {
	if err := r.requireStatus("add task", TaskableSources); err != nil {
		return err
	}
	if active := r.ActiveTask(); active != nil {
		return apperrors.NewStateError(
			fmt.Sprintf("task %s is still active; complete it and have its report reviewed first", active.ID),
			string(r.Status), []string{"update_task_status", "submit_completion", "verify_completion"})
	}
	if last := r.LatestTask(); last != nil && last.ReportStatus == ReportStatusAccepted {
		return apperrors.NewStateError("latest task report was accepted; no rework is pending",
			string(r.Status), []string{})
	}
	return nil
}

// AddTask appends a new task after passing the single-active-task guard.
func (r *Request) AddTask(task Task, actor Actor, now time.Time) (*Task, error) {
	if strings.TrimSpace(task.Title) == "" {
		return nil, apperrors.NewValidationError("task title is required", nil)
	}
	if task.AssignedTeamID == nil && task.AssignedTo == nil {
		return nil, apperrors.NewValidationError("assignedTeam or assignedTo is required", nil)
	}
	if err := r.EnsureCanAddTask(); err != nil {
		return nil, err
	}
	task.ID = uuid.NewString()
	task.Status = TaskStatusTodo
	task.CreatedBy = actor.UserID
	task.CreatedAt = now
	task.StatusHistory = nil
	task.ReportSubmitted = false
	task.ReportStatus = ""
	if task.AssignedMembers == nil {
		task.AssignedMembers = []string{}
	}
	r.Tasks = append(r.Tasks, task)

	if statusIn(r.Status, workingEntrySources) {
		r.Status = StatusWorking
		if r.TimeLogs.WorkingStart == nil {
			r.TimeLogs.WorkingStart = &now
		}
	}
	r.appendHistory(&actor, fmt.Sprintf("Task created: %s", task.Title), now)
	return &r.Tasks[len(r.Tasks)-1], nil
}

// TransitionTask moves a task through its own state machine on behalf of actor.
func (r *Request) TransitionTask(taskID string, next TaskStatus, note string, actor Actor, now time.Time) (*Task, error) {
	task := r.TaskByID(taskID)
	if task == nil {
		return nil, apperrors.NewNotFound("task", map[string]any{"task_id": taskID})
	}
	if err := r.requireStatus("update a task on", TaskWorkSources); err != nil {
		return nil, err
	}
	if err := r.authorizeTaskUpdate(task, actor); err != nil {
		return nil, err
	}
	from := task.Status
	if err := task.Transition(next, actor.UserID, note, now); err != nil {
		return nil, err
	}
	r.appendHistory(&actor, fmt.Sprintf("Task %q moved from %s to %s", task.Title, from, next), now)
	return task, nil
}

func (r *Request) authorizeTaskUpdate(task *Task, actor Actor) error {
	switch {
	case actor.Role.IsAdmin(), actor.Role == RoleDeptHead:
		return nil
	case actor.Role == RoleTeamMember:
		if !task.HasMember(actor.UserID) {
			return apperrors.NewForbidden("team member is not assigned to this task")
		}
		return nil
	case actor.Role == RoleTeamLeader:
		if !r.IsAssignedLeader(actor.UserID) && task.CreatedBy != actor.UserID {
			return apperrors.NewForbidden("team leader is not responsible for this request")
		}
		return nil
	default:
		return apperrors.NewForbidden("role cannot update task status")
	}
}

// SubmitCompletion files the completion report for a completed task.
func (r *Request) SubmitCompletion(taskID string, report CompletionReport, actor Actor, now time.Time) (*Task, error) {
	task := r.TaskByID(taskID)
	if task == nil {
		return nil, apperrors.NewNotFound("task", map[string]any{"task_id": taskID})
	}
	if err := r.requireStatus("submit completion for", TaskWorkSources); err != nil {
		return nil, err
	}
	if task.Status != TaskStatusCompleted {
		return nil, apperrors.NewStateError(
			fmt.Sprintf("task must be completed before submitting a report (current: %s)", task.Status),
			string(task.Status), taskStatusStrings(AllowedTaskTransitions(task.Status)))
	}
	if task.ReportSubmitted {
		return nil, apperrors.NewStateError("completion report already submitted for this task",
			string(r.Status), []string{"verify_completion"})
	}
	task.ReportSubmitted = true
	task.ReportStatus = ReportStatusPending
	task.ReportSubmittedAt = &now
	task.ReportReviewedBy = nil
	task.ReportReviewedAt = nil
	task.ReportReviewNotes = ""
	rep := report
	task.Report = &rep

	r.Completion = &Completion{
		TaskID:           task.ID,
		SubmittedBy:      actor.UserID,
		SubmittedAt:      now,
		CompletionReport: report,
	}
	r.Status = StatusCompletedOnSite
	r.TimeLogs.Completed = &now
	r.appendHistory(&actor, withNotes("Completion report submitted", report.Notes), now)
	return task, nil
}

// VerifyCompletion reviews the pending completion report.
func (r *Request) VerifyCompletion(decision ReportStatus, notes string, actor Actor, now time.Time) (*Task, error) {
	if decision != ReportStatusAccepted && decision != ReportStatusRejected {
		return nil, apperrors.NewValidationError("decision must be one of accepted, rejected", map[string]any{"decision": decision})
	}
	if err := r.requireStatus("verify completion", VerifySources); err != nil {
		return nil, err
	}
	task := r.PendingReportTask()
	if task == nil {
		return nil, apperrors.NewStateError("no completion report is awaiting review", string(r.Status), []string{})
	}
	reviewer := actor.UserID
	task.ReportStatus = decision
	task.ReportReviewedBy = &reviewer
	task.ReportReviewedAt = &now
	task.ReportReviewNotes = notes

	r.Verification = &Verification{
		TaskID:     task.ID,
		Decision:   decision,
		VerifiedBy: reviewer,
		VerifiedAt: now,
		Notes:      notes,
	}
	r.TimeLogs.Verified = &now
	if decision == ReportStatusAccepted {
		r.Status = StatusCompleted
		r.appendHistory(&actor, withNotes("Completion verified", notes), now)
	} else {
		r.Status = StatusReworkRequired
		r.appendHistory(&actor, withNotes("Completion rejected; rework required", notes), now)
	}
	return task, nil
}

// AddFeedback records the owner's one-time rating and closes a completed request.
func (r *Request) AddFeedback(rating int, comment string, actor Actor, now time.Time) error {
	if !r.IsOwner(actor.UserID) {
		return apperrors.NewForbidden("only the citizen who filed the request can leave feedback")
	}
	if rating < 1 || rating > 5 {
		return apperrors.NewValidationError("rating must be between 1 and 5", map[string]any{"rating": rating})
	}
	if err := r.requireStatus("add feedback", FeedbackSources); err != nil {
		return err
	}
	if r.Feedback != nil {
		return apperrors.NewValidationError("feedback already submitted", nil)
	}
	r.Feedback = &CitizenFeedback{Rating: rating, Comment: strings.TrimSpace(comment), CreatedAt: now}
	if r.Status == StatusCompleted {
		r.Status = StatusClosed
	}
	r.appendHistory(&actor, fmt.Sprintf("Citizen feedback received (rating %d)", rating), now)
	return nil
}

// Support registers actor as a supporter of the request.
func (r *Request) Support(actor Actor, now time.Time) error {
	if actor.UserID == "" {
		return apperrors.NewUnauthorized("citizen context required")
	}
	if r.IsOwner(actor.UserID) {
		return apperrors.NewValidationError("you cannot support your own request", nil)
	}
	if r.HasSupporter(actor.UserID) {
		return apperrors.NewValidationError("you already support this request", nil)
	}
	r.Supporters = append(r.Supporters, actor.UserID)
	r.SupportCount = len(r.Supporters)
	r.appendHistory(&actor, "Supported", now)
	return nil
}

// MarkMergedInto turns r into a duplicate child of parentID.
func (r *Request) MarkMergedInto(parentID string, actor Actor, now time.Time) error {
	if parentID == r.ID {
		return apperrors.NewValidationError("a request cannot be merged into itself", map[string]any{"request_id": r.ID})
	}
	if r.Status == StatusMerged {
		return apperrors.NewStateError(fmt.Sprintf("request %s is already merged", r.ID), string(r.Status), []string{})
	}
	if r.Status.IsResolved() {
		return apperrors.NewStateError(fmt.Sprintf("request %s is %s and cannot be merged", r.ID, r.Status), string(r.Status), []string{})
	}
	if len(r.MergedChildren) > 0 {
		return apperrors.NewValidationError("request already has merged duplicates and cannot become a child",
			map[string]any{"request_id": r.ID})
	}
	parent := parentID
	r.ParentRequestID = &parent
	r.Status = StatusMerged
	r.appendHistory(&actor, fmt.Sprintf("Merged into request %s", parentID), now)
	return nil
}

// AbsorbChildren unions childIDs into the parent's merged set.
func (r *Request) AbsorbChildren(childIDs []string, actor Actor, now time.Time) error {
	if r.Status == StatusMerged {
		return apperrors.NewStateError("a merged request cannot absorb duplicates", string(r.Status), []string{})
	}
	added := 0
	for _, id := range childIDs {
		if !containsString(r.MergedChildren, id) {
			r.MergedChildren = append(r.MergedChildren, id)
			added++
		}
	}
	if added > 0 {
		r.appendHistory(&actor, fmt.Sprintf("Merged %d duplicate request(s)", added), now)
	}
	return nil
}

// Escalate flags an SLA breach once; it reports whether anything changed.
func (r *Request) Escalate(eval SLAEvaluation, headID *string, now time.Time) bool {
	if !eval.Breached || r.Escalated {
		return false
	}
	r.Escalated = true
	r.EscalatedAt = &now
	if headID != nil {
		head := *headID
		r.EscalatedTo = &head
	}
	r.appendHistory(nil, fmt.Sprintf("SLA breached after %.1f hours (limit %d); escalated to department head",
		eval.HoursElapsed, eval.SLAHours), now)
	return true
}

func (r *Request) requireStatus(operation string, allowed []RequestStatus) error {
	if statusIn(r.Status, allowed) {
		return nil
	}
	names := make([]string, 0, len(allowed))
	for _, s := range allowed {
		names = append(names, string(s))
	}
	return apperrors.NewStateError(
		fmt.Sprintf("cannot %s a request in status %s; allowed from: %s", operation, r.Status, strings.Join(names, ", ")),
		string(r.Status), names)
}

// appendHistory keeps timestamps monotonic so the timeline never goes backwards.
func (r *Request) appendHistory(actor *Actor, message string, now time.Time) {
	if n := len(r.History); n > 0 && now.Before(r.History[n-1].Timestamp) {
		now = r.History[n-1].Timestamp
	}
	entry := HistoryEntry{
		ID:        uuid.NewString(),
		Status:    r.Status,
		Message:   message,
		Timestamp: now,
	}
	if actor != nil {
		id := actor.UserID
		entry.ActorID = &id
		entry.ActorRole = actor.Role
	}
	r.History = append(r.History, entry)
	r.UpdatedAt = now
}

func withNotes(message, notes string) string {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return message
	}
	return message + ": " + notes
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

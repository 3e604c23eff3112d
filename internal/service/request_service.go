package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-service/internal/config"
	"github.com/spec-kit/civic-service/internal/domain"
	"github.com/spec-kit/civic-service/internal/events"
	"github.com/spec-kit/civic-service/internal/observability"
	"github.com/spec-kit/civic-service/internal/persistence"
	"github.com/spec-kit/civic-service/internal/repository"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

// EvidenceStore persists completion evidence files.
type EvidenceStore interface {
	Put(ctx context.Context, requestID, fileName string, content io.Reader) (persistence.StoredFile, error)
	Delete(ctx context.Context, key string) error
}

var allowedEvidenceTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
	"video/mp4":       true,
}

// RequestService coordinates the request lifecycle.
type RequestService struct {
	store      repository.Store
	mut        *mutator
	evidence   EvidenceStore
	dispatcher events.Dispatcher
	logger     *zap.Logger
	maxFiles   int
}

// RequestDependencies bundles collaborators of the request service.
type RequestDependencies struct {
	Store      repository.Store
	Locker     Locker
	Evidence   EvidenceStore
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// RequestListFilter describes listing parameters.
type RequestListFilter struct {
	CitizenID     *string
	DepartmentID  *string
	AssignedTo    *string
	Statuses      []domain.RequestStatus
	Escalated     *bool
	MyTeamTasks   bool
	IncludeMerged bool
	Limit         int
	Offset        int
}

// AssignInput identifies the team leader by id or by email.
type AssignInput struct {
	TeamLeaderID    string
	TeamLeaderEmail string
	Deadline        *time.Time
	Notes           string
	CostEstimate    *float64
}

// TaskInput describes a new task.
type TaskInput struct {
	Title              string
	AssignedTeamID     *string
	AssignedTo         *string
	AssignedMembers    []string
	EstimatedTimeHours float64
	RequiredWorkers    int
	Deadline           *time.Time
	Instructions       string
	Notes              string
}

// CompletionInput is the completion report body without files.
type CompletionInput struct {
	TimeTakenHours float64
	CostIncurred   float64
	MaterialsUsed  []string
	MemberNames    []string
	Notes          string
}

// EvidenceUpload is one file attached to a completion report.
type EvidenceUpload struct {
	FileName string
	MimeType string
	Size     int64
	Content  io.Reader
}

// NewRequestService constructs the service.
func NewRequestService(cfg config.Config, deps RequestDependencies) *RequestService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestService{
		store:      deps.Store,
		mut:        newMutator(cfg.Lifecycle, deps.Store, deps.Locker, logger, deps.Clock),
		evidence:   deps.Evidence,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		maxFiles:   cfg.Evidence.MaxFiles,
	}
}

// CreateRequest files a new request for the acting citizen.
func (s *RequestService) CreateRequest(ctx context.Context, actor domain.Actor, in domain.NewRequestInput) (*domain.Request, error) {
	repos := s.store.Repos()
	if in.DepartmentID != nil && *in.DepartmentID != "" {
		dept, err := repos.Departments.GetByID(ctx, *in.DepartmentID)
		if err != nil {
			if repository.IsNotFound(err) {
				return nil, apperrors.NewNotFound("department", map[string]any{"department_id": *in.DepartmentID})
			}
			return nil, apperrors.MapError(err)
		}
		if !dept.IsActive {
			return nil, apperrors.NewValidationError("department is inactive", map[string]any{"department_id": dept.ID})
		}
	} else {
		in.DepartmentID = nil
	}

	req, err := domain.NewRequest(in, actor, s.mut.now())
	if err != nil {
		return nil, err
	}
	if err := repos.Requests.Create(ctx, req); err != nil {
		return nil, apperrors.MapError(err)
	}
	s.record("create", req)
	s.publish(ctx, events.EventRequestCreated, req, &actor, events.StatusChangedPayload{
		NewStatus: req.Status,
		CitizenID: req.CitizenID,
	})
	return req, nil
}

// GetRequest returns a request by id.
func (s *RequestService) GetRequest(ctx context.Context, requestID string) (*domain.Request, error) {
	req, err := loadRequest(ctx, s.store.Repos(), requestID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return req, nil
}

// ListRequests lists requests visible to actor.
func (s *RequestService) ListRequests(ctx context.Context, actor domain.Actor, filter RequestListFilter) ([]*domain.Request, error) {
	repoFilter := repository.RequestFilter{
		CitizenID:     filter.CitizenID,
		DepartmentID:  filter.DepartmentID,
		AssignedTo:    filter.AssignedTo,
		Statuses:      filter.Statuses,
		Escalated:     filter.Escalated,
		IncludeMerged: filter.IncludeMerged,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
	}
	switch actor.Role {
	case domain.RoleCitizen:
		repoFilter.CitizenID = &actor.UserID
	case domain.RoleDeptHead:
		if actor.DepartmentID != nil {
			repoFilter.DepartmentID = actor.DepartmentID
		}
	}

	if filter.MyTeamTasks {
		teamIDs, err := s.teamIDsFor(ctx, actor.UserID)
		if err != nil {
			return nil, apperrors.MapError(err)
		}
		member := actor.UserID
		repoFilter.TaskMemberID = &member
		repoFilter.TaskTeamIDs = teamIDs
	}

	list, err := s.store.Repos().Requests.List(ctx, repoFilter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

func (s *RequestService) teamIDsFor(ctx context.Context, userID string) ([]string, error) {
	repos := s.store.Repos()
	teams, err := repos.Teams.ListByMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(teams)+1)
	for _, team := range teams {
		ids = append(ids, team.ID)
	}
	led, err := repos.Teams.GetByLeader(ctx, userID)
	switch {
	case err == nil:
		ids = append(ids, led.ID)
	case !repository.IsNotFound(err):
		return nil, err
	}
	return dedupe(ids), nil
}

// ValidateRequest records the department head's triage decision.
func (s *RequestService) ValidateRequest(ctx context.Context, actor domain.Actor, requestID string, decision domain.ValidationDecision, notes string) (*domain.Request, error) {
	var old domain.RequestStatus
	req, err := s.mut.mutate(ctx, "validate", requestID, func(req *domain.Request, now time.Time) error {
		if err := authorizeDepartment(req, actor); err != nil {
			return err
		}
		old = req.Status
		return req.Validate(decision, notes, actor, now)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.record("validate", req)
	s.publish(ctx, events.EventRequestValidated, req, &actor, events.StatusChangedPayload{
		OldStatus: old,
		NewStatus: req.Status,
		CitizenID: req.CitizenID,
		Message:   notes,
	})
	return req, nil
}

// AssignTeamLeader points the request at a team leader.
func (s *RequestService) AssignTeamLeader(ctx context.Context, actor domain.Actor, requestID string, in AssignInput) (*domain.Request, error) {
	leader, err := s.resolveLeader(ctx, in)
	if err != nil {
		return nil, err
	}
	req, err := s.mut.mutate(ctx, "assign", requestID, func(req *domain.Request, now time.Time) error {
		if err := authorizeDepartment(req, actor); err != nil {
			return err
		}
		return req.AssignTeamLeader(leader.ID, domain.AssignmentInput{
			Deadline:     in.Deadline,
			Notes:        in.Notes,
			CostEstimate: in.CostEstimate,
		}, actor, now)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.record("assign", req)
	s.publish(ctx, events.EventRequestAssigned, req, &actor, events.RequestAssignedPayload{
		TeamLeaderID: leader.ID,
		Deadline:     in.Deadline,
	})
	return req, nil
}

func (s *RequestService) resolveLeader(ctx context.Context, in AssignInput) (*domain.User, error) {
	users := s.store.Repos().Users
	var (
		leader *domain.User
		err    error
	)
	switch {
	case strings.TrimSpace(in.TeamLeaderID) != "":
		leader, err = users.GetByID(ctx, strings.TrimSpace(in.TeamLeaderID))
	case strings.TrimSpace(in.TeamLeaderEmail) != "":
		leader, err = users.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(in.TeamLeaderEmail)))
		if err == nil && leader.Role != domain.RoleTeamLeader {
			return nil, apperrors.NewNotFound("team leader", map[string]any{"email": in.TeamLeaderEmail})
		}
	default:
		return nil, apperrors.NewValidationError("team_leader_id or team_leader_email is required", nil)
	}
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("team leader", map[string]any{
				"team_leader_id":    in.TeamLeaderID,
				"team_leader_email": in.TeamLeaderEmail,
			})
		}
		return nil, apperrors.MapError(err)
	}
	if leader.Role != domain.RoleTeamLeader {
		return nil, apperrors.NewValidationError("user is not a team leader", map[string]any{"user_id": leader.ID, "role": leader.Role})
	}
	if !leader.IsActive {
		return nil, apperrors.NewValidationError("team leader is deactivated", map[string]any{"user_id": leader.ID})
	}
	return leader, nil
}

// AddTask creates the next task on a request.
func (s *RequestService) AddTask(ctx context.Context, actor domain.Actor, requestID string, in TaskInput) (*domain.Request, *domain.Task, error) {
	if err := s.checkTaskAssignees(ctx, in); err != nil {
		return nil, nil, err
	}
	var created domain.Task
	req, err := s.mut.mutate(ctx, "add_task", requestID, func(req *domain.Request, now time.Time) error {
		if actor.Role == domain.RoleTeamLeader && !req.IsAssignedLeader(actor.UserID) {
			return apperrors.NewForbidden("request is not assigned to you")
		}
		task, err := req.AddTask(domain.Task{
			Title:              strings.TrimSpace(in.Title),
			AssignedTeamID:     in.AssignedTeamID,
			AssignedTo:         in.AssignedTo,
			AssignedMembers:    dedupe(in.AssignedMembers),
			EstimatedTimeHours: in.EstimatedTimeHours,
			RequiredWorkers:    in.RequiredWorkers,
			Deadline:           in.Deadline,
			Instructions:       in.Instructions,
			Notes:              in.Notes,
		}, actor, now)
		if err != nil {
			return err
		}
		created = *task
		return nil
	})
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	s.record("add_task", req)
	observability.TaskTransitions.WithLabelValues(string(created.Status)).Inc()
	s.publish(ctx, events.EventTaskCreated, req, &actor, taskPayload(&created))
	return req, &created, nil
}

func (s *RequestService) checkTaskAssignees(ctx context.Context, in TaskInput) error {
	repos := s.store.Repos()
	if in.AssignedTeamID != nil {
		team, err := repos.Teams.GetByID(ctx, *in.AssignedTeamID)
		if err != nil {
			if repository.IsNotFound(err) {
				return apperrors.NewValidationError("assigned team does not exist", map[string]any{"team_id": *in.AssignedTeamID})
			}
			return apperrors.MapError(err)
		}
		if !team.IsActive {
			return apperrors.NewValidationError("assigned team is inactive", map[string]any{"team_id": team.ID})
		}
		var outsiders []string
		for _, member := range in.AssignedMembers {
			if !team.HasMember(member) {
				outsiders = append(outsiders, member)
			}
		}
		if len(outsiders) > 0 {
			return apperrors.NewValidationError("assigned members must belong to the assigned team",
				map[string]any{"team_id": team.ID, "not_members": outsiders})
		}
	}
	if in.AssignedTo != nil {
		if _, err := repos.Users.GetByID(ctx, *in.AssignedTo); err != nil {
			if repository.IsNotFound(err) {
				return apperrors.NewNotFound("user", map[string]any{"user_id": *in.AssignedTo})
			}
			return apperrors.MapError(err)
		}
	}
	return nil
}

// UpdateTaskStatus moves a task through its sub-state machine.
func (s *RequestService) UpdateTaskStatus(ctx context.Context, actor domain.Actor, requestID, taskID string, next domain.TaskStatus, note string) (*domain.Request, *domain.Task, error) {
	var updated domain.Task
	req, err := s.mut.mutate(ctx, "update_task_status", requestID, func(req *domain.Request, now time.Time) error {
		task, err := req.TransitionTask(taskID, next, note, actor, now)
		if err != nil {
			return err
		}
		updated = *task
		return nil
	})
	if err != nil {
		return nil, nil, apperrors.MapError(err)
	}
	observability.TaskTransitions.WithLabelValues(string(updated.Status)).Inc()
	s.publish(ctx, events.EventTaskStatusChanged, req, &actor, taskPayload(&updated))
	return req, &updated, nil
}

// SubmitCompletion stores evidence files and files the completion report for a task.
func (s *RequestService) SubmitCompletion(ctx context.Context, actor domain.Actor, requestID, taskID string, in CompletionInput, files []EvidenceUpload) (*domain.Request, error) {
	current, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	// dry run so a doomed submission never writes files
	dryRun := current.Clone()
	if err := authorizeCompletion(dryRun, actor); err != nil {
		return nil, err
	}
	if _, err := dryRun.SubmitCompletion(taskID, domain.CompletionReport{}, actor, s.mut.now()); err != nil {
		return nil, err
	}
	if err := s.checkEvidence(files); err != nil {
		return nil, err
	}

	stored, err := s.storeEvidence(ctx, requestID, files)
	if err != nil {
		return nil, err
	}
	urls := make([]string, 0, len(stored))
	for _, f := range stored {
		urls = append(urls, f.URL)
	}

	report := domain.CompletionReport{
		TimeTakenHours: in.TimeTakenHours,
		CostIncurred:   in.CostIncurred,
		MaterialsUsed:  in.MaterialsUsed,
		MemberNames:    in.MemberNames,
		Notes:          strings.TrimSpace(in.Notes),
		EvidenceURLs:   urls,
	}
	var submitted domain.Task
	req, err := s.mut.mutate(ctx, "submit_completion", requestID, func(req *domain.Request, now time.Time) error {
		if err := authorizeCompletion(req, actor); err != nil {
			return err
		}
		task, err := req.SubmitCompletion(taskID, report, actor, now)
		if err != nil {
			return err
		}
		submitted = *task
		return nil
	})
	if err != nil {
		s.discardEvidence(ctx, stored)
		return nil, apperrors.MapError(err)
	}

	evidenceRepo := s.store.Repos().Evidence
	for i, f := range stored {
		record := &domain.Evidence{
			RequestID:  requestID,
			TaskID:     taskID,
			StorageKey: f.Key,
			URL:        f.URL,
			FileName:   files[i].FileName,
			MimeType:   files[i].MimeType,
			SizeBytes:  f.Size,
			UploadedBy: actor.UserID,
		}
		if err := evidenceRepo.Create(ctx, record); err != nil {
			s.logger.Warn("failed to persist evidence metadata",
				zap.String("request_id", requestID),
				zap.String("storage_key", f.Key),
				zap.Error(err))
		}
	}

	s.record("submit_completion", req)
	s.publish(ctx, events.EventCompletionSubmitted, req, &actor, taskPayload(&submitted))
	return req, nil
}

func authorizeCompletion(req *domain.Request, actor domain.Actor) error {
	if actor.Role == domain.RoleTeamLeader && !req.IsAssignedLeader(actor.UserID) {
		return apperrors.NewForbidden("request is not assigned to you")
	}
	return nil
}

func (s *RequestService) checkEvidence(files []EvidenceUpload) error {
	if s.maxFiles > 0 && len(files) > s.maxFiles {
		return apperrors.NewValidationError("too many evidence files", map[string]any{"max_files": s.maxFiles})
	}
	if len(files) > 0 && s.evidence == nil {
		return apperrors.NewValidationError("evidence uploads are not enabled", nil)
	}
	for i := range files {
		f := &files[i]
		detected, err := sniffEvidence(f)
		if err != nil {
			return apperrors.NewValidationError("unreadable evidence file", map[string]any{"file_name": f.FileName})
		}
		if !allowedEvidenceTypes[detected] {
			return apperrors.NewValidationError("unsupported evidence file type",
				map[string]any{"file_name": f.FileName, "mime_type": f.MimeType, "detected_type": detected})
		}
		f.MimeType = detected
	}
	return nil
}

// sniffEvidence classifies an upload by its leading bytes; the declared type is ignored.
// The reader is rewound so the full content still reaches the evidence store.
func sniffEvidence(f *EvidenceUpload) (string, error) {
	if f.Content == nil {
		return "", errors.New("evidence content missing")
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	head = head[:n]
	f.Content = io.MultiReader(bytes.NewReader(head), f.Content)
	detected := http.DetectContentType(head)
	return strings.ToLower(strings.TrimSpace(strings.SplitN(detected, ";", 2)[0])), nil
}

func (s *RequestService) storeEvidence(ctx context.Context, requestID string, files []EvidenceUpload) ([]persistence.StoredFile, error) {
	stored := make([]persistence.StoredFile, 0, len(files))
	for _, f := range files {
		file, err := s.evidence.Put(ctx, requestID, f.FileName, f.Content)
		if err != nil {
			s.discardEvidence(ctx, stored)
			if errors.Is(err, persistence.ErrEvidenceTooLarge) {
				return nil, apperrors.NewValidationError("evidence file too large", map[string]any{"file_name": f.FileName})
			}
			return nil, apperrors.MapError(err)
		}
		stored = append(stored, file)
	}
	return stored, nil
}

func (s *RequestService) discardEvidence(ctx context.Context, stored []persistence.StoredFile) {
	for _, f := range stored {
		if err := s.evidence.Delete(context.WithoutCancel(ctx), f.Key); err != nil {
			s.logger.Warn("failed to remove orphaned evidence", zap.String("storage_key", f.Key), zap.Error(err))
		}
	}
}

// VerifyCompletion accepts or rejects the pending completion report.
func (s *RequestService) VerifyCompletion(ctx context.Context, actor domain.Actor, requestID string, decision domain.ReportStatus, notes string) (*domain.Request, error) {
	var taskID string
	req, err := s.mut.mutate(ctx, "verify_completion", requestID, func(req *domain.Request, now time.Time) error {
		if err := authorizeDepartment(req, actor); err != nil {
			return err
		}
		task, err := req.VerifyCompletion(decision, notes, actor, now)
		if err != nil {
			return err
		}
		taskID = task.ID
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.record("verify_completion", req)
	s.publish(ctx, events.EventCompletionVerified, req, &actor, events.CompletionVerifiedPayload{
		TaskID:   taskID,
		Decision: decision,
		Notes:    notes,
	})
	return req, nil
}

// AddCitizenFeedback records the owner's rating.
func (s *RequestService) AddCitizenFeedback(ctx context.Context, actor domain.Actor, requestID string, rating int, comment string) (*domain.Request, error) {
	var old domain.RequestStatus
	req, err := s.mut.mutate(ctx, "feedback", requestID, func(req *domain.Request, now time.Time) error {
		old = req.Status
		return req.AddFeedback(rating, comment, actor, now)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.record("feedback", req)
	s.publish(ctx, events.EventFeedbackAdded, req, &actor, events.StatusChangedPayload{
		OldStatus: old,
		NewStatus: req.Status,
		CitizenID: req.CitizenID,
	})
	return req, nil
}

// SupportRequest registers the actor as a supporter.
func (s *RequestService) SupportRequest(ctx context.Context, actor domain.Actor, requestID string) (*domain.Request, error) {
	req, err := s.mut.mutate(ctx, "support", requestID, func(req *domain.Request, now time.Time) error {
		return req.Support(actor, now)
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.record("support", req)
	s.publish(ctx, events.EventRequestSupported, req, &actor, nil)
	return req, nil
}

// MergeRequests folds duplicate children into parentID in one transaction.
func (s *RequestService) MergeRequests(ctx context.Context, actor domain.Actor, parentID string, childIDs []string) (*domain.Request, error) {
	childIDs = dedupe(childIDs)
	if strings.TrimSpace(parentID) == "" || len(childIDs) == 0 {
		return nil, apperrors.NewValidationError("parent_id and at least one child_id are required", nil)
	}

	var parent *domain.Request
	ids := append([]string{parentID}, childIDs...)
	err := s.mut.run(ctx, "merge", ids, true, func(ctx context.Context, repos repository.Repositories) error {
		now := s.mut.now()
		p, err := loadRequest(ctx, repos, parentID)
		if err != nil {
			return err
		}
		if err := authorizeDepartment(p, actor); err != nil {
			return err
		}
		for _, childID := range childIDs {
			child, err := loadRequest(ctx, repos, childID)
			if err != nil {
				return err
			}
			if err := authorizeDepartment(child, actor); err != nil {
				return err
			}
			if err := child.MarkMergedInto(parentID, actor, now); err != nil {
				return err
			}
			if err := repos.Requests.Save(ctx, child); err != nil {
				return err
			}
		}
		if err := p.AbsorbChildren(childIDs, actor, now); err != nil {
			return err
		}
		if err := repos.Requests.Save(ctx, p); err != nil {
			return err
		}
		parent = p
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	for range childIDs {
		observability.RecordTransition("merge", string(domain.StatusMerged))
	}
	s.publish(ctx, events.EventRequestsMerged, parent, &actor, events.RequestsMergedPayload{
		ParentID: parentID,
		ChildIDs: childIDs,
	})
	return parent, nil
}

// FindSimilarRequests returns open requests resembling q, best match first.
func (s *RequestService) FindSimilarRequests(ctx context.Context, q domain.SimilarQuery) ([]*domain.Request, error) {
	q.ServiceType = strings.TrimSpace(q.ServiceType)
	if q.ServiceType == "" {
		return nil, apperrors.NewValidationError("service_type is required", nil)
	}
	if (q.Lat == nil) != (q.Lng == nil) {
		return nil, apperrors.NewValidationError("lat and lng must be supplied together", nil)
	}
	list, err := s.store.Repos().Requests.FindSimilar(ctx, q)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// GetHistory returns the request timeline.
func (s *RequestService) GetHistory(ctx context.Context, requestID string) ([]domain.HistoryEntry, error) {
	req, err := s.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	return req.History, nil
}

// ListEvidence returns stored evidence metadata for a request.
func (s *RequestService) ListEvidence(ctx context.Context, requestID string) ([]domain.Evidence, error) {
	if _, err := s.GetRequest(ctx, requestID); err != nil {
		return nil, err
	}
	list, err := s.store.Repos().Evidence.ListByRequest(ctx, requestID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// DeleteRequest hard-deletes a request. Administrative only.
func (s *RequestService) DeleteRequest(ctx context.Context, actor domain.Actor, requestID string) error {
	if !actor.Role.IsAdmin() {
		return apperrors.NewForbidden("admin role required")
	}
	if err := s.store.Repos().Requests.Delete(ctx, requestID); err != nil {
		if repository.IsNotFound(err) {
			return apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		}
		return apperrors.MapError(err)
	}
	s.logger.Info("request deleted", zap.String("request_id", requestID), zap.String("actor_id", actor.UserID))
	return nil
}

// authorizeDepartment keeps department heads inside their own department.
func authorizeDepartment(req *domain.Request, actor domain.Actor) error {
	if actor.Role != domain.RoleDeptHead || req.DepartmentID == nil {
		return nil
	}
	if actor.DepartmentID == nil || *actor.DepartmentID != *req.DepartmentID {
		return apperrors.NewForbidden("request belongs to another department")
	}
	return nil
}

func (s *RequestService) record(operation string, req *domain.Request) {
	observability.RecordTransition(operation, string(req.Status))
}

func (s *RequestService) publish(ctx context.Context, eventType events.EventType, req *domain.Request, actor *domain.Actor, payload any) {
	publishEvent(ctx, s.dispatcher, events.New(eventType, req.ID, actor, s.mut.now(), payload))
}

func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	_ = dispatcher.Publish(ctx, event)
}

func taskPayload(t *domain.Task) events.TaskPayload {
	return events.TaskPayload{
		TaskID:          t.ID,
		Title:           t.Title,
		Status:          t.Status,
		AssignedTeamID:  t.AssignedTeamID,
		AssignedMembers: t.AssignedMembers,
	}
}

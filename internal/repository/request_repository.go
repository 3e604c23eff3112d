package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/civic-service/internal/domain"
)

// RequestFilter captures list parameters for requests.
type RequestFilter struct {
	CitizenID       *string
	DepartmentID    *string
	AssignedTo      *string
	Statuses        []domain.RequestStatus
	ExcludeStatuses []domain.RequestStatus
	Escalated       *bool
	// TaskMemberID and TaskTeamIDs select requests with a task for that member or
	// any of those teams; both set are OR-ed.
	TaskMemberID  *string
	TaskTeamIDs   []string
	IncludeMerged bool
	Limit         int
	Offset        int
}

// RequestRepository encapsulates persistence of the Request aggregate.
type RequestRepository interface {
	Create(ctx context.Context, req *domain.Request) error
	// Save writes req only if the stored version still equals req.Version, then bumps it.
	Save(ctx context.Context, req *domain.Request) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Request, error)
	List(ctx context.Context, filter RequestFilter) ([]*domain.Request, error)
	ListUnresolved(ctx context.Context, departmentID *string) ([]*domain.Request, error)
	ListActiveByLeader(ctx context.Context, leaderID string) ([]*domain.Request, error)
	FindSimilar(ctx context.Context, q domain.SimilarQuery) ([]*domain.Request, error)
}

type requestRepository struct {
	db DBTX
}

// NewRequestRepository instantiates repository.
func NewRequestRepository(db DBTX) RequestRepository {
	return &requestRepository{db: db}
}

const requestColumns = `id, citizen_id, service_type, description, location, department_id, attachment_url,
        status, validation_status, validation_history, assignment, assigned_to, time_logs, tasks,
        completion, verification, supporters, support_count, history, escalated, escalated_at,
        escalated_to, parent_request_id, merged_children, feedback, version, created_at, updated_at`

func (r *requestRepository) Create(ctx context.Context, req *domain.Request) error {
	const query = `
        INSERT INTO requests (citizen_id, service_type, description, location, department_id, attachment_url,
            status, validation_status, validation_history, assignment, assigned_to, time_logs, tasks,
            completion, verification, supporters, support_count, history, escalated, escalated_at,
            escalated_to, parent_request_id, merged_children, feedback, created_at, updated_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
        RETURNING id, version`
	normalize(req)
	return r.db.QueryRow(ctx, query,
		req.CitizenID,
		req.ServiceType,
		req.Description,
		req.Location,
		req.DepartmentID,
		req.AttachmentURL,
		req.Status,
		req.ValidationStatus,
		req.ValidationHistory,
		req.Assignment,
		req.AssignedTo,
		req.TimeLogs,
		req.Tasks,
		req.Completion,
		req.Verification,
		req.Supporters,
		req.SupportCount,
		req.History,
		req.Escalated,
		req.EscalatedAt,
		req.EscalatedTo,
		req.ParentRequestID,
		req.MergedChildren,
		req.Feedback,
		req.CreatedAt,
		req.UpdatedAt,
	).Scan(&req.ID, &req.Version)
}

func (r *requestRepository) Save(ctx context.Context, req *domain.Request) error {
	const query = `
        UPDATE requests SET department_id=$1, status=$2, validation_status=$3, validation_history=$4,
            assignment=$5, assigned_to=$6, time_logs=$7, tasks=$8, completion=$9, verification=$10,
            supporters=$11, support_count=$12, history=$13, escalated=$14, escalated_at=$15,
            escalated_to=$16, parent_request_id=$17, merged_children=$18, feedback=$19,
            updated_at=$20, version=version+1
        WHERE id=$21 AND version=$22
        RETURNING version`
	normalize(req)
	err := r.db.QueryRow(ctx, query,
		req.DepartmentID,
		req.Status,
		req.ValidationStatus,
		req.ValidationHistory,
		req.Assignment,
		req.AssignedTo,
		req.TimeLogs,
		req.Tasks,
		req.Completion,
		req.Verification,
		req.Supporters,
		req.SupportCount,
		req.History,
		req.Escalated,
		req.EscalatedAt,
		req.EscalatedTo,
		req.ParentRequestID,
		req.MergedChildren,
		req.Feedback,
		req.UpdatedAt,
		req.ID,
		req.Version,
	).Scan(&req.Version)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return err
	}

	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM requests WHERE id=$1)`, req.ID).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return pgx.ErrNoRows
	}
	return ErrVersionConflict
}

func (r *requestRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.db.Exec(ctx, `DELETE FROM requests WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *requestRepository) GetByID(ctx context.Context, id string) (*domain.Request, error) {
	return scanRequest(r.db.QueryRow(ctx, `SELECT `+requestColumns+` FROM requests WHERE id=$1`, id))
}

func (r *requestRepository) List(ctx context.Context, filter RequestFilter) ([]*domain.Request, error) {
	clauses := []string{"1=1"}
	args := []any{}

	if filter.CitizenID != nil {
		args = append(args, *filter.CitizenID)
		clauses = append(clauses, fmt.Sprintf("citizen_id=$%d", len(args)))
	}
	if filter.DepartmentID != nil {
		args = append(args, *filter.DepartmentID)
		clauses = append(clauses, fmt.Sprintf("department_id=$%d", len(args)))
	}
	if filter.AssignedTo != nil {
		args = append(args, *filter.AssignedTo)
		clauses = append(clauses, fmt.Sprintf("assigned_to=$%d", len(args)))
	}
	if filter.Escalated != nil {
		args = append(args, *filter.Escalated)
		clauses = append(clauses, fmt.Sprintf("escalated=$%d", len(args)))
	}
	if len(filter.Statuses) > 0 {
		args = append(args, statusStrings(filter.Statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	if len(filter.ExcludeStatuses) > 0 {
		args = append(args, statusStrings(filter.ExcludeStatuses))
		clauses = append(clauses, fmt.Sprintf("NOT (status = ANY($%d))", len(args)))
	}
	if !filter.IncludeMerged && !containsStatus(filter.Statuses, domain.StatusMerged) {
		clauses = append(clauses, "status <> 'merged'")
	}

	var taskClauses []string
	if filter.TaskMemberID != nil {
		args = append(args, *filter.TaskMemberID)
		taskClauses = append(taskClauses, fmt.Sprintf(
			"(t->'assigned_members' ? $%[1]d OR t->>'assigned_to' = $%[1]d)", len(args)))
	}
	if len(filter.TaskTeamIDs) > 0 {
		args = append(args, filter.TaskTeamIDs)
		taskClauses = append(taskClauses, fmt.Sprintf("t->>'assigned_team_id' = ANY($%d)", len(args)))
	}
	if len(taskClauses) > 0 {
		clauses = append(clauses, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements(tasks) t WHERE %s)", strings.Join(taskClauses, " OR ")))
	}

	limit, offset := pageBounds(filter.Limit, filter.Offset)
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		requestColumns, strings.Join(clauses, " AND "), limit, offset)
	return r.query(ctx, query, args...)
}

func (r *requestRepository) ListUnresolved(ctx context.Context, departmentID *string) ([]*domain.Request, error) {
	resolved := statusStrings(domain.ResolvedStatuses)
	if departmentID != nil {
		return r.query(ctx, `SELECT `+requestColumns+` FROM requests
            WHERE NOT (status = ANY($1)) AND department_id=$2 ORDER BY created_at`, resolved, *departmentID)
	}
	return r.query(ctx, `SELECT `+requestColumns+` FROM requests
        WHERE NOT (status = ANY($1)) ORDER BY created_at`, resolved)
}

func (r *requestRepository) ListActiveByLeader(ctx context.Context, leaderID string) ([]*domain.Request, error) {
	return r.query(ctx, `SELECT `+requestColumns+` FROM requests
        WHERE assigned_to=$1 AND NOT (status = ANY($2)) ORDER BY created_at`,
		leaderID, statusStrings(domain.ResolvedStatuses))
}

func (r *requestRepository) FindSimilar(ctx context.Context, q domain.SimilarQuery) ([]*domain.Request, error) {
	args := []any{strings.TrimSpace(q.ServiceType), statusStrings(domain.SimilarExcludedStatuses)}
	clauses := []string{
		"LOWER(service_type) = LOWER($1)",
		"NOT (status = ANY($2))",
	}
	if pattern := domain.SimilarPattern(q); pattern != "" {
		args = append(args, pattern)
		clauses = append(clauses, fmt.Sprintf(
			"(description ~* $%[1]d OR COALESCE(location->>'address','') ~* $%[1]d)", len(args)))
	}
	if q.HasCoordinates() {
		args = append(args, *q.Lat, *q.Lng, domain.SimilarRadiusKm)
		n := len(args)
		clauses = append(clauses, fmt.Sprintf(
			`location ? 'lat' AND location ? 'lng' AND
             SQRT(POWER((location->>'lat')::float8 - $%d, 2) + POWER((location->>'lng')::float8 - $%d, 2)) * 111.0 <= $%d`,
			n-2, n-1, n))
	}
	query := fmt.Sprintf(`SELECT %s FROM requests WHERE %s ORDER BY support_count DESC, created_at DESC LIMIT %d`,
		requestColumns, strings.Join(clauses, " AND "), domain.MaxSimilarResults)
	return r.query(ctx, query, args...)
}

func (r *requestRepository) query(ctx context.Context, query string, args ...any) ([]*domain.Request, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*domain.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	return result, rows.Err()
}

func scanRequest(row pgx.Row) (*domain.Request, error) {
	var req domain.Request
	if err := row.Scan(
		&req.ID,
		&req.CitizenID,
		&req.ServiceType,
		&req.Description,
		&req.Location,
		&req.DepartmentID,
		&req.AttachmentURL,
		&req.Status,
		&req.ValidationStatus,
		&req.ValidationHistory,
		&req.Assignment,
		&req.AssignedTo,
		&req.TimeLogs,
		&req.Tasks,
		&req.Completion,
		&req.Verification,
		&req.Supporters,
		&req.SupportCount,
		&req.History,
		&req.Escalated,
		&req.EscalatedAt,
		&req.EscalatedTo,
		&req.ParentRequestID,
		&req.MergedChildren,
		&req.Feedback,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &req, nil
}

// normalize keeps JSON arrays as [] rather than null.
func normalize(req *domain.Request) {
	if req.ValidationHistory == nil {
		req.ValidationHistory = []domain.ValidationEntry{}
	}
	if req.Tasks == nil {
		req.Tasks = []domain.Task{}
	}
	if req.History == nil {
		req.History = []domain.HistoryEntry{}
	}
	req.Supporters = stringSlice(req.Supporters)
	req.MergedChildren = stringSlice(req.MergedChildren)
}

func statusStrings(statuses []domain.RequestStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func containsStatus(statuses []domain.RequestStatus, target domain.RequestStatus) bool {
	for _, s := range statuses {
		if s == target {
			return true
		}
	}
	return false
}

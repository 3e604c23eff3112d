package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/civic-service/internal/domain"
)

// TeamRepository manages persistence for teams.
type TeamRepository interface {
	Create(ctx context.Context, team *domain.Team) error
	Update(ctx context.Context, team *domain.Team) error
	GetByID(ctx context.Context, id string) (*domain.Team, error)
	GetByLeader(ctx context.Context, leaderID string) (*domain.Team, error)
	ListByMember(ctx context.Context, userID string) ([]domain.Team, error)
	List(ctx context.Context, departmentID *string) ([]domain.Team, error)
}

type teamRepository struct {
	db DBTX
}

// NewTeamRepository constructs repository.
func NewTeamRepository(db DBTX) TeamRepository {
	return &teamRepository{db: db}
}

const teamColumns = `id, department_id, name, description, leader_id, member_ids, is_active, created_at, updated_at`

func (r *teamRepository) Create(ctx context.Context, team *domain.Team) error {
	const query = `
        INSERT INTO teams (department_id, name, description, leader_id, member_ids, is_active)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`
	return r.db.QueryRow(ctx, query,
		team.DepartmentID,
		team.Name,
		team.Description,
		team.LeaderID,
		stringSlice(team.MemberIDs),
		team.IsActive,
	).Scan(&team.ID, &team.CreatedAt, &team.UpdatedAt)
}

func (r *teamRepository) Update(ctx context.Context, team *domain.Team) error {
	const query = `
        UPDATE teams SET department_id=$1, name=$2, description=$3, leader_id=$4, member_ids=$5,
            is_active=$6, updated_at=NOW()
        WHERE id=$7`
	cmd, err := r.db.Exec(ctx, query,
		team.DepartmentID,
		team.Name,
		team.Description,
		team.LeaderID,
		stringSlice(team.MemberIDs),
		team.IsActive,
		team.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *teamRepository) GetByID(ctx context.Context, id string) (*domain.Team, error) {
	return scanTeam(r.db.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id=$1`, id))
}

func (r *teamRepository) GetByLeader(ctx context.Context, leaderID string) (*domain.Team, error) {
	return scanTeam(r.db.QueryRow(ctx,
		`SELECT `+teamColumns+` FROM teams WHERE leader_id=$1 AND is_active=TRUE LIMIT 1`, leaderID))
}

func (r *teamRepository) ListByMember(ctx context.Context, userID string) ([]domain.Team, error) {
	return r.query(ctx, `SELECT `+teamColumns+` FROM teams WHERE $1 = ANY(member_ids) AND is_active=TRUE`, userID)
}

func (r *teamRepository) List(ctx context.Context, departmentID *string) ([]domain.Team, error) {
	if departmentID != nil {
		return r.query(ctx, `SELECT `+teamColumns+` FROM teams WHERE department_id=$1 AND is_active=TRUE ORDER BY name`, *departmentID)
	}
	return r.query(ctx, `SELECT `+teamColumns+` FROM teams WHERE is_active=TRUE ORDER BY name`)
}

func (r *teamRepository) query(ctx context.Context, query string, args ...any) ([]domain.Team, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Team
	for rows.Next() {
		team, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *team)
	}
	return result, rows.Err()
}

func scanTeam(row pgx.Row) (*domain.Team, error) {
	var team domain.Team
	if err := row.Scan(
		&team.ID,
		&team.DepartmentID,
		&team.Name,
		&team.Description,
		&team.LeaderID,
		&team.MemberIDs,
		&team.IsActive,
		&team.CreatedAt,
		&team.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &team, nil
}

func stringSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

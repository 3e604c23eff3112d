package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrVersionConflict is returned when an optimistic save loses a race.
var ErrVersionConflict = errors.New("request was modified concurrently")

// DBTX is satisfied by both the pool and an open transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repositories bundles every repository bound to the same connection or transaction.
type Repositories struct {
	Users       UserRepository
	Departments DepartmentRepository
	Teams       TeamRepository
	Requests    RequestRepository
	Evidence    EvidenceRepository
}

// Store hands out repositories and runs multi-aggregate work atomically.
type Store interface {
	Repos() Repositories
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// PostgresStore is the pgx-backed Store.
type PostgresStore struct {
	pool  *pgxpool.Pool
	repos Repositories
}

// NewPostgresStore wires every repository on top of pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, repos: bind(pool)}
}

func bind(db DBTX) Repositories {
	return Repositories{
		Users:       NewUserRepository(db),
		Departments: NewDepartmentRepository(db),
		Teams:       NewTeamRepository(db),
		Requests:    NewRequestRepository(db),
		Evidence:    NewEvidenceRepository(db),
	}
}

// Repos returns pool-bound repositories.
func (s *PostgresStore) Repos() Repositories {
	return s.repos
}

// WithinTx runs fn inside a single transaction; any error rolls everything back.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) (err error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(ctx, bind(tx)); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// IsNotFound reports whether err means the row does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// IsUniqueViolation reports whether err is a Postgres unique constraint failure.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

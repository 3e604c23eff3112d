package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-service/internal/config"
	"github.com/spec-kit/civic-service/internal/domain"
	"github.com/spec-kit/civic-service/internal/observability"
	"github.com/spec-kit/civic-service/internal/persistence"
	"github.com/spec-kit/civic-service/internal/repository"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

// errUnchanged lets a mutation skip the save when the aggregate was left as loaded.
var errUnchanged = errors.New("request unchanged")

// Locker serializes mutations of one request across service instances.
type Locker interface {
	Lock(ctx context.Context, requestID string) (func(context.Context) error, error)
}

// mutator runs read-check-write cycles on request aggregates.
type mutator struct {
	store      repository.Store
	locker     Locker
	timeout    time.Duration
	maxRetries int
	logger     *zap.Logger
	now        func() time.Time
}

func newMutator(cfg config.LifecycleConfig, store repository.Store, locker Locker, logger *zap.Logger, now func() time.Time) *mutator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	retries := cfg.MaxConflictRetries
	if retries <= 0 {
		retries = 5
	}
	return &mutator{
		store:      store,
		locker:     locker,
		timeout:    cfg.OperationTimeout(),
		maxRetries: retries,
		logger:     logger,
		now:        now,
	}
}

func newConflictBackoff(maxRetries int) backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = 0
	return backoff.WithMaxRetries(bo, uint64(maxRetries))
}

// mutate loads one request, applies fn and saves it with a version check.
func (m *mutator) mutate(ctx context.Context, operation, requestID string, fn func(req *domain.Request, now time.Time) error) (*domain.Request, error) {
	var result *domain.Request
	err := m.run(ctx, operation, []string{requestID}, false, func(ctx context.Context, repos repository.Repositories) error {
		req, err := loadRequest(ctx, repos, requestID)
		if err != nil {
			return err
		}
		if err := fn(req, m.now()); err != nil {
			if errors.Is(err, errUnchanged) {
				result = req
				return nil
			}
			return err
		}
		if err := repos.Requests.Save(ctx, req); err != nil {
			return err
		}
		result = req
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// run wraps fn with the operation timeout, the per-request locks and conflict retries.
// When tx is set every attempt runs inside one store transaction.
func (m *mutator) run(ctx context.Context, operation string, requestIDs []string, tx bool, fn func(ctx context.Context, repos repository.Repositories) error) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	release, err := m.lockAll(ctx, requestIDs)
	if err != nil {
		return err
	}
	defer release()

	attempt := func() error {
		var err error
		if tx {
			err = m.store.WithinTx(ctx, fn)
		} else {
			err = fn(ctx, m.store.Repos())
		}
		if err == nil {
			return nil
		}
		if errors.Is(err, repository.ErrVersionConflict) {
			observability.VersionConflicts.WithLabelValues(operation).Inc()
			m.logger.Info("request version conflict, retrying",
				zap.String("operation", operation),
				zap.Strings("request_ids", requestIDs))
			return err
		}
		return backoff.Permanent(err)
	}

	err = backoff.Retry(attempt, backoff.WithContext(newConflictBackoff(m.maxRetries), ctx))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrVersionConflict):
		return apperrors.NewConflict("request was modified concurrently; please retry",
			map[string]any{"request_ids": requestIDs})
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.NewConflict("operation timed out", map[string]any{"operation": operation})
	default:
		return err
	}
}

// lockAll takes the request locks in sorted order so overlapping merges cannot deadlock.
func (m *mutator) lockAll(ctx context.Context, requestIDs []string) (func(), error) {
	if m.locker == nil {
		return func() {}, nil
	}
	ids := dedupe(requestIDs)
	sort.Strings(ids)

	var releases []func(context.Context) error
	releaseAll := func() {
		rctx := context.WithoutCancel(ctx)
		for i := len(releases) - 1; i >= 0; i-- {
			if err := releases[i](rctx); err != nil {
				m.logger.Warn("failed to release request lock", zap.Error(err))
			}
		}
	}
	for _, id := range ids {
		release, err := m.locker.Lock(ctx, id)
		if err != nil {
			releaseAll()
			if errors.Is(err, persistence.ErrLockNotAcquired) {
				return nil, apperrors.NewConflict("request is busy; please retry", map[string]any{"request_id": id})
			}
			return nil, apperrors.MapError(err)
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func loadRequest(ctx context.Context, repos repository.Repositories, requestID string) (*domain.Request, error) {
	req, err := repos.Requests.GetByID(ctx, requestID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("request", map[string]any{"request_id": requestID})
		}
		return nil, err
	}
	return req, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

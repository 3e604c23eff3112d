package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/spec-kit/civic-service/internal/config"
	"github.com/spec-kit/civic-service/internal/domain"
	"github.com/spec-kit/civic-service/internal/events"
	"github.com/spec-kit/civic-service/internal/observability"
	"github.com/spec-kit/civic-service/internal/repository"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

// SLAService evaluates requests against their SLA and escalates breaches.
type SLAService struct {
	store        repository.Store
	mut          *mutator
	dispatcher   events.Dispatcher
	logger       *zap.Logger
	defaultHours int
	concurrency  int
}

// SLADependencies bundles collaborators of the SLA service.
type SLADependencies struct {
	Store      repository.Store
	Locker     Locker
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// SweepResult summarizes one CheckAllSLAs run.
type SweepResult struct {
	Checked   int                    `json:"checked"`
	Breaches  []domain.SLAEvaluation `json:"breaches"`
	Escalated int                    `json:"escalated"`
	Failed    int                    `json:"failed"`
}

// NewSLAService constructs the service.
func NewSLAService(cfg config.Config, deps SLADependencies) *SLAService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	concurrency := cfg.SLA.SweepConcurrency
	if concurrency <= 0 {
		concurrency = 1
	}
	return &SLAService{
		store:        deps.Store,
		mut:          newMutator(cfg.Lifecycle, deps.Store, deps.Locker, logger, deps.Clock),
		dispatcher:   deps.Dispatcher,
		logger:       logger,
		defaultHours: cfg.SLA.DefaultHours,
		concurrency:  concurrency,
	}
}

// GetSLAHours resolves the SLA for a service type, optionally within a department.
func (s *SLAService) GetSLAHours(ctx context.Context, serviceType string, departmentID *string) (int, error) {
	if departmentID == nil || *departmentID == "" {
		return domain.ResolveSLAHours(serviceType, nil, s.defaultHours), nil
	}
	dept, err := s.store.Repos().Departments.GetByID(ctx, *departmentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return 0, apperrors.NewNotFound("department", map[string]any{"department_id": *departmentID})
		}
		return 0, apperrors.MapError(err)
	}
	return domain.ResolveSLAHours(serviceType, dept, s.defaultHours), nil
}

// EvaluateSLA reports breach state without writing anything.
func (s *SLAService) EvaluateSLA(ctx context.Context, requestID string) (domain.SLAEvaluation, error) {
	req, err := loadRequest(ctx, s.store.Repos(), requestID)
	if err != nil {
		return domain.SLAEvaluation{}, apperrors.MapError(err)
	}
	dept, err := s.departmentOf(ctx, req)
	if err != nil {
		return domain.SLAEvaluation{}, err
	}
	hours := domain.ResolveSLAHours(req.ServiceType, dept, s.defaultHours)
	return domain.EvaluateSLA(req, hours, s.mut.now()), nil
}

// CheckSLA evaluates a request and escalates it on its first observed breach.
func (s *SLAService) CheckSLA(ctx context.Context, requestID string) (domain.SLAEvaluation, error) {
	req, err := loadRequest(ctx, s.store.Repos(), requestID)
	if err != nil {
		return domain.SLAEvaluation{}, apperrors.MapError(err)
	}
	dept, err := s.departmentOf(ctx, req)
	if err != nil {
		return domain.SLAEvaluation{}, err
	}
	return s.check(ctx, requestID, dept)
}

func (s *SLAService) check(ctx context.Context, requestID string, dept *domain.Department) (domain.SLAEvaluation, error) {
	var (
		eval      domain.SLAEvaluation
		escalated bool
	)
	var headID *string
	if dept != nil {
		headID = dept.HeadID
	}
	req, err := s.mut.mutate(ctx, "escalate", requestID, func(req *domain.Request, now time.Time) error {
		hours := domain.ResolveSLAHours(req.ServiceType, dept, s.defaultHours)
		eval = domain.EvaluateSLA(req, hours, now)
		escalated = req.Escalate(eval, headID, now)
		if !escalated {
			return errUnchanged
		}
		eval.Escalated = true
		return nil
	})
	if err != nil {
		return domain.SLAEvaluation{}, apperrors.MapError(err)
	}
	if escalated {
		observability.Escalations.WithLabelValues(req.ServiceType).Inc()
		s.logger.Warn("request escalated after SLA breach",
			zap.String("request_id", req.ID),
			zap.String("service_type", req.ServiceType),
			zap.Int("sla_hours", eval.SLAHours),
			zap.Float64("hours_overdue", eval.HoursOverdue))
		publishEvent(ctx, s.dispatcher, events.New(events.EventRequestEscalated, req.ID, nil, s.mut.now(), events.EscalatedPayload{
			DepartmentID: req.DepartmentID,
			EscalatedTo:  req.EscalatedTo,
			SLAHours:     eval.SLAHours,
			HoursOverdue: eval.HoursOverdue,
		}))
	}
	return eval, nil
}

// CheckAllSLAs sweeps every unresolved request, optionally within one department, with
// bounded concurrency. Per-request failures are logged and counted, not returned.
func (s *SLAService) CheckAllSLAs(ctx context.Context, departmentID *string) (*SweepResult, error) {
	started := time.Now()
	defer func() { observability.SLASweepDuration.Observe(time.Since(started).Seconds()) }()

	repos := s.store.Repos()
	pending, err := repos.Requests.ListUnresolved(ctx, departmentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	departments, err := repos.Departments.List(ctx, false)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	byID := make(map[string]*domain.Department, len(departments))
	for i := range departments {
		byID[departments[i].ID] = &departments[i]
	}

	result := &SweepResult{Checked: len(pending), Breaches: []domain.SLAEvaluation{}}
	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)
	for _, req := range pending {
		if ctx.Err() != nil {
			break
		}
		var dept *domain.Department
		if req.DepartmentID != nil {
			dept = byID[*req.DepartmentID]
		}
		requestID := req.ID
		wasEscalated := req.Escalated
		g.Go(func() error {
			eval, err := s.check(ctx, requestID, dept)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				observability.SLASweepFailures.Inc()
				s.logger.Warn("sla check failed", zap.String("request_id", requestID), zap.Error(err))
				return nil
			}
			if eval.Breached {
				result.Breaches = append(result.Breaches, eval)
				if eval.Escalated && !wasEscalated {
					result.Escalated++
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return result, err
	}

	sort.Slice(result.Breaches, func(i, j int) bool {
		return result.Breaches[i].HoursOverdue > result.Breaches[j].HoursOverdue
	})
	s.logger.Info("sla sweep finished",
		zap.Int("checked", result.Checked),
		zap.Int("breaches", len(result.Breaches)),
		zap.Int("escalated", result.Escalated),
		zap.Int("failed", result.Failed),
		zap.Duration("took", time.Since(started)))
	return result, nil
}

func (s *SLAService) departmentOf(ctx context.Context, req *domain.Request) (*domain.Department, error) {
	if req.DepartmentID == nil {
		return nil, nil
	}
	dept, err := s.store.Repos().Departments.GetByID(ctx, *req.DepartmentID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, nil
		}
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

package repository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/civic-service/internal/domain"
)

type memoryState struct {
	users       map[string]domain.User
	departments map[string]domain.Department
	teams       map[string]domain.Team
	requests    map[string]*domain.Request
	evidence    map[string]domain.Evidence
}

func newMemoryState() memoryState {
	return memoryState{
		users:       map[string]domain.User{},
		departments: map[string]domain.Department{},
		teams:       map[string]domain.Team{},
		requests:    map[string]*domain.Request{},
		evidence:    map[string]domain.Evidence{},
	}
}

// MemoryStore keeps everything in process. It backs development runs without Postgres
// and the service tests. Transactions are serialized and roll back through an undo journal
// that only touches the keys the transaction itself wrote.
type MemoryStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	state memoryState
	now   func() time.Time

	// write generation per table/key, guarded by mu
	seq  uint64
	gens map[string]uint64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemoryState(), now: time.Now, gens: map[string]uint64{}}
}

// Repos returns repositories backed by the shared in-memory state.
func (s *MemoryStore) Repos() Repositories {
	return s.bind(nil)
}

func (s *MemoryStore) bind(tx *memTx) Repositories {
	return Repositories{
		Users:       memUsers{s: s, tx: tx},
		Departments: memDepartments{s: s, tx: tx},
		Teams:       memTeams{s: s, tx: tx},
		Requests:    memRequests{s: s, tx: tx},
		Evidence:    memEvidence{s: s, tx: tx},
	}
}

// WithinTx runs fn with all-or-nothing semantics. Writes made outside fn while it runs
// survive a rollback.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) (err error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{entries: map[string]*undoEntry{}}
	defer func() {
		if p := recover(); p != nil {
			s.rollback(tx)
			panic(p)
		}
		if err != nil {
			s.rollback(tx)
		}
	}()
	return fn(ctx, s.bind(tx))
}

type undoEntry struct {
	gen     uint64
	restore func()
}

type memTx struct {
	order   []string
	entries map[string]*undoEntry
}

// journal bumps the write generation of table/key and, inside a transaction, remembers
// the value it had before the transaction first touched it. Callers hold s.mu.
func journal[V any](s *MemoryStore, tx *memTx, table string, rows map[string]V, key string) {
	s.seq++
	gk := table + "/" + key
	s.gens[gk] = s.seq
	if tx == nil {
		return
	}
	if entry, ok := tx.entries[gk]; ok {
		entry.gen = s.seq
		return
	}
	prev, existed := rows[key]
	tx.entries[gk] = &undoEntry{
		gen: s.seq,
		restore: func() {
			if existed {
				rows[key] = prev
			} else {
				delete(rows, key)
			}
		},
	}
	tx.order = append(tx.order, gk)
}

// rollback undoes the transaction's writes newest first. A key written again outside the
// transaction after its last transactional write keeps the newer value.
func (s *MemoryStore) rollback(tx *memTx) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(tx.order) - 1; i >= 0; i-- {
		gk := tx.order[i]
		entry := tx.entries[gk]
		if s.gens[gk] != entry.gen {
			continue
		}
		entry.restore()
		s.seq++
		s.gens[gk] = s.seq
	}
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint, Message: "duplicate key value violates unique constraint"}
}

func cloneCategorySLA(m map[string]int) map[string]int {
	if m == nil {
		return nil
	}
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type memUsers struct {
	s  *MemoryStore
	tx *memTx
}

func (m memUsers) Create(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	user.Email = strings.ToLower(user.Email)
	for _, existing := range m.s.state.users {
		if existing.Email == user.Email {
			return uniqueViolation("users_email_key")
		}
	}
	user.ID = uuid.NewString()
	user.CreatedAt = m.s.now()
	user.UpdatedAt = user.CreatedAt
	journal(m.s, m.tx, "users", m.s.state.users, user.ID)
	m.s.state.users[user.ID] = *user
	return nil
}

func (m memUsers) Update(_ context.Context, user *domain.User) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.state.users[user.ID]; !ok {
		return pgx.ErrNoRows
	}
	user.Email = strings.ToLower(user.Email)
	user.UpdatedAt = m.s.now()
	journal(m.s, m.tx, "users", m.s.state.users, user.ID)
	m.s.state.users[user.ID] = *user
	return nil
}

func (m memUsers) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.state.users[id]; !ok {
		return pgx.ErrNoRows
	}
	journal(m.s, m.tx, "users", m.s.state.users, id)
	delete(m.s.state.users, id)
	return nil
}

func (m memUsers) GetByID(_ context.Context, id string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	user, ok := m.s.state.users[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return &user, nil
}

func (m memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	email = strings.ToLower(email)
	for _, user := range m.s.state.users {
		if user.Email == email {
			u := user
			return &u, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m memUsers) List(_ context.Context, filter UserFilter) ([]domain.User, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var result []domain.User
	for _, user := range m.s.state.users {
		if filter.Role != nil && user.Role != *filter.Role {
			continue
		}
		if filter.DepartmentID != nil && !user.InDepartment(*filter.DepartmentID) {
			continue
		}
		if filter.ActiveOnly && !user.IsActive {
			continue
		}
		result = append(result, user)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	return page(result, filter.Limit, filter.Offset), nil
}

type memDepartments struct {
	s  *MemoryStore
	tx *memTx
}

func (m memDepartments) Create(_ context.Context, dept *domain.Department) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	for _, existing := range m.s.state.departments {
		if strings.EqualFold(existing.Name, dept.Name) {
			return uniqueViolation("departments_name_key")
		}
	}
	dept.ID = uuid.NewString()
	dept.CreatedAt = m.s.now()
	dept.UpdatedAt = dept.CreatedAt
	stored := *dept
	stored.CategorySLA = cloneCategorySLA(dept.CategorySLA)
	journal(m.s, m.tx, "departments", m.s.state.departments, dept.ID)
	m.s.state.departments[dept.ID] = stored
	return nil
}

func (m memDepartments) Update(_ context.Context, dept *domain.Department) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.state.departments[dept.ID]; !ok {
		return pgx.ErrNoRows
	}
	dept.UpdatedAt = m.s.now()
	stored := *dept
	stored.CategorySLA = cloneCategorySLA(dept.CategorySLA)
	journal(m.s, m.tx, "departments", m.s.state.departments, dept.ID)
	m.s.state.departments[dept.ID] = stored
	return nil
}

func (m memDepartments) GetByID(_ context.Context, id string) (*domain.Department, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	dept, ok := m.s.state.departments[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	dept.CategorySLA = cloneCategorySLA(dept.CategorySLA)
	return &dept, nil
}

func (m memDepartments) GetByName(_ context.Context, name string) (*domain.Department, error) {
	return m.find(func(d domain.Department) bool { return strings.EqualFold(d.Name, name) })
}

func (m memDepartments) GetByHead(_ context.Context, userID string) (*domain.Department, error) {
	return m.find(func(d domain.Department) bool { return d.HeadID != nil && *d.HeadID == userID })
}

func (m memDepartments) find(match func(domain.Department) bool) (*domain.Department, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	for _, dept := range m.s.state.departments {
		if match(dept) {
			d := dept
			d.CategorySLA = cloneCategorySLA(dept.CategorySLA)
			return &d, nil
		}
	}
	return nil, pgx.ErrNoRows
}

func (m memDepartments) List(_ context.Context, activeOnly bool) ([]domain.Department, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var result []domain.Department
	for _, dept := range m.s.state.departments {
		if activeOnly && !dept.IsActive {
			continue
		}
		dept.CategorySLA = cloneCategorySLA(dept.CategorySLA)
		result = append(result, dept)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type memTeams struct {
	s  *MemoryStore
	tx *memTx
}

func (m memTeams) Create(_ context.Context, team *domain.Team) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	team.ID = uuid.NewString()
	team.CreatedAt = m.s.now()
	team.UpdatedAt = team.CreatedAt
	stored := *team
	stored.MemberIDs = append([]string(nil), team.MemberIDs...)
	journal(m.s, m.tx, "teams", m.s.state.teams, team.ID)
	m.s.state.teams[team.ID] = stored
	return nil
}

func (m memTeams) Update(_ context.Context, team *domain.Team) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.state.teams[team.ID]; !ok {
		return pgx.ErrNoRows
	}
	team.UpdatedAt = m.s.now()
	stored := *team
	stored.MemberIDs = append([]string(nil), team.MemberIDs...)
	journal(m.s, m.tx, "teams", m.s.state.teams, team.ID)
	m.s.state.teams[team.ID] = stored
	return nil
}

func (m memTeams) GetByID(_ context.Context, id string) (*domain.Team, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	team, ok := m.s.state.teams[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	team.MemberIDs = append([]string(nil), team.MemberIDs...)
	return &team, nil
}

func (m memTeams) GetByLeader(_ context.Context, leaderID string) (*domain.Team, error) {
	teams := m.filter(func(t domain.Team) bool { return t.IsActive && t.LeaderID == leaderID })
	if len(teams) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &teams[0], nil
}

func (m memTeams) ListByMember(_ context.Context, userID string) ([]domain.Team, error) {
	return m.filter(func(t domain.Team) bool { return t.IsActive && t.HasMember(userID) }), nil
}

func (m memTeams) List(_ context.Context, departmentID *string) ([]domain.Team, error) {
	return m.filter(func(t domain.Team) bool {
		return t.IsActive && (departmentID == nil || t.DepartmentID == *departmentID)
	}), nil
}

func (m memTeams) filter(match func(domain.Team) bool) []domain.Team {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var result []domain.Team
	for _, team := range m.s.state.teams {
		if match(team) {
			team.MemberIDs = append([]string(nil), team.MemberIDs...)
			result = append(result, team)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result
}

type memRequests struct {
	s  *MemoryStore
	tx *memTx
}

func (m memRequests) Create(_ context.Context, req *domain.Request) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	req.ID = uuid.NewString()
	req.Version = 1
	journal(m.s, m.tx, "requests", m.s.state.requests, req.ID)
	m.s.state.requests[req.ID] = req.Clone()
	return nil
}

func (m memRequests) Save(_ context.Context, req *domain.Request) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	stored, ok := m.s.state.requests[req.ID]
	if !ok {
		return pgx.ErrNoRows
	}
	if stored.Version != req.Version {
		return ErrVersionConflict
	}
	req.Version++
	journal(m.s, m.tx, "requests", m.s.state.requests, req.ID)
	m.s.state.requests[req.ID] = req.Clone()
	return nil
}

func (m memRequests) Delete(_ context.Context, id string) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	if _, ok := m.s.state.requests[id]; !ok {
		return pgx.ErrNoRows
	}
	journal(m.s, m.tx, "requests", m.s.state.requests, id)
	delete(m.s.state.requests, id)
	return nil
}

func (m memRequests) GetByID(_ context.Context, id string) (*domain.Request, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	req, ok := m.s.state.requests[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return req.Clone(), nil
}

func (m memRequests) List(_ context.Context, filter RequestFilter) ([]*domain.Request, error) {
	result := m.filter(func(r *domain.Request) bool { return matchesFilter(r, filter) })
	sortNewestFirst(result)
	return page(result, filter.Limit, filter.Offset), nil
}

func (m memRequests) ListUnresolved(_ context.Context, departmentID *string) ([]*domain.Request, error) {
	result := m.filter(func(r *domain.Request) bool {
		if r.Status.IsResolved() {
			return false
		}
		return departmentID == nil || (r.DepartmentID != nil && *r.DepartmentID == *departmentID)
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m memRequests) ListActiveByLeader(_ context.Context, leaderID string) ([]*domain.Request, error) {
	result := m.filter(func(r *domain.Request) bool {
		return !r.Status.IsResolved() && r.IsAssignedLeader(leaderID)
	})
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func (m memRequests) FindSimilar(_ context.Context, q domain.SimilarQuery) ([]*domain.Request, error) {
	pattern := domain.CompileSimilarPattern(q)
	result := m.filter(func(r *domain.Request) bool { return domain.MatchesSimilar(r, q, pattern) })
	return domain.RankSimilar(result), nil
}

func (m memRequests) filter(match func(*domain.Request) bool) []*domain.Request {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var result []*domain.Request
	for _, req := range m.s.state.requests {
		if match(req) {
			result = append(result, req.Clone())
		}
	}
	return result
}

func matchesFilter(r *domain.Request, f RequestFilter) bool {
	if f.CitizenID != nil && r.CitizenID != *f.CitizenID {
		return false
	}
	if f.DepartmentID != nil && (r.DepartmentID == nil || *r.DepartmentID != *f.DepartmentID) {
		return false
	}
	if f.AssignedTo != nil && !r.IsAssignedLeader(*f.AssignedTo) {
		return false
	}
	if f.Escalated != nil && r.Escalated != *f.Escalated {
		return false
	}
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.Status) {
		return false
	}
	if containsStatus(f.ExcludeStatuses, r.Status) {
		return false
	}
	if !f.IncludeMerged && !containsStatus(f.Statuses, domain.StatusMerged) && r.Status == domain.StatusMerged {
		return false
	}
	if f.TaskMemberID != nil || len(f.TaskTeamIDs) > 0 {
		return hasMatchingTask(r, f)
	}
	return true
}

func hasMatchingTask(r *domain.Request, f RequestFilter) bool {
	for i := range r.Tasks {
		task := &r.Tasks[i]
		if f.TaskMemberID != nil && task.HasMember(*f.TaskMemberID) {
			return true
		}
		if task.AssignedTeamID != nil {
			for _, teamID := range f.TaskTeamIDs {
				if *task.AssignedTeamID == teamID {
					return true
				}
			}
		}
	}
	return false
}

func sortNewestFirst(list []*domain.Request) {
	sort.Slice(list, func(i, j int) bool { return list[i].CreatedAt.After(list[j].CreatedAt) })
}

type memEvidence struct {
	s  *MemoryStore
	tx *memTx
}

func (m memEvidence) Create(_ context.Context, evidence *domain.Evidence) error {
	m.s.mu.Lock()
	defer m.s.mu.Unlock()
	evidence.ID = uuid.NewString()
	evidence.CreatedAt = m.s.now()
	journal(m.s, m.tx, "evidence", m.s.state.evidence, evidence.ID)
	m.s.state.evidence[evidence.ID] = *evidence
	return nil
}

func (m memEvidence) ListByRequest(_ context.Context, requestID string) ([]domain.Evidence, error) {
	m.s.mu.RLock()
	defer m.s.mu.RUnlock()
	var result []domain.Evidence
	for _, e := range m.s.state.evidence {
		if e.RequestID == requestID {
			result = append(result, e)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	return result, nil
}

func page[T any](list []T, limit, offset int) []T {
	limit, offset = pageBounds(limit, offset)
	if offset >= len(list) {
		return nil
	}
	end := offset + limit
	if end > len(list) {
		end = len(list)
	}
	return list[offset:end]
}

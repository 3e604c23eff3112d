package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-service/internal/domain"
)

func newRequest(citizenID string, status domain.RequestStatus, created time.Time) *domain.Request {
	return &domain.Request{
		CitizenID:   citizenID,
		ServiceType: "Streetlight",
		Description: "lamp post flickering all night",
		Status:      status,
		TimeLogs:    domain.TimeLogs{Created: created},
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func TestMemoryRequestSaveIsOptimistic(t *testing.T) {
	ctx := context.Background()
	repos := NewMemoryStore().Repos()

	req := newRequest("c1", domain.StatusSubmitted, time.Now())
	require.NoError(t, repos.Requests.Create(ctx, req))
	assert.Equal(t, 1, req.Version)

	first, err := repos.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	second, err := repos.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)

	first.Status = domain.StatusPendingAssignment
	require.NoError(t, repos.Requests.Save(ctx, first))
	assert.Equal(t, 2, first.Version)

	second.Status = domain.StatusInvalid
	err = repos.Requests.Save(ctx, second)
	assert.True(t, errors.Is(err, ErrVersionConflict))

	stored, err := repos.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingAssignment, stored.Status)

	missing := &domain.Request{ID: "nope", Version: 1}
	assert.True(t, IsNotFound(repos.Requests.Save(ctx, missing)))
}

func TestMemoryRequestReadsAreIsolated(t *testing.T) {
	ctx := context.Background()
	repos := NewMemoryStore().Repos()
	req := newRequest("c1", domain.StatusSubmitted, time.Now())
	require.NoError(t, repos.Requests.Create(ctx, req))

	loaded, err := repos.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	loaded.Supporters = append(loaded.Supporters, "x")

	again, err := repos.Requests.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, again.Supporters)
}

func TestMemoryRequestListFilters(t *testing.T) {
	ctx := context.Background()
	repos := NewMemoryStore().Repos()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	team := "team-1"
	member := "member-1"

	open := newRequest("c1", domain.StatusWorking, base)
	open.Tasks = []domain.Task{{ID: "t1", AssignedTeamID: &team, AssignedMembers: []string{member}, Status: domain.TaskStatusTodo}}
	merged := newRequest("c1", domain.StatusMerged, base.Add(time.Hour))
	other := newRequest("c2", domain.StatusClosed, base.Add(2*time.Hour))
	for _, r := range []*domain.Request{open, merged, other} {
		require.NoError(t, repos.Requests.Create(ctx, r))
	}

	citizen := "c1"
	list, err := repos.Requests.List(ctx, RequestFilter{CitizenID: &citizen})
	require.NoError(t, err)
	require.Len(t, list, 1, "merged requests are hidden by default")
	assert.Equal(t, open.ID, list[0].ID)

	list, err = repos.Requests.List(ctx, RequestFilter{CitizenID: &citizen, IncludeMerged: true})
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = repos.Requests.List(ctx, RequestFilter{TaskMemberID: &member})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = repos.Requests.List(ctx, RequestFilter{TaskTeamIDs: []string{team}})
	require.NoError(t, err)
	require.Len(t, list, 1)

	list, err = repos.Requests.List(ctx, RequestFilter{ExcludeStatuses: domain.ResolvedStatuses})
	require.NoError(t, err)
	require.Len(t, list, 1)

	unresolved, err := repos.Requests.ListUnresolved(ctx, nil)
	require.NoError(t, err)
	require.Len(t, unresolved, 1)
	assert.Equal(t, open.ID, unresolved[0].ID)
}

func TestMemoryWithinTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repos := store.Repos()

	dept := &domain.Department{Name: "Roads", IsActive: true}
	require.NoError(t, repos.Departments.Create(ctx, dept))

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx Repositories) error {
		head := "u1"
		dept.HeadID = &head
		if err := tx.Departments.Update(ctx, dept); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	stored, err := repos.Departments.GetByID(ctx, dept.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.HeadID)

	err = store.WithinTx(ctx, func(ctx context.Context, tx Repositories) error {
		head := "u2"
		dept.HeadID = &head
		return tx.Departments.Update(ctx, dept)
	})
	require.NoError(t, err)
	stored, err = repos.Departments.GetByID(ctx, dept.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.HeadID)
	assert.Equal(t, "u2", *stored.HeadID)
}

func TestMemoryRollbackKeepsConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repos := store.Repos()

	filed := newRequest("c1", domain.StatusSubmitted, time.Now())
	require.NoError(t, repos.Requests.Create(ctx, filed))

	inTx := make(chan struct{})
	outsideDone := make(chan struct{})
	outsider := &domain.User{Name: "Walk-in", Email: "walkin@city.gov", Role: domain.RoleCitizen}
	var created *domain.Request

	go func() {
		defer close(outsideDone)
		<-inTx
		assert.NoError(t, repos.Users.Create(ctx, outsider))
		created = newRequest("c2", domain.StatusSubmitted, time.Now())
		assert.NoError(t, repos.Requests.Create(ctx, created))
		support, err := repos.Requests.GetByID(ctx, filed.ID)
		if assert.NoError(t, err) {
			support.SupportCount++
			assert.NoError(t, repos.Requests.Save(ctx, support))
		}
	}()

	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(ctx context.Context, tx Repositories) error {
		if err := tx.Departments.Create(ctx, &domain.Department{Name: "Parks"}); err != nil {
			return err
		}
		close(inTx)
		<-outsideDone
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = repos.Users.GetByID(ctx, outsider.ID)
	require.NoError(t, err, "user created outside the failed transaction must survive")
	_, err = repos.Requests.GetByID(ctx, created.ID)
	require.NoError(t, err)
	stored, err := repos.Requests.GetByID(ctx, filed.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.SupportCount)

	_, err = repos.Departments.GetByName(ctx, "Parks")
	assert.True(t, IsNotFound(err))
}

func TestMemoryRollbackSkipsKeysOverwrittenOutside(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repos := store.Repos()

	dept := &domain.Department{Name: "Roads", SLAHours: 48}
	require.NoError(t, repos.Departments.Create(ctx, dept))

	err := store.WithinTx(ctx, func(ctx context.Context, tx Repositories) error {
		inside := *dept
		inside.SLAHours = 12
		if err := tx.Departments.Update(ctx, &inside); err != nil {
			return err
		}
		outside := *dept
		outside.SLAHours = 24
		if err := repos.Departments.Update(ctx, &outside); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)

	stored, err := repos.Departments.GetByID(ctx, dept.ID)
	require.NoError(t, err)
	assert.Equal(t, 24, stored.SLAHours)
}

func TestMemoryUniqueConstraints(t *testing.T) {
	ctx := context.Background()
	repos := NewMemoryStore().Repos()

	require.NoError(t, repos.Users.Create(ctx, &domain.User{Name: "A", Email: "a@city.gov"}))
	err := repos.Users.Create(ctx, &domain.User{Name: "B", Email: "A@City.gov"})
	assert.True(t, IsUniqueViolation(err))

	require.NoError(t, repos.Departments.Create(ctx, &domain.Department{Name: "Water"}))
	assert.True(t, IsUniqueViolation(repos.Departments.Create(ctx, &domain.Department{Name: "water"})))

	_, err = repos.Users.GetByID(ctx, "missing")
	assert.True(t, IsNotFound(err))
}

func TestMemoryFindSimilar(t *testing.T) {
	ctx := context.Background()
	repos := NewMemoryStore().Repos()
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)

	popular := newRequest("c1", domain.StatusSubmitted, base)
	popular.SupportCount = 3
	recent := newRequest("c2", domain.StatusWorking, base.Add(time.Hour))
	closed := newRequest("c3", domain.StatusClosed, base.Add(2*time.Hour))
	for _, r := range []*domain.Request{popular, recent, closed} {
		require.NoError(t, repos.Requests.Create(ctx, r))
	}

	found, err := repos.Requests.FindSimilar(ctx, domain.SimilarQuery{ServiceType: "streetlight", Description: "Flickering lamp"})
	require.NoError(t, err)
	require.Len(t, found, 2)
	assert.Equal(t, popular.ID, found[0].ID)
	assert.Equal(t, recent.ID, found[1].ID)
}

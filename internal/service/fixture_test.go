package service

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-service/internal/config"
	"github.com/spec-kit/civic-service/internal/domain"
	"github.com/spec-kit/civic-service/internal/events"
	"github.com/spec-kit/civic-service/internal/persistence"
	"github.com/spec-kit/civic-service/internal/repository"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []events.Event
}

func (d *recordingDispatcher) Publish(_ context.Context, event events.Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *recordingDispatcher) Subscribe(events.EventType, events.EventHandler) {}

func (d *recordingDispatcher) types() []events.EventType {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]events.EventType, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type)
	}
	return out
}

func (d *recordingDispatcher) count(t events.EventType) int {
	n := 0
	for _, et := range d.types() {
		if et == t {
			n++
		}
	}
	return n
}

type memEvidenceStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func (m *memEvidenceStore) Put(_ context.Context, requestID, fileName string, content io.Reader) (persistence.StoredFile, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return persistence.StoredFile{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = map[string][]byte{}
	}
	key := requestID + "/" + fileName
	m.files[key] = data
	return persistence.StoredFile{Key: key, URL: "/uploads/evidence/" + key, Size: int64(len(data))}, nil
}

func (m *memEvidenceStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, key)
	return nil
}

func (m *memEvidenceStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.files)
}

func testConfig() config.Config {
	return config.Config{
		Auth:      config.AuthConfig{JWTSecret: "test-secret", AccessTokenTTLMinutes: 60, BcryptCost: 4},
		Lifecycle: config.LifecycleConfig{OperationTimeoutSeconds: 5, LockTTLSeconds: 5, MaxConflictRetries: 10},
		SLA:       config.SLAConfig{DefaultHours: 72, SweepConcurrency: 4},
		Evidence:  config.EvidenceConfig{MaxFiles: 3},
	}
}

type fixture struct {
	t          *testing.T
	ctx        context.Context
	store      *repository.MemoryStore
	clock      *testClock
	dispatcher *recordingDispatcher
	evidence   *memEvidenceStore
	requests   *RequestService
	sla        *SLAService
	directory  *DirectoryService

	dept    *domain.Department
	team    *domain.Team
	admin   domain.Actor
	head    domain.Actor
	leader  domain.Actor
	member  domain.Actor
	citizen domain.Actor
	other   domain.Actor

	leaderEmail string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      repository.NewMemoryStore(),
		clock:      &testClock{now: time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)},
		dispatcher: &recordingDispatcher{},
		evidence:   &memEvidenceStore{},
	}
	cfg := testConfig()
	f.requests = NewRequestService(cfg, RequestDependencies{
		Store:      f.store,
		Evidence:   f.evidence,
		Dispatcher: f.dispatcher,
		Clock:      f.clock.Now,
	})
	f.sla = NewSLAService(cfg, SLADependencies{Store: f.store, Dispatcher: f.dispatcher, Clock: f.clock.Now})
	f.directory = NewDirectoryService(cfg, DirectoryDependencies{Store: f.store, Dispatcher: f.dispatcher, Clock: f.clock.Now})

	repos := f.store.Repos()
	f.dept = &domain.Department{Name: "Public Works", SLAHours: 48, IsActive: true}
	require.NoError(t, repos.Departments.Create(f.ctx, f.dept))

	f.admin = f.seedUser("Ada Admin", "admin@city.gov", domain.RoleAdmin, nil)
	f.head = f.seedUser("Hal Head", "head@city.gov", domain.RoleDeptHead, &f.dept.ID)
	f.leaderEmail = "leader@city.gov"
	f.leader = f.seedUser("Lee Leader", f.leaderEmail, domain.RoleTeamLeader, &f.dept.ID)
	f.member = f.seedUser("Mo Member", "member@city.gov", domain.RoleTeamMember, &f.dept.ID)
	f.citizen = f.seedUser("Cy Citizen", "citizen@mail.com", domain.RoleCitizen, nil)
	f.other = f.seedUser("Oz Other", "other@mail.com", domain.RoleCitizen, nil)

	f.dept.HeadID = &f.head.UserID
	require.NoError(t, repos.Departments.Update(f.ctx, f.dept))

	f.team = &domain.Team{
		DepartmentID: f.dept.ID,
		Name:         "Road Crew",
		LeaderID:     f.leader.UserID,
		MemberIDs:    []string{f.member.UserID},
		IsActive:     true,
	}
	require.NoError(t, repos.Teams.Create(f.ctx, f.team))
	return f
}

func (f *fixture) seedUser(name, email string, role domain.Role, deptID *string) domain.Actor {
	f.t.Helper()
	user := &domain.User{Name: name, Email: email, Role: role, DepartmentID: deptID, IsActive: true}
	require.NoError(f.t, f.store.Repos().Users.Create(f.ctx, user))
	return domain.ActorFromUser(user)
}

func (f *fixture) createRequest(serviceType string) *domain.Request {
	f.t.Helper()
	req, err := f.requests.CreateRequest(f.ctx, f.citizen, domain.NewRequestInput{
		ServiceType:  serviceType,
		Description:  "Deep pothole near the school crossing",
		DepartmentID: &f.dept.ID,
		Location:     &domain.Location{Address: "12 Main St"},
	})
	require.NoError(f.t, err)
	return req
}

// assigned drives a new request to assigned.
func (f *fixture) assigned() *domain.Request {
	f.t.Helper()
	req := f.createRequest("Pothole Repair")
	_, err := f.requests.ValidateRequest(f.ctx, f.head, req.ID, domain.DecisionValid, "")
	require.NoError(f.t, err)
	req, err = f.requests.AssignTeamLeader(f.ctx, f.head, req.ID, AssignInput{TeamLeaderID: f.leader.UserID})
	require.NoError(f.t, err)
	return req
}

func (f *fixture) teamTask(title string) TaskInput {
	return TaskInput{
		Title:           title,
		AssignedTeamID:  &f.team.ID,
		AssignedMembers: []string{f.member.UserID},
	}
}

// completedOnSite drives a request through one finished task and a submitted report.
func (f *fixture) completedOnSite() (*domain.Request, string) {
	f.t.Helper()
	req := f.assigned()
	_, task, err := f.requests.AddTask(f.ctx, f.leader, req.ID, f.teamTask("Fill pothole"))
	require.NoError(f.t, err)
	for _, next := range []domain.TaskStatus{domain.TaskStatusInProgress, domain.TaskStatusCompleted} {
		_, _, err = f.requests.UpdateTaskStatus(f.ctx, f.member, req.ID, task.ID, next, "")
		require.NoError(f.t, err)
	}
	req, err = f.requests.SubmitCompletion(f.ctx, f.leader, req.ID, task.ID, CompletionInput{TimeTakenHours: 3, Notes: "patched"},
		[]EvidenceUpload{{FileName: "after.jpg", MimeType: "image/jpeg", Content: bytes.NewReader(jpegHeader)}})
	require.NoError(f.t, err)
	return req, task.ID
}

// Leading bytes that content sniffing recognizes.
var (
	pngHeader  = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	jpegHeader = []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00")
	pdfHeader  = []byte("%PDF-1.7\n%\xe2\xe3\xcf\xd3\n1 0 obj\n")
)

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	require.Truef(t, apperrors.HasCode(err, code), "expected %s, got %v", code, err)
}

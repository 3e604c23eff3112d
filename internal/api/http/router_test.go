package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/civic-service/internal/api/http/handlers"
	"github.com/spec-kit/civic-service/internal/auth"
	"github.com/spec-kit/civic-service/internal/config"
	"github.com/spec-kit/civic-service/internal/domain"
	"github.com/spec-kit/civic-service/internal/events"
	"github.com/spec-kit/civic-service/internal/persistence"
	"github.com/spec-kit/civic-service/internal/repository"
	"github.com/spec-kit/civic-service/internal/service"
)

type testServer struct {
	t      *testing.T
	app    *fiber.App
	store  *repository.MemoryStore
	tokens *auth.TokenManager
	dept   *domain.Department
	team   *domain.Team
	users  map[domain.Role]*domain.User
	member *domain.User
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := config.Config{
		App:       config.AppConfig{Name: "civic-service", Version: "test"},
		Auth:      config.AuthConfig{JWTSecret: "router-secret", AccessTokenTTLMinutes: 5, BcryptCost: 4},
		Lifecycle: config.LifecycleConfig{OperationTimeoutSeconds: 5, MaxConflictRetries: 3},
		SLA:       config.SLAConfig{DefaultHours: 72, SweepConcurrency: 2},
		Evidence:  config.EvidenceConfig{Dir: t.TempDir(), PublicBaseURL: "/uploads/evidence", MaxFileBytes: 1 << 20, MaxFiles: 3},
	}
	logger := zap.NewNop()
	store := repository.NewMemoryStore()
	dispatcher := events.NewInMemoryDispatcher(logger)

	authService := service.NewAuthService(cfg, store.Repos().Users)
	requestService := service.NewRequestService(cfg, service.RequestDependencies{
		Store:      store,
		Evidence:   persistence.NewLocalEvidenceStore(cfg.Evidence),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	slaService := service.NewSLAService(cfg, service.SLADependencies{Store: store, Dispatcher: dispatcher, Logger: logger})
	directoryService := service.NewDirectoryService(cfg, service.DirectoryDependencies{Store: store, Dispatcher: dispatcher, Logger: logger})

	app := fiber.New()
	RegisterMiddlewares(app, logger, 0)
	RegisterRoutes(app, RouteConfig{
		ServiceName:     cfg.App.Name,
		Health:          handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, nil, nil),
		Auth:            handlers.NewAuthHandler(authService),
		Requests:        handlers.NewRequestsHandler(requestService),
		Tasks:           handlers.NewTasksHandler(requestService),
		SLA:             handlers.NewSLAHandler(slaService),
		Directory:       handlers.NewDirectoryHandler(directoryService),
		AuthMiddleware:  auth.NewAuthMiddleware(authService.TokenManager(), store.Repos().Users),
		MetricsRegistry: prometheus.NewRegistry(),
		EvidenceDir:     cfg.Evidence.Dir,
		EvidencePath:    cfg.Evidence.PublicBaseURL,
	})

	s := &testServer{t: t, app: app, store: store, tokens: authService.TokenManager(), users: map[domain.Role]*domain.User{}}
	ctx := context.Background()
	repos := store.Repos()
	s.dept = &domain.Department{Name: "Public Works", SLAHours: 48, IsActive: true}
	require.NoError(t, repos.Departments.Create(ctx, s.dept))
	for _, role := range []domain.Role{domain.RoleAdmin, domain.RoleDeptHead, domain.RoleTeamLeader, domain.RoleCitizen} {
		s.users[role] = s.seed(string(role)+"@city.gov", role)
	}
	s.member = s.seed("member@city.gov", domain.RoleTeamMember)
	s.dept.HeadID = &s.users[domain.RoleDeptHead].ID
	require.NoError(t, repos.Departments.Update(ctx, s.dept))
	s.team = &domain.Team{
		DepartmentID: s.dept.ID,
		Name:         "Road Crew",
		LeaderID:     s.users[domain.RoleTeamLeader].ID,
		MemberIDs:    []string{s.member.ID},
		IsActive:     true,
	}
	require.NoError(t, repos.Teams.Create(ctx, s.team))
	return s
}

func (s *testServer) seed(email string, role domain.Role) *domain.User {
	s.t.Helper()
	user := &domain.User{Name: string(role), Email: email, Role: role, IsActive: true}
	if role != domain.RoleCitizen && !role.IsAdmin() {
		user.DepartmentID = &s.dept.ID
	}
	require.NoError(s.t, s.store.Repos().Users.Create(context.Background(), user))
	return user
}

func (s *testServer) token(user *domain.User) string {
	s.t.Helper()
	token, _, err := s.tokens.GenerateToken(user.ID, user.Role)
	require.NoError(s.t, err)
	return token
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func (s *testServer) do(method, path string, as *domain.User, body any) (int, envelope) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	return s.send(req, as)
}

func (s *testServer) send(req *nethttp.Request, as *domain.User) (int, envelope) {
	s.t.Helper()
	if as != nil {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+s.token(as))
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(s.t, err)
	defer resp.Body.Close()
	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(s.t, err)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &env)
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

type requestView struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Tasks  []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"tasks"`
	Completion *struct {
		EvidenceURLs []string `json:"evidence_urls"`
	} `json:"completion"`
}

func TestHealthEndpoints(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(nethttp.MethodGet, "/health/live", nil, nil)
	assert.Equal(t, fiber.StatusOK, status)

	req := httptest.NewRequest(nethttp.MethodGet, "/health/ready", nil)
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	var body struct {
		Status       string            `json:"status"`
		Store        string            `json:"store"`
		Dependencies map[string]string `json:"dependencies"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "disabled", body.Dependencies["postgres"])
	assert.Equal(t, "disabled", body.Dependencies["redis"])
	assert.Equal(t, "memory", body.Store)

	metrics, err := s.app.Test(httptest.NewRequest(nethttp.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, metrics.StatusCode)
}

func TestRegisterLoginAndMe(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(nethttp.MethodPost, "/api/v1/auth/register", nil, map[string]string{
		"name": "Nia", "email": "nia@mail.com", "password": "s3cret-pass",
	})
	require.Equal(t, fiber.StatusCreated, status)

	status, env = s.do(nethttp.MethodPost, "/api/v1/auth/login", nil, map[string]string{
		"email": "nia@mail.com", "password": "s3cret-pass",
	})
	require.Equal(t, fiber.StatusOK, status)
	session := decode[struct {
		Auth struct {
			Token string `json:"token"`
		} `json:"auth"`
	}](t, env)
	require.NotEmpty(t, session.Auth.Token)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+session.Auth.Token)
	status, env = s.send(req, nil)
	require.Equal(t, fiber.StatusOK, status)
	me := decode[struct {
		Email string `json:"email"`
		Role  string `json:"role"`
	}](t, env)
	assert.Equal(t, "nia@mail.com", me.Email)
	assert.Equal(t, "citizen", me.Role)

	status, env = s.do(nethttp.MethodPost, "/api/v1/auth/login", nil, map[string]string{
		"email": "nia@mail.com", "password": "wrong-pass",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(nethttp.MethodGet, "/api/v1/requests", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	req := httptest.NewRequest(nethttp.MethodGet, "/api/v1/requests", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer not-a-token")
	status, _ = s.send(req, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
}

func TestCapabilityGate(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(nethttp.MethodPost, "/api/v1/requests", s.users[domain.RoleTeamLeader], map[string]any{
		"service_type": "Streetlight", "description": "lamp out",
	})
	assert.Equal(t, fiber.StatusForbidden, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	status, _ = s.do(nethttp.MethodPost, "/api/v1/sla/sweep", s.member, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestInvalidTransitionReportsAllowedSteps(t *testing.T) {
	s := newTestServer(t)
	citizen := s.users[domain.RoleCitizen]
	head := s.users[domain.RoleDeptHead]

	status, env := s.do(nethttp.MethodPost, "/api/v1/requests", citizen, map[string]any{
		"service_type":  "Streetlight",
		"description":   "lamp out near the park",
		"department_id": s.dept.ID,
		"location":      map[string]any{"address": "1 Park Ave"},
	})
	require.Equal(t, fiber.StatusCreated, status)
	created := decode[requestView](t, env)
	assert.Equal(t, "submitted", created.Status)

	status, _ = s.do(nethttp.MethodPost, "/api/v1/requests/"+created.ID+"/validate", head, map[string]string{"decision": "invalid"})
	require.Equal(t, fiber.StatusOK, status)

	status, env = s.do(nethttp.MethodPost, "/api/v1/requests/"+created.ID+"/assign", head, map[string]string{
		"team_leader_id": s.users[domain.RoleTeamLeader].ID,
	})
	assert.Equal(t, fiber.StatusConflict, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_STATE", env.Error.Code)
	assert.Contains(t, env.Error.Details, "allowed")

	status, env = s.do(nethttp.MethodGet, "/api/v1/requests/missing", citizen, nil)
	assert.Equal(t, fiber.StatusNotFound, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

// completionForm builds a multipart completion submission with one file declared as image/png.
func completionForm(t *testing.T, base, taskID string, content []byte) *nethttp.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("task_id", taskID))
	require.NoError(t, mw.WriteField("time_taken_hours", "2.5"))
	require.NoError(t, mw.WriteField("notes", "patched and compacted"))
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="evidence"; filename="after.png"`)
	header.Set("Content-Type", "image/png")
	part, err := mw.CreatePart(header)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(nethttp.MethodPost, base+"/completion", &buf)
	req.Header.Set(fiber.HeaderContentType, mw.FormDataContentType())
	return req
}

func TestCompletionWithEvidenceUpload(t *testing.T) {
	s := newTestServer(t)
	citizen := s.users[domain.RoleCitizen]
	head := s.users[domain.RoleDeptHead]
	leader := s.users[domain.RoleTeamLeader]

	status, env := s.do(nethttp.MethodPost, "/api/v1/requests", citizen, map[string]any{
		"service_type": "Pothole Repair", "description": "deep pothole", "department_id": s.dept.ID,
	})
	require.Equal(t, fiber.StatusCreated, status)
	id := decode[requestView](t, env).ID
	base := "/api/v1/requests/" + id

	status, _ = s.do(nethttp.MethodPost, base+"/validate", head, map[string]string{"decision": "valid"})
	require.Equal(t, fiber.StatusOK, status)
	status, _ = s.do(nethttp.MethodPost, base+"/assign", head, map[string]string{"team_leader_email": leader.Email})
	require.Equal(t, fiber.StatusOK, status)

	status, env = s.do(nethttp.MethodPost, base+"/tasks", leader, map[string]any{
		"title": "Fill pothole", "assigned_team_id": s.team.ID, "assigned_members": []string{s.member.ID},
	})
	require.Equal(t, fiber.StatusCreated, status)
	taskID := decode[struct {
		Task struct {
			ID string `json:"id"`
		} `json:"task"`
	}](t, env).Task.ID

	for _, next := range []string{"in_progress", "completed"} {
		status, _ = s.do(nethttp.MethodPatch, base+"/tasks/"+taskID, s.member, map[string]string{"status": next})
		require.Equal(t, fiber.StatusOK, status, next)
	}

	// a script labelled as a png is refused on its content
	status, env = s.send(completionForm(t, base, taskID, []byte("#!/bin/sh\nrm -rf /\n")), leader)
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	png := append([]byte("\x89PNG\r\n\x1a\n"), []byte("\x00\x00\x00\rIHDR")...)
	status, env = s.send(completionForm(t, base, taskID, png), leader)
	require.Equal(t, fiber.StatusOK, status)
	view := decode[requestView](t, env)
	assert.Equal(t, "completed_on_site", view.Status)
	require.NotNil(t, view.Completion)
	require.Len(t, view.Completion.EvidenceURLs, 1)

	status, env = s.do(nethttp.MethodGet, base+"/evidence", citizen, nil)
	require.Equal(t, fiber.StatusOK, status)
	evidence := decode[[]struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}](t, env)
	require.Len(t, evidence, 1)
	assert.Equal(t, "image/png", evidence[0].MimeType)

	file, err := s.app.Test(httptest.NewRequest(nethttp.MethodGet, evidence[0].URL, nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, file.StatusCode)

	status, env = s.do(nethttp.MethodPost, base+"/verify", head, map[string]string{"decision": "accepted"})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "completed", decode[requestView](t, env).Status)

	status, _ = s.do(nethttp.MethodPost, base+"/feedback", citizen, map[string]any{"rating": 5, "comment": "fast"})
	require.Equal(t, fiber.StatusOK, status)
}

func TestDirectoryRoutes(t *testing.T) {
	s := newTestServer(t)
	admin := s.users[domain.RoleAdmin]
	head := s.users[domain.RoleDeptHead]

	status, env := s.do(nethttp.MethodPost, "/api/v1/departments", admin, map[string]any{"name": "Water Board", "sla_hours": 24})
	require.Equal(t, fiber.StatusCreated, status)
	water := decode[struct {
		ID string `json:"id"`
	}](t, env)

	status, env = s.do(nethttp.MethodPost, "/api/v1/departments", admin, map[string]any{"name": "water board"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	require.NotNil(t, env.Error)
	assert.Equal(t, "VALIDATION_FAILED", env.Error.Code)

	status, _ = s.do(nethttp.MethodPatch, "/api/v1/departments/"+water.ID+"/sla", head, map[string]any{"sla_hours": 12})
	assert.Equal(t, fiber.StatusForbidden, status, "head of another department")

	status, env = s.do(nethttp.MethodPost, "/api/v1/users", admin, map[string]any{
		"name": "New Worker", "email": "worker@city.gov", "password": "long-enough",
		"role": "team_member", "department_id": s.dept.ID,
	})
	require.Equal(t, fiber.StatusCreated, status)
	worker := decode[struct {
		ID string `json:"id"`
	}](t, env)

	status, env = s.do(nethttp.MethodPost, "/api/v1/teams/"+s.team.ID+"/members", head, map[string]any{"user_ids": []string{worker.ID}})
	require.Equal(t, fiber.StatusOK, status)
	team := decode[struct {
		MemberIDs []string `json:"member_ids"`
	}](t, env)
	assert.Contains(t, team.MemberIDs, worker.ID)

	status, _ = s.do(nethttp.MethodDelete, "/api/v1/users/"+worker.ID, admin, nil)
	assert.Equal(t, fiber.StatusBadRequest, status, "still a team member")

	status, _ = s.do(nethttp.MethodDelete, "/api/v1/teams/"+s.team.ID+"/members/"+worker.ID, head, nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = s.do(nethttp.MethodDelete, "/api/v1/users/"+worker.ID, admin, nil)
	assert.Equal(t, fiber.StatusNoContent, status)

	status, env = s.do(nethttp.MethodGet, "/api/v1/users", head, nil)
	require.Equal(t, fiber.StatusOK, status)
	users := decode[[]struct {
		ID string `json:"id"`
	}](t, env)
	assert.Len(t, users, 3)
}

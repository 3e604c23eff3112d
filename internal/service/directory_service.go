package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/civic-service/internal/auth"
	"github.com/spec-kit/civic-service/internal/config"
	"github.com/spec-kit/civic-service/internal/domain"
	"github.com/spec-kit/civic-service/internal/events"
	"github.com/spec-kit/civic-service/internal/repository"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

// DirectoryService manages departments, teams and user accounts.
type DirectoryService struct {
	store      repository.Store
	mut        *mutator
	dispatcher events.Dispatcher
	logger     *zap.Logger
	bcryptCost int
}

// DirectoryDependencies bundles collaborators of the directory service.
type DirectoryDependencies struct {
	Store      repository.Store
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
	Clock      func() time.Time
}

// DepartmentInput describes a new department.
type DepartmentInput struct {
	Name        string
	Description string
	SLAHours    int
	CategorySLA map[string]int
}

// TeamInput describes a new team.
type TeamInput struct {
	DepartmentID string
	Name         string
	Description  string
	LeaderID     string
	MemberIDs    []string
}

// UserInput describes an account provisioned by an administrator.
type UserInput struct {
	Name         string
	Email        string
	Phone        string
	Password     string
	Role         domain.Role
	DepartmentID *string
	ManagerID    *string
}

// NewDirectoryService constructs the service.
func NewDirectoryService(cfg config.Config, deps DirectoryDependencies) *DirectoryService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DirectoryService{
		store:      deps.Store,
		mut:        newMutator(cfg.Lifecycle, deps.Store, nil, logger, deps.Clock),
		dispatcher: deps.Dispatcher,
		logger:     logger,
		bcryptCost: cfg.Auth.BcryptCost,
	}
}

func requireAdmin(actor domain.Actor) error {
	if !actor.Role.IsAdmin() {
		return apperrors.NewForbidden("admin role required")
	}
	return nil
}

// requireDepartmentManager admits admins and the head of departmentID.
func requireDepartmentManager(actor domain.Actor, departmentID string) error {
	if actor.Role.IsAdmin() {
		return nil
	}
	if actor.Role == domain.RoleDeptHead && actor.DepartmentID != nil && *actor.DepartmentID == departmentID {
		return nil
	}
	return apperrors.NewForbidden("only an admin or the department head may manage this department")
}

// CreateDepartment creates a department with a unique name.
func (s *DirectoryService) CreateDepartment(ctx context.Context, actor domain.Actor, in DepartmentInput) (*domain.Department, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("department name is required", nil)
	}
	categorySLA, err := validateSLAHours(in.SLAHours, in.CategorySLA)
	if err != nil {
		return nil, err
	}
	departments := s.store.Repos().Departments
	if _, err := departments.GetByName(ctx, name); err == nil {
		return nil, apperrors.NewValidationError("department name already exists", map[string]any{"name": name})
	} else if !repository.IsNotFound(err) {
		return nil, apperrors.MapError(err)
	}

	dept := &domain.Department{
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		SLAHours:    in.SLAHours,
		CategorySLA: categorySLA,
		IsActive:    true,
	}
	if err := departments.Create(ctx, dept); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.NewValidationError("department name already exists", map[string]any{"name": name})
		}
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// UpdateDepartmentSLA changes the flat SLA and, when given, replaces the category overrides.
func (s *DirectoryService) UpdateDepartmentSLA(ctx context.Context, actor domain.Actor, departmentID string, slaHours *int, categorySLA map[string]int) (*domain.Department, error) {
	if err := requireDepartmentManager(actor, departmentID); err != nil {
		return nil, err
	}
	flat := 0
	if slaHours != nil {
		flat = *slaHours
	}
	categorySLA, err := validateSLAHours(flat, categorySLA)
	if err != nil {
		return nil, err
	}
	departments := s.store.Repos().Departments
	dept, err := s.getDepartment(ctx, departments, departmentID)
	if err != nil {
		return nil, err
	}
	if slaHours != nil {
		dept.SLAHours = *slaHours
	}
	if categorySLA != nil {
		dept.CategorySLA = categorySLA
	}
	if err := departments.Update(ctx, dept); err != nil {
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

// validateSLAHours checks the SLA settings and returns the overrides keyed by normalized
// category name. Keys that differ only in case or surrounding space are rejected.
func validateSLAHours(flat int, categorySLA map[string]int) (map[string]int, error) {
	if flat < 0 {
		return nil, apperrors.NewValidationError("sla_hours must not be negative", map[string]any{"sla_hours": flat})
	}
	if categorySLA == nil {
		return nil, nil
	}
	normalized := make(map[string]int, len(categorySLA))
	for category, hours := range categorySLA {
		key := domain.NormalizeCategory(category)
		if key == "" || hours <= 0 {
			return nil, apperrors.NewValidationError("category SLA entries need a name and positive hours",
				map[string]any{"category": category, "hours": hours})
		}
		if _, dup := normalized[key]; dup {
			return nil, apperrors.NewValidationError("category SLA names must be unique ignoring case",
				map[string]any{"category": key})
		}
		normalized[key] = hours
	}
	return normalized, nil
}

// AssignDepartmentHead swaps the department head in one transaction: the previous head is
// demoted to team_member, the new head promoted and the department pointer moved.
func (s *DirectoryService) AssignDepartmentHead(ctx context.Context, actor domain.Actor, departmentID, userID string) (*domain.Department, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	var (
		dept     *domain.Department
		previous *string
	)
	err := s.mut.run(ctx, "assign_department_head", nil, true, func(ctx context.Context, repos repository.Repositories) error {
		d, err := s.getDepartment(ctx, repos.Departments, departmentID)
		if err != nil {
			return err
		}
		user, err := s.getUser(ctx, repos.Users, userID)
		if err != nil {
			return err
		}
		if !user.IsActive || user.Role == domain.RoleCitizen || user.Role.IsAdmin() {
			return apperrors.NewValidationError("department head must be an active staff member", map[string]any{"user_id": userID})
		}
		if other, err := repos.Departments.GetByHead(ctx, userID); err == nil && other.ID != d.ID {
			return apperrors.NewValidationError("user already heads another department", map[string]any{"department_id": other.ID})
		} else if err != nil && !repository.IsNotFound(err) {
			return err
		}
		if _, err := repos.Teams.GetByLeader(ctx, userID); err == nil {
			return apperrors.NewValidationError("user leads a team; reassign the team leader first", map[string]any{"user_id": userID})
		} else if !repository.IsNotFound(err) {
			return err
		}

		previous = d.HeadID
		if d.HeadID != nil && *d.HeadID != userID {
			old, err := s.getUser(ctx, repos.Users, *d.HeadID)
			switch {
			case err == nil:
				old.Role = domain.RoleTeamMember
				if err := repos.Users.Update(ctx, old); err != nil {
					return err
				}
			case !apperrors.HasCode(err, apperrors.CodeNotFound):
				return err
			}
		}

		user.Role = domain.RoleDeptHead
		user.DepartmentID = &d.ID
		if err := repos.Users.Update(ctx, user); err != nil {
			return err
		}
		head := user.ID
		d.HeadID = &head
		if err := repos.Departments.Update(ctx, d); err != nil {
			return err
		}
		dept = d
		return nil
	})
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	s.logger.Info("department head assigned", zap.String("department_id", departmentID), zap.String("user_id", userID))
	publishEvent(ctx, s.dispatcher, events.New(events.EventDepartmentHeadSet, "", &actor, s.mut.now(), events.DirectoryPayload{
		DepartmentID: departmentID,
		PreviousID:   previous,
		NewID:        userID,
	}))
	return dept, nil
}

// CreateTeam creates a team led by a team leader of the same department.
func (s *DirectoryService) CreateTeam(ctx context.Context, actor domain.Actor, in TeamInput) (*domain.Team, error) {
	if err := requireDepartmentManager(actor, in.DepartmentID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, apperrors.NewValidationError("team name is required", nil)
	}
	repos := s.store.Repos()
	dept, err := s.getDepartment(ctx, repos.Departments, in.DepartmentID)
	if err != nil {
		return nil, err
	}
	if !dept.IsActive {
		return nil, apperrors.NewValidationError("department is inactive", map[string]any{"department_id": dept.ID})
	}
	leader, err := s.getUser(ctx, repos.Users, in.LeaderID)
	if err != nil {
		return nil, err
	}
	if err := s.checkLeader(ctx, repos, leader, dept.ID, ""); err != nil {
		return nil, err
	}
	members := dedupe(in.MemberIDs)
	for _, memberID := range members {
		if err := s.checkMember(ctx, repos, memberID, dept.ID); err != nil {
			return nil, err
		}
	}

	team := &domain.Team{
		DepartmentID: dept.ID,
		Name:         name,
		Description:  strings.TrimSpace(in.Description),
		LeaderID:     leader.ID,
		MemberIDs:    members,
		IsActive:     true,
	}
	if err := repos.Teams.Create(ctx, team); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.NewValidationError("team leader already leads an active team", map[string]any{"leader_id": leader.ID})
		}
		return nil, apperrors.MapError(err)
	}
	return team, nil
}

// AddTeamMembers adds team_member users of the team's department.
func (s *DirectoryService) AddTeamMembers(ctx context.Context, actor domain.Actor, teamID string, userIDs []string) (*domain.Team, error) {
	if len(userIDs) == 0 {
		return nil, apperrors.NewValidationError("at least one member is required", nil)
	}
	repos := s.store.Repos()
	team, err := s.getTeam(ctx, repos.Teams, teamID)
	if err != nil {
		return nil, err
	}
	if err := requireDepartmentManager(actor, team.DepartmentID); err != nil {
		return nil, err
	}
	for _, userID := range dedupe(userIDs) {
		if err := s.checkMember(ctx, repos, userID, team.DepartmentID); err != nil {
			return nil, err
		}
		team.AddMember(userID)
	}
	if err := repos.Teams.Update(ctx, team); err != nil {
		return nil, apperrors.MapError(err)
	}
	return team, nil
}

// RemoveTeamMember drops a member from a team.
func (s *DirectoryService) RemoveTeamMember(ctx context.Context, actor domain.Actor, teamID, userID string) (*domain.Team, error) {
	repos := s.store.Repos()
	team, err := s.getTeam(ctx, repos.Teams, teamID)
	if err != nil {
		return nil, err
	}
	if err := requireDepartmentManager(actor, team.DepartmentID); err != nil {
		return nil, err
	}
	if !team.RemoveMember(userID) {
		return nil, apperrors.NewNotFound("team member", map[string]any{"team_id": teamID, "user_id": userID})
	}
	if err := repos.Teams.Update(ctx, team); err != nil {
		return nil, apperrors.MapError(err)
	}
	return team, nil
}

// ReassignTeamLeader replaces a team's leader in one transaction: the old leader becomes a
// team member, the new one is promoted, and the old leader's open requests move over.
func (s *DirectoryService) ReassignTeamLeader(ctx context.Context, actor domain.Actor, teamID, newLeaderID string) (*domain.Team, int, error) {
	var (
		team     *domain.Team
		previous string
		moved    int
	)
	err := s.mut.run(ctx, "reassign_team_leader", nil, true, func(ctx context.Context, repos repository.Repositories) error {
		moved = 0
		t, err := s.getTeam(ctx, repos.Teams, teamID)
		if err != nil {
			return err
		}
		if err := requireDepartmentManager(actor, t.DepartmentID); err != nil {
			return err
		}
		if t.LeaderID == newLeaderID {
			return apperrors.NewValidationError("user already leads this team", map[string]any{"user_id": newLeaderID})
		}
		next, err := s.getUser(ctx, repos.Users, newLeaderID)
		if err != nil {
			return err
		}
		if !next.IsActive || (next.Role != domain.RoleTeamLeader && next.Role != domain.RoleTeamMember) {
			return apperrors.NewValidationError("new leader must be an active team leader or team member", map[string]any{"user_id": next.ID})
		}
		if !next.InDepartment(t.DepartmentID) {
			return apperrors.NewValidationError("new leader must belong to the team's department", map[string]any{"user_id": next.ID})
		}
		if other, err := repos.Teams.GetByLeader(ctx, next.ID); err == nil && other.ID != t.ID {
			return apperrors.NewValidationError("user already leads another team", map[string]any{"team_id": other.ID})
		} else if err != nil && !repository.IsNotFound(err) {
			return err
		}

		previous = t.LeaderID
		if old, err := s.getUser(ctx, repos.Users, previous); err == nil {
			old.Role = domain.RoleTeamMember
			if err := repos.Users.Update(ctx, old); err != nil {
				return err
			}
			t.AddMember(old.ID)
		} else if !apperrors.HasCode(err, apperrors.CodeNotFound) {
			return err
		}

		next.Role = domain.RoleTeamLeader
		if err := repos.Users.Update(ctx, next); err != nil {
			return err
		}
		t.RemoveMember(next.ID)
		t.LeaderID = next.ID
		if err := repos.Teams.Update(ctx, t); err != nil {
			return err
		}

		open, err := repos.Requests.ListActiveByLeader(ctx, previous)
		if err != nil {
			return err
		}
		now := s.mut.now()
		for _, req := range open {
			req.RepointLeader(next.ID, now)
			if err := repos.Requests.Save(ctx, req); err != nil {
				return err
			}
			moved++
		}
		team = t
		return nil
	})
	if err != nil {
		return nil, 0, apperrors.MapError(err)
	}
	s.logger.Info("team leader reassigned",
		zap.String("team_id", teamID),
		zap.String("previous_leader_id", previous),
		zap.String("new_leader_id", newLeaderID),
		zap.Int("requests_moved", moved))
	publishEvent(ctx, s.dispatcher, events.New(events.EventTeamLeaderChanged, "", &actor, s.mut.now(), events.DirectoryPayload{
		DepartmentID: team.DepartmentID,
		TeamID:       team.ID,
		PreviousID:   &previous,
		NewID:        newLeaderID,
		Reassigned:   moved,
	}))
	return team, moved, nil
}

// ProvisionUser creates a staff or citizen account.
func (s *DirectoryService) ProvisionUser(ctx context.Context, actor domain.Actor, in UserInput) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !in.Role.Valid() {
		return nil, apperrors.NewValidationError("unknown role", map[string]any{"role": in.Role})
	}
	if in.Role == domain.RoleSuperAdmin && actor.Role != domain.RoleSuperAdmin {
		return nil, apperrors.NewForbidden("only a super admin may create super admins")
	}
	if in.Role == domain.RoleDeptHead {
		return nil, apperrors.NewValidationError("department heads are appointed through the department head assignment", nil)
	}
	repos := s.store.Repos()
	if in.Role == domain.RoleTeamLeader || in.Role == domain.RoleTeamMember {
		if in.DepartmentID == nil || *in.DepartmentID == "" {
			return nil, apperrors.NewValidationError("department_id is required for team staff", nil)
		}
	}
	if in.DepartmentID != nil && *in.DepartmentID != "" {
		if _, err := s.getDepartment(ctx, repos.Departments, *in.DepartmentID); err != nil {
			return nil, err
		}
	} else {
		in.DepartmentID = nil
	}
	if in.ManagerID != nil {
		if _, err := s.getUser(ctx, repos.Users, *in.ManagerID); err != nil {
			return nil, err
		}
	}
	user, err := newAccount(ctx, repos.Users, in, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// newAccount hashes the password and inserts the user, rejecting duplicate emails.
func newAccount(ctx context.Context, users repository.UserRepository, in UserInput, bcryptCost int) (*domain.User, error) {
	name := strings.TrimSpace(in.Name)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if name == "" || email == "" || !strings.Contains(email, "@") {
		return nil, apperrors.NewValidationError("name and a valid email are required", nil)
	}
	if len(in.Password) < 8 {
		return nil, apperrors.NewValidationError("password must be at least 8 characters", nil)
	}
	if _, err := users.GetByEmail(ctx, email); err == nil {
		return nil, apperrors.NewValidationError("email already registered", map[string]any{"email": email})
	} else if !repository.IsNotFound(err) {
		return nil, apperrors.MapError(err)
	}

	hash, err := auth.HashPassword(in.Password, bcryptCost)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	user := &domain.User{
		Name:         name,
		Email:        email,
		Phone:        strings.TrimSpace(in.Phone),
		PasswordHash: hash,
		Role:         in.Role,
		DepartmentID: in.DepartmentID,
		ManagerID:    in.ManagerID,
		IsActive:     true,
	}
	if err := users.Create(ctx, user); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, apperrors.NewValidationError("email already registered", map[string]any{"email": email})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// DeactivateUser soft-deletes an account that holds no leadership position.
func (s *DirectoryService) DeactivateUser(ctx context.Context, actor domain.Actor, userID string) (*domain.User, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	repos := s.store.Repos()
	user, err := s.getUser(ctx, repos.Users, userID)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNoLeadership(ctx, repos, userID); err != nil {
		return nil, err
	}
	user.IsActive = false
	if err := repos.Users.Update(ctx, user); err != nil {
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

// DeleteUser hard-deletes an account that is not linked to any team or department.
func (s *DirectoryService) DeleteUser(ctx context.Context, actor domain.Actor, userID string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if actor.UserID == userID {
		return apperrors.NewValidationError("you cannot delete your own account", nil)
	}
	repos := s.store.Repos()
	if _, err := s.getUser(ctx, repos.Users, userID); err != nil {
		return err
	}
	if err := s.ensureNoLeadership(ctx, repos, userID); err != nil {
		return err
	}
	teams, err := repos.Teams.ListByMember(ctx, userID)
	if err != nil {
		return apperrors.MapError(err)
	}
	if len(teams) > 0 {
		return apperrors.NewValidationError("user is still a team member; remove them first", map[string]any{"team_id": teams[0].ID})
	}
	if err := repos.Users.Delete(ctx, userID); err != nil {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *DirectoryService) ensureNoLeadership(ctx context.Context, repos repository.Repositories, userID string) error {
	if dept, err := repos.Departments.GetByHead(ctx, userID); err == nil {
		return apperrors.NewValidationError("user heads a department; assign a new head first", map[string]any{"department_id": dept.ID})
	} else if !repository.IsNotFound(err) {
		return apperrors.MapError(err)
	}
	if team, err := repos.Teams.GetByLeader(ctx, userID); err == nil {
		return apperrors.NewValidationError("user leads a team; reassign the team leader first", map[string]any{"team_id": team.ID})
	} else if !repository.IsNotFound(err) {
		return apperrors.MapError(err)
	}
	return nil
}

// ListDepartments returns departments.
func (s *DirectoryService) ListDepartments(ctx context.Context, includeInactive bool) ([]domain.Department, error) {
	list, err := s.store.Repos().Departments.List(ctx, !includeInactive)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// ListTeams returns active teams, optionally for one department.
func (s *DirectoryService) ListTeams(ctx context.Context, departmentID *string) ([]domain.Team, error) {
	list, err := s.store.Repos().Teams.List(ctx, departmentID)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

// ListUsers lists accounts; department heads only see their own department.
func (s *DirectoryService) ListUsers(ctx context.Context, actor domain.Actor, filter repository.UserFilter) ([]domain.User, error) {
	switch {
	case actor.Role.IsAdmin():
	case actor.Role == domain.RoleDeptHead && actor.DepartmentID != nil:
		filter.DepartmentID = actor.DepartmentID
	default:
		return nil, apperrors.NewForbidden("admin or department head role required")
	}
	list, err := s.store.Repos().Users.List(ctx, filter)
	if err != nil {
		return nil, apperrors.MapError(err)
	}
	return list, nil
}

func (s *DirectoryService) checkLeader(ctx context.Context, repos repository.Repositories, leader *domain.User, departmentID, teamID string) error {
	if leader.Role != domain.RoleTeamLeader || !leader.IsActive {
		return apperrors.NewValidationError("team leader must be an active user with role team_leader", map[string]any{"user_id": leader.ID})
	}
	if !leader.InDepartment(departmentID) {
		return apperrors.NewValidationError("team leader must belong to the team's department", map[string]any{"user_id": leader.ID})
	}
	if other, err := repos.Teams.GetByLeader(ctx, leader.ID); err == nil && other.ID != teamID {
		return apperrors.NewValidationError("team leader already leads an active team", map[string]any{"team_id": other.ID})
	} else if err != nil && !repository.IsNotFound(err) {
		return apperrors.MapError(err)
	}
	return nil
}

func (s *DirectoryService) checkMember(ctx context.Context, repos repository.Repositories, userID, departmentID string) error {
	user, err := s.getUser(ctx, repos.Users, userID)
	if err != nil {
		return err
	}
	if user.Role != domain.RoleTeamMember || !user.IsActive {
		return apperrors.NewValidationError("team members must be active users with role team_member", map[string]any{"user_id": userID})
	}
	if !user.InDepartment(departmentID) {
		return apperrors.NewValidationError("team member must belong to the team's department", map[string]any{"user_id": userID})
	}
	return nil
}

func (s *DirectoryService) getDepartment(ctx context.Context, repo repository.DepartmentRepository, id string) (*domain.Department, error) {
	dept, err := repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("department", map[string]any{"department_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return dept, nil
}

func (s *DirectoryService) getTeam(ctx context.Context, repo repository.TeamRepository, id string) (*domain.Team, error) {
	team, err := repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("team", map[string]any{"team_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return team, nil
}

func (s *DirectoryService) getUser(ctx context.Context, repo repository.UserRepository, id string) (*domain.User, error) {
	user, err := repo.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperrors.NewNotFound("user", map[string]any{"user_id": id})
		}
		return nil, apperrors.MapError(err)
	}
	return user, nil
}

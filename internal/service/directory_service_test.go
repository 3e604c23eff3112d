package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/civic-service/internal/domain"
	"github.com/spec-kit/civic-service/internal/events"
	"github.com/spec-kit/civic-service/internal/repository"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

func (f *fixture) provision(email string, role domain.Role) *domain.User {
	f.t.Helper()
	user, err := f.directory.ProvisionUser(f.ctx, f.admin, UserInput{
		Name:         "New " + string(role),
		Email:        email,
		Password:     "correct-horse",
		Role:         role,
		DepartmentID: &f.dept.ID,
	})
	require.NoError(f.t, err)
	return user
}

func TestCreateDepartmentUniqueName(t *testing.T) {
	f := newFixture(t)

	dept, err := f.directory.CreateDepartment(f.ctx, f.admin, DepartmentInput{Name: "Water Board", SLAHours: 24})
	require.NoError(t, err)
	assert.True(t, dept.IsActive)

	_, err = f.directory.CreateDepartment(f.ctx, f.admin, DepartmentInput{Name: "public works"})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.directory.CreateDepartment(f.ctx, f.head, DepartmentInput{Name: "Parks"})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.directory.CreateDepartment(f.ctx, f.admin, DepartmentInput{Name: "Parks", CategorySLA: map[string]int{"Tree Fall": 0}})
	requireCode(t, err, apperrors.CodeValidation)
}

func TestDepartmentCategorySLAKeysAreNormalized(t *testing.T) {
	f := newFixture(t)

	_, err := f.directory.CreateDepartment(f.ctx, f.admin, DepartmentInput{
		Name:        "Lighting",
		CategorySLA: map[string]int{"Streetlight": 6, "streetlight ": 12},
	})
	requireCode(t, err, apperrors.CodeValidation)

	dept, err := f.directory.UpdateDepartmentSLA(f.ctx, f.admin, f.dept.ID, nil, map[string]int{" Streetlight": 6})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"streetlight": 6}, dept.CategorySLA)

	_, err = f.directory.UpdateDepartmentSLA(f.ctx, f.admin, f.dept.ID, nil, map[string]int{"Drainage": 5, "DRAINAGE": 9})
	requireCode(t, err, apperrors.CodeValidation)

	stored, err := f.store.Repos().Departments.GetByID(f.ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"streetlight": 6}, stored.CategorySLA)
}

func TestAssignDepartmentHeadSwapsRoles(t *testing.T) {
	f := newFixture(t)
	successor := f.provision("successor@city.gov", domain.RoleTeamMember)

	dept, err := f.directory.AssignDepartmentHead(f.ctx, f.admin, f.dept.ID, successor.ID)
	require.NoError(t, err)
	require.NotNil(t, dept.HeadID)
	assert.Equal(t, successor.ID, *dept.HeadID)

	users := f.store.Repos().Users
	promoted, err := users.GetByID(f.ctx, successor.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDeptHead, promoted.Role)

	demoted, err := users.GetByID(f.ctx, f.head.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeamMember, demoted.Role)
	assert.Equal(t, 1, f.dispatcher.count(events.EventDepartmentHeadSet))
}

func TestAssignDepartmentHeadRejectsTeamLeader(t *testing.T) {
	f := newFixture(t)

	_, err := f.directory.AssignDepartmentHead(f.ctx, f.admin, f.dept.ID, f.leader.UserID)
	requireCode(t, err, apperrors.CodeValidation)

	stored, err := f.store.Repos().Departments.GetByID(f.ctx, f.dept.ID)
	require.NoError(t, err)
	assert.Equal(t, f.head.UserID, *stored.HeadID)
	head, err := f.store.Repos().Users.GetByID(f.ctx, f.head.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleDeptHead, head.Role)
}

func TestReassignTeamLeaderMovesOpenRequests(t *testing.T) {
	f := newFixture(t)
	req := f.assigned()

	team, moved, err := f.directory.ReassignTeamLeader(f.ctx, f.head, f.team.ID, f.member.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, moved)
	assert.Equal(t, f.member.UserID, team.LeaderID)
	assert.True(t, team.HasMember(f.leader.UserID))
	assert.False(t, team.HasMember(f.member.UserID))

	stored, err := f.requests.GetRequest(f.ctx, req.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsAssignedLeader(f.member.UserID))
	assert.Equal(t, domain.StatusAssigned, stored.Status)

	users := f.store.Repos().Users
	oldLeader, err := users.GetByID(f.ctx, f.leader.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeamMember, oldLeader.Role)
	newLeader, err := users.GetByID(f.ctx, f.member.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTeamLeader, newLeader.Role)

	_, _, err = f.directory.ReassignTeamLeader(f.ctx, f.head, f.team.ID, f.member.UserID)
	requireCode(t, err, apperrors.CodeValidation)
}

func TestCreateTeamAndMembership(t *testing.T) {
	f := newFixture(t)
	leader := f.provision("lead2@city.gov", domain.RoleTeamLeader)
	worker := f.provision("worker@city.gov", domain.RoleTeamMember)

	_, err := f.directory.CreateTeam(f.ctx, f.head, TeamInput{DepartmentID: f.dept.ID, Name: "Lights", LeaderID: f.leader.UserID})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.directory.CreateTeam(f.ctx, f.head, TeamInput{DepartmentID: f.dept.ID, Name: "Lights", LeaderID: leader.ID, MemberIDs: []string{f.citizen.UserID}})
	requireCode(t, err, apperrors.CodeValidation)

	team, err := f.directory.CreateTeam(f.ctx, f.head, TeamInput{DepartmentID: f.dept.ID, Name: "Lights", LeaderID: leader.ID})
	require.NoError(t, err)

	team, err = f.directory.AddTeamMembers(f.ctx, f.head, team.ID, []string{worker.ID, worker.ID})
	require.NoError(t, err)
	assert.Equal(t, []string{worker.ID}, team.MemberIDs)

	team, err = f.directory.RemoveTeamMember(f.ctx, f.head, team.ID, worker.ID)
	require.NoError(t, err)
	assert.Empty(t, team.MemberIDs)

	_, err = f.directory.RemoveTeamMember(f.ctx, f.head, team.ID, worker.ID)
	requireCode(t, err, apperrors.CodeNotFound)

	_, err = f.directory.AddTeamMembers(f.ctx, f.leader, team.ID, []string{worker.ID})
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestProvisionUserRules(t *testing.T) {
	f := newFixture(t)

	_, err := f.directory.ProvisionUser(f.ctx, f.admin, UserInput{Name: "X", Email: "x@city.gov", Password: "long-enough", Role: domain.RoleDeptHead})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.directory.ProvisionUser(f.ctx, f.admin, UserInput{Name: "X", Email: "x@city.gov", Password: "long-enough", Role: domain.RoleTeamMember})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.directory.ProvisionUser(f.ctx, f.admin, UserInput{Name: "X", Email: "HEAD@city.gov", Password: "long-enough", Role: domain.RoleCitizen})
	requireCode(t, err, apperrors.CodeValidation)

	_, err = f.directory.ProvisionUser(f.ctx, f.admin, UserInput{Name: "X", Email: "root@city.gov", Password: "long-enough", Role: domain.RoleSuperAdmin})
	requireCode(t, err, apperrors.CodeForbidden)

	_, err = f.directory.ProvisionUser(f.ctx, f.head, UserInput{Name: "X", Email: "y@city.gov", Password: "long-enough", Role: domain.RoleCitizen})
	requireCode(t, err, apperrors.CodeForbidden)
}

func TestDeleteAndDeactivateUser(t *testing.T) {
	f := newFixture(t)

	requireCode(t, f.directory.DeleteUser(f.ctx, f.admin, f.leader.UserID), apperrors.CodeValidation)
	requireCode(t, f.directory.DeleteUser(f.ctx, f.admin, f.member.UserID), apperrors.CodeValidation)
	requireCode(t, f.directory.DeleteUser(f.ctx, f.admin, f.admin.UserID), apperrors.CodeValidation)

	_, err := f.directory.DeactivateUser(f.ctx, f.admin, f.head.UserID)
	requireCode(t, err, apperrors.CodeValidation)

	spare := f.provision("spare@city.gov", domain.RoleTeamMember)
	deactivated, err := f.directory.DeactivateUser(f.ctx, f.admin, spare.ID)
	require.NoError(t, err)
	assert.False(t, deactivated.IsActive)

	require.NoError(t, f.directory.DeleteUser(f.ctx, f.admin, spare.ID))
	_, err = f.store.Repos().Users.GetByID(f.ctx, spare.ID)
	assert.True(t, repository.IsNotFound(err))
}

func TestListUsersScoping(t *testing.T) {
	f := newFixture(t)

	all, err := f.directory.ListUsers(f.ctx, f.admin, repository.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 6)

	scoped, err := f.directory.ListUsers(f.ctx, f.head, repository.UserFilter{})
	require.NoError(t, err)
	assert.Len(t, scoped, 3)

	_, err = f.directory.ListUsers(f.ctx, f.citizen, repository.UserFilter{})
	requireCode(t, err, apperrors.CodeForbidden)
}

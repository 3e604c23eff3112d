package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-service/internal/api/dto"
	"github.com/spec-kit/civic-service/internal/domain"
	"github.com/spec-kit/civic-service/internal/repository"
	"github.com/spec-kit/civic-service/internal/service"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

// DirectoryHandler manages departments, teams and staff accounts.
type DirectoryHandler struct {
	directory *service.DirectoryService
}

// NewDirectoryHandler constructs handler.
func NewDirectoryHandler(directoryService *service.DirectoryService) *DirectoryHandler {
	return &DirectoryHandler{directory: directoryService}
}

// CreateDepartment POST /departments.
func (h *DirectoryHandler) CreateDepartment(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateDepartmentRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	dept, err := h.directory.CreateDepartment(c.UserContext(), actor, service.DepartmentInput{
		Name:        req.Name,
		Description: req.Description,
		SLAHours:    req.SLAHours,
		CategorySLA: req.CategorySLA,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": departmentResponse(dept)})
}

// ListDepartments GET /departments.
func (h *DirectoryHandler) ListDepartments(c *fiber.Ctx) error {
	list, err := h.directory.ListDepartments(c.UserContext(), parseBoolQuery(c, "include_inactive", false))
	if err != nil {
		return err
	}
	items := make([]dto.DepartmentResponse, 0, len(list))
	for i := range list {
		items = append(items, departmentResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// UpdateDepartmentSLA PATCH /departments/:id/sla.
func (h *DirectoryHandler) UpdateDepartmentSLA(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UpdateDepartmentSLARequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	dept, err := h.directory.UpdateDepartmentSLA(c.UserContext(), actor, c.Params("id"), req.SLAHours, req.CategorySLA)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": departmentResponse(dept)})
}

// AssignDepartmentHead PUT /departments/:id/head.
func (h *DirectoryHandler) AssignDepartmentHead(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UserIDRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.UserID == "" {
		return apperrors.NewValidationError("user_id required", nil)
	}
	dept, err := h.directory.AssignDepartmentHead(c.UserContext(), actor, c.Params("id"), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": departmentResponse(dept)})
}

// CreateTeam POST /teams.
func (h *DirectoryHandler) CreateTeam(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateTeamRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	team, err := h.directory.CreateTeam(c.UserContext(), actor, service.TeamInput{
		DepartmentID: req.DepartmentID,
		Name:         req.Name,
		Description:  req.Description,
		LeaderID:     req.LeaderID,
		MemberIDs:    req.MemberIDs,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": teamResponse(team)})
}

// ListTeams GET /teams.
func (h *DirectoryHandler) ListTeams(c *fiber.Ctx) error {
	list, err := h.directory.ListTeams(c.UserContext(), optionalQuery(c, "department_id"))
	if err != nil {
		return err
	}
	items := make([]dto.TeamResponse, 0, len(list))
	for i := range list {
		items = append(items, teamResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// AddTeamMembers POST /teams/:id/members.
func (h *DirectoryHandler) AddTeamMembers(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.TeamMembersRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	team, err := h.directory.AddTeamMembers(c.UserContext(), actor, c.Params("id"), req.UserIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": teamResponse(team)})
}

// RemoveTeamMember DELETE /teams/:id/members/:userId.
func (h *DirectoryHandler) RemoveTeamMember(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	team, err := h.directory.RemoveTeamMember(c.UserContext(), actor, c.Params("id"), c.Params("userId"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": teamResponse(team)})
}

// ReassignTeamLeader PUT /teams/:id/leader.
func (h *DirectoryHandler) ReassignTeamLeader(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.UserIDRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.UserID == "" {
		return apperrors.NewValidationError("user_id required", nil)
	}
	team, moved, err := h.directory.ReassignTeamLeader(c.UserContext(), actor, c.Params("id"), req.UserID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"team":                teamResponse(team),
		"requests_reassigned": moved,
	}})
}

// CreateUser POST /users.
func (h *DirectoryHandler) CreateUser(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateUserRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	user, err := h.directory.ProvisionUser(c.UserContext(), actor, service.UserInput{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        req.Phone,
		Password:     req.Password,
		Role:         req.Role,
		DepartmentID: req.DepartmentID,
		ManagerID:    req.ManagerID,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": userResponse(user)})
}

// ListUsers GET /users.
func (h *DirectoryHandler) ListUsers(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	list, err := h.directory.ListUsers(c.UserContext(), actor, parseUserFilter(c))
	if err != nil {
		return err
	}
	items := make([]dto.UserResponse, 0, len(list))
	for i := range list {
		items = append(items, userResponse(&list[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// DeactivateUser POST /users/:id/deactivate.
func (h *DirectoryHandler) DeactivateUser(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	user, err := h.directory.DeactivateUser(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": userResponse(user)})
}

// DeleteUser DELETE /users/:id.
func (h *DirectoryHandler) DeleteUser(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.directory.DeleteUser(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseUserFilter(c *fiber.Ctx) repository.UserFilter {
	filter := repository.UserFilter{
		DepartmentID: optionalQuery(c, "department_id"),
		ActiveOnly:   parseBoolQuery(c, "active_only", false),
	}
	if roleStr := c.Query("role"); roleStr != "" {
		role := domain.Role(roleStr)
		filter.Role = &role
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 50)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func departmentResponse(dept *domain.Department) dto.DepartmentResponse {
	categories := dept.CategorySLA
	if categories == nil {
		categories = map[string]int{}
	}
	return dto.DepartmentResponse{
		ID:          dept.ID,
		Name:        dept.Name,
		Description: dept.Description,
		HeadID:      dept.HeadID,
		SLAHours:    dept.SLAHours,
		CategorySLA: categories,
		IsActive:    dept.IsActive,
		CreatedAt:   dept.CreatedAt,
		UpdatedAt:   dept.UpdatedAt,
	}
}

func teamResponse(team *domain.Team) dto.TeamResponse {
	return dto.TeamResponse{
		ID:           team.ID,
		DepartmentID: team.DepartmentID,
		Name:         team.Name,
		Description:  team.Description,
		LeaderID:     team.LeaderID,
		MemberIDs:    nonNil(team.MemberIDs),
		IsActive:     team.IsActive,
		CreatedAt:    team.CreatedAt,
		UpdatedAt:    team.UpdatedAt,
	}
}

func userResponse(user *domain.User) dto.UserResponse {
	return dto.UserResponse{
		ID:           user.ID,
		Name:         user.Name,
		Email:        user.Email,
		Phone:        user.Phone,
		Role:         user.Role,
		DepartmentID: user.DepartmentID,
		ManagerID:    user.ManagerID,
		IsActive:     user.IsActive,
		CreatedAt:    user.CreatedAt,
	}
}

package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-service/internal/domain"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

// Capability names an operation gated by static role policy. Ownership, membership and
// state checks happen on the aggregate.
type Capability string

const (
	CapCreateRequest    Capability = "request:create"
	CapSupportRequest   Capability = "request:support"
	CapGiveFeedback     Capability = "request:feedback"
	CapValidateRequest  Capability = "request:validate"
	CapAssignRequest    Capability = "request:assign"
	CapVerifyCompletion Capability = "request:verify"
	CapMergeRequests    Capability = "request:merge"
	CapDeleteRequest    Capability = "request:delete"
	CapCreateTask       Capability = "task:create"
	CapUpdateTaskStatus Capability = "task:update_status"
	CapSubmitCompletion Capability = "task:submit_completion"
	CapViewSLA          Capability = "sla:view"
	CapCheckSLA         Capability = "sla:check"
	CapManageTeams      Capability = "directory:teams"
	CapManageDirectory  Capability = "directory:manage"
)

var (
	staff      = []domain.Role{domain.RoleDeptHead, domain.RoleTeamLeader, domain.RoleTeamMember, domain.RoleAdmin, domain.RoleSuperAdmin}
	management = []domain.Role{domain.RoleDeptHead, domain.RoleAdmin, domain.RoleSuperAdmin}
	admins     = []domain.Role{domain.RoleAdmin, domain.RoleSuperAdmin}
	leaders    = []domain.Role{domain.RoleTeamLeader, domain.RoleAdmin, domain.RoleSuperAdmin}
)

var capabilities = map[Capability][]domain.Role{
	CapCreateRequest:    {domain.RoleCitizen},
	CapSupportRequest:   {domain.RoleCitizen},
	CapGiveFeedback:     {domain.RoleCitizen},
	CapValidateRequest:  management,
	CapAssignRequest:    management,
	CapVerifyCompletion: management,
	CapMergeRequests:    management,
	CapDeleteRequest:    admins,
	CapCreateTask:       leaders,
	CapSubmitCompletion: leaders,
	CapUpdateTaskStatus: staff,
	CapViewSLA:          staff,
	CapCheckSLA:         management,
	CapManageTeams:      management,
	CapManageDirectory:  admins,
}

// Can reports whether role holds capability.
func Can(role domain.Role, capability Capability) bool {
	for _, r := range capabilities[capability] {
		if r == role {
			return true
		}
	}
	return false
}

// RolesFor lists roles holding capability.
func RolesFor(capability Capability) []domain.Role {
	return append([]domain.Role(nil), capabilities[capability]...)
}

// RequireCapability rejects callers whose role lacks capability.
func RequireCapability(capability Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !Can(principal.User.Role, capability) {
			return apperrors.NewForbidden("role " + string(principal.User.Role) + " cannot perform " + string(capability))
		}
		return c.Next()
	}
}

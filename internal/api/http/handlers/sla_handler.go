package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-service/internal/api/dto"
	"github.com/spec-kit/civic-service/internal/service"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

// SLAHandler exposes SLA evaluation and escalation.
type SLAHandler struct {
	sla *service.SLAService
}

// NewSLAHandler constructs handler.
func NewSLAHandler(slaService *service.SLAService) *SLAHandler {
	return &SLAHandler{sla: slaService}
}

// Evaluate GET /requests/:id/sla.
func (h *SLAHandler) Evaluate(c *fiber.Ctx) error {
	eval, err := h.sla.EvaluateSLA(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": eval})
}

// Check POST /requests/:id/sla/check.
func (h *SLAHandler) Check(c *fiber.Ctx) error {
	eval, err := h.sla.CheckSLA(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": eval})
}

// Sweep POST /sla/sweep.
func (h *SLAHandler) Sweep(c *fiber.Ctx) error {
	var body dto.SweepRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &body); err != nil {
			return err
		}
	}
	result, err := h.sla.CheckAllSLAs(c.UserContext(), body.DepartmentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": result})
}

// Hours GET /sla/hours?service_type=&department_id=.
func (h *SLAHandler) Hours(c *fiber.Ctx) error {
	serviceType := c.Query("service_type")
	if serviceType == "" {
		return apperrors.NewValidationError("service_type required", nil)
	}
	departmentID := optionalQuery(c, "department_id")
	hours, err := h.sla.GetSLAHours(c.UserContext(), serviceType, departmentID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"service_type":  serviceType,
		"department_id": departmentID,
		"sla_hours":     hours,
	}})
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-service/internal/api/dto"
	"github.com/spec-kit/civic-service/internal/domain"
	"github.com/spec-kit/civic-service/internal/service"
)

// RequestsHandler manages citizen requests and their triage.
type RequestsHandler struct {
	requests *service.RequestService
}

// NewRequestsHandler constructs handler.
func NewRequestsHandler(requestService *service.RequestService) *RequestsHandler {
	return &RequestsHandler{requests: requestService}
}

// CreateRequest POST /requests.
func (h *RequestsHandler) CreateRequest(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req dto.CreateRequestRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	created, err := h.requests.CreateRequest(c.UserContext(), actor, domain.NewRequestInput{
		ServiceType:   req.ServiceType,
		Description:   req.Description,
		Location:      req.Location,
		DepartmentID:  req.DepartmentID,
		AttachmentURL: req.AttachmentURL,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": requestDetail(created)})
}

// ListRequests GET /requests.
func (h *RequestsHandler) ListRequests(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	list, err := h.requests.ListRequests(c.UserContext(), actor, parseRequestFilter(c))
	if err != nil {
		return err
	}
	items := make([]dto.RequestSummary, 0, len(list))
	for _, req := range list {
		items = append(items, requestSummary(req))
	}
	return c.JSON(fiber.Map{"data": items})
}

// GetRequest GET /requests/:id.
func (h *RequestsHandler) GetRequest(c *fiber.Ctx) error {
	req, err := h.requests.GetRequest(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(req)})
}

// GetHistory GET /requests/:id/history.
func (h *RequestsHandler) GetHistory(c *fiber.Ctx) error {
	history, err := h.requests.GetHistory(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": nonNil(history)})
}

// ListEvidence GET /requests/:id/evidence.
func (h *RequestsHandler) ListEvidence(c *fiber.Ctx) error {
	list, err := h.requests.ListEvidence(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.EvidenceResponse, 0, len(list))
	for _, ev := range list {
		items = append(items, dto.EvidenceResponse{
			ID:         ev.ID,
			TaskID:     ev.TaskID,
			URL:        ev.URL,
			FileName:   ev.FileName,
			MimeType:   ev.MimeType,
			SizeBytes:  ev.SizeBytes,
			UploadedBy: ev.UploadedBy,
			CreatedAt:  ev.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// Support POST /requests/:id/support.
func (h *RequestsHandler) Support(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	req, err := h.requests.SupportRequest(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestSummary(req)})
}

// Validate POST /requests/:id/validate.
func (h *RequestsHandler) Validate(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body dto.ValidateRequestRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	req, err := h.requests.ValidateRequest(c.UserContext(), actor, c.Params("id"), body.Decision, body.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(req)})
}

// Assign POST /requests/:id/assign.
func (h *RequestsHandler) Assign(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body dto.AssignRequestRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	req, err := h.requests.AssignTeamLeader(c.UserContext(), actor, c.Params("id"), service.AssignInput{
		TeamLeaderID:    body.TeamLeaderID,
		TeamLeaderEmail: body.TeamLeaderEmail,
		Deadline:        body.Deadline,
		Notes:           body.Notes,
		CostEstimate:    body.CostEstimate,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(req)})
}

// Feedback POST /requests/:id/feedback.
func (h *RequestsHandler) Feedback(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body dto.FeedbackRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	req, err := h.requests.AddCitizenFeedback(c.UserContext(), actor, c.Params("id"), body.Rating, body.Comment)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(req)})
}

// Merge POST /requests/merge.
func (h *RequestsHandler) Merge(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body dto.MergeRequestsRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	parent, err := h.requests.MergeRequests(c.UserContext(), actor, body.ParentID, body.ChildIDs)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(parent)})
}

// Similar POST /requests/similar.
func (h *RequestsHandler) Similar(c *fiber.Ctx) error {
	var body dto.SimilarRequestsRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	list, err := h.requests.FindSimilarRequests(c.UserContext(), domain.SimilarQuery{
		ServiceType: body.ServiceType,
		Description: body.Description,
		Address:     body.Address,
		Lat:         body.Lat,
		Lng:         body.Lng,
	})
	if err != nil {
		return err
	}
	items := make([]dto.RequestSummary, 0, len(list))
	for _, req := range list {
		items = append(items, requestSummary(req))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Delete DELETE /requests/:id.
func (h *RequestsHandler) Delete(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	if err := h.requests.DeleteRequest(c.UserContext(), actor, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseRequestFilter(c *fiber.Ctx) service.RequestListFilter {
	filter := service.RequestListFilter{
		CitizenID:     optionalQuery(c, "citizen_id"),
		DepartmentID:  optionalQuery(c, "department_id"),
		AssignedTo:    optionalQuery(c, "assigned_to"),
		MyTeamTasks:   parseBoolQuery(c, "my_team_tasks", false),
		IncludeMerged: parseBoolQuery(c, "include_merged", false),
	}
	for _, s := range splitList(c.Query("status")) {
		filter.Statuses = append(filter.Statuses, domain.RequestStatus(s))
	}
	if val := c.Query("escalated"); val != "" {
		escalated := parseBoolQuery(c, "escalated", false)
		filter.Escalated = &escalated
	}
	page := parseIntQuery(c, "page", 1)
	pageSize := parseIntQuery(c, "page_size", 20)
	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize
	return filter
}

func requestSummary(req *domain.Request) dto.RequestSummary {
	summary := dto.RequestSummary{
		ID:           req.ID,
		CitizenID:    req.CitizenID,
		ServiceType:  req.ServiceType,
		Status:       req.Status,
		DepartmentID: req.DepartmentID,
		AssignedTo:   req.AssignedTo,
		SupportCount: req.SupportCount,
		Escalated:    req.Escalated,
		CreatedAt:    req.CreatedAt,
		UpdatedAt:    req.UpdatedAt,
	}
	if req.Location != nil {
		summary.Address = req.Location.Address
	}
	return summary
}

func requestDetail(req *domain.Request) dto.RequestDetail {
	if req == nil {
		return dto.RequestDetail{}
	}
	return dto.RequestDetail{
		ID:                req.ID,
		CitizenID:         req.CitizenID,
		ServiceType:       req.ServiceType,
		Description:       req.Description,
		Location:          req.Location,
		DepartmentID:      req.DepartmentID,
		AttachmentURL:     req.AttachmentURL,
		Status:            req.Status,
		ValidationStatus:  req.ValidationStatus,
		ValidationHistory: nonNil(req.ValidationHistory),
		Assignment:        req.Assignment,
		AssignedTo:        req.AssignedTo,
		TimeLogs:          req.TimeLogs,
		Tasks:             nonNil(req.Tasks),
		Completion:        req.Completion,
		Verification:      req.Verification,
		SupportCount:      req.SupportCount,
		Escalated:         req.Escalated,
		EscalatedAt:       req.EscalatedAt,
		EscalatedTo:       req.EscalatedTo,
		ParentRequestID:   req.ParentRequestID,
		MergedChildren:    nonNil(req.MergedChildren),
		Feedback:          req.Feedback,
		Version:           req.Version,
		CreatedAt:         req.CreatedAt,
		UpdatedAt:         req.UpdatedAt,
	}
}

package handlers

import (
	"mime/multipart"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-service/internal/api/dto"
	"github.com/spec-kit/civic-service/internal/service"
	apperrors "github.com/spec-kit/civic-service/pkg/util"
)

// evidenceField is the multipart field holding completion evidence.
const evidenceField = "evidence"

// TasksHandler handles field work on an assigned request.
type TasksHandler struct {
	requests *service.RequestService
}

// NewTasksHandler constructs handler.
func NewTasksHandler(requestService *service.RequestService) *TasksHandler {
	return &TasksHandler{requests: requestService}
}

// AddTask POST /requests/:id/tasks.
func (h *TasksHandler) AddTask(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body dto.CreateTaskRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	req, task, err := h.requests.AddTask(c.UserContext(), actor, c.Params("id"), service.TaskInput{
		Title:              body.Title,
		AssignedTeamID:     body.AssignedTeamID,
		AssignedTo:         body.AssignedTo,
		AssignedMembers:    body.AssignedMembers,
		EstimatedTimeHours: body.EstimatedTimeHours,
		RequiredWorkers:    body.RequiredWorkers,
		Deadline:           body.Deadline,
		Instructions:       body.Instructions,
		Notes:              body.Notes,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"data": fiber.Map{
		"request": requestSummary(req),
		"task":    task,
	}})
}

// UpdateTaskStatus PATCH /requests/:id/tasks/:taskId.
func (h *TasksHandler) UpdateTaskStatus(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body dto.UpdateTaskStatusRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if body.Status == "" {
		return apperrors.NewValidationError("status required", nil)
	}
	req, task, err := h.requests.UpdateTaskStatus(c.UserContext(), actor, c.Params("id"), c.Params("taskId"), body.Status, body.Note)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{
		"request": requestSummary(req),
		"task":    task,
	}})
}

// SubmitCompletion POST /requests/:id/completion.
func (h *TasksHandler) SubmitCompletion(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body dto.CompletionRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	if strings.TrimSpace(body.TaskID) == "" {
		return apperrors.NewValidationError("task_id required", nil)
	}

	uploads, closeAll, err := evidenceUploads(c)
	if err != nil {
		return err
	}
	defer closeAll()

	req, err := h.requests.SubmitCompletion(c.UserContext(), actor, c.Params("id"), body.TaskID, service.CompletionInput{
		TimeTakenHours: body.TimeTakenHours,
		CostIncurred:   body.CostIncurred,
		MaterialsUsed:  body.MaterialsUsed,
		MemberNames:    body.MemberNames,
		Notes:          body.Notes,
	}, uploads)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(req)})
}

// VerifyCompletion POST /requests/:id/verify.
func (h *TasksHandler) VerifyCompletion(c *fiber.Ctx) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var body dto.VerifyCompletionRequest
	if err := parseBody(c, &body); err != nil {
		return err
	}
	req, err := h.requests.VerifyCompletion(c.UserContext(), actor, c.Params("id"), body.Decision, body.Notes)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": requestDetail(req)})
}

// evidenceUploads opens the multipart evidence files. JSON submissions carry none.
func evidenceUploads(c *fiber.Ctx) ([]service.EvidenceUpload, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(string(c.Request().Header.ContentType()), fiber.MIMEMultipartForm) {
		return nil, noop, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, apperrors.NewValidationError("invalid multipart form", nil)
	}
	headers := form.File[evidenceField]
	files := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range files {
			_ = f.Close()
		}
	}
	uploads := make([]service.EvidenceUpload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, noop, apperrors.NewValidationError("unreadable evidence file", map[string]any{"file_name": fh.Filename})
		}
		files = append(files, f)
		uploads = append(uploads, service.EvidenceUpload{
			FileName: fh.Filename,
			MimeType: fh.Header.Get(fiber.HeaderContentType),
			Size:     fh.Size,
			Content:  f,
		})
	}
	return uploads, closeAll, nil
}

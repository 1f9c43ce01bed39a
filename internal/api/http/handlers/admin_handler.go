package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/civic-portal/internal/api/dto"
	"github.com/spec-kit/civic-portal/internal/auth"
	"github.com/spec-kit/civic-portal/internal/service"
	apperrors "github.com/spec-kit/civic-portal/pkg/util/errorutil"
)

// AdminHandler covers staff and admin issue management endpoints. Route-level
// guards only require authentication; per-issue authorization happens in the
// services so department heads get their scoped slice.
type AdminHandler struct {
	issues *service.IssueService
	bulk   *service.BulkService
}

// NewAdminHandler constructs handler.
func NewAdminHandler(issues *service.IssueService, bulk *service.BulkService) *AdminHandler {
	return &AdminHandler{issues: issues, bulk: bulk}
}

// Assign POST /issues/:id/assign.
func (h *AdminHandler) Assign(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.AssignRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.AssigneeID == "" {
		return apperrors.NewValidationError("assignee_id required", nil)
	}
	issue, err := h.issues.Assign(c.UserContext(), actor, c.Params("id"), req.AssigneeID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueDetail(issue)})
}

// SetPriority PATCH /issues/:id/priority.
func (h *AdminHandler) SetPriority(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.PriorityRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	issue, err := h.issues.SetPriority(c.UserContext(), actor, c.Params("id"), req.Priority)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": issueDetail(issue)})
}

// BulkUpdate POST /issues/bulk.
func (h *AdminHandler) BulkUpdate(c *fiber.Ctx) error {
	actor, ok := auth.ActorFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	var req dto.BulkUpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	result, err := h.bulk.BulkUpdate(c.UserContext(), actor, req.IssueIDs, service.BulkUpdates{
		Status:   req.Status,
		Priority: req.Priority,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": bulkResultResponse(result)})
}

func bulkResultResponse(result *service.BulkResult) dto.BulkResultResponse {
	failed := make([]dto.BulkFailureResponse, 0, len(result.Failed))
	for _, failure := range result.Failed {
		failed = append(failed, dto.BulkFailureResponse{
			IssueID: failure.IssueID,
			Code:    failure.Code,
			Reason:  failure.Reason,
		})
	}
	return dto.BulkResultResponse{
		Succeeded: result.Succeeded,
		Failed:    failed,
	}
}

package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/orbitschool/orbit_api/dto"
	"github.com/orbitschool/orbit_api/shared"
)

type ProgressHandler struct {
	progressSvc ProgressServiceInterface
}

func NewProgressHandler(progressSvc ProgressServiceInterface) *ProgressHandler {
	return &ProgressHandler{progressSvc: progressSvc}
}

// @Summary Report a viewer event
// @Description Viewer events drive completion: viewed, position, ended, mark_complete
// @Tags progress
// @Accept json
// @Produce json
// @Security Bearer
// @Param progressEvent body dto.ProgressEventRequest true "Viewer event"
// @Success 200 {object} shared.Response{data=dto.ProgressEventResponse}
// @Router /api/v1/progress/events [post]
func (h *ProgressHandler) HandleEvent(c *fiber.Ctx) error {
	var req dto.ProgressEventRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID := c.Locals(shared.UserID).(string)
	resp, err := h.progressSvc.HandleEvent(userID, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Submit quiz answers
// @Description Grade a quiz attempt; a passing score completes the content item
// @Tags progress
// @Accept json
// @Produce json
// @Security Bearer
// @Param submitQuizRequest body dto.SubmitQuizRequest true "Answers keyed by question ID"
// @Success 200 {object} shared.Response{data=dto.SubmitQuizResponse}
// @Router /api/v1/progress/quiz [post]
func (h *ProgressHandler) SubmitQuiz(c *fiber.Ctx) error {
	var req dto.SubmitQuizRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID := c.Locals(shared.UserID).(string)
	resp, err := h.progressSvc.SubmitQuiz(userID, req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary List quiz attempts
// @Description Past submissions for a quiz item, newest first
// @Tags progress
// @Produce json
// @Security Bearer
// @Param contentId path string true "Content ID"
// @Success 200 {object} shared.Response{data=[]dto.QuizSubmissionResponse}
// @Router /api/v1/progress/quiz/{contentId}/history [get]
func (h *ProgressHandler) GetQuizHistory(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)
	contentID := c.Params("contentId")

	resp, err := h.progressSvc.GetQuizHistory(userID, contentID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Get course progress
// @Description Per-chapter completion and percentages for the learner
// @Tags progress
// @Produce json
// @Security Bearer
// @Param courseId path string true "Course ID"
// @Success 200 {object} shared.Response{data=dto.CourseProgressResponse}
// @Router /api/v1/progress/courses/{courseId} [get]
func (h *ProgressHandler) GetCourseProgress(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)
	courseID := c.Params("courseId")

	resp, err := h.progressSvc.GetCourseProgress(userID, courseID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary List earned certificates
// @Tags progress
// @Produce json
// @Security Bearer
// @Success 200 {object} shared.Response{data=[]dto.CertificateResponse}
// @Router /api/v1/certificates [get]
func (h *ProgressHandler) GetCertificates(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)

	resp, err := h.progressSvc.GetCertificates(userID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

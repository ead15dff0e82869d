package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/orbitschool/orbit_api/dto"
	"github.com/orbitschool/orbit_api/shared"
)

type CourseHandler struct {
	courseSvc CourseServiceInterface
}

func NewCourseHandler(courseSvc CourseServiceInterface) *CourseHandler {
	return &CourseHandler{courseSvc: courseSvc}
}

// @Summary List courses
// @Description List the published courses of a school
// @Tags courses
// @Produce json
// @Security Bearer
// @Param school_id query string true "School ID"
// @Success 200 {object} shared.Response{data=dto.CourseCollectionResponse}
// @Router /api/v1/courses [get]
func (h *CourseHandler) GetCourses(c *fiber.Ctx) error {
	schoolID := c.Query("school_id")
	if schoolID == "" {
		return shared.ResponseBadRequest(c, "school_id is required")
	}

	resp, err := h.courseSvc.GetCourses(schoolID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Get course detail
// @Description Chapters and contents of a course with the learner's progress overlaid
// @Tags courses
// @Produce json
// @Security Bearer
// @Param courseId path string true "Course ID"
// @Success 200 {object} shared.Response{data=[]dto.ChapterResponse}
// @Router /api/v1/courses/{courseId} [get]
func (h *CourseHandler) GetCourseDetail(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)
	courseID := c.Params("courseId")

	resp, err := h.courseSvc.GetCourseDetail(userID, courseID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Get navigation targets
// @Description Next and previous content items from the current position
// @Tags courses
// @Produce json
// @Security Bearer
// @Param courseId path string true "Course ID"
// @Param chapter_id query string true "Current chapter ID"
// @Param content_id query string true "Current content ID"
// @Success 200 {object} shared.Response{data=dto.NavigationResponse}
// @Router /api/v1/courses/{courseId}/navigation [get]
func (h *CourseHandler) GetNavigation(c *fiber.Ctx) error {
	userID := c.Locals(shared.UserID).(string)
	courseID := c.Params("courseId")
	chapterID := c.Query("chapter_id")
	contentID := c.Query("content_id")

	if chapterID == "" || contentID == "" {
		return shared.ResponseBadRequest(c, "chapter_id and content_id are required")
	}

	resp, err := h.courseSvc.GetNavigation(userID, courseID, chapterID, contentID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", resp)
}

// @Summary Enroll in a course
// @Description Request enrollment; activation is an admin step
// @Tags courses
// @Accept json
// @Produce json
// @Security Bearer
// @Param enrollRequest body dto.EnrollRequest true "Course to enroll in"
// @Success 201 {object} shared.Response{data=dto.EnrollmentResponse}
// @Router /api/v1/enrollments [post]
func (h *CourseHandler) Enroll(c *fiber.Ctx) error {
	var req dto.EnrollRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	userID := c.Locals(shared.UserID).(string)
	resp, err := h.courseSvc.Enroll(userID, req.CourseID)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Enrollment requested", resp)
}

// @Summary Approve an enrollment
// @Description Activate a pending enrollment
// @Tags admin
// @Produce json
// @Security Bearer
// @Param courseId path string true "Course ID"
// @Param userId path string true "User ID"
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/admin/courses/{courseId}/enrollments/{userId}/approve [post]
func (h *CourseHandler) ApproveEnrollment(c *fiber.Ctx) error {
	courseID := c.Params("courseId")
	userID := c.Params("userId")

	if err := h.courseSvc.ApproveEnrollment(userID, courseID); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Enrollment approved", nil)
}

// @Summary Create a course
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param createCourseRequest body dto.CreateCourseRequest true "Course details"
// @Success 201 {object} shared.Response{data=dto.CourseResponse}
// @Router /api/v1/admin/courses [post]
func (h *CourseHandler) CreateCourse(c *fiber.Ctx) error {
	var req dto.CreateCourseRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	resp, err := h.courseSvc.CreateCourse(req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Course created", resp)
}

// @Summary Create a chapter
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param createChapterRequest body dto.CreateChapterRequest true "Chapter details"
// @Success 201 {object} shared.Response{data=model.Chapter}
// @Router /api/v1/admin/chapters [post]
func (h *CourseHandler) CreateChapter(c *fiber.Ctx) error {
	var req dto.CreateChapterRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	chapter, err := h.courseSvc.CreateChapter(req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Chapter created", chapter)
}

// @Summary Create a content item
// @Tags admin
// @Accept json
// @Produce json
// @Security Bearer
// @Param createContentRequest body dto.CreateContentRequest true "Content details"
// @Success 201 {object} shared.Response{data=model.ContentItem}
// @Router /api/v1/admin/contents [post]
func (h *CourseHandler) CreateContent(c *fiber.Ctx) error {
	var req dto.CreateContentRequest
	if err := c.BodyParser(&req); err != nil {
		return err
	}

	if err := req.Validate(); err != nil {
		validationResp := dto.CreateValidationErrorResponse(err)
		return c.Status(fiber.StatusBadRequest).JSON(validationResp)
	}

	content, err := h.courseSvc.CreateContent(req)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "Content created", content)
}

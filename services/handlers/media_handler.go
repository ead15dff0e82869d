package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/orbitschool/orbit_api/shared"
)

type MediaHandler struct {
	mediaSvc MediaServiceInterface
}

func NewMediaHandler(mediaSvc MediaServiceInterface) *MediaHandler {
	return &MediaHandler{mediaSvc: mediaSvc}
}

// @Summary Upload a lesson video
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Security Bearer
// @Param file formData file true "Video file"
// @Success 201 {object} shared.Response{data=dto.MediaUploadResponse}
// @Router /api/v1/admin/media/video [post]
func (h *MediaHandler) UploadVideo(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return shared.ResponseBadRequest(c, "No file provided")
	}

	userID := c.Locals(shared.UserID).(string)
	resp, err := h.mediaSvc.UploadVideo(userID, file)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "File uploaded", resp)
}

// @Summary Upload a PDF document
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Security Bearer
// @Param file formData file true "PDF file"
// @Success 201 {object} shared.Response{data=dto.MediaUploadResponse}
// @Router /api/v1/admin/media/pdf [post]
func (h *MediaHandler) UploadPDF(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return shared.ResponseBadRequest(c, "No file provided")
	}

	userID := c.Locals(shared.UserID).(string)
	resp, err := h.mediaSvc.UploadPDF(userID, file)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "File uploaded", resp)
}

// @Summary Upload a course thumbnail
// @Tags media
// @Accept multipart/form-data
// @Produce json
// @Security Bearer
// @Param file formData file true "Image file"
// @Success 201 {object} shared.Response{data=dto.MediaUploadResponse}
// @Router /api/v1/admin/media/thumbnail [post]
func (h *MediaHandler) UploadThumbnail(c *fiber.Ctx) error {
	file, err := c.FormFile("file")
	if err != nil {
		return shared.ResponseBadRequest(c, "No file provided")
	}

	userID := c.Locals(shared.UserID).(string)
	resp, err := h.mediaSvc.UploadThumbnail(userID, file)
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusCreated, "File uploaded", resp)
}

// @Summary Get a fresh download URL for an asset
// @Tags media
// @Produce json
// @Security Bearer
// @Param assetId path string true "Asset ID"
// @Success 200 {object} shared.Response{data=string}
// @Router /api/v1/media/{assetId}/url [get]
func (h *MediaHandler) GetAssetURL(c *fiber.Ctx) error {
	url, err := h.mediaSvc.GetAssetURL(c.Params("assetId"))
	if err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Success", url)
}

// @Summary Delete a media asset
// @Tags media
// @Produce json
// @Security Bearer
// @Param assetId path string true "Asset ID"
// @Success 200 {object} shared.Response{data=nil}
// @Router /api/v1/admin/media/{assetId} [delete]
func (h *MediaHandler) DeleteAsset(c *fiber.Ctx) error {
	if err := h.mediaSvc.DeleteAsset(c.Params("assetId")); err != nil {
		return err
	}

	return shared.ResponseJSON(c, http.StatusOK, "Asset deleted", nil)
}

package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pbl-teams-api/internal/service"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
	"github.com/noah-isme/pbl-teams-api/pkg/response"
)

// AcademicHandler serves the year and subject catalog.
type AcademicHandler struct {
	service *service.AcademicService
}

// NewAcademicHandler creates a new handler.
func NewAcademicHandler(svc *service.AcademicService) *AcademicHandler {
	return &AcademicHandler{service: svc}
}

// Years lists the active years.
func (h *AcademicHandler) Years(c *gin.Context) {
	years, err := h.service.Years(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, years, nil)
}

// Subjects lists the active subjects of the year in the query string.
func (h *AcademicHandler) Subjects(c *gin.Context) {
	yearID := c.Query("year_id")
	if yearID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year_id is required"))
		return
	}

	subjects, err := h.service.Subjects(c.Request.Context(), yearID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, subjects, nil)
}

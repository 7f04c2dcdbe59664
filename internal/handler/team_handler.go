package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pbl-teams-api/internal/service"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
	"github.com/noah-isme/pbl-teams-api/pkg/response"
)

// TeamHandler serves the student team surface.
type TeamHandler struct {
	teams    *service.TeamService
	messages *service.MessageService
}

// NewTeamHandler creates a new handler.
func NewTeamHandler(teams *service.TeamService, messages *service.MessageService) *TeamHandler {
	return &TeamHandler{teams: teams, messages: messages}
}

// Create submits a new team for the acting student.
func (h *TeamHandler) Create(c *gin.Context) {
	var req service.CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid team payload"))
		return
	}

	team, err := h.teams.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, team)
}

// MyTeam returns the acting student's team within a year/subject scope.
// The data field is null when the student has no team there yet.
func (h *TeamHandler) MyTeam(c *gin.Context) {
	yearID := c.Query("year_id")
	subjectID := c.Query("subject_id")
	if yearID == "" || subjectID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "year_id and subject_id are required"))
		return
	}

	team, err := h.teams.MyTeam(c.Request.Context(), yearID, subjectID, actorFromContext(c).Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, team, nil)
}

// Messages lists broadcasts addressed to any of the student's teams.
func (h *TeamHandler) Messages(c *gin.Context) {
	messages, err := h.messages.ListForStudent(c.Request.Context(), actorFromContext(c).Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, nil)
}

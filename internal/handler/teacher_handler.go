package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pbl-teams-api/internal/service"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
	"github.com/noah-isme/pbl-teams-api/pkg/response"
)

// TeacherHandler serves the mentor surface: assigned teams, grading and
// broadcasts.
type TeacherHandler struct {
	grading  *service.GradingService
	messages *service.MessageService
}

// NewTeacherHandler creates a new handler.
func NewTeacherHandler(grading *service.GradingService, messages *service.MessageService) *TeacherHandler {
	return &TeacherHandler{grading: grading, messages: messages}
}

// AssignedTeams lists every team mentored by the acting teacher.
func (h *TeacherHandler) AssignedTeams(c *gin.Context) {
	teams, err := h.grading.AssignedTeams(c.Request.Context(), actorFromContext(c).Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teams, nil)
}

// AssignedTeam returns one mentored team with marks.
func (h *TeacherHandler) AssignedTeam(c *gin.Context) {
	team, err := h.grading.AssignedTeam(c.Request.Context(), c.Param("id"), actorFromContext(c).Email)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, team, nil)
}

// Grade applies a grading batch to a mentored team.
func (h *TeacherHandler) Grade(c *gin.Context) {
	var req service.GradeTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid grade payload"))
		return
	}

	if err := h.grading.Grade(c.Request.Context(), req, actorFromContext(c).Email); err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"ok": true}, nil)
}

// Broadcast sends a message to all teams mentored by the acting teacher.
func (h *TeacherHandler) Broadcast(c *gin.Context) {
	var req service.BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid broadcast payload"))
		return
	}

	msg, err := h.messages.Broadcast(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, gin.H{"message_id": msg.ID, "teams_count": len(msg.TeamIDs)})
}

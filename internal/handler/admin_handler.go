package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	"github.com/noah-isme/pbl-teams-api/internal/service"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
	"github.com/noah-isme/pbl-teams-api/pkg/response"
)

// AdminHandler serves the admin surface: team oversight, sync triggers,
// the teacher roster and exports.
type AdminHandler struct {
	teams    *service.TeamService
	users    *service.UserService
	messages *service.MessageService
	sync     *service.SyncService
	export   *service.ExportService
}

// NewAdminHandler creates a new handler.
func NewAdminHandler(teams *service.TeamService, users *service.UserService, messages *service.MessageService, sync *service.SyncService, export *service.ExportService) *AdminHandler {
	return &AdminHandler{teams: teams, users: users, messages: messages, sync: sync, export: export}
}

// ListTeams returns the paginated team list with sync bookkeeping.
func (h *AdminHandler) ListTeams(c *gin.Context) {
	filter := models.TeamFilter{
		YearID:    c.Query("year_id"),
		SubjectID: c.Query("subject_id"),
		Page:      queryInt(c, "page", 1),
		PageSize:  queryInt(c, "page_size", 50),
	}

	result, err := h.teams.AdminList(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}

	meta := map[string]interface{}{}
	if result.LastSyncedAt != nil {
		meta["last_synced_at"] = result.LastSyncedAt
	}
	response.JSON(c, http.StatusOK, result.Teams, result.Pagination, meta)
}

// GetTeam returns one team with full detail, marks included.
func (h *AdminHandler) GetTeam(c *gin.Context) {
	team, err := h.teams.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, team, nil)
}

// SyncMentors pulls mentor assignments from the spreadsheet, then pushes
// the full mirror back so both sides agree.
func (h *AdminHandler) SyncMentors(c *gin.Context) {
	summary, err := h.sync.SyncMentorsFromSheets(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	h.sync.PushBestEffort(c.Request.Context())
	response.JSON(c, http.StatusOK, summary, nil)
}

// PushTeams regenerates the whole spreadsheet from the database.
func (h *AdminHandler) PushTeams(c *gin.Context) {
	summary, err := h.sync.SyncToSheets(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Teachers lists teacher accounts with assigned team counts.
func (h *AdminHandler) Teachers(c *gin.Context) {
	teachers, err := h.users.Teachers(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, nil)
}

// CreateTeacher registers or renames a teacher account.
func (h *AdminHandler) CreateTeacher(c *gin.Context) {
	var req service.CreateTeacherRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid teacher payload"))
		return
	}

	result, err := h.users.CreateTeacher(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	response.JSON(c, status, result, nil)
}

// Messages lists all broadcasts.
func (h *AdminHandler) Messages(c *gin.Context) {
	messages, err := h.messages.ListAll(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, messages, nil)
}

// MigrateTeamStatuses rewrites legacy statuses in storage.
func (h *AdminHandler) MigrateTeamStatuses(c *gin.Context) {
	result, err := h.users.MigrateTeamStatuses(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ExportRoster streams the full roster as CSV or PDF.
func (h *AdminHandler) ExportRoster(c *gin.Context) {
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	file, err := h.export.Roster(c.Request.Context(), format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="`+file.Filename+`"`)
	c.Data(http.StatusOK, file.ContentType, file.Data)
}

func queryInt(c *gin.Context, key string, fallback int) int {
	raw := c.Query(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
)

type gradingTeamRepo interface {
	FindByIDForMentor(ctx context.Context, id, mentorEmail string) (*models.Team, error)
	List(ctx context.Context, filter models.TeamFilter) ([]models.Team, int, error)
	SaveMarks(ctx context.Context, teamID string, status models.TeamStatus, marks map[string]models.Marks) error
}

// GradeTeamRequest is a grading batch for one team. Grades are applied
// all-or-nothing: any invalid entry rejects the whole batch.
type GradeTeamRequest struct {
	TeamID string              `json:"team_id"`
	Grades []models.GradeEntry `json:"grades"`
}

// GradingService covers the mentor surface: assigned team lookups and
// grading. Every operation is scoped by the acting teacher's email; a team
// assigned to someone else is indistinguishable from a missing one.
type GradingService struct {
	teams  gradingTeamRepo
	syncer sheetPusher
	logger *zap.Logger
}

// NewGradingService constructs a GradingService. syncer may be nil.
func NewGradingService(teams gradingTeamRepo, syncer sheetPusher, logger *zap.Logger) *GradingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GradingService{teams: teams, syncer: syncer, logger: logger}
}

// assignedTeamsWindow is the largest page the repository serves in one
// query. Mentors carry a handful of teams each, so a single window covers
// the full assignment list without paginating the teacher surface.
const assignedTeamsWindow = 200

// AssignedTeams returns every team mentored by the acting teacher, newest
// first.
func (s *GradingService) AssignedTeams(ctx context.Context, teacherEmail string) ([]models.Team, error) {
	filter := models.TeamFilter{
		MentorEmail: strings.ToLower(strings.TrimSpace(teacherEmail)),
		PageSize:    assignedTeamsWindow,
	}
	teams, _, err := s.teams.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assigned teams")
	}
	return teams, nil
}

// AssignedTeam returns one mentored team with marks included.
func (s *GradingService) AssignedTeam(ctx context.Context, id, teacherEmail string) (*models.Team, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid team id")
	}

	team, err := s.teams.FindByIDForMentor(ctx, id, strings.ToLower(strings.TrimSpace(teacherEmail)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "team not found or not assigned")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}
	return team, nil
}

// Grade validates and persists a grading batch for a mentored team, then
// triggers a best-effort sheet push.
func (s *GradingService) Grade(ctx context.Context, req GradeTeamRequest, teacherEmail string) error {
	if _, err := uuid.Parse(req.TeamID); err != nil {
		return appErrors.Clone(appErrors.ErrValidation, "invalid team id")
	}
	if len(req.Grades) == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "grades are required")
	}

	teacherEmail = strings.ToLower(strings.TrimSpace(teacherEmail))
	team, err := s.teams.FindByIDForMentor(ctx, req.TeamID, teacherEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "team not found or not assigned")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}

	memberRolls := make(map[string]bool, len(team.Members))
	for _, m := range team.Members {
		memberRolls[strings.ToUpper(strings.TrimSpace(m.RollNumber))] = true
	}

	// Validate the whole batch before touching anything.
	now := time.Now().UTC()
	marks := make(map[string]models.Marks, len(req.Grades))
	for _, g := range req.Grades {
		roll := strings.ToUpper(strings.TrimSpace(g.RollNumber))
		if roll == "" {
			return appErrors.Clone(appErrors.ErrValidation, "each grade requires a roll number")
		}
		if math.IsNaN(g.Score) || math.IsInf(g.Score, 0) || g.Score < 0 || g.Score > 100 {
			return appErrors.Clone(appErrors.ErrValidation, "score must be a number between 0 and 100")
		}
		if !memberRolls[roll] {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("member not found for roll number: %s", roll))
		}
		marks[roll] = models.Marks{
			Score:    g.Score,
			Remarks:  strings.TrimSpace(g.Remarks),
			GradedAt: now,
			GradedBy: teacherEmail,
		}
	}

	if err := s.teams.SaveMarks(ctx, req.TeamID, models.TeamStatusFinalized, marks); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "one or more members could not be graded")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save marks")
	}

	if s.syncer != nil {
		s.syncer.PushBestEffort(ctx)
	}
	return nil
}

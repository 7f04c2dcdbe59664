package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	"github.com/noah-isme/pbl-teams-api/internal/repository"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
)

type teamRepo interface {
	Create(ctx context.Context, team *models.Team) error
	FindByID(ctx context.Context, id string) (*models.Team, error)
	FindByMemberEmail(ctx context.Context, yearID, subjectID, email string) (*models.Team, error)
	List(ctx context.Context, filter models.TeamFilter) ([]models.Team, int, error)
	HasMembershipConflict(ctx context.Context, yearID, subjectID string, emails, rollNumbers []string) (bool, error)
}

type academicReader interface {
	FindYearByID(ctx context.Context, id string) (*models.Year, error)
	FindSubjectByID(ctx context.Context, id string) (*models.Subject, error)
}

type settingReader interface {
	Get(ctx context.Context, key string) (*models.Setting, error)
}

// sheetPusher regenerates the spreadsheet mirror. The primary operation's
// result is independent of the push outcome; implementations consume their
// own failures.
type sheetPusher interface {
	PushBestEffort(ctx context.Context)
}

type teamCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type cacheMetrics interface {
	RecordCacheLookup(hit bool)
}

// TeamMemberInput is one member row of a team creation payload.
type TeamMemberInput struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	RollNumber string `json:"roll_number"`
	Section    string `json:"section"`
	Role       string `json:"role"`
	IsLeader   bool   `json:"is_leader"`
}

// CreateTeamRequest is a candidate team payload submitted by a student.
type CreateTeamRequest struct {
	YearID    string            `json:"year_id"`
	SubjectID string            `json:"subject_id"`
	TeamName  string            `json:"team_name"`
	Members   []TeamMemberInput `json:"members"`
}

// TeamListResult carries the admin team list with its sync bookkeeping.
// The whole struct round-trips through the cache as JSON, so every field
// the response needs must carry a real tag.
type TeamListResult struct {
	Teams        []models.Team      `json:"teams"`
	Pagination   *models.Pagination `json:"pagination,omitempty"`
	LastSyncedAt *time.Time         `json:"last_synced_at,omitempty"`
}

const teamListCachePrefix = "teams:list:"

// TeamService orchestrates team validation, creation and lookups.
type TeamService struct {
	teams    teamRepo
	academic academicReader
	settings settingReader
	cache    teamCache
	syncer   sheetPusher
	metrics  cacheMetrics
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewTeamService constructs a TeamService. syncer, cache and metrics may
// be nil.
func NewTeamService(teams teamRepo, academic academicReader, settings settingReader, cache teamCache, syncer sheetPusher, metrics cacheMetrics, cacheTTL time.Duration, logger *zap.Logger) *TeamService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cacheTTL <= 0 {
		cacheTTL = 2 * time.Minute
	}
	return &TeamService{
		teams:    teams,
		academic: academic,
		settings: settings,
		cache:    cache,
		syncer:   syncer,
		metrics:  metrics,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

// normalizeMembers trims names, lowercases emails, uppercases roll numbers
// and infers the leader flag from either spelling of it.
func normalizeMembers(members []TeamMemberInput) []models.Member {
	normalized := make([]models.Member, 0, len(members))
	for _, m := range members {
		role := models.MemberRoleMember
		if m.Role == string(models.MemberRoleLeader) || m.IsLeader {
			role = models.MemberRoleLeader
		}
		normalized = append(normalized, models.Member{
			Name:       strings.TrimSpace(m.Name),
			Email:      strings.ToLower(strings.TrimSpace(m.Email)),
			RollNumber: strings.ToUpper(strings.TrimSpace(m.RollNumber)),
			Section:    strings.TrimSpace(m.Section),
			Role:       role,
		})
	}
	return normalized
}

// compactMembers drops fully-empty non-leader rows, which UIs tend to
// submit for the optional fourth member.
func compactMembers(members []models.Member) []models.Member {
	compacted := make([]models.Member, 0, len(members))
	for _, m := range members {
		if m.IsLeader() || m.Name != "" || m.Email != "" || m.RollNumber != "" {
			compacted = append(compacted, m)
		}
	}
	return compacted
}

// validateTeamPayload checks a candidate payload against the team-formation
// rules and returns the normalized member list. Pure; the first violated
// rule wins.
func validateTeamPayload(req CreateTeamRequest, actingStudentEmail string) ([]models.Member, *appErrors.Error) {
	if strings.TrimSpace(req.TeamName) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "team name is required")
	}
	if _, err := uuid.Parse(req.YearID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid year id")
	}
	if _, err := uuid.Parse(req.SubjectID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid subject id")
	}
	if req.Members == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "members are required")
	}

	members := compactMembers(normalizeMembers(req.Members))
	if len(members) < 3 || len(members) > 4 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "team must have 3 or 4 members")
	}

	for _, m := range members {
		if m.Name == "" || m.Email == "" || m.RollNumber == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "each member requires name, email and roll number")
		}
	}

	leaders := 0
	var leaderEmail string
	for _, m := range members {
		if m.IsLeader() {
			leaders++
			leaderEmail = m.Email
		}
	}
	if leaders != 1 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "exactly 1 leader is required")
	}
	if leaderEmail != strings.ToLower(strings.TrimSpace(actingStudentEmail)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "leader must be the logged-in student")
	}

	seenEmails := make(map[string]bool, len(members))
	seenRolls := make(map[string]bool, len(members))
	for _, m := range members {
		if seenEmails[m.Email] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate email detected within team")
		}
		if seenRolls[m.RollNumber] {
			return nil, appErrors.Clone(appErrors.ErrValidation, "duplicate roll number detected within team")
		}
		seenEmails[m.Email] = true
		seenRolls[m.RollNumber] = true
	}

	return members, nil
}

// Create validates and persists a new team for the acting student. On
// success it triggers a best-effort sheet push and returns the team with
// marks stripped.
func (s *TeamService) Create(ctx context.Context, req CreateTeamRequest, actor models.UserInfo) (*models.Team, error) {
	members, vErr := validateTeamPayload(req, actor.Email)
	if vErr != nil {
		return nil, vErr
	}

	year, err := s.academic.FindYearByID(ctx, req.YearID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load year")
	}

	subject, err := s.academic.FindSubjectByID(ctx, req.SubjectID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "subject not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load subject")
	}
	if subject.YearID != year.ID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "subject does not belong to selected year")
	}

	emails := make([]string, 0, len(members))
	rolls := make([]string, 0, len(members))
	for _, m := range members {
		emails = append(emails, m.Email)
		rolls = append(rolls, m.RollNumber)
	}

	// Pre-check for readable conflicts; the unique indexes stay the
	// authoritative guard against the check-then-insert race.
	conflict, err := s.teams.HasMembershipConflict(ctx, year.ID, subject.ID, emails, rolls)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check membership")
	}
	if conflict {
		return nil, appErrors.Clone(appErrors.ErrConflict, "one or more members are already in another team")
	}

	team := &models.Team{
		YearID:    year.ID,
		SubjectID: subject.ID,
		TeamName:  strings.TrimSpace(req.TeamName),
		Mentor:    models.Mentor{},
		CreatedBy: actor.ID,
		Status:    models.TeamStatusFinalized,
		Members:   members,
	}

	if err := s.teams.Create(ctx, team); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "duplicate team name or member detected")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create team")
	}

	team.Year = &models.AcademicRef{ID: year.ID, Name: year.Name, Code: year.Code}
	team.Subject = &models.AcademicRef{ID: subject.ID, Name: subject.Name, Code: subject.Code}

	s.invalidateListCache(ctx)
	if s.syncer != nil {
		s.syncer.PushBestEffort(ctx)
	}

	team.StripMarks()
	return team, nil
}

// MyTeam returns the acting student's team within the year/subject scope,
// marks stripped, or nil when none exists.
func (s *TeamService) MyTeam(ctx context.Context, yearID, subjectID, studentEmail string) (*models.Team, error) {
	if _, err := uuid.Parse(yearID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid year id")
	}
	if _, err := uuid.Parse(subjectID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid subject id")
	}

	team, err := s.teams.FindByMemberEmail(ctx, yearID, subjectID, strings.ToLower(strings.TrimSpace(studentEmail)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}

	team.StripMarks()
	return team, nil
}

// AdminList returns a paginated team list together with the timestamp of
// the last mentor sync. Responses are cached per page.
func (s *TeamService) AdminList(ctx context.Context, filter models.TeamFilter) (*TeamListResult, error) {
	cacheKey := fmt.Sprintf("%sp%d:s%d:y%s:sub%s", teamListCachePrefix, filter.Page, filter.PageSize, filter.YearID, filter.SubjectID)
	if s.cache != nil {
		var cached TeamListResult
		hit := s.cache.Get(ctx, cacheKey, &cached) == nil
		if s.metrics != nil {
			s.metrics.RecordCacheLookup(hit)
		}
		if hit {
			return &cached, nil
		}
	}

	teams, total, err := s.teams.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teams")
	}

	result := &TeamListResult{
		Teams: teams,
		Pagination: &models.Pagination{
			Page:       filter.Page,
			PageSize:   filter.PageSize,
			TotalCount: total,
		},
	}

	if s.settings != nil {
		if setting, err := s.settings.Get(ctx, models.SettingMentorSync); err == nil {
			var value struct {
				LastSyncedAt time.Time `json:"last_synced_at"`
			}
			if jsonErr := unmarshalSetting(setting, &value); jsonErr == nil && !value.LastSyncedAt.IsZero() {
				result.LastSyncedAt = &value.LastSyncedAt
			}
		}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cacheKey, result, s.cacheTTL); err != nil {
			s.logger.Warn("team list cache write failed", zap.Error(err))
		}
	}
	return result, nil
}

// Get returns one team with full detail for the admin surface.
func (s *TeamService) Get(ctx context.Context, id string) (*models.Team, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid team id")
	}

	team, err := s.teams.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "team not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load team")
	}
	return team, nil
}

func (s *TeamService) invalidateListCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, teamListCachePrefix+"*"); err != nil {
		s.logger.Warn("team list cache invalidation failed", zap.Error(err))
	}
}

func unmarshalSetting(setting *models.Setting, dest interface{}) error {
	if setting == nil || len(setting.Value) == 0 {
		return sql.ErrNoRows
	}
	return json.Unmarshal(setting.Value, dest)
}

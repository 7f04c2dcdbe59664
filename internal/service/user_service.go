package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
)

type userRepo interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	ListTeachers(ctx context.Context) ([]models.User, error)
	FindOrCreate(ctx context.Context, user *models.User) (*models.User, bool, error)
	UpdateTeacherName(ctx context.Context, email, name string) (*models.User, error)
}

type mentorCountReader interface {
	AssignedCountsByMentor(ctx context.Context) (map[string]int, error)
	MigrateLegacyStatuses(ctx context.Context) (int64, error)
}

// CreateTeacherRequest is the admin payload for registering or renaming a
// teacher account.
type CreateTeacherRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CreateTeacherResult reports whether the account was created or an
// existing teacher was updated.
type CreateTeacherResult struct {
	Teacher *models.User `json:"teacher"`
	Created bool         `json:"created"`
}

// StatusMigrationResult reports a legacy status migration run.
type StatusMigrationResult struct {
	ModifiedCount int64     `json:"modified_count"`
	MigratedAt    time.Time `json:"migrated_at"`
}

// UserService covers the admin account surface: the teacher roster and
// one-off data migrations.
type UserService struct {
	users    userRepo
	teams    mentorCountReader
	settings settingWriter
	logger   *zap.Logger
}

// NewUserService constructs a UserService.
func NewUserService(users userRepo, teams mentorCountReader, settings settingWriter, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{users: users, teams: teams, settings: settings, logger: logger}
}

// Teachers returns every teacher account with its assigned team count.
func (s *UserService) Teachers(ctx context.Context) ([]models.TeacherAccount, error) {
	teachers, err := s.users.ListTeachers(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list teachers")
	}

	counts, err := s.teams.AssignedCountsByMentor(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count assigned teams")
	}

	accounts := make([]models.TeacherAccount, 0, len(teachers))
	for _, t := range teachers {
		accounts = append(accounts, models.TeacherAccount{
			User:               t,
			AssignedTeamsCount: counts[strings.ToLower(t.Email)],
		})
	}
	return accounts, nil
}

// CreateTeacher registers a teacher account, or renames the existing one
// when the email is already a teacher. An email registered under any other
// role is a conflict; roles are never changed here.
func (s *UserService) CreateTeacher(ctx context.Context, req CreateTeacherRequest) (*CreateTeacherResult, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "email is required")
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Teacher"
	}

	// Fast path: rename an existing teacher.
	updated, err := s.users.UpdateTeacherName(ctx, email, name)
	if err == nil {
		return &CreateTeacherResult{Teacher: updated, Created: false}, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update teacher")
	}

	user, created, err := s.users.FindOrCreate(ctx, &models.User{
		Email:    email,
		FullName: name,
		Role:     models.RoleTeacher,
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create teacher")
	}
	// A concurrent insert or a pre-existing account may surface here with
	// another role.
	if user.Role != models.RoleTeacher {
		return nil, appErrors.Clone(appErrors.ErrRoleMismatch, "")
	}
	return &CreateTeacherResult{Teacher: user, Created: created}, nil
}

// MigrateTeamStatuses rewrites legacy FROZEN statuses in place and records
// the run under the teamStatusMigration setting.
func (s *UserService) MigrateTeamStatuses(ctx context.Context) (*StatusMigrationResult, error) {
	modified, err := s.teams.MigrateLegacyStatuses(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to migrate team statuses")
	}

	result := &StatusMigrationResult{
		ModifiedCount: modified,
		MigratedAt:    time.Now().UTC(),
	}
	if s.settings != nil {
		if err := s.settings.Upsert(ctx, models.SettingTeamStatusMigration, result); err != nil {
			s.logger.Warn("status migration state write failed", zap.Error(err))
		}
	}
	return result, nil
}

// Command seed provisions the bootstrap data every environment needs: the
// admin account, an optional first teacher, the three numeric years and
// their two fixed subjects. It is idempotent and safe to re-run.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	"github.com/noah-isme/pbl-teams-api/internal/repository"
	"github.com/noah-isme/pbl-teams-api/pkg/config"
	"github.com/noah-isme/pbl-teams-api/pkg/database"
	"github.com/noah-isme/pbl-teams-api/pkg/logger"
)

// yearMappings migrates the legacy letter codes onto the numeric ones the
// spreadsheet layout resolves.
var yearMappings = []struct {
	legacyCode string
	code       string
	name       string
}{
	{"FY", "1", "1"},
	{"SY", "2", "2"},
	{"TY", "3", "3"},
}

var subjectCodes = []string{"SUBJECT1", "SUBJECT2"}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	users := repository.NewUserRepository(db)
	academic := repository.NewAcademicRepository(db)

	if err := seedUser(ctx, users, cfg.Seed.AdminEmail, "Administrator", models.RoleAdmin, cfg.Seed.AdminPassword, logr); err != nil {
		logr.Sugar().Fatalw("failed to seed admin", "error", err)
	}
	if err := seedUser(ctx, users, cfg.Seed.TeacherEmail, cfg.Seed.TeacherName, models.RoleTeacher, cfg.Seed.TeacherPassword, logr); err != nil {
		logr.Sugar().Fatalw("failed to seed teacher", "error", err)
	}

	if err := seedAcademic(ctx, academic, logr); err != nil {
		logr.Sugar().Fatalw("failed to seed years and subjects", "error", err)
	}

	logr.Info("seed complete")
}

func seedUser(ctx context.Context, users *repository.UserRepository, email, name string, role models.UserRole, password string, logr *zap.Logger) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil
	}

	user, created, err := users.FindOrCreate(ctx, &models.User{
		Email:    email,
		FullName: name,
		Role:     role,
	})
	if err != nil {
		return err
	}
	if user.Role != role {
		logr.Warn("seed account exists with a different role, leaving as is",
			zap.String("email", email), zap.String("role", string(user.Role)))
		return nil
	}
	if created {
		logr.Info("seeded account", zap.String("email", email), zap.String("role", string(role)))
	}

	// Passwords are only ever set, never overwritten, so re-running the
	// seed cannot lock anyone out.
	if password != "" && user.PasswordHash == "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		if err := users.UpdatePassword(ctx, user.ID, string(hash)); err != nil {
			return err
		}
		logr.Info("set initial password", zap.String("email", email))
	}
	return nil
}

func seedAcademic(ctx context.Context, academic *repository.AcademicRepository, logr *zap.Logger) error {
	for _, m := range yearMappings {
		numeric, err := academic.FindYearByCode(ctx, m.code)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		legacy, err := academic.FindYearByCode(ctx, m.legacyCode)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		switch {
		case numeric == nil && legacy != nil:
			// Rewrite the legacy year in place so existing teams keep
			// their reference.
			if err := academic.UpdateYear(ctx, legacy.ID, m.name, m.code, true); err != nil {
				return err
			}
			logr.Info("migrated legacy year", zap.String("from", m.legacyCode), zap.String("to", m.code))
			legacy = nil
		case numeric == nil:
			if err := academic.InsertYear(ctx, &models.Year{Name: m.name, Code: m.code, IsActive: true}); err != nil {
				return err
			}
		default:
			if err := academic.UpdateYear(ctx, numeric.ID, m.name, m.code, true); err != nil {
				return err
			}
		}

		if legacy != nil {
			if err := academic.SetYearActive(ctx, legacy.ID, false); err != nil {
				return err
			}
		}
	}

	// Only three years stay active.
	if final, err := academic.FindYearByCode(ctx, "LY"); err == nil {
		if err := academic.SetYearActive(ctx, final.ID, false); err != nil {
			return err
		}
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	for _, m := range yearMappings {
		year, err := academic.FindYearByCode(ctx, m.code)
		if err != nil {
			return err
		}
		for i, code := range subjectCodes {
			name := "Subject" + string(rune('1'+i))
			if _, err := academic.InsertSubjectIfAbsent(ctx, &models.Subject{
				YearID:   year.ID,
				Name:     name,
				Code:     code,
				IsActive: true,
			}); err != nil {
				return err
			}
		}
		// Stray subjects would break the fixed tab mapping.
		if _, err := academic.DeactivateSubjectsExcept(ctx, year.ID, subjectCodes); err != nil {
			return err
		}
	}
	return nil
}

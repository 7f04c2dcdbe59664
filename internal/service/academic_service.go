package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/pbl-teams-api/internal/models"
	appErrors "github.com/noah-isme/pbl-teams-api/pkg/errors"
)

type academicRepo interface {
	ListActiveYears(ctx context.Context) ([]models.Year, error)
	ListActiveSubjects(ctx context.Context, yearID string) ([]models.Subject, error)
}

// AcademicService serves the year/subject catalog used by selection flows.
type AcademicService struct {
	academic academicRepo
	logger   *zap.Logger
}

// NewAcademicService constructs an AcademicService.
func NewAcademicService(academic academicRepo, logger *zap.Logger) *AcademicService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicService{academic: academic, logger: logger}
}

// Years returns the active years in creation order.
func (s *AcademicService) Years(ctx context.Context) ([]models.Year, error) {
	years, err := s.academic.ListActiveYears(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list years")
	}
	return years, nil
}

// Subjects returns the active subjects of one year in creation order.
func (s *AcademicService) Subjects(ctx context.Context, yearID string) ([]models.Subject, error) {
	if _, err := uuid.Parse(yearID); err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid year id")
	}
	subjects, err := s.academic.ListActiveSubjects(ctx, yearID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list subjects")
	}
	return subjects, nil
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pbl-teams-api/internal/models"
)

// AcademicRepository manages persistence for years and subjects.
type AcademicRepository struct {
	db *sqlx.DB
}

// NewAcademicRepository constructs an AcademicRepository.
func NewAcademicRepository(db *sqlx.DB) *AcademicRepository {
	return &AcademicRepository{db: db}
}

// ListActiveYears returns active years in creation order.
func (r *AcademicRepository) ListActiveYears(ctx context.Context) ([]models.Year, error) {
	var years []models.Year
	const query = `SELECT id, name, code, is_active, created_at, updated_at
		FROM years WHERE is_active ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &years, query); err != nil {
		return nil, fmt.Errorf("list active years: %w", err)
	}
	return years, nil
}

// ListActiveSubjects returns the active subjects of a year in creation order.
func (r *AcademicRepository) ListActiveSubjects(ctx context.Context, yearID string) ([]models.Subject, error) {
	var subjects []models.Subject
	const query = `SELECT id, year_id, name, code, is_active, created_at, updated_at
		FROM subjects WHERE year_id = $1 AND is_active ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &subjects, query, yearID); err != nil {
		return nil, fmt.Errorf("list active subjects: %w", err)
	}
	return subjects, nil
}

// FindYearByID fetches a year by ID.
func (r *AcademicRepository) FindYearByID(ctx context.Context, id string) (*models.Year, error) {
	var year models.Year
	const query = "SELECT id, name, code, is_active, created_at, updated_at FROM years WHERE id = $1"
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindYearByCode fetches a year by its unique code.
func (r *AcademicRepository) FindYearByCode(ctx context.Context, code string) (*models.Year, error) {
	var year models.Year
	const query = "SELECT id, name, code, is_active, created_at, updated_at FROM years WHERE code = $1"
	if err := r.db.GetContext(ctx, &year, query, code); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindSubjectByID fetches a subject by ID.
func (r *AcademicRepository) FindSubjectByID(ctx context.Context, id string) (*models.Subject, error) {
	var subject models.Subject
	const query = "SELECT id, year_id, name, code, is_active, created_at, updated_at FROM subjects WHERE id = $1"
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// InsertYear creates a year.
func (r *AcademicRepository) InsertYear(ctx context.Context, year *models.Year) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	year.CreatedAt = now
	year.UpdatedAt = now

	const query = `INSERT INTO years (id, name, code, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := r.db.ExecContext(ctx, query, year.ID, year.Name, year.Code, year.IsActive, year.CreatedAt, year.UpdatedAt); err != nil {
		return fmt.Errorf("insert year: %w", err)
	}
	return nil
}

// UpdateYear rewrites a year's name, code and activation flag.
func (r *AcademicRepository) UpdateYear(ctx context.Context, id, name, code string, isActive bool) error {
	const query = "UPDATE years SET name = $2, code = $3, is_active = $4, updated_at = $5 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, name, code, isActive, time.Now().UTC()); err != nil {
		return fmt.Errorf("update year: %w", err)
	}
	return nil
}

// SetYearActive flips a year's activation flag.
func (r *AcademicRepository) SetYearActive(ctx context.Context, id string, active bool) error {
	const query = "UPDATE years SET is_active = $2, updated_at = $3 WHERE id = $1"
	if _, err := r.db.ExecContext(ctx, query, id, active, time.Now().UTC()); err != nil {
		return fmt.Errorf("set year active: %w", err)
	}
	return nil
}

// DeactivateSubjectsExcept deactivates every subject of a year whose code
// is not in keepCodes and returns how many rows changed.
func (r *AcademicRepository) DeactivateSubjectsExcept(ctx context.Context, yearID string, keepCodes []string) (int64, error) {
	query, args, err := sqlx.In(
		"UPDATE subjects SET is_active = FALSE, updated_at = ? WHERE year_id = ? AND code NOT IN (?)",
		time.Now().UTC(), yearID, keepCodes)
	if err != nil {
		return 0, fmt.Errorf("deactivate subjects: %w", err)
	}
	res, err := r.db.ExecContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("deactivate subjects: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("deactivate subjects rows affected: %w", err)
	}
	return affected, nil
}

// InsertSubjectIfAbsent creates a subject unless the (year, code) pair
// already exists. Returns whether a row was created.
func (r *AcademicRepository) InsertSubjectIfAbsent(ctx context.Context, subject *models.Subject) (bool, error) {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	const query = `INSERT INTO subjects (id, year_id, name, code, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (year_id, code) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query, subject.ID, subject.YearID, subject.Name, subject.Code, subject.IsActive, now)
	if err != nil {
		return false, fmt.Errorf("insert subject: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert subject rows affected: %w", err)
	}
	return affected > 0, nil
}

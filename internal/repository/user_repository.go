package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pbl-teams-api/internal/models"
)

const userSelect = `SELECT id, email, full_name, role, password_hash, created_at, updated_at FROM users`

// UserRepository manages persistence for users. Emails are stored
// lowercased; callers normalize before writing.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs a UserRepository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByID fetches a user by ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, userSelect+" WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail fetches a user by email, case-insensitively.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.GetContext(ctx, &user, userSelect+" WHERE email = LOWER($1)", email); err != nil {
		return nil, err
	}
	return &user, nil
}

// ListTeachers returns all teacher users ordered by email.
func (r *UserRepository) ListTeachers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.db.SelectContext(ctx, &users, userSelect+" WHERE role = 'teacher' ORDER BY email ASC"); err != nil {
		return nil, fmt.Errorf("list teachers: %w", err)
	}
	return users, nil
}

// RolesByEmails returns the role of every existing user among the given
// emails.
func (r *UserRepository) RolesByEmails(ctx context.Context, emails []string) (map[string]models.UserRole, error) {
	roles := make(map[string]models.UserRole, len(emails))
	if len(emails) == 0 {
		return roles, nil
	}

	query, args, err := sqlx.In("SELECT email, role FROM users WHERE email IN (?)", emails)
	if err != nil {
		return nil, fmt.Errorf("build roles query: %w", err)
	}
	query = r.db.Rebind(query)

	rows := []struct {
		Email string          `db:"email"`
		Role  models.UserRole `db:"role"`
	}{}
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("roles by emails: %w", err)
	}

	for _, row := range rows {
		roles[row.Email] = row.Role
	}
	return roles, nil
}

// FindOrCreate inserts a user unless one with the email already exists, and
// returns the stored user plus whether it was created. The insert-if-absent
// relies on the unique email index, so concurrent callers cannot create
// duplicates.
func (r *UserRepository) FindOrCreate(ctx context.Context, user *models.User) (*models.User, bool, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	const insert = `INSERT INTO users (id, email, full_name, role, password_hash, created_at, updated_at)
		VALUES ($1, LOWER($2), $3, $4, $5, $6, $6)
		ON CONFLICT (email) DO NOTHING`
	res, err := r.db.ExecContext(ctx, insert, user.ID, user.Email, user.FullName, string(user.Role), user.PasswordHash, now)
	if err != nil {
		return nil, false, fmt.Errorf("insert user: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert user rows affected: %w", err)
	}

	stored, err := r.FindByEmail(ctx, user.Email)
	if err != nil {
		return nil, false, fmt.Errorf("load user after upsert: %w", err)
	}
	return stored, affected > 0, nil
}

// ProvisionTeachers inserts the given users as teachers where absent and
// returns how many were actually created. Existing emails are left
// untouched regardless of their role.
func (r *UserRepository) ProvisionTeachers(ctx context.Context, teachers []models.User) (int64, error) {
	var inserted int64
	const insert = `INSERT INTO users (id, email, full_name, role, password_hash, created_at, updated_at)
		VALUES ($1, LOWER($2), $3, 'teacher', '', $4, $4)
		ON CONFLICT (email) DO NOTHING`

	now := time.Now().UTC()
	for _, t := range teachers {
		id := t.ID
		if id == "" {
			id = uuid.NewString()
		}
		res, err := r.db.ExecContext(ctx, insert, id, t.Email, t.FullName, now)
		if err != nil {
			return inserted, fmt.Errorf("provision teacher %s: %w", t.Email, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return inserted, fmt.Errorf("provision teacher rows affected: %w", err)
		}
		inserted += affected
	}
	return inserted, nil
}

// UpdateTeacherName renames an existing teacher account, returning
// sql.ErrNoRows when no teacher with the email exists.
func (r *UserRepository) UpdateTeacherName(ctx context.Context, email, name string) (*models.User, error) {
	var user models.User
	const query = `UPDATE users SET full_name = $2, updated_at = $3
		WHERE email = LOWER($1) AND role = 'teacher'
		RETURNING id, email, full_name, role, password_hash, created_at, updated_at`
	err := r.db.GetContext(ctx, &user, query, email, name, time.Now().UTC())
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("update teacher name: %w", err)
	}
	return &user, nil
}

// UpdatePassword replaces a user's password hash.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	const query = "UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1"
	res, err := r.db.ExecContext(ctx, query, id, passwordHash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/pbl-teams-api/internal/models"
)

// SettingRepository persists process-wide key/value records such as
// last-sync timestamps and migration summaries.
type SettingRepository struct {
	db *sqlx.DB
}

// NewSettingRepository constructs a SettingRepository.
func NewSettingRepository(db *sqlx.DB) *SettingRepository {
	return &SettingRepository{db: db}
}

// Get fetches one setting by key. Returns sql.ErrNoRows when absent.
func (r *SettingRepository) Get(ctx context.Context, key string) (*models.Setting, error) {
	var setting models.Setting
	const query = "SELECT key, value, updated_at FROM settings WHERE key = $1"
	if err := r.db.GetContext(ctx, &setting, query, key); err != nil {
		return nil, err
	}
	return &setting, nil
}

// Upsert stores the JSON-encoded value under the key.
func (r *SettingRepository) Upsert(ctx context.Context, key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal setting %s: %w", key, err)
	}

	const query = `INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query, key, raw, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert setting %s: %w", key, err)
	}
	return nil
}

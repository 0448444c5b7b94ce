package repository

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/officeflow/be-oa-approvals/internal/apperror"
	"github.com/officeflow/be-oa-approvals/internal/database"
)

// SettingsRepository persists typed configuration values as JSONB rows.
type SettingsRepository struct {
	db *database.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *database.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get unmarshals the value stored under key into out. Returns NOT_FOUND when
// the key has never been saved.
func (r *SettingsRepository) Get(ctx context.Context, key string, out any) error {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT value FROM config_settings WHERE key = $1`, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return apperror.NotFound("setting", key)
	}
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to read setting")
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to decode setting")
	}
	return nil
}

// Save upserts the value under key.
func (r *SettingsRepository) Save(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeInvalidInput, "failed to encode setting")
	}
	query := `
		INSERT INTO config_settings (key, value, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
	`
	if err := r.db.Exec(ctx, query, key, raw); err != nil {
		return apperror.Wrap(err, apperror.CodeInternal, "failed to save setting")
	}
	return nil
}

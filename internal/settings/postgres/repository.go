package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/supaseed/supaseed/internal/seedgen"
	"github.com/supaseed/supaseed/internal/settings"
)

// Repository stores one settings row per owner in saved_settings.
type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping settings db: %w", err)
	}
	return nil
}

func (r *Repository) Load(ctx context.Context, ownerID string) (settings.SavedSettings, error) {
	query := `
SELECT endpoint_url, access_key, prompt, save_enabled, generation_mode, model, system_prompt, updated_at
FROM saved_settings
WHERE owner_id = $1`

	var out settings.SavedSettings
	var mode string
	if err := r.db.QueryRowContext(ctx, query, ownerID).Scan(
		&out.EndpointURL,
		&out.AccessKey,
		&out.Prompt,
		&out.SaveEnabled,
		&mode,
		&out.Model,
		&out.SystemPrompt,
		&out.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return settings.SavedSettings{}, settings.ErrNotFound
		}
		return settings.SavedSettings{}, fmt.Errorf("load settings: %w", err)
	}
	out.GenerationMode = seedgen.Mode(mode)
	return out, nil
}

func (r *Repository) Save(ctx context.Context, ownerID string, in settings.SavedSettings) (settings.SavedSettings, error) {
	query := `
INSERT INTO saved_settings (owner_id, endpoint_url, access_key, prompt, save_enabled, generation_mode, model, system_prompt)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (owner_id) DO UPDATE SET
	endpoint_url = EXCLUDED.endpoint_url,
	access_key = EXCLUDED.access_key,
	prompt = EXCLUDED.prompt,
	save_enabled = EXCLUDED.save_enabled,
	generation_mode = EXCLUDED.generation_mode,
	model = EXCLUDED.model,
	system_prompt = EXCLUDED.system_prompt,
	updated_at = NOW()
RETURNING updated_at`

	out := in
	if err := r.db.QueryRowContext(ctx, query,
		ownerID,
		in.EndpointURL,
		in.AccessKey,
		in.Prompt,
		in.SaveEnabled,
		string(in.GenerationMode),
		in.Model,
		in.SystemPrompt,
	).Scan(&out.UpdatedAt); err != nil {
		return settings.SavedSettings{}, fmt.Errorf("save settings: %w", err)
	}
	return out, nil
}

func (r *Repository) Delete(ctx context.Context, ownerID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM saved_settings WHERE owner_id = $1`, ownerID)
	if err != nil {
		return fmt.Errorf("delete settings: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete settings rows affected: %w", err)
	}
	if affected == 0 {
		return settings.ErrNotFound
	}
	return nil
}

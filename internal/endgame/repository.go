package endgame

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"corridor-server/internal/shared/database"

	"github.com/lib/pq"
)

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing endgame repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Config returns nil when no endgame is configured.
func (r *Repository) Config(ctx context.Context) (*Config, error) {
	var cfg Config
	err := r.db.GetContext(ctx, &cfg, `
		SELECT start_time, length_minutes, created_by, is_active, created_at
		FROM endgame_config WHERE config_id = 1`)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.Error("Failed to load endgame config", "component", "endgame_repository", "error", err)
		return nil, fmt.Errorf("failed to load endgame config: %w", err)
	}
	return &cfg, nil
}

// Create stores the singleton config. It reports false when one already
// exists.
func (r *Repository) Create(ctx context.Context, cfg Config) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO endgame_config (config_id, start_time, length_minutes, created_by, is_active, created_at)
		VALUES (1, $1, $2, $3, FALSE, $4)
		ON CONFLICT (config_id) DO NOTHING`,
		cfg.StartTime, cfg.LengthMinutes, cfg.CreatedBy, cfg.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to store endgame config", "component", "endgame_repository", "error", err)
		return false, fmt.Errorf("failed to store endgame config: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to store endgame config: %w", err)
	}
	return n == 1, nil
}

func (r *Repository) Activate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE endgame_config SET is_active = TRUE WHERE config_id = 1`); err != nil {
		return fmt.Errorf("failed to activate endgame: %w", err)
	}
	return nil
}

// Clear removes the config and every evacuation warning.
func (r *Repository) Clear(ctx context.Context) error {
	return r.db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM endgame_evacuations`); err != nil {
			return fmt.Errorf("failed to clear evacuations: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM endgame_config`); err != nil {
			return fmt.Errorf("failed to clear endgame config: %w", err)
		}
		return nil
	})
}

func (r *Repository) Warn(ctx context.Context, locationID int64, warnedAt, evacuateAt time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO endgame_evacuations (location_id, warned_at, evacuate_at) VALUES ($1, $2, $3)
		ON CONFLICT (location_id) DO UPDATE SET warned_at = EXCLUDED.warned_at, evacuate_at = EXCLUDED.evacuate_at`,
		locationID, warnedAt, evacuateAt)
	if err != nil {
		return fmt.Errorf("failed to store evacuation warning: %w", err)
	}
	return nil
}

func (r *Repository) Occupants(ctx context.Context, locationID int64) ([]Occupant, error) {
	var occupants []Occupant
	err := r.db.SelectContext(ctx, &occupants, `
		SELECT user_id, guild_id, name FROM characters
		WHERE current_location = $1 AND location_status <> 'dead'
		ORDER BY user_id`, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list occupants: %w", err)
	}
	return occupants, nil
}

// Names maps user ids to character names, dead or alive.
func (r *Repository) Names(ctx context.Context, userIDs []int64) (map[int64]string, error) {
	names := make(map[int64]string, len(userIDs))
	if len(userIDs) == 0 {
		return names, nil
	}
	var rows []Occupant
	err := r.db.SelectContext(ctx, &rows,
		`SELECT user_id, guild_id, name FROM characters WHERE user_id = ANY($1)`, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to load character names: %w", err)
	}
	for _, o := range rows {
		names[o.UserID] = o.Name
	}
	return names, nil
}

package radio

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"corridor-server/internal/shared/database"
)

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing radio repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) OriginAt(ctx context.Context, locationID int64) (*Origin, error) {
	var o Origin
	err := r.db.GetContext(ctx, &o, `
		SELECT location_id, name, system_name, x_coordinate, y_coordinate
		FROM locations WHERE location_id = $1`, locationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get radio origin: %w", err)
	}
	return &o, nil
}

// Snapshot reads every listener and repeater in one pass.
func (r *Repository) Snapshot(ctx context.Context) (*Snapshot, error) {
	logger := r.logger.With("component", "radio_repository", "operation", "snapshot")

	var snap Snapshot
	err := r.db.SelectContext(ctx, &snap.Listeners, `
		SELECT c.user_id, c.guild_id, l.location_id, l.name AS location_name, l.x_coordinate, l.y_coordinate
		FROM characters c
		JOIN locations l ON l.location_id = c.current_location
		WHERE c.is_logged_in`)
	if err != nil {
		logger.Error("Failed to list listeners", "error", err)
		return nil, fmt.Errorf("failed to list listeners: %w", err)
	}

	err = r.db.SelectContext(ctx, &snap.Transit, `
		SELECT ts.user_id, c.guild_id, ts.corridor_id, cor.name AS corridor_name, cor.corridor_type,
		       ts.temp_channel_id,
		       ol.name AS origin_name, ol.x_coordinate AS origin_x, ol.y_coordinate AS origin_y,
		       dl.name AS dest_name, dl.x_coordinate AS dest_x, dl.y_coordinate AS dest_y
		FROM travel_sessions ts
		JOIN characters c ON c.user_id = ts.user_id
		JOIN corridors cor ON cor.corridor_id = ts.corridor_id
		JOIN locations ol ON ol.location_id = ts.origin_location
		JOIN locations dl ON dl.location_id = ts.destination_location
		WHERE ts.status = 'traveling' AND c.is_logged_in`)
	if err != nil {
		logger.Error("Failed to list transit listeners", "error", err)
		return nil, fmt.Errorf("failed to list transit listeners: %w", err)
	}

	err = r.db.SelectContext(ctx, &snap.Repeaters, `
		SELECT r.repeater_id, l.name AS location_name, l.x_coordinate, l.y_coordinate,
		       r.receive_range, r.transmit_range
		FROM repeaters r
		JOIN locations l ON l.location_id = r.location_id
		WHERE r.is_active
		ORDER BY r.repeater_id`)
	if err != nil {
		logger.Error("Failed to list repeaters", "error", err)
		return nil, fmt.Errorf("failed to list repeaters: %w", err)
	}

	return &snap, nil
}

package world

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"corridor-server/internal/character"
	"corridor-server/internal/shared/database"

	"github.com/lib/pq"
)

const locationColumns = `location_id, name, location_type, description, wealth_level, population,
	x_coordinate, y_coordinate, system_name, has_jobs, has_shops, has_medical, has_repairs, has_fuel,
	has_upgrades, has_federal_supplies, has_black_market, faction_id, is_derelict`

const corridorColumns = `corridor_id, name, origin_location, destination_location, travel_time, fuel_cost,
	danger_level, corridor_type, is_bidirectional, is_active`

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing world repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetLocation(ctx context.Context, locationID int64) (*Location, error) {
	loc, err := GetLocation(ctx, r.db, locationID)
	if err != nil {
		r.logger.Error("Failed to get location", "component", "world_repository", "location_id", locationID, "error", err)
	}
	return loc, err
}

// GetLocation returns nil when the location does not exist.
func GetLocation(ctx context.Context, exec database.Executor, locationID int64) (*Location, error) {
	var loc Location
	err := exec.GetContext(ctx, &loc, `SELECT `+locationColumns+` FROM locations WHERE location_id = $1`, locationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return &loc, nil
}

func (r *Repository) ListLocations(ctx context.Context) ([]Location, error) {
	var locations []Location
	if err := r.db.SelectContext(ctx, &locations, `SELECT `+locationColumns+` FROM locations ORDER BY location_id`); err != nil {
		r.logger.Error("Failed to list locations", "component", "world_repository", "error", err)
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	return locations, nil
}

func (r *Repository) GetCorridor(ctx context.Context, corridorID int64) (*Corridor, error) {
	c, err := GetCorridor(ctx, r.db, corridorID)
	if err != nil {
		r.logger.Error("Failed to get corridor", "component", "world_repository", "corridor_id", corridorID, "error", err)
	}
	return c, err
}

// GetCorridor returns nil when the corridor does not exist.
func GetCorridor(ctx context.Context, exec database.Executor, corridorID int64) (*Corridor, error) {
	var c Corridor
	err := exec.GetContext(ctx, &c, `SELECT `+corridorColumns+` FROM corridors WHERE corridor_id = $1`, corridorID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get corridor: %w", err)
	}
	return &c, nil
}

// OutgoingCorridors lists the active corridors that can be taken from a
// location, oriented to depart from it.
func OutgoingCorridors(ctx context.Context, exec database.Executor, locationID int64) ([]Corridor, error) {
	var raw []Corridor
	err := exec.SelectContext(ctx, &raw, `
		SELECT `+corridorColumns+` FROM corridors
		WHERE is_active AND (origin_location = $1 OR (is_bidirectional AND destination_location = $1))
		ORDER BY corridor_id`, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list outgoing corridors: %w", err)
	}
	out := make([]Corridor, 0, len(raw))
	for _, c := range raw {
		if oriented, ok := c.From(locationID); ok {
			out = append(out, oriented)
		}
	}
	return out, nil
}

func (r *Repository) ActiveCorridors(ctx context.Context) ([]Corridor, error) {
	var corridors []Corridor
	err := r.db.SelectContext(ctx, &corridors,
		`SELECT `+corridorColumns+` FROM corridors WHERE is_active ORDER BY corridor_id`)
	if err != nil {
		r.logger.Error("Failed to list corridors", "component", "world_repository", "error", err)
		return nil, fmt.Errorf("failed to list corridors: %w", err)
	}
	return corridors, nil
}

// ListCorridors returns every corridor, active or not.
func (r *Repository) ListCorridors(ctx context.Context) ([]Corridor, error) {
	var corridors []Corridor
	err := r.db.SelectContext(ctx, &corridors, `SELECT `+corridorColumns+` FROM corridors ORDER BY corridor_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list all corridors: %w", err)
	}
	return corridors, nil
}

func (r *Repository) Counts(ctx context.Context) (locations, corridors int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT (SELECT COUNT(*) FROM locations), (SELECT COUNT(*) FROM corridors)`).Scan(&locations, &corridors)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to count world: %w", err)
	}
	return locations, corridors, nil
}

// OccupantIDs returns the living characters currently at a location.
func (r *Repository) OccupantIDs(ctx context.Context, locationID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM characters WHERE current_location = $1 AND location_status <> 'dead' ORDER BY user_id`,
		locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list occupants: %w", err)
	}
	return ids, nil
}

func (r *Repository) SetFlag(ctx context.Context, name string, value bool) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO world_flags (name, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, name, value)
	if err != nil {
		return fmt.Errorf("failed to set world flag %s: %w", name, err)
	}
	return nil
}

func (r *Repository) Flag(ctx context.Context, name string) (bool, error) {
	var value bool
	err := r.db.GetContext(ctx, &value, `SELECT value FROM world_flags WHERE name = $1`, name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read world flag %s: %w", name, err)
	}
	return value, nil
}

// DestroyCorridor deletes a corridor. Travel sessions in flight on it are
// cancelled and their passengers die with it.
func (r *Repository) DestroyCorridor(ctx context.Context, corridorID int64) (*DestructionReport, error) {
	logger := r.logger.With("component", "world_repository", "operation", "destroy_corridor", "corridor_id", corridorID)

	report := &DestructionReport{}
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := cancelTransit(ctx, tx, []int64{corridorID}, report); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM corridors WHERE corridor_id = $1`, corridorID); err != nil {
			return fmt.Errorf("failed to delete corridor: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to destroy corridor", "error", err)
		return nil, err
	}

	logger.Info("Corridor destroyed", "killed", len(report.Killed))
	return report, nil
}

// DestroyLocation kills everyone still at the location, then removes the
// location together with its corridors, NPCs, shop stock and jobs.
func (r *Repository) DestroyLocation(ctx context.Context, locationID int64) (*DestructionReport, error) {
	logger := r.logger.With("component", "world_repository", "operation", "destroy_location", "location_id", locationID)

	report := &DestructionReport{}
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		var occupants []int64
		if err := tx.SelectContext(ctx, &occupants,
			`SELECT user_id FROM characters WHERE current_location = $1 AND location_status <> 'dead'`, locationID); err != nil {
			return fmt.Errorf("failed to list occupants: %w", err)
		}
		if err := character.Kill(ctx, tx, occupants); err != nil {
			return err
		}
		report.Killed = append(report.Killed, occupants...)

		res, err := tx.ExecContext(ctx,
			`UPDATE dynamic_npcs SET is_alive = FALSE, current_location = NULL WHERE current_location = $1 AND is_alive`, locationID)
		if err != nil {
			return fmt.Errorf("failed to kill npcs: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil {
			report.NPCsKilled = int(n)
		}

		var corridorIDs []int64
		if err := tx.SelectContext(ctx, &corridorIDs,
			`SELECT corridor_id FROM corridors WHERE origin_location = $1 OR destination_location = $1`, locationID); err != nil {
			return fmt.Errorf("failed to list corridors: %w", err)
		}
		if err := cancelTransit(ctx, tx, corridorIDs, report); err != nil {
			return err
		}

		statements := []string{
			`DELETE FROM corridors WHERE origin_location = $1 OR destination_location = $1`,
			`DELETE FROM static_npcs WHERE location_id = $1`,
			`DELETE FROM shop_items WHERE location_id = $1`,
			`DELETE FROM jobs WHERE location_id = $1 OR destination_location_id = $1`,
			`DELETE FROM endgame_evacuations WHERE location_id = $1`,
			`DELETE FROM locations WHERE location_id = $1`,
		}
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt, locationID); err != nil {
				return fmt.Errorf("failed to cascade location delete: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to destroy location", "error", err)
		return nil, err
	}

	logger.Info("Location destroyed", "killed", len(report.Killed), "npcs_killed", report.NPCsKilled)
	return report, nil
}

func cancelTransit(ctx context.Context, tx *database.Tx, corridorIDs []int64, report *DestructionReport) error {
	if len(corridorIDs) == 0 {
		return nil
	}

	var sessions []struct {
		UserID    int64          `db:"user_id"`
		ChannelID sql.NullString `db:"temp_channel_id"`
	}
	err := tx.SelectContext(ctx, &sessions, `
		UPDATE travel_sessions SET status = 'cancelled'
		WHERE corridor_id = ANY($1) AND status = 'traveling'
		RETURNING user_id, temp_channel_id`, pq.Array(corridorIDs))
	if err != nil {
		return fmt.Errorf("failed to cancel travel sessions: %w", err)
	}

	victims := make([]int64, 0, len(sessions))
	seen := map[string]bool{}
	for _, s := range sessions {
		victims = append(victims, s.UserID)
		if s.ChannelID.Valid && !seen[s.ChannelID.String] {
			seen[s.ChannelID.String] = true
			report.TransitChannels = append(report.TransitChannels, s.ChannelID.String)
		}
	}
	if err := character.Kill(ctx, tx, victims); err != nil {
		return err
	}
	report.Killed = append(report.Killed, victims...)
	return nil
}

package beacon

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/shared/database"
)

const beaconColumns = `beacon_id, beacon_type, user_id, location_id, message_content, transmissions_sent,
	max_transmissions, interval_seconds, next_transmission, is_active, created_at`

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing beacon repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetCharacter(ctx context.Context, userID int64) (*character.Character, error) {
	return character.GetCharacter(ctx, r.db, userID)
}

// Deploy spends one use of item and stores the beacon in the same
// transaction.
func (r *Repository) Deploy(ctx context.Context, item character.InventoryItem, b Beacon) (*Beacon, error) {
	logger := r.logger.With("component", "beacon_repository", "operation", "deploy", "user_id", b.UserID)

	var stored Beacon
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := character.ConsumeItem(ctx, tx, item); err != nil {
			return err
		}
		return tx.GetContext(ctx, &stored, `
			INSERT INTO beacons (beacon_type, user_id, location_id, message_content, max_transmissions,
				interval_seconds, next_transmission, is_active, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
			RETURNING `+beaconColumns,
			b.Type, b.UserID, b.LocationID, b.Message, b.MaxTransmissions, b.IntervalSeconds,
			b.NextTransmission, b.CreatedAt)
	})
	if err != nil {
		logger.Error("Failed to deploy beacon", "error", err)
		return nil, fmt.Errorf("failed to deploy beacon: %w", err)
	}

	logger.Info("Beacon deployed", "beacon_id", stored.ID, "beacon_type", stored.Type)
	return &stored, nil
}

func (r *Repository) Consume(ctx context.Context, item character.InventoryItem) error {
	return character.ConsumeItem(ctx, r.db, item)
}

func (r *Repository) Due(ctx context.Context, now time.Time) ([]Beacon, error) {
	var beacons []Beacon
	err := r.db.SelectContext(ctx, &beacons, `
		SELECT `+beaconColumns+` FROM beacons
		WHERE is_active AND next_transmission <= $1 AND transmissions_sent < max_transmissions
		ORDER BY next_transmission, beacon_id`, now)
	if err != nil {
		r.logger.Error("Failed to list due beacons", "component", "beacon_repository", "error", err)
		return nil, fmt.Errorf("failed to list due beacons: %w", err)
	}
	return beacons, nil
}

// Advance records one transmission. It only applies when the row still has
// the expected count, so a transmission is never counted twice.
func (r *Repository) Advance(ctx context.Context, beaconID int64, sent int, next time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE beacons SET
			transmissions_sent = transmissions_sent + 1,
			is_active = transmissions_sent + 1 < max_transmissions,
			next_transmission = $3
		WHERE beacon_id = $1 AND transmissions_sent = $2 AND is_active`, beaconID, sent, next)
	if err != nil {
		return false, fmt.Errorf("failed to advance beacon: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to advance beacon: %w", err)
	}
	return n == 1, nil
}

func (r *Repository) ActiveFor(ctx context.Context, userID int64) ([]Beacon, error) {
	var beacons []Beacon
	err := r.db.SelectContext(ctx, &beacons,
		`SELECT `+beaconColumns+` FROM beacons WHERE user_id = $1 AND is_active ORDER BY beacon_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list beacons: %w", err)
	}
	return beacons, nil
}

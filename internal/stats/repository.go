package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/shared/database"

	"github.com/lib/pq"
)

const modifierColumns = `modifier_id, user_id, stat_name, modifier_value, source_type, source_item_name, source_item_id, expires_at`

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing stats repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetCharacter(ctx context.Context, userID int64) (*character.Character, error) {
	return character.GetCharacter(ctx, r.db, userID)
}

func (r *Repository) GetInventoryItem(ctx context.Context, userID, itemID int64) (*character.InventoryItem, error) {
	return character.GetInventoryItem(ctx, r.db, userID, itemID)
}

// Modifiers purges expired modifiers and returns the user's remaining ones.
func (r *Repository) Modifiers(ctx context.Context, userID int64, now time.Time) ([]Modifier, error) {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM active_stat_modifiers WHERE expires_at IS NOT NULL AND expires_at <= $1`, now); err != nil {
		r.logger.Error("Failed to purge expired modifiers", "component", "stats_repository", "error", err)
		return nil, fmt.Errorf("failed to purge expired modifiers: %w", err)
	}

	var mods []Modifier
	err := r.db.SelectContext(ctx, &mods, `
		SELECT `+modifierColumns+` FROM active_stat_modifiers
		WHERE user_id = $1 ORDER BY modifier_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list modifiers: %w", err)
	}
	return mods, nil
}

func (r *Repository) Equipment(ctx context.Context, userID int64) ([]EquippedItem, error) {
	var items []EquippedItem
	err := r.db.SelectContext(ctx, &items, `
		SELECT e.slot_name, e.item_id, i.item_name, i.metadata
		FROM character_equipment e
		JOIN inventory i ON i.item_id = e.item_id
		WHERE e.user_id = $1
		ORDER BY e.slot_name`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list equipment: %w", err)
	}
	return items, nil
}

// Equip binds item to slots. Paired slots first release whatever occupies
// either side; single slots fail with ErrSlotOccupied when taken.
func (r *Repository) Equip(ctx context.Context, userID int64, item character.InventoryItem, slot string, mods []Modifier) error {
	logger := r.logger.With("component", "stats_repository", "operation", "equip", "user_id", userID, "item_id", item.ID)

	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		var already int
		if err := tx.GetContext(ctx, &already,
			`SELECT COUNT(*) FROM character_equipment WHERE user_id = $1 AND item_id = $2`, userID, item.ID); err != nil {
			return fmt.Errorf("failed to check equipment: %w", err)
		}
		if already > 0 {
			return ErrAlreadyEquipped
		}

		targets := Occupies(slot)
		if IsPaired(slot) {
			var displaced []int64
			if err := tx.SelectContext(ctx, &displaced, `
				SELECT DISTINCT item_id FROM character_equipment
				WHERE user_id = $1 AND slot_name = ANY($2)`, userID, pq.Array(targets)); err != nil {
				return fmt.Errorf("failed to find displaced items: %w", err)
			}
			for _, id := range displaced {
				if err := UnequipItem(ctx, tx, userID, id); err != nil {
					return err
				}
			}
		} else {
			var taken int
			if err := tx.GetContext(ctx, &taken,
				`SELECT COUNT(*) FROM character_equipment WHERE user_id = $1 AND slot_name = $2`, userID, slot); err != nil {
				return fmt.Errorf("failed to check slot: %w", err)
			}
			if taken > 0 {
				return ErrSlotOccupied
			}
		}

		for _, s := range targets {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO character_equipment (user_id, slot_name, item_id) VALUES ($1, $2, $3)`,
				userID, s, item.ID); err != nil {
				return fmt.Errorf("failed to equip %s: %w", s, err)
			}
		}
		return AddModifiers(ctx, tx, mods)
	})
	if err != nil && err != ErrSlotOccupied && err != ErrAlreadyEquipped {
		logger.Error("Failed to equip item", "error", err)
	}
	return err
}

// Unequip releases the item in slot, including the other side of a paired
// item. It returns nil when the slot was empty.
func (r *Repository) Unequip(ctx context.Context, userID int64, slot string) (*EquippedItem, error) {
	var found *EquippedItem
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		var items []EquippedItem
		if err := tx.SelectContext(ctx, &items, `
			SELECT e.slot_name, e.item_id, i.item_name, i.metadata
			FROM character_equipment e
			JOIN inventory i ON i.item_id = e.item_id
			WHERE e.user_id = $1 AND e.slot_name = ANY($2)`, userID, pq.Array(Occupies(slot))); err != nil {
			return fmt.Errorf("failed to read slot: %w", err)
		}
		if len(items) == 0 {
			return nil
		}
		found = &items[0]
		for _, it := range items {
			if err := UnequipItem(ctx, tx, userID, it.ItemID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (r *Repository) AddModifiers(ctx context.Context, mods []Modifier) error {
	return AddModifiers(ctx, r.db, mods)
}

// UnequipItem removes every slot binding of an item and the modifiers it
// granted.
func UnequipItem(ctx context.Context, exec database.Executor, userID, itemID int64) error {
	if _, err := exec.ExecContext(ctx,
		`DELETE FROM character_equipment WHERE user_id = $1 AND item_id = $2`, userID, itemID); err != nil {
		return fmt.Errorf("failed to unequip item: %w", err)
	}
	if _, err := exec.ExecContext(ctx, `
		DELETE FROM active_stat_modifiers
		WHERE user_id = $1 AND source_type = 'equipment' AND source_item_id = $2`, userID, itemID); err != nil {
		return fmt.Errorf("failed to remove equipment modifiers: %w", err)
	}
	return nil
}

func AddModifiers(ctx context.Context, exec database.Executor, mods []Modifier) error {
	for _, m := range mods {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO active_stat_modifiers
				(user_id, stat_name, modifier_value, source_type, source_item_name, source_item_id, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			m.UserID, m.StatName, m.Value, m.SourceType, m.SourceItemName, m.SourceItemID, m.ExpiresAt)
		if err != nil {
			return fmt.Errorf("failed to add modifier: %w", err)
		}
	}
	return nil
}

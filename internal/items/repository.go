package items

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/shared/database"
	"corridor-server/internal/stats"
	"corridor-server/internal/world"
)

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing items repository")

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

func (r *Repository) FindItem(ctx context.Context, userID int64, name string) (*character.InventoryItem, error) {
	return character.FindItemByName(ctx, r.db, userID, name)
}

func (r *Repository) GetLocation(ctx context.Context, locationID int64) (*world.Location, error) {
	return world.GetLocation(ctx, r.db, locationID)
}

var gaugeQueries = map[Gauge]struct{ read, write string }{
	GaugeHP: {
		read:  `SELECT hp, max_hp FROM characters WHERE user_id = $1 FOR UPDATE`,
		write: `UPDATE characters SET hp = hp + $1 WHERE user_id = $2`,
	},
	GaugeFuel: {
		read:  `SELECT current_fuel, fuel_capacity FROM ships WHERE owner_id = $1 AND is_active FOR UPDATE`,
		write: `UPDATE ships SET current_fuel = current_fuel + $1 WHERE owner_id = $2 AND is_active`,
	},
	GaugeHull: {
		read:  `SELECT hull_integrity, max_hull FROM ships WHERE owner_id = $1 AND is_active FOR UPDATE`,
		write: `UPDATE ships SET hull_integrity = hull_integrity + $1 WHERE owner_id = $2 AND is_active`,
	},
}

// Restore spends one use of item to top up a gauge by at most amount. When
// the gauge is already full nothing is written and zero is returned. A
// missing row (no active ship) yields found=false.
func (r *Repository) Restore(ctx context.Context, item character.InventoryItem, gauge Gauge, amount int) (restored int, found bool, err error) {
	logger := r.logger.With("component", "items_repository", "operation", "restore", "user_id", item.OwnerID, "gauge", gauge)

	q, ok := gaugeQueries[gauge]
	if !ok {
		return 0, false, fmt.Errorf("unknown gauge %q", gauge)
	}

	err = r.db.WithTx(ctx, func(tx *database.Tx) error {
		var current, capacity int
		if err := tx.QueryRowContext(ctx, q.read, item.OwnerID).Scan(&current, &capacity); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		found = true

		restored = Restore(current, capacity, amount)
		if restored == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, q.write, restored, item.OwnerID); err != nil {
			return err
		}
		return character.ConsumeItem(ctx, tx, item)
	})
	if err != nil {
		logger.Error("Failed to apply item", "error", err)
		return 0, false, fmt.Errorf("failed to use item: %w", err)
	}
	return restored, found, nil
}

// ApplyModifiers spends one use of item and stores the modifiers it grants.
func (r *Repository) ApplyModifiers(ctx context.Context, item character.InventoryItem, mods []stats.Modifier) error {
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := stats.AddModifiers(ctx, tx, mods); err != nil {
			return err
		}
		return character.ConsumeItem(ctx, tx, item)
	})
	if err != nil {
		return fmt.Errorf("failed to apply item modifiers: %w", err)
	}
	return nil
}

// Sell moves quantity units of item from the seller to the shop at
// locationID, pays the seller and logs the sale. It returns the price the
// shop now asks. The stack is re-read under lock so a concurrent sale cannot
// oversell it.
func (r *Repository) Sell(ctx context.Context, item character.InventoryItem, locationID int64, quantity, unitPrice, shopPrice int, now time.Time) (int, bool, error) {
	logger := r.logger.With("component", "items_repository", "operation", "sell", "user_id", item.OwnerID, "item_id", item.ID)

	var (
		askPrice int
		enough   bool
	)
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		var held int
		if err := tx.GetContext(ctx, &held,
			`SELECT quantity FROM inventory WHERE item_id = $1 AND owner_id = $2 FOR UPDATE`, item.ID, item.OwnerID); err != nil {
			if err == sql.ErrNoRows {
				return nil
			}
			return err
		}
		if held < quantity {
			return nil
		}
		enough = true

		if err := stats.UnequipItem(ctx, tx, item.OwnerID, item.ID); err != nil {
			return err
		}
		if err := character.RemoveQuantity(ctx, tx, item.ID, quantity); err != nil {
			return err
		}
		if err := character.AddMoney(ctx, tx, item.OwnerID, int64(unitPrice)*int64(quantity)); err != nil {
			return err
		}

		// Stock of -1 means unlimited. A resale never lowers the asking price.
		if err := tx.GetContext(ctx, &askPrice, `
			INSERT INTO shop_items (location_id, item_name, item_type, price, stock, metadata)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (location_id, item_name) DO UPDATE SET
				stock = CASE WHEN shop_items.stock = -1 THEN -1 ELSE shop_items.stock + EXCLUDED.stock END,
				price = GREATEST(shop_items.price, EXCLUDED.price)
			RETURNING price`,
			locationID, item.ItemName, item.ItemType, shopPrice, quantity, item.Metadata); err != nil {
			return fmt.Errorf("failed to restock shop: %w", err)
		}

		_, err := tx.ExecContext(ctx, `
			INSERT INTO item_sales (user_id, location_id, item_name, quantity, unit_price, sold_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			item.OwnerID, locationID, item.ItemName, quantity, unitPrice, now)
		if err != nil {
			return fmt.Errorf("failed to record sale: %w", err)
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to sell item", "error", err)
		return 0, false, fmt.Errorf("failed to sell item: %w", err)
	}
	return askPrice, enough, nil
}

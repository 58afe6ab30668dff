package character

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"corridor-server/internal/content"
	"corridor-server/internal/shared/database"

	"github.com/lib/pq"
)

const characterColumns = `user_id, guild_id, name, callsign, hp, max_hp, money, engineering, navigation,
	combat, medical, defense, level, experience, skill_points, current_location, location_status,
	active_ship_id, is_logged_in, faction_id, group_id`

const shipColumns = `ship_id, owner_id, ship_type, name, current_fuel, fuel_capacity, hull_integrity,
	max_hull, fuel_efficiency, is_active`

const inventoryColumns = `item_id, owner_id, item_name, item_type, quantity, value, metadata, created_at`

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing character repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetCharacter(ctx context.Context, userID int64) (*Character, error) {
	return GetCharacter(ctx, r.db, userID)
}

// GetCharacter loads a character through exec, returning nil when absent.
func GetCharacter(ctx context.Context, exec database.Executor, userID int64) (*Character, error) {
	var c Character
	err := exec.GetContext(ctx, &c, `SELECT `+characterColumns+` FROM characters WHERE user_id = $1`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get character: %w", err)
	}
	return &c, nil
}

func (r *Repository) GetActiveShip(ctx context.Context, userID int64) (*Ship, error) {
	return GetActiveShip(ctx, r.db, userID)
}

func GetActiveShip(ctx context.Context, exec database.Executor, userID int64) (*Ship, error) {
	var s Ship
	err := exec.GetContext(ctx, &s, `SELECT `+shipColumns+` FROM ships WHERE owner_id = $1 AND is_active`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active ship: %w", err)
	}
	return &s, nil
}

func (r *Repository) ListCharacters(ctx context.Context, userIDs []int64) ([]Character, error) {
	var chars []Character
	err := r.db.SelectContext(ctx, &chars,
		`SELECT `+characterColumns+` FROM characters WHERE user_id = ANY($1) ORDER BY user_id`, pq.Array(userIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list characters: %w", err)
	}
	return chars, nil
}

func (r *Repository) GroupMembers(ctx context.Context, groupID int64) ([]Character, error) {
	return GroupMembers(ctx, r.db, groupID)
}

// GroupMembers lists the living members of a group.
func GroupMembers(ctx context.Context, exec database.Executor, groupID int64) ([]Character, error) {
	var chars []Character
	err := exec.SelectContext(ctx, &chars,
		`SELECT `+characterColumns+` FROM characters WHERE group_id = $1 AND location_status <> 'dead' ORDER BY user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	return chars, nil
}

// Create inserts a character together with its first ship, which becomes
// the active one.
func (r *Repository) Create(ctx context.Context, c Character, ship Ship) (*Character, error) {
	logger := r.logger.With("component", "character_repository", "operation", "create", "user_id", c.UserID)

	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO characters (user_id, guild_id, name, callsign, hp, max_hp, money,
				engineering, navigation, combat, medical, defense, current_location, location_status)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
			c.UserID, c.GuildID, c.Name, c.Callsign, c.HP, c.MaxHP, c.Money,
			c.Engineering, c.Navigation, c.Combat, c.Medical, c.Defense, c.CurrentLocation, c.LocationStatus)
		if err != nil {
			return fmt.Errorf("failed to insert character: %w", err)
		}

		var shipID int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO ships (owner_id, ship_type, name, current_fuel, fuel_capacity, hull_integrity, max_hull, fuel_efficiency, is_active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, TRUE)
			RETURNING ship_id`,
			c.UserID, ship.ShipType, ship.Name, ship.CurrentFuel, ship.FuelCapacity,
			ship.HullIntegrity, ship.MaxHull, ship.FuelEfficiency).Scan(&shipID)
		if err != nil {
			return fmt.Errorf("failed to insert ship: %w", err)
		}

		_, err = tx.ExecContext(ctx, `UPDATE characters SET active_ship_id = $1 WHERE user_id = $2`, shipID, c.UserID)
		return err
	})
	if err != nil {
		logger.Error("Failed to create character", "error", err)
		return nil, err
	}

	logger.Info("Character created", "callsign", c.Callsign)
	return r.GetCharacter(ctx, c.UserID)
}

func (r *Repository) ListInventory(ctx context.Context, userID int64) ([]InventoryItem, error) {
	var items []InventoryItem
	err := r.db.SelectContext(ctx, &items,
		`SELECT `+inventoryColumns+` FROM inventory WHERE owner_id = $1 ORDER BY item_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list inventory: %w", err)
	}
	return items, nil
}

func (r *Repository) GetInventoryItem(ctx context.Context, userID, itemID int64) (*InventoryItem, error) {
	return GetInventoryItem(ctx, r.db, userID, itemID)
}

func GetInventoryItem(ctx context.Context, exec database.Executor, userID, itemID int64) (*InventoryItem, error) {
	var item InventoryItem
	err := exec.GetContext(ctx, &item,
		`SELECT `+inventoryColumns+` FROM inventory WHERE owner_id = $1 AND item_id = $2`, userID, itemID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get inventory item: %w", err)
	}
	return &item, nil
}

// FindItemByName returns the first stack of the named item.
func FindItemByName(ctx context.Context, exec database.Executor, userID int64, name string) (*InventoryItem, error) {
	var item InventoryItem
	err := exec.GetContext(ctx, &item, `
		SELECT `+inventoryColumns+` FROM inventory
		WHERE owner_id = $1 AND LOWER(item_name) = LOWER($2)
		ORDER BY item_id LIMIT 1`, userID, name)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find inventory item: %w", err)
	}
	return &item, nil
}

// AddItem stacks quantity units of def into the inventory.
func (r *Repository) AddItem(ctx context.Context, userID int64, def content.ItemDef, quantity int) error {
	return AddItem(ctx, r.db, userID, def, quantity)
}

func AddItem(ctx context.Context, exec database.Executor, userID int64, def content.ItemDef, quantity int) error {
	res, err := exec.ExecContext(ctx, `
		UPDATE inventory SET quantity = quantity + $3
		WHERE item_id = (
			SELECT item_id FROM inventory WHERE owner_id = $1 AND item_name = $2 ORDER BY item_id LIMIT 1
		)`, userID, def.Name, quantity)
	if err != nil {
		return fmt.Errorf("failed to stack item: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO inventory (owner_id, item_name, item_type, quantity, value, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		userID, def.Name, def.Type, quantity, def.Value, def.Metadata())
	if err != nil {
		return fmt.Errorf("failed to insert item: %w", err)
	}
	return nil
}

// ConsumeItem applies one use of item.
func ConsumeItem(ctx context.Context, exec database.Executor, item InventoryItem) error {
	use := ConsumeOnce(item)
	switch {
	case use.RemoveOne:
		return RemoveQuantity(ctx, exec, item.ID, 1)
	case item.Metadata.UsesRemaining != nil:
		meta := item.Metadata
		uses := use.UsesRemaining
		meta.UsesRemaining = &uses
		if _, err := exec.ExecContext(ctx, `UPDATE inventory SET metadata = $1 WHERE item_id = $2`, meta, item.ID); err != nil {
			return fmt.Errorf("failed to update item charges: %w", err)
		}
	}
	return nil
}

// RemoveQuantity takes quantity units off a stack, deleting the row when
// nothing is left.
func RemoveQuantity(ctx context.Context, exec database.Executor, itemID int64, quantity int) error {
	if _, err := exec.ExecContext(ctx,
		`UPDATE inventory SET quantity = quantity - $1 WHERE item_id = $2 AND quantity > $1`, quantity, itemID); err != nil {
		return fmt.Errorf("failed to decrement item: %w", err)
	}
	if _, err := exec.ExecContext(ctx,
		`DELETE FROM inventory WHERE item_id = $1 AND quantity <= $2`, itemID, quantity); err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	return nil
}

func AddMoney(ctx context.Context, exec database.Executor, userID int64, amount int64) error {
	if _, err := exec.ExecContext(ctx,
		`UPDATE characters SET money = GREATEST(0, money + $1) WHERE user_id = $2`, amount, userID); err != nil {
		return fmt.Errorf("failed to add money: %w", err)
	}
	return nil
}

// GrantExperience adds experience and applies level ups. It reports the new
// level when one was gained, zero otherwise.
func GrantExperience(ctx context.Context, exec database.Executor, userID int64, gain int) (int, error) {
	var level, exp int
	err := exec.QueryRowContext(ctx,
		`SELECT level, experience FROM characters WHERE user_id = $1 FOR UPDATE`, userID).Scan(&level, &exp)
	if err != nil {
		return 0, fmt.Errorf("failed to read experience: %w", err)
	}

	newLevel, newExp, points := ApplyExperience(level, exp, gain)
	_, err = exec.ExecContext(ctx, `
		UPDATE characters SET level = $1, experience = $2, skill_points = skill_points + $3
		WHERE user_id = $4`, newLevel, newExp, points, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to update experience: %w", err)
	}
	if points > 0 {
		return newLevel, nil
	}
	return 0, nil
}

// IncrementSkill raises a base skill by one.
func IncrementSkill(ctx context.Context, exec database.Executor, userID int64, skill string) error {
	column, ok := map[string]string{
		"engineering": "engineering",
		"navigation":  "navigation",
		"combat":      "combat",
		"medical":     "medical",
	}[skill]
	if !ok {
		return fmt.Errorf("unknown skill %q", skill)
	}
	if _, err := exec.ExecContext(ctx,
		`UPDATE characters SET `+column+` = `+column+` + 1 WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("failed to increment skill: %w", err)
	}
	return nil
}

// Kill marks characters dead and removes them from the map.
func Kill(ctx context.Context, exec database.Executor, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	_, err := exec.ExecContext(ctx, `
		UPDATE characters SET hp = 0, location_status = 'dead', current_location = NULL
		WHERE user_id = ANY($1)`, pq.Array(userIDs))
	if err != nil {
		return fmt.Errorf("failed to kill characters: %w", err)
	}
	return nil
}

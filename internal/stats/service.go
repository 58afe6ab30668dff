// Package stats composes a character's effective stats from base values,
// equipped items and timed consumable modifiers, and arbitrates equipment
// slots.
package stats

import (
	"context"
	"log/slog"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/content"
	"corridor-server/internal/shared/errors"
)

var (
	ErrSlotOccupied    = errors.Conflictf("that slot is already occupied")
	ErrAlreadyEquipped = errors.Precondition(errors.ReasonAlreadyActive, "that item is already equipped")
)

type Store interface {
	GetCharacter(ctx context.Context, userID int64) (*character.Character, error)
	GetInventoryItem(ctx context.Context, userID, itemID int64) (*character.InventoryItem, error)
	Modifiers(ctx context.Context, userID int64, now time.Time) ([]Modifier, error)
	Equipment(ctx context.Context, userID int64) ([]EquippedItem, error)
	Equip(ctx context.Context, userID int64, item character.InventoryItem, slot string, mods []Modifier) error
	Unequip(ctx context.Context, userID int64, slot string) (*EquippedItem, error)
	AddModifiers(ctx context.Context, mods []Modifier) error
}

type Service struct {
	store   Store
	catalog *content.Catalog
	now     func() time.Time
	logger  *slog.Logger
}

func NewService(store Store, catalog *content.Catalog, logger *slog.Logger) *Service {
	return &Service{store: store, catalog: catalog, now: time.Now, logger: logger}
}

// Contribution is the total a source adds to each stat.
type Contribution struct {
	Source   SourceType `json:"source"`
	ItemName string     `json:"item_name"`
	Stats    Stats      `json:"stats"`
	Expires  *time.Time `json:"expires_at,omitempty"`
}

type Sheet struct {
	UserID        int64          `json:"user_id"`
	Base          Stats          `json:"base"`
	Effective     Stats          `json:"effective"`
	Equipment     []EquippedItem `json:"equipment"`
	Contributions []Contribution `json:"contributions"`
}

// Sheet reads a character's stats. Reading purges expired modifiers.
func (s *Service) Sheet(ctx context.Context, userID int64) (*Sheet, error) {
	c, err := s.store.GetCharacter(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load character", err)
	}
	if c == nil {
		return nil, errors.NotFoundf("user %d has no character", userID)
	}

	mods, err := s.store.Modifiers(ctx, userID, s.now().UTC())
	if err != nil {
		return nil, errors.WrapInternal("failed to load modifiers", err)
	}
	equipment, err := s.store.Equipment(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load equipment", err)
	}

	base := Base(*c)
	return &Sheet{
		UserID:        userID,
		Base:          base,
		Effective:     Effective(base, mods),
		Equipment:     equipment,
		Contributions: summarize(mods),
	}, nil
}

// Effective returns only the effective stats of a character.
func (s *Service) Effective(ctx context.Context, userID int64) (Stats, error) {
	sheet, err := s.Sheet(ctx, userID)
	if err != nil {
		return nil, err
	}
	return sheet.Effective, nil
}

func summarize(mods []Modifier) []Contribution {
	type key struct {
		source SourceType
		name   string
	}
	var order []key
	byKey := map[key]*Contribution{}
	for _, m := range mods {
		k := key{m.SourceType, m.SourceItemName}
		c, ok := byKey[k]
		if !ok {
			c = &Contribution{Source: m.SourceType, ItemName: m.SourceItemName, Stats: Stats{}, Expires: m.ExpiresAt}
			byKey[k] = c
			order = append(order, k)
		}
		c.Stats[m.StatName] += m.Value
	}
	out := make([]Contribution, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	return out
}

// slotFor resolves where an item goes: the catalog definition first, then
// the item's own metadata for custom items.
func (s *Service) slotFor(item character.InventoryItem) (string, map[string]int) {
	if s.catalog != nil {
		if def, ok := s.catalog.Item(item.ItemName); ok && def.EquipmentSlot != "" {
			return def.EquipmentSlot, def.StatModifiers
		}
	}
	return item.Metadata.EquipmentSlot, item.Metadata.StatModifiers
}

func (s *Service) Equip(ctx context.Context, userID, itemID int64) (*EquippedItem, error) {
	logger := s.logger.With("component", "stats_service", "operation", "equip", "user_id", userID, "item_id", itemID)

	item, err := s.store.GetInventoryItem(ctx, userID, itemID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load item", err)
	}
	if item == nil {
		return nil, errors.NotFoundf("item %d not found", itemID)
	}

	slot, mods := s.slotFor(*item)
	if slot == "" || !ValidSlot(slot) {
		return nil, errors.Validationf("%s cannot be equipped", item.ItemName)
	}

	id := item.ID
	rows := ModifiersFor(userID, item.ItemName, &id, SourceEquipment, mods, 0, s.now().UTC())
	if err := s.store.Equip(ctx, userID, *item, slot, rows); err != nil {
		return nil, err
	}

	logger.Info("Item equipped", "slot", slot)
	return &EquippedItem{Slot: slot, ItemID: item.ID, ItemName: item.ItemName, Metadata: item.Metadata}, nil
}

func (s *Service) Unequip(ctx context.Context, userID int64, slot string) (*EquippedItem, error) {
	if !ValidSlot(slot) {
		return nil, errors.Validationf("unknown slot %q", slot)
	}
	item, err := s.store.Unequip(ctx, userID, slot)
	if err != nil {
		return nil, errors.WrapInternal("failed to unequip", err)
	}
	if item == nil {
		return nil, errors.Precondition(errors.ReasonNoActive, "nothing is equipped there")
	}
	s.logger.Info("Item unequipped", "component", "stats_service", "user_id", userID, "slot", slot, "item_id", item.ItemID)
	return item, nil
}

// ApplyConsumable grants the timed modifiers of a consumed item.
func (s *Service) ApplyConsumable(ctx context.Context, userID int64, itemName string, meta content.ItemMetadata) ([]Modifier, error) {
	rows := ConsumableModifiers(userID, itemName, meta, s.now().UTC())
	if err := s.store.AddModifiers(ctx, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// ConsumableModifiers builds the modifier rows for one use of an item.
func ConsumableModifiers(userID int64, itemName string, meta content.ItemMetadata, now time.Time) []Modifier {
	duration := time.Duration(meta.ModifierDuration) * time.Second
	return ModifiersFor(userID, itemName, nil, SourceConsumable, meta.StatModifiers, duration, now)
}

// Mitigate reduces incoming damage by the character's effective defense.
func (s *Service) Mitigate(ctx context.Context, userID int64, damage int) (int, error) {
	eff, err := s.Effective(ctx, userID)
	if err != nil {
		return damage, err
	}
	_, final := ReduceDamage(damage, eff[Defense])
	return final, nil
}

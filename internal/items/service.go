// Package items applies inventory items and runs the shop sell path.
package items

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"corridor-server/internal/beacon"
	"corridor-server/internal/character"
	"corridor-server/internal/content"
	"corridor-server/internal/gametime"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/stats"
	"corridor-server/internal/world"
)

var (
	ErrCharacterDead = errors.Precondition(errors.ReasonPermissionDenied, "your character is dead")
	ErrNoShip        = errors.Precondition(errors.ReasonNoActive, "you have no active ship")
	ErrNoShop        = errors.Precondition(errors.ReasonWrongLocation, "nobody here buys items")
	ErrNotDocked     = errors.Precondition(errors.ReasonWrongLocation, "you must be docked at a location to sell")
	ErrNoEffects     = errors.Validation("this item has no stat effects")
	ErrBadQuantity   = errors.Validation("quantity must be greater than 0")
)

type Store interface {
	GetCharacter(ctx context.Context, userID int64) (*character.Character, error)
	GetInventoryItem(ctx context.Context, userID, itemID int64) (*character.InventoryItem, error)
	FindItem(ctx context.Context, userID int64, name string) (*character.InventoryItem, error)
	GetLocation(ctx context.Context, locationID int64) (*world.Location, error)
	Restore(ctx context.Context, item character.InventoryItem, gauge Gauge, amount int) (int, bool, error)
	ApplyModifiers(ctx context.Context, item character.InventoryItem, mods []stats.Modifier) error
	Sell(ctx context.Context, item character.InventoryItem, locationID int64, quantity, unitPrice, shopPrice int, now time.Time) (int, bool, error)
}

// Beacons deploys the beacon family of items.
type Beacons interface {
	Deploy(ctx context.Context, userID int64, item character.InventoryItem, message string) (*beacon.Beacon, error)
	InjectNews(ctx context.Context, userID int64, item character.InventoryItem, headline, body string) (int, error)
}

type Service struct {
	store   Store
	beacons Beacons
	catalog *content.Catalog
	clock   *gametime.Clock
	logger  *slog.Logger
}

func NewService(store Store, beacons Beacons, catalog *content.Catalog, clock *gametime.Clock, logger *slog.Logger) *Service {
	return &Service{
		store:   store,
		beacons: beacons,
		catalog: catalog,
		clock:   clock,
		logger:  logger,
	}
}

type restoreUse struct {
	gauge Gauge
	full  string
	unit  string
}

var restoring = map[string]restoreUse{
	content.UsageHealHP:      {gauge: GaugeHP, full: "you are already at full health", unit: "HP"},
	content.UsageRestoreFuel: {gauge: GaugeFuel, full: "your fuel tank is already full", unit: "fuel"},
	content.UsageRepairHull:  {gauge: GaugeHull, full: "your hull is already at maximum integrity", unit: "hull integrity"},
}

// Use applies one use of an inventory item.
func (s *Service) Use(ctx context.Context, userID int64, req UseRequest) (*UseResult, error) {
	logger := s.logger.With("component", "items_service", "operation", "use", "user_id", userID, "item_id", req.ItemID)

	item, err := s.store.GetInventoryItem(ctx, userID, req.ItemID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load item", err)
	}
	if item == nil {
		return nil, errors.NotFoundf("item %d not found in your inventory", req.ItemID)
	}
	c, err := s.store.GetCharacter(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load character", err)
	}
	if c == nil {
		return nil, errors.NotFoundf("user %d has no character", userID)
	}
	if c.IsDead() {
		return nil, ErrCharacterDead
	}

	usage := item.Metadata.UsageType
	result := &UseResult{ItemName: item.ItemName, UsageType: usage}

	switch {
	case restoring[usage].gauge != "":
		r := restoring[usage]
		restored, found, err := s.store.Restore(ctx, *item, r.gauge, item.Metadata.EffectValue)
		if err != nil {
			return nil, errors.WrapInternal("failed to use item", err)
		}
		if !found {
			return nil, ErrNoShip
		}
		if restored == 0 {
			return nil, errors.Precondition(errors.ReasonAlreadyActive, r.full)
		}
		result.Restored = restored
		result.Effect = fmt.Sprintf("Restored %d %s", restored, r.unit)

	case usage == content.UsageStatModifier:
		meta := s.modifierSource(*item)
		mods := stats.ConsumableModifiers(userID, item.ItemName, meta, s.clock.Now())
		if len(mods) == 0 {
			return nil, ErrNoEffects
		}
		if err := s.store.ApplyModifiers(ctx, *item, mods); err != nil {
			return nil, errors.WrapInternal("failed to use item", err)
		}
		result.Modifiers = mods
		result.Effect = describeModifiers(meta)

	case usage == content.UsageEmergencyBeacon || usage == content.UsageRadioBeacon:
		b, err := s.beacons.Deploy(ctx, userID, *item, req.Message)
		if err != nil {
			return nil, err
		}
		result.Beacon = b
		result.Effect = fmt.Sprintf("Beacon transmitting %d times, every %s", b.MaxTransmissions, b.Interval())

	case usage == content.UsageNewsBeacon:
		guilds, err := s.beacons.InjectNews(ctx, userID, *item, req.Headline, req.Message)
		if err != nil {
			return nil, err
		}
		result.Guilds = guilds
		result.Effect = fmt.Sprintf("Data injection queued for %d news feeds", guilds)

	default:
		return nil, errors.Validationf("%s cannot be used", item.ItemName)
	}

	logger.Info("Item used", "item_name", item.ItemName, "usage_type", usage)
	return result, nil
}

// modifierSource prefers the catalog's stat effects over what the inventory
// row carries, so rebalanced items apply their current values.
func (s *Service) modifierSource(item character.InventoryItem) content.ItemMetadata {
	meta := item.Metadata
	if s.catalog == nil {
		return meta
	}
	if def, ok := s.catalog.Item(item.ItemName); ok && len(def.StatModifiers) > 0 {
		meta.StatModifiers = def.StatModifiers
		meta.ModifierDuration = def.ModifierDuration
	}
	return meta
}

func describeModifiers(meta content.ItemMetadata) string {
	names := make([]string, 0, len(meta.StatModifiers))
	for stat := range meta.StatModifiers {
		names = append(names, stat)
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, stat := range names {
		parts = append(parts, fmt.Sprintf("%s %+d", stat, meta.StatModifiers[stat]))
	}
	out := strings.Join(parts, ", ")
	if meta.ModifierDuration > 0 {
		out += " for " + (time.Duration(meta.ModifierDuration) * time.Second).String()
	}
	return out
}

// Sell sells quantity units of the named item to the shop where the
// character is docked.
func (s *Service) Sell(ctx context.Context, userID int64, req SellRequest) (*Sale, error) {
	logger := s.logger.With("component", "items_service", "operation", "sell", "user_id", userID)

	name := strings.TrimSpace(req.ItemName)
	if name == "" {
		return nil, errors.Validation("item_name is required")
	}
	if req.Quantity <= 0 {
		return nil, ErrBadQuantity
	}

	c, err := s.store.GetCharacter(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load character", err)
	}
	if c == nil {
		return nil, errors.NotFoundf("user %d has no character", userID)
	}
	if c.IsDead() {
		return nil, ErrCharacterDead
	}
	if c.CurrentLocation == nil || c.LocationStatus != character.StatusDocked {
		return nil, ErrNotDocked
	}

	loc, err := s.store.GetLocation(ctx, *c.CurrentLocation)
	if err != nil {
		return nil, errors.WrapInternal("failed to load location", err)
	}
	if loc == nil || !loc.HasShops {
		return nil, ErrNoShop
	}

	item, err := s.store.FindItem(ctx, userID, name)
	if err != nil {
		return nil, errors.WrapInternal("failed to load item", err)
	}
	if item == nil {
		return nil, errors.NotFoundf("you have no %s", name)
	}
	insufficient := errors.Preconditionf(errors.ReasonInsufficientResources,
		"you only have %d %s", item.Quantity, item.ItemName)
	if item.Quantity < req.Quantity {
		return nil, insufficient
	}

	unit := SellPrice(item.Value, loc.WealthLevel)
	ask, ok, err := s.store.Sell(ctx, *item, loc.ID, req.Quantity, unit, Markup(unit), s.clock.Now())
	if err != nil {
		return nil, errors.WrapInternal("failed to sell item", err)
	}
	if !ok {
		return nil, insufficient
	}

	sale := &Sale{
		ItemName:   item.ItemName,
		Quantity:   req.Quantity,
		UnitPrice:  unit,
		Total:      int64(unit) * int64(req.Quantity),
		LocationID: loc.ID,
		ShopPrice:  ask,
	}
	logger.Info("Item sold", "item_name", sale.ItemName, "quantity", sale.Quantity,
		"unit_price", sale.UnitPrice, "location_id", sale.LocationID)
	return sale, nil
}

package character

import (
	"context"
	"log/slog"
	"strings"

	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/random"
)

type Store interface {
	GetCharacter(ctx context.Context, userID int64) (*Character, error)
	GetActiveShip(ctx context.Context, userID int64) (*Ship, error)
	ListInventory(ctx context.Context, userID int64) ([]InventoryItem, error)
	Create(ctx context.Context, c Character, ship Ship) (*Character, error)
}

type Service struct {
	store  Store
	rng    random.Source
	logger *slog.Logger
}

func NewService(store Store, rng random.Source, logger *slog.Logger) *Service {
	return &Service{store: store, rng: rng, logger: logger}
}

// Get loads a living or dead character, failing with not found when the
// user has none.
func (s *Service) Get(ctx context.Context, userID int64) (*Character, error) {
	c, err := s.store.GetCharacter(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load character", err)
	}
	if c == nil {
		return nil, errors.NotFoundf("user %d has no character", userID)
	}
	return c, nil
}

type Profile struct {
	Character *Character      `json:"character"`
	Ship      *Ship           `json:"ship,omitempty"`
	Inventory []InventoryItem `json:"inventory"`
}

func (s *Service) Profile(ctx context.Context, userID int64) (*Profile, error) {
	c, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	ship, err := s.store.GetActiveShip(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load ship", err)
	}
	items, err := s.store.ListInventory(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load inventory", err)
	}
	if items == nil {
		items = []InventoryItem{}
	}
	return &Profile{Character: c, Ship: ship, Inventory: items}, nil
}

type CreateRequest struct {
	Name            string `json:"name"`
	GuildID         int64  `json:"guild_id"`
	StartLocationID int64  `json:"start_location_id"`
}

// Create registers a new character docked at the start location with a
// starter ship.
func (s *Service) Create(ctx context.Context, userID int64, req CreateRequest) (*Character, error) {
	logger := s.logger.With("component", "character_service", "operation", "create", "user_id", userID)

	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > 100 {
		return nil, errors.Validation("character name must be 1-100 characters")
	}
	if req.StartLocationID == 0 {
		return nil, errors.Validation("start_location_id is required")
	}

	existing, err := s.store.GetCharacter(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to check existing character", err)
	}
	if existing != nil {
		return nil, errors.Precondition(errors.ReasonAlreadyActive, "you already have a character")
	}

	start := req.StartLocationID
	c := Character{
		UserID:          userID,
		GuildID:         req.GuildID,
		Name:            name,
		Callsign:        GenerateCallsign(s.rng),
		HP:              100,
		MaxHP:           100,
		Money:           500,
		Engineering:     5,
		Navigation:      5,
		Combat:          5,
		Medical:         5,
		CurrentLocation: &start,
		LocationStatus:  StatusDocked,
	}
	ship := Ship{
		ShipType:       "Shuttle",
		Name:           name + "'s Shuttle",
		CurrentFuel:    100,
		FuelCapacity:   100,
		HullIntegrity:  100,
		MaxHull:        100,
		FuelEfficiency: 10,
	}

	created, err := s.store.Create(ctx, c, ship)
	if err != nil {
		return nil, errors.WrapInternal("failed to create character", err)
	}

	logger.Info("Character registered", "callsign", created.Callsign)
	return created, nil
}

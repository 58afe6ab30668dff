package world

import (
	"context"
	"fmt"
	"log/slog"

	"corridor-server/internal/shared/errors"
)

// Store is the persistence the world service needs.
type Store interface {
	GetLocation(ctx context.Context, locationID int64) (*Location, error)
	ListLocations(ctx context.Context) ([]Location, error)
	GetCorridor(ctx context.Context, corridorID int64) (*Corridor, error)
	ActiveCorridors(ctx context.Context) ([]Corridor, error)
}

type Service struct {
	store  Store
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, logger: logger}
}

func (s *Service) Location(ctx context.Context, locationID int64) (*Location, error) {
	loc, err := s.store.GetLocation(ctx, locationID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load location", err)
	}
	if loc == nil {
		return nil, errors.NotFoundf("location %d not found", locationID)
	}
	return loc, nil
}

// Graph loads the active corridor network.
func (s *Service) Graph(ctx context.Context) (*Graph, error) {
	corridors, err := s.store.ActiveCorridors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load corridor network: %w", err)
	}
	return NewGraph(corridors), nil
}

// PlanRoute returns the shortest route between two locations.
func (s *Service) PlanRoute(ctx context.Context, from, to int64) (*Route, error) {
	logger := s.logger.With("component", "world_service", "operation", "plan_route", "from", from, "to", to)

	for _, id := range []int64{from, to} {
		if _, err := s.Location(ctx, id); err != nil {
			return nil, err
		}
	}

	graph, err := s.Graph(ctx)
	if err != nil {
		return nil, errors.WrapInternal("failed to plan route", err)
	}

	route, ok := graph.ShortestRoute(from, to)
	if !ok {
		logger.Debug("No route between locations")
		return nil, errors.NotFoundf("no route from %d to %d", from, to)
	}

	logger.Debug("Route planned", "hops", route.Hops(), "total_time", route.TotalTime)
	return &route, nil
}

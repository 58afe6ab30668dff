// Package radio models how transmissions spread across the galaxy: direct
// reception within range, listeners inside corridors, repeater relays and
// background interference.
package radio

import (
	"context"
	"log/slog"

	"corridor-server/internal/shared/errors"
)

type Store interface {
	OriginAt(ctx context.Context, locationID int64) (*Origin, error)
	Snapshot(ctx context.Context) (*Snapshot, error)
}

type Service struct {
	store      Store
	propagator *Propagator
	logger     *slog.Logger
}

func NewService(store Store, propagator *Propagator, logger *slog.Logger) *Service {
	return &Service{store: store, propagator: propagator, logger: logger}
}

// OriginAt resolves a location into a transmission origin.
func (s *Service) OriginAt(ctx context.Context, locationID int64) (*Origin, error) {
	origin, err := s.store.OriginAt(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if origin == nil {
		return nil, errors.NotFoundf("location %d not found", locationID)
	}
	return origin, nil
}

// CalculateRecipients returns every listener that hears message sent from
// origin, with their signal strength and the text as they received it.
func (s *Service) CalculateRecipients(ctx context.Context, origin Origin, message string) ([]Recipient, error) {
	snap, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	recipients := s.propagator.Propagate(origin, message, *snap)
	s.logger.Debug("Radio propagation computed",
		"component", "radio_service",
		"origin", origin.Name,
		"listeners", len(snap.Listeners)+len(snap.Transit),
		"recipients", len(recipients))
	return recipients, nil
}

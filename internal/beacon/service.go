// Package beacon deploys player beacons and broadcasts their messages over
// the radio network on a fixed schedule.
package beacon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/gametime"
	"corridor-server/internal/news"
	"corridor-server/internal/notify"
	"corridor-server/internal/radio"
	"corridor-server/internal/shared/errors"
)

var (
	ErrNotBeacon     = errors.Validation("this item is not a beacon")
	ErrNoLocation    = errors.Precondition(errors.ReasonWrongLocation, "beacons can only be deployed at a location")
	ErrEmptyMessage  = errors.Validation("a beacon needs a message")
	ErrLongMessage   = errors.Validationf("beacon messages are limited to %d characters", MaxMessageLength)
	ErrNoHeadline    = errors.Validation("a news injection needs a headline")
	ErrItemNotOwned  = errors.NotFoundf("item not found in your inventory")
	ErrCharacterDead = errors.Precondition(errors.ReasonPermissionDenied, "your character is dead")
)

type Store interface {
	GetCharacter(ctx context.Context, userID int64) (*character.Character, error)
	Deploy(ctx context.Context, item character.InventoryItem, b Beacon) (*Beacon, error)
	Consume(ctx context.Context, item character.InventoryItem) error
	Due(ctx context.Context, now time.Time) ([]Beacon, error)
	Advance(ctx context.Context, beaconID int64, sent int, next time.Time) (bool, error)
	ActiveFor(ctx context.Context, userID int64) ([]Beacon, error)
}

type Radio interface {
	OriginAt(ctx context.Context, locationID int64) (*radio.Origin, error)
	CalculateRecipients(ctx context.Context, origin radio.Origin, message string) ([]radio.Recipient, error)
}

type Newsroom interface {
	QueueAll(ctx context.Context, req news.Request) (int, error)
}

type Options struct {
	FirstDelay time.Duration
	Emergency  Schedule
	Radio      Schedule
}

type Service struct {
	store    Store
	radio    Radio
	news     Newsroom
	notifier notify.Notifier
	clock    *gametime.Clock
	opts     Options
	logger   *slog.Logger
}

func NewService(store Store, r Radio, newsroom Newsroom, notifier notify.Notifier, clock *gametime.Clock,
	opts Options, logger *slog.Logger) *Service {
	if opts.FirstDelay <= 0 {
		opts.FirstDelay = 30 * time.Second
	}
	if opts.Emergency.Transmissions <= 0 {
		opts.Emergency = Schedule{Transmissions: 3, Spacing: 30 * time.Minute}
	}
	if opts.Radio.Transmissions <= 0 {
		opts.Radio = Schedule{Transmissions: 6, Spacing: time.Hour}
	}
	return &Service{
		store:    store,
		radio:    r,
		news:     newsroom,
		notifier: notifier,
		clock:    clock,
		opts:     opts,
		logger:   logger,
	}
}

func (s *Service) schedule(t Type) (Schedule, bool) {
	switch t {
	case TypeEmergency:
		return s.opts.Emergency, true
	case TypeRadio:
		return s.opts.Radio, true
	}
	return Schedule{}, false
}

// Deploy turns an emergency or radio beacon item into a transmitting
// beacon at the owner's location.
func (s *Service) Deploy(ctx context.Context, userID int64, item character.InventoryItem, message string) (*Beacon, error) {
	logger := s.logger.With("component", "beacon_service", "operation", "deploy", "user_id", userID)

	kind := Type(item.Metadata.UsageType)
	sched, ok := s.schedule(kind)
	if !ok {
		return nil, ErrNotBeacon
	}
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if len([]rune(message)) > MaxMessageLength {
		return nil, ErrLongMessage
	}

	c, err := s.deployer(ctx, userID, item)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	b, err := s.store.Deploy(ctx, item, Beacon{
		Type:             kind,
		UserID:           userID,
		LocationID:       c.CurrentLocation,
		Message:          message,
		MaxTransmissions: sched.Transmissions,
		IntervalSeconds:  int(sched.Spacing / time.Second),
		NextTransmission: now.Add(s.opts.FirstDelay),
		CreatedAt:        now,
	})
	if err != nil {
		return nil, errors.WrapInternal("failed to deploy beacon", err)
	}

	logger.Info("Beacon deployed", "beacon_id", b.ID, "beacon_type", kind, "location_id", *c.CurrentLocation)
	return b, nil
}

// InjectNews spends a news beacon and pushes the content into every guild's
// news feed, attributed to the owner's location.
func (s *Service) InjectNews(ctx context.Context, userID int64, item character.InventoryItem, headline, body string) (int, error) {
	logger := s.logger.With("component", "beacon_service", "operation", "inject_news", "user_id", userID)

	if Type(item.Metadata.UsageType) != TypeNews {
		return 0, ErrNotBeacon
	}
	headline, body = strings.TrimSpace(headline), strings.TrimSpace(body)
	if headline == "" {
		return 0, ErrNoHeadline
	}
	if body == "" {
		return 0, ErrEmptyMessage
	}
	if len([]rune(body)) > MaxMessageLength {
		return 0, ErrLongMessage
	}

	c, err := s.deployer(ctx, userID, item)
	if err != nil {
		return 0, err
	}
	origin, err := s.radio.OriginAt(ctx, *c.CurrentLocation)
	if err != nil {
		return 0, err
	}

	if err := s.store.Consume(ctx, item); err != nil {
		return 0, errors.WrapInternal("failed to use news beacon", err)
	}

	var b strings.Builder
	b.WriteString("[UNAUTHORIZED DATA INJECTION DETECTED]\n\n")
	fmt.Fprintf(&b, "Source analysis: signal intercepted from %s (%s System)\n", origin.Name, origin.SystemName)
	fmt.Fprintf(&b, "Injection vector: %s [%s]\n", c.Name, c.Callsign)
	b.WriteString("Security classification: unverified citizen data\n\n")
	fmt.Fprintf(&b, "Injected content:\n%s\n\n", body)
	b.WriteString("This content bypassed official news verification protocols.")

	queued, err := s.news.QueueAll(ctx, news.Request{
		Category:         news.CategoryDataInjection,
		Title:            "DATA-STREAM INJECTION: " + headline,
		Body:             b.String(),
		OriginLocationID: c.CurrentLocation,
	})
	if err != nil {
		return 0, errors.WrapInternal("failed to queue news injection", err)
	}

	logger.Info("News injected", "guilds", queued)
	return queued, nil
}

func (s *Service) deployer(ctx context.Context, userID int64, item character.InventoryItem) (*character.Character, error) {
	if item.OwnerID != userID || item.Quantity <= 0 {
		return nil, ErrItemNotOwned
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
	if c.CurrentLocation == nil {
		return nil, ErrNoLocation
	}
	return c, nil
}

func (s *Service) Active(ctx context.Context, userID int64) ([]Beacon, error) {
	beacons, err := s.store.ActiveFor(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to list beacons", err)
	}
	return beacons, nil
}

// Tick transmits every due beacon once. It is the body of the beacon loop.
func (s *Service) Tick(ctx context.Context) (TickResult, error) {
	logger := s.logger.With("component", "beacon_service", "operation", "tick")

	var result TickResult
	now := s.clock.Now()
	due, err := s.store.Due(ctx, now)
	if err != nil {
		return result, err
	}

	for _, b := range due {
		deliveries, err := s.transmit(ctx, b)
		if err != nil {
			logger.Error("Beacon transmission failed", "beacon_id", b.ID, "error", err)
			continue
		}
		advanced, err := s.store.Advance(ctx, b.ID, b.TransmissionsSent, now.Add(b.Interval()))
		if err != nil {
			logger.Error("Failed to advance beacon", "beacon_id", b.ID, "error", err)
			continue
		}
		if !advanced {
			continue
		}
		result.Transmitted++
		result.Deliveries += deliveries
		if b.Last() {
			result.Finished++
		}
	}

	if result.Transmitted > 0 {
		logger.Info("Beacons transmitted", "transmitted", result.Transmitted,
			"deliveries", result.Deliveries, "finished", result.Finished)
	}
	return result, nil
}

// transmit sends one transmission to every group of listeners that can
// hear it and returns how many groups it reached.
func (s *Service) transmit(ctx context.Context, b Beacon) (int, error) {
	if b.LocationID == nil {
		return 0, nil
	}
	origin, err := s.radio.OriginAt(ctx, *b.LocationID)
	if err != nil {
		return 0, err
	}
	owner, err := s.store.GetCharacter(ctx, b.UserID)
	if err != nil {
		return 0, err
	}
	deployer := "Unknown"
	if owner != nil {
		deployer = fmt.Sprintf("%s [%s]", owner.Name, owner.Callsign)
	}

	recipients, err := s.radio.CalculateRecipients(ctx, *origin, b.Message)
	if err != nil {
		return 0, err
	}

	keys, groups := radio.GroupByDestination(recipients)
	delivered := 0
	for _, key := range keys {
		rec := radio.Receive(b.Message, origin.Name, groups[key])
		channelID := key.ChannelID
		if channelID == "" {
			if channelID, err = s.notifier.LocationChannel(ctx, key.GuildID, key.LocationID, nil); err != nil {
				s.logger.Warn("Failed to resolve location channel", "component", "beacon_service",
					"guild_id", key.GuildID, "location_id", key.LocationID, "error", err)
				continue
			}
		}
		if err := s.notifier.Send(ctx, channelID, s.payload(b, rec, deployer, origin.SystemName)); err != nil {
			s.logger.Warn("Failed to deliver beacon transmission", "component", "beacon_service",
				"beacon_id", b.ID, "channel_id", channelID, "error", err)
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (s *Service) payload(b Beacon, rec radio.Reception, deployer, system string) notify.Payload {
	title, color, kind := "RADIO BEACON TRANSMISSION", notify.ColorInfo, "radio_beacon"
	if b.Type == TypeEmergency {
		title, color, kind = "EMERGENCY BEACON TRANSMISSION", notify.ColorDanger, "emergency_beacon"
	}

	source := rec.Source
	if source == radio.UnknownLocation {
		deployer = "[UNKNOWN]"
	} else if system != "" {
		source = fmt.Sprintf("%s, %s", rec.Source, system)
	}
	next := "final transmission"
	if !b.Last() {
		next = fmt.Sprintf("next in %s", b.Interval())
	}

	return notify.Payload{
		Kind:  kind,
		Title: title,
		Body:  fmt.Sprintf("%q", rec.Message),
		Color: color,
	}.WithField("Transmission", fmt.Sprintf("%d of %d", b.Number(), b.MaxTransmissions)).
		WithField("Deployed by", deployer).
		WithField("Broadcasting from", source).
		WithField("Signal", fmt.Sprintf("%d%% (%s)", rec.Strength, rec.Quality)).
		WithField("Status", next)
}

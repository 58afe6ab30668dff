// Package news queues bulletins for guild news channels and delivers them
// once their signal delay has elapsed.
package news

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"corridor-server/internal/gametime"
	"corridor-server/internal/notify"
	"corridor-server/internal/shared/random"
)

const (
	deliveryBatch   = 50
	maxSignalDelay  = 48 * time.Hour
	unitsPerHourLag = 50.0
)

type Store interface {
	Insert(ctx context.Context, item Item) error
	NewsGuilds(ctx context.Context) ([]int64, error)
	Due(ctx context.Context, now time.Time, limit int) ([]Due, error)
	MarkDelivered(ctx context.Context, newsID int64) error
	Coordinates(ctx context.Context, locationID int64) (x, y float64, ok bool, err error)
}

type Service struct {
	store    Store
	notifier notify.Notifier
	clock    *gametime.Clock
	rng      random.Source
	logger   *slog.Logger
}

func NewService(store Store, notifier notify.Notifier, clock *gametime.Clock, rng random.Source, logger *slog.Logger) *Service {
	return &Service{store: store, notifier: notifier, clock: clock, rng: rng, logger: logger}
}

// Queue schedules a bulletin for one guild.
func (s *Service) Queue(ctx context.Context, guildID int64, req Request) error {
	delay, err := s.delayFor(ctx, req)
	if err != nil {
		return err
	}
	return s.store.Insert(ctx, s.item(guildID, req, delay))
}

// QueueAll schedules a bulletin for every guild with a news channel. All
// guilds share one signal delay.
func (s *Service) QueueAll(ctx context.Context, req Request) (int, error) {
	guilds, err := s.store.NewsGuilds(ctx)
	if err != nil {
		return 0, err
	}
	delay, err := s.delayFor(ctx, req)
	if err != nil {
		return 0, err
	}

	queued := 0
	for _, guildID := range guilds {
		if err := s.store.Insert(ctx, s.item(guildID, req, delay)); err != nil {
			s.logger.Error("Failed to queue news for guild",
				"component", "news_service", "guild_id", guildID, "error", err)
			continue
		}
		queued++
	}
	return queued, nil
}

func (s *Service) item(guildID int64, req Request, delay time.Duration) Item {
	now := s.clock.Now()
	return Item{
		CreatedAt:         now,
		GuildID:           guildID,
		Category:          req.Category,
		Title:             req.Title,
		Body:              req.Body,
		LocationID:        req.OriginLocationID,
		ScheduledDelivery: now.Add(delay),
	}
}

func (s *Service) delayFor(ctx context.Context, req Request) (time.Duration, error) {
	if req.Delay != nil {
		return *req.Delay, nil
	}
	if req.OriginLocationID == nil {
		return 0, nil
	}
	x, y, ok, err := s.store.Coordinates(ctx, *req.OriginLocationID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return SignalDelay(x, y, s.rng), nil
}

// SignalDelay is one hour per 50 units from the galactic core, varied by
// up to 20% and capped at two days.
func SignalDelay(x, y float64, rng random.Source) time.Duration {
	hours := math.Hypot(x, y) / unitsPerHourLag * random.Uniform(rng, 0.8, 1.2)
	delay := time.Duration(hours * float64(time.Hour))
	return min(delay, maxSignalDelay)
}

// DeliverDue sends every bulletin whose delivery time has passed. It is the
// body of the news delivery task.
func (s *Service) DeliverDue(ctx context.Context) error {
	logger := s.logger.With("component", "news_service", "operation", "deliver_due")

	due, err := s.store.Due(ctx, s.clock.Now(), deliveryBatch)
	if err != nil {
		return err
	}

	for _, d := range due {
		payload := notify.Payload{
			Kind:  "news",
			Title: d.Title,
			Body:  d.Body,
			Color: notify.ColorNews,
			Fields: []notify.Field{
				{Name: "Category", Value: d.Category, Inline: true},
				{Name: "Filed", Value: gametime.FormatInGame(s.clock.ToInGame(d.CreatedAt)), Inline: true},
			},
		}
		if lag := d.ScheduledDelivery.Sub(d.CreatedAt); lag >= time.Minute {
			payload = payload.WithField("Signal Age", formatSignalAge(lag))
		}

		if err := s.notifier.Send(ctx, d.ChannelID, payload); err != nil {
			logger.Warn("Failed to deliver news, will retry", "news_id", d.ID, "guild_id", d.GuildID, "error", err)
			continue
		}
		if err := s.store.MarkDelivered(ctx, d.ID); err != nil {
			logger.Error("Failed to mark news delivered", "news_id", d.ID, "error", err)
			continue
		}
	}

	if len(due) > 0 {
		logger.Debug("News delivered", "count", len(due))
	}
	return nil
}

func formatSignalAge(lag time.Duration) string {
	switch {
	case lag < time.Hour:
		return fmt.Sprintf("%d minutes old", int(lag.Minutes()))
	case lag < 24*time.Hour:
		return fmt.Sprintf("%d hours old, sent via deep-space relay", int(lag.Hours()))
	default:
		return fmt.Sprintf("%d days old, sent via deep-space relay", int(lag.Hours()/24))
	}
}

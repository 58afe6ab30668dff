package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Bus implements Notifier by turning every call into an Event and fanning it
// out to the registered sinks.
type Bus struct {
	sinks  []Sink
	now    func() time.Time
	logger *slog.Logger
}

func NewBus(logger *slog.Logger, sinks ...Sink) *Bus {
	logger.Debug("Initializing notification bus", "sinks", len(sinks))
	return &Bus{sinks: sinks, now: time.Now, logger: logger}
}

func (b *Bus) publish(ctx context.Context, event Event) error {
	event.ID = uuid.NewString()
	event.At = b.now().UTC()

	var errs []error
	for _, sink := range b.sinks {
		if err := sink.Publish(ctx, event); err != nil {
			b.logger.Warn("Notification sink failed",
				"component", "notify_bus",
				"event_type", event.Type,
				"sink", fmt.Sprintf("%T", sink),
				"error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 && len(errs) == len(b.sinks) {
		return fmt.Errorf("failed to publish %s: %w", event.Type, errors.Join(errs...))
	}
	return nil
}

func (b *Bus) CreateTransitChannel(ctx context.Context, userIDs []int64, corridorName, destinationName string) (string, error) {
	channelID := "transit-" + uuid.NewString()
	err := b.publish(ctx, Event{
		Type:      EventChannelCreate,
		ChannelID: channelID,
		UserIDs:   userIDs,
		Name:      fmt.Sprintf("%s to %s", corridorName, destinationName),
	})
	if err != nil {
		return "", err
	}
	return channelID, nil
}

func (b *Bus) CleanupChannel(ctx context.Context, channelID string, delay time.Duration) error {
	return b.publish(ctx, Event{
		Type:         EventChannelCleanup,
		ChannelID:    channelID,
		DelaySeconds: int(delay / time.Second),
	})
}

func (b *Bus) LocationChannel(ctx context.Context, guildID, locationID int64, memberID *int64) (string, error) {
	channelID := LocationChannelID(guildID, locationID)
	event := Event{
		Type:       EventLocationChannel,
		ChannelID:  channelID,
		GuildID:    guildID,
		LocationID: locationID,
	}
	if memberID != nil {
		event.UserID = *memberID
	}
	if err := b.publish(ctx, event); err != nil {
		return "", err
	}
	return channelID, nil
}

func (b *Bus) GiveLocationAccess(ctx context.Context, userID, locationID int64) error {
	return b.publish(ctx, Event{Type: EventAccessGrant, UserID: userID, LocationID: locationID})
}

func (b *Bus) RemoveLocationAccess(ctx context.Context, userID, locationID int64) error {
	return b.publish(ctx, Event{Type: EventAccessRevoke, UserID: userID, LocationID: locationID})
}

func (b *Bus) Send(ctx context.Context, channelID string, payload Payload) error {
	return b.publish(ctx, Event{Type: EventSend, ChannelID: channelID, Payload: &payload})
}

func (b *Bus) NotifyUser(ctx context.Context, userID int64, payload Payload) error {
	return b.publish(ctx, Event{Type: EventDirect, UserID: userID, Payload: &payload})
}

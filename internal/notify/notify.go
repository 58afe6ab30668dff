// Package notify is the boundary between the simulation and the chat
// adapter. The core emits semantic events; adapters subscribe to them over a
// websocket stream or a redis channel and render them.
package notify

import (
	"context"
	"fmt"
	"time"
)

// Notifier is everything the simulation needs from the chat platform.
type Notifier interface {
	CreateTransitChannel(ctx context.Context, userIDs []int64, corridorName, destinationName string) (string, error)
	CleanupChannel(ctx context.Context, channelID string, delay time.Duration) error
	LocationChannel(ctx context.Context, guildID, locationID int64, memberID *int64) (string, error)
	GiveLocationAccess(ctx context.Context, userID, locationID int64) error
	RemoveLocationAccess(ctx context.Context, userID, locationID int64) error
	Send(ctx context.Context, channelID string, payload Payload) error
	NotifyUser(ctx context.Context, userID int64, payload Payload) error
}

type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// Payload is a structured message. Rendering is left to the adapter.
type Payload struct {
	Kind     string  `json:"kind"`
	Title    string  `json:"title"`
	Body     string  `json:"body,omitempty"`
	Fields   []Field `json:"fields,omitempty"`
	Color    int     `json:"color,omitempty"`
	Mentions []int64 `json:"mentions,omitempty"`
}

func (p Payload) WithField(name, value string) Payload {
	p.Fields = append(append([]Field(nil), p.Fields...), Field{Name: name, Value: value})
	return p
}

type EventType string

const (
	EventChannelCreate   EventType = "channel_create"
	EventChannelCleanup  EventType = "channel_cleanup"
	EventLocationChannel EventType = "location_channel"
	EventAccessGrant     EventType = "location_access_grant"
	EventAccessRevoke    EventType = "location_access_revoke"
	EventSend            EventType = "send"
	EventDirect          EventType = "direct"
)

// Event is the wire envelope published to every sink.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	At           time.Time `json:"at"`
	ChannelID    string    `json:"channel_id,omitempty"`
	GuildID      int64     `json:"guild_id,omitempty"`
	LocationID   int64     `json:"location_id,omitempty"`
	UserID       int64     `json:"user_id,omitempty"`
	UserIDs      []int64   `json:"user_ids,omitempty"`
	Name         string    `json:"name,omitempty"`
	DelaySeconds int       `json:"delay_seconds,omitempty"`
	Payload      *Payload  `json:"payload,omitempty"`
}

// Sink receives published events.
type Sink interface {
	Publish(ctx context.Context, event Event) error
}

// LocationChannelID is the stable channel id of a location in a guild.
func LocationChannelID(guildID, locationID int64) string {
	return fmt.Sprintf("location-%d-%d", guildID, locationID)
}

// Colors used by payloads.
const (
	ColorInfo    = 0x00aaff
	ColorSuccess = 0x00ff00
	ColorWarning = 0xff8800
	ColorDanger  = 0xff0000
	ColorNews    = 0x4169e1
)

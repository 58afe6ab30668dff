// Package notifytest provides an in-memory Notifier for tests.
package notifytest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"corridor-server/internal/notify"
)

type Sent struct {
	ChannelID string
	Payload   notify.Payload
}

type Direct struct {
	UserID  int64
	Payload notify.Payload
}

type Cleanup struct {
	ChannelID string
	Delay     time.Duration
}

// Recorder captures every notification for later assertions.
type Recorder struct {
	mu sync.Mutex

	TransitChannels []string
	Cleanups        []Cleanup
	Sent            []Sent
	Direct          []Direct
	Granted         [][2]int64
	Revoked         [][2]int64

	seq int
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) CreateTransitChannel(_ context.Context, userIDs []int64, corridorName, destinationName string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	id := fmt.Sprintf("transit-%d", r.seq)
	r.TransitChannels = append(r.TransitChannels, id)
	return id, nil
}

func (r *Recorder) CleanupChannel(_ context.Context, channelID string, delay time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Cleanups = append(r.Cleanups, Cleanup{ChannelID: channelID, Delay: delay})
	return nil
}

func (r *Recorder) LocationChannel(_ context.Context, guildID, locationID int64, _ *int64) (string, error) {
	return notify.LocationChannelID(guildID, locationID), nil
}

func (r *Recorder) GiveLocationAccess(_ context.Context, userID, locationID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Granted = append(r.Granted, [2]int64{userID, locationID})
	return nil
}

func (r *Recorder) RemoveLocationAccess(_ context.Context, userID, locationID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Revoked = append(r.Revoked, [2]int64{userID, locationID})
	return nil
}

func (r *Recorder) Send(_ context.Context, channelID string, payload notify.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Sent = append(r.Sent, Sent{ChannelID: channelID, Payload: payload})
	return nil
}

func (r *Recorder) NotifyUser(_ context.Context, userID int64, payload notify.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Direct = append(r.Direct, Direct{UserID: userID, Payload: payload})
	return nil
}

// SentKinds returns the payload kinds of every Send, in order.
func (r *Recorder) SentKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]string, 0, len(r.Sent))
	for _, s := range r.Sent {
		kinds = append(kinds, s.Payload.Kind)
	}
	return kinds
}

// CountKind counts sends and direct notifications with the given kind.
func (r *Recorder) CountKind(kind string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.Sent {
		if s.Payload.Kind == kind {
			n++
		}
	}
	for _, d := range r.Direct {
		if d.Payload.Kind == kind {
			n++
		}
	}
	return n
}

var _ notify.Notifier = (*Recorder)(nil)

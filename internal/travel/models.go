package travel

import (
	"time"

	"corridor-server/internal/world"
)

type Status string

const (
	StatusTraveling Status = "traveling"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Session struct {
	ID          int64     `db:"session_id" json:"session_id"`
	UserID      int64     `db:"user_id" json:"user_id"`
	GroupID     *int64    `db:"group_id" json:"group_id,omitempty"`
	CorridorID  *int64    `db:"corridor_id" json:"corridor_id"`
	Origin      *int64    `db:"origin_location" json:"origin_location"`
	Destination *int64    `db:"destination_location" json:"destination_location"`
	StartTime   time.Time `db:"start_time" json:"start_time"`
	EndTime     time.Time `db:"end_time" json:"end_time"`
	ChannelID   *string   `db:"temp_channel_id" json:"temp_channel_id,omitempty"`
	Status      Status    `db:"status" json:"status"`
}

func (s Session) Channel() string {
	if s.ChannelID == nil {
		return ""
	}
	return *s.ChannelID
}

// Departure is one traveller leaving on a corridor.
type Departure struct {
	UserID  int64
	GuildID int64
	ShipID  int64
	Fuel    int
	GroupID *int64
}

// Arrival is the result of completing a session.
type Arrival struct {
	Session Session
	GuildID int64
	// StillTravelling counts other sessions sharing the transit channel.
	StillTravelling int
}

type Result struct {
	Sessions    []Session      `json:"sessions,omitempty"`
	Corridor    world.Corridor `json:"corridor"`
	ArrivesAt   time.Time      `json:"arrives_at"`
	LeftBehind  []int64        `json:"left_behind,omitempty"`
	VoteSession string         `json:"vote_session,omitempty"`
}

type ExitResult struct {
	Survived     bool   `json:"survived"`
	SurvivalOdds int    `json:"survival_chance"`
	LocationID   *int64 `json:"location_id,omitempty"`
}

// HeldJob is a stationary job a character is working.
type HeldJob struct {
	JobID      int64  `db:"job_id" json:"job_id"`
	Title      string `db:"title" json:"title"`
	Reward     int    `db:"reward_money" json:"reward_money"`
	LocationID int64  `db:"location_id" json:"location_id"`
}

const (
	eventEarliest  = 30 * time.Second
	eventLatest    = 45 * time.Second
	maxCheckpoints = 3
)

// Checkpoints returns the offsets into a trip at which corridor events may
// happen: up to three at 25, 50 and 75 percent, one per five minutes of
// travel, never within the first 30 or the last 45 seconds.
func Checkpoints(c world.Corridor) []time.Duration {
	if c.IsLocalSpace() {
		return nil
	}
	total := c.Duration()
	n := min(maxCheckpoints, max(1, c.TravelTime/300))
	fractions := []float64{0.25, 0.5, 0.75}[:n]

	var out []time.Duration
	for _, f := range fractions {
		at := time.Duration(float64(total) * f)
		if at < eventEarliest || at > total-eventLatest {
			continue
		}
		out = append(out, at)
	}
	return out
}

// SurvivalChance is the percent chance to survive an emergency exit.
func SurvivalChance(danger int) int {
	return max(10, 50-10*danger)
}

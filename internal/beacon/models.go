package beacon

import "time"

type Type string

const (
	TypeEmergency Type = "emergency_beacon"
	TypeRadio     Type = "radio_beacon"
	TypeNews      Type = "news_beacon"
)

// MaxMessageLength bounds what a beacon can carry.
const MaxMessageLength = 500

type Beacon struct {
	ID                int64     `db:"beacon_id" json:"beacon_id"`
	Type              Type      `db:"beacon_type" json:"beacon_type"`
	UserID            int64     `db:"user_id" json:"user_id"`
	LocationID        *int64    `db:"location_id" json:"location_id"`
	Message           string    `db:"message_content" json:"message"`
	TransmissionsSent int       `db:"transmissions_sent" json:"transmissions_sent"`
	MaxTransmissions  int       `db:"max_transmissions" json:"max_transmissions"`
	IntervalSeconds   int       `db:"interval_seconds" json:"interval_seconds"`
	NextTransmission  time.Time `db:"next_transmission" json:"next_transmission"`
	IsActive          bool      `db:"is_active" json:"is_active"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

func (b Beacon) Interval() time.Duration {
	return time.Duration(b.IntervalSeconds) * time.Second
}

// Number is the 1-based label of the transmission about to go out.
func (b Beacon) Number() int {
	return b.TransmissionsSent + 1
}

func (b Beacon) Last() bool {
	return b.Number() >= b.MaxTransmissions
}

// Schedule is how often a beacon type transmits.
type Schedule struct {
	Transmissions int
	Spacing       time.Duration
}

type TickResult struct {
	Transmitted int `json:"transmitted"`
	Deliveries  int `json:"deliveries"`
	Finished    int `json:"finished"`
}

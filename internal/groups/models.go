package groups

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type VoteType string

const (
	VoteJob    VoteType = "job"
	VoteTravel VoteType = "travel"
)

type Group struct {
	ID        int64     `db:"group_id" json:"group_id"`
	Name      string    `db:"name" json:"name"`
	LeaderID  int64     `db:"leader_id" json:"leader_id"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Session struct {
	ID        uuid.UUID `db:"session_id" json:"session_id"`
	GroupID   int64     `db:"group_id" json:"group_id"`
	VoteType  VoteType  `db:"vote_type" json:"vote_type"`
	Data      Payload   `db:"vote_data" json:"vote_data"`
	ChannelID *string   `db:"channel_id" json:"channel_id,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
}

// Decode unmarshals the session payload into v.
func (s Session) Decode(v any) error {
	return json.Unmarshal(s.Data, v)
}

// Payload is the JSON document attached to a vote session.
type Payload json.RawMessage

func (p Payload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

func (p Payload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return "{}", nil
	}
	return string(p), nil
}

func (p *Payload) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append(Payload(nil), v...)
	case string:
		*p = Payload(v)
	default:
		return fmt.Errorf("unsupported vote payload type %T", src)
	}
	return nil
}

type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
)

type Tally struct {
	Yes     int `db:"yes" json:"yes"`
	No      int `db:"no" json:"no"`
	Members int `db:"members" json:"members"`
}

// Outcome is pending until every member has voted. A strict majority of yes
// votes passes.
func (t Tally) Outcome() Outcome {
	if t.Yes+t.No < t.Members {
		return OutcomePending
	}
	if t.Yes > t.No {
		return OutcomePassed
	}
	return OutcomeFailed
}

type VoteResult struct {
	Session Session `json:"session"`
	Tally   Tally   `json:"tally"`
	Outcome Outcome `json:"outcome"`
}

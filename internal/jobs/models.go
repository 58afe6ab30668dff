package jobs

import (
	"strings"
	"time"
)

type Kind string

const (
	KindTransport  Kind = "transport"
	KindStationary Kind = "stationary"
)

type Status string

const (
	StatusAvailable            Status = "available"
	StatusActive               Status = "active"
	StatusAwaitingFinalization Status = "awaiting_finalization"
	StatusCompleted            Status = "completed"
)

type Source string

const SourceBoard Source = "board"

type Job struct {
	ID              int64      `db:"job_id" json:"job_id"`
	Title           string     `db:"title" json:"title"`
	Description     string     `db:"description" json:"description"`
	LocationID      int64      `db:"location_id" json:"location_id"`
	DestinationID   *int64     `db:"destination_location_id" json:"destination_location_id,omitempty"`
	Kind            Kind       `db:"job_kind" json:"job_kind"`
	Source          Source     `db:"source" json:"source"`
	RewardMoney     int        `db:"reward_money" json:"reward_money"`
	RequiredSkill   *string    `db:"required_skill" json:"required_skill,omitempty"`
	MinSkillLevel   int        `db:"min_skill_level" json:"min_skill_level"`
	DangerLevel     int        `db:"danger_level" json:"danger_level"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	KarmaChange     int        `db:"karma_change" json:"karma_change,omitempty"`
	ExpiresAt       time.Time  `db:"expires_at" json:"expires_at"`
	IsTaken         bool       `db:"is_taken" json:"is_taken"`
	TakenBy         *int64     `db:"taken_by" json:"taken_by,omitempty"`
	TakenAt         *time.Time `db:"taken_at" json:"taken_at,omitempty"`
	UnloadAt        *time.Time `db:"unload_at" json:"unload_at,omitempty"`
	Status          Status     `db:"job_status" json:"job_status"`
	CreatedAt       time.Time  `db:"created_at" json:"created_at"`
}

var transportKeywords = []string{"transport", "deliver", "courier", "cargo", "passenger", "escort"}

// Classify decides the kind of a job that was stored without one. Any
// destination makes it a transport job; otherwise the title and description
// are searched for transport keywords.
func Classify(title, description string, destinationID *int64) Kind {
	if destinationID != nil {
		return KindTransport
	}
	text := strings.ToLower(title + " " + description)
	for _, kw := range transportKeywords {
		if strings.Contains(text, kw) {
			return KindTransport
		}
	}
	return KindStationary
}

// IsTransport trusts a destination over the stored kind. Rows without a
// kind fall back to keyword classification.
func (j Job) IsTransport() bool {
	if j.DestinationID != nil || j.Kind == KindTransport {
		return true
	}
	if j.Kind == KindStationary {
		return false
	}
	return Classify(j.Title, j.Description, nil) == KindTransport
}

func (j Job) Skill() string {
	if j.RequiredSkill == nil {
		return ""
	}
	return *j.RequiredSkill
}

// Tracking is the time-at-location record of one assignee on a stationary job.
type Tracking struct {
	ID                int64     `db:"tracking_id" json:"tracking_id"`
	JobID             int64     `db:"job_id" json:"job_id"`
	UserID            int64     `db:"user_id" json:"user_id"`
	StartLocation     int64     `db:"start_location" json:"start_location"`
	RequiredDuration  float64   `db:"required_duration" json:"required_duration"`
	TimeAtLocation    float64   `db:"time_at_location" json:"time_at_location"`
	LastLocationCheck time.Time `db:"last_location_check" json:"last_location_check"`
	ReadyNotified     bool      `db:"ready_notified" json:"ready_notified"`
}

func (t Tracking) Ready() bool {
	return t.TimeAtLocation >= t.RequiredDuration
}

func (t Tracking) Remaining() float64 {
	return max(0, t.RequiredDuration-t.TimeAtLocation)
}

// TrackedRow is a tracking record joined with its job and the assignee's
// current position.
type TrackedRow struct {
	Tracking
	Title           string `db:"title"`
	CurrentLocation *int64 `db:"current_location"`
}

func (r TrackedRow) Present() bool {
	return r.CurrentLocation != nil && *r.CurrentLocation == r.StartLocation
}

// SuccessChance is the percent chance to complete a stationary job.
func SuccessChance(danger, skill, minSkill int) int {
	return min(98, max(15, 75-10*danger+3*(skill-minSkill)))
}

// Payout is what one assignee receives for a finished job.
type Payout struct {
	UserID     int64  `json:"user_id"`
	Money      int    `json:"money"`
	Experience int    `json:"experience"`
	SkillUp    string `json:"skill_up,omitempty"`
	NewLevel   int    `json:"new_level,omitempty"`
}

// Settlement carries everything written when a job is finished.
type Settlement struct {
	JobID        int64
	LocationID   int64
	Payouts      []Payout
	KarmaChange  int
	FactionShare int
}

type Outcome struct {
	JobID         int64      `json:"job_id"`
	Title         string     `json:"title"`
	Kind          Kind       `json:"job_kind"`
	Status        Status     `json:"job_status"`
	Success       bool       `json:"success"`
	Roll          int        `json:"roll,omitempty"`
	SuccessChance int        `json:"success_chance,omitempty"`
	UnloadAt      *time.Time `json:"unload_at,omitempty"`
	Payouts       []Payout   `json:"payouts,omitempty"`
}

type AcceptResult struct {
	Job         *Job    `json:"job,omitempty"`
	Assignees   []int64 `json:"assignees,omitempty"`
	VoteSession string  `json:"vote_session,omitempty"`
}

type TickResult struct {
	Processed int `json:"processed"`
	Credited  int `json:"credited"`
	Ready     int `json:"ready"`
}

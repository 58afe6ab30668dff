package endgame

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// MinMinutes is the shortest accepted delay or length.
const MinMinutes = 5

// DefaultLength applies when a setup request omits the length.
const DefaultLength = "2d0h0m"

var durationPattern = regexp.MustCompile(`^(?:(\d+)d)?(?:(\d+)h)?(?:(\d+)m)?$`)

// ParseDuration reads XdYhZm (any part optional, in that order) or a bare
// number of minutes. It returns -1 for malformed input and for anything
// shorter than MinMinutes.
func ParseDuration(s string) int {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return -1
	}

	var total int
	if n, err := strconv.Atoi(s); err == nil {
		total = n
	} else {
		m := durationPattern.FindStringSubmatch(s)
		if m == nil {
			return -1
		}
		for i, unit := range []int{24 * 60, 60, 1} {
			if m[i+1] == "" {
				continue
			}
			n, err := strconv.Atoi(m[i+1])
			if err != nil {
				return -1
			}
			total += n * unit
		}
	}

	if total < MinMinutes {
		return -1
	}
	return total
}

// FormatMinutes renders minutes as XdYhZm.
func FormatMinutes(minutes int) string {
	return strconv.Itoa(minutes/(24*60)) + "d" +
		strconv.Itoa(minutes%(24*60)/60) + "h" +
		strconv.Itoa(minutes%60) + "m"
}

// Tempo spreads the destruction events over lengthMinutes, one every
// length/events minutes, clamped to [2, 30].
func Tempo(lengthMinutes, events int) time.Duration {
	if events <= 0 {
		return 10 * time.Minute
	}
	minutes := float64(lengthMinutes) / float64(events)
	minutes = max(2, min(30, minutes))
	return time.Duration(minutes * float64(time.Minute))
}

type Config struct {
	StartTime     time.Time `db:"start_time" json:"start_time"`
	LengthMinutes int       `db:"length_minutes" json:"length_minutes"`
	CreatedBy     *int64    `db:"created_by" json:"created_by,omitempty"`
	IsActive      bool      `db:"is_active" json:"is_active"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

func (c Config) EndTime() time.Time {
	return c.StartTime.Add(time.Duration(c.LengthMinutes) * time.Minute)
}

// Occupant is a living character at a location.
type Occupant struct {
	UserID  int64  `db:"user_id"`
	GuildID int64  `db:"guild_id"`
	Name    string `db:"name"`
}

type Phase string

const (
	PhaseCountdown Phase = "countdown"
	PhaseActive    Phase = "active"
	PhaseOvertime  Phase = "overtime"
)

type Status struct {
	Config           Config `json:"config"`
	Phase            Phase  `json:"phase"`
	Duration         string `json:"duration"`
	StartsIn         string `json:"starts_in,omitempty"`
	Remaining        string `json:"remaining,omitempty"`
	LocationsLeft    int    `json:"locations_remaining"`
	CorridorsLeft    int    `json:"corridors_remaining"`
	DirectorRunning  bool   `json:"director_running"`
	DestructionEvery string `json:"destruction_every,omitempty"`
}

type SetupRequest struct {
	StartDelay string `json:"start_delay"`
	Length     string `json:"length"`
	CreatedBy  *int64 `json:"created_by,omitempty"`
}

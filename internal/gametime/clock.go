// Package gametime separates wall-clock time, which drives every scheduler
// deadline, from in-game time, which only appears in narrative output.
package gametime

import (
	"fmt"
	"time"
)

// Clock maps wall-clock instants onto the in-game calendar. In-game time
// advances Scale times faster than wall time, starting at Epoch when the wall
// clock reads Anchor.
type Clock struct {
	Epoch  time.Time
	Anchor time.Time
	Scale  float64
	now    func() time.Time
}

func NewClock(epoch, anchor time.Time, scale float64) *Clock {
	return &Clock{Epoch: epoch, Anchor: anchor, Scale: scale, now: time.Now}
}

// WithNow returns a copy of c that reads the wall clock from now.
func (c *Clock) WithNow(now func() time.Time) *Clock {
	cp := *c
	cp.now = now
	return &cp
}

// Now returns the wall-clock time in UTC.
func (c *Clock) Now() time.Time {
	return c.now().UTC()
}

// ToInGame converts a wall-clock instant to in-game time.
func (c *Clock) ToInGame(wall time.Time) time.Time {
	elapsed := wall.Sub(c.Anchor)
	return c.Epoch.Add(time.Duration(float64(elapsed) * c.Scale))
}

func (c *Clock) NowInGame() time.Time {
	return c.ToInGame(c.Now())
}

// FormatInGame renders an in-game timestamp for narrative output.
func FormatInGame(t time.Time) string {
	return fmt.Sprintf("%s %02d:%02d GST", t.Format("02-01-2006"), t.Hour(), t.Minute())
}

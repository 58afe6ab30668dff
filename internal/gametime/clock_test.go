package gametime

import (
	"testing"
	"time"
)

func TestInGameScaling(t *testing.T) {
	epoch := time.Date(2751, 1, 1, 0, 0, 0, 0, time.UTC)
	anchor := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	wall := anchor.Add(2 * time.Hour)

	c := NewClock(epoch, anchor, 4).WithNow(func() time.Time { return wall })

	got := c.NowInGame()
	want := epoch.Add(8 * time.Hour)
	if !got.Equal(want) {
		t.Fatalf("in-game=%v want=%v", got, want)
	}
}

func TestFormatInGame(t *testing.T) {
	ts := time.Date(2751, 3, 9, 7, 5, 0, 0, time.UTC)
	if got := FormatInGame(ts); got != "09-03-2751 07:05 GST" {
		t.Fatalf("format=%q", got)
	}
}

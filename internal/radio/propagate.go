package radio

import (
	"fmt"
	"math"
	"sort"

	"corridor-server/internal/shared/random"
)

const (
	unitsPerSystem      = 10
	ungatedListenerLoss = 50
	ungatedListenerDrag = 10
)

type Propagator struct {
	rangeSystems int
	noise        Attenuator
	rng          random.Source
}

func NewPropagator(rangeSystems int, noise Attenuator, rng random.Source) *Propagator {
	if noise == nil {
		noise = NoInterference{}
	}
	return &Propagator{rangeSystems: rangeSystems, noise: noise, rng: rng}
}

func systemDistance(x1, y1, x2, y2 float64) int {
	return int(math.Hypot(x1-x2, y1-y2) / unitsPerSystem)
}

type candidate struct {
	Recipient
	x, y float64
}

// Propagate computes who hears a transmission from origin and how well.
// Each user is reported once with their best signal, ordered by user id.
func (p *Propagator) Propagate(origin Origin, message string, snap Snapshot) []Recipient {
	best := map[int64]candidate{}
	offer := func(c candidate) {
		if cur, ok := best[c.UserID]; !ok || c.SignalStrength > cur.SignalStrength {
			best[c.UserID] = c
		}
	}

	for _, l := range snap.Listeners {
		if l.UserID == origin.SenderID {
			continue
		}
		sd := systemDistance(origin.X, origin.Y, l.X, l.Y)
		if sd > p.rangeSystems {
			continue
		}
		offer(p.atLocation(l, sd, max(0, 100-sd*20), origin, message, nil))
	}

	for _, t := range snap.Transit {
		if t.UserID == origin.SenderID {
			continue
		}
		if c, ok := p.inTransit(t, origin, message); ok {
			offer(c)
		}
	}

	if len(snap.Repeaters) > 0 {
		p.relay(origin, message, snap, offer)
	}

	out := make([]Recipient, 0, len(best))
	for _, c := range best {
		loss := p.noise.Loss(c.x, c.y)
		c.SignalStrength = max(0, c.SignalStrength-loss)
		out = append(out, c.Recipient)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (p *Propagator) atLocation(l Listener, distance, strength int, origin Origin, message string, path []string) candidate {
	locationID := l.LocationID
	return candidate{
		Recipient: Recipient{
			UserID:         l.UserID,
			GuildID:        l.GuildID,
			LocationID:     &locationID,
			LocationName:   l.LocationName,
			Distance:       distance,
			SignalStrength: strength,
			Message:        Degrade(message, distance, origin.Ungated, p.rng),
			RelayPath:      path,
		},
		x: l.X,
		y: l.Y,
	}
}

func (p *Propagator) inTransit(t TransitListener, origin Origin, message string) (candidate, bool) {
	ends := []struct {
		name string
		x, y float64
		role string
	}{
		{t.OriginName, t.OriginX, t.OriginY, "Corridor Entry"},
		{t.DestName, t.DestX, t.DestY, "Corridor Exit"},
	}

	var out candidate
	found := false
	for _, end := range ends {
		sd := systemDistance(origin.X, origin.Y, end.x, end.y)
		if sd > p.rangeSystems {
			continue
		}
		strength := max(0, 100-sd*10)
		if t.CorridorType == "ungated" {
			strength = max(0, strength-ungatedListenerLoss)
		}
		if strength <= out.SignalStrength {
			continue
		}

		msg := Degrade(message, sd, origin.Ungated, p.rng)
		if t.CorridorType == "ungated" {
			msg = Degrade(msg, ungatedListenerDrag, true, p.rng)
		}

		corridorID := t.CorridorID
		out = candidate{
			Recipient: Recipient{
				UserID:         t.UserID,
				GuildID:        t.GuildID,
				CorridorID:     &corridorID,
				LocationName:   fmt.Sprintf("In Transit (%s)", t.CorridorName),
				Distance:       sd,
				SignalStrength: strength,
				Message:        msg,
				RelayPath:      []string{fmt.Sprintf("Relay via: %s (%s)", end.name, end.role)},
			},
			x: (t.OriginX + t.DestX) / 2,
			y: (t.OriginY + t.DestY) / 2,
		}
		if t.ChannelID != nil {
			out.ChannelID = *t.ChannelID
		}
		found = true
	}
	return out, found
}

type source struct {
	name      string
	x, y      float64
	travelled int
	reach     int
	repeater  int64
}

// relay walks the repeater network breadth first. Every source, the origin
// included, re-covers listeners at locations with the relay strength
// 100 - 10 per system travelled.
func (p *Propagator) relay(origin Origin, message string, snap Snapshot, offer func(candidate)) {
	queue := []source{{name: "Origin", x: origin.X, y: origin.Y, reach: p.rangeSystems}}
	visited := map[int64]bool{}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, r := range snap.Repeaters {
			if visited[r.ID] {
				continue
			}
			sd := systemDistance(cur.x, cur.y, r.X, r.Y)
			if sd > r.ReceiveRange {
				continue
			}
			visited[r.ID] = true
			queue = append(queue, source{
				name:      "Repeater @ " + r.LocationName,
				x:         r.X,
				y:         r.Y,
				travelled: cur.travelled + sd,
				reach:     r.TransmitRange,
				repeater:  r.ID,
			})
		}

		var path []string
		if cur.repeater != 0 {
			path = []string{cur.name}
		}
		for _, l := range snap.Listeners {
			if l.UserID == origin.SenderID {
				continue
			}
			sd := systemDistance(cur.x, cur.y, l.X, l.Y)
			if sd > cur.reach {
				continue
			}
			total := cur.travelled + sd
			offer(p.atLocation(l, total, max(0, 100-total*10), origin, message, path))
		}
	}
}

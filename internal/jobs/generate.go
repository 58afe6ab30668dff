package jobs

import (
	"fmt"
	"math"
	"time"

	"corridor-server/internal/content"
	"corridor-server/internal/shared/random"
	"corridor-server/internal/world"
)

const maxTransportHops = 4

// Destination is a location reachable from a job board.
type Destination struct {
	Location world.Location
	Hops     int
}

var transportTitles = []struct{ title, description string }{
	{"Urgent Cargo to %[2]s", "Transport time-sensitive cargo from %[1]s to %[2]s. Speed is essential."},
	{"Passenger Transport to %[2]s", "Ferry passengers safely from %[1]s to %[2]s."},
	{"Medical Supply Run to %[2]s", "Deliver critical medical supplies to %[2]s from %[1]s."},
	{"Data Courier to %[2]s", "Securely transport encrypted data from %[1]s to %[2]s."},
	{"Equipment Delivery to %[2]s", "Transport specialized equipment from %[1]s to %[2]s."},
	{"Emergency Relief to %[2]s", "Rush emergency supplies from %[1]s to %[2]s."},
	{"Trade Goods to %[2]s", "Transport valuable trade goods from %[1]s to %[2]s."},
	{"Scientific Samples to %[2]s", "Carefully transport research samples from %[1]s to %[2]s."},
}

// Generator fills empty job boards.
type Generator struct {
	catalog *content.Catalog
	rng     random.Source
}

func NewGenerator(catalog *content.Catalog, rng random.Source) *Generator {
	return &Generator{catalog: catalog, rng: rng}
}

// Generate builds a fresh board for origin. Transport jobs need at least one
// destination; stationary work is always offered.
func (g *Generator) Generate(origin world.Location, destinations []Destination, now time.Time) []Job {
	expires := now.Add(time.Duration(random.Between(g.rng, 3, 8)) * time.Hour)

	var out []Job
	if len(destinations) > 0 {
		for range random.Between(g.rng, 4, 8) {
			job := g.transport(origin, g.pickDestination(destinations))
			job.ExpiresAt = expires
			out = append(out, job)
		}
	}
	for range random.Between(g.rng, 1, 2) {
		job := g.stationary(origin)
		job.ExpiresAt = expires
		out = append(out, job)
	}
	return out
}

// pickDestination prefers direct hops: 60% one hop, 30% two hops, 10%
// further, falling back to a direct destination when the band is empty.
func (g *Generator) pickDestination(destinations []Destination) Destination {
	band := func(keep func(hops int) bool) []Destination {
		var out []Destination
		for _, d := range destinations {
			if keep(d.Hops) {
				out = append(out, d)
			}
		}
		return out
	}

	direct := band(func(h int) bool { return h == 1 })
	roll := g.rng.Float64()
	var pool []Destination
	switch {
	case roll < 0.6:
		pool = direct
	case roll < 0.9:
		pool = band(func(h int) bool { return h == 2 })
	default:
		pool = band(func(h int) bool { return h >= 3 })
	}
	if len(pool) == 0 {
		pool = direct
	}
	if len(pool) == 0 {
		pool = destinations
	}
	return random.Pick(g.rng, pool)
}

func (g *Generator) transport(origin world.Location, dest Destination) Job {
	dist := world.Distance(origin, dest.Location)
	hops := max(1, dest.Hops)

	base := max(100, int(dist*random.Uniform(g.rng, 8, 15)))
	reward := base + (hops-1)*100 + (dest.Location.WealthLevel+origin.WealthLevel)*5 + random.Between(g.rng, -20, 50)
	duration := max(10, int(dist*random.Uniform(g.rng, 1, 2))+(hops-1)*5)
	danger := min(5, max(1, int(dist/25)+hops+random.Between(g.rng, 0, 2)))

	t := random.Pick(g.rng, transportTitles)
	title := fmt.Sprintf(t.title, origin.Name, dest.Location.Name)
	description := fmt.Sprintf(t.description, origin.Name, dest.Location.Name)

	minSkill := 0
	if random.Chance(g.rng, 0.33) {
		minSkill = random.Between(g.rng, 5, 25)
		reward = int(float64(reward) * (1 + 0.03*float64(minSkill)))
	}
	if danger >= 4 {
		reward = int(float64(reward) * 1.5)
		title = "HAZARD PAY: " + title
	}

	destID := dest.Location.ID
	return Job{
		Title:           title,
		Description:     description,
		LocationID:      origin.ID,
		DestinationID:   &destID,
		Kind:            KindTransport,
		Source:          SourceBoard,
		RewardMoney:     reward,
		MinSkillLevel:   minSkill,
		DangerLevel:     danger,
		DurationMinutes: duration,
		Status:          StatusAvailable,
	}
}

func (g *Generator) stationary(origin world.Location) Job {
	job := Job{
		LocationID:      origin.ID,
		Kind:            KindStationary,
		Source:          SourceBoard,
		RewardMoney:     random.Between(g.rng, 40, 100),
		DurationMinutes: random.Between(g.rng, 2, 8),
		DangerLevel:     random.Between(g.rng, 0, 2),
		Status:          StatusAvailable,
	}

	templates := g.catalog.JobTemplates(string(origin.LocationType))
	if len(templates) == 0 {
		job.Title = "Station Maintenance"
		job.Description = fmt.Sprintf("Carry out maintenance duties at %s.", origin.Name)
		return job
	}
	t := random.Pick(g.rng, templates)
	job.Title = t.Title
	job.Description = fmt.Sprintf("%s at %s.", t.Description, origin.Name)
	if t.RequiredSkill != "" {
		skill := t.RequiredSkill
		job.RequiredSkill = &skill
		job.MinSkillLevel = t.MinSkill
		job.RewardMoney = int(math.Round(float64(job.RewardMoney) * (1 + 0.03*float64(t.MinSkill))))
	}
	return job
}

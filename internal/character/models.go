package character

import (
	"fmt"
	"time"

	"corridor-server/internal/content"
	"corridor-server/internal/shared/random"
)

type LocationStatus string

const (
	StatusDocked    LocationStatus = "docked"
	StatusInSpace   LocationStatus = "in_space"
	StatusTraveling LocationStatus = "traveling"
	StatusDead      LocationStatus = "dead"
)

type Character struct {
	UserID          int64          `db:"user_id" json:"user_id"`
	GuildID         int64          `db:"guild_id" json:"guild_id"`
	Name            string         `db:"name" json:"name"`
	Callsign        string         `db:"callsign" json:"callsign"`
	HP              int            `db:"hp" json:"hp"`
	MaxHP           int            `db:"max_hp" json:"max_hp"`
	Money           int64          `db:"money" json:"money"`
	Engineering     int            `db:"engineering" json:"engineering"`
	Navigation      int            `db:"navigation" json:"navigation"`
	Combat          int            `db:"combat" json:"combat"`
	Medical         int            `db:"medical" json:"medical"`
	Defense         int            `db:"defense" json:"defense"`
	Level           int            `db:"level" json:"level"`
	Experience      int            `db:"experience" json:"experience"`
	SkillPoints     int            `db:"skill_points" json:"skill_points"`
	CurrentLocation *int64         `db:"current_location" json:"current_location"`
	LocationStatus  LocationStatus `db:"location_status" json:"location_status"`
	ActiveShipID    *int64         `db:"active_ship_id" json:"active_ship_id"`
	IsLoggedIn      bool           `db:"is_logged_in" json:"is_logged_in"`
	FactionID       *int64         `db:"faction_id" json:"faction_id,omitempty"`
	GroupID         *int64         `db:"group_id" json:"group_id,omitempty"`
}

// At reports whether the character is at locationID.
func (c Character) At(locationID int64) bool {
	return c.CurrentLocation != nil && *c.CurrentLocation == locationID
}

func (c Character) IsDead() bool {
	return c.LocationStatus == StatusDead
}

// Skill returns the base value of a named skill.
func (c Character) Skill(name string) int {
	switch name {
	case "engineering":
		return c.Engineering
	case "navigation":
		return c.Navigation
	case "combat":
		return c.Combat
	case "medical":
		return c.Medical
	case "defense":
		return c.Defense
	}
	return 0
}

var Skills = []string{"engineering", "navigation", "combat", "medical"}

type Ship struct {
	ID             int64  `db:"ship_id" json:"ship_id"`
	OwnerID        int64  `db:"owner_id" json:"owner_id"`
	ShipType       string `db:"ship_type" json:"ship_type"`
	Name           string `db:"name" json:"name"`
	CurrentFuel    int    `db:"current_fuel" json:"current_fuel"`
	FuelCapacity   int    `db:"fuel_capacity" json:"fuel_capacity"`
	HullIntegrity  int    `db:"hull_integrity" json:"hull_integrity"`
	MaxHull        int    `db:"max_hull" json:"max_hull"`
	FuelEfficiency int    `db:"fuel_efficiency" json:"fuel_efficiency"`
	IsActive       bool   `db:"is_active" json:"is_active"`
}

// FuelNeeded scales a corridor's fuel cost by the ship's efficiency, where
// efficiency 10 is the baseline.
func (s Ship) FuelNeeded(fuelCost int) int {
	eff := s.FuelEfficiency
	if eff <= 0 {
		eff = 10
	}
	return (fuelCost*10 + eff - 1) / eff
}

type InventoryItem struct {
	ID        int64                `db:"item_id" json:"item_id"`
	OwnerID   int64                `db:"owner_id" json:"owner_id"`
	ItemName  string               `db:"item_name" json:"item_name"`
	ItemType  string               `db:"item_type" json:"item_type"`
	Quantity  int                  `db:"quantity" json:"quantity"`
	Value     int                  `db:"value" json:"value"`
	Metadata  content.ItemMetadata `db:"metadata" json:"metadata"`
	CreatedAt time.Time            `db:"created_at" json:"created_at"`
}

// Consumption describes what one use does to an inventory row.
type Consumption struct {
	RemoveOne     bool
	UsesRemaining int
}

// ConsumeOnce decides how a single use of the item is accounted for: single
// use items and items on their last charge lose one unit, charged items
// lose a charge.
func ConsumeOnce(item InventoryItem) Consumption {
	uses := item.Metadata.UsesRemaining
	if item.Metadata.SingleUse || (uses != nil && *uses <= 1) {
		return Consumption{RemoveOne: true}
	}
	if uses != nil {
		return Consumption{UsesRemaining: *uses - 1}
	}
	return Consumption{}
}

// ApplyExperience adds gain to exp, levelling up each time exp reaches
// level*100. Every level grants a skill point.
func ApplyExperience(level, exp, gain int) (newLevel, newExp, points int) {
	if level < 1 {
		level = 1
	}
	exp += gain
	for exp >= level*100 {
		exp -= level * 100
		level++
		points++
	}
	return level, exp, points
}

// GenerateCallsign returns four letters followed by four digits.
func GenerateCallsign(src random.Source) string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, 4)
	for i := range b {
		b[i] = letters[src.IntN(len(letters))]
	}
	return fmt.Sprintf("%s%04d", b, src.IntN(10000))
}

package world

import (
	"math"
	"strings"
	"time"
)

type LocationType string

const (
	LocationColony       LocationType = "colony"
	LocationSpaceStation LocationType = "space_station"
	LocationOutpost      LocationType = "outpost"
	LocationGate         LocationType = "gate"
)

// FlagNPCSpawnsSuppressed is set while the endgame runs.
const FlagNPCSpawnsSuppressed = "npc_spawns_suppressed"

type Location struct {
	ID                 int64        `db:"location_id" json:"location_id"`
	Name               string       `db:"name" json:"name"`
	LocationType       LocationType `db:"location_type" json:"location_type"`
	Description        string       `db:"description" json:"description"`
	WealthLevel        int          `db:"wealth_level" json:"wealth_level"`
	Population         int          `db:"population" json:"population"`
	X                  float64      `db:"x_coordinate" json:"x"`
	Y                  float64      `db:"y_coordinate" json:"y"`
	SystemName         string       `db:"system_name" json:"system_name"`
	HasJobs            bool         `db:"has_jobs" json:"has_jobs"`
	HasShops           bool         `db:"has_shops" json:"has_shops"`
	HasMedical         bool         `db:"has_medical" json:"has_medical"`
	HasRepairs         bool         `db:"has_repairs" json:"has_repairs"`
	HasFuel            bool         `db:"has_fuel" json:"has_fuel"`
	HasUpgrades        bool         `db:"has_upgrades" json:"has_upgrades"`
	HasFederalSupplies bool         `db:"has_federal_supplies" json:"has_federal_supplies"`
	HasBlackMarket     bool         `db:"has_black_market" json:"has_black_market"`
	FactionID          *int64       `db:"faction_id" json:"faction_id,omitempty"`
	IsDerelict         bool         `db:"is_derelict" json:"is_derelict"`
}

// Distance is the euclidean distance between two locations in galaxy units.
func Distance(a, b Location) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

type Corridor struct {
	ID              int64  `db:"corridor_id" json:"corridor_id"`
	Name            string `db:"name" json:"name"`
	Origin          int64  `db:"origin_location" json:"origin_location"`
	Destination     int64  `db:"destination_location" json:"destination_location"`
	TravelTime      int    `db:"travel_time" json:"travel_time"`
	FuelCost        int    `db:"fuel_cost" json:"fuel_cost"`
	DangerLevel     int    `db:"danger_level" json:"danger_level"`
	CorridorType    string `db:"corridor_type" json:"corridor_type"`
	IsBidirectional bool   `db:"is_bidirectional" json:"is_bidirectional"`
	IsActive        bool   `db:"is_active" json:"is_active"`
}

func (c Corridor) Duration() time.Duration {
	return time.Duration(c.TravelTime) * time.Second
}

// IsLocalSpace reports whether the corridor is a short approach lane inside
// a system. Local-space trips have no corridor events and no emergency exit.
func (c Corridor) IsLocalSpace() bool {
	return c.CorridorType == "local_space" || strings.Contains(c.Name, "Approach")
}

func (c Corridor) IsUngated() bool {
	return c.CorridorType == "ungated"
}

// From orients the corridor so that it departs from locationID. Reverse
// traversal is only possible on bidirectional corridors.
func (c Corridor) From(locationID int64) (Corridor, bool) {
	switch {
	case c.Origin == locationID:
		return c, true
	case c.IsBidirectional && c.Destination == locationID:
		c.Origin, c.Destination = c.Destination, c.Origin
		return c, true
	}
	return c, false
}

// Touches reports whether either end of the corridor is locationID.
func (c Corridor) Touches(locationID int64) bool {
	return c.Origin == locationID || c.Destination == locationID
}

// Route is a planned path through the corridor network.
type Route struct {
	Corridors []Corridor `json:"corridors"`
	TotalTime int        `json:"total_time"`
	TotalFuel int        `json:"total_fuel"`
}

func (r Route) Hops() int { return len(r.Corridors) }

// DestructionReport lists who died in a destruction cascade.
type DestructionReport struct {
	Killed          []int64  `json:"killed"`
	TransitChannels []string `json:"transit_channels,omitempty"`
	NPCsKilled      int      `json:"npcs_killed"`
}

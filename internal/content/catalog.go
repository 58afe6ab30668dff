// Package content holds the read-only tables the simulation consumes: the
// item catalog, stationary job templates, corridor events and apocalypse
// flavour text.
package content

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
)

// Usage types dispatched by item use.
const (
	UsageHealHP          = "heal_hp"
	UsageRestoreFuel     = "restore_fuel"
	UsageRepairHull      = "repair_hull"
	UsageStatModifier    = "stat_modifier"
	UsageEmergencyBeacon = "emergency_beacon"
	UsageRadioBeacon     = "radio_beacon"
	UsageNewsBeacon      = "news_beacon"
)

// Corridor event effects.
const (
	EffectHP   = "hp"
	EffectHull = "hull"
	EffectNone = "none"
)

type ItemDef struct {
	Name             string         `yaml:"name"`
	Type             string         `yaml:"type"`
	Value            int            `yaml:"value"`
	Rarity           string         `yaml:"rarity"`
	Description      string         `yaml:"description"`
	UsageType        string         `yaml:"usage_type"`
	EffectValue      int            `yaml:"effect_value"`
	SingleUse        bool           `yaml:"single_use"`
	UsesRemaining    int            `yaml:"uses_remaining"`
	EquipmentSlot    string         `yaml:"equipment_slot"`
	StatModifiers    map[string]int `yaml:"stat_modifiers"`
	ModifierDuration int            `yaml:"modifier_duration"`
}

// Metadata returns the inventory metadata a fresh copy of the item carries.
func (d ItemDef) Metadata() ItemMetadata {
	m := ItemMetadata{
		UsageType:        d.UsageType,
		EffectValue:      d.EffectValue,
		SingleUse:        d.SingleUse,
		Rarity:           d.Rarity,
		EquipmentSlot:    d.EquipmentSlot,
		ModifierDuration: d.ModifierDuration,
	}
	if d.UsesRemaining > 0 {
		uses := d.UsesRemaining
		m.UsesRemaining = &uses
	}
	if d.EquipmentSlot != "" {
		m.Equippable = true
	}
	if len(d.StatModifiers) > 0 {
		m.StatModifiers = make(map[string]int, len(d.StatModifiers))
		for k, v := range d.StatModifiers {
			m.StatModifiers[k] = v
		}
	}
	return m
}

// ItemMetadata is the structured metadata stored with every inventory row.
type ItemMetadata struct {
	UsageType        string         `json:"usage_type,omitempty"`
	EffectValue      int            `json:"effect_value,omitempty"`
	SingleUse        bool           `json:"single_use,omitempty"`
	UsesRemaining    *int           `json:"uses_remaining,omitempty"`
	Rarity           string         `json:"rarity,omitempty"`
	Equippable       bool           `json:"equippable,omitempty"`
	EquipmentSlot    string         `json:"equipment_slot,omitempty"`
	StatModifiers    map[string]int `json:"stat_modifiers,omitempty"`
	ModifierDuration int            `json:"modifier_duration,omitempty"`
}

func (m ItemMetadata) Value() (driver.Value, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode item metadata: %w", err)
	}
	return string(b), nil
}

func (m *ItemMetadata) Scan(src any) error {
	var b []byte
	switch v := src.(type) {
	case nil:
		*m = ItemMetadata{}
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported item metadata type %T", src)
	}
	if len(b) == 0 {
		*m = ItemMetadata{}
		return nil
	}
	return json.Unmarshal(b, m)
}

type JobTemplate struct {
	Title         string `yaml:"title"`
	Description   string `yaml:"description"`
	RequiredSkill string `yaml:"required_skill"`
	MinSkill      int    `yaml:"min_skill"`
}

type CorridorEvent struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Effect      string `yaml:"effect"`
	Min         int    `yaml:"min"`
	Max         int    `yaml:"max"`
	MinDanger   int    `yaml:"min_danger"`
}

type Catalog struct {
	Items            []ItemDef                `yaml:"items"`
	StationaryJobs   map[string][]JobTemplate `yaml:"stationary_jobs"`
	CorridorEvents   []CorridorEvent          `yaml:"corridor_events"`
	ApocalypseEvents []string                 `yaml:"apocalypse_events"`

	byName map[string]*ItemDef
}

func (c *Catalog) index() {
	c.byName = make(map[string]*ItemDef, len(c.Items))
	for i := range c.Items {
		c.byName[strings.ToLower(c.Items[i].Name)] = &c.Items[i]
	}
}

// Item looks an item definition up by name, case-insensitively.
func (c *Catalog) Item(name string) (*ItemDef, bool) {
	if c.byName == nil {
		c.index()
	}
	def, ok := c.byName[strings.ToLower(name)]
	return def, ok
}

// JobTemplates returns the stationary templates for a location type, falling
// back to every template when the type has none.
func (c *Catalog) JobTemplates(locationType string) []JobTemplate {
	if templates := c.StationaryJobs[locationType]; len(templates) > 0 {
		return templates
	}
	var all []JobTemplate
	for _, templates := range c.StationaryJobs {
		all = append(all, templates...)
	}
	return all
}

// CorridorEventsFor returns the events eligible on a corridor of the given
// danger level.
func (c *Catalog) CorridorEventsFor(danger int) []CorridorEvent {
	var eligible []CorridorEvent
	for _, e := range c.CorridorEvents {
		if danger >= e.MinDanger {
			eligible = append(eligible, e)
		}
	}
	return eligible
}

package stats

import (
	"math"
	"strings"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/content"
)

// Stat names.
const (
	HP          = "hp"
	MaxHP       = "max_hp"
	Engineering = "engineering"
	Navigation  = "navigation"
	Combat      = "combat"
	Medical     = "medical"
	Defense     = "defense"
)

var All = []string{HP, MaxHP, Engineering, Navigation, Combat, Medical, Defense}

type SourceType string

const (
	SourceEquipment  SourceType = "equipment"
	SourceConsumable SourceType = "consumable"
)

var slots = map[string]bool{
	"head": true, "eyes": true, "torso": true,
	"arms_left": true, "arms_right": true,
	"hands_left": true, "hands_right": true, "hands_both": true,
	"legs_left": true, "legs_right": true, "legs_both": true,
	"feet_left": true, "feet_right": true, "feet_both": true,
}

// ValidSlot reports whether slot is a known equipment slot. Only hands,
// legs and feet have a paired form.
func ValidSlot(slot string) bool {
	return slots[slot]
}

// IsPaired reports whether slot covers both sides of a body region.
func IsPaired(slot string) bool {
	return strings.HasSuffix(slot, "_both")
}

// Occupies returns the concrete slots an item in slot takes up.
func Occupies(slot string) []string {
	if !IsPaired(slot) {
		return []string{slot}
	}
	region := strings.TrimSuffix(slot, "_both")
	return []string{region + "_left", region + "_right"}
}

type Modifier struct {
	ID             int64      `db:"modifier_id" json:"modifier_id"`
	UserID         int64      `db:"user_id" json:"user_id"`
	StatName       string     `db:"stat_name" json:"stat_name"`
	Value          int        `db:"modifier_value" json:"modifier_value"`
	SourceType     SourceType `db:"source_type" json:"source_type"`
	SourceItemName string     `db:"source_item_name" json:"source_item_name"`
	SourceItemID   *int64     `db:"source_item_id" json:"source_item_id,omitempty"`
	ExpiresAt      *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// Expired reports whether the modifier has run out at now.
func (m Modifier) Expired(now time.Time) bool {
	return m.ExpiresAt != nil && !m.ExpiresAt.After(now)
}

// ModifiersFor turns an item's stat modifiers into modifier rows. A zero
// duration means the modifiers last until removed.
func ModifiersFor(userID int64, itemName string, itemID *int64, source SourceType, mods map[string]int, duration time.Duration, now time.Time) []Modifier {
	var expires *time.Time
	if duration > 0 {
		at := now.Add(duration)
		expires = &at
	}
	out := make([]Modifier, 0, len(mods))
	for _, stat := range All {
		v, ok := mods[stat]
		if !ok || v == 0 {
			continue
		}
		out = append(out, Modifier{
			UserID:         userID,
			StatName:       stat,
			Value:          v,
			SourceType:     source,
			SourceItemName: itemName,
			SourceItemID:   itemID,
			ExpiresAt:      expires,
		})
	}
	return out
}

type EquippedItem struct {
	Slot     string               `db:"slot_name" json:"slot"`
	ItemID   int64                `db:"item_id" json:"item_id"`
	ItemName string               `db:"item_name" json:"item_name"`
	Metadata content.ItemMetadata `db:"metadata" json:"metadata"`
}

// Stats maps stat names to values.
type Stats map[string]int

func Base(c character.Character) Stats {
	return Stats{
		HP:          c.HP,
		MaxHP:       c.MaxHP,
		Engineering: c.Engineering,
		Navigation:  c.Navigation,
		Combat:      c.Combat,
		Medical:     c.Medical,
		Defense:     c.Defense,
	}
}

// Effective adds every modifier to base, clamping each stat at zero.
func Effective(base Stats, mods []Modifier) Stats {
	out := make(Stats, len(All))
	for _, stat := range All {
		out[stat] = base[stat]
	}
	for _, m := range mods {
		out[m.StatName] += m.Value
	}
	for stat, v := range out {
		out[stat] = max(0, v)
	}
	return out
}

const maxDefense = 90

// ReduceDamage applies defense as a percentage reduction, capped at 90%.
func ReduceDamage(damage, defense int) (reduced, final int) {
	pct := min(max(defense, 0), maxDefense)
	reduced = int(math.Round(float64(damage) * float64(pct) / 100))
	return reduced, max(0, damage-reduced)
}

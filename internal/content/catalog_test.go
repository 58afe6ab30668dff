package content

import (
	"strings"
	"testing"
)

func TestDefaultCatalogLoads(t *testing.T) {
	catalog, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	goggles, ok := catalog.Item("tactical goggles")
	if !ok {
		t.Fatal("Tactical Goggles missing")
	}
	if goggles.EquipmentSlot != "eyes" || goggles.StatModifiers["combat"] != 2 {
		t.Fatalf("goggles=%+v", goggles)
	}

	shot, ok := catalog.Item("Combat Adrenaline Shot")
	if !ok {
		t.Fatal("Combat Adrenaline Shot missing")
	}
	meta := shot.Metadata()
	if meta.UsageType != UsageStatModifier || meta.ModifierDuration != 900 || !meta.SingleUse {
		t.Fatalf("shot metadata=%+v", meta)
	}

	kit, _ := catalog.Item("Repair Kit")
	if kit.Metadata().UsesRemaining == nil || *kit.Metadata().UsesRemaining != 3 {
		t.Fatalf("repair kit uses not carried into metadata")
	}

	if len(catalog.ApocalypseEvents) == 0 {
		t.Fatal("no apocalypse flavours")
	}
}

func TestCorridorEventsFilterByDanger(t *testing.T) {
	catalog, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	for _, e := range catalog.CorridorEventsFor(1) {
		if e.MinDanger > 1 {
			t.Fatalf("event %q leaked into danger 1", e.Name)
		}
	}
	if len(catalog.CorridorEventsFor(4)) <= len(catalog.CorridorEventsFor(1)) {
		t.Fatal("danger 4 should unlock escalated events")
	}
}

func TestCorridorEventEffectsKnown(t *testing.T) {
	catalog, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	seen := map[string]bool{}
	for _, e := range catalog.CorridorEvents {
		switch e.Effect {
		case EffectHP, EffectHull, EffectNone:
			seen[e.Effect] = true
		default:
			t.Fatalf("event %q has unknown effect %q", e.Name, e.Effect)
		}
	}
	if !seen[EffectHP] || !seen[EffectHull] {
		t.Fatalf("effects seen=%v", seen)
	}
}

func TestJobTemplatesFallBack(t *testing.T) {
	catalog, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(catalog.JobTemplates("colony")) == 0 {
		t.Fatal("colony has no templates")
	}
	if len(catalog.JobTemplates("derelict")) == 0 {
		t.Fatal("unknown type should fall back to all templates")
	}
}

func TestParseRejectsSchemaViolation(t *testing.T) {
	bad := `
items:
  - name: Broken
    type: junk
    value: -5
stationary_jobs:
  colony:
    - {title: T, description: D}
corridor_events:
  - {name: E, description: D, effect: none}
apocalypse_events: [x]
`
	_, err := Parse([]byte(bad))
	if err == nil || !strings.Contains(err.Error(), "schema") {
		t.Fatalf("err=%v want schema violation", err)
	}
}

func TestItemMetadataScan(t *testing.T) {
	var m ItemMetadata
	if err := m.Scan([]byte(`{"usage_type":"heal_hp","effect_value":25,"single_use":true}`)); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if m.UsageType != UsageHealHP || m.EffectValue != 25 || !m.SingleUse {
		t.Fatalf("metadata=%+v", m)
	}
	if err := m.Scan(nil); err != nil || m.UsageType != "" {
		t.Fatalf("nil scan: %v %+v", err, m)
	}
}

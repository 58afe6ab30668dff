package stats

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/content"
)

type fakeStore struct {
	char      character.Character
	items     map[int64]character.InventoryItem
	equipment map[string]int64
	mods      []Modifier
}

func newFakeStore(c character.Character, items ...character.InventoryItem) *fakeStore {
	f := &fakeStore{char: c, items: map[int64]character.InventoryItem{}, equipment: map[string]int64{}}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeStore) GetCharacter(context.Context, int64) (*character.Character, error) {
	c := f.char
	return &c, nil
}

func (f *fakeStore) GetInventoryItem(_ context.Context, _, itemID int64) (*character.InventoryItem, error) {
	it, ok := f.items[itemID]
	if !ok {
		return nil, nil
	}
	return &it, nil
}

func (f *fakeStore) Modifiers(_ context.Context, _ int64, now time.Time) ([]Modifier, error) {
	kept := f.mods[:0]
	for _, m := range f.mods {
		if !m.Expired(now) {
			kept = append(kept, m)
		}
	}
	f.mods = kept
	return append([]Modifier(nil), f.mods...), nil
}

func (f *fakeStore) Equipment(context.Context, int64) ([]EquippedItem, error) {
	var out []EquippedItem
	for slot, id := range f.equipment {
		out = append(out, EquippedItem{Slot: slot, ItemID: id, ItemName: f.items[id].ItemName})
	}
	return out, nil
}

func (f *fakeStore) release(itemID int64) {
	for slot, id := range f.equipment {
		if id == itemID {
			delete(f.equipment, slot)
		}
	}
	kept := f.mods[:0]
	for _, m := range f.mods {
		if m.SourceType == SourceEquipment && m.SourceItemID != nil && *m.SourceItemID == itemID {
			continue
		}
		kept = append(kept, m)
	}
	f.mods = kept
}

func (f *fakeStore) Equip(_ context.Context, _ int64, item character.InventoryItem, slot string, mods []Modifier) error {
	for _, id := range f.equipment {
		if id == item.ID {
			return ErrAlreadyEquipped
		}
	}
	targets := Occupies(slot)
	if IsPaired(slot) {
		for _, s := range targets {
			if id, ok := f.equipment[s]; ok {
				f.release(id)
			}
		}
	} else if _, ok := f.equipment[slot]; ok {
		return ErrSlotOccupied
	}
	for _, s := range targets {
		f.equipment[s] = item.ID
	}
	f.mods = append(f.mods, mods...)
	return nil
}

func (f *fakeStore) Unequip(_ context.Context, _ int64, slot string) (*EquippedItem, error) {
	for _, s := range Occupies(slot) {
		if id, ok := f.equipment[s]; ok {
			f.release(id)
			return &EquippedItem{Slot: s, ItemID: id}, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AddModifiers(_ context.Context, mods []Modifier) error {
	f.mods = append(f.mods, mods...)
	return nil
}

func mustCatalog(t *testing.T) *content.Catalog {
	t.Helper()
	cat, err := content.Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cat
}

func item(t *testing.T, cat *content.Catalog, id int64, name string) character.InventoryItem {
	t.Helper()
	def, ok := cat.Item(name)
	if !ok {
		t.Fatalf("catalog has no %q", name)
	}
	return character.InventoryItem{ID: id, OwnerID: 1, ItemName: def.Name, ItemType: def.Type, Quantity: 1, Metadata: def.Metadata()}
}

func newTestService(t *testing.T, store Store, now *time.Time) *Service {
	t.Helper()
	svc := NewService(store, mustCatalog(t), slog.New(slog.NewTextHandler(io.Discard, nil)))
	svc.now = func() time.Time { return *now }
	return svc
}

func TestReduceDamage(t *testing.T) {
	cases := []struct {
		damage, defense      int
		wantReduced, wantFin int
	}{
		{100, 0, 0, 100},
		{100, 90, 90, 10},
		{100, 200, 90, 10},
		{1, 50, 1, 0},
		{10, -5, 0, 10},
	}
	for _, tc := range cases {
		reduced, final := ReduceDamage(tc.damage, tc.defense)
		if reduced != tc.wantReduced || final != tc.wantFin {
			t.Fatalf("ReduceDamage(%d,%d)=(%d,%d) want=(%d,%d)",
				tc.damage, tc.defense, reduced, final, tc.wantReduced, tc.wantFin)
		}
	}
}

func TestEffectiveClampsAtZero(t *testing.T) {
	got := Effective(Stats{Medical: 1}, []Modifier{{StatName: Medical, Value: -3}})
	if got[Medical] != 0 {
		t.Fatalf("medical=%d want=0", got[Medical])
	}
}

func TestOccupies(t *testing.T) {
	got := Occupies("hands_both")
	if len(got) != 2 || got[0] != "hands_left" || got[1] != "hands_right" {
		t.Fatalf("Occupies=%v", got)
	}
	if got := Occupies("head"); len(got) != 1 || got[0] != "head" {
		t.Fatalf("Occupies=%v", got)
	}
}

func TestEquipmentAndConsumableComposition(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cat := mustCatalog(t)
	goggles := item(t, cat, 1, "Tactical Goggles")
	shot := item(t, cat, 2, "Combat Adrenaline Shot")

	store := newFakeStore(character.Character{UserID: 1, HP: 100, MaxHP: 100, Combat: 10}, goggles, shot)
	svc := newTestService(t, store, &now)
	ctx := context.Background()

	if _, err := svc.Equip(ctx, 1, goggles.ID); err != nil {
		t.Fatalf("Equip: %v", err)
	}
	if _, err := svc.ApplyConsumable(ctx, 1, shot.ItemName, shot.Metadata); err != nil {
		t.Fatalf("ApplyConsumable: %v", err)
	}

	eff, err := svc.Effective(ctx, 1)
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if eff[Combat] != 17 {
		t.Fatalf("combat=%d want=17", eff[Combat])
	}

	now = now.Add(15 * time.Minute)
	eff, err = svc.Effective(ctx, 1)
	if err != nil {
		t.Fatalf("Effective: %v", err)
	}
	if eff[Combat] != 12 {
		t.Fatalf("combat after expiry=%d want=12", eff[Combat])
	}
	for _, m := range store.mods {
		if m.Expired(now) {
			t.Fatalf("expired modifier survived a read: %+v", m)
		}
	}
}

func TestPairedEquipRoundTrip(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cat := mustCatalog(t)
	gloves := item(t, cat, 1, "Pilot's Gloves")

	store := newFakeStore(character.Character{UserID: 1, Navigation: 4}, gloves)
	svc := newTestService(t, store, &now)
	ctx := context.Background()

	if _, err := svc.Equip(ctx, 1, gloves.ID); err != nil {
		t.Fatalf("Equip: %v", err)
	}
	if store.equipment["hands_left"] != 1 || store.equipment["hands_right"] != 1 {
		t.Fatalf("equipment=%v", store.equipment)
	}
	if eff, _ := svc.Effective(ctx, 1); eff[Navigation] != 7 {
		t.Fatalf("navigation=%d want=7", eff[Navigation])
	}

	if _, err := svc.Unequip(ctx, 1, "hands_both"); err != nil {
		t.Fatalf("Unequip: %v", err)
	}
	if len(store.equipment) != 0 {
		t.Fatalf("equipment after unequip=%v", store.equipment)
	}
	if eff, _ := svc.Effective(ctx, 1); eff[Navigation] != 4 {
		t.Fatalf("navigation=%d want=4", eff[Navigation])
	}
}

func TestPairedEquipDisplacesSides(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cat := mustCatalog(t)
	left := character.InventoryItem{ID: 5, ItemName: "Left Glove", Metadata: content.ItemMetadata{Equippable: true, EquipmentSlot: "hands_left"}}
	gloves := item(t, cat, 6, "Pilot's Gloves")

	store := newFakeStore(character.Character{UserID: 1}, left, gloves)
	svc := newTestService(t, store, &now)
	ctx := context.Background()

	if _, err := svc.Equip(ctx, 1, left.ID); err != nil {
		t.Fatalf("Equip left: %v", err)
	}
	if _, err := svc.Equip(ctx, 1, gloves.ID); err != nil {
		t.Fatalf("Equip gloves: %v", err)
	}
	if store.equipment["hands_left"] != 6 || store.equipment["hands_right"] != 6 {
		t.Fatalf("equipment=%v", store.equipment)
	}
}

func TestSingleSlotOccupied(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cat := mustCatalog(t)
	helmet := item(t, cat, 1, "Military Helmet")
	other := character.InventoryItem{ID: 2, ItemName: "Spare Helmet", Metadata: content.ItemMetadata{Equippable: true, EquipmentSlot: "head"}}

	store := newFakeStore(character.Character{UserID: 1}, helmet, other)
	svc := newTestService(t, store, &now)
	ctx := context.Background()

	if _, err := svc.Equip(ctx, 1, helmet.ID); err != nil {
		t.Fatalf("Equip: %v", err)
	}
	if _, err := svc.Equip(ctx, 1, other.ID); !errors.Is(err, ErrSlotOccupied) {
		t.Fatalf("err=%v want ErrSlotOccupied", err)
	}
}

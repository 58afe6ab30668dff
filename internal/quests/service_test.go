package quests

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/gametime"
	"corridor-server/internal/notify/notifytest"
	apperrors "corridor-server/internal/shared/errors"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type sale struct {
	userID   int64
	item     string
	quantity int
	at       time.Time
}

type fakeStore struct {
	chars       map[int64]*character.Character
	items       map[int64]map[string]int
	sales       []sale
	quests      map[int64]*Quest
	objectives  map[int64][]Objective
	progress    map[[2]int64]*Progress
	completions []Step
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chars:      map[int64]*character.Character{},
		items:      map[int64]map[string]int{},
		quests:     map[int64]*Quest{},
		objectives: map[int64][]Objective{},
		progress:   map[[2]int64]*Progress{},
	}
}

func (f *fakeStore) addCharacter(userID, location int64) *character.Character {
	loc := location
	c := &character.Character{UserID: userID, Level: 1, CurrentLocation: &loc, LocationStatus: character.StatusDocked}
	f.chars[userID] = c
	f.items[userID] = map[string]int{}
	return c
}

func (f *fakeStore) GetCharacter(_ context.Context, userID int64) (*character.Character, error) {
	c, ok := f.chars[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) Available(_ context.Context, locationID int64) ([]Quest, error) {
	var out []Quest
	for _, q := range f.quests {
		if q.StartLocation == locationID && q.IsActive && !q.Exhausted() {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (f *fakeStore) Quest(_ context.Context, questID int64) (*Quest, error) {
	q, ok := f.quests[questID]
	if !ok {
		return nil, nil
	}
	cp := *q
	return &cp, nil
}

func (f *fakeStore) Objectives(_ context.Context, questID int64) ([]Objective, error) {
	return f.objectives[questID], nil
}

func (f *fakeStore) Progress(_ context.Context, questID, userID int64) (*Progress, error) {
	p, ok := f.progress[[2]int64{questID, userID}]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (f *fakeStore) ActiveProgress(_ context.Context, userID int64) (*Progress, error) {
	for _, p := range f.progress {
		if p.UserID == userID && p.Status == StatusActive {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) AllActive(_ context.Context) ([]Progress, error) {
	var out []Progress
	for _, p := range f.progress {
		if p.Status == StatusActive {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeStore) Start(_ context.Context, questID, userID int64, now time.Time) error {
	key := [2]int64{questID, userID}
	if p, ok := f.progress[key]; ok && p.Status != StatusAbandoned {
		return ErrQuestActive
	}
	f.progress[key] = &Progress{
		QuestID: questID, UserID: userID, CurrentObjective: 1, Status: StatusActive,
		StartedAt: now, ObjectiveStartedAt: now,
	}
	return nil
}

func (f *fakeStore) Abandon(_ context.Context, questID, userID int64) (bool, error) {
	p, ok := f.progress[[2]int64{questID, userID}]
	if !ok || p.Status != StatusActive {
		return false, nil
	}
	p.Status = StatusAbandoned
	return true, nil
}

func (f *fakeStore) ItemCount(_ context.Context, userID int64, item string) (int, error) {
	return f.items[userID][strings.ToLower(item)], nil
}

func (f *fakeStore) SoldSince(_ context.Context, userID int64, item string, since time.Time) (int, error) {
	var n int
	for _, s := range f.sales {
		if s.userID == userID && strings.EqualFold(s.item, item) && !s.at.Before(since) {
			n += s.quantity
		}
	}
	return n, nil
}

func (f *fakeStore) CompleteObjective(_ context.Context, step Step) (*StepResult, error) {
	p := f.progress[[2]int64{step.QuestID, step.UserID}]
	if p == nil || p.Status != StatusActive || p.CurrentObjective != step.Order {
		return nil, ErrStale
	}
	if step.Deliver != nil {
		key := strings.ToLower(step.Deliver.Item)
		if f.items[step.UserID][key] < step.Deliver.Quantity {
			return nil, ErrItemsMissing
		}
		f.items[step.UserID][key] -= step.Deliver.Quantity
	}
	p.Completed = append(p.Completed, int64(step.Order))
	f.completions = append(f.completions, step)
	if !step.Final {
		p.CurrentObjective++
		p.ObjectiveStartedAt = step.Finished
		return &StepResult{}, nil
	}

	p.Status = StatusCompleted
	c := f.chars[step.UserID]
	c.Money += int64(step.Money)
	var res StepResult
	level, exp, points := character.ApplyExperience(c.Level, c.Experience, step.Exp)
	if level > c.Level {
		res.NewLevel = level
	}
	c.Level, c.Experience, c.SkillPoints = level, exp, c.SkillPoints+points
	f.quests[step.QuestID].CurrentCompletions++
	res.Minutes = int(step.Finished.Sub(p.StartedAt).Minutes())
	return &res, nil
}

func (f *fakeStore) Create(_ context.Context, q Quest, objectives []Objective) (*Quest, error) {
	q.ID = int64(len(f.quests) + 1)
	q.IsActive = true
	f.quests[q.ID] = &q
	for i := range objectives {
		objectives[i].QuestID = q.ID
	}
	f.objectives[q.ID] = objectives
	return &q, nil
}

func (f *fakeStore) Toggle(_ context.Context, questID int64) (*bool, error) {
	q, ok := f.quests[questID]
	if !ok {
		return nil, nil
	}
	q.IsActive = !q.IsActive
	v := q.IsActive
	return &v, nil
}

type harness struct {
	store    *fakeStore
	recorder *notifytest.Recorder
	service  *Service
	now      time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{store: newFakeStore(), recorder: notifytest.NewRecorder(), now: t0}
	clock := gametime.NewClock(t0, t0, 1).WithNow(func() time.Time { return h.now })
	h.service = NewService(h.store, h.recorder, clock, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

func ptr[T any](v T) *T { return &v }

func (h *harness) createQuest(t *testing.T, req CreateRequest) *Quest {
	t.Helper()
	q, err := h.service.Create(context.Background(), req)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return q
}

func TestQuestProgression(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	c := h.store.addCharacter(1, 100)

	q := h.createQuest(t, CreateRequest{
		Title:            "Crystal Run",
		StartLocation:    100,
		RewardMoney:      250,
		RewardExperience: 150,
		Objectives: []ObjectiveSpec{
			{Type: ObjectiveTravel, TargetLocationID: ptr(int64(101))},
			{Type: ObjectiveObtainItem, TargetItem: "Crystal", TargetQuantity: 2},
			{Type: ObjectiveEarnMoney, TargetAmount: 1000},
		},
	})

	if _, err := h.service.Accept(ctx, 1, q.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	tick := func(wantAdvanced, wantCompleted int) {
		t.Helper()
		res, err := h.service.Tick(ctx)
		if err != nil {
			t.Fatalf("tick: %v", err)
		}
		if res.Advanced != wantAdvanced || res.Completed != wantCompleted {
			t.Fatalf("tick=%+v want advanced=%d completed=%d", res, wantAdvanced, wantCompleted)
		}
	}

	tick(0, 0)
	h.store.chars[1].CurrentLocation = ptr(int64(101))
	tick(1, 0)
	if p, _ := h.store.Progress(ctx, q.ID, 1); p.CurrentObjective != 2 {
		t.Fatalf("current objective=%d want=2", p.CurrentObjective)
	}

	h.store.items[1]["crystal"] = 1
	tick(0, 0)
	h.store.items[1]["crystal"] = 2
	tick(1, 0)

	c.Money = 1000
	h.now = t0.Add(42 * time.Minute)
	tick(0, 1)

	p, _ := h.store.Progress(ctx, q.ID, 1)
	if p.Status != StatusCompleted || len(p.Completed) != 3 {
		t.Fatalf("progress=%+v", p)
	}
	if c.Money != 1250 {
		t.Fatalf("money=%d want=1250", c.Money)
	}
	if c.Level != 2 || c.Experience != 50 {
		t.Fatalf("level=%d experience=%d", c.Level, c.Experience)
	}
	if h.store.quests[q.ID].CurrentCompletions != 1 {
		t.Fatalf("completions=%d want=1", h.store.quests[q.ID].CurrentCompletions)
	}
	if h.recorder.CountKind("quest_objective") != 2 || h.recorder.CountKind("quest_completed") != 1 || h.recorder.CountKind("level_up") != 1 {
		t.Fatalf("kinds=%v", h.recorder.SentKinds())
	}

	tick(0, 0)
	if _, err := h.service.Accept(ctx, 1, q.ID); apperrors.GetReason(err) != apperrors.ReasonWrongLocation {
		t.Fatalf("accept away from start err=%v", err)
	}
	h.store.chars[1].CurrentLocation = ptr(int64(100))
	if _, err := h.service.Accept(ctx, 1, q.ID); apperrors.GetReason(err) != apperrors.ReasonAlreadyActive {
		t.Fatalf("re-accept completed quest err=%v", err)
	}
}

func TestDeliverItemConsumesItems(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.addCharacter(1, 100)
	q := h.createQuest(t, CreateRequest{
		Title:         "Medical Drop",
		StartLocation: 100,
		RewardMoney:   50,
		Objectives:    []ObjectiveSpec{{Type: ObjectiveDeliverItem, TargetLocationID: ptr(int64(100)), TargetItem: "Medkit", TargetQuantity: 3}},
	})
	if _, err := h.service.Accept(ctx, 1, q.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}

	h.store.items[1]["medkit"] = 4
	res, err := h.service.Tick(ctx)
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if res.Completed != 1 {
		t.Fatalf("tick=%+v", res)
	}
	if left := h.store.items[1]["medkit"]; left != 1 {
		t.Fatalf("medkits left=%d want=1", left)
	}
}

func TestSellItemCountsSalesSinceObjectiveStarted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.addCharacter(1, 100)
	q := h.createQuest(t, CreateRequest{
		Title:         "Ore Trader",
		StartLocation: 100,
		Objectives:    []ObjectiveSpec{{Type: ObjectiveSellItem, TargetItem: "Iron Ore", TargetQuantity: 5}},
	})

	h.store.sales = append(h.store.sales, sale{userID: 1, item: "Iron Ore", quantity: 10, at: t0.Add(-time.Hour)})
	if _, err := h.service.Accept(ctx, 1, q.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if res, _ := h.service.Tick(ctx); res.Completed != 0 {
		t.Fatalf("sales before the objective counted: %+v", res)
	}

	h.store.sales = append(h.store.sales,
		sale{userID: 1, item: "iron ore", quantity: 3, at: t0.Add(time.Minute)},
		sale{userID: 2, item: "Iron Ore", quantity: 9, at: t0.Add(time.Minute)},
	)
	if res, _ := h.service.Tick(ctx); res.Completed != 0 {
		t.Fatalf("completed early: %+v", res)
	}
	h.store.sales = append(h.store.sales, sale{userID: 1, item: "Iron Ore", quantity: 2, at: t0.Add(2 * time.Minute)})
	if res, _ := h.service.Tick(ctx); res.Completed != 1 {
		t.Fatalf("tick=%+v want one completion", res)
	}
}

func TestAcceptRules(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.store.addCharacter(1, 100)
	objectives := []ObjectiveSpec{{Type: ObjectiveVisitLocation, TargetLocationID: ptr(int64(101))}}

	first := h.createQuest(t, CreateRequest{Title: "First", StartLocation: 100, Objectives: objectives})
	second := h.createQuest(t, CreateRequest{Title: "Second", StartLocation: 100, Objectives: objectives})
	veteran := h.createQuest(t, CreateRequest{Title: "Veteran", StartLocation: 100, RequiredLevel: 5, Objectives: objectives})
	capped := h.createQuest(t, CreateRequest{Title: "Capped", StartLocation: 100, MaxCompletions: ptr(1), Objectives: objectives})
	h.store.quests[capped.ID].CurrentCompletions = 1

	if _, err := h.service.Accept(ctx, 1, veteran.ID); apperrors.GetReason(err) != apperrors.ReasonInsufficientResources {
		t.Fatalf("under-level accept err=%v", err)
	}
	if _, err := h.service.Accept(ctx, 1, capped.ID); apperrors.GetType(err) != apperrors.ErrorTypeNotFound {
		t.Fatalf("exhausted accept err=%v", err)
	}
	if _, err := h.service.Accept(ctx, 1, first.ID); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := h.service.Accept(ctx, 1, second.ID); err != ErrQuestActive {
		t.Fatalf("second accept err=%v want=%v", err, ErrQuestActive)
	}

	view, err := h.service.Status(ctx, 1)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if view.Quest.ID != first.ID || len(view.Objectives) != 1 || !view.Objectives[0].Current || view.Objectives[0].Completed {
		t.Fatalf("status=%+v", view)
	}

	if _, err := h.service.Abandon(ctx, 1); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	if _, err := h.service.Status(ctx, 1); err != ErrNoQuest {
		t.Fatalf("status after abandon err=%v want=%v", err, ErrNoQuest)
	}
	if _, err := h.service.Accept(ctx, 1, first.ID); err != nil {
		t.Fatalf("re-accept abandoned quest: %v", err)
	}

	available, _ := h.service.Available(ctx, 100)
	if len(available) != 3 {
		t.Fatalf("available=%d want=3", len(available))
	}
	if active, err := h.service.Toggle(ctx, second.ID); err != nil || active {
		t.Fatalf("toggle=%v err=%v", active, err)
	}
	if available, _ = h.service.Available(ctx, 100); len(available) != 2 {
		t.Fatalf("available after toggle=%d want=2", len(available))
	}
}

func TestCreateValidation(t *testing.T) {
	h := newHarness(t)
	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"no title", CreateRequest{StartLocation: 1, Objectives: []ObjectiveSpec{{Type: ObjectiveEarnMoney, TargetAmount: 5}}}},
		{"no objectives", CreateRequest{Title: "Q", StartLocation: 1}},
		{"unknown type", CreateRequest{Title: "Q", StartLocation: 1, Objectives: []ObjectiveSpec{{Type: "dance"}}}},
		{"travel without target", CreateRequest{Title: "Q", StartLocation: 1, Objectives: []ObjectiveSpec{{Type: ObjectiveTravel}}}},
		{"item without name", CreateRequest{Title: "Q", StartLocation: 1, Objectives: []ObjectiveSpec{{Type: ObjectiveObtainItem}}}},
		{"zero money", CreateRequest{Title: "Q", StartLocation: 1, Objectives: []ObjectiveSpec{{Type: ObjectiveEarnMoney}}}},
		{"zero cap", CreateRequest{Title: "Q", StartLocation: 1, MaxCompletions: ptr(0), Objectives: []ObjectiveSpec{{Type: ObjectiveEarnMoney, TargetAmount: 5}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.service.Create(context.Background(), tt.req)
			if apperrors.GetType(err) != apperrors.ErrorTypeValidation {
				t.Fatalf("err=%v want validation", err)
			}
		})
	}
}

func TestMet(t *testing.T) {
	loc := int64(3)
	other := int64(4)
	tests := []struct {
		name string
		obj  Objective
		snap Snapshot
		want bool
	}{
		{"travel there", Objective{Type: ObjectiveTravel, TargetLocationID: &loc}, Snapshot{Location: &loc}, true},
		{"travel elsewhere", Objective{Type: ObjectiveTravel, TargetLocationID: &loc}, Snapshot{Location: &other}, false},
		{"travel in transit", Objective{Type: ObjectiveVisitLocation, TargetLocationID: &loc}, Snapshot{}, false},
		{"enough items", Objective{Type: ObjectiveObtainItem, TargetQuantity: 2}, Snapshot{ItemCount: 2}, true},
		{"too few items", Objective{Type: ObjectiveObtainItem, TargetQuantity: 2}, Snapshot{ItemCount: 1}, false},
		{"rich", Objective{Type: ObjectiveEarnMoney, TargetAmount: 1000}, Snapshot{Money: 1000}, true},
		{"deliver away", Objective{Type: ObjectiveDeliverItem, TargetLocationID: &loc, TargetQuantity: 1}, Snapshot{Location: &other, ItemCount: 5}, false},
		{"deliver here", Objective{Type: ObjectiveDeliverItem, TargetLocationID: &loc, TargetQuantity: 1}, Snapshot{Location: &loc, ItemCount: 1}, true},
		{"sold enough", Objective{Type: ObjectiveSellItem, TargetQuantity: 3}, Snapshot{Sold: 3}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Met(tt.obj, tt.snap); got != tt.want {
				t.Fatalf("Met=%v want=%v", got, tt.want)
			}
		})
	}
}

package travel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/content"
	"corridor-server/internal/gametime"
	"corridor-server/internal/groups"
	"corridor-server/internal/notify/notifytest"
	"corridor-server/internal/scheduler"
	"corridor-server/internal/shared/random"
	"corridor-server/internal/world"

	"github.com/google/uuid"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu        sync.Mutex
	chars     map[int64]*character.Character
	ships     map[int64]*character.Ship
	corridors map[int64]world.Corridor
	locations map[int64]world.Location
	sessions  map[int64]*Session
	held      map[int64]*HeldJob
	cancelled []int64
	hpDamage  map[int64]int
	hullLoss  map[int64]int
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		chars: map[int64]*character.Character{},
		ships: map[int64]*character.Ship{},
		corridors: map[int64]world.Corridor{
			10: {ID: 10, Name: "Kepler Run", Origin: 1, Destination: 2, TravelTime: 1200, FuelCost: 20, DangerLevel: 2, IsActive: true},
			11: {ID: 11, Name: "Vega Approach", Origin: 2, Destination: 1, TravelTime: 60, FuelCost: 5, CorridorType: "local_space", IsActive: true},
		},
		locations: map[int64]world.Location{
			1: {ID: 1, Name: "Kepler Station"},
			2: {ID: 2, Name: "Vega Outpost"},
		},
		sessions: map[int64]*Session{},
		held:     map[int64]*HeldJob{},
		hpDamage: map[int64]int{},
		hullLoss: map[int64]int{},
	}
}

func (f *fakeStore) addPilot(userID, location int64, status character.LocationStatus, fuel int) {
	loc := location
	f.chars[userID] = &character.Character{UserID: userID, GuildID: 7, HP: 100, MaxHP: 100, CurrentLocation: &loc, LocationStatus: status}
	f.ships[userID] = &character.Ship{ID: userID * 100, OwnerID: userID, CurrentFuel: fuel, FuelCapacity: 100, FuelEfficiency: 10, IsActive: true}
}

func (f *fakeStore) GetCharacter(_ context.Context, userID int64) (*character.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.chars[userID]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (f *fakeStore) GetActiveShip(_ context.Context, userID int64) (*character.Ship, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.ships[userID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) GroupMembers(_ context.Context, groupID int64) ([]character.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []character.Character
	for _, c := range f.chars {
		if c.GroupID != nil && *c.GroupID == groupID {
			out = append(out, *c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeStore) GetCorridor(_ context.Context, id int64) (*world.Corridor, error) {
	c, ok := f.corridors[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (f *fakeStore) GetLocation(_ context.Context, id int64) (*world.Location, error) {
	l, ok := f.locations[id]
	if !ok {
		return nil, nil
	}
	return &l, nil
}

func (f *fakeStore) StartTravel(_ context.Context, c world.Corridor, deps []Departure, channelID string, start time.Time) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Session
	for _, d := range deps {
		ch := f.chars[d.UserID]
		if ch.LocationStatus != character.StatusInSpace || !ch.At(c.Origin) {
			return nil, ErrNotInSpace
		}
		if f.ships[d.UserID].CurrentFuel < d.Fuel {
			return nil, ErrInsufficientFuel
		}
	}
	for _, d := range deps {
		ch := f.chars[d.UserID]
		ch.LocationStatus = character.StatusTraveling
		ch.CurrentLocation = nil
		f.ships[d.UserID].CurrentFuel -= d.Fuel

		f.nextID++
		corridorID, origin, dest := c.ID, c.Origin, c.Destination
		s := &Session{
			ID: f.nextID, UserID: d.UserID, GroupID: d.GroupID, CorridorID: &corridorID,
			Origin: &origin, Destination: &dest, StartTime: start, EndTime: start.Add(c.Duration()),
			Status: StatusTraveling,
		}
		if channelID != "" {
			channel := channelID
			s.ChannelID = &channel
		}
		f.sessions[s.ID] = s
		out = append(out, *s)
	}
	return out, nil
}

func (f *fakeStore) CompleteSession(_ context.Context, id int64) (*Arrival, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != StatusTraveling {
		return nil, nil
	}
	s.Status = StatusCompleted
	ch := f.chars[s.UserID]
	dest := *s.Destination
	ch.CurrentLocation = &dest
	ch.LocationStatus = character.StatusDocked

	a := &Arrival{Session: *s, GuildID: ch.GuildID}
	for _, other := range f.sessions {
		if other.Status == StatusTraveling && other.Channel() == s.Channel() && s.Channel() != "" {
			a.StillTravelling++
		}
	}
	return a, nil
}

func (f *fakeStore) Session(_ context.Context, id int64) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) ActiveSession(_ context.Context, userID int64) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.UserID == userID && s.Status == StatusTraveling {
			cp := *s
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) TravelingSessions(_ context.Context) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Session
	for _, s := range f.sessions {
		if s.Status == StatusTraveling {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) Passengers(_ context.Context, channelID string) ([]Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Session
	for _, s := range f.sessions {
		if s.Status == StatusTraveling && s.Channel() == channelID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (f *fakeStore) DamageHP(_ context.Context, userID int64, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hpDamage[userID] += amount
	ch := f.chars[userID]
	ch.HP = max(min(ch.HP, 1), ch.HP-amount)
	return nil
}

func (f *fakeStore) DamageHull(_ context.Context, userID int64, amount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hullLoss[userID] += amount
	return nil
}

func (f *fakeStore) Abort(_ context.Context, id int64, survived bool) (*Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[id]
	if !ok || s.Status != StatusTraveling {
		return nil, nil
	}
	s.Status = StatusCancelled
	ch := f.chars[s.UserID]
	if survived {
		origin := *s.Origin
		ch.CurrentLocation = &origin
		ch.LocationStatus = character.StatusInSpace
	} else {
		ch.HP = 0
		ch.LocationStatus = character.StatusDead
	}
	cp := *s
	return &cp, nil
}

func (f *fakeStore) SetStatus(_ context.Context, userID int64, from, to character.LocationStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := f.chars[userID]
	if ch == nil || ch.LocationStatus != from || ch.CurrentLocation == nil {
		return false, nil
	}
	ch.LocationStatus = to
	return true, nil
}

func (f *fakeStore) HeldStationaryJob(_ context.Context, userID, locationID int64) (*HeldJob, error) {
	j, ok := f.held[userID]
	if !ok || j.LocationID != locationID {
		return nil, nil
	}
	return j, nil
}

func (f *fakeStore) CancelJob(_ context.Context, jobID int64) error {
	f.cancelled = append(f.cancelled, jobID)
	return nil
}

type fakeVoter struct {
	opened []any
}

func (v *fakeVoter) Open(_ context.Context, groupID int64, voteType groups.VoteType, data any) (*groups.Session, error) {
	v.opened = append(v.opened, data)
	return &groups.Session{ID: uuid.New(), GroupID: groupID, VoteType: voteType}, nil
}

type harness struct {
	store    *fakeStore
	recorder *notifytest.Recorder
	timers   *scheduler.Timers
	service  *Service
}

func newHarness(t *testing.T, rng random.Source, catalog *content.Catalog, voter Voter) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	timers := scheduler.NewTimers(ctx, logger)
	t.Cleanup(func() {
		cancel()
		timers.Stop()
	})
	if catalog == nil {
		catalog = &content.Catalog{}
	}
	clock := gametime.NewClock(t0, t0, 1).WithNow(func() time.Time { return t0 })
	store := newFakeStore()
	rec := notifytest.NewRecorder()
	svc := NewService(store, rec, timers, catalog, clock, rng, Options{Voter: voter, CleanupDelay: 30 * time.Second}, logger)
	return &harness{store: store, recorder: rec, timers: timers, service: svc}
}

func TestTravelAndArrive(t *testing.T) {
	h := newHarness(t, random.Fixed{Float: 0.99}, nil, nil)
	h.store.addPilot(1, 1, character.StatusInSpace, 50)

	var hooked []Arrival
	h.service.OnArrival(func(_ context.Context, a Arrival) { hooked = append(hooked, a) })

	result, err := h.service.Travel(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("travel: %v", err)
	}
	if len(result.Sessions) != 1 {
		t.Fatalf("sessions=%d want=1", len(result.Sessions))
	}
	if !result.ArrivesAt.Equal(t0.Add(20 * time.Minute)) {
		t.Fatalf("arrives_at=%v", result.ArrivesAt)
	}
	if fuel := h.store.ships[1].CurrentFuel; fuel != 30 {
		t.Fatalf("fuel=%d want=30", fuel)
	}
	c := h.store.chars[1]
	if c.LocationStatus != character.StatusTraveling || c.CurrentLocation != nil {
		t.Fatalf("character=%+v", c)
	}
	// arrival plus three checkpoints on a twenty minute trip
	if n := h.timers.Pending(); n != 4 {
		t.Fatalf("pending timers=%d want=4", n)
	}
	if len(h.recorder.Revoked) != 1 || h.recorder.Revoked[0] != [2]int64{1, 1} {
		t.Fatalf("revoked=%v", h.recorder.Revoked)
	}

	id := result.Sessions[0].ID
	if err := h.service.Complete(context.Background(), id); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if err := h.service.Complete(context.Background(), id); err != nil {
		t.Fatalf("second complete: %v", err)
	}

	c = h.store.chars[1]
	if c.LocationStatus != character.StatusDocked || c.CurrentLocation == nil || *c.CurrentLocation != 2 {
		t.Fatalf("character=%+v", c)
	}
	if len(hooked) != 1 {
		t.Fatalf("arrival hooks=%d want=1", len(hooked))
	}
	if len(h.recorder.Cleanups) != 1 || h.recorder.Cleanups[0].Delay != 30*time.Second {
		t.Fatalf("cleanups=%+v", h.recorder.Cleanups)
	}
	if h.recorder.CountKind("travel_arrived") != 1 {
		t.Fatalf("kinds=%v", h.recorder.SentKinds())
	}
}

func TestTravelPreconditions(t *testing.T) {
	h := newHarness(t, random.Fixed{}, nil, nil)
	h.store.addPilot(1, 1, character.StatusDocked, 50)
	h.store.addPilot(2, 1, character.StatusInSpace, 10)
	h.store.addPilot(3, 2, character.StatusInSpace, 50)

	cases := []struct {
		name     string
		userID   int64
		corridor int64
		want     error
	}{
		{"docked", 1, 10, ErrAlreadyDocked},
		{"no fuel", 2, 10, ErrInsufficientFuel},
		{"missing corridor", 2, 99, ErrCorridorMissing},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.service.Travel(context.Background(), tc.userID, tc.corridor)
			if !errors.Is(err, tc.want) {
				t.Fatalf("err=%v want=%v", err, tc.want)
			}
		})
	}

	if _, err := h.service.Travel(context.Background(), 3, 10); err == nil {
		t.Fatal("expected wrong location error for a one-way corridor")
	}

	if _, err := h.service.Travel(context.Background(), 3, 11); err != nil {
		t.Fatalf("travel: %v", err)
	}
	if _, err := h.service.Travel(context.Background(), 3, 11); !errors.Is(err, ErrAlreadyTraveling) {
		t.Fatalf("err=%v want=%v", err, ErrAlreadyTraveling)
	}
}

func TestGroupTravelOpensVoteAndLeavesBehind(t *testing.T) {
	voter := &fakeVoter{}
	h := newHarness(t, random.Fixed{Float: 0.99}, nil, voter)
	group := int64(4)
	h.store.addPilot(1, 1, character.StatusInSpace, 50)
	h.store.addPilot(2, 1, character.StatusInSpace, 50)
	h.store.addPilot(3, 1, character.StatusInSpace, 5)
	for _, id := range []int64{1, 2, 3} {
		h.store.chars[id].GroupID = &group
	}

	result, err := h.service.Travel(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("travel: %v", err)
	}
	if result.VoteSession == "" || len(voter.opened) != 1 {
		t.Fatalf("expected a travel vote, result=%+v", result)
	}
	if h.store.chars[1].LocationStatus != character.StatusInSpace {
		t.Fatal("leader left before the vote resolved")
	}

	session := groups.Session{ID: uuid.New(), GroupID: group, VoteType: groups.VoteTravel}
	raw := `{"corridor_id":10,"origin":1,"leader_id":1}`
	session.Data = groups.Payload(raw)
	if err := h.service.ResolveVote(context.Background(), session, []int64{1, 2, 3}); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	for _, id := range []int64{1, 2} {
		if h.store.chars[id].LocationStatus != character.StatusTraveling {
			t.Fatalf("user %d status=%s want=traveling", id, h.store.chars[id].LocationStatus)
		}
	}
	if h.store.chars[3].LocationStatus != character.StatusInSpace {
		t.Fatalf("user 3 status=%s want=in_space", h.store.chars[3].LocationStatus)
	}
	if len(h.recorder.TransitChannels) != 1 {
		t.Fatalf("transit channels=%d want=1", len(h.recorder.TransitChannels))
	}
	if len(h.recorder.Direct) != 1 || h.recorder.Direct[0].UserID != 3 {
		t.Fatalf("direct=%+v", h.recorder.Direct)
	}
}

func TestCorridorEventDamagesPassengers(t *testing.T) {
	catalog := &content.Catalog{CorridorEvents: []content.CorridorEvent{
		{Name: "Radiation Spike", Description: "Radiation floods the hull.", Effect: content.EffectHP, Min: 4, Max: 8},
	}}
	h := newHarness(t, random.Fixed{Int: 0, Float: 0.0}, catalog, nil)
	h.store.addPilot(1, 1, character.StatusInSpace, 50)

	result, err := h.service.Travel(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("travel: %v", err)
	}
	leg := result.Corridor
	if err := h.service.corridorEvent(context.Background(), leg, h.recorder.TransitChannels[0], []int64{result.Sessions[0].ID}); err != nil {
		t.Fatalf("event: %v", err)
	}
	if got := h.store.hpDamage[1]; got != 4 {
		t.Fatalf("damage=%d want=4", got)
	}
	if h.recorder.CountKind("corridor_event") != 1 {
		t.Fatalf("kinds=%v", h.recorder.SentKinds())
	}
}

func TestCorridorEventNeedsDanger(t *testing.T) {
	catalog := &content.Catalog{CorridorEvents: []content.CorridorEvent{
		{Name: "Static Fog", Effect: content.EffectNone},
	}}
	h := newHarness(t, random.Fixed{Float: 0.25}, catalog, nil)
	h.store.addPilot(1, 1, character.StatusInSpace, 50)

	result, err := h.service.Travel(context.Background(), 1, 10)
	if err != nil {
		t.Fatalf("travel: %v", err)
	}
	// danger 2 gives a 20% chance, 0.25 misses
	if err := h.service.corridorEvent(context.Background(), result.Corridor, h.recorder.TransitChannels[0], []int64{result.Sessions[0].ID}); err != nil {
		t.Fatalf("event: %v", err)
	}
	if h.recorder.CountKind("corridor_event") != 0 {
		t.Fatalf("kinds=%v", h.recorder.SentKinds())
	}
}

func TestEmergencyExit(t *testing.T) {
	cases := []struct {
		name     string
		roll     int
		survived bool
	}{
		// danger 2 survives on 30 or less
		{"survives", 29, true},
		{"dies", 30, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, random.Fixed{Int: tc.roll, Float: 0.99}, nil, nil)
			h.store.addPilot(1, 1, character.StatusInSpace, 50)
			if _, err := h.service.Travel(context.Background(), 1, 10); err != nil {
				t.Fatalf("travel: %v", err)
			}

			result, err := h.service.EmergencyExit(context.Background(), 1)
			if err != nil {
				t.Fatalf("exit: %v", err)
			}
			if result.Survived != tc.survived || result.SurvivalOdds != 30 {
				t.Fatalf("result=%+v", result)
			}
			c := h.store.chars[1]
			if tc.survived && (c.LocationStatus != character.StatusInSpace || *c.CurrentLocation != 1) {
				t.Fatalf("character=%+v", c)
			}
			if !tc.survived && c.LocationStatus != character.StatusDead {
				t.Fatalf("character=%+v", c)
			}
			if _, err := h.service.EmergencyExit(context.Background(), 1); !errors.Is(err, ErrNotTraveling) {
				t.Fatalf("err=%v want=%v", err, ErrNotTraveling)
			}
		})
	}
}

func TestEmergencyExitLocalSpace(t *testing.T) {
	h := newHarness(t, random.Fixed{}, nil, nil)
	h.store.addPilot(1, 2, character.StatusInSpace, 50)
	if _, err := h.service.Travel(context.Background(), 1, 11); err != nil {
		t.Fatalf("travel: %v", err)
	}
	if _, err := h.service.EmergencyExit(context.Background(), 1); !errors.Is(err, ErrLocalSpace) {
		t.Fatalf("err=%v want=%v", err, ErrLocalSpace)
	}
}

func TestUndockWithHeldJob(t *testing.T) {
	h := newHarness(t, random.Fixed{}, nil, nil)
	h.store.addPilot(1, 1, character.StatusDocked, 50)
	h.store.held[1] = &HeldJob{JobID: 55, Title: "Recalibrate sensors", LocationID: 1}

	result, err := h.service.Undock(context.Background(), 1, false)
	if err != nil {
		t.Fatalf("undock: %v", err)
	}
	if result.Undocked || result.PendingJob == nil || result.PendingJob.JobID != 55 {
		t.Fatalf("result=%+v", result)
	}
	if h.store.chars[1].LocationStatus != character.StatusDocked {
		t.Fatal("undocked without confirmation")
	}

	result, err = h.service.Undock(context.Background(), 1, true)
	if err != nil {
		t.Fatalf("confirmed undock: %v", err)
	}
	if !result.Undocked || !result.JobCancelled {
		t.Fatalf("result=%+v", result)
	}
	if len(h.store.cancelled) != 1 || h.store.cancelled[0] != 55 {
		t.Fatalf("cancelled=%v", h.store.cancelled)
	}

	if err := h.service.Dock(context.Background(), 1); err != nil {
		t.Fatalf("dock: %v", err)
	}
	if err := h.service.Dock(context.Background(), 1); err == nil {
		t.Fatal("expected error docking twice")
	}
}

func TestResumeCompletesOverdueSessions(t *testing.T) {
	h := newHarness(t, random.Fixed{}, nil, nil)
	h.store.addPilot(1, 1, character.StatusTraveling, 50)
	h.store.addPilot(2, 1, character.StatusTraveling, 50)

	dest := int64(2)
	h.store.sessions[1] = &Session{ID: 1, UserID: 1, Destination: &dest, EndTime: t0.Add(-time.Minute), Status: StatusTraveling}
	h.store.sessions[2] = &Session{ID: 2, UserID: 2, Destination: &dest, EndTime: t0.Add(time.Hour), Status: StatusTraveling}

	if err := h.service.Resume(context.Background()); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if h.store.sessions[1].Status != StatusCompleted {
		t.Fatalf("overdue status=%s", h.store.sessions[1].Status)
	}
	if h.store.sessions[2].Status != StatusTraveling {
		t.Fatalf("in-flight status=%s", h.store.sessions[2].Status)
	}
	if n := h.timers.Pending(); n != 1 {
		t.Fatalf("pending=%d want=1", n)
	}
}

func TestCheckpoints(t *testing.T) {
	cases := []struct {
		name     string
		corridor world.Corridor
		want     []time.Duration
	}{
		{"long haul", world.Corridor{TravelTime: 1200}, []time.Duration{5 * time.Minute, 10 * time.Minute, 15 * time.Minute}},
		{"five minutes", world.Corridor{TravelTime: 300}, []time.Duration{75 * time.Second}},
		{"ten minutes", world.Corridor{TravelTime: 600}, []time.Duration{150 * time.Second, 300 * time.Second}},
		{"too short", world.Corridor{TravelTime: 60}, nil},
		{"local space", world.Corridor{Name: "Vega Approach", TravelTime: 1200}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Checkpoints(tc.corridor)
			if len(got) != len(tc.want) {
				t.Fatalf("checkpoints=%v want=%v", got, tc.want)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("checkpoints=%v want=%v", got, tc.want)
				}
			}
		})
	}
}

func TestSurvivalChance(t *testing.T) {
	for danger, want := range map[int]int{0: 50, 2: 30, 4: 10, 5: 10} {
		if got := SurvivalChance(danger); got != want {
			t.Fatalf("danger %d: chance=%d want=%d", danger, got, want)
		}
	}
}

package endgame

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"corridor-server/internal/gametime"
	"corridor-server/internal/news"
	"corridor-server/internal/notify/notifytest"
	apperrors "corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/random"
	"corridor-server/internal/world"
)

var t0 = time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)

type fakeStore struct {
	mu         sync.Mutex
	cfg        *Config
	activated  bool
	warnings   map[int64]time.Time
	occupants  map[int64][]Occupant
	names      map[int64]string
	clearCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{warnings: map[int64]time.Time{}, occupants: map[int64][]Occupant{}, names: map[int64]string{}}
}

func (f *fakeStore) Config(context.Context) (*Config, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg == nil {
		return nil, nil
	}
	cp := *f.cfg
	return &cp, nil
}

func (f *fakeStore) Create(_ context.Context, cfg Config) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cfg != nil {
		return false, nil
	}
	f.cfg = &cfg
	return true, nil
}

func (f *fakeStore) Activate(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.activated = true
	if f.cfg != nil {
		f.cfg.IsActive = true
	}
	return nil
}

func (f *fakeStore) Clear(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cfg = nil
	f.warnings = map[int64]time.Time{}
	f.clearCalls++
	return nil
}

func (f *fakeStore) Warn(_ context.Context, locationID int64, _, evacuateAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.warnings[locationID] = evacuateAt
	return nil
}

func (f *fakeStore) Occupants(_ context.Context, locationID int64) ([]Occupant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.occupants[locationID], nil
}

func (f *fakeStore) Names(_ context.Context, ids []int64) (map[int64]string, error) {
	out := map[int64]string{}
	for _, id := range ids {
		out[id] = f.names[id]
	}
	return out, nil
}

type fakeWorld struct {
	mu        sync.Mutex
	locations map[int64]world.Location
	corridors map[int64]world.Corridor
	// travellers maps a corridor to the users in flight on it.
	travellers map[int64][]int64
	store      *fakeStore
	flags      map[string]bool
	flagLog    []bool
	destroyed  []string
}

func newFakeWorld(store *fakeStore) *fakeWorld {
	return &fakeWorld{
		locations:  map[int64]world.Location{},
		corridors:  map[int64]world.Corridor{},
		travellers: map[int64][]int64{},
		store:      store,
		flags:      map[string]bool{},
	}
}

func (w *fakeWorld) ListLocations(context.Context) ([]world.Location, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]world.Location, 0, len(w.locations))
	for _, l := range w.locations {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (w *fakeWorld) ListCorridors(context.Context) ([]world.Corridor, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]world.Corridor, 0, len(w.corridors))
	for _, c := range w.corridors {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (w *fakeWorld) Counts(context.Context) (int, int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.locations), len(w.corridors), nil
}

func (w *fakeWorld) DestroyCorridor(_ context.Context, id int64) (*world.DestructionReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	report := &world.DestructionReport{Killed: w.travellers[id]}
	if len(report.Killed) > 0 {
		report.TransitChannels = []string{"transit-on-corridor"}
	}
	delete(w.travellers, id)
	delete(w.corridors, id)
	w.destroyed = append(w.destroyed, "corridor")
	return report, nil
}

func (w *fakeWorld) DestroyLocation(_ context.Context, id int64) (*world.DestructionReport, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	report := &world.DestructionReport{}
	w.store.mu.Lock()
	for _, o := range w.store.occupants[id] {
		report.Killed = append(report.Killed, o.UserID)
	}
	delete(w.store.occupants, id)
	w.store.mu.Unlock()
	for cid, c := range w.corridors {
		if c.Origin == id || c.Destination == id {
			report.Killed = append(report.Killed, w.travellers[cid]...)
			delete(w.corridors, cid)
		}
	}
	delete(w.locations, id)
	w.destroyed = append(w.destroyed, "location")
	return report, nil
}

func (w *fakeWorld) SetFlag(_ context.Context, name string, value bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flags[name] = value
	w.flagLog = append(w.flagLog, value)
	return nil
}

type fakeNewsroom struct {
	mu       sync.Mutex
	requests []news.Request
}

func (n *fakeNewsroom) QueueAll(_ context.Context, req news.Request) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests = append(n.requests, req)
	return 1, nil
}

func (n *fakeNewsroom) titles() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.requests))
	for _, r := range n.requests {
		out = append(out, r.Title)
	}
	return out
}

func (n *fakeNewsroom) count(category string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, r := range n.requests {
		if r.Category == category {
			c++
		}
	}
	return c
}

type harness struct {
	store    *fakeStore
	world    *fakeWorld
	news     *fakeNewsroom
	recorder *notifytest.Recorder
	service  *Service

	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newHarness(t *testing.T, rng random.Source) *harness {
	t.Helper()
	h := &harness{news: &fakeNewsroom{}, recorder: notifytest.NewRecorder(), now: t0}
	h.store = newFakeStore()
	h.world = newFakeWorld(h.store)
	clock := gametime.NewClock(t0, t0, 1).WithNow(func() time.Time {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.now
	})
	opts := Options{Sleep: h.sleep}
	h.service = NewService(h.store, h.world, h.news, h.recorder, []string{"void incursion"},
		clock, rng, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

// sleep advances the fake clock instantly.
func (h *harness) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sleeps = append(h.sleeps, d)
	h.now = h.now.Add(d)
	return nil
}

func (h *harness) addLocation(id int64, name string, kind world.LocationType) {
	h.world.locations[id] = world.Location{ID: id, Name: name, LocationType: kind}
}

func (h *harness) addCorridor(id, origin, dest int64) {
	h.world.corridors[id] = world.Corridor{ID: id, Name: "Route", Origin: origin, Destination: dest, IsActive: true}
}

func TestDirectorCollapsesWorldToOneLocation(t *testing.T) {
	// Pick always takes index 0. Floats alternate corridor roll and news roll
	// while corridors remain, then only the news roll is drawn.
	rng := &random.Sequence{Ints: []int{0}, Floats: []float64{0.1, 0.9, 0.1, 0.9, 0.1, 0.9}}
	h := newHarness(t, rng)
	h.addLocation(1, "Haven", world.LocationColony)
	h.addLocation(2, "Kepler Station", world.LocationSpaceStation)
	h.addLocation(3, "Dust Outpost", world.LocationOutpost)
	h.addCorridor(20, 1, 2)
	h.addCorridor(21, 2, 3)
	h.addCorridor(22, 1, 3)
	h.world.travellers[20] = []int64{7}
	h.store.occupants[2] = []Occupant{{UserID: 8, GuildID: 99, Name: "Vex"}}
	h.store.names[7] = "Ari"
	h.store.names[8] = "Vex"

	ctx := context.Background()
	if _, err := h.service.Configure(ctx, SetupRequest{StartDelay: "5m", Length: "10m"}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	cfg, _ := h.store.Config(ctx)
	h.service.direct(ctx, *cfg)

	want := []time.Duration{
		5 * time.Minute,
		2 * time.Minute, 2 * time.Minute, 2 * time.Minute,
		2 * time.Minute, 5 * time.Minute,
		2 * time.Minute, 5 * time.Minute,
		time.Minute,
	}
	if len(h.sleeps) != len(want) {
		t.Fatalf("sleeps=%v want=%v", h.sleeps, want)
	}
	for i := range want {
		if h.sleeps[i] != want[i] {
			t.Fatalf("sleep[%d]=%v want=%v (all=%v)", i, h.sleeps[i], want[i], h.sleeps)
		}
	}

	wantOrder := []string{"corridor", "corridor", "corridor", "location", "location", "location"}
	if len(h.world.destroyed) != len(wantOrder) {
		t.Fatalf("destroyed=%v want=%v", h.world.destroyed, wantOrder)
	}
	for i := range wantOrder {
		if h.world.destroyed[i] != wantOrder[i] {
			t.Fatalf("destroyed=%v want=%v", h.world.destroyed, wantOrder)
		}
	}
	if len(h.world.locations) != 0 || len(h.world.corridors) != 0 {
		t.Fatalf("world left=%d locations %d corridors", len(h.world.locations), len(h.world.corridors))
	}

	if !h.store.activated {
		t.Fatal("endgame never marked active")
	}
	if h.store.cfg != nil {
		t.Fatal("endgame config not cleared after finale")
	}
	if _, ok := h.store.warnings[2]; ok {
		t.Fatal("warnings survive a clear")
	}
	if got := h.world.flagLog; len(got) != 2 || !got[0] || got[1] {
		t.Fatalf("flag log=%v want [true false]", got)
	}

	if n := h.recorder.CountKind("character_death"); n != 2 {
		t.Fatalf("death notices=%d want=2", n)
	}
	if n := h.recorder.CountKind("evacuation_warning"); n != 1 {
		t.Fatalf("evacuation warnings=%d want=1", n)
	}
	if len(h.recorder.Cleanups) != 1 {
		t.Fatalf("transit cleanups=%d want=1", len(h.recorder.Cleanups))
	}
	if n := h.news.count(news.CategoryObituary); n != 2 {
		t.Fatalf("obituaries=%d want=2", n)
	}
	if n := h.news.count(news.CategoryCorridorCollapse) + h.news.count(news.CategoryLocationLost); n != 0 {
		t.Fatalf("destruction bulletins=%d want=0 with rolls above 0.45", n)
	}
	titles := h.news.titles()
	if titles[0] != "GALACTIC EMERGENCY PROTOCOL ACTIVATED" || titles[1] != "GALACTIC APOCALYPSE COMMENCED" || titles[len(titles)-1] != "GAME OVER" {
		t.Fatalf("news titles=%v", titles)
	}
}

func TestDirectorWithSingleLocationGoesStraightToFinale(t *testing.T) {
	h := newHarness(t, random.Fixed{})
	h.addLocation(1, "Last Light", world.LocationColony)
	h.store.occupants[1] = []Occupant{{UserID: 3, GuildID: 5, Name: "Juno"}}
	h.store.cfg = &Config{StartTime: t0, LengthMinutes: 30, IsActive: true}

	h.service.direct(context.Background(), *h.store.cfg)

	if len(h.sleeps) != 1 || h.sleeps[0] != time.Minute {
		t.Fatalf("sleeps=%v want=[1m]", h.sleeps)
	}
	if len(h.world.destroyed) != 1 || h.world.destroyed[0] != "location" {
		t.Fatalf("destroyed=%v", h.world.destroyed)
	}
	if h.recorder.CountKind("final_transmission") != 1 || h.recorder.CountKind("character_death") != 1 {
		t.Fatalf("sent=%v direct=%d", h.recorder.SentKinds(), len(h.recorder.Direct))
	}
	for _, title := range h.news.titles() {
		if title == "GALACTIC APOCALYPSE COMMENCED" {
			t.Fatal("resumed endgame announced its start again")
		}
	}
}

func TestLocationDestructionPrefersNonColonies(t *testing.T) {
	rng := &random.Sequence{Ints: []int{0}, Floats: []float64{0.9}}
	h := newHarness(t, rng)
	h.addLocation(1, "Colony A", world.LocationColony)
	h.addLocation(2, "Colony B", world.LocationColony)
	h.addLocation(3, "Gate", world.LocationGate)

	if err := h.service.destroyOne(context.Background(), "void incursion"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, ok := h.world.locations[3]; ok {
		t.Fatal("non-colony survived while colonies were available")
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != 5*time.Minute {
		t.Fatalf("sleeps=%v want=[5m]", h.sleeps)
	}
}

func TestEmptyLocationStillWaitsOutEvacuation(t *testing.T) {
	rng := &random.Sequence{Ints: []int{0}, Floats: []float64{0.9}}
	h := newHarness(t, rng)
	h.service.opts.Evacuation = 90 * time.Second
	h.addLocation(1, "Haven", world.LocationColony)
	h.addLocation(2, "Dust Outpost", world.LocationOutpost)

	// a player docking after the pick is still inside when the window closes
	h.service.opts.Sleep = func(ctx context.Context, d time.Duration) error {
		if len(h.world.destroyed) != 0 {
			t.Fatalf("destroyed=%v before the evacuation window", h.world.destroyed)
		}
		h.store.mu.Lock()
		h.store.occupants[2] = []Occupant{{UserID: 4, GuildID: 9, Name: "Late"}}
		h.store.names[4] = "Late"
		h.store.mu.Unlock()
		return h.sleep(ctx, d)
	}

	if err := h.service.destroyOne(context.Background(), "void incursion"); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if len(h.sleeps) != 1 || h.sleeps[0] != 90*time.Second {
		t.Fatalf("sleeps=%v want=[1m30s]", h.sleeps)
	}
	if _, ok := h.world.locations[2]; ok {
		t.Fatal("outpost survived")
	}
	if n := h.recorder.CountKind("evacuation_warning"); n != 0 {
		t.Fatalf("evacuation warnings=%d want=0 with nobody present", n)
	}
	if n := h.recorder.CountKind("character_death"); n != 1 {
		t.Fatalf("death notices=%d want=1 for the late arrival", n)
	}
	if _, ok := h.store.warnings[2]; ok {
		t.Fatal("evacuation recorded for an empty location")
	}
	for _, title := range h.news.titles() {
		if title == "IMMEDIATE EVACUATION - DUST OUTPOST" {
			t.Fatal("evacuation bulletin for an empty location")
		}
	}
}

func TestConfigureCancelAndStatus(t *testing.T) {
	h := newHarness(t, random.Fixed{})
	h.addLocation(1, "A", world.LocationColony)
	h.addLocation(2, "B", world.LocationOutpost)
	h.addCorridor(10, 1, 2)
	ctx := context.Background()

	if _, err := h.service.Status(ctx); err != ErrNotConfigured {
		t.Fatalf("status err=%v want=%v", err, ErrNotConfigured)
	}
	if err := h.service.Cancel(ctx); err != ErrNotConfigured {
		t.Fatalf("cancel err=%v want=%v", err, ErrNotConfigured)
	}

	for _, req := range []SetupRequest{{StartDelay: "4m"}, {StartDelay: "soon"}, {StartDelay: "10m", Length: "1m"}} {
		if _, err := h.service.Configure(ctx, req); apperrors.GetType(err) != apperrors.ErrorTypeValidation {
			t.Fatalf("configure %+v err=%v want validation", req, err)
		}
	}

	st, err := h.service.Configure(ctx, SetupRequest{StartDelay: "1h"})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if st.Phase != PhaseCountdown || st.Config.LengthMinutes != 2*24*60 || st.Duration != "2d0h0m" {
		t.Fatalf("status=%+v", st)
	}
	if st.LocationsLeft != 2 || st.CorridorsLeft != 1 || st.DestructionEvery != "30m0s" {
		t.Fatalf("status=%+v", st)
	}
	if st.DirectorRunning {
		t.Fatal("director launched before the service started")
	}
	if _, err := h.service.Configure(ctx, SetupRequest{StartDelay: "1h"}); err != ErrConfigured {
		t.Fatalf("second configure err=%v want=%v", err, ErrConfigured)
	}

	h.mu.Lock()
	h.now = t0.Add(90 * time.Minute)
	h.mu.Unlock()
	if st, _ = h.service.Status(ctx); st.Phase != PhaseActive || st.Remaining != "47h30m0s" {
		t.Fatalf("active status=%+v", st)
	}

	if err := h.service.Cancel(ctx); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if h.store.cfg != nil || h.world.flags[world.FlagNPCSpawnsSuppressed] {
		t.Fatal("cancel left endgame state behind")
	}
	if titles := h.news.titles(); titles[len(titles)-1] != "EMERGENCY PROTOCOL DEACTIVATED" {
		t.Fatalf("news titles=%v", titles)
	}
}

func TestCancelStopsRunningDirector(t *testing.T) {
	h := newHarness(t, random.Fixed{})
	h.service.opts.Sleep = func(ctx context.Context, d time.Duration) error {
		<-ctx.Done()
		return ctx.Err()
	}
	h.addLocation(1, "A", world.LocationColony)
	h.addLocation(2, "B", world.LocationOutpost)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.service.Start(ctx)
	defer h.service.Stop()

	if _, err := h.service.Configure(ctx, SetupRequest{StartDelay: "5m", Length: "30"}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !h.service.Running() {
		t.Fatal("director not running after configure")
	}
	if err := h.service.Cancel(ctx); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if h.service.Running() {
		t.Fatal("director still running after cancel")
	}
	if len(h.world.destroyed) != 0 {
		t.Fatalf("destroyed=%v during countdown", h.world.destroyed)
	}
}

func TestStartResumesStoredEndgame(t *testing.T) {
	h := newHarness(t, random.Fixed{})
	block := make(chan struct{})
	h.service.opts.Sleep = func(ctx context.Context, d time.Duration) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-block:
			return nil
		}
	}
	h.store.cfg = &Config{StartTime: t0.Add(time.Hour), LengthMinutes: 60}

	ctx, cancel := context.WithCancel(context.Background())
	h.service.Start(ctx)
	if !h.service.Running() {
		t.Fatal("stored endgame not resumed")
	}
	cancel()
	h.service.Stop()
	if h.service.Running() {
		t.Fatal("director survived stop")
	}
	if h.store.cfg == nil {
		t.Fatal("shutdown cleared the stored endgame")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"5m", 5},
		{"4m", -1},
		{"1d2h30m", 1590},
		{"", -1},
		{"30", 30},
		{"3", -1},
		{"2h", 120},
		{"1d", 1440},
		{"0d0h5m", 5},
		{"1h1d", -1},
		{"abc", -1},
		{" 10M ", 10},
	}
	for _, tt := range tests {
		if got := ParseDuration(tt.in); got != tt.want {
			t.Errorf("ParseDuration(%q)=%d want=%d", tt.in, got, tt.want)
		}
	}
}

func TestTempo(t *testing.T) {
	tests := []struct {
		length, events int
		want           time.Duration
	}{
		{10, 5, 2 * time.Minute},
		{10, 50, 2 * time.Minute},
		{600, 5, 30 * time.Minute},
		{60, 8, 450 * time.Second},
		{60, 0, 10 * time.Minute},
	}
	for _, tt := range tests {
		if got := Tempo(tt.length, tt.events); got != tt.want {
			t.Errorf("Tempo(%d,%d)=%v want=%v", tt.length, tt.events, got, tt.want)
		}
	}
}

// Package endgame runs the scheduled apocalypse: after a countdown it
// destroys corridors and locations at a steady tempo until one location is
// left, then ends the game there.
package endgame

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"corridor-server/internal/gametime"
	"corridor-server/internal/news"
	"corridor-server/internal/notify"
	"corridor-server/internal/scheduler"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/random"
	"corridor-server/internal/world"
)

var (
	ErrConfigured    = errors.Precondition(errors.ReasonAlreadyActive, "an endgame is already configured, cancel it first")
	ErrNotConfigured = errors.Precondition(errors.ReasonNoActive, "no endgame is configured")
)

const (
	corridorChance  = 0.6
	newsChance      = 0.45
	fallbackFlavour = "cosmic collapse"
)

type Store interface {
	Config(ctx context.Context) (*Config, error)
	Create(ctx context.Context, cfg Config) (bool, error)
	Activate(ctx context.Context) error
	Clear(ctx context.Context) error
	Warn(ctx context.Context, locationID int64, warnedAt, evacuateAt time.Time) error
	Occupants(ctx context.Context, locationID int64) ([]Occupant, error)
	Names(ctx context.Context, userIDs []int64) (map[int64]string, error)
}

type World interface {
	ListLocations(ctx context.Context) ([]world.Location, error)
	ListCorridors(ctx context.Context) ([]world.Corridor, error)
	Counts(ctx context.Context) (locations, corridors int, err error)
	DestroyCorridor(ctx context.Context, corridorID int64) (*world.DestructionReport, error)
	DestroyLocation(ctx context.Context, locationID int64) (*world.DestructionReport, error)
	SetFlag(ctx context.Context, name string, value bool) error
}

type Newsroom interface {
	QueueAll(ctx context.Context, req news.Request) (int, error)
}

type Options struct {
	Evacuation   time.Duration
	FinaleDelay  time.Duration
	ErrorBackoff time.Duration
	// Sleep defaults to scheduler.Sleep.
	Sleep func(ctx context.Context, d time.Duration) error
}

type Service struct {
	store    Store
	world    World
	news     Newsroom
	notifier notify.Notifier
	flavours []string
	clock    *gametime.Clock
	rng      random.Source
	opts     Options
	logger   *slog.Logger

	mu     sync.Mutex
	base   context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewService(store Store, w World, newsroom Newsroom, notifier notify.Notifier, flavours []string,
	clock *gametime.Clock, rng random.Source, opts Options, logger *slog.Logger) *Service {
	if opts.Evacuation <= 0 {
		opts.Evacuation = 5 * time.Minute
	}
	if opts.FinaleDelay <= 0 {
		opts.FinaleDelay = time.Minute
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = time.Minute
	}
	if opts.Sleep == nil {
		opts.Sleep = scheduler.Sleep
	}
	return &Service{
		store:    store,
		world:    w,
		news:     newsroom,
		notifier: notifier,
		flavours: flavours,
		clock:    clock,
		rng:      rng,
		opts:     opts,
		logger:   logger,
	}
}

// Run attaches the service to the process lifetime, resumes a stored
// endgame and blocks until ctx is done.
func (s *Service) Run(ctx context.Context) {
	s.Start(ctx)
	<-ctx.Done()
	s.Stop()
}

// Start lets Configure launch directors under ctx and resumes any endgame
// already stored.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	s.base = ctx
	s.mu.Unlock()

	if err := s.Resume(ctx); err != nil {
		s.logger.Error("Failed to resume endgame", "component", "endgame_service", "error", err)
	}
}

func (s *Service) Stop() {
	s.stopDirector()
	s.mu.Lock()
	s.base = nil
	s.mu.Unlock()
}

func (s *Service) Resume(ctx context.Context) error {
	cfg, err := s.store.Config(ctx)
	if err != nil {
		return err
	}
	if cfg == nil {
		return nil
	}
	if s.launch(*cfg) {
		s.logger.Info("Endgame director resumed", "component", "endgame_service",
			"start_time", cfg.StartTime, "is_active", cfg.IsActive)
	}
	return nil
}

// Running reports whether a director goroutine is live.
func (s *Service) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done != nil
}

func (s *Service) launch(cfg Config) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.base == nil || s.done != nil {
		return false
	}
	ctx, cancel := context.WithCancel(s.base)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		defer cancel()
		s.direct(ctx, cfg)

		s.mu.Lock()
		if s.done == done {
			s.cancel, s.done = nil, nil
		}
		s.mu.Unlock()
	}()
	return true
}

func (s *Service) stopDirector() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Configure schedules the apocalypse start_delay from now.
func (s *Service) Configure(ctx context.Context, req SetupRequest) (*Status, error) {
	logger := s.logger.With("component", "endgame_service", "operation", "configure")

	delay := ParseDuration(req.StartDelay)
	if delay < 0 {
		return nil, errors.Validationf("invalid start_delay %q, use a format like 1d2h30m (minimum %d minutes)", req.StartDelay, MinMinutes)
	}
	lengthText := req.Length
	if strings.TrimSpace(lengthText) == "" {
		lengthText = DefaultLength
	}
	length := ParseDuration(lengthText)
	if length < 0 {
		return nil, errors.Validationf("invalid length %q, use a format like 2d0h0m (minimum %d minutes)", req.Length, MinMinutes)
	}

	now := s.clock.Now()
	cfg := Config{
		StartTime:     now.Add(time.Duration(delay) * time.Minute),
		LengthMinutes: length,
		CreatedBy:     req.CreatedBy,
		CreatedAt:     now,
	}
	created, err := s.store.Create(ctx, cfg)
	if err != nil {
		return nil, errors.WrapInternal("failed to store endgame config", err)
	}
	if !created {
		return nil, ErrConfigured
	}

	s.broadcast(ctx, news.CategoryApocalypse, "GALACTIC EMERGENCY PROTOCOL ACTIVATED",
		fmt.Sprintf("ATTENTION ALL CITIZENS\n\nThe Galactic Monitoring Authority has detected unprecedented cosmic anomalies "+
			"throughout known space. All residents are advised to monitor emergency frequencies.\n\n"+
			"Anomaly manifestation expected: %s\nAdvisory level: CRITICAL\n\nStay vigilant. Stay alive.",
			gametime.FormatInGame(s.clock.ToInGame(cfg.StartTime))), nil, false)

	s.launch(cfg)
	logger.Info("Endgame configured", "start_delay_minutes", delay, "length_minutes", length)
	return s.status(ctx, cfg)
}

// Cancel stops the director and clears every trace of the endgame.
func (s *Service) Cancel(ctx context.Context) error {
	cfg, err := s.store.Config(ctx)
	if err != nil {
		return errors.WrapInternal("failed to load endgame config", err)
	}
	if cfg == nil {
		return ErrNotConfigured
	}

	s.stopDirector()
	if err := s.store.Clear(ctx); err != nil {
		return errors.WrapInternal("failed to clear endgame", err)
	}
	if err := s.world.SetFlag(ctx, world.FlagNPCSpawnsSuppressed, false); err != nil {
		return errors.WrapInternal("failed to lift npc spawn suppression", err)
	}

	s.broadcast(ctx, news.CategoryBreaking, "EMERGENCY PROTOCOL DEACTIVATED",
		"The Galactic Monitoring Authority reports that cosmic anomalies have stabilized. "+
			"Emergency protocols have been deactivated. Normal operations may resume.", nil, false)
	s.logger.Info("Endgame cancelled", "component", "endgame_service")
	return nil
}

func (s *Service) Status(ctx context.Context) (*Status, error) {
	cfg, err := s.store.Config(ctx)
	if err != nil {
		return nil, errors.WrapInternal("failed to load endgame config", err)
	}
	if cfg == nil {
		return nil, ErrNotConfigured
	}
	return s.status(ctx, *cfg)
}

func (s *Service) status(ctx context.Context, cfg Config) (*Status, error) {
	locations, corridors, err := s.world.Counts(ctx)
	if err != nil {
		return nil, errors.WrapInternal("failed to count world", err)
	}

	now := s.clock.Now()
	st := &Status{
		Config:          cfg,
		Duration:        FormatMinutes(cfg.LengthMinutes),
		LocationsLeft:   locations,
		CorridorsLeft:   corridors,
		DirectorRunning: s.Running(),
	}
	switch {
	case now.Before(cfg.StartTime):
		st.Phase = PhaseCountdown
		st.StartsIn = cfg.StartTime.Sub(now).Round(time.Second).String()
		st.DestructionEvery = Tempo(cfg.LengthMinutes, max(0, locations-1)+corridors).String()
	case now.Before(cfg.EndTime()):
		st.Phase = PhaseActive
		st.Remaining = cfg.EndTime().Sub(now).Round(time.Second).String()
	default:
		st.Phase = PhaseOvertime
	}
	return st, nil
}

// direct is the director goroutine. It returns early only when ctx is done;
// the stored config then lets Resume pick up where it stopped.
func (s *Service) direct(ctx context.Context, cfg Config) {
	logger := s.logger.With("component", "endgame_director")

	if wait := cfg.StartTime.Sub(s.clock.Now()); wait > 0 {
		logger.Info("Endgame countdown running", "starts_in", wait.String())
		if s.opts.Sleep(ctx, wait) != nil {
			return
		}
	}

	flavour := fallbackFlavour
	if len(s.flavours) > 0 {
		flavour = random.Pick(s.rng, s.flavours)
	}

	if !cfg.IsActive {
		if err := s.store.Activate(ctx); err != nil {
			logger.Error("Failed to mark endgame active", "error", err)
		}
		s.broadcast(ctx, news.CategoryApocalypse, "GALACTIC APOCALYPSE COMMENCED",
			fmt.Sprintf("EMERGENCY BROADCAST\n\nCatastrophic %s detected across multiple sectors. "+
				"Reality destabilization in progress.\n\nStatus: galactic infrastructure collapse imminent\n"+
				"Advisory: seek immediate shelter and monitor emergency frequencies\n\n"+
				"This is not a drill. The end times have begun.", flavour), nil, true)
	}
	if err := s.world.SetFlag(ctx, world.FlagNPCSpawnsSuppressed, true); err != nil {
		logger.Error("Failed to suppress npc spawns", "error", err)
	}

	locations, corridors, ok := s.counts(ctx, logger)
	if !ok {
		return
	}
	remaining := cfg.EndTime().Sub(s.clock.Now())
	lengthLeft := max(0, int(math.Ceil(remaining.Minutes())))
	tempo := Tempo(lengthLeft, max(0, locations-1)+corridors)
	logger.Info("Endgame director engaged", "locations", locations, "corridors", corridors,
		"flavour", flavour, "destruction_every", tempo.String())

	for locations > 1 {
		if s.opts.Sleep(ctx, tempo) != nil {
			return
		}
		if err := s.destroyOne(ctx, flavour); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error("Destruction event failed", "error", err)
			if s.opts.Sleep(ctx, s.opts.ErrorBackoff) != nil {
				return
			}
		}
		if locations, _, ok = s.counts(ctx, logger); !ok {
			return
		}
	}

	s.finale(ctx, logger)
}

func (s *Service) counts(ctx context.Context, logger *slog.Logger) (locations, corridors int, ok bool) {
	for {
		locations, corridors, err := s.world.Counts(ctx)
		if err == nil {
			return locations, corridors, true
		}
		logger.Error("Failed to count world", "error", err)
		if s.opts.Sleep(ctx, s.opts.ErrorBackoff) != nil {
			return 0, 0, false
		}
	}
}

func (s *Service) destroyOne(ctx context.Context, flavour string) error {
	locations, err := s.world.ListLocations(ctx)
	if err != nil {
		return err
	}
	if len(locations) <= 1 {
		return nil
	}
	names := make(map[int64]string, len(locations))
	for _, l := range locations {
		names[l.ID] = l.Name
	}

	corridors, err := s.world.ListCorridors(ctx)
	if err != nil {
		return err
	}
	if len(corridors) > 0 && random.Chance(s.rng, corridorChance) {
		return s.destroyCorridor(ctx, random.Pick(s.rng, corridors), names, flavour)
	}

	var pool []world.Location
	for _, l := range locations {
		if l.LocationType != world.LocationColony {
			pool = append(pool, l)
		}
	}
	if len(pool) == 0 {
		pool = locations
	}
	return s.destroyLocation(ctx, random.Pick(s.rng, pool), flavour)
}

func (s *Service) destroyCorridor(ctx context.Context, c world.Corridor, names map[int64]string, flavour string) error {
	report, err := s.world.DestroyCorridor(ctx, c.ID)
	if err != nil {
		return err
	}
	s.mourn(ctx, report, "corridor collapse")

	if random.Chance(s.rng, newsChance) {
		origin := c.Origin
		s.broadcast(ctx, news.CategoryCorridorCollapse, "ROUTE COLLAPSE CONFIRMED",
			fmt.Sprintf("INFRASTRUCTURE FAILURE\n\nCatastrophic %s has severed the %s corridor linking %s and %s. "+
				"The route is now permanently impassable.\n\nAdvisory: seek alternate routes immediately",
				flavour, c.Name, nameOr(names, c.Origin), nameOr(names, c.Destination)), &origin, false)
	}
	return nil
}

func (s *Service) destroyLocation(ctx context.Context, loc world.Location, flavour string) error {
	logger := s.logger.With("component", "endgame_director", "location_id", loc.ID)

	occupants, err := s.store.Occupants(ctx, loc.ID)
	if err != nil {
		return err
	}
	if len(occupants) > 0 {
		now := s.clock.Now()
		if err := s.store.Warn(ctx, loc.ID, now, now.Add(s.opts.Evacuation)); err != nil {
			logger.Error("Failed to record evacuation warning", "error", err)
		}
		id := loc.ID
		s.broadcast(ctx, news.CategoryBreaking, "IMMEDIATE EVACUATION - "+strings.ToUpper(loc.Name),
			fmt.Sprintf("IMMEDIATE EVACUATION REQUIRED\n\nLocation: %s\nThreat level: CATASTROPHIC\n"+
				"Time to evacuation: %s\n\nFailure to comply will result in total loss of life.",
				loc.Name, s.opts.Evacuation), &id, true)
		s.announce(ctx, loc.ID, occupants, notify.Payload{
			Kind:  "evacuation_warning",
			Title: "IMMEDIATE EVACUATION REQUIRED",
			Body:  strings.ToUpper(loc.Name) + " - CRITICAL SYSTEM FAILURE IMMINENT",
			Color: notify.ColorDanger,
		}.WithField("Time to evacuation", s.opts.Evacuation.String()).
			WithField("Action required", "Undock and travel now"))
		logger.Info("Evacuation warning issued", "occupants", len(occupants))
	}

	// arrivals during the window die with the location
	if err := s.opts.Sleep(ctx, s.opts.Evacuation); err != nil {
		return err
	}

	report, err := s.world.DestroyLocation(ctx, loc.ID)
	if err != nil {
		return err
	}
	s.mourn(ctx, report, "atomic collapse")

	if random.Chance(s.rng, newsChance) {
		s.broadcast(ctx, news.CategoryLocationLost, "LOCATION ANNIHILATION CONFIRMED",
			fmt.Sprintf("TOTAL SYSTEM FAILURE\n\nThe %s %s has been completely annihilated by %s.\n\n"+
				"Survivors: none detected\nAdvisory: location is permanently uninhabitable",
				strings.ReplaceAll(string(loc.LocationType), "_", " "), loc.Name, flavour), nil, false)
	}
	return nil
}

func (s *Service) finale(ctx context.Context, logger *slog.Logger) {
	locations, err := s.world.ListLocations(ctx)
	if err != nil {
		logger.Error("Failed to find the last location", "error", err)
	}
	if len(locations) > 0 {
		last := locations[0]
		id := last.ID
		body := fmt.Sprintf("THIS IS THE END\n\nFrom the last beacon of civilization at %s:\n\n"+
			"The cosmos has reclaimed what was once our domain. To those who may find this message "+
			"in whatever realm comes next, remember us.\n\nThe stars are going out.\n\n...connection lost...", last.Name)
		s.broadcast(ctx, news.CategoryApocalypse, "FINAL TRANSMISSION", body, &id, true)
		if occupants, err := s.store.Occupants(ctx, last.ID); err != nil {
			logger.Error("Failed to list final occupants", "error", err)
		} else {
			s.announce(ctx, last.ID, occupants, notify.Payload{
				Kind:  "final_transmission",
				Title: "FINAL TRANSMISSION",
				Body:  body,
				Color: notify.ColorDanger,
			})
		}

		if s.opts.Sleep(ctx, s.opts.FinaleDelay) != nil {
			return
		}
		report, err := s.world.DestroyLocation(ctx, last.ID)
		if err != nil {
			logger.Error("Failed to destroy the last location", "location_id", last.ID, "error", err)
		} else {
			s.mourn(ctx, report, "final cosmic collapse")
		}
	}

	s.broadcast(ctx, news.CategoryApocalypse, "GAME OVER",
		"The galaxy has been consumed by cosmic forces beyond comprehension.\n\n"+
			"All locations destroyed. All life extinguished. Reality collapsed.", nil, true)

	if err := s.store.Clear(ctx); err != nil {
		logger.Error("Failed to clear endgame state", "error", err)
	}
	if err := s.world.SetFlag(ctx, world.FlagNPCSpawnsSuppressed, false); err != nil {
		logger.Error("Failed to lift npc spawn suppression", "error", err)
	}
	logger.Info("Endgame complete")
}

// mourn tells every victim of a destruction cascade they died and posts
// their obituaries.
func (s *Service) mourn(ctx context.Context, report *world.DestructionReport, cause string) {
	if report == nil {
		return
	}
	for _, ch := range report.TransitChannels {
		if err := s.notifier.CleanupChannel(ctx, ch, 0); err != nil {
			s.logger.Warn("Failed to clean up transit channel", "component", "endgame_director", "channel_id", ch, "error", err)
		}
	}
	if len(report.Killed) == 0 {
		return
	}

	names, err := s.store.Names(ctx, report.Killed)
	if err != nil {
		s.logger.Error("Failed to load victim names", "component", "endgame_director", "error", err)
		names = map[int64]string{}
	}
	for _, userID := range report.Killed {
		name := nameOr(names, userID)
		if err := s.notifier.NotifyUser(ctx, userID, notify.Payload{
			Kind:  "character_death",
			Title: "Character Death",
			Body:  fmt.Sprintf("%s has perished due to %s.", name, cause),
			Color: notify.ColorDanger,
		}.WithField("Cause of death", cause)); err != nil {
			s.logger.Warn("Failed to notify user", "component", "endgame_director", "user_id", userID, "error", err)
		}
		s.broadcast(ctx, news.CategoryObituary, "OBITUARY: "+name,
			fmt.Sprintf("%s was lost to %s.", name, cause), nil, false)
	}
}

// announce posts payload to the location's channel in every guild that
// has someone there.
func (s *Service) announce(ctx context.Context, locationID int64, occupants []Occupant, payload notify.Payload) {
	byGuild := map[int64][]int64{}
	var guilds []int64
	for _, o := range occupants {
		if _, ok := byGuild[o.GuildID]; !ok {
			guilds = append(guilds, o.GuildID)
		}
		byGuild[o.GuildID] = append(byGuild[o.GuildID], o.UserID)
	}
	for _, guildID := range guilds {
		channelID, err := s.notifier.LocationChannel(ctx, guildID, locationID, nil)
		if err != nil {
			s.logger.Warn("Failed to resolve location channel", "component", "endgame_director",
				"guild_id", guildID, "location_id", locationID, "error", err)
			continue
		}
		p := payload
		p.Mentions = byGuild[guildID]
		if err := s.notifier.Send(ctx, channelID, p); err != nil {
			s.logger.Warn("Failed to send location announcement", "component", "endgame_director",
				"channel_id", channelID, "error", err)
		}
	}
}

func (s *Service) broadcast(ctx context.Context, category, title, body string, origin *int64, immediate bool) {
	req := news.Request{Category: category, Title: title, Body: body, OriginLocationID: origin}
	if immediate {
		var none time.Duration
		req.Delay = &none
	}
	if _, err := s.news.QueueAll(ctx, req); err != nil {
		s.logger.Error("Failed to queue news", "component", "endgame_service", "title", title, "error", err)
	}
}

func nameOr(names map[int64]string, id int64) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return "Unknown"
}

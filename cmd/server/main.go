package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"

	"corridor-server/internal/beacon"
	"corridor-server/internal/character"
	characterHandlers "corridor-server/internal/character/handlers"
	"corridor-server/internal/content"
	"corridor-server/internal/endgame"
	endgameHandlers "corridor-server/internal/endgame/handlers"
	"corridor-server/internal/gametime"
	"corridor-server/internal/groups"
	groupHandlers "corridor-server/internal/groups/handlers"
	"corridor-server/internal/items"
	itemHandlers "corridor-server/internal/items/handlers"
	"corridor-server/internal/jobs"
	jobHandlers "corridor-server/internal/jobs/handlers"
	"corridor-server/internal/journal"
	"corridor-server/internal/middleware"
	"corridor-server/internal/news"
	"corridor-server/internal/notify"
	"corridor-server/internal/quests"
	questHandlers "corridor-server/internal/quests/handlers"
	"corridor-server/internal/radio"
	"corridor-server/internal/scheduler"
	"corridor-server/internal/server"
	serverHandlers "corridor-server/internal/server/handlers"
	"corridor-server/internal/shared/config"
	"corridor-server/internal/shared/database"
	"corridor-server/internal/shared/logger"
	"corridor-server/internal/shared/random"
	"corridor-server/internal/shared/redis"
	"corridor-server/internal/stats"
	statsHandlers "corridor-server/internal/stats/handlers"
	"corridor-server/internal/travel"
	travelHandlers "corridor-server/internal/travel/handlers"
	"corridor-server/internal/world"
	worldHandlers "corridor-server/internal/world/handlers"
)

func main() {
	if err := config.Init(); err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}
	cfg := config.GlobalConfig

	logger.Init()
	log := slog.With("component", "main")

	log.Info("Starting corridor server",
		"port", cfg.Server.Port,
		"environment", cfg.Server.Environment,
	)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	log.Info("Server stopped")
}

func run(cfg *config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := db.RunMigrations(ctx, cfg.Database.MigrationsPath); err != nil {
		return err
	}

	rc, err := redis.Connect(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	catalog, err := content.Load(cfg.Content.CatalogPath)
	if err != nil {
		return err
	}

	appLogger := slog.Default()

	hub := notify.NewHub(appLogger, checkOrigin(cfg.Gateway.AllowedOrigins))
	sinks := []notify.Sink{hub}
	if rc != nil {
		sinks = append(sinks, notify.NewRedisPublisher(rc.Client, rc.Channel))
	}
	if cfg.Journal.Enabled {
		jw := journal.NewWriter(cfg.Journal.Dir, cfg.Journal.Prefix)
		defer jw.Close()
		sinks = append(sinks, notify.NewJournalSink(jw))
	}
	bus := notify.NewBus(appLogger, sinks...)

	sim := cfg.Simulation
	clock := gametime.NewClock(sim.GameEpoch, sim.GameAnchor, sim.GameTimeScale)
	rng := random.New(sim.RandomSeed)

	timers := scheduler.NewTimers(ctx, appLogger)
	defer timers.Stop()

	worldRepo := world.NewRepository(db, appLogger)
	worldSvc := world.NewService(worldRepo, appLogger)

	characterSvc := character.NewService(character.NewRepository(db, appLogger), rng, appLogger)
	statsSvc := stats.NewService(stats.NewRepository(db, appLogger), catalog, appLogger)
	newsSvc := news.NewService(news.NewRepository(db, appLogger), bus, clock, rng, appLogger)

	interference := radio.NewInterference(sim.RandomSeed, sim.InterferenceAmplitude)
	radioSvc := radio.NewService(radio.NewRepository(db, appLogger),
		radio.NewPropagator(sim.RadioRangeSystems, interference, rng), appLogger)

	groupSvc := groups.NewService(groups.NewRepository(db, appLogger), bus, sim.VoteTimeout, appLogger)

	jobSvc := jobs.NewService(jobs.NewRepository(db, appLogger), worldSvc, bus, timers,
		jobs.NewGenerator(catalog, rng), clock, rng,
		jobs.Options{Voter: groupSvc, Skills: statsSvc}, appLogger)

	travelSvc := travel.NewService(travel.NewRepository(db, appLogger), bus, timers, catalog, clock, rng,
		travel.Options{Voter: groupSvc, Mitigator: statsSvc, CleanupDelay: sim.TransitCleanupDelay}, appLogger)
	travelSvc.OnArrival(func(ctx context.Context, arrival travel.Arrival) {
		if s := arrival.Session; s.Destination != nil {
			jobSvc.NotifyArrival(ctx, s.UserID, *s.Destination)
		}
	})

	groupSvc.Handle(groups.VoteTravel, travelSvc.ResolveVote)
	groupSvc.Handle(groups.VoteJob, jobSvc.ResolveVote)

	questSvc := quests.NewService(quests.NewRepository(db, appLogger), bus, clock, appLogger)

	beaconSvc := beacon.NewService(beacon.NewRepository(db, appLogger), radioSvc, newsSvc, bus, clock,
		beacon.Options{
			FirstDelay: sim.EmergencyBeaconDelay,
			Emergency:  beacon.Schedule{Transmissions: 3, Spacing: sim.EmergencyBeaconSpacing},
			Radio:      beacon.Schedule{Transmissions: 6, Spacing: sim.RadioBeaconSpacing},
		}, appLogger)

	itemSvc := items.NewService(items.NewRepository(db, appLogger), beaconSvc, catalog, clock, appLogger)

	endgameSvc := endgame.NewService(endgame.NewRepository(db, appLogger), worldRepo, newsSvc, bus,
		catalog.ApocalypseEvents, clock, rng,
		endgame.Options{
			Evacuation:   sim.EvacuationGrace,
			FinaleDelay:  sim.FinaleDelay,
			ErrorBackoff: sim.EndgameErrorBackoff,
		}, appLogger)

	runner := scheduler.NewRunner(appLogger)
	runner.Add(
		scheduler.Task{Name: "job_tracker", Interval: sim.JobTickInterval, HeartbeatEvery: sim.HeartbeatEvery,
			Run: func(ctx context.Context) error { _, err := jobSvc.Tick(ctx); return err }},
		scheduler.Task{Name: "quest_monitor", Interval: sim.QuestTickInterval, HeartbeatEvery: sim.HeartbeatEvery,
			Run: func(ctx context.Context) error { _, err := questSvc.Tick(ctx); return err }},
		scheduler.Task{Name: "beacon_broadcaster", Interval: sim.BeaconTickInterval, HeartbeatEvery: sim.HeartbeatEvery,
			Run: func(ctx context.Context) error { _, err := beaconSvc.Tick(ctx); return err }},
		scheduler.Task{Name: "news_delivery", Interval: sim.NewsTickInterval, HeartbeatEvery: sim.HeartbeatEvery,
			Run: newsSvc.DeliverDue},
		scheduler.Task{Name: "vote_sweep", Interval: sim.VoteSweepInterval, HeartbeatEvery: sim.HeartbeatEvery,
			Run: groupSvc.SweepExpired},
	)
	runner.Go("notify_hub", hub.Run)
	runner.Go("endgame_director", endgameSvc.Run)
	runner.Start(ctx)
	defer runner.Stop()

	if err := travelSvc.Resume(ctx); err != nil {
		log.Error("Failed to resume travel sessions", "error", err)
	}
	if err := jobSvc.Resume(ctx); err != nil {
		log.Error("Failed to resume jobs", "error", err)
	}
	runner.MarkReady()

	var redisCheck serverHandlers.Pinger
	if rc != nil {
		redisCheck = rc
	}

	rl := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Enabled:           cfg.RateLimit.Enabled,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
		TrustProxy:        cfg.RateLimit.TrustProxy,
	})
	defer rl.Close()

	routes := &server.Routes{
		Health: serverHandlers.NewHealthHandler(clock, map[string]serverHandlers.Pinger{
			"database": db,
			"redis":    redisCheck,
		}),
		Stream:    hub,
		Character: characterHandlers.NewCharacterHandler(characterSvc),
		Travel:    travelHandlers.NewTravelHandler(travelSvc),
		World:     worldHandlers.NewRouteHandler(worldSvc),
		Jobs:      jobHandlers.NewJobHandler(jobSvc),
		Groups:    groupHandlers.NewGroupHandler(groupSvc, characterSvc),
		Quests:    questHandlers.NewQuestHandler(questSvc),
		Items:     itemHandlers.NewItemHandler(itemSvc),
		Stats:     statsHandlers.NewStatsHandler(statsSvc),
		Endgame:   endgameHandlers.NewEndgameHandler(endgameSvc),
		Auth:      middleware.NewAuthenticator(cfg.Auth),
		RateLimit: rl,
	}

	cors := middleware.NewCORS(cfg.Gateway)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      cors.Middleware(routes.Setup()),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Gateway listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Gateway shutdown incomplete", "error", err)
	}
	return nil
}

// checkOrigin admits adapters that send no Origin header, which is the
// case for server-side bots, and browsers on an allowed origin.
func checkOrigin(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, "*") || slices.Contains(allowed, origin)
	}
}

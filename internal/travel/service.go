// Package travel moves characters through corridors. Arrivals and corridor
// events run on one-shot timers; the travel_sessions table stays the source
// of truth so every timer callback re-checks the session before acting.
package travel

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/content"
	"corridor-server/internal/gametime"
	"corridor-server/internal/groups"
	"corridor-server/internal/notify"
	"corridor-server/internal/scheduler"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/random"
	"corridor-server/internal/world"
)

var (
	ErrAlreadyDocked    = errors.Precondition(errors.ReasonWrongLocation, "you must undock before travelling")
	ErrAlreadyTraveling = errors.Precondition(errors.ReasonAlreadyActive, "you are already travelling")
	ErrInsufficientFuel = errors.Precondition(errors.ReasonInsufficientResources, "not enough fuel for this corridor")
	ErrCorridorMissing  = errors.NotFoundf("corridor not found or collapsed")
	ErrNotInSpace       = errors.Precondition(errors.ReasonWrongLocation, "you are not in space at the corridor's origin")
	ErrNotTraveling     = errors.Precondition(errors.ReasonNoActive, "you are not travelling")
	ErrLocalSpace       = errors.Precondition(errors.ReasonWrongLocation, "there is nowhere to exit to in local space")
	ErrNoShip           = errors.Precondition(errors.ReasonInsufficientResources, "you have no active ship")
)

const eventHitChance = 0.3

type Store interface {
	GetCharacter(ctx context.Context, userID int64) (*character.Character, error)
	GetActiveShip(ctx context.Context, userID int64) (*character.Ship, error)
	GroupMembers(ctx context.Context, groupID int64) ([]character.Character, error)
	GetCorridor(ctx context.Context, corridorID int64) (*world.Corridor, error)
	GetLocation(ctx context.Context, locationID int64) (*world.Location, error)
	StartTravel(ctx context.Context, corridor world.Corridor, departures []Departure, channelID string, start time.Time) ([]Session, error)
	CompleteSession(ctx context.Context, sessionID int64) (*Arrival, error)
	Session(ctx context.Context, sessionID int64) (*Session, error)
	ActiveSession(ctx context.Context, userID int64) (*Session, error)
	TravelingSessions(ctx context.Context) ([]Session, error)
	Passengers(ctx context.Context, channelID string) ([]Session, error)
	DamageHP(ctx context.Context, userID int64, amount int) error
	DamageHull(ctx context.Context, userID int64, amount int) error
	Abort(ctx context.Context, sessionID int64, survived bool) (*Session, error)
	SetStatus(ctx context.Context, userID int64, from, to character.LocationStatus) (bool, error)
	HeldStationaryJob(ctx context.Context, userID, locationID int64) (*HeldJob, error)
	CancelJob(ctx context.Context, jobID int64) error
}

// Voter opens group votes.
type Voter interface {
	Open(ctx context.Context, groupID int64, voteType groups.VoteType, data any) (*groups.Session, error)
}

// Mitigator applies a character's defense to incoming damage.
type Mitigator interface {
	Mitigate(ctx context.Context, userID int64, damage int) (int, error)
}

// ArrivalHook runs after a session completes.
type ArrivalHook func(ctx context.Context, arrival Arrival)

type travelVote struct {
	CorridorID int64 `json:"corridor_id"`
	Origin     int64 `json:"origin"`
	LeaderID   int64 `json:"leader_id"`
}

type Service struct {
	store        Store
	notifier     notify.Notifier
	timers       *scheduler.Timers
	catalog      *content.Catalog
	clock        *gametime.Clock
	rng          random.Source
	voter        Voter
	mitigator    Mitigator
	cleanupDelay time.Duration
	logger       *slog.Logger

	mu    sync.RWMutex
	hooks []ArrivalHook
}

type Options struct {
	Voter        Voter
	Mitigator    Mitigator
	CleanupDelay time.Duration
}

func NewService(store Store, notifier notify.Notifier, timers *scheduler.Timers, catalog *content.Catalog,
	clock *gametime.Clock, rng random.Source, opts Options, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		notifier:     notifier,
		timers:       timers,
		catalog:      catalog,
		clock:        clock,
		rng:          rng,
		voter:        opts.Voter,
		mitigator:    opts.Mitigator,
		cleanupDelay: opts.CleanupDelay,
		logger:       logger,
	}
}

// OnArrival registers a hook called after every completed trip.
func (s *Service) OnArrival(hook ArrivalHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
}

func arrivalKey(sessionID int64) string {
	return fmt.Sprintf("travel:%d", sessionID)
}

func (s *Service) character(ctx context.Context, userID int64) (*character.Character, error) {
	c, err := s.store.GetCharacter(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load character", err)
	}
	if c == nil {
		return nil, errors.NotFoundf("user %d has no character", userID)
	}
	if c.IsDead() {
		return nil, errors.Precondition(errors.ReasonPermissionDenied, "your character is dead")
	}
	return c, nil
}

// Travel sends userID down a corridor. A grouped traveller with group mates
// waiting at the same spot opens a travel vote instead.
func (s *Service) Travel(ctx context.Context, userID, corridorID int64) (*Result, error) {
	logger := s.logger.With("component", "travel_service", "operation", "travel", "user_id", userID, "corridor_id", corridorID)

	c, err := s.character(ctx, userID)
	if err != nil {
		return nil, err
	}
	active, err := s.store.ActiveSession(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to check travel state", err)
	}
	if active != nil || c.LocationStatus == character.StatusTraveling {
		return nil, ErrAlreadyTraveling
	}
	if c.LocationStatus == character.StatusDocked {
		return nil, ErrAlreadyDocked
	}
	if c.CurrentLocation == nil {
		return nil, ErrNotInSpace
	}

	corridor, err := s.store.GetCorridor(ctx, corridorID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load corridor", err)
	}
	if corridor == nil || !corridor.IsActive {
		return nil, ErrCorridorMissing
	}
	leg, ok := corridor.From(*c.CurrentLocation)
	if !ok {
		return nil, errors.Precondition(errors.ReasonWrongLocation, "that corridor does not depart from your location")
	}

	if c.GroupID != nil && s.voter != nil {
		mates, err := s.companions(ctx, *c.GroupID, leg.Origin, userID)
		if err != nil {
			return nil, err
		}
		if len(mates) > 0 {
			vote, err := s.voter.Open(ctx, *c.GroupID, groups.VoteTravel, travelVote{
				CorridorID: leg.ID,
				Origin:     leg.Origin,
				LeaderID:   userID,
			})
			if err != nil {
				return nil, err
			}
			logger.Info("Group travel vote opened", "session_id", vote.ID)
			return &Result{Corridor: leg, VoteSession: vote.ID.String()}, nil
		}
	}

	return s.depart(ctx, leg, []character.Character{*c}, userID)
}

// companions returns the group members other than userID in space at origin.
func (s *Service) companions(ctx context.Context, groupID, origin, userID int64) ([]character.Character, error) {
	members, err := s.store.GroupMembers(ctx, groupID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load group", err)
	}
	var out []character.Character
	for _, m := range members {
		if m.UserID != userID && m.LocationStatus == character.StatusInSpace && m.At(origin) {
			out = append(out, m)
		}
	}
	return out, nil
}

// ResolveVote is the groups resolver for travel votes.
func (s *Service) ResolveVote(ctx context.Context, session groups.Session, _ []int64) error {
	var vote travelVote
	if err := session.Decode(&vote); err != nil {
		return err
	}

	corridor, err := s.store.GetCorridor(ctx, vote.CorridorID)
	if err != nil {
		return err
	}
	if corridor == nil || !corridor.IsActive {
		return ErrCorridorMissing
	}
	leg, ok := corridor.From(vote.Origin)
	if !ok {
		return ErrCorridorMissing
	}

	leader, err := s.character(ctx, vote.LeaderID)
	if err != nil {
		return err
	}
	if leader.LocationStatus != character.StatusInSpace || !leader.At(vote.Origin) {
		return ErrNotInSpace
	}
	mates, err := s.companions(ctx, session.GroupID, vote.Origin, vote.LeaderID)
	if err != nil {
		return err
	}

	result, err := s.depart(ctx, leg, append([]character.Character{*leader}, mates...), vote.LeaderID)
	if err != nil {
		return err
	}
	for _, id := range result.LeftBehind {
		s.notifyUser(ctx, id, notify.Payload{
			Kind:  "travel_left_behind",
			Title: "Left behind",
			Body:  fmt.Sprintf("Your group departed through %s without you: not enough fuel.", leg.Name),
			Color: notify.ColorWarning,
		})
	}
	return nil
}

// depart starts the trip for travellers. The initiator must be able to
// pay; anyone else short of fuel is left behind.
func (s *Service) depart(ctx context.Context, leg world.Corridor, travellers []character.Character, initiator int64) (*Result, error) {
	logger := s.logger.With("component", "travel_service", "operation", "depart", "corridor_id", leg.ID, "initiator", initiator)

	var (
		departures []Departure
		leftBehind []int64
	)
	for _, t := range travellers {
		ship, err := s.store.GetActiveShip(ctx, t.UserID)
		if err != nil {
			return nil, errors.WrapInternal("failed to load ship", err)
		}
		var need int
		if ship != nil {
			need = ship.FuelNeeded(leg.FuelCost)
		}
		if ship == nil || ship.CurrentFuel < need {
			if t.UserID == initiator {
				if ship == nil {
					return nil, ErrNoShip
				}
				return nil, ErrInsufficientFuel
			}
			leftBehind = append(leftBehind, t.UserID)
			continue
		}
		departures = append(departures, Departure{
			UserID:  t.UserID,
			GuildID: t.GuildID,
			ShipID:  ship.ID,
			Fuel:    need,
			GroupID: t.GroupID,
		})
	}

	destName := fmt.Sprintf("location %d", leg.Destination)
	if dest, err := s.store.GetLocation(ctx, leg.Destination); err == nil && dest != nil {
		destName = dest.Name
	}

	userIDs := make([]int64, len(departures))
	for i, d := range departures {
		userIDs[i] = d.UserID
	}
	channelID, err := s.notifier.CreateTransitChannel(ctx, userIDs, leg.Name, destName)
	if err != nil {
		logger.Warn("Failed to create transit channel, travelling without one", "error", err)
		channelID = ""
	}

	start := s.clock.Now()
	sessions, err := s.store.StartTravel(ctx, leg, departures, channelID, start)
	if err != nil {
		if channelID != "" {
			_ = s.notifier.CleanupChannel(ctx, channelID, 0)
		}
		if err == ErrNotInSpace || err == ErrInsufficientFuel {
			return nil, err
		}
		return nil, errors.WrapInternal("failed to start travel", err)
	}

	for _, d := range departures {
		if err := s.notifier.RemoveLocationAccess(ctx, d.UserID, leg.Origin); err != nil {
			logger.Warn("Failed to revoke location access", "user_id", d.UserID, "error", err)
		}
	}

	sessionIDs := make([]int64, len(sessions))
	for i, sess := range sessions {
		sessionIDs[i] = sess.ID
		s.scheduleArrival(sess)
	}
	s.scheduleEvents(leg, channelID, sessionIDs)

	arrives := start.Add(leg.Duration())
	if channelID != "" {
		payload := notify.Payload{
			Kind:     "travel_departed",
			Title:    fmt.Sprintf("Entering %s", leg.Name),
			Body:     fmt.Sprintf("Destination: %s", destName),
			Color:    notify.ColorInfo,
			Mentions: userIDs,
		}.WithField("Arrival", gametime.FormatInGame(s.clock.ToInGame(arrives))).
			WithField("Danger", strings.Repeat("⚠", leg.DangerLevel))
		if err := s.notifier.Send(ctx, channelID, payload); err != nil {
			logger.Warn("Failed to announce departure", "error", err)
		}
	}

	logger.Info("Travel started", "travellers", len(sessions), "left_behind", len(leftBehind), "channel_id", channelID)
	return &Result{
		Sessions:   sessions,
		Corridor:   leg,
		ArrivesAt:  arrives,
		LeftBehind: leftBehind,
	}, nil
}

func (s *Service) scheduleArrival(sess Session) {
	id := sess.ID
	s.timers.Schedule(arrivalKey(id), sess.EndTime.Sub(s.clock.Now()), func(ctx context.Context) error {
		return s.Complete(ctx, id)
	})
}

func (s *Service) scheduleEvents(leg world.Corridor, channelID string, sessionIDs []int64) {
	if len(sessionIDs) == 0 {
		return
	}
	for i, at := range Checkpoints(leg) {
		key := fmt.Sprintf("travel-event:%d:%d", sessionIDs[0], i)
		s.timers.Schedule(key, at, func(ctx context.Context) error {
			return s.corridorEvent(ctx, leg, channelID, sessionIDs)
		})
	}
}

// Complete finishes a session. It is safe to call more than once.
func (s *Service) Complete(ctx context.Context, sessionID int64) error {
	logger := s.logger.With("component", "travel_service", "operation", "complete", "session_id", sessionID)

	arrival, err := s.store.CompleteSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if arrival == nil {
		logger.Debug("Session already finished")
		return nil
	}
	s.timers.Cancel(arrivalKey(sessionID))

	sess := arrival.Session
	userID := sess.UserID
	if sess.Destination != nil {
		dest := *sess.Destination
		if err := s.notifier.GiveLocationAccess(ctx, userID, dest); err != nil {
			logger.Warn("Failed to grant location access", "error", err)
		}
		name := fmt.Sprintf("location %d", dest)
		if loc, err := s.store.GetLocation(ctx, dest); err == nil && loc != nil {
			name = loc.Name
		}
		channelID, err := s.notifier.LocationChannel(ctx, arrival.GuildID, dest, &userID)
		if err != nil {
			logger.Warn("Failed to open location channel", "error", err)
		} else {
			payload := notify.Payload{
				Kind:     "travel_arrived",
				Title:    fmt.Sprintf("Arrived at %s", name),
				Color:    notify.ColorSuccess,
				Mentions: []int64{userID},
			}.WithField("Time", gametime.FormatInGame(s.clock.NowInGame()))
			if err := s.notifier.Send(ctx, channelID, payload); err != nil {
				logger.Warn("Failed to announce arrival", "error", err)
			}
		}
	}

	if ch := sess.Channel(); ch != "" && arrival.StillTravelling == 0 {
		if err := s.notifier.CleanupChannel(ctx, ch, s.cleanupDelay); err != nil {
			logger.Warn("Failed to schedule transit channel cleanup", "channel_id", ch, "error", err)
		}
	}

	s.mu.RLock()
	hooks := append([]ArrivalHook(nil), s.hooks...)
	s.mu.RUnlock()
	for _, hook := range hooks {
		hook(ctx, *arrival)
	}

	logger.Info("Travel completed", "user_id", userID)
	return nil
}

// corridorEvent rolls for a corridor event at one checkpoint.
func (s *Service) corridorEvent(ctx context.Context, leg world.Corridor, channelID string, sessionIDs []int64) error {
	logger := s.logger.With("component", "travel_service", "operation", "corridor_event", "corridor_id", leg.ID)

	if !random.Chance(s.rng, float64(leg.DangerLevel)*0.1) {
		return nil
	}
	events := s.catalog.CorridorEventsFor(leg.DangerLevel)
	if len(events) == 0 {
		return nil
	}

	passengers, err := s.passengers(ctx, channelID, sessionIDs)
	if err != nil {
		return err
	}
	if len(passengers) == 0 {
		return nil
	}

	event := random.Pick(s.rng, events)
	payload := notify.Payload{
		Kind:  "corridor_event",
		Title: event.Name,
		Body:  event.Description,
		Color: notify.ColorWarning,
	}
	for _, p := range passengers {
		if event.Effect == content.EffectNone || !random.Chance(s.rng, eventHitChance) {
			continue
		}
		amount := random.Between(s.rng, event.Min, event.Max)
		switch event.Effect {
		case content.EffectHP:
			if s.mitigator != nil {
				if reduced, err := s.mitigator.Mitigate(ctx, p.UserID, amount); err == nil {
					amount = reduced
				}
			}
			if amount == 0 {
				continue
			}
			if err := s.store.DamageHP(ctx, p.UserID, amount); err != nil {
				logger.Error("Failed to apply event damage", "user_id", p.UserID, "error", err)
				continue
			}
			payload = payload.WithField(fmt.Sprintf("<@%d>", p.UserID), fmt.Sprintf("-%d HP", amount))
		case content.EffectHull:
			if err := s.store.DamageHull(ctx, p.UserID, amount); err != nil {
				logger.Error("Failed to apply hull damage", "user_id", p.UserID, "error", err)
				continue
			}
			payload = payload.WithField(fmt.Sprintf("<@%d>", p.UserID), fmt.Sprintf("-%d hull", amount))
		}
	}

	if channelID != "" {
		return s.notifier.Send(ctx, channelID, payload)
	}
	for _, p := range passengers {
		s.notifyUser(ctx, p.UserID, payload)
	}
	return nil
}

func (s *Service) passengers(ctx context.Context, channelID string, sessionIDs []int64) ([]Session, error) {
	if channelID != "" {
		return s.store.Passengers(ctx, channelID)
	}
	var out []Session
	for _, id := range sessionIDs {
		sess, err := s.store.Session(ctx, id)
		if err != nil {
			return nil, err
		}
		if sess != nil && sess.Status == StatusTraveling {
			out = append(out, *sess)
		}
	}
	return out, nil
}

// EmergencyExit drops out of a corridor mid-trip. Survivors reappear in
// space at the corridor's origin.
func (s *Service) EmergencyExit(ctx context.Context, userID int64) (*ExitResult, error) {
	logger := s.logger.With("component", "travel_service", "operation", "emergency_exit", "user_id", userID)

	sess, err := s.store.ActiveSession(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load travel session", err)
	}
	if sess == nil {
		return nil, ErrNotTraveling
	}

	danger := 5
	if sess.CorridorID != nil {
		corridor, err := s.store.GetCorridor(ctx, *sess.CorridorID)
		if err != nil {
			return nil, errors.WrapInternal("failed to load corridor", err)
		}
		if corridor != nil {
			if corridor.IsLocalSpace() {
				return nil, ErrLocalSpace
			}
			danger = corridor.DangerLevel
		}
	}

	odds := SurvivalChance(danger)
	survived := random.D100(s.rng) <= odds
	aborted, err := s.store.Abort(ctx, sess.ID, survived)
	if err != nil {
		return nil, errors.WrapInternal("failed to exit corridor", err)
	}
	if aborted == nil {
		return nil, ErrNotTraveling
	}
	s.timers.Cancel(arrivalKey(sess.ID))

	result := &ExitResult{Survived: survived, SurvivalOdds: odds}
	if survived {
		result.LocationID = aborted.Origin
		if aborted.Origin != nil {
			if err := s.notifier.GiveLocationAccess(ctx, userID, *aborted.Origin); err != nil {
				logger.Warn("Failed to grant location access", "error", err)
			}
		}
		s.notifyUser(ctx, userID, notify.Payload{
			Kind:  "emergency_exit",
			Title: "Emergency exit successful",
			Body:  "You tore free of the corridor and drift in open space.",
			Color: notify.ColorWarning,
		})
	} else {
		s.notifyUser(ctx, userID, notify.Payload{
			Kind:  "emergency_exit_fatal",
			Title: "Emergency exit failed",
			Body:  "Your ship came apart in the corridor wall.",
			Color: notify.ColorDanger,
		})
	}

	if ch := aborted.Channel(); ch != "" {
		remaining, err := s.store.Passengers(ctx, ch)
		if err == nil && len(remaining) == 0 {
			if err := s.notifier.CleanupChannel(ctx, ch, s.cleanupDelay); err != nil {
				logger.Warn("Failed to schedule transit channel cleanup", "error", err)
			}
		}
	}

	logger.Info("Emergency exit", "survived", survived, "odds", odds)
	return result, nil
}

func (s *Service) Dock(ctx context.Context, userID int64) error {
	c, err := s.character(ctx, userID)
	if err != nil {
		return err
	}
	switch c.LocationStatus {
	case character.StatusDocked:
		return errors.Precondition(errors.ReasonAlreadyActive, "you are already docked")
	case character.StatusTraveling:
		return ErrAlreadyTraveling
	}
	ok, err := s.store.SetStatus(ctx, userID, character.StatusInSpace, character.StatusDocked)
	if err != nil {
		return errors.WrapInternal("failed to dock", err)
	}
	if !ok {
		return ErrNotInSpace
	}
	return nil
}

type UndockResult struct {
	Undocked     bool     `json:"undocked"`
	PendingJob   *HeldJob `json:"pending_job,omitempty"`
	JobCancelled bool     `json:"job_cancelled,omitempty"`
}

// Undock leaves the station. Holding a stationary job here requires confirm,
// and confirming releases the job without reward.
func (s *Service) Undock(ctx context.Context, userID int64, confirm bool) (*UndockResult, error) {
	logger := s.logger.With("component", "travel_service", "operation", "undock", "user_id", userID)

	c, err := s.character(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.LocationStatus != character.StatusDocked || c.CurrentLocation == nil {
		return nil, errors.Precondition(errors.ReasonWrongLocation, "you are not docked")
	}

	held, err := s.store.HeldStationaryJob(ctx, userID, *c.CurrentLocation)
	if err != nil {
		return nil, errors.WrapInternal("failed to check jobs", err)
	}
	if held != nil && !confirm {
		return &UndockResult{PendingJob: held}, nil
	}

	ok, err := s.store.SetStatus(ctx, userID, character.StatusDocked, character.StatusInSpace)
	if err != nil {
		return nil, errors.WrapInternal("failed to undock", err)
	}
	if !ok {
		return nil, errors.Precondition(errors.ReasonWrongLocation, "you are not docked")
	}

	result := &UndockResult{Undocked: true}
	if held != nil {
		if err := s.store.CancelJob(ctx, held.JobID); err != nil {
			return nil, errors.WrapInternal("failed to cancel job", err)
		}
		result.JobCancelled = true
		logger.Info("Job cancelled on undock", "job_id", held.JobID)
	}
	return result, nil
}

// Resume re-arms timers for sessions left over from a previous process.
// Overdue sessions complete immediately.
func (s *Service) Resume(ctx context.Context) error {
	logger := s.logger.With("component", "travel_service", "operation", "resume")

	sessions, err := s.store.TravelingSessions(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	var overdue int
	for _, sess := range sessions {
		if !sess.EndTime.After(now) {
			overdue++
			if err := s.Complete(ctx, sess.ID); err != nil {
				logger.Error("Failed to complete overdue session", "session_id", sess.ID, "error", err)
			}
			continue
		}
		s.scheduleArrival(sess)
	}

	logger.Info("Travel sessions resumed", "total", len(sessions), "overdue", overdue)
	return nil
}

func (s *Service) notifyUser(ctx context.Context, userID int64, payload notify.Payload) {
	if err := s.notifier.NotifyUser(ctx, userID, payload); err != nil {
		s.logger.Warn("Failed to notify user", "component", "travel_service", "user_id", userID, "error", err)
	}
}

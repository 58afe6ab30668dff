// Package jobs runs the job boards: generation, acceptance, stationary
// progress tracking and completion. Transport deliveries unload on a timer
// before they pay out.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/gametime"
	"corridor-server/internal/groups"
	"corridor-server/internal/notify"
	"corridor-server/internal/scheduler"
	"corridor-server/internal/shared/errors"
	"corridor-server/internal/shared/random"
	"corridor-server/internal/stats"
	"corridor-server/internal/world"
)

var (
	ErrAlreadyHasJob = errors.Precondition(errors.ReasonAlreadyActive, "you already have an active job")
	ErrJobGone       = errors.Conflictf("that job is no longer available")
	ErrNoJob         = errors.Precondition(errors.ReasonNoActive, "you have no active job")
	ErrNotDocked     = errors.Precondition(errors.ReasonWrongLocation, "you must be docked at the job's location")
)

const (
	skillUpChance   = 0.15
	factionSharePct = 5
)

type Store interface {
	GetCharacter(ctx context.Context, userID int64) (*character.Character, error)
	GroupMembers(ctx context.Context, groupID int64) ([]character.Character, error)
	Board(ctx context.Context, locationID int64, now time.Time) ([]Job, error)
	ReplaceBoard(ctx context.Context, locationID int64, jobs []Job) error
	Job(ctx context.Context, jobID int64) (*Job, error)
	FindAvailable(ctx context.Context, locationID, jobID int64, title string, now time.Time) (*Job, error)
	ActiveJob(ctx context.Context, userID int64) (*Job, error)
	Assignees(ctx context.Context, jobID int64) ([]int64, error)
	Take(ctx context.Context, job Job, takerID int64, assignees []int64, startLocation int64, now time.Time) error
	Tracking(ctx context.Context, jobID, userID int64) (*Tracking, error)
	Tracked(ctx context.Context, userID *int64) ([]TrackedRow, error)
	Credit(ctx context.Context, trackingID int64, present bool, now time.Time) (float64, error)
	MarkNotified(ctx context.Context, trackingID int64) (bool, error)
	BeginUnload(ctx context.Context, jobID int64, unloadAt time.Time) (bool, error)
	Unloading(ctx context.Context) ([]Job, error)
	TransportsTo(ctx context.Context, userID, locationID int64) ([]Job, error)
	Settle(ctx context.Context, s Settlement) ([]Payout, error)
	Leave(ctx context.Context, jobID, userID int64) error
	Release(ctx context.Context, jobID int64) error
}

// World resolves locations and the corridor network.
type World interface {
	Location(ctx context.Context, locationID int64) (*world.Location, error)
	Graph(ctx context.Context) (*world.Graph, error)
}

type Voter interface {
	Open(ctx context.Context, groupID int64, voteType groups.VoteType, data any) (*groups.Session, error)
}

// Skills reports a character's skills with equipment and effects applied.
type Skills interface {
	Effective(ctx context.Context, userID int64) (stats.Stats, error)
}

type jobVote struct {
	JobID      int64 `json:"job_id"`
	LeaderID   int64 `json:"leader_id"`
	LocationID int64 `json:"location_id"`
}

type Service struct {
	store     Store
	world     World
	notifier  notify.Notifier
	timers    *scheduler.Timers
	generator *Generator
	clock     *gametime.Clock
	rng       random.Source
	voter     Voter
	skills    Skills
	logger    *slog.Logger
}

type Options struct {
	Voter  Voter
	Skills Skills
}

func NewService(store Store, w World, notifier notify.Notifier, timers *scheduler.Timers, generator *Generator,
	clock *gametime.Clock, rng random.Source, opts Options, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		world:     w,
		notifier:  notifier,
		timers:    timers,
		generator: generator,
		clock:     clock,
		rng:       rng,
		voter:     opts.Voter,
		skills:    opts.Skills,
		logger:    logger,
	}
}

func unloadKey(jobID int64) string {
	return fmt.Sprintf("job-unload:%d", jobID)
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

// Board lists the jobs posted at a location, generating a fresh set when the
// board is empty. A viewer must be docked there.
func (s *Service) Board(ctx context.Context, locationID int64, viewer *int64) ([]Job, error) {
	loc, err := s.world.Location(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if viewer != nil {
		c, err := s.character(ctx, *viewer)
		if err != nil {
			return nil, err
		}
		if c.LocationStatus != character.StatusDocked || !c.At(locationID) {
			return nil, ErrNotDocked
		}
	}

	now := s.clock.Now()
	jobs, err := s.store.Board(ctx, locationID, now)
	if err != nil {
		return nil, errors.WrapInternal("failed to load job board", err)
	}
	if len(jobs) > 0 || !loc.HasJobs {
		return jobs, nil
	}

	dests, err := s.destinations(ctx, *loc)
	if err != nil {
		return nil, errors.WrapInternal("failed to plan job destinations", err)
	}
	if err := s.store.ReplaceBoard(ctx, locationID, s.generator.Generate(*loc, dests, now)); err != nil {
		return nil, errors.WrapInternal("failed to generate jobs", err)
	}
	jobs, err = s.store.Board(ctx, locationID, now)
	if err != nil {
		return nil, errors.WrapInternal("failed to load job board", err)
	}
	return jobs, nil
}

func (s *Service) destinations(ctx context.Context, origin world.Location) ([]Destination, error) {
	graph, err := s.world.Graph(ctx)
	if err != nil {
		return nil, err
	}
	reachable := graph.WithinHops(origin.ID, maxTransportHops)
	ids := make([]int64, 0, len(reachable))
	for id := range reachable {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]Destination, 0, len(ids))
	for _, id := range ids {
		loc, err := s.world.Location(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, Destination{Location: *loc, Hops: reachable[id]})
	}
	return out, nil
}

// Accept takes a job from the board at the character's location, by id or
// by title. Grouped characters open a job vote instead.
func (s *Service) Accept(ctx context.Context, userID, jobID int64, title string) (*AcceptResult, error) {
	logger := s.logger.With("component", "jobs_service", "operation", "accept", "user_id", userID)

	c, err := s.character(ctx, userID)
	if err != nil {
		return nil, err
	}
	if c.LocationStatus != character.StatusDocked || c.CurrentLocation == nil {
		return nil, ErrNotDocked
	}
	active, err := s.store.ActiveJob(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to check active job", err)
	}
	if active != nil {
		return nil, ErrAlreadyHasJob
	}

	now := s.clock.Now()
	job, err := s.store.FindAvailable(ctx, *c.CurrentLocation, jobID, title, now)
	if err != nil {
		return nil, errors.WrapInternal("failed to find job", err)
	}
	if job == nil {
		return nil, errors.NotFoundf("no such job on this board")
	}
	if skill := job.Skill(); skill != "" && job.MinSkillLevel > 0 {
		if have := s.skill(ctx, *c, skill); have < job.MinSkillLevel {
			return nil, errors.Preconditionf(errors.ReasonInsufficientResources,
				"this job needs %s %d, you have %d", skill, job.MinSkillLevel, have)
		}
	}

	if c.GroupID != nil && s.voter != nil {
		members, err := s.store.GroupMembers(ctx, *c.GroupID)
		if err != nil {
			return nil, errors.WrapInternal("failed to load group", err)
		}
		if len(members) > 1 {
			vote, err := s.voter.Open(ctx, *c.GroupID, groups.VoteJob, jobVote{
				JobID:      job.ID,
				LeaderID:   userID,
				LocationID: job.LocationID,
			})
			if err != nil {
				return nil, err
			}
			logger.Info("Group job vote opened", "job_id", job.ID, "session_id", vote.ID)
			return &AcceptResult{Job: job, VoteSession: vote.ID.String()}, nil
		}
	}

	if err := s.store.Take(ctx, *job, userID, []int64{userID}, job.LocationID, now); err != nil {
		return nil, s.takeError(err)
	}

	logger.Info("Job accepted", "job_id", job.ID, "job_kind", job.Kind)
	return &AcceptResult{Job: job, Assignees: []int64{userID}}, nil
}

func (s *Service) takeError(err error) error {
	if err == ErrAlreadyHasJob || err == ErrJobGone {
		return err
	}
	return errors.WrapInternal("failed to accept job", err)
}

// ResolveVote is the groups resolver for job votes. Every member without a
// job of their own becomes a co-assignee.
func (s *Service) ResolveVote(ctx context.Context, session groups.Session, members []int64) error {
	logger := s.logger.With("component", "jobs_service", "operation", "resolve_vote", "group_id", session.GroupID)

	var vote jobVote
	if err := session.Decode(&vote); err != nil {
		return err
	}
	job, err := s.store.Job(ctx, vote.JobID)
	if err != nil {
		return err
	}
	if job == nil || job.IsTaken {
		return ErrJobGone
	}

	assignees := []int64{vote.LeaderID}
	for _, id := range members {
		if id == vote.LeaderID {
			continue
		}
		c, err := s.store.GetCharacter(ctx, id)
		if err != nil {
			return err
		}
		if c == nil || c.IsDead() {
			continue
		}
		held, err := s.store.ActiveJob(ctx, id)
		if err != nil {
			return err
		}
		if held != nil {
			continue
		}
		assignees = append(assignees, id)
	}

	if err := s.store.Take(ctx, *job, vote.LeaderID, assignees, job.LocationID, s.clock.Now()); err != nil {
		return s.takeError(err)
	}
	for _, id := range assignees {
		s.notifyUser(ctx, id, notify.Payload{
			Kind:  "job_accepted",
			Title: job.Title,
			Body:  "Your group took this job together. Rewards are shared in full.",
			Color: notify.ColorSuccess,
		}.WithField("Reward", fmt.Sprintf("%d credits", job.RewardMoney)))
	}

	logger.Info("Group job accepted", "job_id", job.ID, "assignees", len(assignees))
	return nil
}

func (s *Service) skill(ctx context.Context, c character.Character, name string) int {
	if s.skills != nil {
		if eff, err := s.skills.Effective(ctx, c.UserID); err == nil {
			return eff[name]
		}
	}
	return c.Skill(name)
}

// Complete finishes the caller's job. Transport jobs start unloading and
// settle when the timer fires; calling again during unloading settles at once.
func (s *Service) Complete(ctx context.Context, userID int64) (*Outcome, error) {
	c, err := s.character(ctx, userID)
	if err != nil {
		return nil, err
	}
	job, err := s.store.ActiveJob(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load active job", err)
	}
	if job == nil {
		return nil, ErrNoJob
	}
	if job.Status == StatusAwaitingFinalization {
		out, err := s.Finalize(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		if out == nil {
			return nil, ErrJobGone
		}
		return out, nil
	}
	if c.LocationStatus != character.StatusDocked {
		return nil, ErrNotDocked
	}

	if job.IsTransport() {
		return s.deliver(ctx, *c, *job)
	}
	return s.work(ctx, *c, *job)
}

func (s *Service) deliver(ctx context.Context, c character.Character, job Job) (*Outcome, error) {
	logger := s.logger.With("component", "jobs_service", "operation", "deliver", "job_id", job.ID)

	if job.DestinationID == nil || !c.At(*job.DestinationID) {
		return nil, errors.Precondition(errors.ReasonWrongLocation, "you are not at this job's destination")
	}

	delay := time.Duration(random.Between(s.rng, 1, 3)) * time.Minute
	unloadAt := s.clock.Now().Add(delay)
	ok, err := s.store.BeginUnload(ctx, job.ID, unloadAt)
	if err != nil {
		return nil, errors.WrapInternal("failed to start unloading", err)
	}
	if !ok {
		return nil, ErrJobGone
	}
	s.scheduleUnload(job.ID, delay)

	logger.Info("Unloading started", "unload_at", unloadAt)
	return &Outcome{
		JobID:    job.ID,
		Title:    job.Title,
		Kind:     KindTransport,
		Status:   StatusAwaitingFinalization,
		Success:  true,
		UnloadAt: &unloadAt,
	}, nil
}

func (s *Service) scheduleUnload(jobID int64, delay time.Duration) {
	s.timers.Schedule(unloadKey(jobID), delay, func(ctx context.Context) error {
		_, err := s.Finalize(ctx, jobID)
		return err
	})
}

// Finalize pays out an unloaded transport job. It returns nil once the job
// has already been settled.
func (s *Service) Finalize(ctx context.Context, jobID int64) (*Outcome, error) {
	logger := s.logger.With("component", "jobs_service", "operation", "finalize", "job_id", jobID)

	job, err := s.store.Job(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.Status != StatusAwaitingFinalization {
		logger.Debug("Nothing to finalize")
		return nil, nil
	}
	assignees, err := s.store.Assignees(ctx, jobID)
	if err != nil {
		return nil, err
	}

	exp := random.Between(s.rng, 20, 40)
	payouts := make([]Payout, len(assignees))
	for i, id := range assignees {
		payouts[i] = Payout{UserID: id, Money: job.RewardMoney, Experience: exp}
	}
	paid, err := s.store.Settle(ctx, Settlement{
		JobID:        job.ID,
		LocationID:   job.LocationID,
		Payouts:      payouts,
		KarmaChange:  job.KarmaChange,
		FactionShare: job.RewardMoney * factionSharePct / 100,
	})
	if err == ErrJobGone {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.timers.Cancel(unloadKey(jobID))

	for _, p := range paid {
		s.notifyUser(ctx, p.UserID, notify.Payload{
			Kind:  "job_completed",
			Title: "Delivery complete",
			Body:  job.Title,
			Color: notify.ColorSuccess,
		}.WithField("Reward", fmt.Sprintf("%d credits", p.Money)).
			WithField("Experience", fmt.Sprintf("+%d", p.Experience)))
	}
	s.announceLevels(ctx, paid)

	logger.Info("Transport job settled", "assignees", len(paid), "reward", job.RewardMoney)
	return &Outcome{
		JobID:   job.ID,
		Title:   job.Title,
		Kind:    KindTransport,
		Status:  StatusCompleted,
		Success: true,
		Payouts: paid,
	}, nil
}

func (s *Service) work(ctx context.Context, c character.Character, job Job) (*Outcome, error) {
	logger := s.logger.With("component", "jobs_service", "operation", "work", "job_id", job.ID, "user_id", c.UserID)

	if !c.At(job.LocationID) {
		return nil, ErrNotDocked
	}
	tr, err := s.store.Tracking(ctx, job.ID, c.UserID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load job progress", err)
	}
	if tr == nil {
		return nil, errors.Precondition(errors.ReasonNoActive, "no progress is being tracked for this job")
	}
	if !tr.Ready() {
		return nil, errors.Preconditionf(errors.ReasonInsufficientResources,
			"%.0f more minutes of work are needed", tr.Remaining())
	}

	skill, minSkill := 0, 0
	if name := job.Skill(); name != "" {
		skill, minSkill = s.skill(ctx, c, name), job.MinSkillLevel
	}
	chance := SuccessChance(job.DangerLevel, skill, minSkill)
	roll := random.D100(s.rng)
	success := roll <= chance

	assignees, err := s.store.Assignees(ctx, job.ID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load assignees", err)
	}

	settlement := Settlement{JobID: job.ID, LocationID: job.LocationID}
	var money, exp int
	if success {
		money, exp = job.RewardMoney, random.Between(s.rng, 25, 50)
		settlement.KarmaChange = job.KarmaChange
		settlement.FactionShare = job.RewardMoney * factionSharePct / 100
	} else {
		money, exp = job.RewardMoney/3, random.Between(s.rng, 5, 15)
	}
	for _, id := range assignees {
		p := Payout{UserID: id, Money: money, Experience: exp}
		if success && random.Chance(s.rng, skillUpChance) {
			p.SkillUp = random.Pick(s.rng, character.Skills)
		}
		settlement.Payouts = append(settlement.Payouts, p)
	}

	paid, err := s.store.Settle(ctx, settlement)
	if err != nil {
		if err == ErrJobGone {
			return nil, err
		}
		return nil, errors.WrapInternal("failed to settle job", err)
	}

	for _, p := range paid {
		payload := notify.Payload{
			Kind:  "job_completed",
			Title: job.Title,
			Color: notify.ColorSuccess,
		}.WithField("Reward", fmt.Sprintf("%d credits", p.Money)).
			WithField("Experience", fmt.Sprintf("+%d", p.Experience))
		if !success {
			payload.Kind, payload.Color = "job_failed", notify.ColorWarning
			payload.Body = "The work went badly. You were paid a fraction of the reward."
		}
		if p.SkillUp != "" {
			payload = payload.WithField("Skill", fmt.Sprintf("%s +1", p.SkillUp))
		}
		s.notifyUser(ctx, p.UserID, payload)
	}
	s.announceLevels(ctx, paid)

	logger.Info("Stationary job settled", "success", success, "roll", roll, "chance", chance)
	return &Outcome{
		JobID:         job.ID,
		Title:         job.Title,
		Kind:          KindStationary,
		Status:        StatusCompleted,
		Success:       success,
		Roll:          roll,
		SuccessChance: chance,
		Payouts:       paid,
	}, nil
}

func (s *Service) announceLevels(ctx context.Context, payouts []Payout) {
	for _, p := range payouts {
		if p.NewLevel == 0 {
			continue
		}
		s.notifyUser(ctx, p.UserID, notify.Payload{
			Kind:  "level_up",
			Title: fmt.Sprintf("Level %d reached", p.NewLevel),
			Body:  "You gained a skill point.",
			Color: notify.ColorSuccess,
		})
	}
}

// Abandon gives up the caller's job. A co-assignee only leaves the group
// job; the taker puts it back on the board.
func (s *Service) Abandon(ctx context.Context, userID int64) (*Job, error) {
	logger := s.logger.With("component", "jobs_service", "operation", "abandon", "user_id", userID)

	job, err := s.store.ActiveJob(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load active job", err)
	}
	if job == nil {
		return nil, ErrNoJob
	}

	if job.TakenBy != nil && *job.TakenBy != userID {
		if err := s.store.Leave(ctx, job.ID, userID); err != nil {
			return nil, errors.WrapInternal("failed to leave job", err)
		}
		logger.Info("Left group job", "job_id", job.ID)
		return job, nil
	}

	if err := s.store.Release(ctx, job.ID); err != nil {
		return nil, errors.WrapInternal("failed to abandon job", err)
	}
	s.timers.Cancel(unloadKey(job.ID))

	logger.Info("Job abandoned", "job_id", job.ID)
	return job, nil
}

// Tick credits a minute of work to every assignee standing at their job
// site. It is the body of the job tracker loop.
func (s *Service) Tick(ctx context.Context) (TickResult, error) {
	return s.tick(ctx, nil)
}

// ForceTick runs one tracker pass for a single user.
func (s *Service) ForceTick(ctx context.Context, userID int64) (TickResult, error) {
	return s.tick(ctx, &userID)
}

func (s *Service) tick(ctx context.Context, userID *int64) (TickResult, error) {
	logger := s.logger.With("component", "jobs_service", "operation", "tick")

	var result TickResult
	rows, err := s.store.Tracked(ctx, userID)
	if err != nil {
		return result, err
	}
	now := s.clock.Now()
	for _, row := range rows {
		result.Processed++
		present := row.Present()
		total, err := s.store.Credit(ctx, row.ID, present, now)
		if err != nil {
			logger.Error("Failed to credit job time", "tracking_id", row.ID, "error", err)
			continue
		}
		if present {
			result.Credited++
		}
		if total < row.RequiredDuration || row.ReadyNotified {
			continue
		}
		first, err := s.store.MarkNotified(ctx, row.ID)
		if err != nil {
			logger.Error("Failed to mark job ready", "tracking_id", row.ID, "error", err)
			continue
		}
		if !first {
			continue
		}
		result.Ready++
		s.notifyUser(ctx, row.UserID, notify.Payload{
			Kind:  "job_ready",
			Title: "Job ready",
			Body:  fmt.Sprintf("%s is ready to be completed.", row.Title),
			Color: notify.ColorInfo,
		})
	}

	if result.Processed > 0 {
		logger.Debug("Job progress updated", "processed", result.Processed, "credited", result.Credited, "ready", result.Ready)
	}
	return result, nil
}

// NotifyArrival tells a character about deliveries they can complete where
// they just arrived.
func (s *Service) NotifyArrival(ctx context.Context, userID, locationID int64) {
	jobs, err := s.store.TransportsTo(ctx, userID, locationID)
	if err != nil {
		s.logger.Warn("Failed to check deliveries", "component", "jobs_service", "user_id", userID, "error", err)
		return
	}
	for _, j := range jobs {
		s.notifyUser(ctx, userID, notify.Payload{
			Kind:  "job_deliverable",
			Title: "Delivery destination reached",
			Body:  fmt.Sprintf("Complete %q to unload.", j.Title),
			Color: notify.ColorInfo,
		})
	}
}

// Resume re-arms unload timers left over from a previous process. Overdue
// unloads settle immediately.
func (s *Service) Resume(ctx context.Context) error {
	logger := s.logger.With("component", "jobs_service", "operation", "resume")

	jobs, err := s.store.Unloading(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now()
	var overdue int
	for _, j := range jobs {
		if j.UnloadAt == nil || !j.UnloadAt.After(now) {
			overdue++
			if _, err := s.Finalize(ctx, j.ID); err != nil {
				logger.Error("Failed to finalize overdue job", "job_id", j.ID, "error", err)
			}
			continue
		}
		s.scheduleUnload(j.ID, j.UnloadAt.Sub(now))
	}

	logger.Info("Unloading jobs resumed", "total", len(jobs), "overdue", overdue)
	return nil
}

func (s *Service) notifyUser(ctx context.Context, userID int64, payload notify.Payload) {
	if err := s.notifier.NotifyUser(ctx, userID, payload); err != nil {
		s.logger.Warn("Failed to notify user", "component", "jobs_service", "user_id", userID, "error", err)
	}
}

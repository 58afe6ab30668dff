// Package quests runs admin-authored multi-step quests. A monitor loop
// judges each active quest's current objective against the character's
// state and advances it one step at a time.
package quests

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/gametime"
	"corridor-server/internal/notify"
	"corridor-server/internal/shared/errors"
)

var (
	ErrQuestActive  = errors.Precondition(errors.ReasonAlreadyActive, "you already have an active quest")
	ErrNoQuest      = errors.Precondition(errors.ReasonNoActive, "you have no active quest")
	ErrStale        = errors.Conflictf("quest progress changed")
	ErrItemsMissing = errors.Precondition(errors.ReasonInsufficientResources, "not enough items to deliver")
)

type Store interface {
	GetCharacter(ctx context.Context, userID int64) (*character.Character, error)
	Available(ctx context.Context, locationID int64) ([]Quest, error)
	Quest(ctx context.Context, questID int64) (*Quest, error)
	Objectives(ctx context.Context, questID int64) ([]Objective, error)
	Progress(ctx context.Context, questID, userID int64) (*Progress, error)
	ActiveProgress(ctx context.Context, userID int64) (*Progress, error)
	AllActive(ctx context.Context) ([]Progress, error)
	Start(ctx context.Context, questID, userID int64, now time.Time) error
	Abandon(ctx context.Context, questID, userID int64) (bool, error)
	ItemCount(ctx context.Context, userID int64, item string) (int, error)
	SoldSince(ctx context.Context, userID int64, item string, since time.Time) (int, error)
	CompleteObjective(ctx context.Context, step Step) (*StepResult, error)
	Create(ctx context.Context, q Quest, objectives []Objective) (*Quest, error)
	Toggle(ctx context.Context, questID int64) (*bool, error)
}

type Service struct {
	store    Store
	notifier notify.Notifier
	clock    *gametime.Clock
	logger   *slog.Logger
}

func NewService(store Store, notifier notify.Notifier, clock *gametime.Clock, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		notifier: notifier,
		clock:    clock,
		logger:   logger,
	}
}

func (s *Service) Available(ctx context.Context, locationID int64) ([]Quest, error) {
	quests, err := s.store.Available(ctx, locationID)
	if err != nil {
		return nil, errors.WrapInternal("failed to list quests", err)
	}
	return quests, nil
}

// Accept starts a quest for userID at the quest's start location.
func (s *Service) Accept(ctx context.Context, userID, questID int64) (*Quest, error) {
	logger := s.logger.With("component", "quests_service", "operation", "accept", "user_id", userID, "quest_id", questID)

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

	q, err := s.store.Quest(ctx, questID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load quest", err)
	}
	if q == nil || !q.IsActive {
		return nil, errors.NotFoundf("quest %d not found", questID)
	}
	if q.Exhausted() {
		return nil, errors.NotFoundf("quest %d is no longer available", questID)
	}
	if !c.At(q.StartLocation) {
		return nil, errors.Precondition(errors.ReasonWrongLocation, "this quest starts elsewhere")
	}
	if c.Level < q.RequiredLevel {
		return nil, errors.Preconditionf(errors.ReasonInsufficientResources,
			"you need to be level %d to accept this quest", q.RequiredLevel)
	}

	prev, err := s.store.Progress(ctx, questID, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to check quest history", err)
	}
	if prev != nil {
		switch prev.Status {
		case StatusActive:
			return nil, ErrQuestActive
		case StatusCompleted:
			return nil, errors.Precondition(errors.ReasonAlreadyActive, "you have already completed this quest")
		}
	}
	active, err := s.store.ActiveProgress(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to check active quest", err)
	}
	if active != nil {
		return nil, ErrQuestActive
	}

	if err := s.store.Start(ctx, questID, userID, s.clock.Now()); err != nil {
		if err == ErrQuestActive {
			return nil, err
		}
		return nil, errors.WrapInternal("failed to start quest", err)
	}

	logger.Info("Quest accepted")
	return q, nil
}

func (s *Service) Abandon(ctx context.Context, userID int64) (*Progress, error) {
	p, err := s.store.ActiveProgress(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load active quest", err)
	}
	if p == nil {
		return nil, ErrNoQuest
	}
	ok, err := s.store.Abandon(ctx, p.QuestID, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to abandon quest", err)
	}
	if !ok {
		return nil, ErrNoQuest
	}
	p.Status = StatusAbandoned
	return p, nil
}

// Status returns the caller's active quest with per-objective completion.
func (s *Service) Status(ctx context.Context, userID int64) (*StatusView, error) {
	p, err := s.store.ActiveProgress(ctx, userID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load active quest", err)
	}
	if p == nil {
		return nil, ErrNoQuest
	}
	q, err := s.store.Quest(ctx, p.QuestID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load quest", err)
	}
	if q == nil {
		return nil, ErrNoQuest
	}
	objs, err := s.store.Objectives(ctx, p.QuestID)
	if err != nil {
		return nil, errors.WrapInternal("failed to load objectives", err)
	}

	view := &StatusView{Quest: *q, Progress: *p}
	for _, o := range objs {
		view.Objectives = append(view.Objectives, ObjectiveStatus{
			Objective: o,
			Completed: p.Done(o.Order),
			Current:   o.Order == p.CurrentObjective,
		})
	}
	return view, nil
}

// Tick judges every active quest once. It is the body of the quest monitor.
func (s *Service) Tick(ctx context.Context) (TickResult, error) {
	logger := s.logger.With("component", "quests_service", "operation", "tick")

	var result TickResult
	active, err := s.store.AllActive(ctx)
	if err != nil {
		return result, err
	}

	objectives := map[int64][]Objective{}
	quests := map[int64]*Quest{}
	for _, p := range active {
		result.Checked++
		objs, ok := objectives[p.QuestID]
		if !ok {
			if objs, err = s.store.Objectives(ctx, p.QuestID); err != nil {
				logger.Error("Failed to load objectives", "quest_id", p.QuestID, "error", err)
				continue
			}
			objectives[p.QuestID] = objs
		}
		q, ok := quests[p.QuestID]
		if !ok {
			if q, err = s.store.Quest(ctx, p.QuestID); err != nil {
				logger.Error("Failed to load quest", "quest_id", p.QuestID, "error", err)
				continue
			}
			quests[p.QuestID] = q
		}
		if q == nil {
			continue
		}

		advanced, finished, err := s.check(ctx, *q, p, objs)
		if err != nil {
			logger.Error("Failed to check quest progress", "quest_id", p.QuestID, "user_id", p.UserID, "error", err)
			continue
		}
		if finished {
			result.Completed++
		} else if advanced {
			result.Advanced++
		}
	}

	if result.Advanced+result.Completed > 0 {
		logger.Info("Quest progress updated", "checked", result.Checked, "advanced", result.Advanced, "completed", result.Completed)
	}
	return result, nil
}

func (s *Service) check(ctx context.Context, q Quest, p Progress, objs []Objective) (advanced, finished bool, err error) {
	var obj *Objective
	for i := range objs {
		if objs[i].Order == p.CurrentObjective {
			obj = &objs[i]
			break
		}
	}
	if obj == nil {
		return false, false, nil
	}

	snap, err := s.snapshot(ctx, p, *obj)
	if err != nil || snap == nil {
		return false, false, err
	}
	if !Met(*obj, *snap) {
		return false, false, nil
	}

	done := len(p.Completed)
	if !p.Done(obj.Order) {
		done++
	}
	step := Step{
		QuestID:  p.QuestID,
		UserID:   p.UserID,
		Order:    obj.Order,
		Final:    done >= len(objs),
		Finished: s.clock.Now(),
	}
	if obj.Type == ObjectiveDeliverItem {
		step.Deliver = &Delivery{Item: obj.Item(), Quantity: obj.TargetQuantity}
	}
	if step.Final {
		step.Money, step.Exp = q.RewardMoney, q.RewardExperience
	}

	res, err := s.store.CompleteObjective(ctx, step)
	if err == ErrStale || err == ErrItemsMissing {
		return false, false, nil
	}
	if err != nil {
		return false, false, err
	}

	if !step.Final {
		s.notifyUser(ctx, p.UserID, notify.Payload{
			Kind:  "quest_objective",
			Title: q.Title,
			Body:  fmt.Sprintf("Objective %d of %d complete.", obj.Order, len(objs)),
			Color: notify.ColorSuccess,
		})
		return true, false, nil
	}

	s.notifyUser(ctx, p.UserID, notify.Payload{
		Kind:  "quest_completed",
		Title: fmt.Sprintf("Quest complete: %s", q.Title),
		Color: notify.ColorSuccess,
	}.WithField("Reward", fmt.Sprintf("%d credits", q.RewardMoney)).
		WithField("Experience", fmt.Sprintf("+%d", q.RewardExperience)).
		WithField("Time", fmt.Sprintf("%d min", res.Minutes)))
	if res.NewLevel > 0 {
		s.notifyUser(ctx, p.UserID, notify.Payload{
			Kind:  "level_up",
			Title: fmt.Sprintf("Level %d reached", res.NewLevel),
			Body:  "You gained a skill point.",
			Color: notify.ColorSuccess,
		})
	}
	return true, true, nil
}

// snapshot gathers only what the objective needs. It returns nil when the
// character is gone.
func (s *Service) snapshot(ctx context.Context, p Progress, obj Objective) (*Snapshot, error) {
	c, err := s.store.GetCharacter(ctx, p.UserID)
	if err != nil || c == nil {
		return nil, err
	}
	snap := &Snapshot{Location: c.CurrentLocation, Money: c.Money}

	switch obj.Type {
	case ObjectiveObtainItem, ObjectiveDeliverItem:
		if snap.ItemCount, err = s.store.ItemCount(ctx, p.UserID, obj.Item()); err != nil {
			return nil, err
		}
	case ObjectiveSellItem:
		if snap.Sold, err = s.store.SoldSince(ctx, p.UserID, obj.Item(), p.ObjectiveStartedAt); err != nil {
			return nil, err
		}
	}
	return snap, nil
}

// Create stores an admin-authored quest. Objectives are ordered as given.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Quest, error) {
	if strings.TrimSpace(req.Title) == "" {
		return nil, errors.Validation("title is required")
	}
	if req.StartLocation <= 0 {
		return nil, errors.Validation("start_location is required")
	}
	if len(req.Objectives) == 0 {
		return nil, errors.Validation("at least one objective is required")
	}
	if req.RewardMoney < 0 || req.RewardExperience < 0 {
		return nil, errors.Validation("rewards cannot be negative")
	}

	q := Quest{
		Title:            strings.TrimSpace(req.Title),
		Description:      req.Description,
		StartLocation:    req.StartLocation,
		RewardMoney:      req.RewardMoney,
		RewardExperience: req.RewardExperience,
		RequiredLevel:    max(1, req.RequiredLevel),
		MaxCompletions:   Unlimited,
		CreatedBy:        req.CreatedBy,
	}
	if req.MaxCompletions != nil {
		if *req.MaxCompletions < Unlimited || *req.MaxCompletions == 0 {
			return nil, errors.Validation("max_completions must be positive or -1")
		}
		q.MaxCompletions = *req.MaxCompletions
	}

	objs := make([]Objective, 0, len(req.Objectives))
	for i, spec := range req.Objectives {
		o, err := objectiveFrom(i+1, spec)
		if err != nil {
			return nil, err
		}
		objs = append(objs, o)
	}

	created, err := s.store.Create(ctx, q, objs)
	if err != nil {
		return nil, errors.WrapInternal("failed to create quest", err)
	}
	return created, nil
}

func objectiveFrom(order int, spec ObjectiveSpec) (Objective, error) {
	o := Objective{
		Order:            order,
		Type:             spec.Type,
		TargetLocationID: spec.TargetLocationID,
		TargetQuantity:   max(1, spec.TargetQuantity),
		TargetAmount:     spec.TargetAmount,
		Description:      spec.Description,
	}
	if !spec.Type.Valid() {
		return o, errors.Validationf("objective %d: unknown type %q", order, spec.Type)
	}
	switch spec.Type {
	case ObjectiveTravel, ObjectiveVisitLocation, ObjectiveDeliverItem:
		if spec.TargetLocationID == nil {
			return o, errors.Validationf("objective %d: target_location_id is required", order)
		}
	}
	switch spec.Type {
	case ObjectiveObtainItem, ObjectiveSellItem, ObjectiveDeliverItem:
		item := strings.TrimSpace(spec.TargetItem)
		if item == "" {
			return o, errors.Validationf("objective %d: target_item is required", order)
		}
		o.TargetItem = &item
	case ObjectiveEarnMoney:
		if spec.TargetAmount <= 0 {
			return o, errors.Validationf("objective %d: target_amount must be positive", order)
		}
	}
	return o, nil
}

func (s *Service) Toggle(ctx context.Context, questID int64) (bool, error) {
	active, err := s.store.Toggle(ctx, questID)
	if err != nil {
		return false, errors.WrapInternal("failed to toggle quest", err)
	}
	if active == nil {
		return false, errors.NotFoundf("quest %d not found", questID)
	}
	s.logger.Info("Quest toggled", "component", "quests_service", "quest_id", questID, "is_active", *active)
	return *active, nil
}

func (s *Service) notifyUser(ctx context.Context, userID int64, payload notify.Payload) {
	if err := s.notifier.NotifyUser(ctx, userID, payload); err != nil {
		s.logger.Warn("Failed to notify user", "component", "quests_service", "user_id", userID, "error", err)
	}
}

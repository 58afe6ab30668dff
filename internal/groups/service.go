// Package groups manages player groups and the votes they hold before
// acting together.
package groups

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"corridor-server/internal/notify"
	"corridor-server/internal/shared/errors"

	"github.com/google/uuid"
)

var (
	ErrNotInGroup   = errors.Precondition(errors.ReasonNoActive, "you are not in a group")
	ErrVoteInFlight = errors.Precondition(errors.ReasonAlreadyActive, "your group already has an active vote")
	ErrNotLeader    = errors.Forbidden("only the group leader can do that")
)

type Store interface {
	CreateGroup(ctx context.Context, leaderID int64, name string) (*Group, error)
	GetGroup(ctx context.Context, groupID int64) (*Group, error)
	SetMembership(ctx context.Context, userID int64, groupID *int64) error
	Disband(ctx context.Context, groupID int64) error
	MemberIDs(ctx context.Context, groupID int64) ([]int64, error)
	ActiveSession(ctx context.Context, groupID int64, now time.Time) (*Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error)
	InsertSession(ctx context.Context, s Session) error
	CastVote(ctx context.Context, sessionID uuid.UUID, groupID, userID int64, yes bool) (*Tally, error)
	DeleteSession(ctx context.Context, sessionID uuid.UUID) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// Resolver carries out a vote that passed.
type Resolver func(ctx context.Context, session Session, members []int64) error

type Service struct {
	store    Store
	notifier notify.Notifier
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger

	mu        sync.RWMutex
	resolvers map[VoteType]Resolver
}

func NewService(store Store, notifier notify.Notifier, timeout time.Duration, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		notifier:  notifier,
		timeout:   timeout,
		now:       time.Now,
		logger:    logger,
		resolvers: make(map[VoteType]Resolver),
	}
}

// Handle registers the resolver for a vote type.
func (s *Service) Handle(voteType VoteType, fn Resolver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolvers[voteType] = fn
}

func (s *Service) Create(ctx context.Context, leaderID int64, name string, currentGroup *int64) (*Group, error) {
	if currentGroup != nil {
		return nil, errors.Precondition(errors.ReasonAlreadyActive, "you are already in a group")
	}
	if name == "" {
		return nil, errors.Validation("group name is required")
	}
	return s.store.CreateGroup(ctx, leaderID, name)
}

func (s *Service) Join(ctx context.Context, userID int64, currentGroup *int64, groupID int64) error {
	if currentGroup != nil {
		return errors.Precondition(errors.ReasonAlreadyActive, "you are already in a group")
	}
	g, err := s.store.GetGroup(ctx, groupID)
	if err != nil {
		return err
	}
	if g == nil {
		return errors.NotFoundf("group %d not found", groupID)
	}
	return s.store.SetMembership(ctx, userID, &groupID)
}

// Leave removes userID from their group. A leader leaving disbands it.
func (s *Service) Leave(ctx context.Context, userID int64, groupID *int64) error {
	if groupID == nil {
		return ErrNotInGroup
	}
	g, err := s.store.GetGroup(ctx, *groupID)
	if err != nil {
		return err
	}
	if g != nil && g.LeaderID == userID {
		return s.store.Disband(ctx, g.ID)
	}
	return s.store.SetMembership(ctx, userID, nil)
}

func (s *Service) Members(ctx context.Context, groupID int64) ([]int64, error) {
	return s.store.MemberIDs(ctx, groupID)
}

// Open starts a vote for groupID and asks every member to take part.
func (s *Service) Open(ctx context.Context, groupID int64, voteType VoteType, data any) (*Session, error) {
	logger := s.logger.With("component", "groups_service", "operation", "open_vote", "group_id", groupID)

	now := s.now().UTC()
	active, err := s.store.ActiveSession(ctx, groupID, now)
	if err != nil {
		return nil, err
	}
	if active != nil {
		return nil, ErrVoteInFlight
	}

	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encode vote data: %w", err)
	}

	session := Session{
		ID:        uuid.New(),
		GroupID:   groupID,
		VoteType:  voteType,
		Data:      Payload(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(s.timeout),
	}
	if err := s.store.InsertSession(ctx, session); err != nil {
		return nil, err
	}

	members, err := s.store.MemberIDs(ctx, groupID)
	if err != nil {
		return nil, err
	}
	payload := notify.Payload{
		Kind:  "vote_open",
		Title: fmt.Sprintf("Group vote: %s", voteType),
		Body:  "Cast your vote before it expires.",
		Color: notify.ColorInfo,
	}.WithField("Session", session.ID.String()).
		WithField("Expires", session.ExpiresAt.Format(time.RFC3339))
	for _, id := range members {
		if err := s.notifier.NotifyUser(ctx, id, payload); err != nil {
			logger.Warn("Failed to notify member of vote", "user_id", id, "error", err)
		}
	}

	logger.Info("Vote opened", "session_id", session.ID, "vote_type", voteType, "members", len(members))
	return &session, nil
}

// Cast records a vote. Once every member has voted the session is closed
// and, when it passed, handed to the resolver for its type.
func (s *Service) Cast(ctx context.Context, userID int64, groupID *int64, sessionID uuid.UUID, yes bool) (*VoteResult, error) {
	logger := s.logger.With("component", "groups_service", "operation", "cast_vote", "user_id", userID, "session_id", sessionID)

	if groupID == nil {
		return nil, ErrNotInGroup
	}
	session, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil || session.GroupID != *groupID || !session.ExpiresAt.After(s.now()) {
		return nil, errors.NotFoundf("vote %s not found or expired", sessionID)
	}

	tally, err := s.store.CastVote(ctx, sessionID, session.GroupID, userID, yes)
	if err != nil {
		return nil, err
	}
	result := &VoteResult{Session: *session, Tally: *tally, Outcome: tally.Outcome()}
	if result.Outcome == OutcomePending {
		return result, nil
	}

	closed, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !closed {
		// another voter resolved it first
		return result, nil
	}

	members, err := s.store.MemberIDs(ctx, session.GroupID)
	if err != nil {
		return nil, err
	}

	if result.Outcome == OutcomeFailed {
		logger.Info("Vote failed", "yes", tally.Yes, "no", tally.No)
		s.announce(ctx, members, notify.Payload{
			Kind:  "vote_failed",
			Title: fmt.Sprintf("Group %s vote failed", session.VoteType),
			Color: notify.ColorWarning,
		})
		return result, nil
	}

	s.mu.RLock()
	resolve := s.resolvers[session.VoteType]
	s.mu.RUnlock()
	if resolve == nil {
		return nil, fmt.Errorf("no resolver for %s votes", session.VoteType)
	}
	if err := resolve(ctx, *session, members); err != nil {
		logger.Error("Failed to carry out vote", "error", err)
		return nil, err
	}

	logger.Info("Vote passed", "yes", tally.Yes, "no", tally.No)
	return result, nil
}

func (s *Service) announce(ctx context.Context, members []int64, payload notify.Payload) {
	for _, id := range members {
		if err := s.notifier.NotifyUser(ctx, id, payload); err != nil {
			s.logger.Warn("Failed to notify member", "component", "groups_service", "user_id", id, "error", err)
		}
	}
}

// SweepExpired deletes vote sessions past their deadline. It is the body of
// the vote sweep task.
func (s *Service) SweepExpired(ctx context.Context) error {
	n, err := s.store.DeleteExpired(ctx, s.now().UTC())
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Info("Expired votes removed", "component", "groups_service", "count", n)
	}
	return nil
}

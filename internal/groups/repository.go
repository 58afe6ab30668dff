package groups

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"corridor-server/internal/shared/database"

	"github.com/google/uuid"
)

const sessionColumns = `session_id, group_id, vote_type, vote_data, channel_id, created_at, expires_at`

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing groups repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) CreateGroup(ctx context.Context, leaderID int64, name string) (*Group, error) {
	var g Group
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		if err := tx.GetContext(ctx, &g, `
			INSERT INTO groups (name, leader_id) VALUES ($1, $2)
			RETURNING group_id, name, leader_id, created_at`, name, leaderID); err != nil {
			return fmt.Errorf("failed to insert group: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE characters SET group_id = $1 WHERE user_id = $2`, g.ID, leaderID); err != nil {
			return fmt.Errorf("failed to assign leader: %w", err)
		}
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to create group", "component", "groups_repository", "leader_id", leaderID, "error", err)
		return nil, err
	}
	return &g, nil
}

func (r *Repository) GetGroup(ctx context.Context, groupID int64) (*Group, error) {
	var g Group
	err := r.db.GetContext(ctx, &g, `SELECT group_id, name, leader_id, created_at FROM groups WHERE group_id = $1`, groupID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get group: %w", err)
	}
	return &g, nil
}

func (r *Repository) SetMembership(ctx context.Context, userID int64, groupID *int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE characters SET group_id = $1 WHERE user_id = $2`, groupID, userID); err != nil {
		return fmt.Errorf("failed to set group membership: %w", err)
	}
	return nil
}

// Disband removes a group. Members are released by the foreign key.
func (r *Repository) Disband(ctx context.Context, groupID int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM groups WHERE group_id = $1`, groupID); err != nil {
		return fmt.Errorf("failed to disband group: %w", err)
	}
	return nil
}

func (r *Repository) MemberIDs(ctx context.Context, groupID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM characters WHERE group_id = $1 ORDER BY user_id`, groupID); err != nil {
		return nil, fmt.Errorf("failed to list group members: %w", err)
	}
	return ids, nil
}

func (r *Repository) ActiveSession(ctx context.Context, groupID int64, now time.Time) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `
		SELECT `+sessionColumns+` FROM vote_sessions
		WHERE group_id = $1 AND expires_at > $2
		ORDER BY created_at DESC LIMIT 1`, groupID, now)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active vote: %w", err)
	}
	return &s, nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM vote_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get vote session: %w", err)
	}
	return &s, nil
}

func (r *Repository) InsertSession(ctx context.Context, s Session) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO vote_sessions (session_id, group_id, vote_type, vote_data, channel_id, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		s.ID, s.GroupID, s.VoteType, s.Data, s.ChannelID, s.CreatedAt, s.ExpiresAt)
	if err != nil {
		r.logger.Error("Failed to insert vote session", "component", "groups_repository", "group_id", s.GroupID, "error", err)
		return fmt.Errorf("failed to insert vote session: %w", err)
	}
	return nil
}

// CastVote records or replaces a member's vote and returns the new tally.
func (r *Repository) CastVote(ctx context.Context, sessionID uuid.UUID, groupID, userID int64, yes bool) (*Tally, error) {
	var t Tally
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO group_votes (session_id, user_id, vote) VALUES ($1, $2, $3)
			ON CONFLICT (session_id, user_id) DO UPDATE SET vote = EXCLUDED.vote, voted_at = NOW()`,
			sessionID, userID, yes); err != nil {
			return fmt.Errorf("failed to record vote: %w", err)
		}
		return tx.GetContext(ctx, &t, `
			SELECT COUNT(*) FILTER (WHERE v.vote) AS yes,
			       COUNT(*) FILTER (WHERE NOT v.vote) AS no,
			       (SELECT COUNT(*) FROM characters WHERE group_id = $2) AS members
			FROM group_votes v WHERE v.session_id = $1`, sessionID, groupID)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cast vote: %w", err)
	}
	return &t, nil
}

// DeleteSession removes a session. It reports false when another caller
// already removed it.
func (r *Repository) DeleteSession(ctx context.Context, sessionID uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vote_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to delete vote session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete vote session: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM vote_sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired votes: %w", err)
	}
	return res.RowsAffected()
}

package travel

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/jobs"
	"corridor-server/internal/shared/database"
	"corridor-server/internal/world"
)

const sessionColumns = `session_id, user_id, group_id, corridor_id, origin_location, destination_location,
	start_time, end_time, temp_channel_id, status`

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing travel repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetCharacter(ctx context.Context, userID int64) (*character.Character, error) {
	return character.GetCharacter(ctx, r.db, userID)
}

func (r *Repository) GetActiveShip(ctx context.Context, userID int64) (*character.Ship, error) {
	return character.GetActiveShip(ctx, r.db, userID)
}

func (r *Repository) GroupMembers(ctx context.Context, groupID int64) ([]character.Character, error) {
	return character.GroupMembers(ctx, r.db, groupID)
}

func (r *Repository) GetCorridor(ctx context.Context, corridorID int64) (*world.Corridor, error) {
	return world.GetCorridor(ctx, r.db, corridorID)
}

func (r *Repository) GetLocation(ctx context.Context, locationID int64) (*world.Location, error) {
	return world.GetLocation(ctx, r.db, locationID)
}

// StartTravel moves every departure into the corridor in one transaction.
// Each character must still be in space at the corridor's origin and each
// ship must still hold enough fuel.
func (r *Repository) StartTravel(ctx context.Context, corridor world.Corridor, departures []Departure, channelID string, start time.Time) ([]Session, error) {
	logger := r.logger.With("component", "travel_repository", "operation", "start_travel", "corridor_id", corridor.ID)

	var channel *string
	if channelID != "" {
		channel = &channelID
	}

	var sessions []Session
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		for _, d := range departures {
			res, err := tx.ExecContext(ctx, `
				UPDATE characters SET location_status = 'traveling', current_location = NULL
				WHERE user_id = $1 AND location_status = 'in_space' AND current_location = $2`,
				d.UserID, corridor.Origin)
			if err != nil {
				return fmt.Errorf("failed to move character into corridor: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrNotInSpace
			}

			res, err = tx.ExecContext(ctx, `
				UPDATE ships SET current_fuel = current_fuel - $1
				WHERE ship_id = $2 AND current_fuel >= $1`, d.Fuel, d.ShipID)
			if err != nil {
				return fmt.Errorf("failed to burn fuel: %w", err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return ErrInsufficientFuel
			}

			var s Session
			err = tx.GetContext(ctx, &s, `
				INSERT INTO travel_sessions
					(user_id, group_id, corridor_id, origin_location, destination_location,
					 start_time, end_time, temp_channel_id, status)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, 'traveling')
				RETURNING `+sessionColumns,
				d.UserID, d.GroupID, corridor.ID, corridor.Origin, corridor.Destination,
				start, start.Add(corridor.Duration()), channel)
			if err != nil {
				return fmt.Errorf("failed to insert travel session: %w", err)
			}
			sessions = append(sessions, s)
		}
		return nil
	})
	if err != nil {
		if err != ErrNotInSpace && err != ErrInsufficientFuel {
			logger.Error("Failed to start travel", "error", err)
		}
		return nil, err
	}
	return sessions, nil
}

// CompleteSession finishes a session that is still traveling and docks the
// traveller at the destination. It returns nil when the session was
// already finished or cancelled.
func (r *Repository) CompleteSession(ctx context.Context, sessionID int64) (*Arrival, error) {
	var arrival *Arrival
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		var s Session
		err := tx.GetContext(ctx, &s, `
			UPDATE travel_sessions SET status = 'completed'
			WHERE session_id = $1 AND status = 'traveling' AND destination_location IS NOT NULL
			RETURNING `+sessionColumns, sessionID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to complete session: %w", err)
		}

		var guildID int64
		err = tx.GetContext(ctx, &guildID, `
			UPDATE characters SET current_location = $1, location_status = 'docked'
			WHERE user_id = $2 AND location_status = 'traveling'
			RETURNING guild_id`, s.Destination, s.UserID)
		if err != nil && err != sql.ErrNoRows {
			return fmt.Errorf("failed to dock character: %w", err)
		}

		a := &Arrival{Session: s, GuildID: guildID}
		if s.ChannelID != nil {
			if err := tx.GetContext(ctx, &a.StillTravelling, `
				SELECT COUNT(*) FROM travel_sessions
				WHERE temp_channel_id = $1 AND status = 'traveling'`, *s.ChannelID); err != nil {
				return fmt.Errorf("failed to count channel passengers: %w", err)
			}
		}
		arrival = a
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to complete travel", "component", "travel_repository", "session_id", sessionID, "error", err)
		return nil, err
	}
	return arrival, nil
}

func (r *Repository) Session(ctx context.Context, sessionID int64) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM travel_sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get travel session: %w", err)
	}
	return &s, nil
}

func (r *Repository) ActiveSession(ctx context.Context, userID int64) (*Session, error) {
	var s Session
	err := r.db.GetContext(ctx, &s, `
		SELECT `+sessionColumns+` FROM travel_sessions
		WHERE user_id = $1 AND status = 'traveling'`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return &s, nil
}

func (r *Repository) TravelingSessions(ctx context.Context) ([]Session, error) {
	var sessions []Session
	if err := r.db.SelectContext(ctx, &sessions, `
		SELECT `+sessionColumns+` FROM travel_sessions
		WHERE status = 'traveling' ORDER BY end_time`); err != nil {
		return nil, fmt.Errorf("failed to list traveling sessions: %w", err)
	}
	return sessions, nil
}

// Passengers returns the sessions still traveling on a transit channel.
func (r *Repository) Passengers(ctx context.Context, channelID string) ([]Session, error) {
	var sessions []Session
	if err := r.db.SelectContext(ctx, &sessions, `
		SELECT `+sessionColumns+` FROM travel_sessions
		WHERE temp_channel_id = $1 AND status = 'traveling' ORDER BY user_id`, channelID); err != nil {
		return nil, fmt.Errorf("failed to list passengers: %w", err)
	}
	return sessions, nil
}

// DamageHP never takes a character below one hit point.
func (r *Repository) DamageHP(ctx context.Context, userID int64, amount int) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE characters SET hp = GREATEST(LEAST(hp, 1), hp - $1)
		WHERE user_id = $2`, amount, userID); err != nil {
		return fmt.Errorf("failed to damage character: %w", err)
	}
	return nil
}

// DamageHull never takes a ship below one hull point.
func (r *Repository) DamageHull(ctx context.Context, userID int64, amount int) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE ships SET hull_integrity = GREATEST(LEAST(hull_integrity, 1), hull_integrity - $1)
		WHERE owner_id = $2 AND is_active`, amount, userID); err != nil {
		return fmt.Errorf("failed to damage hull: %w", err)
	}
	return nil
}

// Abort cancels a traveling session. Survivors are put back in space at the
// corridor's origin, the rest die in the corridor. It returns nil when the
// session had already ended.
func (r *Repository) Abort(ctx context.Context, sessionID int64, survived bool) (*Session, error) {
	var out *Session
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		var s Session
		err := tx.GetContext(ctx, &s, `
			UPDATE travel_sessions SET status = 'cancelled'
			WHERE session_id = $1 AND status = 'traveling'
			RETURNING `+sessionColumns, sessionID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to cancel session: %w", err)
		}

		if survived && s.Origin != nil {
			if _, err := tx.ExecContext(ctx, `
				UPDATE characters SET current_location = $1, location_status = 'in_space'
				WHERE user_id = $2 AND location_status = 'traveling'`, *s.Origin, s.UserID); err != nil {
				return fmt.Errorf("failed to return character: %w", err)
			}
		} else if err := character.Kill(ctx, tx, []int64{s.UserID}); err != nil {
			return err
		}
		out = &s
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to abort travel", "component", "travel_repository", "session_id", sessionID, "error", err)
		return nil, err
	}
	return out, nil
}

// SetStatus moves a character between docked and in space. It reports false
// when the character was not in the expected state.
func (r *Repository) SetStatus(ctx context.Context, userID int64, from, to character.LocationStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE characters SET location_status = $1
		WHERE user_id = $2 AND location_status = $3 AND current_location IS NOT NULL`, to, userID, from)
	if err != nil {
		return false, fmt.Errorf("failed to set location status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to set location status: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) HeldStationaryJob(ctx context.Context, userID, locationID int64) (*HeldJob, error) {
	job, err := jobs.StationaryJobAt(ctx, r.db, userID, locationID)
	if err != nil || job == nil {
		return nil, err
	}
	return &HeldJob{JobID: job.ID, Title: job.Title, Reward: job.RewardMoney, LocationID: job.LocationID}, nil
}

func (r *Repository) CancelJob(ctx context.Context, jobID int64) error {
	return r.db.WithTx(ctx, func(tx *database.Tx) error {
		return jobs.Release(ctx, tx, jobID)
	})
}

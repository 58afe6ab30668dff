package jobs

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"corridor-server/internal/character"
	"corridor-server/internal/shared/database"

	"github.com/lib/pq"
)

const jobColumns = `j.job_id, j.title, j.description, j.location_id, j.destination_location_id,
	COALESCE(j.job_kind, '') AS job_kind, j.source, j.reward_money, j.required_skill, j.min_skill_level,
	j.danger_level, j.duration_minutes, j.karma_change, j.expires_at, j.is_taken, j.taken_by, j.taken_at, j.unload_at, j.job_status, j.created_at`

const trackingColumns = `jt.tracking_id, jt.job_id, jt.user_id, jt.start_location, jt.required_duration,
	jt.time_at_location, jt.last_location_check, jt.ready_notified`

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing jobs repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetCharacter(ctx context.Context, userID int64) (*character.Character, error) {
	return character.GetCharacter(ctx, r.db, userID)
}

func (r *Repository) GroupMembers(ctx context.Context, groupID int64) ([]character.Character, error) {
	return character.GroupMembers(ctx, r.db, groupID)
}

// Board lists the untaken, unexpired jobs at a location.
func (r *Repository) Board(ctx context.Context, locationID int64, now time.Time) ([]Job, error) {
	var jobs []Job
	err := r.db.SelectContext(ctx, &jobs, `
		SELECT `+jobColumns+` FROM jobs j
		WHERE j.location_id = $1 AND NOT j.is_taken AND j.expires_at > $2
		ORDER BY j.reward_money DESC, j.job_id`, locationID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list job board: %w", err)
	}
	return jobs, nil
}

// ReplaceBoard drops the untaken jobs at a location and inserts a fresh set.
func (r *Repository) ReplaceBoard(ctx context.Context, locationID int64, jobs []Job) error {
	logger := r.logger.With("component", "jobs_repository", "operation", "replace_board", "location_id", locationID)

	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM jobs WHERE location_id = $1 AND NOT is_taken`, locationID); err != nil {
			return fmt.Errorf("failed to clear job board: %w", err)
		}
		for _, j := range jobs {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO jobs (title, description, location_id, destination_location_id, job_kind, source,
					reward_money, required_skill, min_skill_level, danger_level, duration_minutes, karma_change,
					expires_at, job_status)
				VALUES ($1, $2, $3, $4, NULLIF($5::varchar, ''), $6, $7, $8, $9, $10, $11, $12, $13, 'available')`,
				j.Title, j.Description, j.LocationID, j.DestinationID, j.Kind, j.Source,
				j.RewardMoney, j.RequiredSkill, j.MinSkillLevel, j.DangerLevel, j.DurationMinutes, j.KarmaChange,
				j.ExpiresAt)
			if err != nil {
				return fmt.Errorf("failed to insert job: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to generate jobs", "error", err)
		return err
	}

	logger.Info("Job board generated", "jobs", len(jobs))
	return nil
}

func (r *Repository) Job(ctx context.Context, jobID int64) (*Job, error) {
	var j Job
	err := r.db.GetContext(ctx, &j, `SELECT `+jobColumns+` FROM jobs j WHERE j.job_id = $1`, jobID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &j, nil
}

// FindAvailable looks a job up at a location by id, or by title when id is zero.
func (r *Repository) FindAvailable(ctx context.Context, locationID, jobID int64, title string, now time.Time) (*Job, error) {
	var (
		j   Job
		err error
	)
	if jobID > 0 {
		err = r.db.GetContext(ctx, &j, `
			SELECT `+jobColumns+` FROM jobs j
			WHERE j.location_id = $1 AND j.job_id = $2 AND NOT j.is_taken AND j.expires_at > $3`,
			locationID, jobID, now)
	} else {
		err = r.db.GetContext(ctx, &j, `
			SELECT `+jobColumns+` FROM jobs j
			WHERE j.location_id = $1 AND LOWER(j.title) LIKE LOWER($2) AND NOT j.is_taken AND j.expires_at > $3
			ORDER BY j.reward_money DESC LIMIT 1`,
			locationID, "%"+title+"%", now)
	}
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find job: %w", err)
	}
	return &j, nil
}

// ActiveJob returns the job userID is assigned to, whether as taker or co-assignee.
func (r *Repository) ActiveJob(ctx context.Context, userID int64) (*Job, error) {
	var j Job
	err := r.db.GetContext(ctx, &j, `
		SELECT `+jobColumns+` FROM jobs j
		JOIN job_assignees a ON a.job_id = j.job_id
		WHERE a.user_id = $1`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active job: %w", err)
	}
	return &j, nil
}

func (r *Repository) Assignees(ctx context.Context, jobID int64) ([]int64, error) {
	var ids []int64
	if err := r.db.SelectContext(ctx, &ids,
		`SELECT user_id FROM job_assignees WHERE job_id = $1 ORDER BY user_id`, jobID); err != nil {
		return nil, fmt.Errorf("failed to list assignees: %w", err)
	}
	return ids, nil
}

// Take assigns a job to takerID and every co-assignee in one transaction.
// Stationary jobs get a tracking row per assignee.
func (r *Repository) Take(ctx context.Context, job Job, takerID int64, assignees []int64, startLocation int64, now time.Time) error {
	logger := r.logger.With("component", "jobs_repository", "operation", "take", "job_id", job.ID, "taken_by", takerID)

	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		var busy int
		if err := tx.GetContext(ctx, &busy,
			`SELECT COUNT(*) FROM job_assignees WHERE user_id = ANY($1)`, pq.Array(assignees)); err != nil {
			return fmt.Errorf("failed to check assignees: %w", err)
		}
		if busy > 0 {
			return ErrAlreadyHasJob
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE jobs SET is_taken = TRUE, taken_by = $1, taken_at = $2, job_status = 'active'
			WHERE job_id = $3 AND NOT is_taken AND expires_at > $2`, takerID, now, job.ID)
		if err != nil {
			return fmt.Errorf("failed to take job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrJobGone
		}

		for _, id := range assignees {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO job_assignees (job_id, user_id) VALUES ($1, $2)`, job.ID, id); err != nil {
				return fmt.Errorf("failed to add assignee: %w", err)
			}
			if job.IsTransport() {
				continue
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO job_tracking (job_id, user_id, start_location, required_duration, time_at_location, last_location_check)
				VALUES ($1, $2, $3, $4, 0, $5)`, job.ID, id, startLocation, float64(job.DurationMinutes), now); err != nil {
				return fmt.Errorf("failed to start job tracking: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		if err != ErrAlreadyHasJob && err != ErrJobGone {
			logger.Error("Failed to take job", "error", err)
		}
		return err
	}
	return nil
}

func (r *Repository) Tracking(ctx context.Context, jobID, userID int64) (*Tracking, error) {
	var t Tracking
	err := r.db.GetContext(ctx, &t,
		`SELECT `+trackingColumns+` FROM job_tracking jt WHERE jt.job_id = $1 AND jt.user_id = $2`, jobID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get job tracking: %w", err)
	}
	return &t, nil
}

// Tracked lists tracking rows on active jobs, optionally for one user.
func (r *Repository) Tracked(ctx context.Context, userID *int64) ([]TrackedRow, error) {
	var rows []TrackedRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT `+trackingColumns+`, j.title, c.current_location
		FROM job_tracking jt
		JOIN jobs j ON j.job_id = jt.job_id
		JOIN characters c ON c.user_id = jt.user_id
		WHERE j.is_taken AND j.job_status = 'active' AND ($1::BIGINT IS NULL OR jt.user_id = $1)
		ORDER BY jt.tracking_id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list job tracking: %w", err)
	}
	return rows, nil
}

// Credit records one tracker pass. Present assignees gain a minute.
func (r *Repository) Credit(ctx context.Context, trackingID int64, present bool, now time.Time) (float64, error) {
	var total float64
	err := r.db.GetContext(ctx, &total, `
		UPDATE job_tracking
		SET time_at_location = time_at_location + CASE WHEN $2 THEN 1.0 ELSE 0 END,
		    last_location_check = $3
		WHERE tracking_id = $1
		RETURNING time_at_location`, trackingID, present, now)
	if err != nil {
		return 0, fmt.Errorf("failed to credit job time: %w", err)
	}
	return total, nil
}

// MarkNotified flags a tracking row as announced. It reports false when it
// already was.
func (r *Repository) MarkNotified(ctx context.Context, trackingID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE job_tracking SET ready_notified = TRUE WHERE tracking_id = $1 AND NOT ready_notified`, trackingID)
	if err != nil {
		return false, fmt.Errorf("failed to mark job ready: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to mark job ready: %w", err)
	}
	return n > 0, nil
}

// BeginUnload moves an active transport job into finalization.
func (r *Repository) BeginUnload(ctx context.Context, jobID int64, unloadAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE jobs SET job_status = 'awaiting_finalization', unload_at = $2
		WHERE job_id = $1 AND job_status = 'active'`, jobID, unloadAt)
	if err != nil {
		return false, fmt.Errorf("failed to start unloading: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to start unloading: %w", err)
	}
	return n > 0, nil
}

func (r *Repository) Unloading(ctx context.Context) ([]Job, error) {
	var jobs []Job
	if err := r.db.SelectContext(ctx, &jobs, `
		SELECT `+jobColumns+` FROM jobs j
		WHERE j.job_status = 'awaiting_finalization' ORDER BY j.unload_at`); err != nil {
		return nil, fmt.Errorf("failed to list unloading jobs: %w", err)
	}
	return jobs, nil
}

// TransportsTo lists the active transport jobs userID holds that deliver to locationID.
func (r *Repository) TransportsTo(ctx context.Context, userID, locationID int64) ([]Job, error) {
	var jobs []Job
	if err := r.db.SelectContext(ctx, &jobs, `
		SELECT `+jobColumns+` FROM jobs j
		JOIN job_assignees a ON a.job_id = j.job_id
		WHERE a.user_id = $1 AND j.destination_location_id = $2 AND j.job_status = 'active'`,
		userID, locationID); err != nil {
		return nil, fmt.Errorf("failed to list deliveries: %w", err)
	}
	return jobs, nil
}

// Settle deletes the job and pays every assignee in one transaction. The
// delete comes first so a job is only ever paid once; ErrJobGone reports a
// job that was already settled or released.
func (r *Repository) Settle(ctx context.Context, s Settlement) ([]Payout, error) {
	logger := r.logger.With("component", "jobs_repository", "operation", "settle", "job_id", s.JobID)

	payouts := append([]Payout(nil), s.Payouts...)
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = $1 AND is_taken`, s.JobID)
		if err != nil {
			return fmt.Errorf("failed to delete job: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrJobGone
		}

		for i, p := range payouts {
			if err := character.AddMoney(ctx, tx, p.UserID, int64(p.Money)); err != nil {
				return err
			}
			level, err := character.GrantExperience(ctx, tx, p.UserID, p.Experience)
			if err != nil {
				return err
			}
			payouts[i].NewLevel = level
			if p.SkillUp != "" {
				if err := character.IncrementSkill(ctx, tx, p.UserID, p.SkillUp); err != nil {
					return err
				}
			}
			if s.KarmaChange != 0 {
				if _, err := tx.ExecContext(ctx, `
					INSERT INTO location_reputation (user_id, location_id, reputation) VALUES ($1, $2, $3)
					ON CONFLICT (user_id, location_id) DO UPDATE
					SET reputation = location_reputation.reputation + EXCLUDED.reputation`,
					p.UserID, s.LocationID, s.KarmaChange); err != nil {
					return fmt.Errorf("failed to update reputation: %w", err)
				}
			}
			if s.FactionShare > 0 {
				if _, err := tx.ExecContext(ctx, `
					UPDATE factions SET bank_balance = bank_balance + $1
					WHERE faction_id = (SELECT faction_id FROM characters WHERE user_id = $2)`,
					s.FactionShare, p.UserID); err != nil {
					return fmt.Errorf("failed to credit faction: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		if err != ErrJobGone {
			logger.Error("Failed to settle job", "error", err)
		}
		return nil, err
	}
	return payouts, nil
}

// Leave removes a single co-assignee from a group job.
func (r *Repository) Leave(ctx context.Context, jobID, userID int64) error {
	return r.db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM job_tracking WHERE job_id = $1 AND user_id = $2`, jobID, userID); err != nil {
			return fmt.Errorf("failed to delete job tracking: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM job_assignees WHERE job_id = $1 AND user_id = $2`, jobID, userID); err != nil {
			return fmt.Errorf("failed to remove assignee: %w", err)
		}
		return nil
	})
}

func (r *Repository) Release(ctx context.Context, jobID int64) error {
	return r.db.WithTx(ctx, func(tx *database.Tx) error {
		return Release(ctx, tx, jobID)
	})
}

// Release puts a job back on the board and drops its assignees and tracking.
func Release(ctx context.Context, exec database.Executor, jobID int64) error {
	if _, err := exec.ExecContext(ctx, `DELETE FROM job_tracking WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete job tracking: %w", err)
	}
	if _, err := exec.ExecContext(ctx, `DELETE FROM job_assignees WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to delete job assignees: %w", err)
	}
	if _, err := exec.ExecContext(ctx, `
		UPDATE jobs SET is_taken = FALSE, taken_by = NULL, taken_at = NULL, unload_at = NULL, job_status = 'available'
		WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}
	return nil
}

// StationaryJobAt returns the stationary job userID is working at locationID.
func StationaryJobAt(ctx context.Context, exec database.Executor, userID, locationID int64) (*Job, error) {
	var j Job
	err := exec.GetContext(ctx, &j, `
		SELECT `+jobColumns+` FROM jobs j
		JOIN job_tracking jt ON jt.job_id = j.job_id
		WHERE jt.user_id = $1 AND jt.start_location = $2 AND j.job_status = 'active'
		LIMIT 1`, userID, locationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get stationary job: %w", err)
	}
	return &j, nil
}

package quests

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

const questColumns = `quest_id, title, description, start_location, reward_money, reward_experience,
	required_level, max_completions, current_completions, is_active, created_by, created_at`

const objectiveColumns = `objective_id, quest_id, objective_order, objective_type, target_location_id,
	target_item, target_quantity, target_amount, description`

const progressColumns = `quest_id, user_id, current_objective, objectives_completed, quest_status,
	started_at, objective_started_at, completed_at`

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing quests repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) GetCharacter(ctx context.Context, userID int64) (*character.Character, error) {
	return character.GetCharacter(ctx, r.db, userID)
}

// Available lists the active, unexhausted quests starting at a location.
func (r *Repository) Available(ctx context.Context, locationID int64) ([]Quest, error) {
	var quests []Quest
	err := r.db.SelectContext(ctx, &quests, `
		SELECT `+questColumns+` FROM quests
		WHERE start_location = $1 AND is_active
		  AND (max_completions = -1 OR current_completions < max_completions)
		ORDER BY created_at DESC`, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	return quests, nil
}

func (r *Repository) Quest(ctx context.Context, questID int64) (*Quest, error) {
	var q Quest
	err := r.db.GetContext(ctx, &q, `SELECT `+questColumns+` FROM quests WHERE quest_id = $1`, questID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get quest: %w", err)
	}
	return &q, nil
}

func (r *Repository) Objectives(ctx context.Context, questID int64) ([]Objective, error) {
	var objs []Objective
	err := r.db.SelectContext(ctx, &objs, `
		SELECT `+objectiveColumns+` FROM quest_objectives
		WHERE quest_id = $1 ORDER BY objective_order`, questID)
	if err != nil {
		return nil, fmt.Errorf("failed to list objectives: %w", err)
	}
	return objs, nil
}

func (r *Repository) Progress(ctx context.Context, questID, userID int64) (*Progress, error) {
	var p Progress
	err := r.db.GetContext(ctx, &p, `
		SELECT `+progressColumns+` FROM quest_progress WHERE quest_id = $1 AND user_id = $2`, questID, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get quest progress: %w", err)
	}
	return &p, nil
}

func (r *Repository) ActiveProgress(ctx context.Context, userID int64) (*Progress, error) {
	var p Progress
	err := r.db.GetContext(ctx, &p, `
		SELECT `+progressColumns+` FROM quest_progress WHERE user_id = $1 AND quest_status = 'active'`, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get active quest: %w", err)
	}
	return &p, nil
}

func (r *Repository) AllActive(ctx context.Context) ([]Progress, error) {
	var rows []Progress
	if err := r.db.SelectContext(ctx, &rows, `
		SELECT `+progressColumns+` FROM quest_progress
		WHERE quest_status = 'active' ORDER BY started_at`); err != nil {
		return nil, fmt.Errorf("failed to list active quests: %w", err)
	}
	return rows, nil
}

// Start opens progress on a quest. An abandoned attempt is restarted from
// the first objective.
func (r *Repository) Start(ctx context.Context, questID, userID int64, now time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO quest_progress (quest_id, user_id, current_objective, objectives_completed, quest_status, started_at, objective_started_at)
		VALUES ($1, $2, 1, '{}', 'active', $3, $3)
		ON CONFLICT (quest_id, user_id) DO UPDATE
		SET current_objective = 1, objectives_completed = '{}', quest_status = 'active',
		    started_at = EXCLUDED.started_at, objective_started_at = EXCLUDED.objective_started_at, completed_at = NULL
		WHERE quest_progress.quest_status = 'abandoned'`, questID, userID, now)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrQuestActive
		}
		return fmt.Errorf("failed to start quest: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrQuestActive
	}
	return nil
}

func (r *Repository) Abandon(ctx context.Context, questID, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE quest_progress SET quest_status = 'abandoned'
		WHERE quest_id = $1 AND user_id = $2 AND quest_status = 'active'`, questID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to abandon quest: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to abandon quest: %w", err)
	}
	return n > 0, nil
}

// ItemCount sums every stack of an item a character holds.
func (r *Repository) ItemCount(ctx context.Context, userID int64, item string) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COALESCE(SUM(quantity), 0) FROM inventory
		WHERE owner_id = $1 AND LOWER(item_name) = LOWER($2)`, userID, item)
	if err != nil {
		return 0, fmt.Errorf("failed to count items: %w", err)
	}
	return n, nil
}

// SoldSince sums the units of an item a character sold at or after since.
func (r *Repository) SoldSince(ctx context.Context, userID int64, item string, since time.Time) (int, error) {
	var n int
	err := r.db.GetContext(ctx, &n, `
		SELECT COALESCE(SUM(quantity), 0) FROM item_sales
		WHERE user_id = $1 AND LOWER(item_name) = LOWER($2) AND sold_at >= $3`, userID, item, since)
	if err != nil {
		return 0, fmt.Errorf("failed to count item sales: %w", err)
	}
	return n, nil
}

// CompleteObjective applies one step in a single transaction. The progress
// update is conditional on the step's objective still being current, so a
// step can only ever be applied once; ErrStale reports a lost race.
func (r *Repository) CompleteObjective(ctx context.Context, step Step) (*StepResult, error) {
	logger := r.logger.With("component", "quests_repository", "operation", "complete_objective",
		"quest_id", step.QuestID, "user_id", step.UserID, "objective", step.Order)

	result := &StepResult{}
	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		var (
			res sql.Result
			err error
		)
		if step.Final {
			res, err = tx.ExecContext(ctx, `
				UPDATE quest_progress
				SET quest_status = 'completed', completed_at = $4,
				    objectives_completed = array_append(objectives_completed, $3::BIGINT)
				WHERE quest_id = $1 AND user_id = $2 AND current_objective = $3 AND quest_status = 'active'`,
				step.QuestID, step.UserID, step.Order, step.Finished)
		} else {
			res, err = tx.ExecContext(ctx, `
				UPDATE quest_progress
				SET current_objective = $3 + 1, objective_started_at = $4,
				    objectives_completed = array_append(objectives_completed, $3::BIGINT)
				WHERE quest_id = $1 AND user_id = $2 AND current_objective = $3 AND quest_status = 'active'`,
				step.QuestID, step.UserID, step.Order, step.Finished)
		}
		if err != nil {
			return fmt.Errorf("failed to advance quest: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrStale
		}

		if step.Deliver != nil {
			if err := takeItems(ctx, tx, step.UserID, step.Deliver.Item, step.Deliver.Quantity); err != nil {
				return err
			}
		}
		if !step.Final {
			return nil
		}

		if err := character.AddMoney(ctx, tx, step.UserID, int64(step.Money)); err != nil {
			return err
		}
		level, err := character.GrantExperience(ctx, tx, step.UserID, step.Exp)
		if err != nil {
			return err
		}
		result.NewLevel = level

		if _, err := tx.ExecContext(ctx,
			`UPDATE quests SET current_completions = current_completions + 1 WHERE quest_id = $1`, step.QuestID); err != nil {
			return fmt.Errorf("failed to count completion: %w", err)
		}

		var started time.Time
		if err := tx.GetContext(ctx, &started,
			`SELECT started_at FROM quest_progress WHERE quest_id = $1 AND user_id = $2`, step.QuestID, step.UserID); err != nil {
			return fmt.Errorf("failed to read quest start: %w", err)
		}
		result.Minutes = max(0, int(step.Finished.Sub(started).Minutes()))

		_, err = tx.ExecContext(ctx, `
			INSERT INTO quest_completions (quest_id, user_id, completed_at, completion_time_minutes, reward_received)
			VALUES ($1, $2, $3, $4, json_build_object('money', $5::INTEGER, 'experience', $6::INTEGER))`,
			step.QuestID, step.UserID, step.Finished, result.Minutes, step.Money, step.Exp)
		if err != nil {
			return fmt.Errorf("failed to record completion: %w", err)
		}
		return nil
	})
	if err != nil {
		if err != ErrStale && err != ErrItemsMissing {
			logger.Error("Failed to complete objective", "error", err)
		}
		return nil, err
	}
	return result, nil
}

// takeItems removes quantity units of an item across the character's stacks.
func takeItems(ctx context.Context, tx *database.Tx, userID int64, item string, quantity int) error {
	type stack struct {
		ID       int64 `db:"item_id"`
		Quantity int   `db:"quantity"`
	}
	var stacks []stack
	if err := tx.SelectContext(ctx, &stacks, `
		SELECT item_id, quantity FROM inventory
		WHERE owner_id = $1 AND LOWER(item_name) = LOWER($2)
		ORDER BY item_id FOR UPDATE`, userID, item); err != nil {
		return fmt.Errorf("failed to lock items: %w", err)
	}

	left := quantity
	for _, s := range stacks {
		if left == 0 {
			break
		}
		take := min(left, s.Quantity)
		if err := character.RemoveQuantity(ctx, tx, s.ID, take); err != nil {
			return err
		}
		left -= take
	}
	if left > 0 {
		return ErrItemsMissing
	}
	return nil
}

func (r *Repository) Create(ctx context.Context, q Quest, objectives []Objective) (*Quest, error) {
	logger := r.logger.With("component", "quests_repository", "operation", "create")

	err := r.db.WithTx(ctx, func(tx *database.Tx) error {
		err := tx.GetContext(ctx, &q, `
			INSERT INTO quests (title, description, start_location, reward_money, reward_experience,
				required_level, max_completions, is_active, created_by)
			VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
			RETURNING `+questColumns,
			q.Title, q.Description, q.StartLocation, q.RewardMoney, q.RewardExperience,
			q.RequiredLevel, q.MaxCompletions, q.CreatedBy)
		if err != nil {
			return fmt.Errorf("failed to insert quest: %w", err)
		}
		for _, o := range objectives {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO quest_objectives (quest_id, objective_order, objective_type, target_location_id,
					target_item, target_quantity, target_amount, description)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
				q.ID, o.Order, o.Type, o.TargetLocationID, o.TargetItem, o.TargetQuantity, o.TargetAmount, o.Description)
			if err != nil {
				return fmt.Errorf("failed to insert objective %d: %w", o.Order, err)
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("Failed to create quest", "error", err)
		return nil, err
	}

	logger.Info("Quest created", "quest_id", q.ID, "objectives", len(objectives))
	return &q, nil
}

// Toggle flips is_active and returns the new value.
func (r *Repository) Toggle(ctx context.Context, questID int64) (*bool, error) {
	var active bool
	err := r.db.GetContext(ctx, &active,
		`UPDATE quests SET is_active = NOT is_active WHERE quest_id = $1 RETURNING is_active`, questID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to toggle quest: %w", err)
	}
	return &active, nil
}

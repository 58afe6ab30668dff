package news

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"corridor-server/internal/shared/database"
)

type Repository struct {
	db     *database.DB
	logger *slog.Logger
}

func NewRepository(db *database.DB, logger *slog.Logger) *Repository {
	logger.Debug("Initializing news repository")

	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Insert(ctx context.Context, item Item) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO news_queue (guild_id, news_type, title, description, location_id, scheduled_delivery, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		item.GuildID, item.Category, item.Title, item.Body, item.LocationID, item.ScheduledDelivery, item.CreatedAt)
	if err != nil {
		r.logger.Error("Failed to queue news", "component", "news_repository", "guild_id", item.GuildID, "error", err)
		return fmt.Errorf("failed to queue news: %w", err)
	}
	return nil
}

// NewsGuilds lists every guild with a news channel configured.
func (r *Repository) NewsGuilds(ctx context.Context) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`SELECT guild_id FROM guild_settings WHERE news_channel_id IS NOT NULL ORDER BY guild_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list news guilds: %w", err)
	}
	return ids, nil
}

func (r *Repository) SetNewsChannel(ctx context.Context, guildID int64, channelID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO guild_settings (guild_id, news_channel_id) VALUES ($1, $2)
		ON CONFLICT (guild_id) DO UPDATE SET news_channel_id = EXCLUDED.news_channel_id`, guildID, channelID)
	if err != nil {
		return fmt.Errorf("failed to set news channel: %w", err)
	}
	return nil
}

func (r *Repository) Due(ctx context.Context, now time.Time, limit int) ([]Due, error) {
	var due []Due
	err := r.db.SelectContext(ctx, &due, `
		SELECT n.news_id, n.guild_id, n.news_type, n.title, n.description, n.location_id,
		       n.scheduled_delivery, n.created_at, g.news_channel_id
		FROM news_queue n
		JOIN guild_settings g ON g.guild_id = n.guild_id AND g.news_channel_id IS NOT NULL
		WHERE NOT n.is_delivered AND n.scheduled_delivery <= $1
		ORDER BY n.scheduled_delivery
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due news: %w", err)
	}
	return due, nil
}

func (r *Repository) MarkDelivered(ctx context.Context, newsID int64) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE news_queue SET is_delivered = TRUE WHERE news_id = $1`, newsID); err != nil {
		return fmt.Errorf("failed to mark news delivered: %w", err)
	}
	return nil
}

// Coordinates returns a location's galaxy position. ok is false when the
// location no longer exists.
func (r *Repository) Coordinates(ctx context.Context, locationID int64) (x, y float64, ok bool, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT x_coordinate, y_coordinate FROM locations WHERE location_id = $1`, locationID).Scan(&x, &y)
	if err == sql.ErrNoRows {
		return 0, 0, false, nil
	}
	if err != nil {
		return 0, 0, false, fmt.Errorf("failed to read coordinates: %w", err)
	}
	return x, y, true, nil
}

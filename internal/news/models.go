package news

import "time"

// Categories used by the simulation.
const (
	CategoryBreaking         = "breaking"
	CategoryDataInjection    = "data_injection"
	CategoryCorridorCollapse = "corridor_collapse"
	CategoryLocationLost     = "location_destroyed"
	CategoryApocalypse       = "apocalypse"
	CategoryObituary         = "obituary"
)

type Item struct {
	ID                int64     `db:"news_id" json:"news_id"`
	GuildID           int64     `db:"guild_id" json:"guild_id"`
	Category          string    `db:"news_type" json:"category"`
	Title             string    `db:"title" json:"title"`
	Body              string    `db:"description" json:"body"`
	LocationID        *int64    `db:"location_id" json:"location_id,omitempty"`
	ScheduledDelivery time.Time `db:"scheduled_delivery" json:"scheduled_delivery"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// Due is a queued item joined with the channel it goes to.
type Due struct {
	Item
	ChannelID string `db:"news_channel_id"`
}

// Request describes one bulletin. A nil Delay lets the service derive the
// signal delay from the origin's distance to the galactic core.
type Request struct {
	Category         string
	Title            string
	Body             string
	OriginLocationID *int64
	Delay            *time.Duration
}

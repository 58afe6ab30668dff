package radio

// Origin is where a transmission starts.
type Origin struct {
	LocationID *int64  `db:"location_id"`
	Name       string  `db:"name"`
	SystemName string  `db:"system_name"`
	X          float64 `db:"x_coordinate"`
	Y          float64 `db:"y_coordinate"`
	// SenderID is skipped when computing recipients. Zero means no sender.
	SenderID int64 `db:"-"`
	// Ungated is set when the sender is inside an ungated corridor.
	Ungated bool `db:"-"`
}

// Listener is a logged in character at a location.
type Listener struct {
	UserID       int64   `db:"user_id"`
	GuildID      int64   `db:"guild_id"`
	LocationID   int64   `db:"location_id"`
	LocationName string  `db:"location_name"`
	X            float64 `db:"x_coordinate"`
	Y            float64 `db:"y_coordinate"`
}

// TransitListener is a logged in character inside a corridor. They hear
// whatever reaches either end of it.
type TransitListener struct {
	UserID       int64   `db:"user_id"`
	GuildID      int64   `db:"guild_id"`
	CorridorID   int64   `db:"corridor_id"`
	CorridorName string  `db:"corridor_name"`
	CorridorType string  `db:"corridor_type"`
	ChannelID    *string `db:"temp_channel_id"`
	OriginName   string  `db:"origin_name"`
	OriginX      float64 `db:"origin_x"`
	OriginY      float64 `db:"origin_y"`
	DestName     string  `db:"dest_name"`
	DestX        float64 `db:"dest_x"`
	DestY        float64 `db:"dest_y"`
}

type Repeater struct {
	ID            int64   `db:"repeater_id"`
	LocationName  string  `db:"location_name"`
	X             float64 `db:"x_coordinate"`
	Y             float64 `db:"y_coordinate"`
	ReceiveRange  int     `db:"receive_range"`
	TransmitRange int     `db:"transmit_range"`
}

// Snapshot is everything propagation needs to know about the world.
type Snapshot struct {
	Listeners []Listener
	Transit   []TransitListener
	Repeaters []Repeater
}

// Recipient is one listener that picked up a transmission.
type Recipient struct {
	UserID         int64    `json:"user_id"`
	GuildID        int64    `json:"guild_id"`
	LocationID     *int64   `json:"location_id,omitempty"`
	LocationName   string   `json:"location_name"`
	CorridorID     *int64   `json:"corridor_id,omitempty"`
	ChannelID      string   `json:"channel_id,omitempty"`
	Distance       int      `json:"distance"`
	SignalStrength int      `json:"signal_strength"`
	Message        string   `json:"message"`
	RelayPath      []string `json:"relay_path,omitempty"`
}

func (r Recipient) InTransit() bool {
	return r.CorridorID != nil
}

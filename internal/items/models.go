package items

import (
	"corridor-server/internal/beacon"
	"corridor-server/internal/stats"
)

// Gauge is a bounded value an item can restore.
type Gauge string

const (
	GaugeHP   Gauge = "hp"
	GaugeFuel Gauge = "fuel"
	GaugeHull Gauge = "hull"
)

type UseRequest struct {
	ItemID   int64  `json:"item_id"`
	Message  string `json:"message,omitempty"`
	Headline string `json:"headline,omitempty"`
}

type SellRequest struct {
	ItemName string `json:"item_name"`
	Quantity int    `json:"quantity"`
}

type UseResult struct {
	ItemName  string           `json:"item_name"`
	UsageType string           `json:"usage_type"`
	Effect    string           `json:"effect"`
	Restored  int              `json:"restored,omitempty"`
	Modifiers []stats.Modifier `json:"modifiers,omitempty"`
	Beacon    *beacon.Beacon   `json:"beacon,omitempty"`
	Guilds    int              `json:"guilds,omitempty"`
}

type Sale struct {
	ItemName   string `json:"item_name"`
	Quantity   int    `json:"quantity"`
	UnitPrice  int    `json:"unit_price"`
	Total      int64  `json:"total"`
	LocationID int64  `json:"location_id"`
	ShopPrice  int    `json:"shop_price"`
}

// SellPrice is what a shop pays per unit: half the item's value at the
// poorest places, rising 3% per wealth level. Never below 1.
func SellPrice(value, wealth int) int {
	return max(1, int(float64(value)*(0.5+0.03*float64(wealth))))
}

// Markup is the price a shop asks for an item it bought at price.
func Markup(price int) int {
	return max(price+1, int(float64(price)*1.2))
}

// Restore is how much of amount fits below capacity.
func Restore(current, capacity, amount int) int {
	return max(0, min(amount, capacity-current))
}

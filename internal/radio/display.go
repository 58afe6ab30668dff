package radio

const (
	clearThreshold = 70
	faintThreshold = 30

	UnknownLocation = "[UNKNOWN LOCATION]"
)

type Quality string

const (
	QualityClear Quality = "clear"
	QualityWeak  Quality = "weak"
	QualityFaint Quality = "faint"
)

func QualityOf(strength int) Quality {
	switch {
	case strength >= clearThreshold:
		return QualityClear
	case strength >= faintThreshold:
		return QualityWeak
	}
	return QualityFaint
}

// Reception is what a group of co-located listeners hears.
type Reception struct {
	Strength int     `json:"signal_strength"`
	Quality  Quality `json:"quality"`
	Message  string  `json:"message"`
	Source   string  `json:"source"`
}

// Receive resolves the transmission shown to a group. The strongest signal in
// the group wins. Below the clear threshold the degraded text is shown, and
// a faint signal also hides where it came from.
func Receive(original, sourceName string, group []Recipient) Reception {
	if len(group) == 0 {
		return Reception{Quality: QualityFaint, Message: original, Source: UnknownLocation}
	}

	best := group[0]
	for _, r := range group[1:] {
		if r.SignalStrength > best.SignalStrength {
			best = r
		}
	}

	rec := Reception{
		Strength: best.SignalStrength,
		Quality:  QualityOf(best.SignalStrength),
		Message:  original,
		Source:   sourceName,
	}
	if best.SignalStrength < clearThreshold {
		rec.Message = best.Message
	}
	if best.SignalStrength < faintThreshold {
		rec.Source = UnknownLocation
	}
	return rec
}

// GroupKey identifies where a recipient should be shown a transmission.
type GroupKey struct {
	GuildID    int64
	LocationID int64
	ChannelID  string
}

// GroupByDestination buckets recipients per guild and location, with
// transit listeners bucketed per transit channel. Order follows first
// appearance.
func GroupByDestination(recipients []Recipient) ([]GroupKey, map[GroupKey][]Recipient) {
	var keys []GroupKey
	groups := map[GroupKey][]Recipient{}
	for _, r := range recipients {
		key := GroupKey{GuildID: r.GuildID}
		switch {
		case r.LocationID != nil:
			key.LocationID = *r.LocationID
		case r.ChannelID != "":
			key.ChannelID = r.ChannelID
		default:
			continue
		}
		if _, ok := groups[key]; !ok {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], r)
	}
	return keys, groups
}

package radio

import (
	"strings"

	"corridor-server/internal/shared/random"
)

const (
	clearSystems   = 2
	ungatedPenalty = 15
)

var corruption = []string{"_", "-", "~", "#", "*", " ", "%", "$", "@", "?", "!", "&", "^"}

// Degrade corrupts message as if it had crossed systemDistance systems.
// Signals sent from an ungated corridor degrade as if 15 systems further.
func Degrade(message string, systemDistance int, ungated bool, rng random.Source) string {
	effective := systemDistance
	if ungated {
		effective += ungatedPenalty
	}
	if effective <= clearSystems {
		return message
	}

	pct := min(95, (effective-clearSystems)*25)
	scatter := min(0.3, float64(pct)/200)

	var b strings.Builder
	b.Grow(len(message))
	for _, ch := range message {
		if !corruptible(ch) || !random.Chance(rng, float64(pct)/100) {
			b.WriteRune(ch)
			continue
		}
		if random.Chance(rng, scatter) {
			for range random.Between(rng, 2, 3) {
				b.WriteString(random.Pick(rng, corruption))
			}
			continue
		}
		b.WriteString(random.Pick(rng, corruption))
	}
	return b.String()
}

func corruptible(ch rune) bool {
	switch {
	case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		return true
	}
	return strings.ContainsRune(" .,!?", ch)
}

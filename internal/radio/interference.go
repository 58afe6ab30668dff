package radio

import (
	"math"

	"github.com/ojrac/opensimplex-go"
)

// Attenuator reports how much signal strength is lost to background
// interference at a galaxy position.
type Attenuator interface {
	Loss(x, y float64) int
}

// Interference is a smooth noise field over galaxy coordinates. Nearby
// positions suffer similar interference.
type Interference struct {
	noise     opensimplex.Noise
	amplitude float64
	scale     float64
}

func NewInterference(seed int64, amplitude float64) *Interference {
	return &Interference{
		noise:     opensimplex.NewNormalized(seed),
		amplitude: amplitude,
		scale:     40,
	}
}

func (i *Interference) Loss(x, y float64) int {
	if i.amplitude <= 0 {
		return 0
	}
	return int(math.Round(i.amplitude * i.noise.Eval2(x/i.scale, y/i.scale)))
}

// NoInterference never attenuates.
type NoInterference struct{}

func (NoInterference) Loss(float64, float64) int { return 0 }

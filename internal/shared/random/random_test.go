package random

import "testing"

func TestBetweenInclusive(t *testing.T) {
	r := New(42)
	seenLo, seenHi := false, false
	for i := 0; i < 2000; i++ {
		v := Between(r, 3, 8)
		if v < 3 || v > 8 {
			t.Fatalf("Between=%d out of [3,8]", v)
		}
		seenLo = seenLo || v == 3
		seenHi = seenHi || v == 8
	}
	if !seenLo || !seenHi {
		t.Fatalf("bounds not reached: lo=%v hi=%v", seenLo, seenHi)
	}
}

func TestBetweenDegenerate(t *testing.T) {
	if got := Between(Fixed{Int: 99}, 5, 5); got != 5 {
		t.Fatalf("Between=%d want=5", got)
	}
}

func TestSequenceRepeatsLast(t *testing.T) {
	s := &Sequence{Ints: []int{1, 4}, Floats: []float64{0.1}}
	if got := s.IntN(10); got != 1 {
		t.Fatalf("first=%d want=1", got)
	}
	if got := s.IntN(10); got != 4 {
		t.Fatalf("second=%d want=4", got)
	}
	if got := s.IntN(10); got != 4 {
		t.Fatalf("third=%d want=4", got)
	}
	if got := s.IntN(3); got != 1 {
		t.Fatalf("modulo=%d want=1", got)
	}
	if s.Float64() != 0.1 || s.Float64() != 0.1 {
		t.Fatalf("floats should repeat")
	}
}

func TestChance(t *testing.T) {
	if !Chance(Fixed{Float: 0.59}, 0.6) {
		t.Fatalf("0.59 < 0.6 should hit")
	}
	if Chance(Fixed{Float: 0.6}, 0.6) {
		t.Fatalf("0.6 should miss")
	}
}

func TestSameSeedSameStream(t *testing.T) {
	a, b := New(7), New(7)
	for i := 0; i < 20; i++ {
		if a.IntN(1000) != b.IntN(1000) {
			t.Fatalf("streams diverged at %d", i)
		}
	}
}

package engine

import "testing"

type stubSource struct {
	f float64
	n int
}

func (s stubSource) Float64() float64 { return s.f }
func (s stubSource) Intn(n int) int   { return s.n % n }

func TestComputeDamage_Bounds(t *testing.T) {
	src := NewSource(42)
	for _, attack := range []int{1, 2, 3, 49, 55, 100, 151} {
		lo := attack / 2
		seenLo, seenHi := false, false
		for i := 0; i < 10000; i++ {
			d := ComputeDamage(src, attack)
			if d < lo || d > attack {
				t.Fatalf("attack %d: damage %d outside [%d,%d]", attack, d, lo, attack)
			}
			seenLo = seenLo || d == lo
			seenHi = seenHi || d == attack
		}
		if !seenLo || !seenHi {
			t.Fatalf("attack %d: range ends not covered (lo=%v hi=%v)", attack, seenLo, seenHi)
		}
	}
}

func TestComputeDamage_Edges(t *testing.T) {
	tests := []struct {
		name   string
		src    Source
		attack int
		want   int
	}{
		{"lowest roll", stubSource{f: 0}, 55, 27},
		{"highest roll", stubSource{f: 0.999999}, 55, 55},
		{"odd attack midpoint", stubSource{f: 0.5}, 55, 41},
		{"attack one", stubSource{f: 0.999999}, 1, 1},
		{"attack one low", stubSource{f: 0}, 1, 0},
		{"zero attack", stubSource{f: 0.5}, 0, 0},
		{"negative attack", stubSource{f: 0.5}, -10, 0},
		{"out of range source", stubSource{f: 1.0}, 100, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ComputeDamage(tt.src, tt.attack); got != tt.want {
				t.Fatalf("ComputeDamage(%d) = %d, want %d", tt.attack, got, tt.want)
			}
		})
	}
}

func TestComputeDamage_Deterministic(t *testing.T) {
	a, b := NewSource(7), NewSource(7)
	for i := 0; i < 100; i++ {
		if x, y := ComputeDamage(a, 80), ComputeDamage(b, 80); x != y {
			t.Fatalf("draw %d: same seed gave %d and %d", i, x, y)
		}
	}
}

func TestRandomID(t *testing.T) {
	src := NewSource(1)
	seen := map[int]bool{}
	for i := 0; i < 5000; i++ {
		id := RandomID(src, 151)
		if id < 1 || id > 151 {
			t.Fatalf("id %d outside 1..151", id)
		}
		seen[id] = true
	}
	if !seen[1] || !seen[151] {
		t.Fatalf("expected both ends of the roster to be drawn")
	}
	if got := RandomID(stubSource{n: 150}, 151); got != 151 {
		t.Fatalf("RandomID with max draw = %d, want 151", got)
	}
}

package convert

import (
	"math"
	"testing"

	"telerelay/internal/packet"
)

func almostEqual(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestLlaToNedOrigin(t *testing.T) {
	origin := &packet.Lla{Lat: 33.5, Lon: -84.5, Alt: 300}
	ned := LlaToNed(origin, origin)
	if ned.North != 0 || ned.East != 0 || ned.Down != 0 {
		t.Fatalf("expected zero offset at origin, got %+v", ned)
	}
}

func TestLlaToNedRoundTrip(t *testing.T) {
	origin := &packet.Lla{Lat: 33.5, Lon: -84.5, Alt: 300}
	point := &packet.Lla{Lat: 33.51, Lon: -84.49, Alt: 310}

	ned := LlaToNed(origin, point)
	back := NedToLla(origin, ned, true)

	if !almostEqual(back.Lat, point.Lat, 1e-9) ||
		!almostEqual(back.Lon, point.Lon, 1e-9) ||
		!almostEqual(back.Alt, point.Alt, 1e-9) {
		t.Fatalf("round trip mismatch: got %+v, want %+v", back, point)
	}
}

func TestLlaToNedNorthPositiveForIncreasingLatitude(t *testing.T) {
	origin := &packet.Lla{Lat: 0, Lon: 0, Alt: 0}
	point := &packet.Lla{Lat: 1, Lon: 0, Alt: 0}
	ned := LlaToNed(origin, point)
	if ned.North <= 0 {
		t.Fatalf("expected positive north offset, got %v", ned.North)
	}
	if !almostEqual(ned.East, 0, 1e-9) {
		t.Fatalf("expected zero east offset, got %v", ned.East)
	}
}

func TestLlaToNedDownForAltitudeIncrease(t *testing.T) {
	origin := &packet.Lla{Lat: 10, Lon: 10, Alt: 100}
	point := &packet.Lla{Lat: 10, Lon: 10, Alt: 150}
	ned := LlaToNed(origin, point)
	if ned.Down >= 0 {
		t.Fatalf("expected negative down for altitude increase, got %v", ned.Down)
	}
}

func TestFiniteDifferenceVelocityZeroForNonPositiveDt(t *testing.T) {
	prev := &packet.Ned{North: 1, East: 2, Down: 3}
	curr := &packet.Ned{North: 4, East: 5, Down: 6}

	if v := FiniteDifferenceVelocity(prev, curr, 0); *v != (packet.Ned{}) {
		t.Fatalf("expected zero velocity at dt=0, got %+v", v)
	}
	if v := FiniteDifferenceVelocity(prev, curr, -1); *v != (packet.Ned{}) {
		t.Fatalf("expected zero velocity at dt<0, got %+v", v)
	}
}

func TestFiniteDifferenceVelocity(t *testing.T) {
	prev := &packet.Ned{North: 0, East: 0, Down: 0}
	curr := &packet.Ned{North: 10, East: -20, Down: 5}
	v := FiniteDifferenceVelocity(prev, curr, 2)
	if !almostEqual(v.North, 5, 1e-9) || !almostEqual(v.East, -10, 1e-9) || !almostEqual(v.Down, 2.5, 1e-9) {
		t.Fatalf("got %+v", v)
	}
}

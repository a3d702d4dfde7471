// Package convert implements the flat-Earth LLA/NED geometry used to
// prepare simulation trajectories for streaming (spec §4.7), grounded
// on the original implementation's convert.rs.
package convert

import (
	"math"

	"telerelay/internal/packet"
)

// EarthRadiusMeters is the spherical Earth radius used by the
// flat-Earth approximation.
const EarthRadiusMeters = 6_378_137.0

func degToRad(deg float64) float64 { return deg * math.Pi / 180.0 }
func radToDeg(rad float64) float64 { return rad * 180.0 / math.Pi }

// LlaToRadians converts a degrees-valued Lla to radians, leaving
// altitude untouched.
func LlaToRadians(l *packet.Lla) *packet.Lla {
	return &packet.Lla{Lat: degToRad(l.Lat), Lon: degToRad(l.Lon), Alt: l.Alt}
}

// LlaToDegrees converts a radians-valued Lla to degrees, leaving
// altitude untouched.
func LlaToDegrees(l *packet.Lla) *packet.Lla {
	return &packet.Lla{Lat: radToDeg(l.Lat), Lon: radToDeg(l.Lon), Alt: l.Alt}
}

// LlaToNed converts point to a local NED offset from origin, both in
// degrees, using the flat-Earth approximation: north and east scale
// linearly with the origin's angular offset, down is the negated
// altitude difference.
func LlaToNed(origin, point *packet.Lla) *packet.Ned {
	originRad := LlaToRadians(origin)
	pointRad := LlaToRadians(point)

	dLat := pointRad.Lat - originRad.Lat
	dLon := pointRad.Lon - originRad.Lon
	dAlt := pointRad.Alt - originRad.Alt

	return &packet.Ned{
		North: dLat * EarthRadiusMeters,
		East:  dLon * EarthRadiusMeters * math.Cos(originRad.Lat),
		Down:  -dAlt,
	}
}

// NedToLla inverts LlaToNed: given an origin in degrees and a local
// NED offset, it reconstructs the absolute position. outputDegrees
// selects whether the result is in degrees (true) or radians (false).
func NedToLla(origin *packet.Lla, ned *packet.Ned, outputDegrees bool) *packet.Lla {
	originRad := LlaToRadians(origin)

	dLat := ned.North / EarthRadiusMeters
	dLon := ned.East / (EarthRadiusMeters * math.Cos(originRad.Lat))
	dAlt := -ned.Down

	result := &packet.Lla{
		Lat: originRad.Lat + dLat,
		Lon: originRad.Lon + dLon,
		Alt: originRad.Alt + dAlt,
	}
	if outputDegrees {
		return LlaToDegrees(result)
	}
	return result
}

// FiniteDifferenceVelocity returns the NED velocity implied by moving
// from prev to curr over dt seconds. A non-positive dt (the first
// sample in a trajectory, or out-of-order timestamps) yields the zero
// vector rather than dividing by a non-positive interval.
func FiniteDifferenceVelocity(prev, curr *packet.Ned, dt float64) *packet.Ned {
	if dt <= 0 {
		return &packet.Ned{}
	}
	return &packet.Ned{
		North: (curr.North - prev.North) / dt,
		East:  (curr.East - prev.East) / dt,
		Down:  (curr.Down - prev.Down) / dt,
	}
}

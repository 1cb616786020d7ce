// Package geo provides great-circle helpers used for matching and geofencing.
package geo

import "math"

// EarthRadiusM is the mean earth radius in metres.
const EarthRadiusM = 6371000.0

// BaseSpeedKmh is the assumed average emergency vehicle speed.
const BaseSpeedKmh = 40.0

// Point is a WGS84 coordinate.
type Point struct {
	Lat float64 `json:"latitude" yaml:"latitude"`
	Lng float64 `json:"longitude" yaml:"longitude"`
}

// IsZero reports whether p was never set.
func (p Point) IsZero() bool { return p.Lat == 0 && p.Lng == 0 }

func rad(d float64) float64 { return d * math.Pi / 180 }

// Distance returns the haversine distance between a and b in metres.
func Distance(a, b Point) float64 {
	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * EarthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// DistanceKm is Distance expressed in kilometres.
func DistanceKm(a, b Point) float64 { return Distance(a, b) / 1000 }

// WithinRadius reports whether p lies within radiusM metres of center.
func WithinRadius(p, center Point, radiusM float64) bool {
	return Distance(p, center) <= radiusM
}

// Bearing returns the rhumb-line bearing from a to b in degrees within [0, 360).
func Bearing(a, b Point) float64 {
	dLng := rad(b.Lng - a.Lng)
	phi1, phi2 := rad(a.Lat), rad(b.Lat)
	dPsi := math.Log(math.Tan(math.Pi/4+phi2/2) / math.Tan(math.Pi/4+phi1/2))
	// take the short way around the antimeridian
	if math.Abs(dLng) > math.Pi {
		if dLng > 0 {
			dLng = -(2*math.Pi - dLng)
		} else {
			dLng = 2*math.Pi + dLng
		}
	}
	deg := math.Atan2(dLng, dPsi) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

// ETA is a straight-line travel estimate.
type ETA struct {
	DistanceKm float64 `json:"distance_km"`
	Minutes    int     `json:"minutes"`
}

// EstimateETA projects travel time over km at BaseSpeedKmh scaled by trafficFactor.
// A non-positive trafficFactor is treated as 1.
func EstimateETA(km, trafficFactor float64) ETA {
	if trafficFactor <= 0 {
		trafficFactor = 1
	}
	speed := BaseSpeedKmh * trafficFactor
	return ETA{
		DistanceKm: math.Round(km*100) / 100,
		Minutes:    int(math.Ceil(km / speed * 60)),
	}
}

// ETABetween is EstimateETA over the distance from a to b.
func ETABetween(a, b Point, trafficFactor float64) ETA {
	return EstimateETA(DistanceKm(a, b), trafficFactor)
}

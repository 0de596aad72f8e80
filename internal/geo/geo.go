// Package geo computes great-circle distances between coordinates.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by DistanceKm.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in decimal degrees.
type Point struct {
    Lat float64 `json:"lat"`
    Lng float64 `json:"lng"`
}

// DistanceKm returns the Haversine distance between a and b in kilometres.
// Inputs are not validated; callers check for missing coordinates first.
func DistanceKm(a, b Point) float64 {
    lat1 := toRadians(a.Lat)
    lat2 := toRadians(b.Lat)
    dLat := toRadians(b.Lat - a.Lat)
    dLng := toRadians(b.Lng - a.Lng)

    h := math.Sin(dLat/2)*math.Sin(dLat/2) +
        math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLng/2)*math.Sin(dLng/2)
    c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
    return EarthRadiusKm * c
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

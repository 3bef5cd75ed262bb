package spatial

import "github.com/umahmood/haversine"

// DistanceKm returns the great-circle distance between two points in
// kilometers. Used for human-facing diagnostics only; filtering decisions
// are made on journey durations, and candidate ordering on plain
// Euclidean distance.
func DistanceKm(lat1, lon1, lat2, lon2 float64) float64 {
	_, km := haversine.Distance(
		haversine.Coord{Lat: lat1, Lon: lon1},
		haversine.Coord{Lat: lat2, Lon: lon2},
	)
	return km
}

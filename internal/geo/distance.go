// Package geo holds the WGS84 helpers used for nearby-stop search.
package geo

import "math"

const (
	earthRadiusMeters = 6_371_000
	degToRad          = math.Pi / 180
)

// Point is a WGS84 position in decimal degrees.
type Point struct {
	Lat, Lon float64
}

// Valid reports whether p lies within WGS84 bounds.
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) {
		return false
	}
	return math.Abs(p.Lat) <= 90 && math.Abs(p.Lon) <= 180
}

// DistanceTo returns the great-circle distance to q in meters.
func (p Point) DistanceTo(q Point) float64 {
	lat1, lat2 := p.Lat*degToRad, q.Lat*degToRad
	sinDLat := math.Sin((lat2 - lat1) / 2)
	sinDLon := math.Sin((q.Lon - p.Lon) * degToRad / 2)
	h := sinDLat*sinDLat + math.Cos(lat1)*math.Cos(lat2)*sinDLon*sinDLon
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(math.Min(h, 1)))
}

// Within reports whether q is at most radius meters from p. A radius of
// zero or less matches everything.
func (p Point) Within(q Point, radius float64) (float64, bool) {
	d := p.DistanceTo(q)
	return d, radius <= 0 || d <= radius
}

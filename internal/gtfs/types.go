package gtfs

// Feed holds the parts of a static GTFS zip this service imports.
type Feed struct {
	Stops        []Stop
	LastModified string // From HTTP response header
	ETag         string // From HTTP response header
}

// Stop is a raw stops.txt row. Coordinates stay strings until import so a
// malformed row can be kept without a location.
type Stop struct {
	StopID       string `csv:"stop_id,required"`
	StopCode     string `csv:"stop_code"`
	StopName     string `csv:"stop_name,required"`
	StopLat      string `csv:"stop_lat"`
	StopLon      string `csv:"stop_lon"`
	LocationType string `csv:"location_type"`
}

// location_type values from the GTFS reference. Empty means a stop.
const (
	LocationStop         = "0"
	LocationStation      = "1"
	LocationEntrance     = "2"
	LocationGenericNode  = "3"
	LocationBoardingArea = "4"
)

// Boardable reports whether riders can be looked up at this row: stops and
// stations are, entrances, pathway nodes and boarding areas are not.
func (s Stop) Boardable() bool {
	switch s.LocationType {
	case "", LocationStop, LocationStation:
		return true
	}
	return false
}

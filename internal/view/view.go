// Package view renders the HTML stop board with templ components.
package view

import "net/url"

// Page is the shared layout data.
type Page struct {
	Title   string
	Refresh int // seconds; 0 disables the meta refresh
}

// ArrivalRow is one line on the stop board.
type ArrivalRow struct {
	RouteID string
	TripID  string
	Due     string // "Due", "5 min", "14:32"
	Status  string // "On time", "3 min late"
	Late    bool
}

// StopBoardData feeds StopBoard.
type StopBoardData struct {
	Page
	StopID   string
	StopCode string
	StopName string
	Lat, Lon *float64
	Arrivals []ArrivalRow
	Updated  string
}

// sseURL is the event stream path for a stop; the id is one path segment.
func sseURL(stopID string) string {
	return "/sse/arrivals/" + url.PathEscape(stopID)
}

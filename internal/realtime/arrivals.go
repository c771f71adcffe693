package realtime

import (
	"context"

	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
)

// FeedSource yields the current decoded feed. *FeedCache implements it.
type FeedSource interface {
	GetFeed(ctx context.Context) *gtfs.FeedMessage
}

// Arrival is one trip that calls at the requested stop, with every stop
// time update the upstream published for that trip.
type Arrival struct {
	TripID      string       `json:"trip_id"`
	RouteID     string       `json:"route_id"`
	StopUpdates []StopUpdate `json:"stop_updates"`
}

// StopUpdate mirrors a GTFS-RT StopTimeUpdate. AssignedStopID is the
// stop_time_properties override; matching still uses StopID.
type StopUpdate struct {
	StopSequence         uint32     `json:"stop_sequence,omitempty"`
	StopID               string     `json:"stop_id,omitempty"`
	Arrival              *StopEvent `json:"arrival,omitempty"`
	Departure            *StopEvent `json:"departure,omitempty"`
	ScheduleRelationship string     `json:"schedule_relationship,omitempty"`
	AssignedStopID       string     `json:"assigned_stop_id,omitempty"`
}

// StopEvent mirrors a GTFS-RT StopTimeEvent. Time is POSIX seconds,
// Uncertainty is in seconds.
type StopEvent struct {
	Delay       *int32 `json:"delay,omitempty"`
	Time        *int64 `json:"time,omitempty"`
	Uncertainty *int32 `json:"uncertainty,omitempty"`
}

// Arrivals extracts per-stop arrivals from the cached feed.
type Arrivals struct {
	feeds FeedSource
}

func NewArrivals(feeds FeedSource) *Arrivals {
	return &Arrivals{feeds: feeds}
}

// ForStop returns the trips with at least one stop time update for stopID,
// in feed order. It never fails; an unavailable feed yields no arrivals.
func (a *Arrivals) ForStop(ctx context.Context, stopID string) []Arrival {
	if stopID == "" {
		return nil
	}
	return ExtractArrivals(a.feeds.GetFeed(ctx), stopID)
}

// ExtractArrivals is the pure part of ForStop.
func ExtractArrivals(feed *gtfs.FeedMessage, stopID string) []Arrival {
	var out []Arrival
	for _, entity := range feed.GetEntity() {
		tu := entity.GetTripUpdate()
		if tu == nil || !callsAt(tu, stopID) {
			continue
		}
		arr := Arrival{
			TripID:      tu.GetTrip().GetTripId(),
			RouteID:     tu.GetTrip().GetRouteId(),
			StopUpdates: make([]StopUpdate, 0, len(tu.GetStopTimeUpdate())),
		}
		for _, stu := range tu.GetStopTimeUpdate() {
			arr.StopUpdates = append(arr.StopUpdates, toStopUpdate(stu))
		}
		out = append(out, arr)
	}
	return out
}

func callsAt(tu *gtfs.TripUpdate, stopID string) bool {
	for _, stu := range tu.GetStopTimeUpdate() {
		if stu.GetStopId() == stopID {
			return true
		}
	}
	return false
}

func toStopUpdate(stu *gtfs.TripUpdate_StopTimeUpdate) StopUpdate {
	u := StopUpdate{
		StopSequence:   stu.GetStopSequence(),
		StopID:         stu.GetStopId(),
		Arrival:        toStopEvent(stu.GetArrival()),
		Departure:      toStopEvent(stu.GetDeparture()),
		AssignedStopID: stu.GetStopTimeProperties().GetAssignedStopId(),
	}
	if stu.ScheduleRelationship != nil {
		u.ScheduleRelationship = stu.GetScheduleRelationship().String()
	}
	return u
}

func toStopEvent(ev *gtfs.TripUpdate_StopTimeEvent) *StopEvent {
	if ev == nil {
		return nil
	}
	return &StopEvent{Delay: ev.Delay, Time: ev.Time, Uncertainty: ev.Uncertainty}
}

package realtime

import (
	gtfs "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"google.golang.org/protobuf/proto"
)

type tripFixture struct {
	tripID, routeID string
	stops           []string
}

// buildFeed returns a valid TripUpdates feed; every stop gets a one-minute
// delay so stop updates carry some payload.
func buildFeed(ts uint64, trips ...tripFixture) *gtfs.FeedMessage {
	feed := &gtfs.FeedMessage{
		Header: &gtfs.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Incrementality:      gtfs.FeedHeader_FULL_DATASET.Enum(),
			Timestamp:           proto.Uint64(ts),
		},
	}
	for _, tr := range trips {
		tu := &gtfs.TripUpdate{
			Trip: &gtfs.TripDescriptor{TripId: proto.String(tr.tripID), RouteId: proto.String(tr.routeID)},
		}
		for i, s := range tr.stops {
			tu.StopTimeUpdate = append(tu.StopTimeUpdate, &gtfs.TripUpdate_StopTimeUpdate{
				StopSequence: proto.Uint32(uint32(i + 1)),
				StopId:       proto.String(s),
				Arrival:      &gtfs.TripUpdate_StopTimeEvent{Delay: proto.Int32(60)},
			})
		}
		feed.Entity = append(feed.Entity, &gtfs.FeedEntity{Id: proto.String(tr.tripID), TripUpdate: tu})
	}
	return feed
}

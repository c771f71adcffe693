package view

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestStopBoard(t *testing.T) {
	lat, lon := 53.3498, -6.2603
	d := StopBoardData{
		Page:     Page{Title: "O'Connell Street"},
		StopID:   "8220DB000001",
		StopCode: "001",
		StopName: "O'Connell <Upper>",
		Lat:      &lat,
		Lon:      &lon,
		Arrivals: []ArrivalRow{
			{RouteID: "46A", TripID: "T1", Due: "Due", Status: "On time"},
			{RouteID: "16", TripID: "T2", Due: "7 min", Status: "3 min late", Late: true},
		},
		Updated: "08:30:00",
	}

	var buf bytes.Buffer
	if err := StopBoard(d).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()

	for _, want := range []string{
		"<!doctype html>",
		"O&#39;Connell &lt;Upper&gt;",
		"Stop 001",
		`data-sse="/sse/arrivals/8220DB000001"`,
		`<td class="route">46A</td>`,
		`<td class="late">3 min late</td>`,
		"53.34980, -6.26030",
		"</html>",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("stop board missing %q", want)
		}
	}
	if strings.Contains(html, "<Upper>") {
		t.Error("stop name not escaped")
	}
}

func TestStopBoard_EscapesStreamPath(t *testing.T) {
	var buf bytes.Buffer
	d := StopBoardData{Page: Page{Title: "x"}, StopID: "a/b?c#d e", StopName: "x"}
	if err := StopBoard(d).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()
	if !strings.Contains(html, `data-sse="/sse/arrivals/a%2Fb%3Fc%23d%20e"`) {
		t.Errorf("stream path not escaped as one segment: %s", html)
	}
	if strings.Contains(html, `<meta http-equiv="refresh"`) {
		t.Error("zero refresh should omit the meta refresh")
	}
}

func TestArrivalList_Empty(t *testing.T) {
	var buf bytes.Buffer
	if err := ArrivalList(nil, "08:30:00").Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(buf.String(), "No live arrivals") {
		t.Errorf("got %q", buf.String())
	}
	if strings.Contains(buf.String(), "<table>") {
		t.Error("empty list should not render a table")
	}
}

func TestLoading(t *testing.T) {
	var buf bytes.Buffer
	if err := Loading(5).Render(context.Background(), &buf); err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := buf.String()
	for _, want := range []string{`<meta http-equiv="refresh" content="5">`, "Downloading stop data", `role="status"`} {
		if !strings.Contains(html, want) {
			t.Errorf("loading page missing %q", want)
		}
	}
}

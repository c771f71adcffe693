package gtfs

import (
	"archive/zip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"reflect"
	"strings"
)

// ErrNoStops is returned when a zip has no stops.txt.
var ErrNoStops = errors.New("stops.txt not found in GTFS archive")

const stopsFile = "stops.txt"

// ParseZip reads stops.txt from a GTFS zip archive. Other members are
// ignored.
func ParseZip(path string, logger *slog.Logger) (*Feed, error) {
	r, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open zip: %w", err)
	}
	defer r.Close()

	rc, err := r.Open(stopsFile)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoStops
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", stopsFile, err)
	}
	defer rc.Close()

	stops, err := readStops(rc)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", stopsFile, err)
	}
	logger.Info("GTFS feed parsed", "stops", len(stops))
	return &Feed{Stops: stops}, nil
}

// ParseStopsFile reads an already extracted stops.txt.
func ParseStopsFile(path string) ([]Stop, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open stops file: %w", err)
	}
	defer f.Close()
	return readStops(f)
}

func readStops(r io.Reader) ([]Stop, error) {
	var stops []Stop
	err := decodeCSV(r, func(s Stop) error {
		stops = append(stops, s)
		return nil
	})
	return stops, err
}

// decodeCSV streams rows of r into T by matching header names to csv
// struct tags. Tags may carry a ",required" option; a header without a
// required column is rejected.
func decodeCSV[T any](r io.Reader, fn func(T) error) error {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	cols, err := columnsFor[T](header)
	if err != nil {
		return err
	}

	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		var row T
		v := reflect.ValueOf(&row).Elem()
		for _, c := range cols {
			if c.csvIndex < len(record) {
				v.Field(c.fieldIndex).SetString(strings.TrimSpace(record[c.csvIndex]))
			}
		}
		if err := fn(row); err != nil {
			return err
		}
	}
}

type column struct {
	csvIndex   int
	fieldIndex int
}

func columnsFor[T any](header []string) ([]column, error) {
	typ := reflect.TypeFor[T]()

	position := make(map[string]int, len(header))
	for i, name := range header {
		if i == 0 {
			name = strings.TrimPrefix(name, "\ufeff")
		}
		position[strings.TrimSpace(name)] = i
	}

	var cols []column
	for i := range typ.NumField() {
		name, opts, _ := strings.Cut(typ.Field(i).Tag.Get("csv"), ",")
		if name == "" {
			continue
		}
		idx, ok := position[name]
		if !ok {
			if opts == "required" {
				return nil, fmt.Errorf("missing required column %q", name)
			}
			continue
		}
		cols = append(cols, column{csvIndex: idx, fieldIndex: i})
	}
	return cols, nil
}

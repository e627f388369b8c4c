// Package loader reads AIS records from CSV exports.
package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/models"
)

// Column names of the AIS CSV export
const (
	ColMMSI          = "MMSI"
	ColDatetimeUTC   = "datetime_utc"
	ColDatetimeLocal = "datetime_hst"
	ColLat           = "lat"
	ColLon           = "lon"
	ColReportedSpeed = "speed_over_ground_knots"
	ColComputedSpeed = "comput_speed_knots"
	ColVesselClass   = "vessel_class"
	ColLength        = "length_m"
	ColNavStatus     = "status"
)

// Alternative spellings accepted for some columns
var columnAliases = map[string][]string{
	ColComputedSpeed: {"computed_speed_knots"},
	ColDatetimeLocal: {"datetime_local"},
	ColNavStatus:     {"navigation_status", "nav_status"},
}

var requiredColumns = []string{
	ColMMSI,
	ColDatetimeUTC,
	ColDatetimeLocal,
	ColLat,
	ColLon,
	ColReportedSpeed,
	ColComputedSpeed,
	ColVesselClass,
	ColLength,
}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05-07:00",
	time.RFC3339Nano,
}

// DefaultLocalZone is the zone of the datetime_hst column
var DefaultLocalZone = func() *time.Location {
	if loc, err := time.LoadLocation("Pacific/Honolulu"); err == nil {
		return loc
	}
	return time.FixedZone("HST", -10*60*60)
}()

// Options controls CSV parsing
type Options struct {
	// LocalZone is applied to local timestamps that carry no offset.
	// Nil means DefaultLocalZone.
	LocalZone *time.Location
}

func (o Options) localZone() *time.Location {
	if o.LocalZone == nil {
		return DefaultLocalZone
	}
	return o.LocalZone
}

// LoadFile reads the AIS CSV at path
func LoadFile(path string, opts Options) ([]models.AISRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return Read(f, filepath.Base(path), opts)
}

// Read parses AIS records from r. source names the input in errors. Missing
// columns and unparseable identifiers, positions or timestamps fail with a
// *apperr.DataQualityError; non-numeric speeds and lengths become NaN.
func Read(r io.Reader, source string, opts Options) ([]models.AISRecord, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &apperr.DataQualityError{Source: source, Err: errors.New("empty file")}
	}
	if err != nil {
		return nil, &apperr.DataQualityError{Source: source, Err: err}
	}

	idx, err := indexColumns(header)
	if err != nil {
		return nil, &apperr.DataQualityError{Source: source, Err: err}
	}

	p := rowParser{idx: idx, local: opts.localZone(), source: source}

	var records []models.AISRecord
	for row := 1; ; row++ {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &apperr.DataQualityError{Source: source, Row: row, Err: err}
		}

		rec, err := p.parse(row, fields)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	return records, nil
}

func indexColumns(header []string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := pos[name]; !dup {
			pos[name] = i
		}
	}

	idx := make(map[string]int, len(requiredColumns)+1)
	var missing []string
	for _, col := range append(requiredColumns, ColNavStatus) {
		i, ok := lookup(pos, col)
		if !ok {
			if col != ColNavStatus {
				missing = append(missing, col)
			}
			continue
		}
		idx[col] = i
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required columns: %s", strings.Join(missing, ", "))
	}
	return idx, nil
}

func lookup(pos map[string]int, col string) (int, bool) {
	if i, ok := pos[col]; ok {
		return i, true
	}
	for _, alias := range columnAliases[col] {
		if i, ok := pos[alias]; ok {
			return i, true
		}
	}
	return 0, false
}

type rowParser struct {
	idx    map[string]int
	local  *time.Location
	source string
}

func (p rowParser) field(fields []string, col string) string {
	i, ok := p.idx[col]
	if !ok || i >= len(fields) {
		return ""
	}
	return strings.TrimSpace(fields[i])
}

func (p rowParser) fail(row int, col string, err error) error {
	return &apperr.DataQualityError{Source: p.source, Row: row, Column: col, Err: err}
}

func (p rowParser) parse(row int, fields []string) (models.AISRecord, error) {
	var rec models.AISRecord
	var err error

	if rec.MMSI, err = strconv.ParseInt(p.field(fields, ColMMSI), 10, 64); err != nil {
		return rec, p.fail(row, ColMMSI, err)
	}
	if rec.TimestampUTC, err = ParseTimestamp(p.field(fields, ColDatetimeUTC), time.UTC); err != nil {
		return rec, p.fail(row, ColDatetimeUTC, err)
	}
	rec.TimestampUTC = rec.TimestampUTC.UTC()
	if rec.TimestampLocal, err = ParseTimestamp(p.field(fields, ColDatetimeLocal), p.local); err != nil {
		return rec, p.fail(row, ColDatetimeLocal, err)
	}
	if rec.Latitude, err = strconv.ParseFloat(p.field(fields, ColLat), 64); err != nil {
		return rec, p.fail(row, ColLat, err)
	}
	if rec.Longitude, err = strconv.ParseFloat(p.field(fields, ColLon), 64); err != nil {
		return rec, p.fail(row, ColLon, err)
	}
	if !(rec.Latitude >= -90 && rec.Latitude <= 90) {
		return rec, p.fail(row, ColLat, fmt.Errorf("latitude %v out of range [-90, 90]", rec.Latitude))
	}
	if !(rec.Longitude >= -180 && rec.Longitude <= 180) {
		return rec, p.fail(row, ColLon, fmt.Errorf("longitude %v out of range [-180, 180]", rec.Longitude))
	}

	rec.ReportedSpeedKnots = parseLenient(p.field(fields, ColReportedSpeed))
	rec.ComputedSpeedKnots = parseLenient(p.field(fields, ColComputedSpeed))
	rec.LengthM = parseLenient(p.field(fields, ColLength))
	rec.VesselClass = p.field(fields, ColVesselClass)

	if s := p.field(fields, ColNavStatus); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(v) {
			rec.NavigationStatus = int(v)
		}
	}

	return rec, nil
}

// parseLenient returns NaN for anything that is not a number
func parseLenient(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

// ParseTimestamp parses an AIS timestamp. Values without an offset are
// placed in loc; values with one keep it.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

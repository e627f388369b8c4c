package filter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/models"
)

var hst = time.FixedZone("HST", -10*60*60)

func record(class string, length float64, utc time.Time) models.AISRecord {
	return models.AISRecord{
		MMSI:           1,
		VesselClass:    class,
		LengthM:        length,
		TimestampUTC:   utc,
		TimestampLocal: utc.In(hst),
	}
}

func wideCriteria() models.FilterCriteria {
	return models.FilterCriteria{
		VesselClasses: []string{"cargo", "tanker"},
		LengthMin:     1,
		LengthMax:     400,
		Start:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		End:           time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		HourStart:     0,
		HourEnd:       models.EndOfDay,
	}
}

var noon = time.Date(2024, 6, 1, 22, 0, 0, 0, time.UTC) // 12:00 HST

func TestApplyLengthBoundary(t *testing.T) {
	records := []models.AISRecord{
		record("cargo", 49, noon),
		record("cargo", 50, noon),
		record("cargo", 100, noon),
		record("cargo", 101, noon),
	}
	c := wideCriteria()
	c.LengthMin, c.LengthMax = 50, 100

	got, err := Apply(records, c)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 50.0, got[0].LengthM)
	assert.Equal(t, 100.0, got[1].LengthM)
}

func TestApplyVesselClassIgnoresCaseAndSpace(t *testing.T) {
	records := []models.AISRecord{
		record(" Cargo", 60, noon),
		record("TANKER ", 60, noon),
		record("fishing", 60, noon),
		record("cargo ship", 60, noon),
	}

	got, err := Apply(records, wideCriteria())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, " Cargo", got[0].VesselClass)
	assert.Equal(t, "TANKER ", got[1].VesselClass)
}

func TestApplyTimeframeInclusive(t *testing.T) {
	c := wideCriteria()
	c.Start = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	c.End = time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)

	records := []models.AISRecord{
		record("cargo", 60, c.Start.Add(-time.Second)),
		record("cargo", 60, c.Start),
		record("cargo", 60, c.End),
		record("cargo", 60, c.End.Add(time.Nanosecond)),
	}

	got, err := Apply(records, c)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].TimestampUTC.Equal(c.Start))
	assert.True(t, got[1].TimestampUTC.Equal(c.End))
}

func TestApplyTimeframeBoundsInOtherZones(t *testing.T) {
	c := wideCriteria()
	// same instants as 2024-06-01T00:00Z and 2024-06-02T00:00Z
	c.Start = time.Date(2024, 5, 31, 14, 0, 0, 0, hst)
	c.End = time.Date(2024, 6, 1, 14, 0, 0, 0, hst)

	got, err := Apply([]models.AISRecord{record("cargo", 60, noon)}, c)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestApplyHourWindowUsesLocalClock(t *testing.T) {
	c := wideCriteria()
	c.HourStart = models.TimeOfDay(6 * time.Hour)
	c.HourEnd = models.TimeOfDay(18 * time.Hour)

	records := []models.AISRecord{
		record("cargo", 60, noon),                   // 12:00 local, 22:00 UTC
		record("cargo", 60, noon.Add(7*time.Hour)),  // 19:00 local
		record("cargo", 60, noon.Add(-6*time.Hour)), // 06:00 local
		record("cargo", 60, noon.Add(6*time.Hour)),  // 18:00 local
	}

	got, err := Apply(records, c)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, r := range got {
		clock := models.ClockOf(r.TimestampLocal)
		assert.GreaterOrEqual(t, clock, c.HourStart)
		assert.LessOrEqual(t, clock, c.HourEnd)
	}
}

func TestApplyHourWindowDoesNotWrap(t *testing.T) {
	c := wideCriteria()
	c.HourStart = models.TimeOfDay(22 * time.Hour)
	c.HourEnd = models.TimeOfDay(2 * time.Hour)

	_, err := Apply([]models.AISRecord{record("cargo", 60, noon)}, c)
	assert.ErrorIs(t, err, apperr.ErrEmptyResult)
}

func TestApplyEmptyResult(t *testing.T) {
	got, err := Apply([]models.AISRecord{record("fishing", 60, noon)}, wideCriteria())
	assert.ErrorIs(t, err, apperr.ErrEmptyResult)
	assert.Empty(t, got)

	_, err = Apply(nil, wideCriteria())
	assert.ErrorIs(t, err, apperr.ErrEmptyResult)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	records := []models.AISRecord{
		record("Cargo ", 60, noon),
		record("fishing", 60, noon),
	}
	before := append([]models.AISRecord(nil), records...)

	_, err := Apply(records, wideCriteria())
	require.NoError(t, err)
	assert.Equal(t, before, records)
}

func TestMatchWithoutPredicatesKeepsAll(t *testing.T) {
	records := []models.AISRecord{record("a", 1, noon), record("b", 2, noon)}
	assert.Equal(t, records, Match(records))
}

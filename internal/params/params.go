// Package params turns raw detection parameters from flags, config files or
// HTTP bodies into a validated run configuration.
//
// Validation is a pure function: it never prompts or retries, and reports
// every problem it finds at once as *apperr.ValidationErrors.
package params

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/jengzang/ais-anomaly-go/internal/analysis"
	"github.com/jengzang/ais-anomaly-go/internal/analysis/trajectory"
	"github.com/jengzang/ais-anomaly-go/internal/apperr"
	"github.com/jengzang/ais-anomaly-go/internal/models"
)

// Length bounds accepted for vessel length filters, metres
const (
	MinVesselLength = 1
	MaxVesselLength = 400
)

// Percentile defaults for the two overspeed variants
const (
	DefaultPercentile = 0.99
	LegacyPercentile  = 0.98
)

// Params is the raw, possibly partial, parameter set of one detection run
type Params struct {
	AnomalyType   string   `json:"anomaly_type" toml:"anomaly_type" validate:"required,anomalytype"`
	VesselClasses []string `json:"vessel_classes" toml:"vessel_classes" validate:"required,min=1,dive,vesselclass"`

	LengthMin float64 `json:"length_min" toml:"length_min" validate:"gte=1,lte=400"`
	LengthMax float64 `json:"length_max" toml:"length_max" validate:"gte=1,lte=400"`

	// Dates as YYYY-MM-DD, "YYYY-MM-DD HH:MM:SS" or RFC3339. Values without
	// an offset are taken as UTC.
	DateStart string `json:"date_start" toml:"date_start" validate:"required"`
	DateEnd   string `json:"date_end" toml:"date_end" validate:"required"`

	// Local time-of-day window, HH:MM. Both empty means the whole day.
	HourStart string `json:"hour_start,omitempty" toml:"hour_start" validate:"omitempty,hhmm"`
	HourEnd   string `json:"hour_end,omitempty" toml:"hour_end" validate:"omitempty,hhmm"`

	Percentile       *float64 `json:"percentile,omitempty" toml:"percentile" validate:"omitempty,gt=0,lte=1"`
	NoiseSuppression *bool    `json:"noise_suppression,omitempty" toml:"noise_suppression"`
	LegacyVariant    bool     `json:"legacy_variant,omitempty" toml:"legacy_variant"`

	TimeField string `json:"time_field,omitempty" toml:"time_field" validate:"omitempty,oneof=utc local"`
}

// Validated is a complete, consistent run configuration
type Validated struct {
	AnomalyType      string
	Criteria         models.FilterCriteria
	Percentile       float64
	NoiseSuppression bool
	TimeField        models.TimeField
}

// AnalysisOptions merges the run configuration into segmentation defaults
func (v Validated) AnalysisOptions(seg trajectory.Options, workers int) analysis.Options {
	seg.TimeField = v.TimeField
	return analysis.Options{
		Percentile:       v.Percentile,
		NoiseSuppression: v.NoiseSuppression,
		Segmentation:     seg,
		Workers:          workers,
	}
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()

		// report json field names
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		_ = validate.RegisterValidation("vesselclass", func(fl validator.FieldLevel) bool {
			return IsVesselClass(fl.Field().String())
		})
		_ = validate.RegisterValidation("anomalytype", func(fl validator.FieldLevel) bool {
			return isAnomalyType(fl.Field().String())
		})
		_ = validate.RegisterValidation("hhmm", func(fl validator.FieldLevel) bool {
			_, err := models.ParseTimeOfDay(fl.Field().String())
			return err == nil
		})
	})
	return validate
}

func isAnomalyType(s string) bool {
	for _, t := range models.AnomalyTypes() {
		if s == t {
			return true
		}
	}
	return false
}

// Validate checks p and returns the run configuration it describes. On
// failure the error is a *apperr.ValidationErrors listing every problem.
func Validate(p Params) (Validated, error) {
	p.AnomalyType = strings.ToLower(strings.TrimSpace(p.AnomalyType))

	errs := &apperr.ValidationErrors{}
	structErrors(getValidator().Struct(p), errs)

	var v Validated
	v.AnomalyType = p.AnomalyType

	for _, c := range p.VesselClasses {
		v.Criteria.VesselClasses = append(v.Criteria.VesselClasses, NormalizeVesselClass(c))
	}

	v.Criteria.LengthMin, v.Criteria.LengthMax = p.LengthMin, p.LengthMax
	if p.LengthMin > p.LengthMax {
		errs.Add("length_range", "minimum %v is greater than maximum %v", p.LengthMin, p.LengthMax)
	}

	var startErr, endErr error
	if p.DateStart != "" {
		if v.Criteria.Start, startErr = ParseDate(p.DateStart); startErr != nil {
			errs.Add("date_start", "%v", startErr)
		}
	}
	if p.DateEnd != "" {
		if v.Criteria.End, endErr = ParseDate(p.DateEnd); endErr != nil {
			errs.Add("date_end", "%v", endErr)
		}
	}
	if startErr == nil && endErr == nil && p.DateStart != "" && p.DateEnd != "" &&
		v.Criteria.Start.After(v.Criteria.End) {
		errs.Add("timeframe", "start %s is after end %s", p.DateStart, p.DateEnd)
	}

	validateHours(p, &v, errs)

	v.NoiseSuppression = !p.LegacyVariant
	if p.NoiseSuppression != nil {
		v.NoiseSuppression = *p.NoiseSuppression
	}
	v.Percentile = DefaultPercentile
	if p.LegacyVariant {
		v.Percentile = LegacyPercentile
	}
	if p.Percentile != nil {
		v.Percentile = *p.Percentile
	}

	v.TimeField = models.TimeFieldLocal
	if p.TimeField != "" {
		v.TimeField = models.TimeField(p.TimeField)
	}

	if err := errs.ErrOrNil(); err != nil {
		return Validated{}, err
	}
	return v, nil
}

func validateHours(p Params, v *Validated, errs *apperr.ValidationErrors) {
	switch {
	case p.HourStart == "" && p.HourEnd == "":
		v.Criteria.HourStart, v.Criteria.HourEnd = 0, models.EndOfDay
		return
	case p.HourStart == "":
		errs.Add("hour_start", "required when hour_end is set")
		return
	case p.HourEnd == "":
		errs.Add("hour_end", "required when hour_start is set")
		return
	}

	start, err1 := models.ParseTimeOfDay(p.HourStart)
	end, err2 := models.ParseTimeOfDay(p.HourEnd)
	if err1 != nil || err2 != nil {
		// already reported by the struct validator
		return
	}
	if start > end {
		errs.Add("hour_constraint", "start %s is after end %s", p.HourStart, p.HourEnd)
		return
	}
	v.Criteria.HourStart, v.Criteria.HourEnd = start, end
}

// Check validates s against its validate tags. Field names in the returned
// *apperr.ValidationErrors are prefixed with prefix and a dot, when set.
func Check(prefix string, s any) error {
	errs := &apperr.ValidationErrors{}
	structErrors(getValidator().Struct(s), errs)
	if prefix != "" {
		for i := range errs.Errors {
			errs.Errors[i].Field = prefix + "." + errs.Errors[i].Field
		}
	}
	return errs.ErrOrNil()
}

func structErrors(err error, errs *apperr.ValidationErrors) {
	if err == nil {
		return
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		errs.Add("", "%v", err)
		return
	}
	for _, fe := range fieldErrs {
		errs.Add(fe.Field(), "%s", translateError(fe))
	}
}

func translateError(fe validator.FieldError) string {
	if fe.Field() == "percentile" {
		return fmt.Sprintf("must be in (0, 1], got %v", fe.Value())
	}

	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("needs at least %s entries", fe.Param())
	case "gte", "lte":
		if fe.StructField() == "LengthMin" || fe.StructField() == "LengthMax" {
			return fmt.Sprintf("must be between %d and %d, got %v", MinVesselLength, MaxVesselLength, fe.Value())
		}
		if fe.Tag() == "gte" {
			return fmt.Sprintf("must be at least %s, got %v", fe.Param(), fe.Value())
		}
		return fmt.Sprintf("must be at most %s, got %v", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	case "vesselclass":
		return fmt.Sprintf("unsupported vessel class %q, choose from %q", fe.Value(), vesselClasses)
	case "anomalytype":
		return fmt.Sprintf("unsupported anomaly type %q, choose from %q", fe.Value(), models.AnomalyTypes())
	case "hhmm":
		return fmt.Sprintf("invalid time %q, expected HH:MM", fe.Value())
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
}

// ParseDate parses a timeframe bound. Values without an offset are tagged
// UTC, values with one are converted to UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
}

// ParseLengthRange parses "min-max", e.g. "50-100"
func ParseLengthRange(s string) (float64, float64, error) {
	lo, hi, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok {
		return 0, 0, fmt.Errorf("invalid length range %q, expected min-max", s)
	}
	minLen, err := strconv.ParseFloat(strings.TrimSpace(lo), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid length range %q: %w", s, err)
	}
	maxLen, err := strconv.ParseFloat(strings.TrimSpace(hi), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid length range %q: %w", s, err)
	}
	return minLen, maxLen, nil
}

package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Coordinate bounds accepted by the agent.
const (
	MinLatitude  = -90.0
	MaxLatitude  = 90.0
	MinLongitude = -180.0
	MaxLongitude = 180.0
	MinDepth     = -11000.0
	MaxDepth     = 11000.0

	// EarthRadiusMeters is the mean radius used by Distance.
	EarthRadiusMeters = 6371e3
)

// Validation is the result of checking a coordinate triple.
type Validation struct {
	IsValid bool
	Errors  []string // One entry per violated field
}

// ValidateCoordinates checks lat, lon and depth against their ranges.
// Out-of-range values are reported, never clamped. NaN is out of range.
func ValidateCoordinates(lat, lon, depth float64) Validation {
	var problems []string

	if !inRange(lat, MinLatitude, MaxLatitude) {
		problems = append(problems, fmt.Sprintf("Latitude must be between %g and %g, got %g", MinLatitude, MaxLatitude, lat))
	}
	if !inRange(lon, MinLongitude, MaxLongitude) {
		problems = append(problems, fmt.Sprintf("Longitude must be between %g and %g, got %g", MinLongitude, MaxLongitude, lon))
	}
	if !inRange(depth, MinDepth, MaxDepth) {
		problems = append(problems, fmt.Sprintf("Depth must be between %g and %g meters, got %g", MinDepth, MaxDepth, depth))
	}

	return Validation{
		IsValid: len(problems) == 0,
		Errors:  problems,
	}
}

func inRange(v, lo, hi float64) bool {
	return v >= lo && v <= hi
}

// timeLayouts are the ISO-8601 shapes accepted for target times.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// ErrTimeShape is returned when a time string lacks the ISO-8601 "T" separator.
var ErrTimeShape = errors.New("time must be ISO-8601 with a 'T' separator")

// ValidateTime checks that s parses as a date and contains a literal "T".
func ValidateTime(s string) error {
	if !strings.Contains(s, "T") {
		return ErrTimeShape
	}
	if _, err := ParseTime(s); err != nil {
		return err
	}
	return nil
}

// ParseTime parses an ISO-8601 timestamp in any of the accepted layouts.
func ParseTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("time %q is not a valid ISO-8601 date", s)
}

// FormatCoordinates renders a position as hemisphere-suffixed degrees and depth,
// e.g. "36.8000°N, 122.0000°W, 150.0 m".
func FormatCoordinates(lat, lon, depth float64) string {
	ns := "N"
	if lat < 0 {
		ns = "S"
	}
	ew := "E"
	if lon < 0 {
		ew = "W"
	}
	return fmt.Sprintf("%.4f°%s, %.4f°%s, %.1f m", math.Abs(lat), ns, math.Abs(lon), ew, depth)
}

// Distance returns the great-circle (Haversine) distance in meters.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := radians(lat1)
	phi2 := radians(lat2)
	dPhi := radians(lat2 - lat1)
	dLambda := radians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// Rounding can push a just outside [0, 1] near antipodes.
	a = math.Min(1, math.Max(0, a))
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusMeters * c
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

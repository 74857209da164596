package clock

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidDuration = errors.New("invalid duration")
	ErrInvalidTime     = errors.New("invalid time")
)

const day = 24 * time.Hour

// Months and years are approximations.
var durationUnits = map[string]time.Duration{
	"s": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
	"m": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"d": day, "day": day, "days": day,
	"w": 7 * day, "week": 7 * day, "weeks": 7 * day,
	"month": 30 * day, "months": 30 * day,
	"y": 365 * day, "year": 365 * day, "years": 365 * day,
}

// ParseDuration parses an integer followed by a unit, such as "30m", "2d",
// "+1 week" or "1month".
func ParseDuration(s string) (time.Duration, error) {
	in := s
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 {
		return 0, fmt.Errorf("%w %q: missing amount", ErrInvalidDuration, in)
	}
	n, err := strconv.ParseInt(s[:i], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidDuration, in, err)
	}

	unit := strings.ToLower(strings.TrimSpace(s[i:]))
	if unit == "" {
		return 0, fmt.Errorf("%w %q: missing unit (use s, m, h, d, week, month or year)", ErrInvalidDuration, in)
	}
	mult, ok := durationUnits[unit]
	if !ok {
		return 0, fmt.Errorf("%w %q: unknown unit %q", ErrInvalidDuration, in, unit)
	}
	if n > math.MaxInt64/int64(mult) {
		return 0, fmt.Errorf("%w %q: out of range", ErrInvalidDuration, in)
	}
	return time.Duration(n) * mult, nil
}

// ParseTime parses an RFC 3339 instant, or "+<duration>" relative to now.
func ParseTime(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "+") {
		d, err := ParseDuration(s)
		if err != nil {
			return time.Time{}, err
		}
		return now.Add(d), nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w %q: %v", ErrInvalidTime, s, err)
	}
	return t.UTC(), nil
}

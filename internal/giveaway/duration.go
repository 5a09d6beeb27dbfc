package giveaway

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

var durationToken = regexp.MustCompile(`(\d+)\s*([a-z]+)`)

var durationUnits = map[string]time.Duration{
	"y": 365 * day, "yr": 365 * day, "yrs": 365 * day, "year": 365 * day, "years": 365 * day,
	"mo": 31 * day, "mos": 31 * day, "month": 31 * day, "months": 31 * day,
	"w": 7 * day, "wk": 7 * day, "wks": 7 * day, "week": 7 * day, "weeks": 7 * day,
	"d": day, "dy": day, "dys": day, "day": day, "days": day,
	"h": time.Hour, "hr": time.Hour, "hrs": time.Hour, "hour": time.Hour, "hours": time.Hour,
	"m": time.Minute, "mn": time.Minute, "mns": time.Minute, "min": time.Minute, "mins": time.Minute, "minute": time.Minute, "minutes": time.Minute,
	"s": time.Second, "sc": time.Second, "scs": time.Second, "sec": time.Second, "secs": time.Second, "second": time.Second, "seconds": time.Second,
}

// ParseDuration sums every "<n><unit>" token, e.g. "1d12h" or "3min 2s".
// A non-positive total or a total above max (when max > 0) is rejected.
func ParseDuration(s string, max time.Duration) (time.Duration, error) {
	tokens := durationToken.FindAllStringSubmatch(strings.ToLower(s), -1)
	if len(tokens) == 0 {
		return 0, fmt.Errorf("%w: duration %q has no time units", ErrInvalidArgument, s)
	}

	var total time.Duration
	for _, tok := range tokens {
		unit, ok := durationUnits[tok[2]]
		if !ok {
			return 0, fmt.Errorf("%w: unknown time unit %q", ErrInvalidArgument, tok[2])
		}
		n, err := strconv.ParseInt(tok[1], 10, 64)
		if err != nil || (max > 0 && time.Duration(n) > max/unit) {
			return 0, fmt.Errorf("%w: duration %q is too long", ErrInvalidArgument, s)
		}
		total += time.Duration(n) * unit
		if total < 0 || (max > 0 && total > max) {
			return 0, fmt.Errorf("%w: duration %q is too long", ErrInvalidArgument, s)
		}
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: duration must be positive", ErrInvalidArgument)
	}
	return total, nil
}

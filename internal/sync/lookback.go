package sync

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var lookbackUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
	"week":   7 * 24 * time.Hour,
	"month":  30 * 24 * time.Hour,
	"year":   365 * 24 * time.Hour,
}

// ParseLookback parses a first-fetch window such as "15 minutes", "3 days"
// or "1 week". Go duration strings like "90m" are accepted too.
func ParseLookback(s string) (time.Duration, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("empty lookback")
	}

	fields := strings.Fields(s)
	if len(fields) == 2 {
		n, err := strconv.Atoi(fields[0])
		if err != nil {
			return 0, fmt.Errorf("parse lookback %q: %w", s, err)
		}
		if n < 0 {
			return 0, fmt.Errorf("parse lookback %q: negative amount", s)
		}
		unit, ok := lookbackUnits[strings.TrimSuffix(fields[1], "s")]
		if !ok {
			return 0, fmt.Errorf("parse lookback %q: unknown unit %q", s, fields[1])
		}
		return time.Duration(n) * unit, nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse lookback %q: %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("parse lookback %q: negative duration", s)
	}
	return d, nil
}

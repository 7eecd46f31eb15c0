// Package duration parses and formats durations in a calendar-friendly
// notation. It accepts everything time.ParseDuration accepts plus day,
// week, month and year units, so retention windows read as "30d" or
// "2w" instead of "720h".
//
// Months are 30 days and years 365 days. That is deliberately
// approximate: these values size retention and cleanup windows, they do
// not do calendar arithmetic.
package duration

import (
	"fmt"
	"strings"
	"time"
	"unicode"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

// units maps accepted unit tokens, short and long forms, to their
// length. Parse consumes the whole letter run after a number as one
// token, so "mo" never collides with "m".
var units = map[string]time.Duration{
	"ns": time.Nanosecond,
	"us": time.Microsecond,
	"µs": time.Microsecond,
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  Day,
	"w":  Week,
	"mo": Month,
	"y":  Year,

	"sec":     time.Second,
	"secs":    time.Second,
	"seconds": time.Second,
	"second":  time.Second,
	"min":     time.Minute,
	"mins":    time.Minute,
	"minutes": time.Minute,
	"minute":  time.Minute,
	"hr":      time.Hour,
	"hrs":     time.Hour,
	"hours":   time.Hour,
	"hour":    time.Hour,
	"day":     Day,
	"days":    Day,
	"wk":      Week,
	"wks":     Week,
	"week":    Week,
	"weeks":   Week,
	"month":   Month,
	"months":  Month,
	"yr":      Year,
	"yrs":     Year,
	"year":    Year,
	"years":   Year,
}

// Parse reads a duration like "90s", "1h30m", "30d", "2 weeks" or
// "1w2d12h". Whitespace between value and unit is allowed. A bare
// number is rejected, matching time.ParseDuration.
func Parse(s string) (time.Duration, error) {
	orig := s
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return 0, fmt.Errorf("duration: empty string")
	}

	negative := strings.HasPrefix(s, "-")
	if negative {
		s = strings.TrimSpace(s[1:])
	}
	if s == "0" {
		return 0, nil
	}

	var total time.Duration
	for s != "" {
		s = strings.TrimSpace(s)

		value, rest, err := readNumber(s)
		if err != nil {
			return 0, fmt.Errorf("duration: invalid %q", orig)
		}
		rest = strings.TrimSpace(rest)

		unit, rest := readUnit(rest)
		scale, ok := units[unit]
		if !ok {
			return 0, fmt.Errorf("duration: unknown unit %q in %q", unit, orig)
		}

		total += time.Duration(value * float64(scale))
		s = rest
	}

	if negative {
		total = -total
	}
	return total, nil
}

// MustParse is Parse for trusted literals; it panics on error.
func MustParse(s string) time.Duration {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// readNumber consumes a decimal number from the front of s.
func readNumber(s string) (float64, string, error) {
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	if i == 0 {
		return 0, s, fmt.Errorf("no number")
	}
	var value float64
	if _, err := fmt.Sscanf(s[:i], "%g", &value); err != nil {
		return 0, s, err
	}
	return value, s[i:], nil
}

// readUnit consumes the unit token following a number. µ is the only
// non-ASCII letter a unit may contain.
func readUnit(s string) (string, string) {
	i := 0
	for i < len(s) {
		r := rune(s[i])
		if s[i] >= 0x80 {
			if !strings.HasPrefix(s[i:], "µ") {
				break
			}
			i += len("µ")
			continue
		}
		if !unicode.IsLetter(r) {
			break
		}
		i++
	}
	return s[:i], s[i:]
}

// formatSteps orders the units Format decomposes into, largest first.
// Sub-second remainders fall through to time.Duration's own notation.
var formatSteps = []struct {
	unit string
	size time.Duration
}{
	{"y", Year},
	{"mo", Month},
	{"w", Week},
	{"d", Day},
	{"h", time.Hour},
	{"m", time.Minute},
	{"s", time.Second},
}

// Format renders a duration with the largest fitting units and zero
// components omitted: 26h becomes "1d2h", 720h becomes "30d".
func Format(d time.Duration) string {
	if d == 0 {
		return "0s"
	}

	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}

	for _, step := range formatSteps {
		if n := d / step.size; n > 0 {
			fmt.Fprintf(&b, "%d%s", n, step.unit)
			d -= n * step.size
		}
	}
	if d > 0 {
		// Less than a second left; time.Duration prints 1.5ms style.
		b.WriteString(d.String())
	}
	return b.String()
}

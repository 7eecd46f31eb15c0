// Package bytesize parses and formats byte counts with binary (1024)
// units, so "1.5GB" and 1610612736 are interchangeable in configuration
// and reports.
package bytesize

import (
	"fmt"
	"strconv"
	"strings"
)

// Size is a byte count.
type Size int64

const (
	B  Size = 1
	KB Size = 1 << 10
	MB Size = 1 << 20
	GB Size = 1 << 30
	TB Size = 1 << 40
	PB Size = 1 << 50
)

// scale orders the units for both parsing lookup and formatting
// decomposition. The bare-letter and IEC spellings are accepted as
// aliases on input; output always uses the two-letter form.
var scale = []struct {
	unit    string
	size    Size
	aliases []string
}{
	{"PB", PB, []string{"p", "pib"}},
	{"TB", TB, []string{"t", "tib"}},
	{"GB", GB, []string{"g", "gib"}},
	{"MB", MB, []string{"m", "mib"}},
	{"KB", KB, []string{"k", "kib"}},
	{"B", B, []string{"byte", "bytes"}},
}

// Parse reads a size like "500KB", "1.5 GB" or "1048576". A missing
// unit means bytes.
func Parse(s string) (Size, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return 0, fmt.Errorf("bytesize: empty string")
	}

	split := len(trimmed)
	for i, r := range trimmed {
		if r != '.' && (r < '0' || r > '9') {
			split = i
			break
		}
	}

	value, err := strconv.ParseFloat(trimmed[:split], 64)
	if err != nil {
		return 0, fmt.Errorf("bytesize: invalid size %q", s)
	}

	unit := strings.TrimSpace(trimmed[split:])
	if unit == "" {
		return Size(value), nil
	}
	for _, step := range scale {
		if strings.EqualFold(unit, step.unit) {
			return Size(value * float64(step.size)), nil
		}
		for _, alias := range step.aliases {
			if strings.EqualFold(unit, alias) {
				return Size(value * float64(step.size)), nil
			}
		}
	}
	return 0, fmt.Errorf("bytesize: unknown unit %q in %q", unit, s)
}

// Format renders a size with the largest unit that keeps the value at
// or above one, trimming insignificant decimals: 1536 -> "1.5KB".
func Format(s Size) string {
	if s == 0 {
		return "0B"
	}

	prefix := ""
	if s < 0 {
		prefix = "-"
		s = -s
	}

	for _, step := range scale {
		if s < step.size {
			continue
		}
		if step.size == B {
			return fmt.Sprintf("%s%dB", prefix, s)
		}
		value := float64(s) / float64(step.size)
		text := strconv.FormatFloat(value, 'f', 2, 64)
		text = strings.TrimRight(strings.TrimRight(text, "0"), ".")
		return prefix + text + step.unit
	}
	return fmt.Sprintf("%s%dB", prefix, s)
}

// Bytes returns the size as a plain int64.
func (s Size) Bytes() int64 {
	return int64(s)
}

func (s Size) String() string {
	return Format(s)
}

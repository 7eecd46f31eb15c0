// Package format renders numbers for status lines and CLI output.
package format

import (
	"fmt"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Number renders n with thousand separators: 1234567 -> "1,234,567".
func Number(n int64) string {
	return printer.Sprintf("%d", n)
}

// Bytes renders a byte count with one decimal: 1536 -> "1.5 KB".
func Bytes(n int64) string {
	const step = 1024
	if n < step {
		return fmt.Sprintf("%d B", n)
	}

	units := []string{"KB", "MB", "GB", "TB", "PB"}
	value := float64(n) / step
	i := 0
	for value >= step && i < len(units)-1 {
		value /= step
		i++
	}
	return fmt.Sprintf("%.1f %s", value, units[i])
}

// Speed renders an encode speed ratio (media seconds per wall second):
// 3.417 -> "3.42x".
func Speed(ratio float64) string {
	return fmt.Sprintf("%.2fx", ratio)
}

// Seconds renders a duration in seconds with millisecond precision:
// 2.5 -> "2.500s".
func Seconds(seconds float64) string {
	return fmt.Sprintf("%.3fs", seconds)
}

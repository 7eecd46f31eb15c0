package models

import "time"

// Time is the timestamp type stored on persisted entities. It aliases
// time.Time so model fields interoperate directly with the standard
// library, database drivers and API response types.
type Time = time.Time

// Now returns the current time as a model Time.
func Now() Time {
	return time.Now()
}

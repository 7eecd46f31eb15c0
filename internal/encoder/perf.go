package encoder

import (
	"fmt"
	"sync"
	"time"

	"github.com/jmylchreest/slidereel/pkg/format"
)

const (
	// minAdviceSamples is how many encodes of each class Advice needs
	// before it compares them.
	minAdviceSamples = 3
	// adviceRatio is the relative speed gap Advice considers meaningful.
	adviceRatio = 1.20
)

// ClassStats accumulates encode wall time against produced media time
// for one encoder class.
type ClassStats struct {
	TotalTime     float64 `json:"total_time_seconds"`
	TotalDuration float64 `json:"total_duration_seconds"`
	Samples       int     `json:"samples"`
}

// AverageSpeed is media seconds produced per wall second, 0 without
// samples.
func (s ClassStats) AverageSpeed() float64 {
	if s.TotalTime <= 0 {
		return 0
	}
	return s.TotalDuration / s.TotalTime
}

// PerfStats is a point-in-time copy of both classes.
type PerfStats struct {
	Hardware ClassStats `json:"hardware"`
	Software ClassStats `json:"software"`
}

// For returns the stats of the given class.
func (p PerfStats) For(class Class) ClassStats {
	if class == ClassHardware {
		return p.Hardware
	}
	return p.Software
}

// PerfTracker accumulates encoding speed per class. The worker records
// on the encode path while selection and API reads happen concurrently,
// so every access is mutex-serialized.
type PerfTracker struct {
	mu    sync.Mutex
	stats PerfStats
}

// NewPerfTracker creates an empty tracker.
func NewPerfTracker() *PerfTracker {
	return &PerfTracker{}
}

// Record adds one finished encode to the class's totals.
func (t *PerfTracker) Record(class Class, elapsed time.Duration, mediaSeconds float64) {
	if elapsed <= 0 || mediaSeconds <= 0 {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.classStats(class)
	s.TotalTime += elapsed.Seconds()
	s.TotalDuration += mediaSeconds
	s.Samples++
}

func (t *PerfTracker) classStats(class Class) *ClassStats {
	if class == ClassHardware {
		return &t.stats.Hardware
	}
	return &t.stats.Software
}

// AverageSpeed returns media seconds per wall second for the class, 0
// when nothing has been recorded yet.
func (t *PerfTracker) AverageSpeed(class Class) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats.For(class).AverageSpeed()
}

// Snapshot returns a copy of the accumulated stats.
func (t *PerfTracker) Snapshot() PerfStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}

// Advice names the faster class once both have at least three samples
// and their speeds differ by more than 20%. Empty means no
// recommendation. Advisory only: selection keeps applying its policy.
func (t *PerfTracker) Advice() string {
	snap := t.Snapshot()
	if snap.Hardware.Samples < minAdviceSamples || snap.Software.Samples < minAdviceSamples {
		return ""
	}

	hwSpeed := snap.Hardware.AverageSpeed()
	swSpeed := snap.Software.AverageSpeed()
	switch {
	case hwSpeed > swSpeed*adviceRatio:
		return fmt.Sprintf("hardware encoding averages %s realtime vs %s for software; hardware is the faster choice on this machine",
			format.Speed(hwSpeed), format.Speed(swSpeed))
	case swSpeed > hwSpeed*adviceRatio:
		return fmt.Sprintf("software encoding averages %s realtime vs %s for hardware; software is the faster choice on this machine",
			format.Speed(swSpeed), format.Speed(hwSpeed))
	default:
		return ""
	}
}

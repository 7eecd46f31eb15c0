package encoder

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPerfTracker_RecordAndAverageSpeed(t *testing.T) {
	tracker := NewPerfTracker()
	assert.Zero(t, tracker.AverageSpeed(ClassHardware))

	tracker.Record(ClassHardware, 2*time.Second, 10)
	assert.InDelta(t, 5.0, tracker.AverageSpeed(ClassHardware), 0.0001)
	assert.Zero(t, tracker.AverageSpeed(ClassSoftware))

	tracker.Record(ClassHardware, 3*time.Second, 5)
	// 15 media seconds over 5 wall seconds.
	assert.InDelta(t, 3.0, tracker.AverageSpeed(ClassHardware), 0.0001)

	snap := tracker.Snapshot()
	assert.Equal(t, 2, snap.Hardware.Samples)
	assert.InDelta(t, 5.0, snap.Hardware.TotalTime, 0.0001)
	assert.InDelta(t, 15.0, snap.Hardware.TotalDuration, 0.0001)
	assert.Zero(t, snap.Software.Samples)
}

func TestPerfTracker_RecordIgnoresDegenerateSamples(t *testing.T) {
	tracker := NewPerfTracker()
	tracker.Record(ClassSoftware, 0, 5)
	tracker.Record(ClassSoftware, time.Second, 0)
	tracker.Record(ClassSoftware, -time.Second, 5)
	assert.Zero(t, tracker.Snapshot().Software.Samples)
}

func TestPerfTracker_SnapshotIsACopy(t *testing.T) {
	tracker := NewPerfTracker()
	tracker.Record(ClassHardware, time.Second, 1)

	snap := tracker.Snapshot()
	tracker.Record(ClassHardware, time.Second, 1)

	assert.Equal(t, 1, snap.Hardware.Samples)
	assert.Equal(t, 2, tracker.Snapshot().Hardware.Samples)
}

func TestPerfTracker_AdviceNeedsBothClasses(t *testing.T) {
	tracker := NewPerfTracker()
	for range 3 {
		tracker.Record(ClassHardware, time.Second, 4)
	}
	assert.Empty(t, tracker.Advice())
}

func TestPerfTracker_AdviceNeedsThreeSamplesEach(t *testing.T) {
	tracker := NewPerfTracker()
	for range 3 {
		tracker.Record(ClassHardware, time.Second, 4)
	}
	for range 2 {
		tracker.Record(ClassSoftware, time.Second, 1)
	}
	assert.Empty(t, tracker.Advice())

	tracker.Record(ClassSoftware, time.Second, 1)
	advice := tracker.Advice()
	require.NotEmpty(t, advice)
	assert.Contains(t, advice, "hardware is the faster choice")
}

func TestPerfTracker_AdviceSoftwareFaster(t *testing.T) {
	tracker := NewPerfTracker()
	for range 3 {
		tracker.Record(ClassHardware, time.Second, 1)
		tracker.Record(ClassSoftware, time.Second, 2)
	}
	assert.Contains(t, tracker.Advice(), "software is the faster choice")
}

func TestPerfTracker_AdviceWithinNoise(t *testing.T) {
	tracker := NewPerfTracker()
	for range 3 {
		tracker.Record(ClassHardware, time.Second, 1.1)
		tracker.Record(ClassSoftware, time.Second, 1.0)
	}
	assert.Empty(t, tracker.Advice())
}

func TestPerfTracker_ConcurrentAccess(t *testing.T) {
	tracker := NewPerfTracker()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				tracker.Record(ClassHardware, time.Millisecond, 0.1)
				tracker.AverageSpeed(ClassHardware)
				tracker.Advice()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 400, tracker.Snapshot().Hardware.Samples)
}

func TestClassStats_AverageSpeedEmpty(t *testing.T) {
	assert.Zero(t, ClassStats{}.AverageSpeed())
}

func TestPerfStats_For(t *testing.T) {
	stats := PerfStats{
		Hardware: ClassStats{Samples: 1},
		Software: ClassStats{Samples: 2},
	}
	assert.Equal(t, 1, stats.For(ClassHardware).Samples)
	assert.Equal(t, 2, stats.For(ClassSoftware).Samples)
}

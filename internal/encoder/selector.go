package encoder

import (
	"github.com/jmylchreest/slidereel/internal/ffmpeg"
	"github.com/jmylchreest/slidereel/internal/models"
)

const (
	// shortSegmentSeconds is the duration under which hardware
	// pipeline spin-up dominates, so adaptive selection stays on
	// software.
	shortSegmentSeconds = 5.0
	// longSegmentSeconds is the duration from which adaptive selection
	// tries hardware when no throughput history exists yet.
	longSegmentSeconds = 10.0
	// autoHysteresis is how much faster hardware must measure before
	// adaptive selection prefers it. Keeps marginal differences from
	// flapping the choice between segments.
	autoHysteresis = 1.10
)

// Selector resolves which encoder runs a segment, consulting the job
// policy, the segment duration and recorded throughput.
type Selector struct {
	tracker *PerfTracker
}

// NewSelector creates a selector reading throughput history from tracker.
func NewSelector(tracker *PerfTracker) *Selector {
	if tracker == nil {
		tracker = NewPerfTracker()
	}
	return &Selector{tracker: tracker}
}

// Select applies the policy for one segment of durationSeconds against
// the current capability snapshot.
func (s *Selector) Select(policy models.EncoderPolicy, codec models.Codec, durationSeconds float64, caps *ffmpeg.Capabilities) CodecChoice {
	software := CodecChoice{Encoder: EncoderLibx264, Class: ClassSoftware}

	hw, hwOK := HardwareEncoderFor(codec, caps)

	switch policy {
	case models.EncoderPolicySoftware:
		return software
	case models.EncoderPolicyHardware:
		if hwOK {
			return CodecChoice{Encoder: hw, Class: ClassHardware}
		}
		return software
	}

	// Adaptive policy.
	if !hwOK {
		return software
	}
	if durationSeconds < shortSegmentSeconds {
		return software
	}

	stats := s.tracker.Snapshot()
	if stats.Hardware.Samples > 0 && stats.Software.Samples > 0 {
		if stats.Hardware.AverageSpeed() > stats.Software.AverageSpeed()*autoHysteresis {
			return CodecChoice{Encoder: hw, Class: ClassHardware}
		}
		return software
	}

	// No history yet: long segments are worth the hardware spin-up.
	if durationSeconds >= longSegmentSeconds {
		return CodecChoice{Encoder: hw, Class: ClassHardware}
	}
	return software
}

// HardwareEncoderFor maps the codec preference to an available hardware
// encoder. An hevc preference uses hevc_videotoolbox when present and
// otherwise falls back to H.264 hardware.
func HardwareEncoderFor(codec models.Codec, caps *ffmpeg.Capabilities) (string, bool) {
	if caps == nil || !caps.FFmpegAvailable {
		return "", false
	}
	if codec == models.CodecHEVC && caps.HasHardwareEncoder(EncoderHEVCVideoToolbox) {
		return EncoderHEVCVideoToolbox, true
	}
	if caps.HasHardwareEncoder(EncoderH264VideoToolbox) {
		return EncoderH264VideoToolbox, true
	}
	return "", false
}

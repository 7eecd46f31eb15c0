package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"time"

	"github.com/jmylchreest/slidereel/internal/ffmpeg"
	"github.com/jmylchreest/slidereel/internal/media"
	"github.com/jmylchreest/slidereel/internal/models"
)

const (
	// DefaultSegmentSeconds substitutes for segments whose audio
	// duration cannot be probed.
	DefaultSegmentSeconds = 2.0

	// minEncodeTimeout floors the per-attempt encode timeout.
	minEncodeTimeout = 2 * time.Minute
	// encodeTimeoutPerSecond adds headroom proportional to segment
	// length for slow software encodes.
	encodeTimeoutPerSecond = 10
)

// EncodeSettings are the per-job parameters shared by every segment of
// a group. They must not vary within a group or the stream-copy concat
// breaks.
type EncodeSettings struct {
	FPS        int
	Resolution models.Resolution
	Codec      models.Codec
	Policy     models.EncoderPolicy
}

// SegmentResult describes one successfully encoded segment.
type SegmentResult struct {
	OutputPath string
	Choice     CodecChoice
	Duration   float64 // media seconds
	Elapsed    time.Duration
	FellBack   bool // hardware attempt failed, software retry succeeded
}

// SegmentEncoder renders one image+audio pair into a video segment.
type SegmentEncoder struct {
	detector     *ffmpeg.Detector
	runner       *ffmpeg.Runner
	selector     *Selector
	tracker      *PerfTracker
	probeTimeout time.Duration
	logger       *slog.Logger
}

// NewSegmentEncoder wires the encode pipeline together. The tracker
// feeds both selection and the performance API; pass the same instance
// everywhere.
func NewSegmentEncoder(detector *ffmpeg.Detector, tracker *PerfTracker, probeTimeout time.Duration, logger *slog.Logger) *SegmentEncoder {
	if tracker == nil {
		tracker = NewPerfTracker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SegmentEncoder{
		detector:     detector,
		runner:       ffmpeg.NewRunner(logger),
		selector:     NewSelector(tracker),
		tracker:      tracker,
		probeTimeout: probeTimeout,
		logger:       logger,
	}
}

// Tracker returns the performance tracker feeding encoder selection.
func (e *SegmentEncoder) Tracker() *PerfTracker {
	return e.tracker
}

// Encode renders seg into outPath. A segment missing either side is
// skipped with a log line: the result and error are both nil. A failed
// hardware attempt is retried once with libx264 before the segment is
// given up on.
func (e *SegmentEncoder) Encode(ctx context.Context, seg media.Segment, outPath string, settings EncodeSettings) (*SegmentResult, error) {
	if !seg.IsComplete() {
		e.logger.Warn("skipping incomplete segment",
			slog.Int("segment", seg.Index),
			slog.String("image", seg.ImagePath),
			slog.String("audio", seg.AudioPath))
		return nil, nil
	}

	caps := e.detector.Capabilities(ctx)
	if !caps.FFmpegAvailable {
		return nil, &EncodeError{Segment: seg.Index, Err: fmt.Errorf("ffmpeg unavailable: %s", caps.Error)}
	}

	duration := e.probeDuration(ctx, caps, seg)
	choice := e.selector.Select(settings.Policy, settings.Codec, duration, caps)

	result, err := e.encodeWith(ctx, caps.FFmpegPath, choice, seg, duration, outPath, settings)
	if err == nil {
		return result, nil
	}

	if choice.Class == ClassHardware && ctx.Err() == nil {
		e.logger.Warn("hardware encode failed, retrying with libx264",
			slog.Int("segment", seg.Index),
			slog.String("encoder", choice.Encoder),
			slog.String("error", err.Error()))

		software := CodecChoice{Encoder: EncoderLibx264, Class: ClassSoftware}
		swResult, swErr := e.encodeWith(ctx, caps.FFmpegPath, software, seg, duration, outPath, settings)
		if swErr == nil {
			swResult.FellBack = true
			return swResult, nil
		}
		choice, err = software, swErr
	}

	encodeErr := &EncodeError{Segment: seg.Index, Encoder: choice.Encoder, Err: err}
	var runErr *ffmpeg.RunError
	if errors.As(err, &runErr) {
		encodeErr.Tail = runErr.Tail
	}
	return nil, encodeErr
}

// probeDuration measures the audio clip, substituting the documented
// default when probing is impossible or fails.
func (e *SegmentEncoder) probeDuration(ctx context.Context, caps *ffmpeg.Capabilities, seg media.Segment) float64 {
	if caps.FFprobePath == "" {
		e.logger.Warn("ffprobe unavailable, using default segment duration",
			slog.Int("segment", seg.Index),
			slog.Float64("default_seconds", DefaultSegmentSeconds))
		return DefaultSegmentSeconds
	}

	prober := ffmpeg.NewProber(caps.FFprobePath).WithTimeout(e.probeTimeout)
	duration, err := prober.Duration(ctx, seg.AudioPath)
	if err != nil {
		e.logger.Warn("audio probe failed, using default segment duration",
			slog.Int("segment", seg.Index),
			slog.String("audio", filepath.Base(seg.AudioPath)),
			slog.Float64("default_seconds", DefaultSegmentSeconds),
			slog.String("error", err.Error()))
		return DefaultSegmentSeconds
	}
	return duration
}

func (e *SegmentEncoder) encodeWith(ctx context.Context, ffmpegPath string, choice CodecChoice, seg media.Segment, duration float64, outPath string, settings EncodeSettings) (*SegmentResult, error) {
	args := buildSegmentArgs(choice, seg, duration, outPath, settings)

	e.logger.Info("encoding segment",
		slog.Int("segment", seg.Index),
		slog.String("image", filepath.Base(seg.ImagePath)),
		slog.String("audio", filepath.Base(seg.AudioPath)),
		slog.String("encoder", choice.Encoder),
		slog.Float64("duration_seconds", duration))

	result, err := e.runner.Run(ctx, encodeTimeout(duration), ffmpegPath, args...)
	if err != nil {
		return nil, err
	}

	e.tracker.Record(choice.Class, result.Elapsed, duration)
	return &SegmentResult{
		OutputPath: outPath,
		Choice:     choice,
		Duration:   duration,
		Elapsed:    result.Elapsed,
	}, nil
}

// encodeTimeout bounds one encode attempt: a generous floor plus
// headroom proportional to the media length.
func encodeTimeout(durationSeconds float64) time.Duration {
	scaled := time.Duration(durationSeconds * encodeTimeoutPerSecond * float64(time.Second))
	if scaled < minEncodeTimeout {
		return minEncodeTimeout
	}
	return scaled
}

// buildSegmentArgs assembles the single-segment invocation: loop the
// still for the audio duration, pin GOP to two seconds with scene-cut
// keyframing off, force 4:2:0 and BT.709 tagging, re-encode audio to a
// fixed AAC profile and front-load the moov atom. Argument order is
// stable across encoders so every segment of a group concatenates.
func buildSegmentArgs(choice CodecChoice, seg media.Segment, duration float64, outPath string, settings EncodeSettings) []string {
	fps := strconv.Itoa(settings.FPS)
	gop := strconv.Itoa(settings.FPS * 2)

	args := []string{
		"-hide_banner", "-y",
		"-loop", "1", "-framerate", fps, "-t", fmt.Sprintf("%.3f", duration), "-i", seg.ImagePath,
		"-i", seg.AudioPath,
		"-shortest", "-r", fps,
		"-vf", scaleFilter(settings.Resolution),
	}

	switch choice.Encoder {
	case EncoderH264VideoToolbox:
		args = append(args,
			"-c:v", "h264_videotoolbox", "-profile:v", "high", "-level:v", "4.2",
			"-g", gop, "-sc_threshold", "0",
			"-b:v", "6M", "-maxrate", "8M", "-bufsize", "12M",
		)
	case EncoderHEVCVideoToolbox:
		args = append(args,
			"-c:v", "hevc_videotoolbox", "-profile:v", "main", "-g", gop, "-sc_threshold", "0",
			"-b:v", "5M", "-maxrate", "7M", "-bufsize", "10M", "-tag:v", "hvc1",
		)
	default:
		args = append(args,
			"-c:v", "libx264", "-preset", "medium", "-crf", "19",
			"-profile:v", "high", "-level:v", "4.2", "-g", gop, "-sc_threshold", "0",
		)
	}

	args = append(args,
		"-pix_fmt", "yuv420p",
		"-colorspace", "bt709", "-color_primaries", "bt709", "-color_trc", "bt709",
		"-c:a", "aac", "-b:a", "128k", "-ar", "48000", "-ac", "2",
		"-movflags", "+faststart",
		outPath,
	)
	return args
}

// scaleFilter maps the target height to a scaler. -2 keeps the width
// even as required by 4:2:0.
func scaleFilter(resolution models.Resolution) string {
	switch resolution {
	case models.Resolution720p:
		return "scale=-2:720:flags=bicubic"
	case models.Resolution1440p:
		return "scale=-2:1440:flags=lanczos"
	default:
		return "scale=-2:1080:flags=bicubic"
	}
}

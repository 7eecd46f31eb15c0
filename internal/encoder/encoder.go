// Package encoder renders still-image/audio segments into video files
// and stream-copies them into per-group outputs. Encoder selection
// adapts between the platform hardware encoder and libx264 using
// recorded throughput.
package encoder

// Class labels an encoder implementation for selection and performance
// bookkeeping.
type Class string

const (
	ClassHardware Class = "hardware"
	ClassSoftware Class = "software"
)

// ffmpeg encoder names this pipeline selects between.
const (
	EncoderLibx264          = "libx264"
	EncoderH264VideoToolbox = "h264_videotoolbox"
	EncoderHEVCVideoToolbox = "hevc_videotoolbox"
)

// CodecChoice is a resolved encoder selection for one segment.
type CodecChoice struct {
	Encoder string `json:"encoder"`
	Class   Class  `json:"class"`
}

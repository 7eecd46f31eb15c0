package models

import "strings"

// Codec represents the preferred output video codec family.
type Codec string

const (
	CodecH264 Codec = "h264" // H.264/AVC
	CodecHEVC Codec = "hevc" // H.265/HEVC
)

// ValidCodecs is the set of all valid codec values, including aliases.
var ValidCodecs = map[string]Codec{
	"h264": CodecH264,
	"avc":  CodecH264, // Alias
	"hevc": CodecHEVC,
	"h265": CodecHEVC, // Alias
}

// ParseCodec normalizes a codec string, accepting common aliases.
func ParseCodec(s string) (Codec, bool) {
	c, ok := ValidCodecs[strings.ToLower(strings.TrimSpace(s))]
	return c, ok
}

// IsValid returns true if the codec is a canonical supported value.
func (c Codec) IsValid() bool {
	return c == CodecH264 || c == CodecHEVC
}

// Resolution represents the target output height label.
type Resolution string

const (
	Resolution720p  Resolution = "720p"
	Resolution1080p Resolution = "1080p"
	Resolution1440p Resolution = "1440p"
)

// ParseResolution normalizes a resolution string, accepting a bare height
// ("1080") as well as the labelled form ("1080p").
func ParseResolution(s string) (Resolution, bool) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v != "" && !strings.HasSuffix(v, "p") {
		v += "p"
	}
	switch Resolution(v) {
	case Resolution720p, Resolution1080p, Resolution1440p:
		return Resolution(v), true
	}
	return "", false
}

// IsValid returns true if the resolution is a supported value.
func (r Resolution) IsValid() bool {
	switch r {
	case Resolution720p, Resolution1080p, Resolution1440p:
		return true
	}
	return false
}

// Height returns the pixel height for the resolution label, or 0 if unknown.
func (r Resolution) Height() int {
	switch r {
	case Resolution720p:
		return 720
	case Resolution1080p:
		return 1080
	case Resolution1440p:
		return 1440
	}
	return 0
}

// EncoderPolicy controls hardware/software encoder selection for a job.
type EncoderPolicy string

const (
	// EncoderPolicyAuto picks hardware or software adaptively based on
	// measured throughput and clip duration.
	EncoderPolicyAuto EncoderPolicy = "auto"
	// EncoderPolicyHardware forces a hardware encoder when one is present.
	EncoderPolicyHardware EncoderPolicy = "hardware"
	// EncoderPolicySoftware forces libx264.
	EncoderPolicySoftware EncoderPolicy = "software"
)

// ParseEncoderPolicy normalizes an encoder policy string.
func ParseEncoderPolicy(s string) (EncoderPolicy, bool) {
	switch EncoderPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case EncoderPolicyAuto:
		return EncoderPolicyAuto, true
	case EncoderPolicyHardware:
		return EncoderPolicyHardware, true
	case EncoderPolicySoftware:
		return EncoderPolicySoftware, true
	}
	return "", false
}

// IsValid returns true if the policy is a supported value.
func (p EncoderPolicy) IsValid() bool {
	switch p {
	case EncoderPolicyAuto, EncoderPolicyHardware, EncoderPolicySoftware:
		return true
	}
	return false
}

// ValidFPSValues is the set of supported output frame rates.
var ValidFPSValues = []int{24, 30}

// IsValidFPS returns true if the frame rate is a supported value.
func IsValidFPS(fps int) bool {
	for _, v := range ValidFPSValues {
		if fps == v {
			return true
		}
	}
	return false
}

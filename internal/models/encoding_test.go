package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCodec(t *testing.T) {
	tests := []struct {
		input  string
		want   Codec
		wantOK bool
	}{
		{"h264", CodecH264, true},
		{"H264", CodecH264, true},
		{"avc", CodecH264, true},
		{"hevc", CodecHEVC, true},
		{"h265", CodecHEVC, true},
		{" hevc ", CodecHEVC, true},
		{"vp9", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseCodec(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResolution(t *testing.T) {
	tests := []struct {
		input  string
		want   Resolution
		wantOK bool
	}{
		{"720p", Resolution720p, true},
		{"1080p", Resolution1080p, true},
		{"1440p", Resolution1440p, true},
		{"1080", Resolution1080p, true},
		{"1080P", Resolution1080p, true},
		{"480p", "", false},
		{"4k", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseResolution(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolution_Height(t *testing.T) {
	assert.Equal(t, 720, Resolution720p.Height())
	assert.Equal(t, 1080, Resolution1080p.Height())
	assert.Equal(t, 1440, Resolution1440p.Height())
	assert.Equal(t, 0, Resolution("480p").Height())
}

func TestParseEncoderPolicy(t *testing.T) {
	tests := []struct {
		input  string
		want   EncoderPolicy
		wantOK bool
	}{
		{"auto", EncoderPolicyAuto, true},
		{"hardware", EncoderPolicyHardware, true},
		{"software", EncoderPolicySoftware, true},
		{"AUTO", EncoderPolicyAuto, true},
		{"fastest", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ParseEncoderPolicy(tt.input)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsValidFPS(t *testing.T) {
	assert.True(t, IsValidFPS(24))
	assert.True(t, IsValidFPS(30))
	assert.False(t, IsValidFPS(0))
	assert.False(t, IsValidFPS(25))
	assert.False(t, IsValidFPS(60))
}

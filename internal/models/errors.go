package models

import "errors"

// Sentinel errors returned by Job.Validate. The API and scheduler map
// them to rejections; assert with errors.Is.
var (
	ErrImagesDirRequired    = errors.New("images_dir is required")
	ErrAudioDirRequired     = errors.New("audio_dir is required")
	ErrOutputDirRequired    = errors.New("output_dir is required")
	ErrInvalidGroupSize     = errors.New("group_size must be at least 1")
	ErrInvalidFPS           = errors.New("fps must be 24 or 30")
	ErrInvalidResolution    = errors.New("invalid resolution: must be '720p', '1080p' or '1440p'")
	ErrInvalidCodec         = errors.New("invalid codec: must be 'h264' or 'hevc'")
	ErrInvalidEncoderPolicy = errors.New("invalid encoder policy: must be 'auto', 'hardware' or 'software'")
)

package media

import (
	"fmt"
	"image"
	"os"

	// Register stdlib image format decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	// BMP, TIFF and WebP support from x/image
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageInfo describes a decoded image header.
type ImageInfo struct {
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Format string `json:"format"`
}

// InspectImage decodes just the image header to report dimensions and
// format. A failure here is advisory; ffmpeg decodes with its own codecs
// and may still cope with a file Go cannot.
func InspectImage(path string) (*ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening image: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decoding image config: %w", err)
	}

	return &ImageInfo{
		Width:  cfg.Width,
		Height: cfg.Height,
		Format: format,
	}, nil
}

// Package media pairs still images with audio clips and plans how the
// resulting segments are grouped into output videos.
package media

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jmylchreest/slidereel/pkg/naturalsort"
)

// ImageExtensions are the still image formats scanned from the images directory.
var ImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".tiff"}

// AudioExtensions are the audio formats scanned from the audio directory.
var AudioExtensions = []string{".mp3", ".wav", ".aac", ".m4a", ".flac", ".ogg"}

// Segment pairs the image and audio clip at one sorted position. Either
// path may be empty when the directories hold unequal counts.
type Segment struct {
	Index     int    `json:"index"`
	ImagePath string `json:"image_path,omitempty"`
	AudioPath string `json:"audio_path,omitempty"`
}

// IsComplete returns true when the segment has both an image and an audio clip.
func (s Segment) IsComplete() bool {
	return s.ImagePath != "" && s.AudioPath != ""
}

// Group is a contiguous run of segments rendered into one output file.
type Group struct {
	Index      int       `json:"index"` // 1-based
	Segments   []Segment `json:"segments"`
	OutputName string    `json:"output_name"`
}

// Plan describes the full pairing and grouping for one job's input directories.
type Plan struct {
	Images   []string  `json:"images"`
	Audios   []string  `json:"audios"`
	Segments []Segment `json:"segments"`
	Groups   []Group   `json:"groups"`
}

// BuildPlan scans both directories, pairs files positionally, and windows
// the segments into groups.
func BuildPlan(imagesDir, audioDir string, groupSize int, mergeAll bool) (*Plan, error) {
	images, err := ListSorted(imagesDir, ImageExtensions)
	if err != nil {
		return nil, fmt.Errorf("scanning images directory: %w", err)
	}

	audios, err := ListSorted(audioDir, AudioExtensions)
	if err != nil {
		return nil, fmt.Errorf("scanning audio directory: %w", err)
	}

	segments := Pair(images, audios)
	return &Plan{
		Images:   images,
		Audios:   audios,
		Segments: segments,
		Groups:   Grouped(segments, groupSize, mergeAll),
	}, nil
}

// ListSorted returns the files in dir whose extension matches one of
// extensions (case-insensitive), ordered naturally by base name so that
// img2 sorts before img10. Subdirectories and dotfiles are skipped.
func ListSorted(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		ext := filepath.Ext(name)
		for _, want := range extensions {
			if strings.EqualFold(ext, want) {
				files = append(files, filepath.Join(dir, name))
				break
			}
		}
	}

	sort.SliceStable(files, func(i, j int) bool {
		return naturalsort.Less(filepath.Base(files[i]), filepath.Base(files[j]))
	})
	return files, nil
}

// Pair aligns images and audio clips positionally. The segment count is the
// longer of the two lists; positions past the shorter list leave that side
// empty rather than fabricating media.
func Pair(images, audios []string) []Segment {
	n := len(images)
	if len(audios) > n {
		n = len(audios)
	}

	segments := make([]Segment, 0, n)
	for i := 0; i < n; i++ {
		seg := Segment{Index: i}
		if i < len(images) {
			seg.ImagePath = images[i]
		}
		if i < len(audios) {
			seg.AudioPath = audios[i]
		}
		segments = append(segments, seg)
	}
	return segments
}

// Grouped windows segments into groups of groupSize, with a truncated final
// window. When mergeAll is set every segment lands in a single group.
func Grouped(segments []Segment, groupSize int, mergeAll bool) []Group {
	if len(segments) == 0 {
		return nil
	}
	if mergeAll {
		groupSize = len(segments)
	}
	if groupSize < 1 {
		groupSize = 1
	}

	var groups []Group
	for start := 0; start < len(segments); start += groupSize {
		end := start + groupSize
		if end > len(segments) {
			end = len(segments)
		}
		index := len(groups) + 1
		window := segments[start:end]
		groups = append(groups, Group{
			Index:      index,
			Segments:   window,
			OutputName: OutputName(window, index),
		})
	}
	return groups
}

// OutputName derives the output file name for a group from the stems of its
// first and last image. Groups with no image at all fall back to a numbered
// video_group name.
func OutputName(segments []Segment, groupIndex int) string {
	first, last := "", ""
	for _, seg := range segments {
		if seg.ImagePath == "" {
			continue
		}
		stem := Stem(seg.ImagePath)
		if first == "" {
			first = stem
		}
		last = stem
	}

	switch {
	case first == "":
		return fmt.Sprintf("video_group_%03d.mp4", groupIndex)
	case first == last:
		return first + ".mp4"
	default:
		return first + "-" + last + ".mp4"
	}
}

// Stem returns the base name of path without its extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

package media

import "path/filepath"

// SegmentPreview is one row of the pairing table shown before submission.
type SegmentPreview struct {
	Index     int        `json:"index"`
	Image     string     `json:"image,omitempty"`
	Audio     string     `json:"audio,omitempty"`
	ImageInfo *ImageInfo `json:"image_info,omitempty"`
	Warning   string     `json:"warning,omitempty"`
}

// GroupPreview describes one planned output file.
type GroupPreview struct {
	Index      int              `json:"index"`
	OutputName string           `json:"output_name"`
	Segments   []SegmentPreview `json:"segments"`
}

// Preview is the full pairing and grouping table for a pair of input
// directories, shown to the user before a job is submitted.
type Preview struct {
	ImagesTotal int            `json:"images_total"`
	AudiosTotal int            `json:"audios_total"`
	Segments    int            `json:"segments"`
	Groups      []GroupPreview `json:"groups"`
}

// BuildPreview renders a plan as a preview table. When inspectImages is set,
// each image header is decoded to report dimensions; decode failures become
// per-segment warnings rather than errors.
func BuildPreview(plan *Plan, inspectImages bool) *Preview {
	preview := &Preview{
		ImagesTotal: len(plan.Images),
		AudiosTotal: len(plan.Audios),
		Segments:    len(plan.Segments),
		Groups:      make([]GroupPreview, 0, len(plan.Groups)),
	}

	for _, group := range plan.Groups {
		gp := GroupPreview{
			Index:      group.Index,
			OutputName: group.OutputName,
			Segments:   make([]SegmentPreview, 0, len(group.Segments)),
		}

		for _, seg := range group.Segments {
			sp := SegmentPreview{Index: seg.Index}
			if seg.ImagePath != "" {
				sp.Image = filepath.Base(seg.ImagePath)
			}
			if seg.AudioPath != "" {
				sp.Audio = filepath.Base(seg.AudioPath)
			}

			switch {
			case seg.ImagePath == "":
				sp.Warning = "no image for this position; segment will be skipped"
			case seg.AudioPath == "":
				sp.Warning = "no audio for this position; segment will be skipped"
			case inspectImages:
				info, err := InspectImage(seg.ImagePath)
				if err != nil {
					sp.Warning = err.Error()
				} else {
					sp.ImageInfo = info
				}
			}

			gp.Segments = append(gp.Segments, sp)
		}

		preview.Groups = append(preview.Groups, gp)
	}

	return preview
}

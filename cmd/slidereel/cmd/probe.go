package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/slidereel/internal/ffmpeg"
	"github.com/jmylchreest/slidereel/pkg/format"
)

var probeCmd = &cobra.Command{
	Use:   "probe <file>",
	Short: "Print the duration of a media file",
	Long: `Print the duration of a media file as reported by ffprobe.

This is the same probe the encoder uses to size each segment, so it is
useful for checking how a clip will be timed before running a job.`,
	Args: cobra.ExactArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
}

func runProbe(cmd *cobra.Command, args []string) error {
	prober := ffmpeg.NewProber(cfg.FFmpeg.ProbePath).WithTimeout(cfg.FFmpeg.ProbeTimeout)

	seconds, err := prober.Duration(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("probing %s: %w", args[0], err)
	}

	fmt.Printf("%s: %s\n", args[0], format.Seconds(seconds))
	return nil
}

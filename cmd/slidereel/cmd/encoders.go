package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/slidereel/internal/encoder"
	"github.com/jmylchreest/slidereel/internal/ffmpeg"
	"github.com/jmylchreest/slidereel/internal/models"
	"github.com/jmylchreest/slidereel/internal/service/system"
)

var encodersCmd = &cobra.Command{
	Use:   "encoders",
	Short: "Report the detected ffmpeg installation and encoders",
	Long: `Report the detected ffmpeg installation, the available hardware
encoders and which encoder each codec preference would use on this host.`,
	RunE: runEncoders,
}

func init() {
	rootCmd.AddCommand(encodersCmd)
}

func runEncoders(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	detector := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, cfg.FFmpeg.DetectTimeout)
	caps := detector.Capabilities(ctx)
	if !caps.FFmpegAvailable {
		fmt.Printf("ffmpeg: not available (%s)\n", caps.Error)
		return errors.New("ffmpeg not available")
	}

	info := system.New().Collect(ctx)

	fmt.Printf("ffmpeg %s (%s)\n", caps.Version, caps.FFmpegPath)
	if caps.FFprobePath != "" {
		fmt.Printf("ffprobe: %s\n", caps.FFprobePath)
	}
	fmt.Printf("host: %s\n", info.Summary())

	if len(caps.HardwareEncoders) > 0 {
		fmt.Printf("\nhardware encoders: %s\n", strings.Join(caps.HardwareEncoders, ", "))
	} else {
		fmt.Println("\nhardware encoders: none")
	}

	fmt.Println("\nselection by codec preference:")
	for _, codec := range []models.Codec{models.CodecH264, models.CodecHEVC} {
		if hw, ok := encoder.HardwareEncoderFor(codec, caps); ok {
			fmt.Printf("  %-5s hardware (%s), software fallback %s\n", codec, hw, encoder.EncoderLibx264)
		} else {
			fmt.Printf("  %-5s software (%s)\n", codec, encoder.EncoderLibx264)
		}
	}

	return nil
}

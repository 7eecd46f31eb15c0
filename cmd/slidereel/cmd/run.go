package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/jmylchreest/slidereel/internal/encoder"
	"github.com/jmylchreest/slidereel/internal/ffmpeg"
	"github.com/jmylchreest/slidereel/internal/media"
	"github.com/jmylchreest/slidereel/internal/models"
	"github.com/jmylchreest/slidereel/internal/repository"
	"github.com/jmylchreest/slidereel/internal/scheduler"
	"github.com/jmylchreest/slidereel/internal/service/events"
	"github.com/jmylchreest/slidereel/pkg/bytesize"
	"github.com/jmylchreest/slidereel/pkg/duration"
	"github.com/jmylchreest/slidereel/pkg/format"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Render a batch of slideshow videos",
	Long: `Render a batch of slideshow videos directly, without starting the server.

Images and audio clips are matched positionally in natural sort order.
The pairing plan is printed first, then each group is encoded and
concatenated into its output file. The command exits nonzero when the
job fails or is cancelled.

Use --dry-run to inspect the pairing plan without encoding anything.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("images", "", "Directory containing still images")
	runCmd.Flags().String("audio", "", "Directory containing audio clips")
	runCmd.Flags().String("output", ".", "Directory for finished videos")
	runCmd.Flags().Int("group-size", 0, "Segments per output file (default from config)")
	runCmd.Flags().Bool("merge-all", false, "Merge every segment into a single video")
	runCmd.Flags().Int("fps", 0, "Output frame rate, 24 or 30 (default from config)")
	runCmd.Flags().String("resolution", "", "Output resolution, 720p/1080p/1440p (default from config)")
	runCmd.Flags().String("codec", "", "Output codec, h264 or hevc (default from config)")
	runCmd.Flags().String("policy", "", "Encoder policy, auto/hardware/software (default from config)")
	runCmd.Flags().Bool("dry-run", false, "Print the pairing plan without encoding")

	runCmd.MarkFlagRequired("images")
	runCmd.MarkFlagRequired("audio")
}

func runRun(cmd *cobra.Command, args []string) error {
	logger := slog.Default()
	flags := cmd.Flags()
	job := buildRunJob(flags)

	// Building the pairing plan validates the input directories, so the
	// dry run fails the same way a submission would.
	plan, err := media.BuildPlan(job.ImagesDir, job.AudioDir, job.GroupSize, job.MergeAll)
	if err != nil {
		return err
	}
	printPreview(media.BuildPreview(plan, true))

	if dryRun, _ := flags.GetBool("dry-run"); dryRun {
		return nil
	}
	fmt.Println()

	jobRepo, err := openScratchRepo()
	if err != nil {
		return err
	}

	detector := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, cfg.FFmpeg.DetectTimeout)
	tracker := encoder.NewPerfTracker()
	segmentEncoder := encoder.NewSegmentEncoder(detector, tracker, cfg.FFmpeg.ProbeTimeout, logger)
	concatenator := encoder.NewConcatenator(detector, cfg.FFmpeg.ConcatTimeout, logger)
	eventBus := events.New()
	processor := scheduler.NewProcessor(jobRepo, segmentEncoder, concatenator, eventBus, cfg.Storage.WorkPath()).
		WithLogger(logger)
	runner := scheduler.NewRunner(jobRepo, processor, eventBus).WithLogger(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received signal, cancelling job", slog.String("signal", sig.String()))
		cancel()
	}()

	// Subscribe before submitting so the queued event is not missed.
	sub := eventBus.Subscribe(ctx)

	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}

	if err := runner.Submit(ctx, job); err != nil {
		runner.Stop()
		var inputErr *scheduler.InputError
		if errors.As(err, &inputErr) {
			return fmt.Errorf("invalid inputs: %w", err)
		}
		return fmt.Errorf("submitting job: %w", err)
	}

	// Progress lines until the job reaches a terminal state. The channel
	// also closes when a signal cancels ctx.
	for ev := range sub.Events {
		printEvent(ev)
		if ev.JobID == job.ID.String() && isTerminalEvent(ev.Type) {
			break
		}
	}

	runner.Stop()

	final, err := jobRepo.GetByID(context.Background(), job.ID)
	if err != nil {
		return fmt.Errorf("reading final job state: %w", err)
	}
	printSummary(final)

	switch final.Status {
	case models.JobStatusCompleted:
		return nil
	case models.JobStatusCancelled:
		return errors.New("job cancelled")
	default:
		return fmt.Errorf("job failed: %s", final.Error)
	}
}

// buildRunJob assembles a job from the run flags, falling back to the
// configured encoding defaults for anything not explicitly set.
func buildRunJob(flags *pflag.FlagSet) *models.Job {
	job := &models.Job{
		GroupSize:     cfg.Encoding.GroupSize,
		MergeAll:      cfg.Encoding.MergeAll,
		EncoderPolicy: models.EncoderPolicy(cfg.Encoding.Policy),
		FPS:           cfg.Encoding.FPS,
		Resolution:    models.Resolution(cfg.Encoding.Resolution),
		Codec:         models.Codec(cfg.Encoding.Codec),
		Status:        models.JobStatusPending,
	}
	job.ImagesDir, _ = flags.GetString("images")
	job.AudioDir, _ = flags.GetString("audio")
	job.OutputDir, _ = flags.GetString("output")
	if flags.Changed("group-size") {
		job.GroupSize, _ = flags.GetInt("group-size")
	}
	if flags.Changed("merge-all") {
		job.MergeAll, _ = flags.GetBool("merge-all")
	}
	if flags.Changed("fps") {
		job.FPS, _ = flags.GetInt("fps")
	}
	if flags.Changed("resolution") {
		res, _ := flags.GetString("resolution")
		job.Resolution = models.Resolution(res)
	}
	if flags.Changed("codec") {
		codec, _ := flags.GetString("codec")
		job.Codec = models.Codec(codec)
	}
	if flags.Changed("policy") {
		policy, _ := flags.GetString("policy")
		job.EncoderPolicy = models.EncoderPolicy(policy)
	}
	return job
}

// openScratchRepo opens a throwaway in-memory database for the single
// job this command runs. The connection pool is pinned to one
// connection so every query sees the same in-memory database.
func openScratchRepo() (repository.JobRepository, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening scratch database: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("opening scratch database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Job{}); err != nil {
		return nil, fmt.Errorf("preparing scratch database: %w", err)
	}
	return repository.NewJobRepository(db), nil
}

func printPreview(preview *media.Preview) {
	fmt.Printf("%s images, %s audio clips, %s segments -> %d output file(s)\n",
		format.Number(int64(preview.ImagesTotal)),
		format.Number(int64(preview.AudiosTotal)),
		format.Number(int64(preview.Segments)),
		len(preview.Groups))

	for _, group := range preview.Groups {
		fmt.Printf("\n  %s\n", group.OutputName)
		for _, seg := range group.Segments {
			image := seg.Image
			if image == "" {
				image = "(none)"
			}
			audio := seg.Audio
			if audio == "" {
				audio = "(none)"
			}
			line := fmt.Sprintf("    %3d  %-24s %-24s", seg.Index+1, image, audio)
			if seg.ImageInfo != nil {
				line += fmt.Sprintf(" %dx%d %s", seg.ImageInfo.Width, seg.ImageInfo.Height, seg.ImageInfo.Format)
			}
			if seg.Warning != "" {
				line += "  ! " + seg.Warning
			}
			fmt.Println(line)
		}
	}
}

func printEvent(ev *events.Event) {
	fmt.Printf("%s  %-17s %s\n", ev.Timestamp.Format("15:04:05"), ev.Type, ev.Message)
}

func printSummary(job *models.Job) {
	fmt.Println()
	elapsed := duration.Format(time.Duration(job.DurationMs) * time.Millisecond)
	if len(job.OutputFiles) == 0 {
		fmt.Printf("%s after %s, no output files\n", job.Status, elapsed)
		return
	}

	var total int64
	for _, path := range job.OutputFiles {
		if info, err := os.Stat(path); err == nil {
			total += info.Size()
		}
	}
	fmt.Printf("%s in %s, %d output file(s), %s:\n",
		job.Status, elapsed, len(job.OutputFiles), bytesize.Format(bytesize.Size(total)))
	for _, path := range job.OutputFiles {
		fmt.Println("  " + path)
	}
}

func isTerminalEvent(eventType string) bool {
	switch eventType {
	case events.TypeJobCompleted, events.TypeJobFailed, events.TypeJobCancelled:
		return true
	}
	return false
}

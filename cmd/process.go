package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
	"github.com/ozRnDs/sort-and-choose-images/internal/corpus"
	"github.com/ozRnDs/sort-and-choose-images/internal/detect"
	"github.com/ozRnDs/sort-and-choose-images/internal/recognizer"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run face recognition over the corpus",
	Long: `Scan the photo corpus and run every unprocessed image through the
face recognition service. The run can be stopped with Ctrl+C and resumed
later - images already processed are skipped.

Examples:
  # Process everything that is still pending
  sort-and-choose-images process

  # Requeue transient failures first, then process
  sort-and-choose-images retry && sort-and-choose-images process`,
	RunE: runProcess,
}

func init() {
	rootCmd.AddCommand(processCmd)
}

func runProcess(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	ix, err := initIndex(ctx, cfg, st)
	if err != nil {
		return err
	}

	lib, err := corpus.NewFS(cfg.Corpus.PhotosDir)
	if err != nil {
		return fmt.Errorf("failed to open photo corpus: %w", err)
	}

	detector := detect.NewClient(cfg.Detection.URL, cfg.Detection.Timeout)
	worker := recognizer.New(st, ix, detector, lib, cfg.Detection.Timeout+30*time.Second)

	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start processing: %w", err)
	}

	progress, err := worker.Progress(ctx)
	if err != nil {
		return fmt.Errorf("failed to read progress: %w", err)
	}
	remaining := progress.Counts.Pending + progress.Counts.InProgress
	if remaining == 0 {
		worker.Wait()
		fmt.Println("All images already processed!")
		return nil
	}

	fmt.Printf("Images to process: %d (of %d total)\n\n", remaining, progress.Counts.Total())

	bar := progressbar.NewOptions(remaining,
		progressbar.OptionSetDescription("Recognizing faces"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nStopping after the current image...")
		worker.Stop()
	}()

	processedAtStart := progress.Counts.Processed()
	for worker.Running() {
		time.Sleep(500 * time.Millisecond)
		p, err := worker.Progress(ctx)
		if err != nil {
			continue
		}
		bar.Set(p.Counts.Processed() - processedAtStart)
	}
	worker.Wait()
	fmt.Println()

	final, err := worker.Progress(ctx)
	if err != nil {
		return fmt.Errorf("failed to read final progress: %w", err)
	}
	fmt.Printf("\nCompleted: %d done, %d failed, %d still pending\n",
		final.Counts.Done, final.Counts.Failed, final.Counts.Pending)

	saveIndex(cfg, ix)
	return nil
}

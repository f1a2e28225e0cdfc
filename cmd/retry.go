package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

var retryCmd = &cobra.Command{
	Use:   "retry",
	Short: "Requeue failed images for processing",
	Long: `Requeue failed images so the next processing run picks them up again.

By default only transient failures (detection service unreachable,
timeouts) are requeued. Permanent failures such as unreadable files
need --all or an explicit --image.`,
	RunE: runRetry,
}

func init() {
	rootCmd.AddCommand(retryCmd)

	retryCmd.Flags().Bool("all", false, "Also requeue permanent failures")
	retryCmd.Flags().String("image", "", "Requeue a single failed image by ID")
}

func runRetry(cmd *cobra.Command, args []string) error {
	includePermanent := mustGetBool(cmd, "all")
	imageID := mustGetString(cmd, "image")

	cfg := config.Load()
	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()

	if imageID != "" {
		if err := st.ResetFailedImage(ctx, imageID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("no failed image with ID %s", imageID)
			}
			return fmt.Errorf("failed to requeue image: %w", err)
		}
		fmt.Printf("Requeued %s\n", imageID)
		return nil
	}

	n, err := st.ResetFailed(ctx, includePermanent)
	if err != nil {
		return fmt.Errorf("failed to requeue images: %w", err)
	}
	fmt.Printf("Requeued %d failed images\n", n)
	return nil
}

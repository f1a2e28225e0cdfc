package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show processing status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	counts, err := st.StatusCounts(ctx)
	if err != nil {
		return fmt.Errorf("failed to read status counts: %w", err)
	}
	faces, err := st.CountFaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to count faces: %w", err)
	}

	fmt.Printf("Images: %d total\n", counts.Total())
	fmt.Printf("  pending:     %d\n", counts.Pending)
	fmt.Printf("  in progress: %d\n", counts.InProgress)
	fmt.Printf("  done:        %d\n", counts.Done)
	fmt.Printf("  failed:      %d\n", counts.Failed)
	fmt.Printf("Faces:  %d\n", faces)
	return nil
}

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
	"github.com/ozRnDs/sort-and-choose-images/internal/corpus"
	"github.com/ozRnDs/sort-and-choose-images/internal/index"
	"github.com/ozRnDs/sort-and-choose-images/internal/similarity"
	"github.com/ozRnDs/sort-and-choose-images/internal/store"
)

var similarCmd = &cobra.Command{
	Use:   "similar <face-id>",
	Short: "Find faces similar to a given face",
	Args:  cobra.ExactArgs(1),
	RunE:  runSimilar,
}

func init() {
	rootCmd.AddCommand(similarCmd)

	similarCmd.Flags().Int("top-k", 10, "Number of similar faces to return")
	similarCmd.Flags().Bool("include-hidden", false, "Include faces that were hidden")
}

func runSimilar(cmd *cobra.Command, args []string) error {
	faceID := args[0]
	topK := mustGetInt(cmd, "top-k")
	includeHidden := mustGetBool(cmd, "include-hidden")

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

	svc := similarity.New(st, ix, lib, cfg.Similarity)
	results, err := svc.SimilarFaces(ctx, faceID, topK, includeHidden)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) || errors.Is(err, index.ErrNotInIndex) {
			return fmt.Errorf("face %s not found", faceID)
		}
		return err
	}

	if len(results) == 0 {
		fmt.Println("No similar faces found.")
		return nil
	}

	for i, r := range results {
		face, err := st.GetFace(ctx, r.FaceID)
		if err != nil {
			fmt.Printf("%2d. %.3f  %s\n", i+1, r.Score, r.FaceID)
			continue
		}
		fmt.Printf("%2d. %.3f  %s  (%s)\n", i+1, r.Score, r.FaceID, face.ImageID)
	}
	return nil
}

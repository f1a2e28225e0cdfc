package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
	"github.com/ozRnDs/sort-and-choose-images/internal/corpus"
	"github.com/ozRnDs/sort-and-choose-images/internal/similarity"
)

var groupsCmd = &cobra.Command{
	Use:   "groups",
	Short: "Score photo groups against the marked person",
	Long: `Score every photo group by how similar its faces are to the faces
marked as the person, and list the groups above the threshold.

At least one face must be marked (ron_in_face) before this works.`,
	RunE: runGroups,
}

func init() {
	rootCmd.AddCommand(groupsCmd)

	groupsCmd.Flags().Float64("threshold", 0, "Minimum group score (defaults to configured threshold)")
	groupsCmd.Flags().Int("page", 1, "Result page")
	groupsCmd.Flags().Int("page-size", 20, "Groups per page")
	groupsCmd.Flags().Bool("include-hidden", false, "Include faces that were hidden")
}

func runGroups(cmd *cobra.Command, args []string) error {
	threshold := mustGetFloat64(cmd, "threshold")
	page := mustGetInt(cmd, "page")
	pageSize := mustGetInt(cmd, "page-size")
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
	result, err := svc.GroupsWithPerson(ctx, threshold, page, pageSize, includeHidden)
	if err != nil {
		if errors.Is(err, similarity.ErrNoMarkedFaces) {
			return errors.New("no faces marked as the person yet; mark a face first")
		}
		return err
	}

	if result.TotalGroups == 0 {
		fmt.Println("No groups matched.")
		return nil
	}

	fmt.Printf("Groups above threshold: %d (page %d, %d per page)\n\n",
		result.TotalGroups, result.CurrentPage, result.PageSize)
	for _, g := range result.Groups {
		fmt.Printf("%.3f  %s\n", g.Score, g.GroupID)
	}
	return nil
}

package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "sort-and-choose-images",
	Short: "A CLI tool for triaging a photo corpus by face similarity",
	Long: `Sort-and-choose-images scans a photo corpus, runs every image through a
face recognition service, and indexes the detected faces for similarity
search. Mark a few faces of the person you care about and it will score
every photo group by how likely that person appears in it.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ozRnDs/sort-and-choose-images/internal/config"
	"github.com/ozRnDs/sort-and-choose-images/internal/corpus"
	"github.com/ozRnDs/sort-and-choose-images/internal/detect"
	"github.com/ozRnDs/sort-and-choose-images/internal/recognizer"
	"github.com/ozRnDs/sort-and-choose-images/internal/similarity"
	"github.com/ozRnDs/sort-and-choose-images/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web server",
	Long: `Start the sort-and-choose-images web server.
The server exposes the recognition pipeline controls, face curation,
and the person similarity search over HTTP.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if port := mustGetInt(cmd, "port"); port != 0 {
		cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		cfg.Web.Host = host
	}

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
	// Headroom over the HTTP client timeout so the client error wins.
	worker := recognizer.New(st, ix, detector, lib, cfg.Detection.Timeout+30*time.Second)
	svc := similarity.New(st, ix, lib, cfg.Similarity)

	server := web.NewServer(&cfg.Web, web.Deps{
		Store:      st,
		Index:      ix,
		Library:    lib,
		Groups:     lib,
		Worker:     worker,
		Similarity: svc,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		worker.Stop()
		worker.Wait()
		saveIndex(cfg, ix)

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			fmt.Printf("Error during shutdown: %v\n", err)
		}
	}()

	fmt.Printf("Serving corpus %s on http://%s:%d\n", cfg.Corpus.PhotosDir, cfg.Web.Host, cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

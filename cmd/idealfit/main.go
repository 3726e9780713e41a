package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vjranagit/idealfit/internal/config"
	"github.com/vjranagit/idealfit/internal/pipeline"
	"github.com/vjranagit/idealfit/pkg/api"
	"github.com/vjranagit/idealfit/pkg/dataset"
	"github.com/vjranagit/idealfit/pkg/storage"
)

const (
	version = "0.1.0"
)

var (
	configPath string
	overrides  config.Config
)

func main() {
	root := &cobra.Command{
		Use:           "idealfit",
		Short:         "Select ideal functions for training data and map test points onto them",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file")
	root.PersistentFlags().StringVar(&overrides.Input.TrainingPath, "train", "", "training CSV")
	root.PersistentFlags().StringVar(&overrides.Input.IdealPath, "ideal", "", "ideal functions CSV")
	root.PersistentFlags().StringVar(&overrides.Input.TestPath, "test", "", "test points CSV")
	root.PersistentFlags().StringVar(&overrides.Storage.Path, "data", "", "storage directory")
	root.PersistentFlags().IntVar(&overrides.Fit.MaxPairs, "max-pairs", -1, "training columns to fit (0 = all)")
	root.PersistentFlags().IntVar(&overrides.Fit.Workers, "workers", 0, "classification workers")

	root.AddCommand(runCmd(), serveCmd(), historyCmd(), tablesCmd(), resultsCmd())

	if err := root.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// loadConfig reads the config file and applies command line overrides
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if overrides.Input.TrainingPath != "" {
		cfg.Input.TrainingPath = overrides.Input.TrainingPath
	}
	if overrides.Input.IdealPath != "" {
		cfg.Input.IdealPath = overrides.Input.IdealPath
	}
	if overrides.Input.TestPath != "" {
		cfg.Input.TestPath = overrides.Input.TestPath
	}
	if overrides.Storage.Path != "" {
		cfg.Storage.Path = overrides.Storage.Path
	}
	if overrides.Fit.MaxPairs >= 0 {
		cfg.Fit.MaxPairs = overrides.Fit.MaxPairs
	}
	if overrides.Fit.Workers > 0 {
		cfg.Fit.Workers = overrides.Fit.Workers
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openStorage opens the table store behind a read cache
func openStorage(cfg *config.Config) (storage.Storage, error) {
	log.Println("Initializing storage engine...")
	store, err := storage.NewStorage(cfg.ToStorageConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	log.Printf("Storage engine initialized at %s (%s)", cfg.Storage.Path, cfg.Storage.Codec)

	return storage.NewCachedStorage(store, cfg.Storage.CacheCapacity, cfg.Storage.CacheTTL), nil
}

func openJournal(cfg *config.Config) (*storage.Journal, error) {
	if !cfg.Storage.EnableJournal {
		return nil, nil
	}
	return storage.NewJournal(cfg.Storage.Path)
}

func logConfig(cfg *config.Config) {
	log.Printf("Configuration loaded:")
	log.Printf("  Training: %s", cfg.Input.TrainingPath)
	log.Printf("  Ideal: %s", cfg.Input.IdealPath)
	log.Printf("  Test: %s", cfg.Input.TestPath)
	log.Printf("  Max Pairs: %d", cfg.Fit.MaxPairs)
	log.Printf("  Compression Level: %d", cfg.Storage.CompressionLevel)
}

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fit, classify the test points and store the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			logConfig(cfg)

			store, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			journal, err := openJournal(cfg)
			if err != nil {
				return err
			}
			if journal != nil {
				defer journal.Close()
			}

			report, err := pipeline.New(cfg, store, journal).Run(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, pair := range report.Match.Pairs {
				fmt.Fprintf(out, "%s -> %s (sse %.6g)\n", pair.Training, pair.Candidate, pair.SSE)
			}
			fmt.Fprintf(out, "%d matched, %d unmatched, %d failed in %s\n",
				report.Matched, report.Unmatched, report.Failed, report.Duration.Round(time.Millisecond))
			for _, chart := range report.Charts {
				fmt.Fprintf(out, "chart: %s\n", chart)
			}
			return nil
		},
	}
}

func serveCmd() *cobra.Command {
	var (
		listen    string
		fromStore bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Fit the model and serve classification over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.ListenAddr = listen
			}
			logConfig(cfg)
			log.Printf("  Listen Address: %s", cfg.Server.ListenAddr)

			store, err := openStorage(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			pl := pipeline.New(cfg, store, nil)
			var model *pipeline.Model
			if fromStore {
				model, err = pl.Restore(cmd.Context())
			} else {
				model, err = pl.Fit(cmd.Context())
			}
			if err != nil {
				return err
			}

			log.Println("Starting API server...")
			server := api.NewServer(cfg.Server.ListenAddr, cfg.Server.Timeout, store, model.Selection, model.Classifier)

			go func() {
				log.Printf("API server listening on %s", cfg.Server.ListenAddr)
				if err := server.Start(); err != nil {
					log.Printf("Server error: %v", err)
				}
			}()

			// Wait for interrupt signal
			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
			<-sigChan

			log.Println("Shutdown signal received, stopping server...")

			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
			defer cancel()

			if err := server.Stop(ctx); err != nil {
				log.Printf("Server shutdown error: %v", err)
			}

			log.Println("Server stopped successfully")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address")
	cmd.Flags().BoolVar(&fromStore, "from-store", false, "rebuild the model from stored tables instead of the CSV inputs")
	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List previous runs from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tPAIRS\tPOINTS\tMATCHED\tUNMATCHED\tFAILED\tDURATION")
			err = storage.ReplayJournal(cfg.Storage.Path, func(e *storage.JournalEntry) error {
				pairs := ""
				for i, p := range e.Pairs {
					if i > 0 {
						pairs += ","
					}
					pairs += p.Training + "=" + p.Candidate
				}
				_, err := fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\t%dms\n",
					e.Timestamp.Format(time.RFC3339), pairs, e.Points, e.Matched, e.Unmatched, e.Failed, e.DurationMS)
				return err
			})
			if err != nil {
				return err
			}
			return w.Flush()
		},
	}
}

func tablesCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List stored tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := storage.NewStorage(cfg.ToStorageConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tROWS\tCOLUMNS")
			for _, info := range store.Tables(cmd.Context(), storage.Kind(kind)) {
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", info.Name, info.Kind, info.Rows, len(info.Columns))
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "filter by kind (training, ideal, selected, results)")
	return cmd
}

func resultsCmd() *cobra.Command {
	var name string

	cmd := &cobra.Command{
		Use:   "results",
		Short: "Print a stored result set as CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := storage.NewStorage(cfg.ToStorageConfig())
			if err != nil {
				return fmt.Errorf("failed to initialize storage: %w", err)
			}
			defer store.Close()

			results, err := store.LoadResults(cmd.Context(), name)
			if err != nil {
				return err
			}
			return dataset.WriteResults(cmd.OutOrStdout(), results)
		},
	}

	cmd.Flags().StringVar(&name, "name", pipeline.ResultsTable, "result set name")
	return cmd
}

// Package cli wires the threatdash commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"threatdash/internal/config"
	"threatdash/internal/db"
	"threatdash/internal/logging"
	"threatdash/internal/metrics"
	"threatdash/internal/resource"
	"threatdash/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var flagConfig string

// errConfigCreated stops a command after a fresh default config was written.
var errConfigCreated = errors.New("config created")

var rootCmd = &cobra.Command{
	Use:           "threatdash",
	Short:         "Threat intelligence dashboard backend",
	Long:          "threatdash stores analysed security news, serves dashboard widgets over a JSON API and exports them as static JSON.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file (default "+config.DefaultPath()+")")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(articleCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "threatdash %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

func Execute() {
	err := rootCmd.ExecuteContext(context.Background())
	if errors.Is(err, errConfigCreated) {
		return
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}

// loadConfig reads the config and installs the logger. On first run it
// writes the defaults, tells the operator and returns errConfigCreated.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	path := flagConfig
	if path == "" {
		path = config.DefaultPath()
	}
	cfg, created, err := config.LoadOrInit(path)
	if err != nil {
		return config.Config{}, err
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Created default config at %s. Set server.admin_secret before running serve.\n", path)
		return config.Config{}, errConfigCreated
	}
	logging.Init(cfg.Log)
	if missing, err := config.MissingKeys(path); err == nil && len(missing) > 0 {
		slog.Warn("config is missing keys; defaults apply", "path", path, "keys", missing)
	}
	return cfg, nil
}

// backend is the store-side half of the app shared by serve, export and
// ingest.
type backend struct {
	cfg     config.Config
	store   *store.Store
	svc     *resource.Service
	metrics metrics.Instruments
	close   func() error
}

func openBackend(ctx context.Context, cfg config.Config) (*backend, error) {
	database, err := db.Open(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	st := store.New(database)
	return &backend{
		cfg:     cfg,
		store:   st,
		svc:     resource.New(st, nil),
		metrics: metrics.New(),
		close:   database.Close,
	}, nil
}

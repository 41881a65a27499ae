package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"threatdash/internal/export"
	"threatdash/internal/ingest"
	"threatdash/internal/logging"
)

var (
	flagExportDir  string
	flagExportDays int
	flagThenExport bool
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write every dashboard resource as static JSON",
	Long: `Write <resource>.json for every widget, articles/<id>.json for every exported
record and manifest.json into the export directory.

The static data source reads this directory (or a web server hosting it).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if flagExportDir != "" {
			cfg.Export.Dir = flagExportDir
		}
		if cmd.Flags().Changed("days") {
			if flagExportDays < 0 {
				return fmt.Errorf("invalid --days value %d", flagExportDays)
			}
			cfg.Export.Days = flagExportDays
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.close()

		m, err := export.New(cfg.Export, b.svc, logging.Component("export"), b.metrics).Export(cmd.Context())
		if err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d resources and %d articles to %s.\n", len(m.Endpoints), m.ArticleCount, cfg.Export.Dir)
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch the configured feeds once",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		b, err := openBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer b.close()

		res, err := ingest.New(cfg.Ingest, b.store, logging.Component("ingest"), b.metrics).Ingest(cmd.Context())
		if err != nil {
			return fmt.Errorf("ingesting: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Fetched %d items from %d feeds (%d failed); stored %d new articles.\n",
			res.Fetched, res.Feeds, res.Failed, res.Stored)
		if !flagThenExport {
			return nil
		}
		m, err := export.New(cfg.Export, b.svc, logging.Component("export"), b.metrics).Export(cmd.Context())
		if err != nil {
			return fmt.Errorf("exporting: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Exported %d articles to %s.\n", m.ArticleCount, cfg.Export.Dir)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&flagExportDir, "dir", "", "override export.dir")
	exportCmd.Flags().IntVar(&flagExportDays, "days", 0, "override export.days (0 exports every record)")
	ingestCmd.Flags().BoolVar(&flagThenExport, "export", false, "run the static export after ingesting")
}

package cli

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"slices"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"threatdash/internal/config"
	"threatdash/internal/datasource"
	"threatdash/internal/filters"
	"threatdash/internal/logging"
	"threatdash/internal/metrics"
	"threatdash/internal/report"
	"threatdash/internal/resource"
)

var (
	flagMode    string
	flagDays    int
	flagStart   string
	flagEnd     string
	flagRisk    string
	flagLimit   int
	flagWidgets []string
)

// widgetNames are the accepted --widgets values, in print order.
var widgetNames = []string{
	"overview", "risk", "recent", "categories", "timeline", "iocs", "feeds",
	"families", "industries", "actors", "vectors", "cves",
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print dashboard widgets from the live API or a static export",
	Long: `Print dashboard widgets for a time range.

The data source follows client.mode (override with --mode or THREATDASH_MODE).
Use --days N or --start/--end (YYYY-MM-DD, both inclusive) to pick the range.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, err := parseRange(flagDays, flagStart, flagEnd)
		if err != nil {
			return err
		}
		widgets, err := selectWidgets(flagWidgets)
		if err != nil {
			return err
		}
		d, err := openDashboard(cmd)
		if err != nil {
			return err
		}
		p := resource.Params{Range: tr, Risk: strings.ToUpper(flagRisk), Limit: flagLimit}
		return printWidgets(cmd.Context(), cmd.OutOrStdout(), d, widgets, p)
	},
}

var articleCmd = &cobra.Command{
	Use:   "article <id>",
	Short: "Print one article with its indicators and recommendations",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid article id %q", args[0])
		}
		d, err := openDashboard(cmd)
		if err != nil {
			return err
		}
		a, err := d.Article(cmd.Context(), id)
		if err != nil {
			return err
		}
		return report.Article(cmd.OutOrStdout(), a, logging.Component("report"))
	},
}

func init() {
	for _, c := range []*cobra.Command{reportCmd, articleCmd} {
		c.Flags().StringVar(&flagMode, "mode", "", "data source mode: live or static")
	}
	reportCmd.Flags().IntVar(&flagDays, "days", 0, "only include the last N days")
	reportCmd.Flags().StringVar(&flagStart, "start", "", "range start date (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&flagEnd, "end", "", "range end date (YYYY-MM-DD)")
	reportCmd.Flags().StringVar(&flagRisk, "risk", "", "recent threats: only this risk level")
	reportCmd.Flags().IntVar(&flagLimit, "limit", 0, "recent threats: number of rows (default 10)")
	reportCmd.Flags().StringSliceVar(&flagWidgets, "widgets", nil, "widgets to print: "+strings.Join(widgetNames, ","))
}

func openDashboard(cmd *cobra.Command) (*datasource.Dashboard, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	if flagMode != "" {
		cfg.Client.Mode = strings.ToLower(flagMode)
	}
	if cfg.Client.Mode != config.ModeLive && cfg.Client.Mode != config.ModeStatic {
		return nil, config.ErrClientMode
	}
	c, err := datasource.New(cfg.Client, logging.Component("datasource"), metrics.New())
	if err != nil {
		return nil, err
	}
	return datasource.NewDashboard(c, nil), nil
}

// parseRange maps the range flags onto a TimeRange with the same rules the
// API applies to its query parameters.
func parseRange(days int, start, end string) (*filters.TimeRange, error) {
	if (start == "") != (end == "") {
		return nil, fmt.Errorf("--start and --end must be given together")
	}
	q := url.Values{}
	if days != 0 {
		q.Set("days", strconv.Itoa(days))
	}
	if start != "" {
		q.Set("start_date", start)
		q.Set("end_date", end)
	}
	tr, err := filters.TimeRangeFromQuery(q)
	if err != nil {
		return nil, fmt.Errorf("invalid --days value: %w", err)
	}
	return tr, nil
}

func selectWidgets(names []string) ([]string, error) {
	if len(names) == 0 {
		return widgetNames, nil
	}
	for _, n := range names {
		if !slices.Contains(widgetNames, n) {
			return nil, fmt.Errorf("unknown widget %q (want one of %s)", n, strings.Join(widgetNames, ", "))
		}
	}
	out := make([]string, 0, len(names))
	for _, n := range widgetNames {
		if slices.Contains(names, n) {
			out = append(out, n)
		}
	}
	return out, nil
}

func printWidgets(ctx context.Context, w io.Writer, d *datasource.Dashboard, widgets []string, p resource.Params) error {
	fmt.Fprintf(w, "Source: %s, range: %s\n", d.Mode(), p.Range.String())
	for _, name := range widgets {
		if err := printWidget(ctx, w, d, name, p); err != nil {
			return err
		}
	}
	return nil
}

func printWidget(ctx context.Context, w io.Writer, d *datasource.Dashboard, name string, p resource.Params) error {
	tr := p.Range
	switch name {
	case "overview":
		ov, err := d.Overview(ctx, tr)
		if err != nil {
			return err
		}
		return report.Overview(w, ov, tr.String())
	case "risk":
		dist, err := d.RiskDistribution(ctx)
		if err != nil {
			return err
		}
		return report.Risk(w, dist)
	case "recent":
		recent, err := d.RecentThreats(ctx, p)
		if err != nil {
			return err
		}
		return report.Recent(w, recent)
	case "categories":
		items, err := d.CategoryDistribution(ctx, tr)
		if err != nil {
			return err
		}
		return report.NameValues(w, "Categories", items)
	case "timeline":
		points, err := d.Timeline(ctx, tr)
		if err != nil {
			return err
		}
		return report.Timeline(w, points)
	case "iocs":
		stats, err := d.IOCStats(ctx)
		if err != nil {
			return err
		}
		return report.IOCStats(w, stats)
	case "feeds":
		feeds, err := d.FeedStats(ctx)
		if err != nil {
			return err
		}
		return report.Feeds(w, feeds)
	case "families":
		fams, err := d.ThreatFamilies(ctx, tr)
		if err != nil {
			return err
		}
		return report.Families(w, fams)
	case "industries":
		items, err := d.TopIndustries(ctx, tr)
		if err != nil {
			return err
		}
		return report.NameValues(w, "Top targeted industries", items)
	case "actors":
		acts, err := d.ActorActivity(ctx, tr, 0)
		if err != nil {
			return err
		}
		return report.Actors(w, acts)
	case "vectors":
		items, err := d.AttackVectors(ctx, tr)
		if err != nil {
			return err
		}
		return report.NameValues(w, "Attack vectors", items)
	case "cves":
		cves, err := d.TrendingCVEs(ctx, tr, 0)
		if err != nil {
			return err
		}
		return report.CVEs(w, cves)
	}
	return fmt.Errorf("unknown widget %q", name)
}

package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/storm-data-timeline/internal/adapter/fixture"
	"github.com/couchcryptid/storm-data-timeline/internal/adapter/prefs"
	"github.com/couchcryptid/storm-data-timeline/internal/adapter/query"
	"github.com/couchcryptid/storm-data-timeline/internal/adapter/tui"
	"github.com/couchcryptid/storm-data-timeline/internal/bucket"
	"github.com/couchcryptid/storm-data-timeline/internal/config"
	"github.com/couchcryptid/storm-data-timeline/internal/domain"
	"github.com/couchcryptid/storm-data-timeline/internal/frame"
	"github.com/couchcryptid/storm-data-timeline/internal/observability"
	"github.com/couchcryptid/storm-data-timeline/internal/playback"
)

type options struct {
	start, end    string
	source        string
	fixturePath   string
	queryURL      string
	queryToken    string
	queryDatabase string
	queryTable    string
	queryTimeout  time.Duration
	prefsPath     string
	frameInterval time.Duration
	logFile       string
	logLevel      string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "timeline-tui",
		Short:         "Play back storm incidents week by week in the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPlayer(cmd.Context(), opts)
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&opts.start, "start", "2020-01-01", "first day of the timeline (YYYY-MM-DD)")
	f.StringVar(&opts.end, "end", "2024-12-31", "last day of the timeline (YYYY-MM-DD)")
	f.StringVar(&opts.source, "source", config.SourceFile, "record source: file or query")
	f.StringVar(&opts.fixturePath, "fixture", "data/incidents.json", "JSON or YAML incident file")
	f.StringVar(&opts.queryURL, "query-url", "https://api.motherduck.com/v1/query", "query service endpoint")
	f.StringVar(&opts.queryToken, "query-token", os.Getenv("QUERY_TOKEN"), "query service bearer token")
	f.StringVar(&opts.queryDatabase, "query-database", "storm_data", "query service database")
	f.StringVar(&opts.queryTable, "query-table", "incidents", "table holding incidents")
	f.DurationVar(&opts.queryTimeout, "query-timeout", 30*time.Second, "query request timeout")
	root.Flags().StringVar(&opts.prefsPath, "prefs", "data/prefs.db", "SQLite file for the saved speed; empty disables")
	root.Flags().DurationVar(&opts.frameInterval, "frame-interval", 33*time.Millisecond, "time between playback frames")
	f.StringVar(&opts.logFile, "log-file", "", "write logs to this file; empty discards them")
	f.StringVar(&opts.logLevel, "log-level", "info", "log level")

	root.AddCommand(newWeeksCmd(opts), newTrendsCmd(opts))
	return root
}

func newWeeksCmd(opts *options) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "weeks",
		Short: "Print incident counts for every non-empty week",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rng, idx, err := loadIndex(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printWeeks(cmd.OutOrStdout(), rng, idx, top)
		},
	}
	cmd.Flags().IntVar(&top, "top", 3, "categories listed per week")
	return cmd
}

func newTrendsCmd(opts *options) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "trends",
		Short: "Print monthly incident counts and range-wide category totals",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rng, idx, err := loadIndex(cmd.Context(), opts)
			if err != nil {
				return err
			}
			return printTrends(cmd.OutOrStdout(), rng, idx, top)
		},
	}
	cmd.Flags().IntVar(&top, "top", 3, "categories listed per month")
	return cmd
}

func loadIndex(ctx context.Context, opts *options) (domain.Range, *bucket.Index, error) {
	rng, err := domain.NewRange(opts.start, opts.end)
	if err != nil {
		return domain.Range{}, nil, fmt.Errorf("invalid --start/--end: %w", err)
	}
	logger, closeLog, err := openLogger(opts)
	if err != nil {
		return domain.Range{}, nil, err
	}
	defer closeLog()

	fetcher, err := newFetcher(opts, rng, logger)
	if err != nil {
		return domain.Range{}, nil, err
	}
	records, err := fetcher.FetchIncidents(ctx)
	if err != nil {
		return domain.Range{}, nil, err
	}
	return rng, bucket.Build(records, rng.Epoch), nil
}

func runPlayer(ctx context.Context, opts *options) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rng, err := domain.NewRange(opts.start, opts.end)
	if err != nil {
		return fmt.Errorf("invalid --start/--end: %w", err)
	}
	if opts.frameInterval <= 0 {
		opts.frameInterval = frame.DefaultInterval
	}

	logger, closeLog, err := openLogger(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	fetcher, err := newFetcher(opts, rng, logger)
	if err != nil {
		return err
	}

	var speeds playback.SpeedStore
	if opts.prefsPath != "" {
		store, err := prefs.NewSQLiteStore(opts.prefsPath)
		if err != nil {
			return err
		}
		defer store.Close()
		speeds = store
	}

	model := tui.New(ctx, tui.Options{
		Range:         rng,
		Fetcher:       fetcher,
		Speed:         playback.RestoreSpeed(ctx, speeds, logger),
		SpeedStore:    speeds,
		FrameInterval: opts.frameInterval,
		Logger:        logger,
		Metrics:       observability.NewMetrics(),
	})

	_, err = tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	return err
}

func openLogger(opts *options) (*slog.Logger, func(), error) {
	if opts.logFile == "" {
		return observability.NewLoggerTo(io.Discard, opts.logLevel, "text"), func() {}, nil
	}
	f, err := os.OpenFile(opts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	return observability.NewLoggerTo(f, opts.logLevel, "text"), func() { _ = f.Close() }, nil
}

func newFetcher(opts *options, rng domain.Range, logger *slog.Logger) (tui.Fetcher, error) {
	switch strings.ToLower(opts.source) {
	case config.SourceFile:
		return fixture.NewLoader(opts.fixturePath, logger), nil
	case config.SourceQuery:
		if opts.queryToken == "" {
			return nil, fmt.Errorf("--query-token (or QUERY_TOKEN) is required for the query source")
		}
		client, err := query.NewClient(&config.Config{
			Range:         rng,
			QueryURL:      opts.queryURL,
			QueryToken:    opts.queryToken,
			QueryDatabase: opts.queryDatabase,
			QueryTable:    opts.queryTable,
			QueryTimeout:  opts.queryTimeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown --source %q: want file or query", opts.source)
	}
}

func printWeeks(w io.Writer, rng domain.Range, idx *bucket.Index, top int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "WEEK\tSTART\tINCIDENTS\tTOP")
	for _, week := range idx.Weeks() {
		if week >= rng.TotalWeeks() {
			break
		}
		sum := idx.Summarize(week)
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", week, rng.WeekStart(week).Format(domain.DateLayout), sum.Total, formatCounts(sum.Top(top)))
	}
	fmt.Fprintf(tw, "\n%d records, %d dropped\n", idx.Len(), idx.Dropped())
	return tw.Flush()
}

func printTrends(w io.Writer, rng domain.Range, idx *bucket.Index, top int) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "MONTH\tINCIDENTS\tTOP")
	for _, m := range idx.Monthly(rng.End) {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", m.Month, m.Total, formatCounts(m.Top(top)))
	}
	totals := idx.Totals()
	fmt.Fprintf(tw, "\nALL\t%d\t%s\n", totals.Total, formatCounts(totals.Top(-1)))
	return tw.Flush()
}

func formatCounts(counts []bucket.CategoryCount) string {
	parts := make([]string, 0, len(counts))
	for _, c := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", c.Category, c.Count))
	}
	return strings.Join(parts, " ")
}

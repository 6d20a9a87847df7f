// Command trendteller scrapes news, scores sentiment, syncs the dataset into
// the store and reports how sentiment tracks a stock.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/ibeckermayer/trendteller/internal/api"
	"github.com/ibeckermayer/trendteller/internal/app"
	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/ingest"
	"github.com/ibeckermayer/trendteller/internal/logging"
	"github.com/ibeckermayer/trendteller/internal/report"
	"github.com/ibeckermayer/trendteller/internal/scheduler"
	"github.com/ibeckermayer/trendteller/internal/stock"
	"github.com/ibeckermayer/trendteller/internal/types"
)

func main() {
	configPath := flag.String("config", "", "config file (default: user config dir)")
	flag.Usage = printUsage
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(2)
	}

	cfg := loadConfig(*configPath)
	logging.Setup(cfg.Log)

	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", "err", err)
		os.Exit(1)
	}

	cmd, args := flag.Arg(0), flag.Args()[1:]
	run, ok := commands[cmd]
	if !ok {
		printUsage()
		os.Exit(2)
	}

	a, err := app.NewFromConfig(cfg, *configPath)
	if err != nil {
		slog.Error("Failed to start", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, a, args)
	stop()
	_ = a.Close()

	if err != nil {
		slog.Error("Command failed", "command", cmd, "err", err)
		os.Exit(1)
	}
}

type command func(ctx context.Context, a *app.App, args []string) error

var commands = map[string]command{
	"news":     runNews,
	"comments": runComments,
	"stock":    runStock,
	"sync":     runSync,
	"report":   runReport,
	"serve":    runServe,
}

func printUsage() {
	fmt.Println("Usage: trendteller [-config path] <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  news      -query q [-count n]                 Scrape and score news headlines")
	fmt.Println("  comments  -file f.csv -ticker T               Score an uploaded comments file")
	fmt.Println("  stock     -ticker T [-start d] [-end d]       Fetch daily prices")
	fmt.Println("  sync                                          Update the database from the dataset")
	fmt.Println("  report    -query q -comments T -stock T [-open]  Build the correlation report")
	fmt.Println("  serve     [-addr :8501]                       Run the HTTP server")
}

// loadConfig reads the config file, creating a default one on first run
func loadConfig(path string) *config.Config {
	if path == "" {
		var err error
		if path, err = config.ConfigPath(); err != nil {
			slog.Warn("Could not resolve config path, using defaults", "err", err)
			cfg := config.Default()
			cfg.ApplyEnv()
			return cfg
		}
	}

	cfg, err := config.LoadFrom(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
			if err := cfg.SaveTo(path); err != nil {
				slog.Warn("Could not save default config", "err", err)
			} else {
				slog.Info("Created default config", "path", path)
			}
		} else {
			slog.Warn("Could not load config, using defaults", "path", path, "err", err)
			cfg = config.Default()
		}
	}
	cfg.ApplyEnv()
	return cfg
}

// stdout receives command output
var stdout io.Writer = os.Stdout

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func runNews(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("news", flag.ExitOnError)
	query := fs.String("query", "", "search term")
	count := fs.Int("count", 0, "number of headlines (default from config)")
	_ = fs.Parse(args)

	res, err := a.ScrapeNews(ctx, *query, *count)
	return printIngest(res, err)
}

func runComments(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("comments", flag.ExitOnError)
	file := fs.String("file", "", "comments CSV with Username and Comment columns")
	ticker := fs.String("ticker", "", "ticker the comments are about")
	_ = fs.Parse(args)

	f, err := os.Open(*file)
	if err != nil {
		return err
	}
	defer f.Close()

	res, err := a.UploadComments(ctx, f, filepath.Base(*file), *ticker)
	return printIngest(res, err)
}

// printIngest prints an ingestion result. An empty batch is a warning, not a
// failure.
func printIngest(res *ingest.Result, err error) error {
	if errors.Is(err, ingest.ErrNoData) {
		if res == nil {
			res = &ingest.Result{}
		}
		res.Warnings = append(res.Warnings, err.Error())
		err = nil
	}
	if err != nil {
		return err
	}
	for _, w := range res.Warnings {
		slog.Warn(w)
	}
	return printJSON(res)
}

func runStock(ctx context.Context, a *app.App, args []string) error {
	today := types.DateOf(time.Now())

	fs := flag.NewFlagSet("stock", flag.ExitOnError)
	ticker := fs.String("ticker", "", "stock ticker")
	start := fs.String("start", today.AddDays(-30).String(), "first day (YYYY-MM-DD)")
	end := fs.String("end", today.AddDays(1).String(), "day after the last day (YYYY-MM-DD)")
	_ = fs.Parse(args)

	from, err := types.ParseDate(*start)
	if err != nil {
		return err
	}
	to, err := types.ParseDate(*end)
	if err != nil {
		return err
	}

	res, err := a.FetchStock(ctx, *ticker, from, to)
	if errors.Is(err, stock.ErrNoData) {
		slog.Warn("No price data", "ticker", *ticker, "start", from, "end", to)
		fmt.Fprintf(stdout, "No price data for %s in [%s, %s)\n", *ticker, from, to)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Saved %d rows to %s\n", len(res.Prices), res.Path)
	return nil
}

func runSync(ctx context.Context, a *app.App, _ []string) error {
	rep, err := a.UpdateDatabase(ctx)
	if err != nil {
		return err
	}
	if rep.Empty() {
		slog.Warn("No flat files found", "dataset", a.Config().Dataset.Dir)
	}
	return printJSON(rep)
}

func runReport(ctx context.Context, a *app.App, args []string) error {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	query := fs.String("query", "", "news search query")
	comments := fs.String("comments", "", "StockTwits ticker")
	stockTicker := fs.String("stock", "", "stock ticker")
	open := fs.Bool("open", false, "open the report in the browser")
	_ = fs.Parse(args)

	r, path, err := a.Report(ctx, report.Request{Query: *query, CommentsTicker: *comments, StockTicker: *stockTicker})
	if err != nil {
		return err
	}
	for _, w := range r.Warnings {
		slog.Warn(w)
	}
	for _, p := range r.Pairings {
		fmt.Fprintf(stdout, "%-40s r = %-10s n = %d\n", p.Pairing.Label, p.Coefficient, p.Coefficient.N)
	}
	fmt.Fprintln(stdout, "Saved", path)

	if *open {
		return a.OpenLastReport()
	}
	return nil
}

func runServe(ctx context.Context, a *app.App, args []string) error {
	cfg := a.Config()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", cfg.Server.Addr, "listen address")
	_ = fs.Parse(args)

	if cfg.Sync.Schedule != "" {
		sched, err := scheduler.New(cfg.Sync.Timezone)
		if err != nil {
			return err
		}
		if err := sched.AddSyncJob(cfg.Sync.Schedule, func(ctx context.Context) error {
			_, err := a.UpdateDatabase(ctx)
			return err
		}); err != nil {
			return err
		}
		sched.Start()
		defer func() { <-sched.Stop().Done() }()
	}

	_, srv := api.NewServer(*addr, a)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", *addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

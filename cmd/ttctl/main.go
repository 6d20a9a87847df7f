// Command ttctl is a dev CLI for trendteller maintenance and debugging tasks.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/pkg/browser"

	browseropts "github.com/ibeckermayer/trendteller/internal/browser"
	"github.com/ibeckermayer/trendteller/internal/config"
	"github.com/ibeckermayer/trendteller/internal/logging"
	"github.com/ibeckermayer/trendteller/internal/report"
	"github.com/ibeckermayer/trendteller/internal/scraper"
)

func main() {
	logging.Setup(config.LogConfig{Level: "info"})

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "selector-test":
		if len(os.Args) < 3 {
			fmt.Println("Usage: ttctl selector-test <query>")
			os.Exit(1)
		}
		runSelectorTest(strings.Join(os.Args[2:], " "))
	case "open":
		if len(os.Args) < 3 {
			fmt.Println("Usage: ttctl open <config|cache|dataset|report>")
			os.Exit(1)
		}
		runOpen(os.Args[2])
	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: ttctl <command>")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  selector-test <query>  Load one results page in a visible browser and count selector matches")
	fmt.Println("  open config            Open config file in default editor")
	fmt.Println("  open cache             Open cache directory in file explorer")
	fmt.Println("  open dataset           Open the dataset directory")
	fmt.Println("  open report            Open the most recent report")
}

// runSelectorTest shows how many nodes each scraper selector matches on a
// live results page, so markup changes can be spotted quickly.
func runSelectorTest(query string) {
	ctx, cancel := browseropts.NewContext(context.Background(), false)
	defer cancel()
	ctx, timeout := context.WithTimeout(ctx, 2*time.Minute)
	defer timeout()

	if err := browseropts.SetLanguage(ctx); err != nil {
		slog.Error("Failed to start browser", "err", err)
		os.Exit(1)
	}

	pageURL := scraper.SearchURL(query, 0)
	slog.Info("Loading results page", "url", pageURL)
	if err := chromedp.Run(ctx,
		chromedp.Navigate(pageURL),
		chromedp.WaitReady(scraper.WaitForResults, chromedp.ByQuery),
	); err != nil {
		slog.Error("Failed to load page", "err", err)
		os.Exit(1)
	}

	selectors := []struct{ name, sel string }{
		{"ResultsContainer", scraper.ResultsContainer},
		{"ResultCard", scraper.ResultCard},
		{"CardLink", scraper.ResultCard + " " + scraper.CardLink},
		{"CardTitle", scraper.CardTitle},
		{"CardSource", scraper.CardSource},
		{"ConsentAccept", scraper.ConsentAccept},
	}
	for _, s := range selectors {
		var n int
		js := `document.querySelectorAll(` + strconv.Quote(s.sel) + `).length`
		if err := chromedp.Run(ctx, chromedp.Evaluate(js, &n)); err != nil {
			fmt.Printf("%-18s error: %v\n", s.name, err)
			continue
		}
		fmt.Printf("%-18s %4d  %s\n", s.name, n, s.sel)
	}

	fmt.Println("Press Enter to end program...")
	fmt.Scanln()
}

func runOpen(target string) {
	var path string
	var err error

	switch target {
	case "config":
		path, err = config.ConfigPath()
	case "cache":
		path, err = config.CacheDir()
	case "dataset", "report":
		var cfg *config.Config
		if cfg, err = config.Load(); err != nil {
			cfg = config.Default()
			err = nil
		}
		cfg.ApplyEnv()
		if target == "dataset" {
			path = cfg.Dataset.Dir
		} else {
			path, err = report.LatestReport(cfg.Report.OutputDir)
		}
	default:
		fmt.Printf("Unknown target: %s\n", target)
		os.Exit(1)
	}

	if err != nil {
		slog.Error("Failed to get path", "err", err)
		os.Exit(1)
	}

	if err := browser.OpenFile(path); err != nil {
		slog.Error("Failed to open", "path", path, "err", err)
		os.Exit(1)
	}
}

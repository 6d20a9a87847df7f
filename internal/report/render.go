package report

import (
	"bytes"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var templateFuncs = template.FuncMap{
	"f2": func(v float64) string { return fmt.Sprintf("%.2f", v) },
	"opt": func(v *float64) string {
		if v == nil {
			return "–"
		}
		return fmt.Sprintf("%.2f", *v)
	},
	"date": func(t time.Time) string { return t.Format("Monday, January 2 2006 15:04") },
}

type pageData struct {
	*Report
	Title    string
	Overlay  overlay
	Scatters []scatter
	Width    float64
	Height   float64
	Pad      float64
}

// Render returns the report as a standalone HTML page
func (b *Builder) Render(r *Report) ([]byte, error) {
	data := pageData{
		Report:  r,
		Title:   fmt.Sprintf("TrendTeller: %s / %s / %s", r.Request.Query, r.Request.CommentsTicker, r.Request.StockTicker),
		Overlay: newOverlay(r.Prices),
		Width:   chartWidth,
		Height:  chartHeight,
		Pad:     chartPad,
	}
	for _, p := range r.Pairings {
		data.Scatters = append(data.Scatters, newScatter(p))
	}

	var buf bytes.Buffer
	if err := b.template.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}
	return buf.Bytes(), nil
}

// Save renders r into the output directory and returns the file path
func (b *Builder) Save(r *Report) (string, error) {
	html, err := b.Render(r)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(b.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create report dir: %w", err)
	}

	// Colons are not portable in filenames
	name := fmt.Sprintf("%s_%s_%s_%s.html",
		r.GeneratedAt.Format("2006-01-02T15-04-05"),
		fileSafe(r.Request.Query), fileSafe(r.Request.CommentsTicker), fileSafe(r.Request.StockTicker))
	path := filepath.Join(b.outputDir, name)

	if err := os.WriteFile(path, html, 0644); err != nil {
		return "", fmt.Errorf("failed to write report: %w", err)
	}
	return path, nil
}

func fileSafe(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-':
			return r
		}
		return '_'
	}, strings.TrimSpace(s))
}

// LatestReport returns the most recent report file in dir
func LatestReport(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("no reports in %s", dir)
		}
		return "", err
	}

	// os.ReadDir sorts by name, which is chronological for our timestamps
	var latest string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".html") {
			latest = e.Name()
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no reports in %s", dir)
	}
	return filepath.Join(dir, latest), nil
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 1200px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; margin-bottom: 20px; }
        h1 { color: #1f6f43; margin-bottom: 5px; }
        .date { color: #666; margin-bottom: 20px; }
        .warning { background: #fff4e5; color: #8a5300; padding: 8px 12px; border-radius: 4px; margin: 6px 0; }
        table { border-collapse: collapse; width: 100%; font-size: 14px; }
        th, td { text-align: right; padding: 4px 8px; border-bottom: 1px solid #eee; }
        th:first-child, td:first-child { text-align: left; }
        .undefined { color: #999; font-style: italic; }
        .grid { display: flex; flex-wrap: wrap; gap: 16px; }
        .chart { flex: 1 1 520px; }
        .chart h3 { margin: 8px 0; font-size: 15px; }
        svg { background: #fafafa; border: 1px solid #eee; }
        .axis { font-size: 10px; fill: #666; }
        .footer { color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="date">{{date .GeneratedAt}} · {{.NewsCount}} news rows · {{.CommentCount}} StockTwits rows</div>
        {{range .Warnings}}<div class="warning">{{.}}</div>{{end}}
    </div>

    <div class="container">
        <h2>Correlation Results</h2>
        <table>
            <tr><th>Pairing</th><th>Pearson r</th><th>Days</th></tr>
            {{range .Pairings}}
            <tr>
                <td>{{.Pairing.Label}}</td>
                <td>{{if .Coefficient.Defined}}{{printf "%.4f" .Coefficient.Value}}{{else}}<span class="undefined">undefined</span>{{end}}</td>
                <td>{{.Coefficient.N}}</td>
            </tr>
            {{end}}
        </table>
    </div>

    {{if .Prices}}
    <div class="container">
        <h2>Sentiment and Stock Price Over Time</h2>
        <svg width="{{.Width}}" height="{{.Height}}" viewBox="0 0 {{.Width}} {{.Height}}">
            <polyline points="{{.Overlay.Price}}" fill="none" stroke="green" stroke-width="2"/>
            {{if .Overlay.News}}<polyline points="{{.Overlay.News}}" fill="none" stroke="blue" stroke-dasharray="2,3"/>{{end}}
            {{if .Overlay.Social}}<polyline points="{{.Overlay.Social}}" fill="none" stroke="orange" stroke-dasharray="2,3"/>{{end}}
            {{range .Overlay.Labels}}<text class="axis" x="{{.X}}" y="{{$.Height}}" dy="-8" text-anchor="middle">{{.Text}}</text>{{end}}
        </svg>
        <p class="axis">green: adjusted close · blue: news sentiment · orange: StockTwits sentiment</p>
        <table>
            <tr><th>Date</th><th>Adj Close</th><th>SMA 5</th><th>Volume</th><th>News</th><th>StockTwits</th></tr>
            {{range .Prices}}
            <tr><td>{{.Date}}</td><td>{{f2 .AdjClose}}</td><td>{{opt .SMA}}</td><td>{{printf "%.0f" .Volume}}</td><td>{{opt .News}}</td><td>{{opt .Social}}</td></tr>
            {{end}}
        </table>
    </div>
    {{end}}

    <div class="container">
        <h2>Scatter Plots</h2>
        <div class="grid">
        {{range .Scatters}}
            <div class="chart">
                <h3>{{.Title}} (r = {{.Coef}})</h3>
                <svg width="{{$.Width}}" height="{{$.Height}}" viewBox="0 0 {{$.Width}} {{$.Height}}">
                    {{range .Points}}<circle cx="{{.X}}" cy="{{.Y}}" r="4" fill="steelblue" fill-opacity="0.5"/>{{end}}
                    {{if .Trend}}<line x1="{{(index .Trend 0).X}}" y1="{{(index .Trend 0).Y}}" x2="{{(index .Trend 1).X}}" y2="{{(index .Trend 1).Y}}" stroke="black" stroke-dasharray="4,3"/>{{end}}
                    <text class="axis" x="{{$.Pad}}" y="{{$.Height}}" dy="-8">{{.XLabel}}</text>
                    <text class="axis" x="8" y="{{$.Pad}}" dy="-8">{{.YLabel}}</text>
                </svg>
            </div>
        {{end}}
        </div>
    </div>

    <div class="footer">Generated by trendteller</div>
</body>
</html>`

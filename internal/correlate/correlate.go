// Package correlate aligns date-keyed series and measures how they move together.
package correlate

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/ibeckermayer/trendteller/internal/types"
)

// Series names used by the built-in pairings
const (
	SeriesSocial = "social_sentiment"
	SeriesNews   = "news_sentiment"
	SeriesPrice  = "adj_close"
	SeriesVolume = "volume"
)

// Point is one dated observation
type Point struct {
	Date  types.Date `json:"date"`
	Value float64    `json:"value"`
}

// Series is a named set of points with at most one point per date, sorted by date
type Series struct {
	Name   string  `json:"name"`
	Points []Point `json:"points"`
}

// DailyMean groups observations by date and averages each group
func DailyMean(name string, obs []Point) Series {
	sums := map[types.Date]float64{}
	counts := map[types.Date]int{}
	for _, p := range obs {
		sums[p.Date] += p.Value
		counts[p.Date]++
	}

	s := Series{Name: name, Points: make([]Point, 0, len(sums))}
	for d, sum := range sums {
		s.Points = append(s.Points, Point{Date: d, Value: sum / float64(counts[d])})
	}
	sort.Slice(s.Points, func(i, j int) bool { return s.Points[i].Date.Before(s.Points[j].Date) })
	return s
}

// NewsSentiment returns the daily mean news sentiment
func NewsSentiment(rows []types.NewsRow) Series {
	obs := make([]Point, len(rows))
	for i, r := range rows {
		obs[i] = Point{Date: r.Date, Value: float64(r.Sentiment)}
	}
	return DailyMean(SeriesNews, obs)
}

// SocialSentiment returns the daily mean comment sentiment
func SocialSentiment(rows []types.CommentRow) Series {
	obs := make([]Point, len(rows))
	for i, r := range rows {
		obs[i] = Point{Date: r.Date, Value: float64(r.Sentiment)}
	}
	return DailyMean(SeriesSocial, obs)
}

// PriceSeries splits price bars into adjusted close and volume series
func PriceSeries(prices []types.PriceRecord) (adjClose, volume Series) {
	closes := make([]Point, len(prices))
	vols := make([]Point, len(prices))
	for i, p := range prices {
		closes[i] = Point{Date: p.Date, Value: p.AdjClose}
		vols[i] = Point{Date: p.Date, Value: p.Volume}
	}
	return DailyMean(SeriesPrice, closes), DailyMean(SeriesVolume, vols)
}

// Row is one date present in every aligned series. Values follow the order
// the series were passed to Align.
type Row struct {
	Date   types.Date `json:"date"`
	Values []float64  `json:"values"`
}

// Align inner-joins series on date: a date is kept only if every series has it
func Align(series ...Series) []Row {
	if len(series) == 0 {
		return nil
	}

	lookup := make([]map[types.Date]float64, len(series))
	for i, s := range series {
		lookup[i] = make(map[types.Date]float64, len(s.Points))
		for _, p := range s.Points {
			lookup[i][p.Date] = p.Value
		}
	}

	var rows []Row
	for _, p := range series[0].Points {
		row := Row{Date: p.Date, Values: make([]float64, len(series))}
		keep := true
		for i := range series {
			v, ok := lookup[i][p.Date]
			if !ok {
				keep = false
				break
			}
			row.Values[i] = v
		}
		if keep {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows
}

// Coefficient is a Pearson r. Defined is false when fewer than two points
// were aligned or either side has zero variance.
type Coefficient struct {
	Value   float64 `json:"value"`
	Defined bool    `json:"defined"`
	N       int     `json:"n"`
}

// String formats r to four places or "undefined"
func (c Coefficient) String() string {
	if !c.Defined {
		return "undefined"
	}
	return fmt.Sprintf("%.4f", c.Value)
}

// MarshalJSON writes an undefined value as null
func (c Coefficient) MarshalJSON() ([]byte, error) {
	var value *float64
	if c.Defined {
		value = &c.Value
	}
	return json.Marshal(struct {
		Value   *float64 `json:"value"`
		Defined bool     `json:"defined"`
		N       int      `json:"n"`
	}{value, c.Defined, c.N})
}

// Pearson computes the correlation of x and y over their common length
func Pearson(x, y []float64) Coefficient {
	n := min(len(x), len(y))
	c := Coefficient{N: n}
	if n < 2 || constant(x[:n]) || constant(y[:n]) {
		return c
	}

	var meanX, meanY float64
	for i := 0; i < n; i++ {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var sxy, sxx, syy float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-meanX, y[i]-meanY
		sxy += dx * dy
		sxx += dx * dx
		syy += dy * dy
	}

	denominator := math.Sqrt(sxx * syy)
	if denominator == 0 || math.IsNaN(denominator) || math.IsInf(denominator, 0) {
		return c
	}

	c.Value = math.Max(-1, math.Min(1, sxy/denominator))
	c.Defined = true
	return c
}

// constant reports whether every value equals the first. Subtracting a mean
// from such a series can leave rounding residue, so it is checked exactly.
func constant(v []float64) bool {
	for _, x := range v[1:] {
		if x != v[0] {
			return false
		}
	}
	return true
}

// Pairing names two series to correlate
type Pairing struct {
	Name  string `json:"name"`
	Label string `json:"label"`
	X     string `json:"x"`
	Y     string `json:"y"`
}

// Pairings are the correlations every report carries
var Pairings = []Pairing{
	{Name: "twits_price", Label: "StockTwits sentiment vs stock price", X: SeriesSocial, Y: SeriesPrice},
	{Name: "twits_news", Label: "StockTwits sentiment vs news sentiment", X: SeriesSocial, Y: SeriesNews},
	{Name: "news_price", Label: "News sentiment vs stock price", X: SeriesNews, Y: SeriesPrice},
	{Name: "news_volume", Label: "News sentiment vs stock volume", X: SeriesNews, Y: SeriesVolume},
	{Name: "twits_volume", Label: "StockTwits sentiment vs stock volume", X: SeriesSocial, Y: SeriesVolume},
}

// Result is one pairing with its aligned rows and coefficient
type Result struct {
	Pairing     Pairing     `json:"pairing"`
	Coefficient Coefficient `json:"coefficient"`
	Rows        []Row       `json:"rows"`
}

// Correlate evaluates each pairing over series keyed by name. A missing
// series yields an undefined coefficient for the pairings that need it.
func Correlate(series map[string]Series, pairings []Pairing) []Result {
	results := make([]Result, 0, len(pairings))
	for _, p := range pairings {
		r := Result{Pairing: p}
		x, okX := series[p.X]
		y, okY := series[p.Y]
		if okX && okY {
			r.Rows = Align(x, y)
			xs, ys := Columns(r.Rows)
			r.Coefficient = Pearson(xs, ys)
		}
		results = append(results, r)
	}
	return results
}

// Columns splits two-series aligned rows into x and y slices
func Columns(rows []Row) (xs, ys []float64) {
	xs = make([]float64, len(rows))
	ys = make([]float64, len(rows))
	for i, r := range rows {
		xs[i], ys[i] = r.Values[0], r.Values[1]
	}
	return xs, ys
}

// LinearFit returns the least-squares line y = slope*x + intercept.
// ok is false when fewer than two points exist or x has no variance.
func LinearFit(x, y []float64) (slope, intercept float64, ok bool) {
	n := min(len(x), len(y))
	if n < 2 || constant(x[:n]) {
		return 0, 0, false
	}

	var meanX, meanY float64
	for i := 0; i < n; i++ {
		meanX += x[i]
		meanY += y[i]
	}
	meanX /= float64(n)
	meanY /= float64(n)

	var sxy, sxx float64
	for i := 0; i < n; i++ {
		dx := x[i] - meanX
		sxy += dx * (y[i] - meanY)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, 0, false
	}

	slope = sxy / sxx
	return slope, meanY - slope*meanX, true
}

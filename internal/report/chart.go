package report

import (
	"fmt"
	"math"
	"strings"

	"github.com/ibeckermayer/trendteller/internal/correlate"
)

// Chart geometry in SVG user units
const (
	chartWidth  = 560.0
	chartHeight = 320.0
	chartPad    = 40.0
)

// point is a position in SVG coordinates
type point struct {
	X, Y float64
}

// scatter is one rendered pairing
type scatter struct {
	Title  string
	XLabel string
	YLabel string
	Points []point
	Trend  []point
	Coef   correlate.Coefficient
}

// overlay is the adjusted close line with sentiment lines on a second axis
type overlay struct {
	Price  string
	News   string
	Social string
	Labels []axisLabel
}

type axisLabel struct {
	X    float64
	Text string
}

// scale maps [lo,hi] onto [outLo,outHi]; a flat range maps to the middle
func scale(v, lo, hi, outLo, outHi float64) float64 {
	if hi == lo {
		return (outLo + outHi) / 2
	}
	return outLo + (v-lo)/(hi-lo)*(outHi-outLo)
}

func bounds(vs []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range vs {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	return lo, hi
}

var seriesLabels = map[string]string{
	correlate.SeriesSocial: "StockTwits sentiment",
	correlate.SeriesNews:   "News sentiment",
	correlate.SeriesPrice:  "Adjusted close price",
	correlate.SeriesVolume: "Stock volume",
}

func newScatter(p Pairing) scatter {
	s := scatter{
		Title:  p.Pairing.Label,
		XLabel: seriesLabels[p.Pairing.X],
		YLabel: seriesLabels[p.Pairing.Y],
		Coef:   p.Coefficient,
	}
	if len(p.Rows) == 0 {
		return s
	}

	xs, ys := correlate.Columns(p.Rows)
	xlo, xhi := bounds(xs)
	ylo, yhi := bounds(ys)
	toSVG := func(x, y float64) point {
		return point{
			X: scale(x, xlo, xhi, chartPad, chartWidth-chartPad),
			Y: scale(y, ylo, yhi, chartHeight-chartPad, chartPad),
		}
	}

	for i := range xs {
		s.Points = append(s.Points, toSVG(xs[i], ys[i]))
	}
	if p.Fit.OK {
		s.Trend = []point{
			toSVG(xlo, p.Fit.Slope*xlo+p.Fit.Intercept),
			toSVG(xhi, p.Fit.Slope*xhi+p.Fit.Intercept),
		}
	}
	return s
}

func newOverlay(rows []PriceRow) overlay {
	var o overlay
	if len(rows) == 0 {
		return o
	}

	closes := make([]float64, len(rows))
	for i, r := range rows {
		closes[i] = r.AdjClose
	}
	plo, phi := bounds(closes)
	x := func(i int) float64 {
		return scale(float64(i), 0, float64(len(rows)-1), chartPad, chartWidth-chartPad)
	}

	var price, news, social []string
	for i, r := range rows {
		price = append(price, fmt.Sprintf("%.1f,%.1f", x(i), scale(r.AdjClose, plo, phi, chartHeight-chartPad, chartPad)))
		if r.News != nil {
			news = append(news, fmt.Sprintf("%.1f,%.1f", x(i), sentimentY(*r.News)))
		}
		if r.Social != nil {
			social = append(social, fmt.Sprintf("%.1f,%.1f", x(i), sentimentY(*r.Social)))
		}
	}
	o.Price = strings.Join(price, " ")
	o.News = strings.Join(news, " ")
	o.Social = strings.Join(social, " ")

	step := max(1, len(rows)/6)
	for i := 0; i < len(rows); i += step {
		o.Labels = append(o.Labels, axisLabel{X: x(i), Text: rows[i].Date.String()})
	}
	return o
}

// sentimentY places a 1-5 score on the secondary axis
func sentimentY(v float64) float64 {
	return scale(v, 1, 5, chartHeight-chartPad, chartPad)
}

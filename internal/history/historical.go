package history

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Range selects how far back the historical series reaches.
type Range string

const (
	Range24h Range = "24h"
	Range7d  Range = "7d"
	Range30d Range = "30d"
)

// ParseRange validates a user supplied range.
func ParseRange(s string) (Range, error) {
	switch r := Range(s); r {
	case Range24h, Range7d, Range30d:
		return r, nil
	default:
		return "", fmt.Errorf("unknown range %q (want 24h, 7d or 30d)", s)
	}
}

// Hours is the number of hourly steps the range covers.
func (r Range) Hours() int {
	switch r {
	case Range7d:
		return 7 * 24
	case Range30d:
		return 30 * 24
	default:
		return 24
	}
}

// HistoricalPoint is one hourly observation in the historical view, in Gwei.
type HistoricalPoint struct {
	Timestamp time.Time       `json:"timestamp"`
	GasPrice  decimal.Decimal `json:"gas_price"`
	Low       decimal.Decimal `json:"low"`
	High      decimal.Decimal `json:"high"`
}

// Stats summarise a series.
type Stats struct {
	Current       decimal.Decimal `json:"current"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"change_percent"`
	Min           decimal.Decimal `json:"min"`
	Max           decimal.Decimal `json:"max"`
	Avg           decimal.Decimal `json:"avg"`
}

var (
	weekendFactor = decimal.RequireFromString("0.7")
	nightFactor   = decimal.RequireFromString("0.6")
	peakFactor    = decimal.RequireFromString("1.4")
	floorGwei     = decimal.NewFromInt(5)
	lowSpread     = decimal.NewFromInt(5)
	highSpread    = decimal.NewFromInt(8)
)

// Generator produces synthetic hourly series that dip on weekends and at night and peak in the
// afternoon. Safe for concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator seeds a generator. Seed 0 picks a time-based seed.
func NewGenerator(seed uint64) *Generator {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Generator{rng: rand.New(rand.NewPCG(seed, ^seed))}
}

// Generate walks back from now in hourly steps and returns Hours()+1 points, oldest first.
func (g *Generator) Generate(r Range, now time.Time) []HistoricalPoint {
	steps := r.Hours()
	base := decimal.NewFromInt(25)
	out := make([]HistoricalPoint, 0, steps+1)

	g.mu.Lock()
	defer g.mu.Unlock()
	for i := steps; i >= 0; i-- {
		ts := now.Add(-time.Duration(i) * time.Hour)

		volatility := decimal.NewFromFloat(g.rng.Float64()*10 - 5)
		base = decimal.Max(floorGwei, base.Add(volatility))

		price := base.Mul(multiplierAt(ts))
		out = append(out, HistoricalPoint{
			Timestamp: ts,
			GasPrice:  price.Round(1),
			Low:       decimal.Max(decimal.Zero, price.Sub(lowSpread)).Round(1),
			High:      price.Add(highSpread).Round(1),
		})
	}
	return out
}

func multiplierAt(ts time.Time) decimal.Decimal {
	m := decimal.NewFromInt(1)
	if wd := ts.Weekday(); wd == time.Saturday || wd == time.Sunday {
		m = m.Mul(weekendFactor)
	}
	switch h := ts.Hour(); {
	case h >= 2 && h <= 6:
		m = m.Mul(nightFactor)
	case h >= 14 && h <= 18:
		m = m.Mul(peakFactor)
	}
	return m
}

// GasPrices extracts the headline price of each point.
func GasPrices(pts []HistoricalPoint) []decimal.Decimal {
	out := make([]decimal.Decimal, len(pts))
	for i, p := range pts {
		out[i] = p.GasPrice
	}
	return out
}

// Summarize computes stats over values, oldest first. It reports false for an empty series.
// Change compares the last two values; ChangePercent is zero when the previous value is zero.
func Summarize(values []decimal.Decimal) (Stats, bool) {
	if len(values) == 0 {
		return Stats{}, false
	}

	current := values[len(values)-1]
	st := Stats{Current: current, Min: current, Max: current}

	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
		st.Min = decimal.Min(st.Min, v)
		st.Max = decimal.Max(st.Max, v)
	}
	st.Avg = sum.Div(decimal.NewFromInt(int64(len(values)))).Round(2)

	if len(values) > 1 {
		prev := values[len(values)-2]
		st.Change = current.Sub(prev)
		if !prev.IsZero() {
			st.ChangePercent = st.Change.Div(prev).Mul(decimal.NewFromInt(100)).Round(2)
		}
	}
	return st, true
}

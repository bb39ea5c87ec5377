package analysis

import (
	"math"
	"sort"
	"time"
)

// DefaultWindow is the moving-average window in trading days.
const DefaultWindow = 200

// Candle is a single (date, close) observation, oldest-first when in a slice.
type Candle struct {
	Date  time.Time
	Close float64
}

// Result is the full derived series for one symbol. MA and PctDiff use nil
// for undefined points: indices before the window fills, zero-MA divisions,
// and any non-finite intermediate value. Callers never see NaN or Inf.
type Result struct {
	Dates         []time.Time
	Prices        []float64
	MA            []*float64
	PctDiff       []*float64
	PreviousClose *float64
}

// Analyze computes the trailing simple moving average and the percent
// deviation series for an ordered price series. It is a pure function:
// identical input always yields identical output, and it touches neither
// network nor storage.
func Analyze(candles []Candle, window int) *Result {
	n := len(candles)
	result := &Result{
		Dates:   make([]time.Time, n),
		Prices:  make([]float64, n),
		MA:      make([]*float64, n),
		PctDiff: make([]*float64, n),
	}

	var runningSum float64
	for i, c := range candles {
		result.Dates[i] = c.Date
		result.Prices[i] = c.Close

		runningSum += c.Close
		if i >= window {
			runningSum -= candles[i-window].Close
		}
		if i < window-1 {
			continue
		}

		ma := runningSum / float64(window)
		if !isFinite(ma) {
			continue
		}
		result.MA[i] = &ma

		if ma == 0 {
			continue
		}
		diff := (c.Close - ma) / ma * 100
		if !isFinite(diff) {
			continue
		}
		result.PctDiff[i] = &diff
	}

	if n >= 2 {
		prev := candles[n-2].Close
		if isFinite(prev) {
			result.PreviousClose = &prev
		}
	}

	return result
}

// ValidDeviations returns the non-nil percent deviations in series order.
func (r *Result) ValidDeviations() []float64 {
	values := make([]float64, 0, len(r.PctDiff))
	for _, d := range r.PctDiff {
		if d != nil {
			values = append(values, *d)
		}
	}
	return values
}

// LatestDeviation returns the most recent defined percent deviation.
func (r *Result) LatestDeviation() (float64, bool) {
	for i := len(r.PctDiff) - 1; i >= 0; i-- {
		if r.PctDiff[i] != nil {
			return *r.PctDiff[i], true
		}
	}
	return 0, false
}

// Bands resolves low/high percentile ranks into deviation-value bounds for
// this series. The ranks are caller-supplied: bands are specific to each
// watcher's thresholds, not a property of the engine.
func (r *Result) Bands(lowRank, highRank float64) (low, high float64, ok bool) {
	values := r.ValidDeviations()
	if len(values) == 0 {
		return 0, 0, false
	}
	return Percentile(values, lowRank), Percentile(values, highRank), true
}

// Percentile computes the rank-th percentile of values using linear
// interpolation between closest ranks. rank is clamped to [0, 100].
func Percentile(values []float64, rank float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if rank < 0 {
		rank = 0
	}
	if rank > 100 {
		rank = 100
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	pos := rank / 100 * float64(len(sorted)-1)
	lower := int(math.Floor(pos))
	if lower >= len(sorted)-1 {
		return sorted[len(sorted)-1]
	}
	frac := pos - float64(lower)
	return sorted[lower] + frac*(sorted[lower+1]-sorted[lower])
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

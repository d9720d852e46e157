package intel

import "math"

// Metric engine calibration. These are heuristics, not statistics.
const (
	// TrendScoreMultiplier maps total return onto the score scale: a ±12.5%
	// move over the window spans the full [0,100] range around 50.
	TrendScoreMultiplier = 400.0

	// MinSeriesLength is the shortest price series that yields real metrics.
	MinSeriesLength = 3

	neutralScore       = 50
	neutralTrendLength = 7
	maxScore           = 100
)

// DerivedMetrics holds the bounded scores computed from a price series.
type DerivedMetrics struct {
	TrendScore      int       `json:"trendScore"`
	VolatilityScore int       `json:"volatilityScore"`
	Returns         []float64 `json:"returns"`
	Trend           []int     `json:"trend"`
}

// NeutralMetrics is returned when the series is too short to say anything.
func NeutralMetrics() DerivedMetrics {
	trend := make([]int, neutralTrendLength)
	for i := range trend {
		trend[i] = neutralScore
	}
	return DerivedMetrics{
		TrendScore:      neutralScore,
		VolatilityScore: neutralScore,
		Returns:         []float64{},
		Trend:           trend,
	}
}

// ComputeMetrics converts an oldest-to-newest close series into trend and
// volatility scores plus a min-max normalized curve. It never panics and
// every score is an integer in [0,100].
func ComputeMetrics(prices []float64) DerivedMetrics {
	if len(prices) < MinSeriesLength {
		return NeutralMetrics()
	}

	returns := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		returns = append(returns, ratioChange(prices[i-1], prices[i]))
	}

	totalReturn := ratioChange(prices[0], prices[len(prices)-1])
	trendScore := clampScore(totalReturn*TrendScoreMultiplier + neutralScore)

	signChanges := 0
	for i := 1; i < len(returns); i++ {
		if returns[i]*returns[i-1] < 0 {
			signChanges++
		}
	}
	pairs := len(returns) - 1
	if pairs < 1 {
		pairs = 1
	}
	volatilityScore := clampScore(float64(signChanges) / float64(pairs) * maxScore)

	return DerivedMetrics{
		TrendScore:      trendScore,
		VolatilityScore: volatilityScore,
		Returns:         returns,
		Trend:           normalizeSeries(prices),
	}
}

// ratioChange is (to-from)/from, with 0 when from is zero or either side is
// not finite. A NaN would not survive JSON encoding of the context block.
func ratioChange(from, to float64) float64 {
	if from == 0 || !isFinite(from) || !isFinite(to) {
		return 0
	}
	r := (to - from) / from
	if !isFinite(r) {
		return 0
	}
	return r
}

func normalizeSeries(prices []float64) []int {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, p := range prices {
		if !isFinite(p) {
			continue
		}
		lo = math.Min(lo, p)
		hi = math.Max(hi, p)
	}

	out := make([]int, len(prices))
	if math.IsInf(lo, 1) {
		for i := range out {
			out[i] = neutralScore
		}
		return out
	}

	span := hi - lo
	if span == 0 {
		span = 1
	}
	for i, p := range prices {
		out[i] = clampScore((p - lo) / span * maxScore)
	}
	return out
}

func clampScore(v float64) int {
	if math.IsNaN(v) {
		return neutralScore
	}
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > maxScore {
		return maxScore
	}
	return int(r)
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

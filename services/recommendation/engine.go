package recommendation

import (
	"math"

	"stocksignal-backend/services/indicators"
)

// Recommendation is the trading action the engine settles on
type Recommendation string

const (
	Buy  Recommendation = "BUY"
	Sell Recommendation = "SELL"
	Hold Recommendation = "HOLD"
)

// Indicator weights for the display score. MaxPossibleScore is their sum; the
// UI scales |score| against it.
const (
	WeightRSI       = 35.0
	WeightMACD      = 35.0
	WeightBollinger = 30.0

	MaxPossibleScore = WeightRSI + WeightMACD + WeightBollinger
)

// Inputs are the latest indicator values a recommendation is derived from
type Inputs struct {
	RSI          float64
	MACD         indicators.MACDResult
	CurrentPrice float64
	SMA          float64
	Bollinger    indicators.BollingerResult
}

// Contribution records how one indicator moved the weighted score
type Contribution struct {
	Weight       float64 `json:"weight"`
	Strength     float64 `json:"strength"`
	Contribution float64 `json:"contribution"`
}

// Result is the fused recommendation with its display fields
type Result struct {
	Recommendation Recommendation          `json:"recommendation"`
	Score          float64                 `json:"score"`
	Confidence     float64                 `json:"confidence"`
	Contributions  map[string]Contribution `json:"contributions"`
	Explanation    []string                `json:"explanation"`
}

// Generate fuses the latest indicator values into a recommendation.
//
// The recommendation itself comes from Classify: a strict all-three rule.
// Score, confidence and contributions come from Score: a weighted sum that
// exists purely for display. Both paths are kept separate on purpose — the
// triad rule is authoritative, the weighted score never overrides it.
func Generate(in Inputs) Result {
	rec := Classify(in)
	score, confidence, contributions := Score(in)

	return Result{
		Recommendation: rec,
		Score:          score,
		Confidence:     confidence,
		Contributions:  contributions,
		Explanation:    explain(in, rec),
	}
}

// Classify applies the conjunctive triad rule. BUY only when all three buy
// conditions hold at once, SELL only when all three sell conditions hold,
// HOLD otherwise. NaN inputs make every comparison false and collapse to
// HOLD, which is the intended degradation.
func Classify(in Inputs) Recommendation {
	buy := in.RSI < 30 &&
		in.MACD.Value > in.MACD.Signal &&
		in.CurrentPrice < in.Bollinger.Lower

	sell := in.RSI > 70 &&
		in.MACD.Value < in.MACD.Signal &&
		in.CurrentPrice > in.Bollinger.Upper

	switch {
	case buy:
		return Buy
	case sell:
		return Sell
	default:
		return Hold
	}
}

// Score computes the weighted display score. Each indicator gets a stepwise
// strength in [0,1] and a direction; contribution = weight * strength * sign.
// Confidence is |score| scaled against MaxPossibleScore into [0,100].
func Score(in Inputs) (score, confidence float64, contributions map[string]Contribution) {
	contributions = make(map[string]Contribution, 3)

	// RSI: full strength beyond the classic 30/70 thresholds, half strength
	// approaching them
	var rsiStrength, rsiSign float64
	switch {
	case in.RSI < 30:
		rsiStrength, rsiSign = 1, 1
	case in.RSI < 40:
		rsiStrength, rsiSign = 0.5, 1
	case in.RSI > 70:
		rsiStrength, rsiSign = 1, -1
	case in.RSI > 60:
		rsiStrength, rsiSign = 0.5, -1
	}
	contributions["rsi"] = Contribution{
		Weight:       WeightRSI,
		Strength:     rsiStrength,
		Contribution: WeightRSI * rsiStrength * rsiSign,
	}

	var macdStrength, macdSign float64
	switch {
	case in.MACD.Value > in.MACD.Signal:
		macdStrength, macdSign = 1, 1
	case in.MACD.Value < in.MACD.Signal:
		macdStrength, macdSign = 1, -1
	}
	contributions["macd"] = Contribution{
		Weight:       WeightMACD,
		Strength:     macdStrength,
		Contribution: WeightMACD * macdStrength * macdSign,
	}

	var bollStrength, bollSign float64
	switch {
	case in.CurrentPrice < in.Bollinger.Lower:
		bollStrength, bollSign = 1, 1
	case in.CurrentPrice > in.Bollinger.Upper:
		bollStrength, bollSign = 1, -1
	}
	contributions["bollinger"] = Contribution{
		Weight:       WeightBollinger,
		Strength:     bollStrength,
		Contribution: WeightBollinger * bollStrength * bollSign,
	}

	for _, c := range contributions {
		score += c.Contribution
	}
	confidence = math.Min(100, math.Abs(score)/MaxPossibleScore*100)

	return score, confidence, contributions
}

// explain builds the ordered human-readable reasons. One line per satisfied
// triad condition, always RSI then MACD then Bollinger, or a single generic
// line when neither triad fully holds.
func explain(in Inputs, rec Recommendation) []string {
	switch rec {
	case Buy:
		return []string{
			"RSI below 30 (oversold)",
			"MACD above signal line (bullish crossover)",
			"Price below lower Bollinger Band",
		}
	case Sell:
		return []string{
			"RSI above 70 (overbought)",
			"MACD below signal line (bearish crossover)",
			"Price above upper Bollinger Band",
		}
	default:
		return []string{"No strong signal detected; indicators are mixed or neutral"}
	}
}

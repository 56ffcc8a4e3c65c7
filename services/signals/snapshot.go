package signals

import (
	"stocksignal-backend/services/indicators"
)

// IndicatorSnapshot holds the latest indicator values plus the full
// historical series used for charting. The series are aligned
// index-for-index with the newest-first price bar sequence they were
// computed from; positions without a full trailing window are nil.
type IndicatorSnapshot struct {
	SMA       float64                    `json:"sma"`
	RSI       float64                    `json:"rsi"`
	MACD      indicators.MACDResult      `json:"macd"`
	Bollinger indicators.BollingerResult `json:"bollinger"`

	SMAData       []*float64              `json:"sma_data"`
	BollingerData []*indicators.BandPoint `json:"bollinger_data"`
	MACDHistory   []*float64              `json:"macd_history"`
	SignalHistory []*float64              `json:"signal_history"`
}

// BuildSnapshot computes the full indicator set from newest-first closes.
// Callers must not pass an empty slice.
func BuildSnapshot(closes []float64) IndicatorSnapshot {
	macdHistory, signalHistory := indicators.CalculateMACDSeries(closes)

	return IndicatorSnapshot{
		SMA:       indicators.CalculateSMA(closes, indicators.SMAPeriod),
		RSI:       indicators.CalculateRSI(closes, indicators.RSIPeriod),
		MACD:      indicators.CalculateMACD(closes),
		Bollinger: indicators.CalculateBollingerBands(closes, indicators.BollingerPeriod, indicators.BollingerMult),

		SMAData:       indicators.CalculateSMASeries(closes, indicators.SMAPeriod),
		BollingerData: indicators.CalculateBollingerSeries(closes, indicators.BollingerPeriod, indicators.BollingerMult),
		MACDHistory:   macdHistory,
		SignalHistory: signalHistory,
	}
}

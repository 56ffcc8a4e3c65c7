package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CachedSignal stores the last computed signal for a (symbol, trading date) pair.
// One row is "the best known signal for this symbol as of this trading date";
// recomputation overwrites the row in place, nothing deletes it.
type CachedSignal struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Symbol      string    `gorm:"uniqueIndex:idx_symbol_trading_date;not null" json:"symbol"`
	TradingDate time.Time `gorm:"uniqueIndex:idx_symbol_trading_date;not null" json:"trading_date"`

	Recommendation string          `json:"recommendation"` // BUY, SELL, HOLD
	Score          decimal.Decimal `gorm:"type:decimal(15,6)" json:"score"`
	Confidence     decimal.Decimal `gorm:"type:decimal(10,4)" json:"confidence"`

	// Latest indicator values
	CurrentPrice   decimal.Decimal `gorm:"type:decimal(15,6)" json:"current_price"`
	SMA            decimal.Decimal `gorm:"type:decimal(15,6)" json:"sma"`
	RSI            decimal.Decimal `gorm:"type:decimal(15,6)" json:"rsi"`
	MACD           decimal.Decimal `gorm:"type:decimal(15,6)" json:"macd"`
	MACDSignalLine decimal.Decimal `gorm:"type:decimal(15,6)" json:"macd_signal"`
	BollUpper      decimal.Decimal `gorm:"type:decimal(15,6)" json:"boll_upper"`
	BollLower      decimal.Decimal `gorm:"type:decimal(15,6)" json:"boll_lower"`

	// JSON-encoded arrays aligned with the price bar sequence, kept for charting
	SMAData       string `gorm:"type:text" json:"-"`
	BollingerData string `gorm:"type:text" json:"-"`
	MACDHistory   string `gorm:"type:text" json:"-"`
	SignalHistory string `gorm:"type:text" json:"-"`
	PriceBars     string `gorm:"type:text" json:"-"`

	// JSON-encoded support fields of the recommendation
	Contributions string `gorm:"type:text" json:"-"`
	Explanation   string `gorm:"type:text" json:"-"`

	CachedAt  time.Time `gorm:"index" json:"cached_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MigrateSignalModels runs database migrations for signal-related models
func MigrateSignalModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&CachedSignal{},
	)
}

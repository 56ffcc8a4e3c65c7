package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Stock represents a ticker symbol known to the directory
type Stock struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"uniqueIndex;not null" json:"symbol"`
	Name      string          `json:"name"`
	Exchange  string          `json:"exchange"` // NASDAQ, NYSE, LSE, AIM, ...
	Market    string          `json:"market"`   // US, UK
	Currency  string          `json:"currency"`
	MarketCap decimal.Decimal `gorm:"type:decimal(20,2)" json:"market_cap"`
	Status    string          `json:"status"` // active, delisted, suspended
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// MigrateStockModels runs database migrations for stock-related models
func MigrateStockModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Stock{},
	)
}

package stockdir

import (
	"context"
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"stocksignal-backend/models"
	"stocksignal-backend/services/marketcal"
)

// ErrNotFound means neither the database nor the metadata source knows the
// symbol.
var ErrNotFound = errors.New("stock not found")

// MetadataSource resolves a symbol to reference data from an external system.
type MetadataSource interface {
	Lookup(ctx context.Context, symbol string) (name, exchange string, err error)
}

// Directory resolves symbols to stock metadata, persisting newly discovered
// symbols as a side effect.
type Directory struct {
	db   *gorm.DB
	meta MetadataSource
}

// NewDirectory creates a directory over db. meta may be nil, in which case
// unknown symbols resolve to ErrNotFound.
func NewDirectory(db *gorm.DB, meta MetadataSource) *Directory {
	return &Directory{db: db, meta: meta}
}

// Resolve returns the stock record for symbol. Symbols the database has not
// seen before are looked up in the metadata source and persisted.
func (d *Directory) Resolve(ctx context.Context, symbol string) (*models.Stock, error) {
	var stock models.Stock
	err := d.db.WithContext(ctx).Where("symbol = ?", symbol).First(&stock).Error
	if err == nil {
		return &stock, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to query stock %s: %w", symbol, err)
	}

	if d.meta == nil {
		return nil, ErrNotFound
	}

	name, exchange, err := d.meta.Lookup(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, symbol)
	}

	stock = models.Stock{
		Symbol:   symbol,
		Name:     name,
		Exchange: exchange,
		Market:   marketcal.DetectMarketFromExchange(exchange),
		Status:   "active",
	}

	if err := d.db.WithContext(ctx).Where("symbol = ?", symbol).FirstOrCreate(&stock).Error; err != nil {
		// Persisting is best effort; the resolved metadata is still usable
		log.Printf("Warning: failed to persist newly seen symbol %s: %v", symbol, err)
	}

	return &stock, nil
}

// MarketForSymbol implements marketcal.Directory from the persisted record.
// Only a database answer counts; anything else reports an error so the
// calendar falls back to its suffix rule.
func (d *Directory) MarketForSymbol(symbol string) (string, error) {
	var stock models.Stock
	if err := d.db.Where("symbol = ?", symbol).First(&stock).Error; err != nil {
		return "", err
	}

	if stock.Market == marketcal.MarketUS || stock.Market == marketcal.MarketUK {
		return stock.Market, nil
	}
	return marketcal.DetectMarketFromExchange(stock.Exchange), nil
}

// ActiveSymbols lists symbols the directory tracks, for scheduled warm-up runs
func (d *Directory) ActiveSymbols() ([]string, error) {
	var symbols []string
	err := d.db.Model(&models.Stock{}).
		Where("status = ?", "active").
		Order("symbol").
		Pluck("symbol", &symbols).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active symbols: %w", err)
	}
	return symbols, nil
}

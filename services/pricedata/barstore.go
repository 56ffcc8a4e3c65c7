package pricedata

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// BarStore keeps the last fetched bars for each symbol in a local sqlite
// file. It is a provider-layer convenience for degraded mode, not part of the
// signal cache.
type BarStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewBarStore opens (or creates) the local bar database at path
func NewBarStore(path string) (*BarStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create bar store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bar store: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS price_bars (
		symbol TEXT NOT NULL,
		date   TEXT NOT NULL,
		open   REAL NOT NULL,
		high   REAL NOT NULL,
		low    REAL NOT NULL,
		close  REAL NOT NULL,
		PRIMARY KEY (symbol, date)
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create bar store schema: %w", err)
	}

	return &BarStore{db: db}, nil
}

// SaveBars upserts the bars for symbol
func (s *BarStore) SaveBars(symbol string, bars []PriceBar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin bar store transaction: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO price_bars (symbol, date, open, high, low, close) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare bar insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.Exec(symbol, b.Date.Format("2006-01-02"), b.Open, b.High, b.Low, b.Close); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to insert bar for %s: %w", symbol, err)
		}
	}

	return tx.Commit()
}

// LoadBars returns up to DefaultBarCount stored bars for symbol, newest-first
func (s *BarStore) LoadBars(symbol string) ([]PriceBar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		`SELECT date, open, high, low, close FROM price_bars WHERE symbol = ? ORDER BY date DESC LIMIT ?`,
		symbol, DefaultBarCount)
	if err != nil {
		return nil, fmt.Errorf("failed to query bars for %s: %w", symbol, err)
	}
	defer rows.Close()

	var bars []PriceBar
	for rows.Next() {
		var b PriceBar
		var dateStr string
		if err := rows.Scan(&dateStr, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("failed to scan bar: %w", err)
		}
		if b.Date, err = parseDate(dateStr); err != nil {
			continue
		}
		bars = append(bars, b)
	}

	return bars, rows.Err()
}

// Close closes the underlying database
func (s *BarStore) Close() error {
	return s.db.Close()
}

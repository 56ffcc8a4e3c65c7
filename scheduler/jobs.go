package scheduler

import (
	"context"
	"log"
	"time"

	"stocksignal-backend/services"
	"stocksignal-backend/services/marketcal"
	"stocksignal-backend/services/signals"
	"stocksignal-backend/services/stockdir"

	"github.com/go-co-op/gocron"
	"gorm.io/gorm"
)

// Scheduler manages scheduled jobs
type Scheduler struct {
	cron    *gocron.Scheduler
	db      *gorm.DB
	service *signals.Service
	store   *signals.GormStore
	dir     *stockdir.Directory
}

// NewScheduler creates a new scheduler instance
func NewScheduler(db *gorm.DB, service *signals.Service, store *signals.GormStore, dir *stockdir.Directory) *Scheduler {
	return &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		db:      db,
		service: service,
		store:   store,
		dir:     dir,
	}
}

// Start starts all scheduled jobs
func (s *Scheduler) Start() {
	log.Println("Starting scheduler...")

	// Warm signals for tracked symbols every 15 minutes during market hours
	s.cron.Every(15).Minutes().Do(func() {
		s.warmSignals()
	})

	// Archive the day's signals to MongoDB at 22:00 UTC (after both markets close)
	s.cron.Every(1).Day().At("22:00").Do(func() {
		s.archiveSignals()
	})

	// Cleanup old cached signals weekly on Sunday at 01:00
	s.cron.Every(1).Week().Sunday().At("01:00").Do(func() {
		s.cleanupOldSignals()
	})

	s.cron.StartAsync()
	log.Println("Scheduler started successfully")
}

// Stop stops the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
	log.Println("Scheduler stopped")
}

// warmSignals recomputes signals for tracked symbols whose market is open,
// so interactive requests mostly hit a fresh cache row.
func (s *Scheduler) warmSignals() {
	symbols, err := s.dir.ActiveSymbols()
	if err != nil {
		log.Printf("Error loading tracked symbols: %v", err)
		return
	}

	now := time.Now()
	warmed := 0
	for _, symbol := range symbols {
		market, err := s.dir.MarketForSymbol(symbol)
		if err != nil {
			market = marketcal.DetectMarketFromSymbol(nil, symbol)
		}
		if !marketcal.IsMarketHours(market, now) {
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 45*time.Second)
		_, err = s.service.ComputeSignal(ctx, symbol)
		cancel()
		if err != nil {
			log.Printf("Error warming signal for %s: %v", symbol, err)
			continue
		}
		warmed++
	}

	if warmed > 0 {
		log.Printf("Warmed signals for %d symbols", warmed)
	}
}

// archiveSignals copies the latest trading day's cached signals to MongoDB
func (s *Scheduler) archiveSignals() {
	if services.GlobalMongoClient == nil || !services.GlobalMongoClient.IsConnected() {
		return
	}

	log.Println("Archiving signals to MongoDB...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	tradingDate := marketcal.LatestTradingDate(marketcal.MarketUS, time.Now())
	rows, err := s.store.RowsForDate(ctx, tradingDate)
	if err != nil {
		log.Printf("Error loading signals for archive: %v", err)
		return
	}
	if len(rows) == 0 {
		return
	}

	archived, err := services.GlobalMongoClient.ArchiveSignals(ctx, rows)
	if err != nil {
		log.Printf("Error archiving signals: %v", err)
		return
	}

	log.Printf("Archived %d signals for %s", archived, tradingDate.Format("2006-01-02"))
}

// cleanupOldSignals removes cached signals older than the retention window
func (s *Scheduler) cleanupOldSignals() {
	log.Println("Cleaning up old cached signals...")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().AddDate(0, 0, -90)
	deleted, err := s.store.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		log.Printf("Error cleaning up old signals: %v", err)
		return
	}

	log.Printf("Cleanup completed, removed %d rows", deleted)
}

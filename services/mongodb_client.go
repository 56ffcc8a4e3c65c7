package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"stocksignal-backend/config"
	"stocksignal-backend/models"
)

// MongoDB names
const (
	MongoDBName                  = "stocksignal"
	MongoSignalArchiveCollection = "signal_archive"
)

// MongoDBClient mirrors computed signals into MongoDB Atlas as a long-term
// archive. The relational cache stays authoritative; this is an optional
// sink that the app runs without when MONGODB_URI is not configured.
type MongoDBClient struct {
	client      *mongo.Client
	database    *mongo.Database
	mu          sync.RWMutex
	isConnected bool
	uriSet      bool
	lastError   string
}

// MongoSignalDocument is the archived form of a cached signal
type MongoSignalDocument struct {
	ID             string    `bson:"_id"` // symbol:YYYY-MM-DD
	Symbol         string    `bson:"symbol"`
	TradingDate    time.Time `bson:"trading_date"`
	Recommendation string    `bson:"recommendation"`
	Score          float64   `bson:"score"`
	Confidence     float64   `bson:"confidence"`
	CurrentPrice   float64   `bson:"current_price"`
	RSI            float64   `bson:"rsi"`
	SMA            float64   `bson:"sma"`
	MACD           float64   `bson:"macd"`
	MACDSignal     float64   `bson:"macd_signal"`
	BollUpper      float64   `bson:"boll_upper"`
	BollLower      float64   `bson:"boll_lower"`
	CachedAt       time.Time `bson:"cached_at"`
	ArchivedAt     time.Time `bson:"archived_at"`
}

// Global MongoDB client instance
var GlobalMongoClient *MongoDBClient

// InitMongoDBClient initializes the MongoDB connection if configured
func InitMongoDBClient() error {
	GlobalMongoClient = &MongoDBClient{}

	uri := config.AppConfig.MongoURI
	if uri == "" {
		log.Println("MONGODB_URI not set, signal archive disabled")
		return nil
	}
	GlobalMongoClient.uriSet = true

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		GlobalMongoClient.lastError = err.Error()
		return fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		GlobalMongoClient.lastError = err.Error()
		return fmt.Errorf("MongoDB ping failed: %w", err)
	}

	GlobalMongoClient.mu.Lock()
	GlobalMongoClient.client = client
	GlobalMongoClient.database = client.Database(MongoDBName)
	GlobalMongoClient.isConnected = true
	GlobalMongoClient.mu.Unlock()

	log.Println("MongoDB signal archive connected")
	return nil
}

// IsConnected reports whether the archive is usable
func (m *MongoDBClient) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isConnected
}

// ArchiveSignals upserts the given cached signals into the archive collection
func (m *MongoDBClient) ArchiveSignals(ctx context.Context, rows []models.CachedSignal) (int, error) {
	if !m.IsConnected() {
		return 0, fmt.Errorf("MongoDB not connected")
	}

	coll := m.database.Collection(MongoSignalArchiveCollection)
	archived := 0

	for _, row := range rows {
		doc := MongoSignalDocument{
			ID:             fmt.Sprintf("%s:%s", row.Symbol, row.TradingDate.Format("2006-01-02")),
			Symbol:         row.Symbol,
			TradingDate:    row.TradingDate,
			Recommendation: row.Recommendation,
			Score:          decimalFloat(row.Score),
			Confidence:     decimalFloat(row.Confidence),
			CurrentPrice:   decimalFloat(row.CurrentPrice),
			RSI:            decimalFloat(row.RSI),
			SMA:            decimalFloat(row.SMA),
			MACD:           decimalFloat(row.MACD),
			MACDSignal:     decimalFloat(row.MACDSignalLine),
			BollUpper:      decimalFloat(row.BollUpper),
			BollLower:      decimalFloat(row.BollLower),
			CachedAt:       row.CachedAt,
			ArchivedAt:     time.Now(),
		}

		_, err := coll.ReplaceOne(ctx,
			bson.M{"_id": doc.ID},
			doc,
			options.Replace().SetUpsert(true))
		if err != nil {
			log.Printf("Failed to archive signal %s: %v", doc.ID, err)
			continue
		}
		archived++
	}

	return archived, nil
}

func decimalFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// Close disconnects the MongoDB client
func (m *MongoDBClient) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := m.client.Disconnect(ctx); err != nil {
			log.Printf("Error disconnecting MongoDB: %v", err)
		}
		m.isConnected = false
	}
}

package routes

import (
	"time"

	"stocksignal-backend/controllers"
	"stocksignal-backend/middleware"
	"stocksignal-backend/services/signals"
	"stocksignal-backend/services/stockdir"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, signalService *signals.Service, dir *stockdir.Directory) {
	// Initialize controllers
	signalController := controllers.NewSignalController(signalService, dir)
	stockController := controllers.NewStockController(db, dir)

	// Signal computation hits the upstream provider, so it gets its own limiter
	signalLimiter := middleware.NewRateLimiter(30, 1*time.Minute)

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Signal routes
		sigs := api.Group("/signals")
		sigs.Use(middleware.RateLimitMiddleware(signalLimiter))
		{
			sigs.GET("/:symbol", signalController.GetSignal)
		}

		// Market routes
		market := api.Group("/market")
		{
			market.GET("/:symbol/status", signalController.GetMarketStatus)
		}

		// Stock routes
		stocks := api.Group("/stocks")
		{
			stocks.GET("", stockController.GetStocks)
			stocks.GET("/search", stockController.SearchStocks)
			stocks.GET("/:symbol", stockController.GetStock)
		}
	}

	// WebSocket signal stream
	router.GET("/ws/signals", signalController.SignalStream)
}

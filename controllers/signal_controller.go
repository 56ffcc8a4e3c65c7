package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"stocksignal-backend/services"
	"stocksignal-backend/services/marketcal"
	"stocksignal-backend/services/pricedata"
	"stocksignal-backend/services/signals"
	"stocksignal-backend/services/stockdir"
)

// SignalController handles signal computation requests
type SignalController struct {
	service *signals.Service
	dir     *stockdir.Directory
}

// NewSignalController creates a new signal controller
func NewSignalController(service *signals.Service, dir *stockdir.Directory) *SignalController {
	return &SignalController{service: service, dir: dir}
}

// GetSignal computes (or replays) the signal for a symbol
// GET /api/v1/signals/:symbol
func (sc *SignalController) GetSignal(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol required"})
		return
	}

	resp, err := sc.service.ComputeSignal(c.Request.Context(), symbol)
	if err != nil {
		status, message := mapSignalError(err)
		c.JSON(status, gin.H{"error": message})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// GetMarketStatus returns the market session state for a symbol
// GET /api/v1/market/:symbol/status
func (sc *SignalController) GetMarketStatus(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol required"})
		return
	}

	status := marketcal.GetMarketStatus(sc.dir, symbol, time.Now())
	c.JSON(http.StatusOK, gin.H{"data": status})
}

// SignalStream upgrades to a WebSocket subscription for signal pushes
// GET /ws/signals
func (sc *SignalController) SignalStream(c *gin.Context) {
	if services.GlobalRealtimeService == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Realtime service not running"})
		return
	}
	services.GlobalRealtimeService.HandleConnection(c.Writer, c.Request)
}

// mapSignalError translates the service error taxonomy to HTTP responses
func mapSignalError(err error) (int, string) {
	switch {
	case errors.Is(err, pricedata.ErrRateLimited):
		return http.StatusTooManyRequests, "Rate limit exceeded, please try again later"
	case errors.Is(err, pricedata.ErrInvalidSymbol):
		return http.StatusNotFound, "Invalid symbol"
	case errors.Is(err, pricedata.ErrNoData):
		return http.StatusNotFound, "No data found for symbol"
	case errors.Is(err, pricedata.ErrUnavailable):
		return http.StatusServiceUnavailable, "Price data temporarily unavailable, please try again later"
	default:
		return http.StatusInternalServerError, "Failed to compute signal"
	}
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

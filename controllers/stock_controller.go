package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"stocksignal-backend/models"
	"stocksignal-backend/services/stockdir"
)

// StockController handles stock directory requests
type StockController struct {
	db  *gorm.DB
	dir *stockdir.Directory
}

// NewStockController creates a new stock controller
func NewStockController(db *gorm.DB, dir *stockdir.Directory) *StockController {
	return &StockController{db: db, dir: dir}
}

// GetStocks returns the stocks the directory knows
// GET /api/v1/stocks
func (sc *StockController) GetStocks(c *gin.Context) {
	var stocks []models.Stock

	market := c.Query("market")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset := (page - 1) * limit

	query := sc.db.Model(&models.Stock{})
	if market != "" {
		query = query.Where("market = ?", market)
	}

	var total int64
	query.Count(&total)

	if err := query.Order("symbol").Limit(limit).Offset(offset).Find(&stocks).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch stocks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data": stocks,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
			"total": total,
		},
	})
}

// GetStock resolves one symbol, persisting it if newly seen
// GET /api/v1/stocks/:symbol
func (sc *StockController) GetStock(c *gin.Context) {
	symbol := normalizeSymbol(c.Param("symbol"))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Symbol required"})
		return
	}

	stock, err := sc.dir.Resolve(c.Request.Context(), symbol)
	if err != nil {
		if errors.Is(err, stockdir.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Stock not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to resolve stock"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stock})
}

// SearchStocks searches the directory by symbol or name
// GET /api/v1/stocks/search
func (sc *StockController) SearchStocks(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Search query required"})
		return
	}

	var stocks []models.Stock
	err := sc.db.Where("symbol ILIKE ? OR name ILIKE ?", "%"+query+"%", "%"+query+"%").
		Limit(20).
		Find(&stocks).Error

	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Search failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": stocks})
}

package controllers

import (
	"errors"
	"log"
	"net/http"

	"stock_alerts_backend/services"
	"stock_alerts_backend/services/marketdata"

	"github.com/gin-gonic/gin"
)

// DataController serves the read-only chart API.
type DataController struct {
	stocks *services.StockService
}

// NewDataController creates the data controller.
func NewDataController(stocks *services.StockService) *DataController {
	return &DataController{stocks: stocks}
}

// GetStockData handles GET /data/:symbol/:period and returns the derived
// series for charting: prices, 200-day MA, percent deviation and the
// default percentile bands.
func (c *DataController) GetStockData(ctx *gin.Context) {
	symbol, err := services.ValidateTicker(ctx.Param("symbol"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	period, err := services.ValidatePeriod(ctx.Param("period"))
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	snap, err := c.stocks.GetStockData(ctx.Request.Context(), symbol, period)
	switch {
	case err == nil:
		ctx.JSON(http.StatusOK, gin.H{"symbol": symbol, "period": period, "data": snap})
	case errors.Is(err, marketdata.ErrNoData), errors.Is(err, services.ErrInsufficientData):
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no data available for " + symbol})
	default:
		log.Printf("Error fetching data for %s: %v", symbol, err)
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "failed to fetch stock data"})
	}
}

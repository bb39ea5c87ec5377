package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stock_alerts_backend/services"
	"stock_alerts_backend/services/analysis"
	"stock_alerts_backend/services/marketdata"

	"github.com/gin-gonic/gin"
)

type stubFetcher struct {
	candles []analysis.Candle
	err     error
}

func (s *stubFetcher) FetchHistoricalData(ctx context.Context, symbol, period string) ([]analysis.Candle, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.candles, nil
}

func flatCandles(n int) []analysis.Candle {
	start := time.Now().UTC().AddDate(0, 0, -n+1)
	candles := make([]analysis.Candle, n)
	for i := range candles {
		candles[i] = analysis.Candle{Date: start.AddDate(0, 0, i), Close: 100 + float64(i%9)}
	}
	return candles
}

func newDataRouter(t *testing.T, fetcher services.HistoricalDataFetcher) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := newTestDB(t)
	ctrl := NewDataController(services.NewStockService(db, fetcher))
	router := gin.New()
	router.GET("/data/:symbol/:period", ctrl.GetStockData)
	return router
}

func getData(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestGetStockDataOK(t *testing.T) {
	router := newDataRouter(t, &stubFetcher{candles: flatCandles(300)})

	w := getData(router, "/data/aapl/1y")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Symbol string `json:"symbol"`
		Period string `json:"period"`
		Data   struct {
			Dates       []string   `json:"dates"`
			Prices      []float64  `json:"prices"`
			MA200       []*float64 `json:"ma_200"`
			PctDiff     []*float64 `json:"pct_diff"`
			Percentiles struct {
				P16 float64 `json:"p16"`
				P84 float64 `json:"p84"`
			} `json:"percentiles"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response JSON: %v", err)
	}
	if resp.Symbol != "AAPL" || resp.Period != "1y" {
		t.Fatalf("expected normalized symbol/period, got %s/%s", resp.Symbol, resp.Period)
	}
	if len(resp.Data.Dates) == 0 || len(resp.Data.Dates) != len(resp.Data.Prices) {
		t.Fatalf("expected aligned series, got %d dates / %d prices",
			len(resp.Data.Dates), len(resp.Data.Prices))
	}
	if resp.Data.Percentiles.P16 >= resp.Data.Percentiles.P84 {
		t.Fatalf("expected ordered bands, got %+v", resp.Data.Percentiles)
	}
}

func TestGetStockDataBadInput(t *testing.T) {
	router := newDataRouter(t, &stubFetcher{candles: flatCandles(300)})

	if w := getData(router, "/data/not!valid/1y"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad symbol, got %d", w.Code)
	}
	if w := getData(router, "/data/AAPL/2w"); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad period, got %d", w.Code)
	}
}

func TestGetStockDataUnknownSymbol(t *testing.T) {
	router := newDataRouter(t, &stubFetcher{err: marketdata.ErrNoData})

	if w := getData(router, "/data/NOSUCH/1y"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown symbol, got %d", w.Code)
	}
}

func TestGetStockDataShortHistory(t *testing.T) {
	router := newDataRouter(t, &stubFetcher{candles: flatCandles(50)})

	if w := getData(router, "/data/NEWIPO/1y"); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for insufficient history, got %d", w.Code)
	}
}

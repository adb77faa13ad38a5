package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mexc-gateway/internal/execution"
	"mexc-gateway/pkg/exchanges/common"
	"mexc-gateway/pkg/exchanges/mexc"
)

type createOrderRequest struct {
	Symbol    string  `json:"symbol" binding:"required,min=1"`
	Direction string  `json:"direction" binding:"required,oneof=LONG SHORT"`
	Type      string  `json:"type" binding:"required,oneof=LIMIT MARKET STOP"`
	Offset    string  `json:"offset" binding:"omitempty,oneof=OPEN CLOSE"`
	Price     float64 `json:"price"`
	Volume    float64 `json:"volume" binding:"gt=0"`
}

type symbolRequest struct {
	Symbol string `json:"symbol" binding:"required,min=1"`
}

type listQuery struct {
	Limit  int    `form:"limit"`
	Source string `form:"source"`
	Active bool   `form:"active"`
}

type historyQuery struct {
	Symbol   string `form:"symbol" binding:"required"`
	Interval string `form:"interval"`
	Start    string `form:"start" binding:"required"`
	End      string `form:"end"`
}

func (q *listQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 500 {
		q.Limit = 500
	}
}

func respondError(c *gin.Context, status int, code, msg string) {
	c.JSON(status, gin.H{
		"code":  code,
		"error": msg,
	})
}

// respondGatewayError maps gateway failures onto HTTP statuses.
func respondGatewayError(c *gin.Context, err error) {
	_ = c.Error(err)
	var (
		failure   *execution.ExecutionFailure
		notReady  *common.NotReadyError
		apiErr    *mexc.APIError
		transport *mexc.TransportError
	)
	switch {
	case errors.As(err, &failure):
		respondError(c, http.StatusBadGateway, "EXECUTION_FAILED", err.Error())
	case errors.Is(err, execution.ErrInvalidOrder):
		respondError(c, http.StatusBadRequest, "INVALID_ORDER", err.Error())
	case errors.Is(err, mexc.ErrUnknownOrder):
		respondError(c, http.StatusNotFound, "UNKNOWN_ORDER", err.Error())
	case errors.Is(err, mexc.ErrUnknownSymbol):
		respondError(c, http.StatusNotFound, "UNKNOWN_SYMBOL", err.Error())
	case errors.As(err, &notReady), errors.Is(err, mexc.ErrNotConnected):
		respondError(c, http.StatusServiceUnavailable, "NOT_READY", err.Error())
	case errors.As(err, &apiErr):
		respondError(c, http.StatusBadGateway, "EXCHANGE_REJECTED", err.Error())
	case errors.As(err, &transport):
		respondError(c, http.StatusBadGateway, "EXCHANGE_UNREACHABLE", err.Error())
	default:
		respondError(c, http.StatusInternalServerError, "INTERNAL", err.Error())
	}
}

// getSystemStatus reports stream health and the journal session.
func (s *Server) getSystemStatus(c *gin.Context) {
	market, private := s.Trader.Streams()
	status := gin.H{
		"gateway":        s.Meta.Gateway,
		"symbols":        s.Meta.Symbols,
		"version":        s.Meta.Version,
		"market_stream":  market,
		"private_stream": private,
	}
	if s.Journal != nil {
		status["session_id"] = s.Journal.SessionID()
	}
	if s.Bus != nil {
		status["dropped_events"] = s.Bus.Dropped()
	}
	c.JSON(http.StatusOK, status)
}

// getMetrics returns latency and throughput counters.
func (s *Server) getMetrics(c *gin.Context) {
	if s.Metrics == nil {
		respondError(c, http.StatusServiceUnavailable, "METRICS_UNAVAILABLE", "metrics not configured")
		return
	}
	c.JSON(http.StatusOK, s.Metrics.GetSnapshot())
}

func (s *Server) getContracts(c *gin.Context) {
	c.JSON(http.StatusOK, s.Trader.Contracts())
}

// getOrders returns reconciled orders, or journaled rows with source=journal.
func (s *Server) getOrders(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	if q.Source == "journal" {
		if s.Journal == nil {
			respondError(c, http.StatusServiceUnavailable, "JOURNAL_UNAVAILABLE", "journal not configured")
			return
		}
		orders, err := s.Journal.Orders(c.Request.Context(), q.Limit)
		if err != nil {
			respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
			return
		}
		c.Header("X-Result-Limit", strconv.Itoa(q.Limit))
		c.JSON(http.StatusOK, orders)
		return
	}

	orders := s.State.Orders()
	if q.Active {
		orders = s.State.ActiveOrders()
	}
	c.JSON(http.StatusOK, orders)
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, s.State.Positions())
}

func (s *Server) getAccounts(c *gin.Context) {
	c.JSON(http.StatusOK, s.State.Accounts())
}

// getTrades returns journaled trades; source=memory reads the live trade log.
func (s *Server) getTrades(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "invalid query parameters")
		return
	}
	q.normalize()

	if q.Source == "memory" || s.Journal == nil {
		c.JSON(http.StatusOK, s.State.Trades())
		return
	}
	trades, err := s.Journal.Trades(c.Request.Context(), q.Limit)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "DB_ERROR", err.Error())
		return
	}
	c.Header("X-Result-Limit", strconv.Itoa(q.Limit))
	c.JSON(http.StatusOK, trades)
}

// getHistory returns candles; a partial result is still a 200.
func (s *Server) getHistory(c *gin.Context) {
	var q historyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_QUERY", "symbol and start are required")
		return
	}
	interval := common.Interval(q.Interval)
	if q.Interval == "" {
		interval = common.IntervalMinute
	}
	if interval.Duration() == 0 {
		respondError(c, http.StatusBadRequest, "INVALID_INTERVAL", "interval must be 1m, 1h or 1d")
		return
	}
	start, err := time.Parse(time.RFC3339, q.Start)
	if err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_START", "start must be RFC3339")
		return
	}
	end := time.Now()
	if q.End != "" {
		if end, err = time.Parse(time.RFC3339, q.End); err != nil {
			respondError(c, http.StatusBadRequest, "INVALID_END", "end must be RFC3339")
			return
		}
	}
	if end.Before(start) {
		respondError(c, http.StatusBadRequest, "INVALID_RANGE", "end is before start")
		return
	}

	bars := s.Trader.QueryHistory(c.Request.Context(), common.HistoryRequest{
		Symbol:   q.Symbol,
		Interval: interval,
		Start:    start,
		End:      end,
	})
	if bars == nil {
		bars = []common.Bar{}
	}
	c.JSON(http.StatusOK, bars)
}

// createOrder places an order through the execution service.
func (s *Server) createOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	if req.Type != string(common.OrderTypeMarket) && req.Price <= 0 {
		respondError(c, http.StatusBadRequest, "INVALID_PRICE", "price must be > 0 for LIMIT and STOP orders")
		return
	}

	start := time.Now()
	id, err := s.Trader.SendOrder(c.Request.Context(), common.OrderRequest{
		Symbol:    req.Symbol,
		Direction: common.Direction(req.Direction),
		Type:      common.OrderType(req.Type),
		Offset:    common.Offset(req.Offset),
		Price:     req.Price,
		Volume:    req.Volume,
	})
	if s.Metrics != nil {
		s.Metrics.RecordOrder(time.Since(start), err != nil)
	}
	if err != nil {
		respondGatewayError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"order_id":  id,
		"symbol":    req.Symbol,
		"direction": req.Direction,
		"type":      req.Type,
		"price":     req.Price,
		"volume":    req.Volume,
		"status":    common.StatusSubmitting,
		"operator":  CurrentOperator(c),
	})
}

func (s *Server) cancelOrder(c *gin.Context) {
	id := c.Param("id")
	err := s.Trader.CancelOrder(c.Request.Context(), common.CancelRequest{
		OrderID: id,
		Symbol:  c.Query("symbol"),
	})
	if err != nil {
		respondGatewayError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"order_id": id, "status": "CANCEL_REQUESTED"})
}

func (s *Server) subscribe(c *gin.Context) {
	var req symbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	if err := s.Trader.Subscribe(c.Request.Context(), common.SubscribeRequest{Symbol: req.Symbol}); err != nil {
		respondGatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": req.Symbol, "subscribed": true})
}

func (s *Server) setLeverage(c *gin.Context) {
	var req symbolRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request payload")
		return
	}
	if err := s.Trader.SetLeverage(c.Request.Context(), req.Symbol); err != nil {
		respondGatewayError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": req.Symbol})
}

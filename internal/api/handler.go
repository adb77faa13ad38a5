package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mexc-gateway/internal/events"
	"mexc-gateway/internal/monitor"
	"mexc-gateway/pkg/db"
	"mexc-gateway/pkg/exchanges/common"
)

// Trader is the part of the gateway the API drives.
type Trader interface {
	SendOrder(ctx context.Context, req common.OrderRequest) (string, error)
	CancelOrder(ctx context.Context, req common.CancelRequest) error
	Subscribe(ctx context.Context, req common.SubscribeRequest) error
	SetLeverage(ctx context.Context, symbol string) error
	QueryHistory(ctx context.Context, req common.HistoryRequest) []common.Bar
	Contracts() []common.Contract
	Streams() (market, private bool)
}

// State is the reconciled, read-only view.
type State interface {
	Orders() []common.Order
	ActiveOrders() []common.Order
	Positions() []common.Position
	Accounts() []common.Account
	Trades() []common.Trade
}

// Journal lists what this process has persisted.
type Journal interface {
	SessionID() string
	Orders(ctx context.Context, limit int) ([]db.Order, error)
	Trades(ctx context.Context, limit int) ([]db.Trade, error)
}

// Server wires HTTP endpoints around the gateway and the event bus.
type Server struct {
	Router    *gin.Engine
	Bus       *events.Bus
	Trader    Trader
	State     State
	Journal   Journal
	Metrics   *monitor.SystemMetrics
	JWTSecret string
	Meta      SystemMeta
	log       *zap.Logger
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	Gateway string
	Symbols []string
	Version string
}

func NewServer(bus *events.Bus, trader Trader, state State, journal Journal, metrics *monitor.SystemMetrics, meta SystemMeta, jwtSecret string, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("api")
	r := gin.New()

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger(log, metrics))
	r.Use(RateLimitMiddleware(newIPLimiters(20, 50, 5*time.Minute), log))
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Bus:       bus,
		Trader:    trader,
		State:     state,
		Journal:   journal,
		Metrics:   metrics,
		JWTSecret: jwtSecret,
		Meta:      meta,
		log:       log,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/system/status", s.getSystemStatus)
		api.GET("/metrics", s.getMetrics)
		api.GET("/contracts", s.getContracts)
		api.GET("/orders", s.getOrders)
		api.GET("/positions", s.getPositions)
		api.GET("/accounts", s.getAccounts)
		api.GET("/trades", s.getTrades)
		api.GET("/history", s.getHistory)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.POST("/orders", s.createOrder)
			protected.DELETE("/orders/:id", s.cancelOrder)
			protected.POST("/subscriptions", s.subscribe)
			protected.POST("/leverage", s.setLeverage)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Handler exposes the router for an http.Server.
func (s *Server) Handler() http.Handler { return s.Router }

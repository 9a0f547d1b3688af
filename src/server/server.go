package server

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"option-observer/src/aggregator"
	"option-observer/src/livetable"
	"option-observer/src/logger"
	"option-observer/src/models"
	"option-observer/src/projection"
	"option-observer/src/registry"
)

// -----------------------------------------------------------------------------
// API server: REST control surface plus the websocket push hub.
// -----------------------------------------------------------------------------

type APIServer struct {
	Config     *models.MConfig
	Logger     *logger.Logger
	engine     *gin.Engine
	registry   *registry.Registry
	table      *livetable.LiveTable
	projEngine *projection.Engine
	aggregator *aggregator.Aggregator

	// WebSocket clients
	clients    map[*Client]struct{}
	broadcast  chan *models.MLatestData // Strongly typed and buffered queue
	register   chan *Client
	unregister chan *Client
	stop       chan struct{}
	stopOnce   sync.Once

	// Local cache
	latestState *models.MLatestData
	stateMutex  sync.RWMutex
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewAPIServer(cfg *models.MConfig, reg *registry.Registry, table *livetable.LiveTable,
	projEngine *projection.Engine, agg *aggregator.Aggregator, log *logger.Logger) *APIServer {

	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &APIServer{
		Config:     cfg,
		Logger:     log,
		engine:     gin.Default(),
		registry:   reg,
		table:      table,
		projEngine: projEngine,
		aggregator: agg,
		clients:    make(map[*Client]struct{}),
		// Buffered channel so a burst of updates never blocks ingestion
		broadcast:  make(chan *models.MLatestData, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		latestState: &models.MLatestData{
			Type:      "INITIAL",
			Snapshots: make(map[uint32]models.MInstrumentSnapshot),
			Spots:     make(map[string]float64),
		},
	}

	// CORS for local dashboards
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *APIServer) setupRoutes() {
	// REST API endpoints
	s.engine.GET("/api/health", s.getHealth)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/snapshots", s.getSnapshots)
	s.engine.GET("/api/expiries", s.getExpiries)
	s.engine.GET("/api/chain", s.getChain)
	s.engine.POST("/api/projection", s.postProjection)
	s.engine.POST("/api/aggregator/flush", s.postAggregatorFlush)
	s.engine.POST("/api/aggregator/stop", s.postAggregatorStop)

	// WebSocket endpoint
	s.engine.GET("/ws", s.handleWebSocket)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *APIServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting server on %s", addr)

	go s.handleWebsockets()

	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------

// Stop shuts down the hub loop, which closes every connected client's send
// channel on its way out. Safe to call more than once.
func (s *APIServer) Stop() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// -----------------------------------------------------------------------------
// Route Handlers
// -----------------------------------------------------------------------------

func (s *APIServer) getHealth(c *gin.Context) {
	s.stateMutex.RLock()
	connections := len(s.clients)
	timestamp := s.latestState.Timestamp
	s.stateMutex.RUnlock()

	c.JSON(200, gin.H{
		"status":        "ok",
		"connections":   connections,
		"latest_update": timestamp,
		"instruments":   s.table.Len(),
		"registry_size": s.registry.Len(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getConfig(c *gin.Context) {
	// Secrets stay out of this response.
	c.JSON(200, gin.H{
		"name":            s.Config.Name,
		"underlyings":     s.Config.Registry.Underlyings,
		"segments":        s.Config.Registry.Segments,
		"risk_free_rate":  s.Config.Pricing.RiskFreeRate,
		"default_iv":      s.Config.Pricing.DefaultIV,
		"snapshot_window": gin.H{"start_hour": s.Config.Session.SnapshotStart, "end_hour": s.Config.Session.SnapshotEnd},
		"timezone":        s.Config.Session.Timezone,
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getSnapshots(c *gin.Context) {
	underlying := strings.ToUpper(c.Query("underlying"))

	snaps := s.table.SnapshotCopy()
	if underlying != "" {
		for token, snap := range snaps {
			if snap.Underlying != underlying {
				delete(snaps, token)
			}
		}
	}

	c.JSON(200, gin.H{
		"snapshots": snaps,
		"spots":     s.table.SpotsCopy(),
	})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getExpiries(c *gin.Context) {
	underlying := c.Query("underlying")
	if underlying == "" {
		c.JSON(400, gin.H{"error": "underlying query parameter is required"})
		return
	}

	expiries := s.registry.Expiries(underlying)
	out := make([]string, 0, len(expiries))
	for _, e := range expiries {
		out = append(out, e.Format("2006-01-02"))
	}
	c.JSON(200, gin.H{"underlying": strings.ToUpper(underlying), "expiries": out})
}

// -----------------------------------------------------------------------------

func (s *APIServer) getChain(c *gin.Context) {
	underlying := c.Query("underlying")
	expiryStr := c.Query("expiry")
	if underlying == "" || expiryStr == "" {
		c.JSON(400, gin.H{"error": "underlying and expiry query parameters are required"})
		return
	}

	expiry, err := time.Parse("2006-01-02", expiryStr)
	if err != nil {
		c.JSON(400, gin.H{"error": fmt.Sprintf("bad expiry %q, want YYYY-MM-DD", expiryStr)})
		return
	}

	strikes := s.registry.Strikes(underlying, expiry)
	chain := make([]gin.H, 0, len(strikes))
	for _, strike := range strikes {
		chain = append(chain, gin.H{
			"strike": strike,
			"rights": s.registry.Rights(underlying, expiry, strike),
		})
	}

	c.JSON(200, gin.H{
		"underlying": strings.ToUpper(underlying),
		"expiry":     expiryStr,
		"strikes":    chain,
	})
}

// -----------------------------------------------------------------------------

type projectionRequest struct {
	Legs     []models.MStrategyLeg `json:"legs" binding:"required"`
	Scenario models.MScenario      `json:"scenario" binding:"required"`
}

func (s *APIServer) postProjection(c *gin.Context) {
	var req projectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}
	if len(req.Legs) == 0 {
		c.JSON(400, gin.H{"error": "at least one leg is required"})
		return
	}

	// Unset horizon defaults to the calendar days until the target date.
	if req.Scenario.HorizonDays <= 0 && !req.Scenario.TargetDate.IsZero() {
		days := time.Until(req.Scenario.TargetDate).Hours() / 24
		req.Scenario.HorizonDays = math.Max(days, 1)
	}

	result := s.projEngine.Project(req.Legs, req.Scenario, s.table)
	c.JSON(200, result)
}

// -----------------------------------------------------------------------------

func (s *APIServer) postAggregatorFlush(c *gin.Context) {
	written, err := s.aggregator.ForceFlush()
	if err != nil {
		c.JSON(500, gin.H{"error": err.Error(), "written": written})
		return
	}
	c.JSON(200, gin.H{"written": written})
}

// -----------------------------------------------------------------------------

func (s *APIServer) postAggregatorStop(c *gin.Context) {
	s.aggregator.Stop()
	c.JSON(200, gin.H{"status": "stopped"})
}

package server

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mission-control/backend/internal/observability"
	"mission-control/backend/internal/services"
	"mission-control/backend/internal/session"
	"mission-control/backend/pkg/logger"
)

// Deps are the components the router serves
type Deps struct {
	Graphs  *services.GraphService
	Editor  *session.Editor
	Metrics *observability.Collector // optional
	MCP     http.Handler             // optional
}

// Handler serves the graph endpoint and the workspace session
type Handler struct {
	graphs *services.GraphService
	editor *session.Editor
	logger *zap.Logger
}

// NewRouter builds the gin engine with logging, recovery, CORS and every route
func NewRouter(deps Deps) *gin.Engine {
	log := logger.Get()
	h := &Handler{graphs: deps.Graphs, editor: deps.Editor, logger: logger.Named("http")}

	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}
	router.Use(cors())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}
	if deps.MCP != nil {
		router.Any("/mcp", gin.WrapH(deps.MCP))
	}

	api := router.Group("/api")
	{
		// Storage contract
		api.GET("/graph", h.getGraph)
		api.POST("/graph", h.postGraph)
		api.GET("/graph/history", h.graphHistory)

		// Workspace session
		ws := api.Group("/workspace")
		ws.GET("/status", h.status)
		ws.GET("/view", h.view)
		ws.GET("/diagnostics", h.diagnostics)
		ws.POST("/load", h.load)
		ws.POST("/rebuild", h.rebuild)
		ws.POST("/save", h.save)
		ws.POST("/publish", h.publish)

		nodes := ws.Group("/nodes/:id")
		nodes.GET("", h.inspect)
		nodes.POST("/confirm", h.confirm)
		nodes.POST("/deprecate", h.deprecate)
		nodes.POST("/pin", h.pin)
		nodes.PUT("/summary", h.editSummary)
		nodes.PUT("/position", h.moveNode)
	}

	return router
}

// cors allows the dashboard to call the API from another origin
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, Mcp-Session-Id")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}

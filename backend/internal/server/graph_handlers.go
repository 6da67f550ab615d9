package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"mission-control/backend/internal/constants"
	"mission-control/backend/internal/state"
)

// getGraph serves GET /api/graph[?mode=bootstrap]
func (h *Handler) getGraph(c *gin.Context) {
	bootstrap := c.Query("mode") == constants.ModeBootstrap

	resp, err := h.graphs.Load(c.Request.Context(), bootstrap)
	if err != nil {
		h.logger.Error("Graph load failed", zap.Bool("bootstrap", bootstrap), zap.Error(err))
		c.JSON(statusFor(err), state.LoadResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, resp)
}

// postGraph serves POST /api/graph with a save or publish action
func (h *Handler) postGraph(c *gin.Context) {
	var req state.GraphActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	ctx := c.Request.Context()
	switch req.Action {
	case constants.ActionSave:
		resp, err := h.graphs.Save(ctx, req.Graph, req.Reindex)
		if err != nil {
			c.JSON(statusFor(err), state.SaveResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)

	case constants.ActionPublishMemoryMD:
		resp, err := h.graphs.Publish(ctx, req.Graph, req.Reindex)
		if err != nil {
			c.JSON(statusFor(err), state.PublishResponse{Error: err.Error()})
			return
		}
		c.JSON(http.StatusOK, resp)

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
	}
}

// graphHistory serves GET /api/graph/history?limit=N
func (h *Handler) graphHistory(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	entries, supported, err := h.graphs.History(c.Request.Context(), limit)
	if !supported {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "graph store does not keep history"})
		return
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": entries})
}

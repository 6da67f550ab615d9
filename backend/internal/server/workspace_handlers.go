package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"mission-control/backend/internal/memgraph"
)

type persistRequest struct {
	Reindex bool `json:"reindex"`
}

type summaryRequest struct {
	Summary *string `json:"summary" binding:"required"`
}

type positionRequest struct {
	X     *float64 `json:"x" binding:"required"`
	Y     *float64 `json:"y" binding:"required"`
	Layer string   `json:"layer"`
}

// bindOptional binds a JSON body when one was sent
func bindOptional(c *gin.Context, dst interface{}) error {
	err := c.ShouldBindJSON(dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func (h *Handler) status(c *gin.Context) {
	c.JSON(http.StatusOK, h.editor.Status())
}

func (h *Handler) view(c *gin.Context) {
	cfg, err := memgraph.FilterFromQuery(c.Request.URL.Query())
	if err != nil {
		h.respondError(c, err)
		return
	}
	view, err := h.editor.View(cfg)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (h *Handler) diagnostics(c *gin.Context) {
	diag, err := h.editor.Diagnostics()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, diag)
}

func (h *Handler) load(c *gin.Context) {
	if err := h.editor.Load(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.editor.Status())
}

func (h *Handler) rebuild(c *gin.Context) {
	if err := h.editor.Rebuild(c.Request.Context()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.editor.Status())
}

func (h *Handler) save(c *gin.Context) {
	var req persistRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	resp, err := h.editor.Save(c.Request.Context(), req.Reindex)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) publish(c *gin.Context) {
	var req persistRequest
	if err := bindOptional(c, &req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	resp, err := h.editor.Publish(c.Request.Context(), req.Reindex)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) inspect(c *gin.Context) {
	out, err := h.editor.Inspect(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) confirm(c *gin.Context) {
	node, err := h.editor.Confirm(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (h *Handler) deprecate(c *gin.Context) {
	node, err := h.editor.Deprecate(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (h *Handler) pin(c *gin.Context) {
	pins, err := h.editor.TogglePin(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"pinned": pins})
}

func (h *Handler) editSummary(c *gin.Context) {
	var req summaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	node, err := h.editor.EditSummary(c.Param("id"), *req.Summary)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

func (h *Handler) moveNode(c *gin.Context) {
	var req positionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	layer := memgraph.LayerTopic
	if req.Layer != "" {
		l, err := memgraph.ParseLayer(req.Layer)
		if err != nil {
			h.respondError(c, err)
			return
		}
		layer = l
	}
	node, err := h.editor.MoveNode(c.Param("id"), *req.X, *req.Y, layer)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, node)
}

package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"beryll-workflow-backend/internal/model"
)

type addPoolEntryRequest struct {
	ServerID int64  `json:"server_id" binding:"required"`
	Notes    string `json:"notes"`
}

// AddPoolEntry registers a server as a substitute.
func (h *Handler) AddPoolEntry(c *gin.Context) {
	var req addPoolEntryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := h.pool.AddToPool(c.Request.Context(), req.ServerID, req.Notes)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

// GetPoolEntry returns one pool entry.
func (h *Handler) GetPoolEntry(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entry, err := h.pool.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ListPool returns pool entries, optionally filtered by status.
func (h *Handler) ListPool(c *gin.Context) {
	entries, err := h.pool.List(c.Request.Context(), model.SubstituteStatus(c.Query("status")))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GetPoolStats returns the pool summary.
func (h *Handler) GetPoolStats(c *gin.Context) {
	stats, err := h.pool.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// SetPoolEntryMaintenance takes an entry out of rotation.
func (h *Handler) SetPoolEntryMaintenance(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req noteRequest
	_ = c.ShouldBindJSON(&req)
	entry, err := h.pool.SetMaintenance(c.Request.Context(), id, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// ReactivatePoolEntry puts an entry back into rotation.
func (h *Handler) ReactivatePoolEntry(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entry, err := h.pool.Reactivate(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// RetirePoolEntry removes an entry from rotation permanently.
func (h *Handler) RetirePoolEntry(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req noteRequest
	_ = c.ShouldBindJSON(&req)
	entry, err := h.pool.Retire(c.Request.Context(), id, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entry)
}

// DeletePoolEntry deletes an entry outright.
func (h *Handler) DeletePoolEntry(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.pool.RemoveFromPool(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

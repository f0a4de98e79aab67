package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"beryll-workflow-backend/internal/ledger"
	"beryll-workflow-backend/internal/model"
)

type addInventoryRequest struct {
	Type                 string     `json:"type" binding:"required"`
	SerialNumber         string     `json:"serial_number" binding:"required"`
	InternalSerialNumber string     `json:"internal_serial_number"`
	Manufacturer         string     `json:"manufacturer"`
	Model                string     `json:"model"`
	Condition            string     `json:"condition"`
	Location             string     `json:"location"`
	PurchaseDate         *time.Time `json:"purchase_date"`
	WarrantyExpires      *time.Time `json:"warranty_expires"`
	Notes                string     `json:"notes"`
}

// AddInventoryItem registers a new part.
func (h *Handler) AddInventoryItem(c *gin.Context) {
	var req addInventoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	item, err := h.ledger.AddToInventory(c.Request.Context(), ledger.AddItemSpec{
		Type:                 model.ComponentType(req.Type),
		SerialNumber:         req.SerialNumber,
		InternalSerialNumber: req.InternalSerialNumber,
		Manufacturer:         req.Manufacturer,
		Model:                req.Model,
		Condition:            model.ComponentCondition(req.Condition),
		Location:             req.Location,
		PurchaseDate:         req.PurchaseDate,
		WarrantyExpires:      req.WarrantyExpires,
		Notes:                req.Notes,
	}, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// GetInventoryItem returns one item by ID.
func (h *Handler) GetInventoryItem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	item, err := h.ledger.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// GetInventoryItemBySerial returns one item by either serial number.
func (h *Handler) GetInventoryItemBySerial(c *gin.Context) {
	serial := c.Param("serial")
	item, err := h.ledger.GetBySerial(c.Request.Context(), serial)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// ListInventory returns items matching the query filters.
func (h *Handler) ListInventory(c *gin.Context) {
	f := ledger.Filter{
		Type:      model.ComponentType(c.Query("type")),
		Status:    model.InventoryStatus(c.Query("status")),
		Condition: model.ComponentCondition(c.Query("condition")),
		Search:    c.Query("search"),
		Limit:     queryInt(c, "limit", 50),
		Offset:    queryInt(c, "offset", 0),
	}
	if v, err := strconv.ParseInt(c.Query("server_id"), 10, 64); err == nil {
		f.ServerID = &v
	}

	items, total, err := h.ledger.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "total": total})
}

// GetInventoryStats returns the inventory summary.
func (h *Handler) GetInventoryStats(c *gin.Context) {
	stats, err := h.ledger.Stats(c.Request.Context(), h.warrantyAlertDays)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetInventoryHistory returns the item's movement log, newest first.
func (h *Handler) GetInventoryHistory(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	entries, err := h.ledger.History(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

type reserveItemRequest struct {
	DefectID int64 `json:"defect_id" binding:"required"`
}

// ReserveInventoryItem reserves an item for a defect record.
func (h *Handler) ReserveInventoryItem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req reserveItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.ledger.Reserve(c.Request.Context(), id, req.DefectID, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// ReleaseInventoryItem drops an item's reservation.
func (h *Handler) ReleaseInventoryItem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req noteRequest
	_ = c.ShouldBindJSON(&req)
	item, err := h.ledger.Release(c.Request.Context(), id, actorID(c), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type installItemRequest struct {
	ServerID int64  `json:"server_id" binding:"required"`
	DefectID *int64 `json:"defect_id"`
}

// InstallInventoryItem installs an item into a server.
func (h *Handler) InstallInventoryItem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req installItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.ledger.InstallToServer(c.Request.Context(), id, req.ServerID, actorID(c), req.DefectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type removeItemRequest struct {
	Defective bool   `json:"defective"`
	Reason    string `json:"reason"`
	DefectID  *int64 `json:"defect_id"`
}

// RemoveInventoryItem pulls an item out of a server.
func (h *Handler) RemoveInventoryItem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req removeItemRequest
	_ = c.ShouldBindJSON(&req)
	item, err := h.ledger.RemoveFromServer(c.Request.Context(), id, actorID(c), req.Defective, req.Reason, req.DefectID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type sendItemRequest struct {
	TicketRef string `json:"ticket_ref"`
}

// SendInventoryItemToRepair forwards an item to the external vendor.
func (h *Handler) SendInventoryItemToRepair(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req sendItemRequest
	_ = c.ShouldBindJSON(&req)
	item, err := h.ledger.SendToExternalRepair(c.Request.Context(), id, req.TicketRef, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type returnItemRequest struct {
	Condition string `json:"condition"`
}

// ReturnInventoryItemFromRepair accepts an item back from the vendor.
func (h *Handler) ReturnInventoryItemFromRepair(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req returnItemRequest
	_ = c.ShouldBindJSON(&req)
	item, err := h.ledger.ReturnFromExternalRepair(c.Request.Context(), id, actorID(c), model.ComponentCondition(req.Condition))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type testItemRequest struct {
	Passed bool   `json:"passed"`
	Note   string `json:"note"`
}

// TestInventoryItem records a bench test result.
func (h *Handler) TestInventoryItem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req testItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.ledger.MarkTested(c.Request.Context(), id, actorID(c), req.Passed, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type locationRequest struct {
	Location string `json:"location" binding:"required"`
}

// MoveInventoryItem updates an item's storage location.
func (h *Handler) MoveInventoryItem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req locationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	item, err := h.ledger.UpdateLocation(c.Request.Context(), id, req.Location, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

type scrapRequest struct {
	Reason string `json:"reason"`
}

// ScrapInventoryItem writes an item off permanently.
func (h *Handler) ScrapInventoryItem(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req scrapRequest
	_ = c.ShouldBindJSON(&req)
	item, err := h.ledger.Scrap(c.Request.Context(), id, actorID(c), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

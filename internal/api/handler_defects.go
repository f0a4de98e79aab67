package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"beryll-workflow-backend/internal/model"
	"beryll-workflow-backend/internal/workflow"
)

type createDefectRequest struct {
	ServerID                 int64      `json:"server_id" binding:"required"`
	ProblemDescription       string     `json:"problem_description"`
	PartType                 string     `json:"part_type"`
	Priority                 string     `json:"priority"`
	DefectPartSerial         string     `json:"defect_part_serial"`
	DefectPartInternalSerial string     `json:"defect_part_internal_serial"`
	DefectInventoryItemID    *int64     `json:"defect_inventory_item_id"`
	DetectedAt               *time.Time `json:"detected_at"`
	Notes                    string     `json:"notes"`
}

// CreateDefect opens a new defect record.
func (h *Handler) CreateDefect(c *gin.Context) {
	var req createDefectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rec, err := h.engine.Create(c.Request.Context(), workflow.CreateSpec{
		ServerID:                 req.ServerID,
		ProblemDescription:       req.ProblemDescription,
		PartType:                 model.ComponentType(req.PartType),
		Priority:                 model.DefectPriority(req.Priority),
		DefectPartSerial:         req.DefectPartSerial,
		DefectPartInternalSerial: req.DefectPartInternalSerial,
		DefectInventoryItemID:    req.DefectInventoryItemID,
		DetectedAt:               req.DetectedAt,
		Notes:                    req.Notes,
	}, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// GetDefect returns one defect record.
func (h *Handler) GetDefect(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	rec, err := h.engine.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListDefects returns records matching the query filters.
func (h *Handler) ListDefects(c *gin.Context) {
	f := workflow.Filter{
		Status:   model.DefectStatus(c.Query("status")),
		PartType: model.ComponentType(c.Query("part_type")),
		Search:   c.Query("search"),
		Limit:    queryInt(c, "limit", 50),
		Offset:   queryInt(c, "offset", 0),
	}
	if v, err := strconv.ParseInt(c.Query("server_id"), 10, 64); err == nil {
		f.ServerID = &v
	}
	if v, err := strconv.ParseInt(c.Query("diagnostician_id"), 10, 64); err == nil {
		f.DiagnosticianID = &v
	}
	if v, err := strconv.ParseBool(c.Query("repeated")); err == nil {
		f.Repeated = &v
	}
	if v, err := strconv.ParseBool(c.Query("sla_breached")); err == nil {
		f.SlaBreached = v
	}
	if v, err := time.Parse(time.RFC3339, c.Query("detected_from")); err == nil {
		f.DetectedFrom = &v
	}
	if v, err := time.Parse(time.RFC3339, c.Query("detected_to")); err == nil {
		f.DetectedTo = &v
	}

	recs, total, err := h.engine.List(c.Request.Context(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": recs, "total": total})
}

// GetDefectStats returns the workload summary.
func (h *Handler) GetDefectStats(c *gin.Context) {
	stats, err := h.engine.Stats(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

type startDiagnosisRequest struct {
	DiagnosticianID int64 `json:"diagnostician_id" binding:"required"`
}

// StartDiagnosis moves a record into DIAGNOSING.
func (h *Handler) StartDiagnosis(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req startDiagnosisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.engine.StartDiagnosis(c.Request.Context(), id, req.DiagnosticianID, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type completeDiagnosisRequest struct {
	Findings                 string `json:"findings"`
	PartType                 string `json:"part_type"`
	DefectPartSerial         string `json:"defect_part_serial"`
	DefectPartInternalSerial string `json:"defect_part_internal_serial"`
}

// CompleteDiagnosis records diagnosis findings.
func (h *Handler) CompleteDiagnosis(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req completeDiagnosisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	rec, err := h.engine.CompleteDiagnosis(c.Request.Context(), id, actorID(c), workflow.DiagnosisSpec{
		Findings:                 req.Findings,
		PartType:                 model.ComponentType(req.PartType),
		DefectPartSerial:         req.DefectPartSerial,
		DefectPartInternalSerial: req.DefectPartInternalSerial,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type noteRequest struct {
	Note string `json:"note"`
}

// SetWaitingParts parks a record until parts arrive.
func (h *Handler) SetWaitingParts(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req noteRequest
	_ = c.ShouldBindJSON(&req)
	rec, err := h.engine.SetWaitingParts(c.Request.Context(), id, actorID(c), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type reserveComponentRequest struct {
	ItemID *int64 `json:"item_id"`
}

// ReserveComponent reserves a replacement part for the defect.
func (h *Handler) ReserveComponent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req reserveComponentRequest
	_ = c.ShouldBindJSON(&req)
	rec, err := h.engine.ReserveReplacementComponent(c.Request.Context(), id, req.ItemID, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// StartRepair moves a record into REPAIRING.
func (h *Handler) StartRepair(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	rec, err := h.engine.StartRepair(c.Request.Context(), id, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type replaceComponentRequest struct {
	ManualSerial         string `json:"manual_serial"`
	ManualInternalSerial string `json:"manual_internal_serial"`
	Details              string `json:"details"`
}

// ReplaceComponent performs the physical part swap.
func (h *Handler) ReplaceComponent(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req replaceComponentRequest
	_ = c.ShouldBindJSON(&req)
	rec, err := h.engine.PerformComponentReplacement(c.Request.Context(), id, actorID(c), workflow.ReplacementSpec{
		ManualSerial:         req.ManualSerial,
		ManualInternalSerial: req.ManualInternalSerial,
		Details:              req.Details,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type sendToRepairRequest struct {
	TicketNumber   string `json:"ticket_number"`
	Subject        string `json:"subject"`
	Description    string `json:"description"`
	TrackingNumber string `json:"tracking_number"`
}

// SendToRepair ships the defect to the external vendor.
func (h *Handler) SendToRepair(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req sendToRepairRequest
	_ = c.ShouldBindJSON(&req)
	rec, err := h.engine.SendToExternalRepair(c.Request.Context(), id, actorID(c), workflow.SendSpec{
		TicketNumber:   req.TicketNumber,
		Subject:        req.Subject,
		Description:    req.Description,
		TrackingNumber: req.TrackingNumber,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type returnFromRepairRequest struct {
	Condition   string `json:"condition"`
	VendorNotes string `json:"vendor_notes"`
}

// ReturnFromRepair confirms receipt from the vendor.
func (h *Handler) ReturnFromRepair(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req returnFromRepairRequest
	_ = c.ShouldBindJSON(&req)
	rec, err := h.engine.ReturnFromExternalRepair(c.Request.Context(), id, actorID(c), workflow.ReturnSpec{
		Condition:   model.ComponentCondition(req.Condition),
		VendorNotes: req.VendorNotes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type issueSubstituteRequest struct {
	EntryID *int64 `json:"entry_id"`
}

// IssueSubstitute claims a substitute server for the defect.
func (h *Handler) IssueSubstitute(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req issueSubstituteRequest
	_ = c.ShouldBindJSON(&req)
	rec, err := h.engine.IssueSubstituteServer(c.Request.Context(), id, req.EntryID, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ReturnSubstitute returns the issued substitute to the pool.
func (h *Handler) ReturnSubstitute(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	rec, err := h.engine.ReturnSubstituteServer(c.Request.Context(), id, actorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
}

// ResolveDefect completes the repair.
func (h *Handler) ResolveDefect(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req resolveRequest
	_ = c.ShouldBindJSON(&req)
	rec, err := h.engine.Resolve(c.Request.Context(), id, actorID(c), req.Resolution)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// CloseDefect archives a resolved record.
func (h *Handler) CloseDefect(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var req noteRequest
	_ = c.ShouldBindJSON(&req)
	rec, err := h.engine.Close(c.Request.Context(), id, actorID(c), req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// ListDefectTickets returns the vendor tickets of a defect.
func (h *Handler) ListDefectTickets(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	tickets, err := h.tickets.ListByDefect(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tickets)
}

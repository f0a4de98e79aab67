package api

import (
	"net/http"
	"strconv"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"gorm.io/gorm"

	"beryll-workflow-backend/internal/fault"
	"beryll-workflow-backend/internal/ledger"
	"beryll-workflow-backend/internal/pool"
	"beryll-workflow-backend/internal/ticket"
	"beryll-workflow-backend/internal/workflow"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	db      *gorm.DB
	engine  *workflow.Engine
	ledger  ledger.Ledger
	pool    pool.Manager
	tickets ticket.Service
	webpush *webpush.Options

	warrantyAlertDays int
}

// NewHandler creates a new API handler.
func NewHandler(db *gorm.DB, engine *workflow.Engine, lg ledger.Ledger, pl pool.Manager, tk ticket.Service, webpushOptions *webpush.Options, warrantyAlertDays int) *Handler {
	return &Handler{
		db:                db,
		engine:            engine,
		ledger:            lg,
		pool:              pl,
		tickets:           tk,
		webpush:           webpushOptions,
		warrantyAlertDays: warrantyAlertDays,
	}
}

// respondError maps the fault taxonomy to HTTP status codes.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, fault.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, fault.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, fault.ErrInvalidTransition),
		errors.Is(err, fault.ErrDuplicateSerial),
		errors.Is(err, fault.ErrInUse),
		errors.Is(err, fault.ErrAlreadyInPool):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

// idParam parses the :id path parameter.
func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return id, true
}

// actorID reads the acting user from the X-Actor-ID header. Zero when absent;
// authn/authz lives upstream of this service.
func actorID(c *gin.Context) int64 {
	id, _ := strconv.ParseInt(c.GetHeader("X-Actor-ID"), 10, 64)
	return id
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return def
	}
	return v
}

package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"beryll-workflow-backend/config"
	"beryll-workflow-backend/internal/mw"
)

// NewRouter creates and configures the Gin router. Every route sits behind
// IP rate limiting; read-heavy list and stats endpoints are cached.
func NewRouter(h *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		defects := api.Group("/defects")
		{
			defects.POST("", h.CreateDefect)
			defects.GET("", caching, h.ListDefects)
			defects.GET("/stats", caching, h.GetDefectStats)
			defects.GET("/:id", h.GetDefect)
			defects.GET("/:id/tickets", h.ListDefectTickets)
			defects.POST("/:id/start-diagnosis", h.StartDiagnosis)
			defects.POST("/:id/complete-diagnosis", h.CompleteDiagnosis)
			defects.POST("/:id/waiting-parts", h.SetWaitingParts)
			defects.POST("/:id/reserve-component", h.ReserveComponent)
			defects.POST("/:id/start-repair", h.StartRepair)
			defects.POST("/:id/replace-component", h.ReplaceComponent)
			defects.POST("/:id/send-to-repair", h.SendToRepair)
			defects.POST("/:id/return-from-repair", h.ReturnFromRepair)
			defects.POST("/:id/issue-substitute", h.IssueSubstitute)
			defects.POST("/:id/return-substitute", h.ReturnSubstitute)
			defects.POST("/:id/resolve", h.ResolveDefect)
			defects.POST("/:id/close", h.CloseDefect)
		}

		inventory := api.Group("/inventory")
		{
			inventory.POST("", h.AddInventoryItem)
			inventory.GET("", caching, h.ListInventory)
			inventory.GET("/stats", caching, h.GetInventoryStats)
			inventory.GET("/serial/:serial", h.GetInventoryItemBySerial)
			inventory.GET("/:id", h.GetInventoryItem)
			inventory.GET("/:id/history", h.GetInventoryHistory)
			inventory.POST("/:id/reserve", h.ReserveInventoryItem)
			inventory.POST("/:id/release", h.ReleaseInventoryItem)
			inventory.POST("/:id/install", h.InstallInventoryItem)
			inventory.POST("/:id/remove", h.RemoveInventoryItem)
			inventory.POST("/:id/send-to-repair", h.SendInventoryItemToRepair)
			inventory.POST("/:id/return-from-repair", h.ReturnInventoryItemFromRepair)
			inventory.POST("/:id/test", h.TestInventoryItem)
			inventory.POST("/:id/location", h.MoveInventoryItem)
			inventory.POST("/:id/scrap", h.ScrapInventoryItem)
		}

		pool := api.Group("/pool")
		{
			pool.POST("", h.AddPoolEntry)
			pool.GET("", caching, h.ListPool)
			pool.GET("/stats", caching, h.GetPoolStats)
			pool.GET("/:id", h.GetPoolEntry)
			pool.POST("/:id/maintenance", h.SetPoolEntryMaintenance)
			pool.POST("/:id/reactivate", h.ReactivatePoolEntry)
			pool.POST("/:id/retire", h.RetirePoolEntry)
			pool.DELETE("/:id", h.DeletePoolEntry)
		}

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}

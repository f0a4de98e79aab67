package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"beryll-workflow-backend/internal/db"
	"beryll-workflow-backend/internal/model"
)

func setupSubscriptionRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	gormDB, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gormDB))

	handler := NewHandler(gormDB, nil, nil, nil, nil, nil, 0)
	r := gin.New()
	r.PUT("/api/subscriptions", handler.PutSubscription)
	r.GET("/api/subscriptions", handler.GetSubscription)
	r.DELETE("/api/subscriptions", handler.DeleteSubscription)
	return r, gormDB
}

func TestPutSubscriptionRejectsEmptyBody(t *testing.T) {
	router, _ := setupSubscriptionRouter(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/api/subscriptions", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscriptionRoundTrip(t *testing.T) {
	router, gormDB := setupSubscriptionRouter(t)

	srv := &model.Server{SerialNumber: "SRV-SUB-1", Status: model.ServerStatusDefect}
	require.NoError(t, gormDB.Create(srv).Error)

	body, _ := json.Marshal(map[string]any{
		"endpoint":           "https://example.com/push/abc",
		"p256dh":             "key",
		"auth":               "secret",
		"subscribed_servers": []int64{srv.ID},
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPut, "/api/subscriptions", bytes.NewReader(body))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	t.Run("get returns subscribed servers", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodGet, "/api/subscriptions?endpoint=https://example.com/push/abc", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			SubscribedServers []int64 `json:"subscribed_servers"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, []int64{srv.ID}, resp.SubscribedServers)
	})

	t.Run("put replaces the server list", func(t *testing.T) {
		body, _ := json.Marshal(map[string]any{
			"endpoint": "https://example.com/push/abc",
			"p256dh":   "key2",
			"auth":     "secret2",
		})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodPut, "/api/subscriptions", bytes.NewReader(body))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusCreated, w.Code)

		w = httptest.NewRecorder()
		req, _ = http.NewRequest(http.MethodGet, "/api/subscriptions?endpoint=https://example.com/push/abc", nil)
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			SubscribedServers []int64 `json:"subscribed_servers"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Empty(t, resp.SubscribedServers)
	})

	t.Run("delete removes the subscription", func(t *testing.T) {
		body, _ := json.Marshal(map[string]string{"endpoint": "https://example.com/push/abc"})
		w := httptest.NewRecorder()
		req, _ := http.NewRequest(http.MethodDelete, "/api/subscriptions", bytes.NewReader(body))
		router.ServeHTTP(w, req)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = httptest.NewRecorder()
		req, _ = http.NewRequest(http.MethodGet, "/api/subscriptions?endpoint=https://example.com/push/abc", nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

package health

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiveness(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name           string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "liveness always returns 200",
			expectedStatus: http.StatusOK,
			expectedBody:   "alive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(nil)

			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest("GET", "/health/live", nil)

			handler.Liveness(c)

			assert.Equal(t, tt.expectedStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.expectedBody)
			assert.Contains(t, w.Body.String(), "timestamp")
		})
	}
}

func TestReadiness_NilRedis(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		redisService:    nil,
		upstreamEnabled: false,
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
	assert.Contains(t, w.Body.String(), "healthy")
}

type MockUpstreamChecker struct {
	status string
}

func (m *MockUpstreamChecker) Check(ctx context.Context, addr string) string {
	return m.status
}

func TestReadiness_ResponseFormat(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		redisService:    nil,
		upstreamEnabled: true,
		upstreamAddr:    "localhost:50051",
		upstreamChecker: &MockUpstreamChecker{status: "healthy"},
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "status")
	assert.Contains(t, body, "checks")
	assert.Contains(t, body, "timestamp")
	assert.Contains(t, body, "redis")
	assert.Contains(t, body, "upstream")
}

func TestReadiness_UpstreamDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		redisService:    nil,
		upstreamEnabled: false,
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/ready", nil)

	handler.Readiness(c)

	assert.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.Contains(t, body, "ready")
	assert.Contains(t, body, "redis")
	assert.NotContains(t, body, "upstream")
}

func TestLivenessEndpoint_AlwaysSucceeds(t *testing.T) {
	gin.SetMode(gin.TestMode)

	handler := &Handler{
		redisService:    nil,
		upstreamEnabled: true,
		upstreamAddr:    "invalid:9999",
	}

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest("GET", "/health/live", nil)

	handler.Liveness(c)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alive")
}

func TestNewHandler_DefaultValues(t *testing.T) {
	handler := NewHandler(nil)

	assert.NotNil(t, handler)
	assert.NotEmpty(t, handler.upstreamAddr)
	assert.True(t, handler.upstreamEnabled)
}

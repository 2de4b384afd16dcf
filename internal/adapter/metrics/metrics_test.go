package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"yield-bnpl/internal/core/domain"
	"yield-bnpl/internal/core/ports"
	"yield-bnpl/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ ports.ProtocolMetrics = (*Protocol)(nil)
	_ ports.ProtocolMetrics = Nop{}
)

func TestProtocol_ObserveOperation(t *testing.T) {
	m := NewProtocol("test")

	m.ObserveOperation("stake", nil)
	m.ObserveOperation("stake", nil)
	m.ObserveOperation("stake", apperror.ErrInsufficientBalance("liquid balance"))
	m.ObserveOperation("claim_direct", errors.New("plain"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operations.WithLabelValues("stake", "OK")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("stake", apperror.CodeInsufficientBalance)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operations.WithLabelValues("claim_direct", "UNKNOWN")))
}

func TestProtocol_Settlement(t *testing.T) {
	m := NewProtocol("test")

	m.ObserveSettlement(domain.SettlementModeHarvest, 15, false)
	m.ObserveSettlement(domain.SettlementModeHarvest, 25, true)
	m.SetOpenObligations(3)
	m.SetTotalStaked(1000)

	assert.Equal(t, 40.0, testutil.ToFloat64(m.settled.WithLabelValues("HARVEST")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.completions))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.openObligations))
	assert.Equal(t, 1000.0, testutil.ToFloat64(m.totalStaked))
}

func TestProtocol_MiddlewareAndHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := NewProtocol("test")

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", gin.WrapH(m.Handler()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/ping", "GET", "200")))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_http_requests_total")
}

package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/chatwire/gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBroker struct {
	healthy bool
	pingErr error
}

func (b *fakeBroker) Healthy() bool                  { return b.healthy }
func (b *fakeBroker) Ping(ctx context.Context) error { return b.pingErr }

type fakeNode struct {
	connections int
	started     time.Time
}

func (n *fakeNode) GetConnectionCount() int { return n.connections }
func (n *fakeNode) GetStartTime() time.Time { return n.started }

func testChecker(broker *fakeBroker, node *fakeNode) *HealthChecker {
	cfg := &config.Config{}
	cfg.Gateway.Throttling.MaxConnections = 1000
	return NewHealthChecker(broker, node, cfg, zap.NewNop(), "test")
}

func TestCheckHealthAllHealthy(t *testing.T) {
	checker := testChecker(
		&fakeBroker{healthy: true},
		&fakeNode{connections: 10, started: time.Now()},
	)

	resp := checker.CheckHealth(context.Background())
	assert.Equal(t, StatusHealthy, resp.Status)

	var brokerStatus *ComponentStatus
	for _, comp := range resp.Components {
		if comp.Name == "broker" {
			brokerStatus = comp
		}
	}
	require.NotNil(t, brokerStatus)
	assert.Equal(t, StatusHealthy, brokerStatus.Status)
}

func TestBrokerOutageDegradesWithoutKilling(t *testing.T) {
	checker := testChecker(
		&fakeBroker{healthy: false, pingErr: errors.New("connection refused")},
		&fakeNode{connections: 10, started: time.Now()},
	)

	resp := checker.CheckHealth(context.Background())

	// A broker outage never makes the instance unhealthy: open
	// connections stay up while the subscription reconnects
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestLivenessStaysGreenDuringBrokerOutage(t *testing.T) {
	checker := testChecker(
		&fakeBroker{healthy: false, pingErr: errors.New("connection refused")},
		&fakeNode{connections: 10, started: time.Now()},
	)

	r := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	checker.HandleHealth(w, r)

	assert.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, StatusDegraded, resp.Status)
}

func TestReadinessFlipsWithBrokerState(t *testing.T) {
	broker := &fakeBroker{healthy: false, pingErr: errors.New("connection refused")}
	checker := testChecker(broker, &fakeNode{connections: 10, started: time.Now()})

	r := httptest.NewRequest(http.MethodGet, "/health?ready=1", nil)
	w := httptest.NewRecorder()
	checker.HandleHealth(w, r)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	// Broker recovers; readiness follows
	broker.healthy = true
	broker.pingErr = nil

	w = httptest.NewRecorder()
	checker.HandleHealth(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReadinessRequiresLiveSubscription(t *testing.T) {
	// Broker reachable but the subscription is still re-establishing
	checker := testChecker(
		&fakeBroker{healthy: false},
		&fakeNode{connections: 10, started: time.Now()},
	)

	r := httptest.NewRequest(http.MethodGet, "/health?ready=1", nil)
	w := httptest.NewRecorder()
	checker.HandleHealth(w, r)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestHandleHealthRejectsNonGet(t *testing.T) {
	checker := testChecker(&fakeBroker{healthy: true}, &fakeNode{started: time.Now()})

	r := httptest.NewRequest(http.MethodPost, "/health", nil)
	w := httptest.NewRecorder()
	checker.HandleHealth(w, r)

	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestConnectionUtilizationThresholds(t *testing.T) {
	checker := testChecker(
		&fakeBroker{healthy: true},
		&fakeNode{connections: 960, started: time.Now()},
	)

	status := checker.checkConnections()
	assert.Equal(t, StatusUnhealthy, status.Status)

	checker = testChecker(
		&fakeBroker{healthy: true},
		&fakeNode{connections: 910, started: time.Now()},
	)
	status = checker.checkConnections()
	assert.Equal(t, StatusDegraded, status.Status)
}

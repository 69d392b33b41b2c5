package activity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"github.com/taskboard/core/internal/v1/metrics"
	"github.com/taskboard/core/internal/v1/types"
)

// NoopSink discards every record, for single-instance/dev deployments that
// don't configure an external activity log.
type NoopSink struct{}

func (NoopSink) Append(context.Context, types.ActivityRecord) error { return nil }

// HTTPSink forwards each record as a JSON POST to an external append-only
// log, wrapped in a circuit breaker so a degraded downstream never slows
// the caller beyond the fire-and-forget goroutine itself. Grounded on the
// teacher's bus.Service circuit-breaker wiring (internal/v1/bus/redis.go),
// adapted from Redis to a plain net/http.Client.
type HTTPSink struct {
	url    string
	client *http.Client
	cb     *gobreaker.CircuitBreaker
}

// NewHTTPSink builds a sink that POSTs to url. timeout bounds each request.
func NewHTTPSink(url string, timeout time.Duration) *HTTPSink {
	st := gobreaker.Settings{
		Name:        "activity-sink",
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     15 * time.Second,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues("activity-sink").Set(stateVal)
		},
	}
	return &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: timeout},
		cb:     gobreaker.NewCircuitBreaker(st),
	}
}

// Append POSTs rec as JSON. A tripped breaker fails fast instead of
// piling up blocked goroutines behind a dead downstream.
func (h *HTTPSink) Append(ctx context.Context, rec types.ActivityRecord) error {
	_, err := h.cb.Execute(func() (any, error) {
		body, err := json.Marshal(rec)
		if err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := h.client.Do(req)
		if err != nil {
			metrics.CircuitBreakerFailures.WithLabelValues("activity-sink").Inc()
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 300 {
			metrics.CircuitBreakerFailures.WithLabelValues("activity-sink").Inc()
			return nil, fmt.Errorf("activity sink: unexpected status %d", resp.StatusCode)
		}
		return nil, nil
	})
	return err
}

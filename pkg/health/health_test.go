package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRunAggregatesWorstStatus(t *testing.T) {
	c := NewChecker()
	c.Register("postgres", PingCheck(func(ctx context.Context) error { return nil }, true))
	c.Register("redis", PingCheck(func(ctx context.Context) error { return errors.New("refused") }, false))

	report := c.Run(context.Background())
	if report.Status != StatusDegraded {
		t.Errorf("status = %s, want degraded", report.Status)
	}
	if report.Components["redis"].Message != "refused" {
		t.Errorf("redis message = %q", report.Components["redis"].Message)
	}

	c.Register("postgres", PingCheck(func(ctx context.Context) error { return errors.New("down") }, true))
	if got := c.Run(context.Background()).Status; got != StatusDown {
		t.Errorf("status = %s, want down", got)
	}
}

func TestPingCheckNil(t *testing.T) {
	if got := PingCheck(nil, true)(context.Background()).Status; got != StatusDegraded {
		t.Errorf("nil ping status = %s, want degraded", got)
	}
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("cache", PingCheck(nil, false))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("degraded ready status = %d, want 200", rec.Code)
	}

	c.Register("postgres", PingCheck(func(ctx context.Context) error { return errors.New("down") }, true))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("down ready status = %d, want 503", rec.Code)
	}
	var report Report
	if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
		t.Fatal(err)
	}
	if report.Components["postgres"].Status != StatusDown {
		t.Errorf("postgres component = %+v", report.Components["postgres"])
	}
}

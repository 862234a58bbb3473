package app

import (
	"errors"
	"testing"
	"time"

	"heimdall/internal/notify"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordOutcomes(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	metrics.ObserveSweep("ok", 3*time.Second)
	metrics.ObserveHost("ok")
	metrics.ObserveHost("unreachable")
	metrics.ObserveHost("unreachable")
	metrics.ObserveDelivery(notify.DeliveryResult{Outcomes: map[string]error{"email": nil, "telegram": errors.New("403")}})
	metrics.SetActiveAlerts(4)
	metrics.SetSubscribers(5, 3)

	if got := testutil.ToFloat64(metrics.sweeps.WithLabelValues("ok")); got != 1 {
		t.Fatalf("sweeps=%v", got)
	}
	if got := testutil.ToFloat64(metrics.hostChecks.WithLabelValues("unreachable")); got != 2 {
		t.Fatalf("unreachable=%v", got)
	}
	if got := testutil.ToFloat64(metrics.notifications.WithLabelValues("telegram", "failure")); got != 1 {
		t.Fatalf("telegram failures=%v", got)
	}
	if got := testutil.ToFloat64(metrics.activeAlerts); got != 4 {
		t.Fatalf("active=%v", got)
	}
	if got := testutil.ToFloat64(metrics.subscribers.WithLabelValues("pending")); got != 2 {
		t.Fatalf("pending=%v", got)
	}
}

func TestNilMetricsAreNoops(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.ObserveSweep("ok", time.Second)
	metrics.ObserveHost("ok")
	metrics.ObserveDelivery(notify.DeliveryResult{})
	metrics.SetActiveAlerts(1)
	metrics.SetSubscribers(1, 1)
	if metrics.Registry() != nil || metrics.Handler() == nil {
		t.Fatal("nil metrics must expose no registry and a not-found handler")
	}
}

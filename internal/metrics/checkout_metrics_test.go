package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestNewCheckoutMetrics(t *testing.T) {
	m := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	if m == nil {
		t.Fatal("newCheckoutMetricsWithRegisterer should not return nil")
	}
	if m.ordersCreated == nil {
		t.Error("ordersCreated counter should not be nil")
	}
	if m.ordersPaid == nil {
		t.Error("ordersPaid counter should not be nil")
	}
	if m.ordersFailed == nil {
		t.Error("ordersFailed counter should not be nil")
	}
	if m.retriesTotal == nil {
		t.Error("retriesTotal counter should not be nil")
	}
	if m.cartMismatches == nil {
		t.Error("cartMismatches counter vec should not be nil")
	}
	if m.reconcileDuration == nil {
		t.Error("reconcileDuration histogram should not be nil")
	}
	if m.duplicateNotifications == nil {
		t.Error("duplicateNotifications counter should not be nil")
	}
	if m.webhookRejected == nil {
		t.Error("webhookRejected counter should not be nil")
	}
	if m.timelineEvents == nil {
		t.Error("timelineEvents counter should not be nil")
	}
	if m.outboxEvents == nil {
		t.Error("outboxEvents counter should not be nil")
	}
}

func TestNewCheckoutMetrics_ReusesRegisteredCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()

	first := newCheckoutMetricsWithRegisterer(reg)
	second := newCheckoutMetricsWithRegisterer(reg)

	first.RecordOrderCreated()
	second.RecordOrderCreated()

	metric := &dto.Metric{}
	if err := second.ordersCreated.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected shared counter value 2.0, got %f", metric.Counter.GetValue())
	}
}

func TestRecordOrderLifecycleCounters(t *testing.T) {
	m := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordOrderCreated()
	m.RecordOrderCreated()
	m.RecordOrderPaid()
	m.RecordOrderFailed()
	m.RecordRetry()

	checks := []struct {
		name    string
		counter prometheus.Counter
		want    float64
	}{
		{"ordersCreated", m.ordersCreated, 2.0},
		{"ordersPaid", m.ordersPaid, 1.0},
		{"ordersFailed", m.ordersFailed, 1.0},
		{"retriesTotal", m.retriesTotal, 1.0},
	}

	for _, check := range checks {
		metric := &dto.Metric{}
		if err := check.counter.Write(metric); err != nil {
			t.Fatalf("failed to write %s: %v", check.name, err)
		}
		if metric.Counter.GetValue() != check.want {
			t.Errorf("%s: expected %f, got %f", check.name, check.want, metric.Counter.GetValue())
		}
	}
}

func TestRecordCartMismatch(t *testing.T) {
	m := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordCartMismatch("out_of_stock")
	m.RecordCartMismatch("out_of_stock")
	m.RecordCartMismatch("price_changed")

	metric := &dto.Metric{}
	observer := m.cartMismatches.WithLabelValues("out_of_stock")
	if err := observer.(prometheus.Counter).Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}
	if metric.Counter.GetValue() != 2.0 {
		t.Errorf("expected 2 out_of_stock mismatches, got %f", metric.Counter.GetValue())
	}
}

func TestRecordReconcileDuration(t *testing.T) {
	m := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordReconcileDuration(100 * time.Millisecond)
	m.RecordReconcileDuration(500 * time.Millisecond)
	m.RecordReconcileDuration(1 * time.Second)

	metric := &dto.Metric{}
	if err := m.reconcileDuration.Write(metric); err != nil {
		t.Fatalf("failed to write metric: %v", err)
	}

	if metric.Histogram.GetSampleCount() != 3 {
		t.Errorf("expected 3 samples, got %d", metric.Histogram.GetSampleCount())
	}

	// Sum is approximately 0.1 + 0.5 + 1.0 = 1.6
	sum := metric.Histogram.GetSampleSum()
	if sum < 1.5 || sum > 1.7 {
		t.Errorf("expected sum around 1.6, got %f", sum)
	}
}

func TestRecordEventCounters(t *testing.T) {
	m := newCheckoutMetricsWithRegisterer(prometheus.NewRegistry())

	m.RecordTimelineEvent()
	m.RecordTimelineEvent()
	m.RecordTimelineEvent()
	m.RecordOutboxEvent()
	m.RecordOutboxEvent()
	m.RecordDuplicateNotification()
	m.RecordWebhookRejected()

	checks := []struct {
		name    string
		counter prometheus.Counter
		want    float64
	}{
		{"timelineEvents", m.timelineEvents, 3.0},
		{"outboxEvents", m.outboxEvents, 2.0},
		{"duplicateNotifications", m.duplicateNotifications, 1.0},
		{"webhookRejected", m.webhookRejected, 1.0},
	}

	for _, check := range checks {
		metric := &dto.Metric{}
		if err := check.counter.Write(metric); err != nil {
			t.Fatalf("failed to write %s: %v", check.name, err)
		}
		if metric.Counter.GetValue() != check.want {
			t.Errorf("%s: expected %f, got %f", check.name, check.want, metric.Counter.GetValue())
		}
	}
}

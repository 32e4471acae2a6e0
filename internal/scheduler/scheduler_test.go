package scheduler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	obsmetrics "github.com/dev-orchid/shiksha-sub001/internal/observability/metrics"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"go.uber.org/zap"
)

type fakeBroker struct {
	gatewaydomain.Broker

	mu      sync.Mutex
	batches []int
	err     error
	calls   []time.Time
	limits  []int
}

func (b *fakeBroker) ExpireStale(_ context.Context, now time.Time, limit int) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, now)
	b.limits = append(b.limits, limit)
	if b.err != nil {
		return 0, b.err
	}
	if len(b.batches) == 0 {
		return 0, nil
	}
	next := b.batches[0]
	b.batches = b.batches[1:]
	return next, nil
}

type harness struct {
	sched    *Scheduler
	broker   *fakeBroker
	clock    *clock.FakeClock
	registry *prometheus.Registry
}

func newHarness(t *testing.T, cfg Config, broker *fakeBroker) *harness {
	t.Helper()
	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("snowflake: %v", err)
	}
	registry := prometheus.NewRegistry()
	fake := clock.NewFakeClock(time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))
	sched, err := New(Params{
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   fake,
		Broker:  broker,
		Metrics: obsmetrics.NewSchedulerMetrics(registry, obsmetrics.Config{ServiceName: "shiksha", Environment: "test"}),
		Config:  cfg,
	})
	if err != nil {
		t.Fatalf("new scheduler: %v", err)
	}
	return &harness{sched: sched, broker: broker, clock: fake, registry: registry}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(Params{Log: zap.NewNop()}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{BatchSize: 7}.withDefaults()
	if cfg.BatchSize != 7 {
		t.Fatalf("expected batch size to be kept, got %d", cfg.BatchSize)
	}
	if cfg.RunInterval != time.Minute || cfg.JobTimeout != 30*time.Second || cfg.LockTTL != time.Minute {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestExpireGatewayOrdersDrainsBatches(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 3}, &fakeBroker{batches: []int{3, 3, 1}})

	if err := h.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(h.broker.calls) != 3 {
		t.Fatalf("expected 3 expiry batches, got %d", len(h.broker.calls))
	}
	for i, at := range h.broker.calls {
		if !at.Equal(h.clock.Now()) {
			t.Fatalf("batch %d used %s, want %s", i, at, h.clock.Now())
		}
		if h.broker.limits[i] != 3 {
			t.Fatalf("batch %d limit %d, want 3", i, h.broker.limits[i])
		}
	}

	processed := getCounterValue(t, h.registry, "shiksha_scheduler_batch_processed_total", map[string]string{
		"service":  "shiksha",
		"env":      "test",
		"job":      JobExpireGatewayOrders,
		"resource": "gateway_orders",
	})
	if processed != 7 {
		t.Fatalf("expected 7 processed orders, got %v", processed)
	}
	runs := getCounterValue(t, h.registry, "shiksha_scheduler_job_runs_total", map[string]string{
		"service": "shiksha",
		"env":     "test",
		"job":     JobExpireGatewayOrders,
	})
	if runs != 1 {
		t.Fatalf("expected 1 job run, got %v", runs)
	}
}

func TestExpireGatewayOrdersUsesCurrentClock(t *testing.T) {
	h := newHarness(t, Config{BatchSize: 10}, &fakeBroker{})
	h.clock.Advance(45 * time.Minute)

	if err := h.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	want := time.Date(2026, 4, 1, 9, 45, 0, 0, time.UTC)
	if len(h.broker.calls) != 1 || !h.broker.calls[0].Equal(want) {
		t.Fatalf("expected a single call at %s, got %v", want, h.broker.calls)
	}
}

func TestRunOnceWrapsJobError(t *testing.T) {
	boom := errors.New("database unavailable")
	h := newHarness(t, Config{}, &fakeBroker{err: boom})

	err := h.sched.RunOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped broker error, got %v", err)
	}
	if !strings.Contains(err.Error(), JobExpireGatewayOrders) {
		t.Fatalf("expected job name in error, got %q", err.Error())
	}
}

func TestRunJobTreatsTimeoutAsSoft(t *testing.T) {
	h := newHarness(t, Config{}, &fakeBroker{})

	err := h.sched.runJob(context.Background(), "slow_job", 1, time.Millisecond, func(ctx context.Context, _ *jobRun) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if err != nil {
		t.Fatalf("expected soft timeout, got %v", err)
	}
	timeouts := getCounterValue(t, h.registry, "shiksha_scheduler_job_timeouts_total", map[string]string{
		"service": "shiksha",
		"env":     "test",
		"job":     "slow_job",
	})
	if timeouts != 1 {
		t.Fatalf("expected 1 timeout, got %v", timeouts)
	}
}

func TestDisabledJobIsSkipped(t *testing.T) {
	h := newHarness(t, Config{EnabledJobs: []string{"something_else"}}, &fakeBroker{batches: []int{1}})

	if err := h.sched.RunOnce(context.Background()); err != nil {
		t.Fatalf("run once: %v", err)
	}
	if len(h.broker.calls) != 0 {
		t.Fatalf("expected no expiry calls, got %d", len(h.broker.calls))
	}
}

func TestEnabledJobMatchIgnoresCase(t *testing.T) {
	cfg := Config{EnabledJobs: []string{" Gateway_Order_Expiry "}}
	if !cfg.isJobEnabled(JobExpireGatewayOrders) {
		t.Fatalf("expected job to be enabled")
	}
}

func getCounterValue(t *testing.T, registry *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	metricFamilies, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metricFamilies {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.Metric {
			if !labelsMatch(metric, labels) {
				continue
			}
			if metric.Counter == nil {
				t.Fatalf("metric %s is not a counter", name)
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func labelsMatch(metric *dto.Metric, labels map[string]string) bool {
	if len(metric.Label) != len(labels) {
		return false
	}
	for _, label := range metric.Label {
		if labels[label.GetName()] != label.GetValue() {
			return false
		}
	}
	return true
}

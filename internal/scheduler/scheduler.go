package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	gatewaydomain "github.com/dev-orchid/shiksha-sub001/internal/gateway/domain"
	obsmetrics "github.com/dev-orchid/shiksha-sub001/internal/observability/metrics"
	"github.com/dev-orchid/shiksha-sub001/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: invalid config")

type Params struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Broker  gatewaydomain.Broker
	Locker  *ratelimit.Locker           `optional:"true"`
	Metrics *obsmetrics.SchedulerMetrics `optional:"true"`
	Config  Config                      `optional:"true"`
}

type Scheduler struct {
	log     *zap.Logger
	cfg     Config
	genID   *snowflake.Node
	clock   clock.Clock
	broker  gatewaydomain.Broker
	locker  *ratelimit.Locker
	metrics *obsmetrics.SchedulerMetrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.GenID == nil || p.Clock == nil || p.Broker == nil {
		return nil, ErrInvalidConfig
	}
	metrics := p.Metrics
	if metrics == nil {
		metrics = obsmetrics.Scheduler()
	}
	return &Scheduler{
		log:     p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:     p.Config.withDefaults(),
		genID:   p.GenID,
		clock:   p.Clock,
		broker:  p.Broker,
		locker:  p.Locker,
		metrics: metrics,
	}, nil
}

func (s *Scheduler) runJob(
	parent context.Context,
	name string,
	batchSize int,
	timeout time.Duration,
	fn func(ctx context.Context, run *jobRun) error,
) error {
	start := time.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	ctx, run := s.beginRun(ctx, name, batchSize)
	s.metrics.IncJobRun(name)

	err := fn(ctx, run)
	s.metrics.ObserveJobDuration(name, time.Since(start))
	if err != nil {
		run.fail(err)
	}
	run.finish()
	if err == nil {
		return nil
	}

	// deadline is a soft timeout; the next tick picks up the remainder
	isTimeout := errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
	s.metrics.IncJobError(name, err)
	if isTimeout {
		s.metrics.IncJobTimeout(name)
		run.log.Warn("scheduler.job.timeout", zap.Duration("timeout", timeout), zap.Error(err))
		return nil
	}

	return fmt.Errorf("%s: %w", name, err)
}

// RunOnce executes every enabled job a single time.
func (s *Scheduler) RunOnce(parent context.Context) error {
	var err error

	jobs := []struct {
		Name string
		Run  func(context.Context) error
	}{
		{JobExpireGatewayOrders, func(ctx context.Context) error {
			return s.runJob(ctx, JobExpireGatewayOrders, s.cfg.BatchSize, s.cfg.JobTimeout, s.expireGatewayOrders)
		}},
	}

	for _, job := range jobs {
		if s.cfg.isJobEnabled(job.Name) {
			err = errors.Join(err, job.Run(parent))
		}
	}
	return err
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()
	nextRun := time.Now().Add(s.cfg.RunInterval)

	for {
		if lag := time.Since(nextRun); lag > 0 {
			s.metrics.ObserveRunLoopLag(lag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}
		nextRun = nextRun.Add(s.cfg.RunInterval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// expireGatewayOrders moves created orders past their expiry to expired,
// draining in batches until a short batch comes back.
func (s *Scheduler) expireGatewayOrders(ctx context.Context, run *jobRun) error {
	if s.locker != nil {
		lease, err := s.locker.Acquire(ctx, "scheduler:"+JobExpireGatewayOrders, s.cfg.LockTTL)
		if err != nil {
			return err
		}
		if lease == nil {
			run.log.Debug("scheduler.job.skipped", zap.String("reason", "locked"))
			return nil
		}
		defer func() {
			if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
				run.log.Warn("scheduler.lock.release_failed", zap.Error(err))
			}
		}()
	}

	now := s.clock.Now()
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		count, err := s.broker.ExpireStale(ctx, now, run.batchSize)
		if err != nil {
			return err
		}
		run.addProcessed(count)
		s.metrics.AddBatchProcessed(run.job, "gateway_orders", count)
		if count < run.batchSize {
			return nil
		}
	}
}

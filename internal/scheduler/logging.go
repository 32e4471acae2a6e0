package scheduler

import (
	"context"
	"time"

	"github.com/dev-orchid/shiksha-sub001/internal/clock"
	obscontext "github.com/dev-orchid/shiksha-sub001/internal/observability/context"
	obslogger "github.com/dev-orchid/shiksha-sub001/internal/observability/logger"
	obsmetrics "github.com/dev-orchid/shiksha-sub001/internal/observability/metrics"
	"go.uber.org/zap"
)

// jobRun tracks one execution of a job. Its logger carries the job name and
// run id on every line.
type jobRun struct {
	job       string
	batchSize int
	clock     clock.Clock
	startedAt time.Time
	log       *zap.Logger
	processed int
	failures  int
}

// beginRun tags ctx with a system actor and uses the run id as request id, so
// service and repository logs of the run correlate.
func (s *Scheduler) beginRun(ctx context.Context, job string, batchSize int) (context.Context, *jobRun) {
	runID := s.genID.Generate().String()
	ctx = obscontext.WithActor(ctx, "system", "scheduler")
	ctx = obscontext.WithRequestID(ctx, runID)

	run := &jobRun{
		job:       job,
		batchSize: batchSize,
		clock:     s.clock,
		startedAt: s.clock.Now(),
		log:       obslogger.WithContext(ctx, s.log).With(zap.String("job", job), zap.String("run_id", runID)),
	}
	run.log.Info("scheduler.job.start", zap.Int("batch_size", batchSize))
	return ctx, run
}

func (r *jobRun) addProcessed(count int) {
	if count > 0 {
		r.processed += count
	}
}

func (r *jobRun) fail(err error) {
	r.failures++
	r.log.Error("scheduler.job.error",
		zap.String("reason", obsmetrics.ClassifySchedulerJobReason(err)),
		zap.Bool("retryable", obsmetrics.IsSchedulerErrorRetryable(err)),
		zap.Error(err),
	)
}

func (r *jobRun) finish() {
	fields := []zap.Field{
		zap.Int64("duration_ms", r.clock.Now().Sub(r.startedAt).Milliseconds()),
		zap.Int("processed_count", r.processed),
		zap.Int("error_count", r.failures),
	}
	if r.failures > 0 {
		r.log.Warn("scheduler.job.finish", fields...)
		return
	}
	r.log.Info("scheduler.job.finish", fields...)
}

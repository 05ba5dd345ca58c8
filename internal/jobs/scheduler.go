package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"medication-adherence/internal/platform/logger"
	"medication-adherence/internal/platform/metrics"
)

const DefaultSchedule = "@every 15m"

type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
	log     logger.Logger
	metrics *metrics.Metrics
	timeout time.Duration
}

// NewScheduler programa el sweeper con una expresión cron (o @every) en loc.
// Una corrida que se solapa con la anterior se salta.
func NewScheduler(spec string, loc *time.Location, sw *Sweeper, lg logger.Logger, m *metrics.Metrics) (*Scheduler, error) {
	if spec == "" {
		spec = DefaultSchedule
	}
	if loc == nil {
		loc = time.UTC
	}
	if lg == nil {
		lg = logger.Nop()
	}

	cl := cronLogger{lg.With(map[string]any{"component": "sweeper"})}
	s := &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		sweeper: sw,
		log:     cl.lg,
		metrics: m,
		timeout: 5 * time.Minute,
	}
	if _, err := s.cron.AddFunc(spec, s.RunOnce); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop no corta una corrida en curso; el contexto devuelto se cierra cuando termina.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) RunOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	started := time.Now()
	rep, err := s.sweeper.Run(ctx)
	s.metrics.RecordSweep(err == nil)

	fields := map[string]any{
		"owners":     rep.Owners,
		"marked":     rep.Marked,
		"failed":     rep.Failed,
		"latency_ms": time.Since(started).Milliseconds(),
	}
	if err != nil {
		fields["err"] = err
		s.log.Error("sweep finished with errors", fields)
		return
	}
	s.log.Info("sweep finished", fields)
}

// cronLogger adapta logger.Logger a cron.Logger.
type cronLogger struct {
	lg logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.lg.Debug(msg, kv(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	f := kv(keysAndValues)
	f["err"] = err
	c.lg.Error(msg, f)
}

func kv(pairs []any) map[string]any {
	out := make(map[string]any, len(pairs)/2+1)
	for i := 0; i+1 < len(pairs); i += 2 {
		if k, ok := pairs[i].(string); ok {
			out[k] = pairs[i+1]
		}
	}
	return out
}

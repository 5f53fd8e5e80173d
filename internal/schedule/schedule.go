// Package schedule runs periodic background jobs on gocron.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"tg_shop_bot/internal/logging"
)

const (
	slowJobThreshold = 5 * time.Second

	configRefreshJob = "admin_config_refresh"
)

// Job is one run of a periodic task.
type Job func(ctx context.Context) error

// Scheduler owns a gocron scheduler. Jobs receive a context canceled when the
// scheduler shuts down.
type Scheduler struct {
	cron   gocron.Scheduler
	logger *logrus.Entry
	ctx    context.Context
	cancel context.CancelFunc
}

// New constructs a stopped Scheduler.
func New(logger *logrus.Entry) (*Scheduler, error) {
	if logger == nil {
		logger = logging.Logger()
	}

	cron, err := gocron.NewScheduler(
		gocron.WithLocation(time.UTC),
		gocron.WithLogger(&gocronLogger{logger: logger}),
	)
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:   cron,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Every registers job to run at a fixed interval. A run that overlaps the
// next tick delays it instead of running twice.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if s == nil || s.cron == nil {
		return errors.New("scheduler is not initialized")
	}
	if strings.TrimSpace(name) == "" {
		return errors.New("job name is required")
	}
	if interval <= 0 {
		return fmt.Errorf("job %s: interval must be positive", name)
	}
	if job == nil {
		return fmt.Errorf("job %s: task is required", name)
	}

	scheduled, err := s.cron.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(s.wrap(name, job)),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}

	s.logger.WithFields(logging.Fields{
		"event":    "job_scheduled",
		"job":      name,
		"interval": interval.String(),
		"job_id":   scheduled.ID().String(),
	}).Info("scheduled periodic job")

	return nil
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		start := time.Now()
		err := job(s.ctx)
		elapsed := time.Since(start)

		fields := logging.Fields{
			"job":         name,
			"duration_ms": elapsed.Milliseconds(),
		}
		if err != nil {
			s.logger.WithFields(fields).WithField("event", "job_failed").WithError(err).Warn("scheduled job failed")
			return
		}
		if elapsed > slowJobThreshold {
			s.logger.WithFields(fields).WithField("event", "job_slow").Warn("slow scheduled job execution")
		}
	}
}

// Run starts the scheduler and blocks until ctx is canceled, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil || s.cron == nil {
		return errors.New("scheduler is not initialized")
	}

	s.cron.Start()
	s.logger.WithFields(logging.Fields{
		"event": "scheduler_start",
		"jobs":  len(s.cron.Jobs()),
	}).Info("scheduler started")

	<-ctx.Done()

	s.cancel()
	if err := s.cron.Shutdown(); err != nil {
		return fmt.Errorf("shutdown scheduler: %w", err)
	}

	s.logger.WithField("event", "scheduler_stopped").Info("scheduler stopped")
	return nil
}

// ConfigRefresher reloads the active admin config when it changed.
type ConfigRefresher interface {
	RefreshConfig(ctx context.Context) error
}

// AddConfigRefresh registers the periodic admin config refresh.
func (s *Scheduler) AddConfigRefresh(refresher ConfigRefresher, interval time.Duration) error {
	if refresher == nil {
		return errors.New("config refresher is required")
	}
	return s.Every(configRefreshJob, interval, refresher.RefreshConfig)
}

type gocronLogger struct {
	logger *logrus.Entry
}

func (l *gocronLogger) Debug(msg string, args ...any) {
	l.logger.WithFields(argsToFields(args)).Debug(msg)
}

func (l *gocronLogger) Info(msg string, args ...any) {
	l.logger.WithFields(argsToFields(args)).Info(msg)
}

func (l *gocronLogger) Warn(msg string, args ...any) {
	l.logger.WithFields(argsToFields(args)).Warn(msg)
}

func (l *gocronLogger) Error(msg string, args ...any) {
	l.logger.WithFields(argsToFields(args)).Error(msg)
}

// argsToFields turns gocron's key/value pairs into logrus fields. A trailing
// key without a value is kept under "value".
func argsToFields(args []any) logging.Fields {
	fields := logging.Fields{"component": "gocron"}
	for i := 0; i < len(args); i += 2 {
		if i+1 >= len(args) {
			fields["value"] = args[i]
			break
		}

		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		if err, isErr := args[i+1].(error); isErr && key == "error" {
			fields[logrus.ErrorKey] = err.Error()
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}

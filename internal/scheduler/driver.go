// Package scheduler drives the dispatch loop on a fixed interval.
//
// A Driver owns its cron instance: Start runs one scan immediately and then
// one per Interval, Stop halts the timer and waits for the scan in flight.
// Timer scans never overlap each other (a tick that fires while a scan is
// still running is skipped). External triggers go through RunOnce and are
// not serialized against the timer.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/tbourn/go-reminder-backend/internal/services"
)

// ErrAlreadyRunning is returned by Start on a running driver.
var ErrAlreadyRunning = errors.New("scheduler already running")

// State is the lifecycle state of a Driver.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// Runner is the dispatch pass the driver triggers.
type Runner interface {
	RunOnce(ctx context.Context, asOf time.Time) (services.DispatchSummary, error)
}

// Config controls the driver cadence.
type Config struct {
	// Interval between timer scans. Values under one second are rounded up
	// to one second by cron.Every.
	Interval time.Duration
	// ScanTimeout bounds each timer scan. Zero disables the bound.
	ScanTimeout time.Duration
}

// Driver triggers Runner on a timer.
type Driver struct {
	runner Runner
	cfg    Config
	log    zerolog.Logger
	now    func() time.Time

	mu     sync.Mutex
	c      *cron.Cron
	job    cron.Job
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds an idle Driver.
func New(runner Runner, cfg Config, logger zerolog.Logger) *Driver {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	return &Driver{
		runner: runner,
		cfg:    cfg,
		log:    logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
}

// Start schedules the scan and runs the first one immediately in the
// background. ctx is the parent of every timer scan; cancelling it aborts
// scans in flight but does not stop the timer (use Stop).
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return ErrAlreadyRunning
	}

	d.ctx, d.cancel = context.WithCancel(ctx)
	clog := cronLogger{log: d.log}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog)))

	d.job = cron.NewChain(cron.SkipIfStillRunning(clog)).Then(cron.FuncJob(d.tick))
	c.Schedule(cron.Every(d.cfg.Interval), d.job)

	c.Start()
	d.c = c

	job := d.job
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		job.Run()
	}()

	d.log.Info().Dur("interval", d.cfg.Interval).Msg("scheduler started")
	return nil
}

// Stop halts the timer and waits for in-flight timer scans, or until ctx is
// done. Stopping an idle driver is a no-op.
func (d *Driver) Stop(ctx context.Context) {
	d.mu.Lock()
	c := d.c
	cancel := d.cancel
	d.c = nil
	d.mu.Unlock()

	if c == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		d.log.Warn().Err(ctx.Err()).Msg("scheduler stop timed out; cancelling in-flight scan")
	}
	cancel()
	d.log.Info().Msg("scheduler stopped")
}

// State reports whether the timer is running.
func (d *Driver) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return StateRunning
	}
	return StateIdle
}

// RunOnce runs a scan right now for asOf, independent of the timer.
func (d *Driver) RunOnce(ctx context.Context, asOf time.Time) (services.DispatchSummary, error) {
	return d.runner.RunOnce(ctx, asOf)
}

// tick is one timer-driven scan.
func (d *Driver) tick() {
	d.mu.Lock()
	parent := d.ctx
	d.mu.Unlock()
	if parent == nil {
		parent = context.Background()
	}

	ctx := parent
	if d.cfg.ScanTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, d.cfg.ScanTimeout)
		defer cancel()
	}

	sum, err := d.runner.RunOnce(ctx, d.now())
	if err != nil {
		d.log.Error().Err(err).Msg("scheduled scan failed")
		return
	}
	if sum.Failed > 0 {
		d.log.Warn().Int("checked", sum.Checked).Int("sent", sum.Sent).Int("failed", sum.Failed).Msg("scheduled scan finished with failures")
	}
}

// cronLogger routes robfig/cron logs through zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Housekeeper runs maintenance tasks (expired idempotency keys, ...) on its
// own cron, independent of whether the dispatch timer is enabled.
type Housekeeper struct {
	task     func(ctx context.Context)
	interval time.Duration
	log      zerolog.Logger

	mu     sync.Mutex
	c      *cron.Cron
	cancel context.CancelFunc
}

// NewHousekeeper builds an idle Housekeeper running task every interval.
// Intervals under one second are rounded up by cron.Every.
func NewHousekeeper(task func(ctx context.Context), interval time.Duration, logger zerolog.Logger) *Housekeeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Housekeeper{
		task:     task,
		interval: interval,
		log:      logger.With().Str("component", "housekeeping").Logger(),
	}
}

// Start schedules the task. The first run happens after one interval.
func (h *Housekeeper) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.c != nil {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	clog := cronLogger{log: h.log}
	c := cron.New(cron.WithLogger(clog), cron.WithChain(cron.Recover(clog)))
	task := h.task
	c.Schedule(cron.Every(h.interval),
		cron.NewChain(cron.SkipIfStillRunning(clog)).Then(cron.FuncJob(func() { task(runCtx) })))
	c.Start()

	h.c, h.cancel = c, cancel
	h.log.Info().Dur("interval", h.interval).Msg("housekeeping started")
	return nil
}

// Stop halts the cron and waits for a running task, or until ctx is done.
func (h *Housekeeper) Stop(ctx context.Context) {
	h.mu.Lock()
	c, cancel := h.c, h.cancel
	h.c, h.cancel = nil, nil
	h.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	cancel()
}

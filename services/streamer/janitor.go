package streamer

import (
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/ramiqadoumi/quote-stream/internal/workflow"
)

// Janitor prunes terminated workflows from the registry on a cron schedule.
// Keeping terminal runners around for the retention window lets late stop
// requests resolve as no-ops instead of 404s; the janitor bounds the memory
// that costs.
type Janitor struct {
	registry  *workflow.Registry
	retention time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
}

// NewJanitor creates a Janitor. schedule is a cron expression (the "@every 5m"
// form works too); retention is how long terminal workflows stay registered.
func NewJanitor(registry *workflow.Registry, schedule string, retention time.Duration, logger *slog.Logger) (*Janitor, error) {
	j := &Janitor{
		registry:  registry,
		retention: retention,
		logger:    logger,
		cron:      cron.New(),
	}
	if _, err := j.cron.AddFunc(schedule, j.sweep); err != nil {
		return nil, err
	}
	return j, nil
}

// Start launches the cron scheduler in its own goroutine.
func (j *Janitor) Start() { j.cron.Start() }

// Stop halts the scheduler and waits for a running sweep to finish.
func (j *Janitor) Stop() {
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	if pruned := j.registry.Prune(j.retention, time.Now().UTC()); pruned > 0 {
		j.logger.Info("pruned terminated workflows",
			slog.Int("pruned", pruned),
			slog.Int("remaining", j.registry.Len()),
		)
	}
}

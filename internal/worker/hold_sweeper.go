package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/logging"
	"slotbook/internal/metrics"
)

// HoldStore is the slice of the store the sweeper needs.
type HoldStore interface {
	DeleteExpiredHolds(ctx context.Context, before time.Time) (int64, error)
}

// Purger drops expired entries from a process-local cache.
type Purger interface {
	Purge() int
}

// HoldSweeper deletes holds that expired more than retention ago. Expired
// holds already stop counting as occupants; the sweep only reclaims storage.
type HoldSweeper struct {
	store     HoldStore
	purgers   []Purger
	interval  time.Duration
	retention time.Duration
	now       func() time.Time
	logger    *zerolog.Logger
}

func NewHoldSweeper(store HoldStore, interval, retention time.Duration, logger *zerolog.Logger, purgers ...Purger) *HoldSweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if retention < 0 {
		retention = 0
	}
	return &HoldSweeper{
		store:     store,
		purgers:   purgers,
		interval:  interval,
		retention: retention,
		now:       time.Now,
		logger:    logging.Component(logger, "hold_sweeper"),
	}
}

// Start launches main loop; stops when ctx is done.
func (w *HoldSweeper) Start(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("hold_sweeper: started")
	defer w.logger.Info().Msg("hold_sweeper: stopped")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.Sweep(ctx); err != nil {
				w.logger.Error().Err(err).Msg("hold_sweeper: sweep failed")
			}
		}
	}
}

// Sweep runs one pass and returns the number of holds removed.
func (w *HoldSweeper) Sweep(ctx context.Context) (int64, error) {
	for _, p := range w.purgers {
		p.Purge()
	}

	n, err := w.store.DeleteExpiredHolds(ctx, w.now().Add(-w.retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddHoldsSwept(n)
		w.logger.Debug().Int64("removed", n).Msg("hold_sweeper: expired holds removed")
	}
	return n, nil
}

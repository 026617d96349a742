package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/atmsys/atm-backend/internal/models"
	repo "github.com/atmsys/atm-backend/internal/repository"
	"github.com/atmsys/atm-backend/internal/worker"
)

// LimitResetJob zeroes every card's daily withdrawal usage on a fixed
// interval. The reset and its audit row commit in one transaction so a
// crash never leaves half the fleet reset.
type LimitResetJob struct {
	store    repo.Store
	pool     *worker.Pool
	log      *slog.Logger
	interval time.Duration
}

func NewLimitResetJob(store repo.Store, pool *worker.Pool, log *slog.Logger, interval time.Duration) *LimitResetJob {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	return &LimitResetJob{store: store, pool: pool, log: log, interval: interval}
}

// Run blocks until ctx is cancelled, submitting one reset per tick to the
// worker pool so slow database writes never delay the schedule.
func (j *LimitResetJob) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.pool.Submit(func() {
				if err := j.resetOnce(context.Background()); err != nil {
					j.log.Error("daily limit reset failed", "err", err)
				}
			})
		}
	}
}

func (j *LimitResetJob) resetOnce(ctx context.Context) error {
	var reset int64
	err := j.store.WithinTx(ctx, func(st repo.Store) error {
		n, err := st.Cards().ResetAllDailyUsage(ctx)
		if err != nil {
			return err
		}
		reset = n
		return st.AuditLogs().Create(ctx, models.AuditLog{
			ActorType: models.ActorSystem,
			ActorID:   0,
			Action:    "Daily withdrawal usage reset",
			CreatedAt: time.Now().UTC(),
		})
	})
	if err != nil {
		return err
	}
	j.log.Info("daily withdrawal usage reset", "cards", reset)
	return nil
}

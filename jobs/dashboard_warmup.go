package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapledger/scrapledger/internal/dashboard"
	"github.com/scrapledger/scrapledger/internal/fiscal"
)

// DashboardWarmupJob pre-populates dashboard caches so the first
// morning request per trader does not pay the aggregation cost.
type DashboardWarmupJob struct {
	Dashboard *dashboard.Service
	Pool      *pgxpool.Pool
	Logger    *slog.Logger
	clock     func() time.Time
}

// NewDashboardWarmupJob wires dependencies for the warmup handler.
func NewDashboardWarmupJob(svc *dashboard.Service, pool *pgxpool.Pool, logger *slog.Logger) *DashboardWarmupJob {
	return &DashboardWarmupJob{
		Dashboard: svc,
		Pool:      pool,
		Logger:    logger,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes dashboard warmup tasks.
func (j *DashboardWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Dashboard == nil {
		return errors.New("dashboard warmup: handler not configured")
	}
	var payload DashboardWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	logger := j.logger()
	started := j.now()

	owners, err := j.fetchOwners(ctx, payload.OwnerID)
	if err != nil {
		logger.Error("load warmup owners", slog.Any("error", err))
		return err
	}
	if len(owners) == 0 {
		logger.Info("no owners discovered for warmup")
		return nil
	}

	year := fiscal.Year(started)
	warmed := 0
	for _, ownerID := range owners {
		if err := j.warmOwner(ctx, ownerID, year); err != nil {
			logger.Error("warm owner", slog.Int64("owner_id", ownerID), slog.Any("error", err))
			return err
		}
		warmed++
	}

	logger.Info("completed dashboard warmup", slog.Int("owners", warmed), slog.Duration("duration", time.Since(started)))
	return nil
}

func (j *DashboardWarmupJob) warmOwner(ctx context.Context, ownerID int64, year string) error {
	// Bound each owner so one giant ledger cannot stall the run.
	ownerCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := j.Dashboard.Summary(ownerCtx, ownerID, year); err != nil {
		return err
	}
	_, err := j.Dashboard.Summary(ownerCtx, ownerID, "")
	return err
}

func (j *DashboardWarmupJob) fetchOwners(ctx context.Context, ownerID int64) ([]int64, error) {
	if ownerID > 0 {
		return []int64{ownerID}, nil
	}
	if j.Pool == nil {
		return nil, errors.New("dashboard warmup: pool not configured")
	}
	rows, err := j.Pool.Query(ctx, `SELECT DISTINCT owner_id FROM bills ORDER BY owner_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	owners := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		owners = append(owners, id)
	}
	return owners, rows.Err()
}

func (j *DashboardWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDashboardWarmup))
	}
	return slog.Default().With(slog.String("job", TaskDashboardWarmup))
}

func (j *DashboardWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"

	"github.com/mason-erp/mason-erp/internal/materials"
)

// InventoryLoader reads a project's material inventory through the
// versioned cache, populating it as a side effect.
type InventoryLoader interface {
	ProjectInventory(ctx context.Context, projectID int64) ([]materials.InventoryEntry, error)
}

// InventoryWarmupJob pre-loads the inventory cache for every project
// with receipt activity so the first morning request is a cache hit.
type InventoryWarmupJob struct {
	pool   *pgxpool.Pool
	loader InventoryLoader
	logger *slog.Logger
}

// NewInventoryWarmupJob constructs the warmup job.
func NewInventoryWarmupJob(pool *pgxpool.Pool, loader InventoryLoader, logger *slog.Logger) *InventoryWarmupJob {
	return &InventoryWarmupJob{pool: pool, loader: loader, logger: logger}
}

// Handle processes TaskInventoryWarmup.
func (j *InventoryWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	rows, err := j.pool.Query(ctx, `SELECT DISTINCT project_id FROM material_receipts ORDER BY project_id`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var projectIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		projectIDs = append(projectIDs, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	var warmed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, id := range projectIDs {
		g.Go(func() error {
			if _, err := j.loader.ProjectInventory(gctx, id); err != nil {
				j.logger.Warn("inventory warmup", slog.Int64("projectId", id), slog.Any("error", err))
				return nil
			}
			warmed.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	j.logger.Info("inventory warmup done",
		slog.Int("projects", len(projectIDs)),
		slog.Int64("warmed", warmed.Load()))
	return nil
}

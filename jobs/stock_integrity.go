package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mason-erp/mason-erp/internal/observability"
	"github.com/mason-erp/mason-erp/internal/platform/db"
)

// StockIntegrityJob reconciles the denormalised material counters on
// stock_items against the receipt and usage ledgers. The counter is a
// cache of SUM(receipts) - SUM(usages); drift means a write path went
// around the service layer or a migration touched the ledgers.
type StockIntegrityJob struct {
	pool    *pgxpool.Pool
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewStockIntegrityJob constructs the reconciliation job.
func NewStockIntegrityJob(pool *pgxpool.Pool, metrics *observability.Metrics, logger *slog.Logger) *StockIntegrityJob {
	return &StockIntegrityJob{pool: pool, metrics: metrics, logger: logger}
}

const integrityQuery = `
	SELECT s.id, s.code, s.qty_on_hand, COALESCE(rcv.total, 0) - COALESCE(used.total, 0) AS computed
	FROM stock_items s
	LEFT JOIN (
		SELECT material_code, SUM(quantity) AS total
		FROM material_receipt_items
		GROUP BY material_code
	) rcv ON rcv.material_code = s.code
	LEFT JOIN (
		SELECT material_code, SUM(quantity) AS total
		FROM material_usage_items
		GROUP BY material_code
	) used ON used.material_code = s.code
	WHERE s.kind = 'MATERIAL'
	ORDER BY s.code`

type driftRow struct {
	ItemID   int64
	Code     string
	Counter  float64
	Computed float64
}

// Handle processes TaskStockIntegrity. Each drifting counter is repaired
// in its own transaction under FOR UPDATE so a concurrent receipt or
// usage commit is not clobbered.
func (j *StockIntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload StockIntegrityPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}

	drifted, scanned, err := j.scan(ctx)
	if err != nil {
		return err
	}
	if len(drifted) == 0 {
		j.logger.Info("stock integrity clean", slog.Int("scanned", scanned))
		return nil
	}
	for _, row := range drifted {
		j.logger.Warn("stock counter drift",
			slog.String("code", row.Code),
			slog.Float64("counter", row.Counter),
			slog.Float64("computed", row.Computed))
		if payload.DryRun {
			continue
		}
		if err := j.repair(ctx, row); err != nil {
			return err
		}
		j.metrics.ObserveStockRepair()
	}
	j.logger.Info("stock integrity done",
		slog.Int("scanned", scanned),
		slog.Int("drifted", len(drifted)),
		slog.Bool("dryRun", payload.DryRun))
	return nil
}

func (j *StockIntegrityJob) scan(ctx context.Context) ([]driftRow, int, error) {
	rows, err := j.pool.Query(ctx, integrityQuery)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var drifted []driftRow
	scanned := 0
	for rows.Next() {
		var row driftRow
		if err := rows.Scan(&row.ItemID, &row.Code, &row.Counter, &row.Computed); err != nil {
			return nil, 0, err
		}
		scanned++
		if row.Counter != row.Computed {
			drifted = append(drifted, row)
		}
	}
	return drifted, scanned, rows.Err()
}

func (j *StockIntegrityJob) repair(ctx context.Context, row driftRow) error {
	return db.WithTx(ctx, j.pool, func(tx pgx.Tx) error {
		// Re-read under lock; the ledgers may have moved since the scan.
		var counter, computed float64
		err := tx.QueryRow(ctx, `
		SELECT s.qty_on_hand,
			COALESCE((SELECT SUM(quantity) FROM material_receipt_items WHERE material_code = s.code), 0)
			- COALESCE((SELECT SUM(quantity) FROM material_usage_items WHERE material_code = s.code), 0)
		FROM stock_items s
		WHERE s.id = $1
		FOR UPDATE OF s`, row.ItemID).Scan(&counter, &computed)
		if err != nil {
			return err
		}
		if counter == computed {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE stock_items SET qty_on_hand = $2 WHERE id = $1`, row.ItemID, computed); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO stock_movements (item_id, delta, ref_module, ref_id, note)
			VALUES ($1, $2, 'INTEGRITY', 'stock:integrity', 'counter repaired')`,
			row.ItemID, computed-counter)
		return err
	})
}

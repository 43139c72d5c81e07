package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockIntegrity recomputes material stock counters from the
	// receipt and usage ledgers and repairs drift.
	TaskStockIntegrity = "stock:integrity"
	// TaskInventoryWarmup refreshes the cached per-project inventory.
	TaskInventoryWarmup = "materials:inventory:warmup"
)

// StockIntegrityPayload controls the reconciliation run.
type StockIntegrityPayload struct {
	// DryRun reports drift without writing repairs.
	DryRun bool `json:"dryRun"`
}

// NewStockIntegrityTask constructs the nightly reconciliation task.
func NewStockIntegrityTask(payload StockIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockIntegrity, data), nil
}

// NewInventoryWarmupTask constructs the inventory cache warmup task.
func NewInventoryWarmupTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskInventoryWarmup, nil), nil
}

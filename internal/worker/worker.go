package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/drive"
	"github.com/lzjever/mbos-wps/internal/observability"
	"github.com/lzjever/mbos-wps/internal/provision"
	"github.com/lzjever/mbos-wps/internal/store"
)

type Worker struct {
	pool    *pgxpool.Pool
	queries *store.Queries
	engine  *provision.Engine
	drive   *drive.Client
	tpl     provision.Template
	cfg     Config
	log     *zap.Logger
}

// New builds a worker. driveClient may be nil when no drive platform is
// configured; tpl is the credential/parameter template shared by every
// provisioning this worker runs.
func New(pool *pgxpool.Pool, engine *provision.Engine, driveClient *drive.Client, tpl provision.Template, cfg Config, log *zap.Logger) *Worker {
	return &Worker{
		pool:    pool,
		queries: store.New(pool),
		engine:  engine,
		drive:   driveClient,
		tpl:     tpl,
		cfg:     cfg,
		log:     log,
	}
}

func (w *Worker) Run(ctx context.Context) {
	w.log.Info("worker started")
	for {
		select {
		case <-ctx.Done():
			w.log.Info("worker stopping")
			return
		default:
		}

		task, err := w.queries.DequeueTask(ctx)
		if err != nil {
			// No task available
			observability.DequeueEmptyTotal.Inc()
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.cfg.IdleBackoff):
				continue
			}
		}

		log := w.log.With(
			zap.String("task_id", task.TaskID),
			zap.String("provisioning_id", task.ProvisioningID),
			zap.String("op", task.Op),
			zap.Int("attempt", int(task.Attempt)),
		)
		log.Info("task dequeued")

		// Check cancel_requested
		if task.CancelRequested {
			errJSON, _ := json.Marshal(map[string]string{"error": "canceled"})
			_ = w.queries.CompleteTask(ctx, store.CompleteTaskParams{
				TaskID: task.TaskID,
				Status: string(core.TaskCanceled),
				Error:  errJSON,
			})
			log.Info("task canceled")
			continue
		}

		// Execute within advisory lock scope
		w.executeWithLock(ctx, &task, log)

		// Update queue depth metric
		if depth, err := w.queries.GetQueueDepth(ctx); err == nil {
			observability.TaskQueueDepth.Set(float64(depth))
		}
	}
}

func (w *Worker) executeWithLock(ctx context.Context, task *store.WpsTask, log *zap.Logger) {
	// Use a transaction for advisory lock scope
	tx, err := w.pool.Begin(ctx)
	if err != nil {
		w.failTask(ctx, task, err, log)
		return
	}
	defer tx.Rollback(ctx)

	qtx := w.queries.WithTx(tx)

	// Acquire provisioning lock
	lockStart := time.Now()
	if err := qtx.AcquireProvisioningLock(ctx, task.ProvisioningID); err != nil {
		w.failTask(ctx, task, err, log)
		return
	}
	observability.LockWaitSeconds.Observe(time.Since(lockStart).Seconds())

	// Move the provisioning to RUNNING while the lock is held, so two
	// workers racing on the same provisioning agree on who went first.
	op := core.TaskOp(task.Op)
	if op == core.OpProvisionWorkspace || op == core.OpImportWorkspace {
		if err := qtx.UpdateProvisioningState(ctx, store.UpdateProvisioningStateParams{
			ProvisioningID: task.ProvisioningID,
			State:          string(core.ProvisioningRunning),
		}); err != nil {
			w.failTask(ctx, task, err, log)
			return
		}
		observability.ProvisioningStateTransitions.WithLabelValues(
			string(core.ProvisioningPending), string(core.ProvisioningRunning)).Inc()
	}

	if err := tx.Commit(ctx); err != nil {
		w.failTask(ctx, task, err, log)
		return
	}

	// Now run the remote steps (outside lock)
	w.dispatch(ctx, task, log)
}

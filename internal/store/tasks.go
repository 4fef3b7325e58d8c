package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const taskColumns = `task_id, provisioning_id, op, status, idempotency_key, request_hash, created_at, started_at, ended_at, attempt, max_attempts, next_run_at, timeout_seconds, cancel_requested, params, result, error`

func scanTask(row pgx.Row) (WpsTask, error) {
	var t WpsTask
	err := row.Scan(
		&t.TaskID,
		&t.ProvisioningID,
		&t.Op,
		&t.Status,
		&t.IdempotencyKey,
		&t.RequestHash,
		&t.CreatedAt,
		&t.StartedAt,
		&t.EndedAt,
		&t.Attempt,
		&t.MaxAttempts,
		&t.NextRunAt,
		&t.TimeoutSeconds,
		&t.CancelRequested,
		&t.Params,
		&t.Result,
		&t.Error,
	)
	return t, err
}

type CreateTaskParams struct {
	TaskID         string
	ProvisioningID string
	Op             string
	IdempotencyKey string
	RequestHash    string
	Params         []byte
	MaxAttempts    int32
	TimeoutSeconds int32
}

func (q *Queries) CreateTask(ctx context.Context, arg CreateTaskParams) (WpsTask, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO wps.tasks (task_id, provisioning_id, op, idempotency_key, request_hash, params, max_attempts, timeout_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+taskColumns,
		arg.TaskID, arg.ProvisioningID, arg.Op, arg.IdempotencyKey,
		arg.RequestHash, arg.Params, arg.MaxAttempts, arg.TimeoutSeconds)
	return scanTask(row)
}

func (q *Queries) GetTask(ctx context.Context, taskID string) (WpsTask, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM wps.tasks
		WHERE task_id = $1`,
		taskID)
	return scanTask(row)
}

type GetTaskByIdempotencyKeyParams struct {
	Op             string
	IdempotencyKey string
}

func (q *Queries) GetTaskByIdempotencyKey(ctx context.Context, arg GetTaskByIdempotencyKeyParams) (WpsTask, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+taskColumns+`
		FROM wps.tasks
		WHERE op = $1 AND idempotency_key = $2
		ORDER BY created_at DESC
		LIMIT 1`,
		arg.Op, arg.IdempotencyKey)
	return scanTask(row)
}

type ListTasksParams struct {
	Limit          int32
	ProvisioningID pgtype.Text
	Status         pgtype.Text
	Op             pgtype.Text
	Cursor         pgtype.Timestamptz
}

func (q *Queries) ListTasks(ctx context.Context, arg ListTasksParams) ([]WpsTask, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+taskColumns+`
		FROM wps.tasks
		WHERE ($2::text IS NULL OR provisioning_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		  AND ($4::text IS NULL OR op = $4)
		  AND ($5::timestamptz IS NULL OR created_at < $5)
		ORDER BY created_at DESC
		LIMIT $1`,
		arg.Limit, arg.ProvisioningID, arg.Status, arg.Op, arg.Cursor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WpsTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DequeueTask claims the oldest due pending task. SKIP LOCKED keeps
// concurrent workers from fighting over the same row; pgx.ErrNoRows
// means the queue is idle.
func (q *Queries) DequeueTask(ctx context.Context) (WpsTask, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE wps.tasks
		SET status = 'RUNNING', attempt = attempt + 1, started_at = now()
		WHERE task_id = (
			SELECT task_id
			FROM wps.tasks
			WHERE status = 'PENDING' AND next_run_at <= now()
			ORDER BY next_run_at
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+taskColumns)
	return scanTask(row)
}

type CompleteTaskParams struct {
	TaskID string
	Status string
	Result []byte
	Error  []byte
}

func (q *Queries) CompleteTask(ctx context.Context, arg CompleteTaskParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE wps.tasks
		SET status = $2, result = $3, error = $4, ended_at = now()
		WHERE task_id = $1`,
		arg.TaskID, arg.Status, arg.Result, arg.Error)
	return err
}

type FailTaskParams struct {
	TaskID string
	Error  []byte
}

// FailTask returns the task to the queue with a linear retry backoff.
func (q *Queries) FailTask(ctx context.Context, arg FailTaskParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE wps.tasks
		SET status = 'PENDING', error = $2,
		    next_run_at = now() + (interval '30 seconds' * attempt)
		WHERE task_id = $1`,
		arg.TaskID, arg.Error)
	return err
}

type MarkTaskDeadParams struct {
	TaskID string
	Error  []byte
}

func (q *Queries) MarkTaskDead(ctx context.Context, arg MarkTaskDeadParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE wps.tasks
		SET status = 'DEAD', error = $2, ended_at = now()
		WHERE task_id = $1`,
		arg.TaskID, arg.Error)
	return err
}

func (q *Queries) CancelPendingTask(ctx context.Context, taskID string) (WpsTask, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE wps.tasks
		SET status = 'CANCELED', ended_at = now()
		WHERE task_id = $1 AND status = 'PENDING'
		RETURNING `+taskColumns,
		taskID)
	return scanTask(row)
}

func (q *Queries) RequestCancelRunningTask(ctx context.Context, taskID string) (WpsTask, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE wps.tasks
		SET cancel_requested = true
		WHERE task_id = $1 AND status = 'RUNNING'
		RETURNING `+taskColumns,
		taskID)
	return scanTask(row)
}

func (q *Queries) CountActiveTasks(ctx context.Context, provisioningID string) (int64, error) {
	var count int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*)
		FROM wps.tasks
		WHERE provisioning_id = $1 AND status IN ('PENDING', 'RUNNING')`,
		provisioningID).Scan(&count)
	return count, err
}

func (q *Queries) GetQueueDepth(ctx context.Context) (int64, error) {
	var depth int64
	err := q.db.QueryRow(ctx, `
		SELECT count(*)
		FROM wps.tasks
		WHERE status = 'PENDING'`).Scan(&depth)
	return depth, err
}

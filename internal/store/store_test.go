package store

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("wps"),
		postgres.WithUsername("wps"),
		postgres.WithPassword("wps_pass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections"),
		),
	)
	if err != nil {
		t.Fatalf("failed to start container: %s", err)
	}
	defer pgContainer.Terminate(ctx)

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %s", err)
	}

	pool, err := NewPool(ctx, connStr)
	if err != nil {
		t.Fatalf("failed to connect: %s", err)
	}
	defer pool.Close()

	// Run migrations manually or use embed
	_, err = pool.Exec(ctx, `
		CREATE SCHEMA IF NOT EXISTS wps;
		CREATE TABLE wps.provisionings (
			provisioning_id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			template_group_id TEXT NOT NULL,
			state TEXT NOT NULL DEFAULT 'PENDING',
			workspace_id TEXT,
			dataset_id TEXT,
			datasource_id TEXT,
			folder_id TEXT,
			refresh_completed BOOLEAN,
			request JSONB NOT NULL DEFAULT '{}'::jsonb,
			result JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE wps.tasks (
			task_id TEXT PRIMARY KEY,
			provisioning_id TEXT NOT NULL REFERENCES wps.provisionings(provisioning_id),
			op TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			idempotency_key TEXT NOT NULL,
			request_hash TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			started_at TIMESTAMPTZ,
			ended_at TIMESTAMPTZ,
			attempt INT NOT NULL DEFAULT 0,
			max_attempts INT NOT NULL DEFAULT 5,
			next_run_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			timeout_seconds INT NOT NULL DEFAULT 300,
			cancel_requested BOOLEAN NOT NULL DEFAULT false,
			params JSONB NOT NULL DEFAULT '{}'::jsonb,
			result JSONB,
			error JSONB
		);
		CREATE TABLE wps.audit (
			id BIGSERIAL PRIMARY KEY,
			provisioning_id TEXT,
			actor JSONB NOT NULL DEFAULT '{}'::jsonb,
			action TEXT NOT NULL,
			task_id TEXT,
			payload JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`)
	if err != nil {
		t.Fatalf("failed to run migrations: %s", err)
	}

	queries := New(pool)

	t.Run("CreateProvisioning", func(t *testing.T) {
		p, err := queries.CreateProvisioning(ctx, CreateProvisioningParams{
			ProvisioningID:  "prov-1",
			Name:            "Sales",
			TemplateGroupID: "tpl-1",
			Request:         []byte(`{"name":"Sales"}`),
		})
		if err != nil {
			t.Fatalf("failed to create provisioning: %s", err)
		}
		if p.ProvisioningID != "prov-1" {
			t.Errorf("expected provisioning_id prov-1, got %s", p.ProvisioningID)
		}
		if p.State != "PENDING" {
			t.Errorf("expected state PENDING, got %s", p.State)
		}
	})

	t.Run("GetProvisioning", func(t *testing.T) {
		p, err := queries.GetProvisioning(ctx, "prov-1")
		if err != nil {
			t.Fatalf("failed to get provisioning: %s", err)
		}
		if p.Name != "Sales" || p.TemplateGroupID != "tpl-1" {
			t.Errorf("unexpected provisioning: %+v", p)
		}
	})

	t.Run("CreateTask", func(t *testing.T) {
		task, err := queries.CreateTask(ctx, CreateTaskParams{
			TaskID:         "task-1",
			ProvisioningID: "prov-1",
			Op:             "provision_workspace",
			IdempotencyKey: "key-1",
			RequestHash:    "hash-1",
			Params:         []byte("{}"),
			MaxAttempts:    5,
			TimeoutSeconds: 1800,
		})
		if err != nil {
			t.Fatalf("failed to create task: %s", err)
		}
		if task.Status != "PENDING" {
			t.Errorf("expected status PENDING, got %s", task.Status)
		}
	})

	t.Run("GetTaskByIdempotencyKey", func(t *testing.T) {
		task, err := queries.GetTaskByIdempotencyKey(ctx, GetTaskByIdempotencyKeyParams{
			Op:             "provision_workspace",
			IdempotencyKey: "key-1",
		})
		if err != nil {
			t.Fatalf("failed to get task by idempotency key: %s", err)
		}
		if task.TaskID != "task-1" {
			t.Errorf("expected task_id task-1, got %s", task.TaskID)
		}
	})

	t.Run("DequeueAndComplete", func(t *testing.T) {
		task, err := queries.DequeueTask(ctx)
		if err != nil {
			t.Fatalf("failed to dequeue: %s", err)
		}
		if task.TaskID != "task-1" || task.Status != "RUNNING" || task.Attempt != 1 {
			t.Errorf("unexpected dequeued task: %+v", task)
		}

		err = queries.CompleteTask(ctx, CompleteTaskParams{
			TaskID: "task-1",
			Status: "SUCCEEDED",
			Result: []byte(`{"workspace_id":"g-100"}`),
		})
		if err != nil {
			t.Fatalf("failed to complete task: %s", err)
		}

		done, err := queries.GetTask(ctx, "task-1")
		if err != nil {
			t.Fatalf("failed to get task: %s", err)
		}
		if done.Status != "SUCCEEDED" || !done.EndedAt.Valid {
			t.Errorf("expected finished task, got %+v", done)
		}

		if _, err := queries.DequeueTask(ctx); err == nil {
			t.Error("expected empty queue")
		}
	})

	t.Run("FailTaskRequeuesWithBackoff", func(t *testing.T) {
		_, err := queries.CreateTask(ctx, CreateTaskParams{
			TaskID:         "task-2",
			ProvisioningID: "prov-1",
			Op:             "refresh_dataset",
			IdempotencyKey: "key-2",
			RequestHash:    "hash-2",
			Params:         []byte("{}"),
			MaxAttempts:    3,
			TimeoutSeconds: 900,
		})
		if err != nil {
			t.Fatalf("failed to create task: %s", err)
		}

		task, err := queries.DequeueTask(ctx)
		if err != nil {
			t.Fatalf("failed to dequeue: %s", err)
		}
		if task.TaskID != "task-2" {
			t.Fatalf("expected task-2, got %s", task.TaskID)
		}

		err = queries.FailTask(ctx, FailTaskParams{TaskID: "task-2", Error: []byte(`{"error":"boom"}`)})
		if err != nil {
			t.Fatalf("failed to fail task: %s", err)
		}

		failed, err := queries.GetTask(ctx, "task-2")
		if err != nil {
			t.Fatalf("failed to get task: %s", err)
		}
		if failed.Status != "PENDING" || failed.Attempt != 1 {
			t.Errorf("expected requeued task, got %+v", failed)
		}
		// The retry is scheduled in the future, so the queue reports
		// depth but yields nothing yet.
		if depth, _ := queries.GetQueueDepth(ctx); depth != 1 {
			t.Errorf("expected queue depth 1, got %d", depth)
		}
		if _, err := queries.DequeueTask(ctx); err == nil {
			t.Error("expected backoff to delay the retry")
		}
	})

	t.Run("MarkTaskDead", func(t *testing.T) {
		err := queries.MarkTaskDead(ctx, MarkTaskDeadParams{TaskID: "task-2", Error: []byte(`{"error":"gave up"}`)})
		if err != nil {
			t.Fatalf("failed to mark task dead: %s", err)
		}
		task, err := queries.GetTask(ctx, "task-2")
		if err != nil {
			t.Fatalf("failed to get task: %s", err)
		}
		if task.Status != "DEAD" {
			t.Errorf("expected DEAD, got %s", task.Status)
		}
	})

	t.Run("CancelPendingTask", func(t *testing.T) {
		_, err := queries.CreateTask(ctx, CreateTaskParams{
			TaskID:         "task-3",
			ProvisioningID: "prov-1",
			Op:             "delete_workspace",
			IdempotencyKey: "key-3",
			RequestHash:    "hash-3",
			Params:         []byte("{}"),
			MaxAttempts:    5,
			TimeoutSeconds: 300,
		})
		if err != nil {
			t.Fatalf("failed to create task: %s", err)
		}

		task, err := queries.CancelPendingTask(ctx, "task-3")
		if err != nil {
			t.Fatalf("failed to cancel task: %s", err)
		}
		if task.Status != "CANCELED" {
			t.Errorf("expected CANCELED, got %s", task.Status)
		}
		if _, err := queries.CancelPendingTask(ctx, "task-3"); err == nil {
			t.Error("expected no pending task to cancel")
		}
	})

	t.Run("CountActiveTasks", func(t *testing.T) {
		count, err := queries.CountActiveTasks(ctx, "prov-1")
		if err != nil {
			t.Fatalf("failed to count tasks: %s", err)
		}
		if count != 0 {
			t.Errorf("expected 0 active tasks, got %d", count)
		}
	})

	t.Run("UpdateProvisioningRemote", func(t *testing.T) {
		err := queries.UpdateProvisioningRemote(ctx, UpdateProvisioningRemoteParams{
			ProvisioningID:   "prov-1",
			WorkspaceID:      pgtype.Text{String: "g-100", Valid: true},
			DatasetID:        pgtype.Text{String: "ds-9", Valid: true},
			DatasourceID:     pgtype.Text{String: "dsrc-5", Valid: true},
			FolderID:         pgtype.Text{String: "f-1", Valid: true},
			RefreshCompleted: pgtype.Bool{Bool: true, Valid: true},
			Result:           []byte(`{"workspace_id":"g-100"}`),
		})
		if err != nil {
			t.Fatalf("failed to update remote ids: %s", err)
		}
		err = queries.UpdateProvisioningState(ctx, UpdateProvisioningStateParams{
			ProvisioningID: "prov-1",
			State:          "READY",
		})
		if err != nil {
			t.Fatalf("failed to update state: %s", err)
		}

		p, err := queries.GetProvisioning(ctx, "prov-1")
		if err != nil {
			t.Fatalf("failed to get provisioning: %s", err)
		}
		if p.State != "READY" || !p.WorkspaceID.Valid || p.WorkspaceID.String != "g-100" {
			t.Errorf("unexpected provisioning: %+v", p)
		}
		if !p.RefreshCompleted.Valid || !p.RefreshCompleted.Bool {
			t.Errorf("expected refresh_completed true, got %+v", p.RefreshCompleted)
		}
	})

	t.Run("ListProvisioningsByState", func(t *testing.T) {
		_, err := queries.CreateProvisioning(ctx, CreateProvisioningParams{
			ProvisioningID:  "prov-2",
			Name:            "Inventory",
			TemplateGroupID: "tpl-1",
			Request:         []byte("{}"),
		})
		if err != nil {
			t.Fatalf("failed to create provisioning: %s", err)
		}

		ready, err := queries.ListProvisionings(ctx, ListProvisioningsParams{
			Limit: 10,
			State: pgtype.Text{String: "READY", Valid: true},
		})
		if err != nil {
			t.Fatalf("failed to list: %s", err)
		}
		if len(ready) != 1 || ready[0].ProvisioningID != "prov-1" {
			t.Errorf("expected [prov-1], got %+v", ready)
		}

		all, err := queries.ListProvisionings(ctx, ListProvisioningsParams{Limit: 10})
		if err != nil {
			t.Fatalf("failed to list: %s", err)
		}
		if len(all) != 2 {
			t.Errorf("expected 2 provisionings, got %d", len(all))
		}
	})

	t.Run("MarkProvisioningDeleted", func(t *testing.T) {
		p, err := queries.MarkProvisioningDeleted(ctx, "prov-2")
		if err != nil {
			t.Fatalf("failed to mark deleted: %s", err)
		}
		if p.State != "DELETED" {
			t.Errorf("expected DELETED, got %s", p.State)
		}
	})

	t.Run("InsertAudit", func(t *testing.T) {
		entry, err := queries.InsertAudit(ctx, InsertAuditParams{
			ProvisioningID: pgtype.Text{String: "prov-1", Valid: true},
			Actor:          []byte(`{"source":"api"}`),
			Action:         "provisioning.create",
			TaskID:         pgtype.Text{String: "task-1", Valid: true},
			Payload:        []byte(`{"name":"Sales"}`),
		})
		if err != nil {
			t.Fatalf("failed to insert audit: %s", err)
		}
		if entry.ID == 0 || entry.Action != "provisioning.create" {
			t.Errorf("unexpected audit row: %+v", entry)
		}

		entries, err := queries.ListAudit(ctx, ListAuditParams{
			ProvisioningID: pgtype.Text{String: "prov-1", Valid: true},
			Limit:          10,
		})
		if err != nil {
			t.Fatalf("failed to list audit: %s", err)
		}
		if len(entries) != 1 {
			t.Errorf("expected 1 audit entry, got %d", len(entries))
		}
	})
}

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/observability"
	"github.com/lzjever/mbos-wps/internal/provision"
	"github.com/lzjever/mbos-wps/internal/store"
)

// provisionRequest mirrors the API create-request payload carried in
// the task params.
type provisionRequest struct {
	Name             string                      `json:"name"`
	TemplateGroupID  string                      `json:"template_group_id"`
	PackagePath      string                      `json:"package_path"`
	WorkspaceID      string                      `json:"workspace_id,omitempty"`
	Tenant           provision.TenantCredentials `json:"tenant"`
	ScheduleTimes    []string                    `json:"schedule_times,omitempty"`
	ScheduleDays     []string                    `json:"schedule_days,omitempty"`
	CapacityID       string                      `json:"capacity_id,omitempty"`
	ImportFolderPath string                      `json:"import_folder_path,omitempty"`
}

func (w *Worker) dispatch(ctx context.Context, task *store.WpsTask, log *zap.Logger) {
	start := time.Now()
	defer func() {
		observability.TaskDuration.WithLabelValues(task.Op).Observe(time.Since(start).Seconds())
	}()

	if task.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(task.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	switch core.TaskOp(task.Op) {
	case core.OpProvisionWorkspace:
		w.runProvision(ctx, task, log, false)
	case core.OpImportWorkspace:
		w.runProvision(ctx, task, log, true)
	case core.OpRefreshDataset:
		w.runRefresh(ctx, task, log)
	case core.OpDeleteWorkspace:
		w.runDelete(ctx, task, log)
	default:
		w.failTask(ctx, task, fmt.Errorf("unknown op: %s", task.Op), log)
	}
}

func (w *Worker) runProvision(ctx context.Context, task *store.WpsTask, log *zap.Logger, intoExisting bool) {
	var req provisionRequest
	if err := json.Unmarshal(task.Params, &req); err != nil {
		w.failTask(ctx, task, fmt.Errorf("decode params: %w", err), log)
		return
	}

	// Resolve the destination folder first so its id is recorded even if
	// the provisioning itself fails and retries.
	var folderID string
	if req.ImportFolderPath != "" {
		if w.drive == nil {
			w.failTask(ctx, task, fmt.Errorf("import_folder_path set but no drive platform configured"), log)
			return
		}
		folder, err := w.drive.GetOrCreateFolderByPath(ctx, req.ImportFolderPath)
		if err != nil {
			w.failTask(ctx, task, fmt.Errorf("resolve folder: %w", err), log)
			return
		}
		folderID = folder.ID
	}

	cfg, err := provision.NewConfig(provision.ConfigSpec{
		Name:            req.Name,
		TemplateGroupID: req.TemplateGroupID,
		PackagePath:     req.PackagePath,
		Loader:          w.loadPackage,
		Tenant:          req.Tenant,
		Template:        w.tpl,
		ScheduleTimes:   req.ScheduleTimes,
		ScheduleDays:    req.ScheduleDays,
		CapacityID:      req.CapacityID,
		ImportFolderID:  folderID,
	})
	if err != nil {
		w.failTask(ctx, task, err, log)
		return
	}

	var result *core.ProvisioningResult
	if intoExisting {
		result, err = w.engine.ImportToWorkspace(ctx, req.WorkspaceID, cfg)
	} else {
		result, err = w.engine.InitializeFromTemplate(ctx, cfg)
	}
	if err != nil {
		w.failTask(ctx, task, err, log)
		return
	}

	w.onProvisioned(ctx, task, result, folderID, log)
}

func (w *Worker) onProvisioned(ctx context.Context, task *store.WpsTask, result *core.ProvisioningResult, folderID string, log *zap.Logger) {
	resultJSON, _ := json.Marshal(result)

	state := core.ProvisioningReady
	if !result.RefreshCompleted {
		state = core.ProvisioningPartial
	}
	_ = w.queries.UpdateProvisioningRemote(ctx, store.UpdateProvisioningRemoteParams{
		ProvisioningID:   task.ProvisioningID,
		WorkspaceID:      textFromString(result.WorkspaceID),
		DatasetID:        textFromString(result.DatasetID),
		DatasourceID:     textFromString(result.DatasourceID),
		FolderID:         textFromString(folderID),
		RefreshCompleted: pgtype.Bool{Bool: result.RefreshCompleted, Valid: true},
		Result:           resultJSON,
	})
	_ = w.queries.UpdateProvisioningState(ctx, store.UpdateProvisioningStateParams{
		ProvisioningID: task.ProvisioningID,
		State:          string(state),
	})
	observability.ProvisioningStateTransitions.WithLabelValues(
		string(core.ProvisioningRunning), string(state)).Inc()

	_ = w.queries.CompleteTask(ctx, store.CompleteTaskParams{
		TaskID: task.TaskID,
		Status: string(core.TaskSucceeded),
		Result: resultJSON,
	})
	observability.TaskTotal.WithLabelValues(task.Op, string(core.TaskSucceeded)).Inc()
	log.Info("task succeeded")
}

func (w *Worker) runRefresh(ctx context.Context, task *store.WpsTask, log *zap.Logger) {
	var params map[string]string
	_ = json.Unmarshal(task.Params, &params)

	completed, err := w.engine.TriggerRefresh(ctx, params["workspace_id"], params["dataset_id"])
	if err != nil {
		w.failTask(ctx, task, err, log)
		return
	}

	// Mirror the refresh outcome onto the provisioning row. A timed-out
	// poll downgrades READY to PARTIAL and a finished one restores it.
	state := core.ProvisioningReady
	if !completed {
		state = core.ProvisioningPartial
	}
	_ = w.queries.UpdateProvisioningRefresh(ctx, store.UpdateProvisioningRefreshParams{
		ProvisioningID:   task.ProvisioningID,
		RefreshCompleted: pgtype.Bool{Bool: completed, Valid: true},
	})
	if p, perr := w.queries.GetProvisioning(ctx, task.ProvisioningID); perr == nil && p.State != string(state) {
		_ = w.queries.UpdateProvisioningState(ctx, store.UpdateProvisioningStateParams{
			ProvisioningID: task.ProvisioningID,
			State:          string(state),
		})
		observability.ProvisioningStateTransitions.WithLabelValues(p.State, string(state)).Inc()
	}

	result, _ := json.Marshal(map[string]bool{"refresh_completed": completed})
	_ = w.queries.CompleteTask(ctx, store.CompleteTaskParams{
		TaskID: task.TaskID,
		Status: string(core.TaskSucceeded),
		Result: result,
	})
	observability.TaskTotal.WithLabelValues(task.Op, string(core.TaskSucceeded)).Inc()
	log.Info("task succeeded")
}

func (w *Worker) runDelete(ctx context.Context, task *store.WpsTask, log *zap.Logger) {
	var params map[string]string
	_ = json.Unmarshal(task.Params, &params)

	// A provisioning that never reached the platform has nothing remote
	// to tear down.
	if wsID := params["workspace_id"]; wsID != "" {
		if err := w.engine.DeleteWorkspace(ctx, wsID); err != nil {
			w.failTask(ctx, task, err, log)
			return
		}
	}
	if folderID := params["folder_id"]; folderID != "" && w.drive != nil {
		if err := w.drive.DeleteRecursive(ctx, folderID); err != nil {
			w.failTask(ctx, task, err, log)
			return
		}
	}

	old, _ := w.queries.GetProvisioning(ctx, task.ProvisioningID)
	if _, err := w.queries.MarkProvisioningDeleted(ctx, task.ProvisioningID); err != nil {
		w.failTask(ctx, task, err, log)
		return
	}
	observability.ProvisioningStateTransitions.WithLabelValues(
		old.State, string(core.ProvisioningDeleted)).Inc()

	result, _ := json.Marshal(map[string]string{"workspace_id": params["workspace_id"]})
	_ = w.queries.CompleteTask(ctx, store.CompleteTaskParams{
		TaskID: task.TaskID,
		Status: string(core.TaskSucceeded),
		Result: result,
	})
	observability.TaskTotal.WithLabelValues(task.Op, string(core.TaskSucceeded)).Inc()
	log.Info("task succeeded")
}

func (w *Worker) failTask(ctx context.Context, task *store.WpsTask, taskErr error, log *zap.Logger) {
	errJSON, _ := json.Marshal(map[string]string{"error": taskErr.Error()})

	if task.Attempt >= task.MaxAttempts {
		_ = w.queries.MarkTaskDead(ctx, store.MarkTaskDeadParams{TaskID: task.TaskID, Error: errJSON})
		observability.TaskTotal.WithLabelValues(task.Op, string(core.TaskDead)).Inc()
		// A dead provisioning attempt leaves the record FAILED.
		op := core.TaskOp(task.Op)
		if op == core.OpProvisionWorkspace || op == core.OpImportWorkspace {
			_ = w.queries.UpdateProvisioningState(ctx, store.UpdateProvisioningStateParams{
				ProvisioningID: task.ProvisioningID,
				State:          string(core.ProvisioningFailed),
			})
			observability.ProvisioningStateTransitions.WithLabelValues(
				string(core.ProvisioningRunning), string(core.ProvisioningFailed)).Inc()
		}
		log.Error("task dead", zap.Error(taskErr))
	} else {
		_ = w.queries.FailTask(ctx, store.FailTaskParams{TaskID: task.TaskID, Error: errJSON})
		observability.TaskTotal.WithLabelValues(task.Op, string(core.TaskFailed)).Inc()
		observability.TaskRetryTotal.WithLabelValues(task.Op).Inc()
		log.Warn("task failed, will retry", zap.Error(taskErr), zap.Int("attempt", int(task.Attempt)))
	}
}

// loadPackage reads a template package from under the worker's template
// root. Locators are treated as relative paths; anything trying to
// escape the root is squashed by the leading-slash clean.
func (w *Worker) loadPackage(_ context.Context, locator string) ([]byte, error) {
	path := filepath.Join(w.cfg.TemplateRootDir, filepath.Clean("/"+locator))
	return os.ReadFile(path)
}

func textFromString(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

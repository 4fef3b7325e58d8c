package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/provision"
	"github.com/lzjever/mbos-wps/internal/store"
)

// Per-op task budgets. Provisioning covers an import plus the refresh
// poll, so it gets the widest window.
const (
	provisionTimeoutSeconds = 1800
	refreshTimeoutSeconds   = 900
	deleteTimeoutSeconds    = 300
	defaultMaxAttempts      = 5
)

type CreateProvisioningRequest struct {
	Name            string `json:"name"`
	TemplateGroupID string `json:"template_group_id"`
	PackagePath     string `json:"package_path"`
	// WorkspaceID switches the request from creating a fresh workspace
	// to importing the template into an existing one.
	WorkspaceID      string                      `json:"workspace_id,omitempty"`
	Tenant           provision.TenantCredentials `json:"tenant"`
	ScheduleTimes    []string                    `json:"schedule_times,omitempty"`
	ScheduleDays     []string                    `json:"schedule_days,omitempty"`
	CapacityID       string                      `json:"capacity_id,omitempty"`
	ImportFolderPath string                      `json:"import_folder_path,omitempty"`
}

type ProvisioningResponse struct {
	ProvisioningID   string                 `json:"provisioning_id"`
	Name             string                 `json:"name"`
	TemplateGroupID  string                 `json:"template_group_id"`
	State            string                 `json:"state"`
	WorkspaceID      string                 `json:"workspace_id,omitempty"`
	DatasetID        string                 `json:"dataset_id,omitempty"`
	DatasourceID     string                 `json:"datasource_id,omitempty"`
	FolderID         string                 `json:"folder_id,omitempty"`
	RefreshCompleted *bool                  `json:"refresh_completed,omitempty"`
	Result           map[string]interface{} `json:"result,omitempty"`
	CreatedAt        string                 `json:"created_at"`
	UpdatedAt        string                 `json:"updated_at"`
}

// ListProvisionings lists provisionings with pagination and an optional
// state filter.
func (a *API) ListProvisionings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit := parseLimit(r.URL.Query().Get("limit"), 20, 100)
	state := r.URL.Query().Get("state")
	cursor := parseCursor(r.URL.Query().Get("cursor"))

	provisionings, err := a.queries.ListProvisionings(ctx, store.ListProvisioningsParams{
		Limit:  int32(limit),
		State:  textFromString(state),
		Cursor: cursor,
	})
	if err != nil {
		a.log.Error("list provisionings failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list provisionings"))
		return
	}

	resp := make([]ProvisioningResponse, len(provisionings))
	for i, p := range provisionings {
		resp[i] = provisioningToResponse(p)
	}

	// Build next cursor
	var nextCursor string
	if len(provisionings) == limit {
		last := provisionings[len(provisionings)-1]
		nextCursor = encodeCursor(last.CreatedAt)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"provisionings": resp,
		"next_cursor":   nextCursor,
	})
}

// GetProvisioning gets a single provisioning by id.
func (a *API) GetProvisioning(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provisioningID := chi.URLParam(r, "provisioning_id")

	p, err := a.queries.GetProvisioning(ctx, provisioningID)
	if err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "provisioning not found"))
		return
	}

	WriteJSON(w, http.StatusOK, provisioningToResponse(p))
}

// CreateProvisioning accepts a provisioning request and enqueues the
// matching task (async).
func (a *API) CreateProvisioning(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// Check Idempotency-Key header
	idempotencyKey := r.Header.Get("Idempotency-Key")
	if idempotencyKey == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "Idempotency-Key header required"))
		return
	}

	var req CreateProvisioningRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "invalid request body"))
		return
	}

	// Validate request
	if req.Name == "" || req.TemplateGroupID == "" || req.PackagePath == "" {
		WriteError(w, core.NewAppError(core.ErrBadRequest, "name, template_group_id, and package_path are required"))
		return
	}

	// A request naming an existing workspace imports into it instead of
	// creating a new one.
	op := core.OpProvisionWorkspace
	if req.WorkspaceID != "" {
		op = core.OpImportWorkspace
	}

	// Compute request hash
	body, _ := json.Marshal(req)
	requestHash := core.ComputeRequestHash(body, "POST", "/v1/provisionings")

	// Check idempotency
	existingTask, _ := a.queries.GetTaskByIdempotencyKey(ctx, store.GetTaskByIdempotencyKeyParams{
		Op:             string(op),
		IdempotencyKey: idempotencyKey,
	})
	if existingTask.TaskID != "" {
		if existingTask.RequestHash == requestHash {
			WriteAccepted(w, existingTask.TaskID, "/v1/tasks/")
			return
		}
		WriteError(w, core.NewAppError(core.ErrConflictIdempotent, "idempotency key mismatch"))
		return
	}

	// Create provisioning record (PENDING state)
	provisioningID := core.NewID()
	_, err := a.queries.CreateProvisioning(ctx, store.CreateProvisioningParams{
		ProvisioningID:  provisioningID,
		Name:            req.Name,
		TemplateGroupID: req.TemplateGroupID,
		Request:         body,
	})
	if err != nil {
		a.log.Error("create provisioning failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to create provisioning"))
		return
	}

	// Create the provisioning task; the worker decodes the full request
	// from the task params.
	taskID := core.NewID()
	_, err = a.queries.CreateTask(ctx, store.CreateTaskParams{
		TaskID:         taskID,
		ProvisioningID: provisioningID,
		Op:             string(op),
		IdempotencyKey: idempotencyKey,
		RequestHash:    requestHash,
		Params:         body,
		MaxAttempts:    defaultMaxAttempts,
		TimeoutSeconds: provisionTimeoutSeconds,
	})
	if err != nil {
		a.log.Error("create task failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to create task"))
		return
	}

	// Write audit log
	_ = a.writeAudit(ctx, provisioningID, "provisioning.create", &taskID, req)

	WriteAccepted(w, taskID, "/v1/tasks/")
}

// RefreshProvisioning enqueues a dataset refresh for an operated
// provisioning.
func (a *API) RefreshProvisioning(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provisioningID := chi.URLParam(r, "provisioning_id")

	p, err := a.queries.GetProvisioning(ctx, provisioningID)
	if err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "provisioning not found"))
		return
	}

	if p.State != string(core.ProvisioningReady) && p.State != string(core.ProvisioningPartial) {
		WriteError(w, core.NewAppError(core.ErrPreconditionFailed, "provisioning is not in a refreshable state"))
		return
	}

	idempotencyKey := core.NewID()
	taskID := core.NewID()
	params, _ := json.Marshal(map[string]string{
		"workspace_id": p.WorkspaceID.String,
		"dataset_id":   p.DatasetID.String,
	})
	requestHash := core.ComputeRequestHash(params, "POST", "/v1/provisionings/"+provisioningID+"/refresh")

	_, err = a.queries.CreateTask(ctx, store.CreateTaskParams{
		TaskID:         taskID,
		ProvisioningID: provisioningID,
		Op:             string(core.OpRefreshDataset),
		IdempotencyKey: idempotencyKey,
		RequestHash:    requestHash,
		Params:         params,
		MaxAttempts:    defaultMaxAttempts,
		TimeoutSeconds: refreshTimeoutSeconds,
	})
	if err != nil {
		a.log.Error("create refresh task failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to create task"))
		return
	}

	_ = a.writeAudit(ctx, provisioningID, "provisioning.refresh", &taskID, nil)

	WriteAccepted(w, taskID, "/v1/tasks/")
}

// DeleteProvisioning enqueues workspace decommissioning (async).
func (a *API) DeleteProvisioning(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provisioningID := chi.URLParam(r, "provisioning_id")

	p, err := a.queries.GetProvisioning(ctx, provisioningID)
	if err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "provisioning not found"))
		return
	}

	if p.State == string(core.ProvisioningDeleted) {
		// Idempotent - already deleted
		WriteJSON(w, http.StatusOK, provisioningToResponse(p))
		return
	}

	// Check for active tasks
	count, _ := a.queries.CountActiveTasks(ctx, provisioningID)
	if count > 0 {
		WriteError(w, core.NewAppError(core.ErrConflictLocked, "provisioning has active tasks"))
		return
	}

	idempotencyKey := core.NewID()
	taskID := core.NewID()
	params, _ := json.Marshal(map[string]string{
		"workspace_id": p.WorkspaceID.String,
		"folder_id":    p.FolderID.String,
	})
	requestHash := core.ComputeRequestHash(params, "DELETE", "/v1/provisionings/"+provisioningID)

	_, err = a.queries.CreateTask(ctx, store.CreateTaskParams{
		TaskID:         taskID,
		ProvisioningID: provisioningID,
		Op:             string(core.OpDeleteWorkspace),
		IdempotencyKey: idempotencyKey,
		RequestHash:    requestHash,
		Params:         params,
		MaxAttempts:    defaultMaxAttempts,
		TimeoutSeconds: deleteTimeoutSeconds,
	})
	if err != nil {
		a.log.Error("create delete task failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to create task"))
		return
	}

	_ = a.writeAudit(ctx, provisioningID, "provisioning.delete", &taskID, nil)

	WriteAccepted(w, taskID, "/v1/tasks/")
}

func provisioningToResponse(p store.WpsProvisioning) ProvisioningResponse {
	var refreshCompleted *bool
	if p.RefreshCompleted.Valid {
		v := p.RefreshCompleted.Bool
		refreshCompleted = &v
	}
	var result map[string]interface{}
	if p.Result != nil {
		json.Unmarshal(p.Result, &result)
	}
	return ProvisioningResponse{
		ProvisioningID:   p.ProvisioningID,
		Name:             p.Name,
		TemplateGroupID:  p.TemplateGroupID,
		State:            p.State,
		WorkspaceID:      p.WorkspaceID.String,
		DatasetID:        p.DatasetID.String,
		DatasourceID:     p.DatasourceID.String,
		FolderID:         p.FolderID.String,
		RefreshCompleted: refreshCompleted,
		Result:           result,
		CreatedAt:        p.CreatedAt.Time.Format("2006-01-02T15:04:05Z"),
		UpdatedAt:        p.UpdatedAt.Time.Format("2006-01-02T15:04:05Z"),
	}
}

func parseLimit(s string, defaultVal, maxVal int) int {
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return defaultVal
	}
	if n > maxVal {
		return maxVal
	}
	return n
}

func parseCursor(s string) pgtype.Timestamptz {
	if s == "" {
		return pgtype.Timestamptz{Valid: false}
	}
	// Decode base64 cursor to timestamp
	t, err := decodeCursor(s)
	if err != nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}

func textFromString(s string) pgtype.Text {
	if s == "" {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: s, Valid: true}
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/store"
)

// ListProvisioningAudit returns the audit trail of a provisioning, newest
// first.
func (a *API) ListProvisioningAudit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provisioningID := chi.URLParam(r, "provisioning_id")
	limit := parseLimit(r.URL.Query().Get("limit"), 50, 200)

	if _, err := a.queries.GetProvisioning(ctx, provisioningID); err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "provisioning not found"))
		return
	}

	rows, err := a.queries.ListAudit(ctx, store.ListAuditParams{
		ProvisioningID: textFromString(provisioningID),
		Limit:          int32(limit),
	})
	if err != nil {
		a.log.Error("list audit failed", zap.Error(err))
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to list audit events"))
		return
	}

	events := make([]core.AuditEvent, len(rows))
	for i, row := range rows {
		events[i] = auditToEvent(row)
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
	})
}

func auditToEvent(row store.WpsAudit) core.AuditEvent {
	ev := core.AuditEvent{
		EventID: row.ID,
		Ts:      row.CreatedAt.Time,
		Actor:   row.Actor,
		Action:  row.Action,
		Payload: row.Payload,
	}
	if row.ProvisioningID.Valid {
		v := row.ProvisioningID.String
		ev.ProvisioningID = &v
	}
	if row.TaskID.Valid {
		v := row.TaskID.String
		ev.TaskID = &v
	}
	return ev
}

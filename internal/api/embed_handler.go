package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lzjever/mbos-wps/internal/biclient"
	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/observability"
)

type EmbedTokenResponse struct {
	Token      string `json:"token"`
	TokenID    string `json:"token_id,omitempty"`
	Expiration string `json:"expiration,omitempty"`
}

// GetEmbedToken mints a short-lived embed token for one report in a
// provisioned workspace. Unlike the task endpoints this is synchronous;
// tokens expire too fast to queue.
func (a *API) GetEmbedToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	provisioningID := chi.URLParam(r, "provisioning_id")
	reportID := chi.URLParam(r, "report_id")

	p, err := a.queries.GetProvisioning(ctx, provisioningID)
	if err != nil {
		WriteError(w, core.NewAppError(core.ErrNotFound, "provisioning not found"))
		return
	}

	if !p.WorkspaceID.Valid {
		WriteError(w, core.NewAppError(core.ErrPreconditionFailed, "provisioning has no workspace yet"))
		return
	}

	tok, err := a.bi.GenerateEmbedToken(ctx, p.WorkspaceID.String, reportID, biclient.EmbedTokenRequest{
		AccessLevel: "View",
	})
	if err != nil {
		observability.EmbedTokensTotal.WithLabelValues("failed").Inc()
		var appErr *core.AppError
		if errors.As(err, &appErr) {
			WriteError(w, appErr)
			return
		}
		WriteError(w, core.NewAppError(core.ErrInternal, "failed to generate embed token"))
		return
	}
	observability.EmbedTokensTotal.WithLabelValues("issued").Inc()

	resp := EmbedTokenResponse{Token: tok.Token, TokenID: tok.TokenID}
	if !tok.Expiration.IsZero() {
		resp.Expiration = tok.Expiration.Format(time.RFC3339)
	}
	WriteJSON(w, http.StatusOK, resp)
}

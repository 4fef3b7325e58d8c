package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-wps/internal/api/middleware"
	"github.com/lzjever/mbos-wps/internal/biclient"
	"github.com/lzjever/mbos-wps/internal/store"
)

type API struct {
	pool    *pgxpool.Pool
	queries *store.Queries
	bi      *biclient.Client
	log     *zap.Logger
}

func NewAPI(pool *pgxpool.Pool, bi *biclient.Client, log *zap.Logger) *API {
	return &API{
		pool:    pool,
		queries: store.New(pool),
		bi:      bi,
		log:     log,
	}
}

func (a *API) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Metrics)
	r.Use(middleware.Recoverer(a.log))
	r.Use(middleware.Logger)
	r.Use(chiMiddleware.AllowContentType("application/json"))

	// Health endpoints
	r.Get("/healthz", a.HealthHandler)
	r.Get("/readyz", a.ReadyHandler)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Provisionings
		r.Get("/provisionings", a.ListProvisionings)
		r.Post("/provisionings", a.CreateProvisioning)
		r.Get("/provisionings/{provisioning_id}", a.GetProvisioning)
		r.Delete("/provisionings/{provisioning_id}", a.DeleteProvisioning)
		r.Post("/provisionings/{provisioning_id}/refresh", a.RefreshProvisioning)
		r.Get("/provisionings/{provisioning_id}/audit", a.ListProvisioningAudit)

		// Embedding
		r.Get("/provisionings/{provisioning_id}/reports/{report_id}/embed-token", a.GetEmbedToken)

		// Tasks
		r.Get("/tasks", a.ListTasks)
		r.Get("/tasks/{task_id}", a.GetTask)
		r.Post("/tasks/{task_id}:cancel", a.CancelTask)
	})

	return r
}

// writeAudit writes an audit log entry.
func (a *API) writeAudit(ctx context.Context, provisioningID string, action string, taskID *string, payload interface{}) error {
	var taskIDVal pgtype.Text
	if taskID != nil {
		taskIDVal = pgtype.Text{String: *taskID, Valid: true}
	}

	payloadBytes, _ := json.Marshal(payload)
	actor, _ := json.Marshal(map[string]string{"source": "api"})

	_, err := a.queries.InsertAudit(ctx, store.InsertAuditParams{
		ProvisioningID: pgtype.Text{String: provisioningID, Valid: true},
		Actor:          actor,
		Action:         action,
		TaskID:         taskIDVal,
		Payload:        payloadBytes,
	})
	return err
}

// encodeCursor encodes a timestamp as a base64 cursor.
func encodeCursor(t pgtype.Timestamptz) string {
	if !t.Valid {
		return ""
	}
	return base64.StdEncoding.EncodeToString([]byte(t.Time.Format(time.RFC3339Nano)))
}

// decodeCursor decodes a base64 cursor to a timestamp.
func decodeCursor(s string) (time.Time, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, string(b))
}

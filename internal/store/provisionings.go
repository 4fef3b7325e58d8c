package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

const provisioningColumns = `provisioning_id, name, template_group_id, state, workspace_id, dataset_id, datasource_id, folder_id, refresh_completed, request, result, created_at, updated_at`

func scanProvisioning(row pgx.Row) (WpsProvisioning, error) {
	var p WpsProvisioning
	err := row.Scan(
		&p.ProvisioningID,
		&p.Name,
		&p.TemplateGroupID,
		&p.State,
		&p.WorkspaceID,
		&p.DatasetID,
		&p.DatasourceID,
		&p.FolderID,
		&p.RefreshCompleted,
		&p.Request,
		&p.Result,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

type CreateProvisioningParams struct {
	ProvisioningID  string
	Name            string
	TemplateGroupID string
	Request         []byte
}

func (q *Queries) CreateProvisioning(ctx context.Context, arg CreateProvisioningParams) (WpsProvisioning, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO wps.provisionings (provisioning_id, name, template_group_id, request)
		VALUES ($1, $2, $3, $4)
		RETURNING `+provisioningColumns,
		arg.ProvisioningID, arg.Name, arg.TemplateGroupID, arg.Request)
	return scanProvisioning(row)
}

func (q *Queries) GetProvisioning(ctx context.Context, provisioningID string) (WpsProvisioning, error) {
	row := q.db.QueryRow(ctx, `
		SELECT `+provisioningColumns+`
		FROM wps.provisionings
		WHERE provisioning_id = $1`,
		provisioningID)
	return scanProvisioning(row)
}

type ListProvisioningsParams struct {
	Limit  int32
	State  pgtype.Text
	Cursor pgtype.Timestamptz
}

func (q *Queries) ListProvisionings(ctx context.Context, arg ListProvisioningsParams) ([]WpsProvisioning, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+provisioningColumns+`
		FROM wps.provisionings
		WHERE ($2::text IS NULL OR state = $2)
		  AND ($3::timestamptz IS NULL OR created_at < $3)
		ORDER BY created_at DESC
		LIMIT $1`,
		arg.Limit, arg.State, arg.Cursor)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WpsProvisioning
	for rows.Next() {
		p, err := scanProvisioning(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

type UpdateProvisioningStateParams struct {
	ProvisioningID string
	State          string
}

func (q *Queries) UpdateProvisioningState(ctx context.Context, arg UpdateProvisioningStateParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE wps.provisionings
		SET state = $2, updated_at = now()
		WHERE provisioning_id = $1`,
		arg.ProvisioningID, arg.State)
	return err
}

type UpdateProvisioningRemoteParams struct {
	ProvisioningID   string
	WorkspaceID      pgtype.Text
	DatasetID        pgtype.Text
	DatasourceID     pgtype.Text
	FolderID         pgtype.Text
	RefreshCompleted pgtype.Bool
	Result           []byte
}

func (q *Queries) UpdateProvisioningRemote(ctx context.Context, arg UpdateProvisioningRemoteParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE wps.provisionings
		SET workspace_id = $2,
		    dataset_id = $3,
		    datasource_id = $4,
		    folder_id = $5,
		    refresh_completed = $6,
		    result = $7,
		    updated_at = now()
		WHERE provisioning_id = $1`,
		arg.ProvisioningID, arg.WorkspaceID, arg.DatasetID, arg.DatasourceID,
		arg.FolderID, arg.RefreshCompleted, arg.Result)
	return err
}

type UpdateProvisioningRefreshParams struct {
	ProvisioningID   string
	RefreshCompleted pgtype.Bool
}

func (q *Queries) UpdateProvisioningRefresh(ctx context.Context, arg UpdateProvisioningRefreshParams) error {
	_, err := q.db.Exec(ctx, `
		UPDATE wps.provisionings
		SET refresh_completed = $2, updated_at = now()
		WHERE provisioning_id = $1`,
		arg.ProvisioningID, arg.RefreshCompleted)
	return err
}

func (q *Queries) MarkProvisioningDeleted(ctx context.Context, provisioningID string) (WpsProvisioning, error) {
	row := q.db.QueryRow(ctx, `
		UPDATE wps.provisionings
		SET state = 'DELETED', updated_at = now()
		WHERE provisioning_id = $1
		RETURNING `+provisioningColumns,
		provisioningID)
	return scanProvisioning(row)
}

// AcquireProvisioningLock takes the per-provisioning advisory lock for
// the current transaction, serializing workers on the same provisioning.
func (q *Queries) AcquireProvisioningLock(ctx context.Context, provisioningID string) error {
	_, err := q.db.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, provisioningID)
	return err
}

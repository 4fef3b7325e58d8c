package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

type InsertAuditParams struct {
	ProvisioningID pgtype.Text
	Actor          []byte
	Action         string
	TaskID         pgtype.Text
	Payload        []byte
}

func (q *Queries) InsertAudit(ctx context.Context, arg InsertAuditParams) (WpsAudit, error) {
	row := q.db.QueryRow(ctx, `
		INSERT INTO wps.audit (provisioning_id, actor, action, task_id, payload)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, provisioning_id, actor, action, task_id, payload, created_at`,
		arg.ProvisioningID, arg.Actor, arg.Action, arg.TaskID, arg.Payload)
	var a WpsAudit
	err := row.Scan(&a.ID, &a.ProvisioningID, &a.Actor, &a.Action, &a.TaskID, &a.Payload, &a.CreatedAt)
	return a, err
}

type ListAuditParams struct {
	ProvisioningID pgtype.Text
	Limit          int32
}

func (q *Queries) ListAudit(ctx context.Context, arg ListAuditParams) ([]WpsAudit, error) {
	rows, err := q.db.Query(ctx, `
		SELECT id, provisioning_id, actor, action, task_id, payload, created_at
		FROM wps.audit
		WHERE ($1::text IS NULL OR provisioning_id = $1)
		ORDER BY id DESC
		LIMIT $2`,
		arg.ProvisioningID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []WpsAudit
	for rows.Next() {
		var a WpsAudit
		if err := rows.Scan(&a.ID, &a.ProvisioningID, &a.Actor, &a.Action, &a.TaskID, &a.Payload, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

package store

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type WpsProvisioning struct {
	ProvisioningID   string
	Name             string
	TemplateGroupID  string
	State            string
	WorkspaceID      pgtype.Text
	DatasetID        pgtype.Text
	DatasourceID     pgtype.Text
	FolderID         pgtype.Text
	RefreshCompleted pgtype.Bool
	Request          []byte
	Result           []byte
	CreatedAt        pgtype.Timestamptz
	UpdatedAt        pgtype.Timestamptz
}

type WpsTask struct {
	TaskID          string
	ProvisioningID  string
	Op              string
	Status          string
	IdempotencyKey  string
	RequestHash     string
	CreatedAt       pgtype.Timestamptz
	StartedAt       pgtype.Timestamptz
	EndedAt         pgtype.Timestamptz
	Attempt         int32
	MaxAttempts     int32
	NextRunAt       pgtype.Timestamptz
	TimeoutSeconds  int32
	CancelRequested bool
	Params          []byte
	Result          []byte
	Error           []byte
}

type WpsAudit struct {
	ID             int64
	ProvisioningID pgtype.Text
	Actor          []byte
	Action         string
	TaskID         pgtype.Text
	Payload        []byte
	CreatedAt      pgtype.Timestamptz
}

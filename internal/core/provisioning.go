package core

import "time"

type ProvisioningState string

const (
	ProvisioningPending ProvisioningState = "PENDING"
	ProvisioningRunning ProvisioningState = "RUNNING"
	ProvisioningReady   ProvisioningState = "READY"
	// ProvisioningPartial means the workspace is usable but the initial
	// data refresh did not finish inside the polling budget.
	ProvisioningPartial ProvisioningState = "PARTIAL"
	ProvisioningFailed  ProvisioningState = "FAILED"
	ProvisioningDeleted ProvisioningState = "DELETED"
)

// Provisioning is one requested workspace rollout tracked by the
// control plane. Remote identifiers fill in as the worker progresses.
type Provisioning struct {
	ProvisioningID   string            `json:"provisioning_id"`
	Name             string            `json:"name"`
	TemplateGroupID  string            `json:"template_group_id"`
	State            ProvisioningState `json:"state"`
	WorkspaceID      *string           `json:"workspace_id,omitempty"`
	DatasetID        *string           `json:"dataset_id,omitempty"`
	DatasourceID     *string           `json:"datasource_id,omitempty"`
	FolderID         *string           `json:"folder_id,omitempty"`
	RefreshCompleted *bool             `json:"refresh_completed,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// ProvisioningResult is the payload stored on a succeeded task and
// returned to API callers for embedding.
type ProvisioningResult struct {
	WorkspaceID      string          `json:"workspace_id"`
	WorkspaceName    string          `json:"workspace_name"`
	DatasetID        string          `json:"dataset_id"`
	DatasourceID     string          `json:"datasource_id"`
	RefreshCompleted bool            `json:"refresh_completed"`
	Reports          []ReportSummary `json:"reports"`
}

type ReportSummary struct {
	ReportID  string       `json:"report_id"`
	Name      string       `json:"name"`
	EmbedURL  string       `json:"embed_url"`
	DatasetID string       `json:"dataset_id"`
	Pages     []ReportPage `json:"pages"`
}

type ReportPage struct {
	Name        string `json:"name"`
	DisplayName string `json:"display_name"`
	Order       int    `json:"order"`
}

package biclient

import "time"

// Group is a platform workspace.
type Group struct {
	ID                    string `json:"id"`
	Name                  string `json:"name"`
	IsOnDedicatedCapacity bool   `json:"isOnDedicatedCapacity,omitempty"`
	CapacityID            string `json:"capacityId,omitempty"`
}

type GroupUser struct {
	Identifier           string `json:"identifier"`
	EmailAddress         string `json:"emailAddress,omitempty"`
	GroupUserAccessRight string `json:"groupUserAccessRight"`
	PrincipalType        string `json:"principalType,omitempty"`
}

// Import tracks one template package upload. ImportState stays
// "Publishing" until the platform finishes unpacking it.
type Import struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ImportState string    `json:"importState"`
	Datasets    []Dataset `json:"datasets,omitempty"`
	Reports     []Report  `json:"reports,omitempty"`
}

const (
	ImportStatePublishing = "Publishing"
	ImportStateSucceeded  = "Succeeded"
	ImportStateFailed     = "Failed"
)

type Dataset struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ConfiguredBy string `json:"configuredBy,omitempty"`
}

type Datasource struct {
	DatasourceID   string `json:"datasourceId"`
	DatasourceType string `json:"datasourceType,omitempty"`
	GatewayID      string `json:"gatewayId"`
}

type RefreshStatus string

const (
	RefreshUnknown   RefreshStatus = "Unknown"
	RefreshCompleted RefreshStatus = "Completed"
	RefreshFailed    RefreshStatus = "Failed"
	RefreshDisabled  RefreshStatus = "Disabled"
)

// Refresh is one entry of a dataset's refresh history. EndTime is
// absent while the refresh is still running.
type Refresh struct {
	RequestID string        `json:"requestId,omitempty"`
	StartTime time.Time     `json:"startTime,omitempty"`
	EndTime   *time.Time    `json:"endTime,omitempty"`
	Status    RefreshStatus `json:"status"`
}

// AllFinal reports whether every refresh reached a final state. An
// empty history counts as final; a nil history means the platform gave
// no answer and counts as not final. Unknown is the in-progress state,
// never a final one.
func AllFinal(refreshes []Refresh) bool {
	if refreshes == nil {
		return false
	}
	for _, r := range refreshes {
		switch r.Status {
		case RefreshCompleted, RefreshFailed, RefreshDisabled:
		default:
			return false
		}
	}
	return true
}

// UpdateParameter sets one dataset query parameter to a new value.
type UpdateParameter struct {
	Name     string `json:"name"`
	NewValue string `json:"newValue"`
}

// CredentialDetails is the wire payload for rewiring a datasource. The
// Credentials field is itself a JSON-encoded credential document.
type CredentialDetails struct {
	CredentialType      string `json:"credentialType"`
	Credentials         string `json:"credentials"`
	EncryptedConnection string `json:"encryptedConnection"`
	EncryptionAlgorithm string `json:"encryptionAlgorithm"`
	PrivacyLevel        string `json:"privacyLevel"`
}

type RefreshSchedule struct {
	Days            []string `json:"days"`
	Times           []string `json:"times"`
	Enabled         bool     `json:"enabled"`
	LocalTimeZoneID string   `json:"localTimeZoneId"`
	NotifyOption    string   `json:"notifyOption"`
}

type Report struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	WebURL    string `json:"webUrl,omitempty"`
	EmbedURL  string `json:"embedUrl,omitempty"`
	DatasetID string `json:"datasetId,omitempty"`
}

type Page struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Order       int    `json:"order"`
}

type Capacity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	SKU         string `json:"sku,omitempty"`
	State       string `json:"state,omitempty"`
}

type EmbedToken struct {
	Token      string    `json:"token"`
	TokenID    string    `json:"tokenId,omitempty"`
	Expiration time.Time `json:"expiration,omitempty"`
}

type EmbedTokenRequest struct {
	AccessLevel string `json:"accessLevel"`
}

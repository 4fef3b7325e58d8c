// Package biclient is a typed facade over the BI platform REST API,
// covering the operations the provisioning workflows need. Every method
// validates its required identifiers before a request is built, and
// listing methods never return nil collections on success.
package biclient

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/rest"
)

type Client struct {
	rest *rest.Client
}

func New(rc *rest.Client) *Client {
	return &Client{rest: rc}
}

// envelope is the single-level {"value": [...]} wrapper the platform
// puts around every collection.
type envelope[T any] struct {
	Value []T `json:"value"`
}

func list[T any](ctx context.Context, c *Client, req rest.Request) ([]T, error) {
	var env envelope[T]
	if err := c.rest.Do(ctx, req, &env); err != nil {
		return nil, err
	}
	if env.Value == nil {
		return []T{}, nil
	}
	return env.Value, nil
}

//
// Workspaces
//

func (c *Client) CreateGroup(ctx context.Context, name string) (*Group, error) {
	if name == "" {
		return nil, core.NewMissingParameterError("name")
	}
	var g Group
	err := c.rest.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/groups",
		Body:   map[string]string{"name": name},
	}, &g)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// GetGroup looks a workspace up by id. Absence is not an error here:
// the result is nil and the caller decides whether that is fatal. The
// platform only offers a list endpoint for this, so the match happens
// client side.
func (c *Client) GetGroup(ctx context.Context, groupID string) (*Group, error) {
	if groupID == "" {
		return nil, core.NewMissingParameterError("groupID")
	}
	groups, err := c.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	for i := range groups {
		if groups[i].ID == groupID {
			return &groups[i], nil
		}
	}
	return nil, nil
}

func (c *Client) ListGroups(ctx context.Context) ([]Group, error) {
	return list[Group](ctx, c, rest.Request{
		Method: http.MethodGet,
		Path:   "/groups",
	})
}

func (c *Client) DeleteGroup(ctx context.Context, groupID string) error {
	if groupID == "" {
		return core.NewMissingParameterError("groupID")
	}
	return c.rest.Do(ctx, rest.Request{
		Method:     http.MethodDelete,
		Path:       "/groups/:groupID",
		PathParams: map[string]string{"groupID": groupID},
	}, nil)
}

//
// Workspace users
//

func (c *Client) ListGroupUsers(ctx context.Context, groupID string) ([]GroupUser, error) {
	if groupID == "" {
		return nil, core.NewMissingParameterError("groupID")
	}
	return list[GroupUser](ctx, c, rest.Request{
		Method:     http.MethodGet,
		Path:       "/groups/:groupID/users",
		PathParams: map[string]string{"groupID": groupID},
	})
}

func (c *Client) AddGroupUser(ctx context.Context, groupID string, user GroupUser) error {
	if groupID == "" {
		return core.NewMissingParameterError("groupID")
	}
	if user.Identifier == "" {
		return core.NewMissingParameterError("user.identifier")
	}
	return c.rest.Do(ctx, rest.Request{
		Method:     http.MethodPost,
		Path:       "/groups/:groupID/users",
		PathParams: map[string]string{"groupID": groupID},
		Body:       user,
	}, nil)
}

//
// Imports
//

// PostImport uploads a template package. The transport joins query
// pairs verbatim, so the display name is escaped here before it enters
// the query string.
func (c *Client) PostImport(ctx context.Context, groupID, datasetDisplayName string, pkg []byte) (*Import, error) {
	if groupID == "" {
		return nil, core.NewMissingParameterError("groupID")
	}
	if datasetDisplayName == "" {
		return nil, core.NewMissingParameterError("datasetDisplayName")
	}
	if len(pkg) == 0 {
		return nil, core.NewMissingParameterError("package")
	}
	var imp Import
	err := c.rest.Do(ctx, rest.Request{
		Method:     http.MethodPost,
		Path:       "/groups/:groupID/imports",
		PathParams: map[string]string{"groupID": groupID},
		Query: []rest.QueryParam{
			{Key: "datasetDisplayName", Value: url.PathEscape(datasetDisplayName)},
		},
		RawBody:     pkg,
		ContentType: "application/octet-stream",
	}, &imp)
	if err != nil {
		return nil, err
	}
	return &imp, nil
}

func (c *Client) GetImport(ctx context.Context, groupID, importID string) (*Import, error) {
	if groupID == "" {
		return nil, core.NewMissingParameterError("groupID")
	}
	if importID == "" {
		return nil, core.NewMissingParameterError("importID")
	}
	var imp Import
	err := c.rest.Do(ctx, rest.Request{
		Method:     http.MethodGet,
		Path:       "/groups/:groupID/imports/:importID",
		PathParams: map[string]string{"groupID": groupID, "importID": importID},
	}, &imp)
	if err != nil {
		return nil, err
	}
	return &imp, nil
}

//
// Datasets
//

func (c *Client) ListDatasets(ctx context.Context, groupID string) ([]Dataset, error) {
	if groupID == "" {
		return nil, core.NewMissingParameterError("groupID")
	}
	return list[Dataset](ctx, c, rest.Request{
		Method:     http.MethodGet,
		Path:       "/groups/:groupID/datasets",
		PathParams: map[string]string{"groupID": groupID},
	})
}

func (c *Client) TakeDatasetOwnership(ctx context.Context, groupID, datasetID string) error {
	if groupID == "" {
		return core.NewMissingParameterError("groupID")
	}
	if datasetID == "" {
		return core.NewMissingParameterError("datasetID")
	}
	return c.rest.Do(ctx, rest.Request{
		Method:     http.MethodPost,
		Path:       "/groups/:groupID/datasets/:datasetID/Default.TakeOver",
		PathParams: map[string]string{"groupID": groupID, "datasetID": datasetID},
	}, nil)
}

func (c *Client) UpdateParameters(ctx context.Context, groupID, datasetID string, params []UpdateParameter) error {
	if groupID == "" {
		return core.NewMissingParameterError("groupID")
	}
	if datasetID == "" {
		return core.NewMissingParameterError("datasetID")
	}
	return c.rest.Do(ctx, rest.Request{
		Method:     http.MethodPost,
		Path:       "/groups/:groupID/datasets/:datasetID/Default.UpdateParameters",
		PathParams: map[string]string{"groupID": groupID, "datasetID": datasetID},
		Body:       map[string][]UpdateParameter{"updateDetails": params},
	}, nil)
}

//
// Datasources
//

func (c *Client) ListDatasources(ctx context.Context, groupID, datasetID string) ([]Datasource, error) {
	if groupID == "" {
		return nil, core.NewMissingParameterError("groupID")
	}
	if datasetID == "" {
		return nil, core.NewMissingParameterError("datasetID")
	}
	return list[Datasource](ctx, c, rest.Request{
		Method:     http.MethodGet,
		Path:       "/groups/:groupID/datasets/:datasetID/datasources",
		PathParams: map[string]string{"groupID": groupID, "datasetID": datasetID},
	})
}

func (c *Client) UpdateDatasourceCredentials(ctx context.Context, gatewayID, datasourceID string, details CredentialDetails) error {
	if gatewayID == "" {
		return core.NewMissingParameterError("gatewayID")
	}
	if datasourceID == "" {
		return core.NewMissingParameterError("datasourceID")
	}
	return c.rest.Do(ctx, rest.Request{
		Method:     http.MethodPatch,
		Path:       "/gateways/:gatewayID/datasources/:datasourceID",
		PathParams: map[string]string{"gatewayID": gatewayID, "datasourceID": datasourceID},
		Body:       map[string]CredentialDetails{"credentialDetails": details},
	}, nil)
}

//
// Refreshes
//

func (c *Client) RefreshDataset(ctx context.Context, groupID, datasetID string) error {
	if groupID == "" {
		return core.NewMissingParameterError("groupID")
	}
	if datasetID == "" {
		return core.NewMissingParameterError("datasetID")
	}
	return c.rest.Do(ctx, rest.Request{
		Method:     http.MethodPost,
		Path:       "/groups/:groupID/datasets/:datasetID/refreshes",
		PathParams: map[string]string{"groupID": groupID, "datasetID": datasetID},
		Body:       map[string]string{"notifyOption": "NoNotification"},
	}, nil)
}

func (c *Client) ListRefreshes(ctx context.Context, groupID, datasetID string, top int) ([]Refresh, error) {
	if groupID == "" {
		return nil, core.NewMissingParameterError("groupID")
	}
	if datasetID == "" {
		return nil, core.NewMissingParameterError("datasetID")
	}
	req := rest.Request{
		Method:     http.MethodGet,
		Path:       "/groups/:groupID/datasets/:datasetID/refreshes",
		PathParams: map[string]string{"groupID": groupID, "datasetID": datasetID},
	}
	if top > 0 {
		req.Query = []rest.QueryParam{{Key: "$top", Value: strconv.Itoa(top)}}
	}
	return list[Refresh](ctx, c, req)
}

func (c *Client) UpdateRefreshSchedule(ctx context.Context, groupID, datasetID string, schedule RefreshSchedule) error {
	if groupID == "" {
		return core.NewMissingParameterError("groupID")
	}
	if datasetID == "" {
		return core.NewMissingParameterError("datasetID")
	}
	return c.rest.Do(ctx, rest.Request{
		Method:     http.MethodPatch,
		Path:       "/groups/:groupID/datasets/:datasetID/refreshSchedule",
		PathParams: map[string]string{"groupID": groupID, "datasetID": datasetID},
		Body:       map[string]RefreshSchedule{"value": schedule},
	}, nil)
}

//
// Reports
//

func (c *Client) ListReports(ctx context.Context, groupID string) ([]Report, error) {
	if groupID == "" {
		return nil, core.NewMissingParameterError("groupID")
	}
	return list[Report](ctx, c, rest.Request{
		Method:     http.MethodGet,
		Path:       "/groups/:groupID/reports",
		PathParams: map[string]string{"groupID": groupID},
	})
}

func (c *Client) ListReportPages(ctx context.Context, groupID, reportID string) ([]Page, error) {
	if groupID == "" {
		return nil, core.NewMissingParameterError("groupID")
	}
	if reportID == "" {
		return nil, core.NewMissingParameterError("reportID")
	}
	return list[Page](ctx, c, rest.Request{
		Method:     http.MethodGet,
		Path:       "/groups/:groupID/reports/:reportID/pages",
		PathParams: map[string]string{"groupID": groupID, "reportID": reportID},
	})
}

func (c *Client) GenerateEmbedToken(ctx context.Context, groupID, reportID string, req EmbedTokenRequest) (*EmbedToken, error) {
	if groupID == "" {
		return nil, core.NewMissingParameterError("groupID")
	}
	if reportID == "" {
		return nil, core.NewMissingParameterError("reportID")
	}
	if req.AccessLevel == "" {
		req.AccessLevel = "View"
	}
	var tok EmbedToken
	err := c.rest.Do(ctx, rest.Request{
		Method:     http.MethodPost,
		Path:       "/groups/:groupID/reports/:reportID/GenerateToken",
		PathParams: map[string]string{"groupID": groupID, "reportID": reportID},
		Body:       req,
	}, &tok)
	if err != nil {
		return nil, err
	}
	return &tok, nil
}

//
// Capacities
//

func (c *Client) ListCapacities(ctx context.Context) ([]Capacity, error) {
	return list[Capacity](ctx, c, rest.Request{
		Method: http.MethodGet,
		Path:   "/capacities",
	})
}

func (c *Client) AssignToCapacity(ctx context.Context, groupID, capacityID string) error {
	if groupID == "" {
		return core.NewMissingParameterError("groupID")
	}
	if capacityID == "" {
		return core.NewMissingParameterError("capacityID")
	}
	return c.rest.Do(ctx, rest.Request{
		Method:     http.MethodPost,
		Path:       "/groups/:groupID/AssignToCapacity",
		PathParams: map[string]string{"groupID": groupID},
		Body:       map[string]string{"capacityId": capacityID},
	}, nil)
}

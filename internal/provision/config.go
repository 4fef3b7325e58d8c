// Package provision turns a declarative workspace template into a live,
// refreshed workspace on the BI platform. Config resolves everything
// that can fail from bad input up front; Engine runs the remote steps.
package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/lzjever/mbos-wps/internal/biclient"
	"github.com/lzjever/mbos-wps/internal/core"
)

// Field type tags a template item may reference. Each names one field
// of the tenant warehouse credentials.
const (
	FieldUsername       = "username"
	FieldPassword       = "password"
	FieldHost           = "host"
	FieldWarehouse      = "warehouse"
	FieldSchema         = "schema"
	FieldDatabase       = "database"
	FieldServiceAccount = "service_account"
)

// TenantCredentials hold the per-tenant warehouse connection values the
// template items draw from.
type TenantCredentials struct {
	Username       string `json:"username,omitempty"`
	Password       string `json:"password,omitempty"`
	Host           string `json:"host,omitempty"`
	Warehouse      string `json:"warehouse,omitempty"`
	Schema         string `json:"schema,omitempty"`
	Database       string `json:"database,omitempty"`
	ServiceAccount string `json:"service_account,omitempty"`
}

// TemplateItem maps one tenant credential field onto a named credential
// entry or dataset parameter. Override, when set, is used verbatim and
// the type tag is not consulted.
type TemplateItem struct {
	Type     string `json:"type,omitempty"`
	Name     string `json:"name"`
	Override string `json:"override,omitempty"`
}

type CredentialKind string

const (
	CredentialBasic CredentialKind = "Basic"
	CredentialKey   CredentialKind = "Key"
)

// CredentialTemplate describes the credential document shape for one
// datasource flavor.
type CredentialTemplate struct {
	Kind  CredentialKind `json:"kind"`
	Items []TemplateItem `json:"items"`
}

// Template is the declarative provisioning template: how to build the
// datasource credential document and which dataset parameters to set.
type Template struct {
	Credential CredentialTemplate `json:"credential"`
	Parameters []TemplateItem     `json:"parameters,omitempty"`
}

// LoadTemplate reads a template definition from a JSON file.
func LoadTemplate(path string) (*Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, core.NewConfigurationError(fmt.Sprintf("read template %s: %v", path, err))
	}
	var tpl Template
	if err := json.Unmarshal(data, &tpl); err != nil {
		return nil, core.NewConfigurationError(fmt.Sprintf("parse template %s: %v", path, err))
	}
	return &tpl, nil
}

func resolveField(creds TenantCredentials, typeTag string) (string, error) {
	switch typeTag {
	case FieldUsername:
		return creds.Username, nil
	case FieldPassword:
		return creds.Password, nil
	case FieldHost:
		return creds.Host, nil
	case FieldWarehouse:
		return creds.Warehouse, nil
	case FieldSchema:
		return creds.Schema, nil
	case FieldDatabase:
		return creds.Database, nil
	case FieldServiceAccount:
		return creds.ServiceAccount, nil
	default:
		return "", core.NewConfigurationError(fmt.Sprintf("template references unmapped field type %q", typeTag))
	}
}

func resolveItems(creds TenantCredentials, items []TemplateItem) ([]credentialField, error) {
	out := make([]credentialField, 0, len(items))
	for _, item := range items {
		if item.Name == "" {
			return nil, core.NewMissingParameterError("template item name")
		}
		value := item.Override
		if value == "" {
			v, err := resolveField(creds, item.Type)
			if err != nil {
				return nil, err
			}
			value = v
		}
		out = append(out, credentialField{Name: item.Name, Value: value})
	}
	return out, nil
}

type credentialField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type credentialDocument struct {
	CredentialData []credentialField `json:"credentialData"`
}

// BuildCredentials resolves the credential template into the wire
// payload for rewiring a datasource. The resolved fields travel as a
// JSON document encoded inside the Credentials string.
func BuildCredentials(creds TenantCredentials, tpl CredentialTemplate) (biclient.CredentialDetails, error) {
	if len(tpl.Items) == 0 {
		return biclient.CredentialDetails{}, core.NewConfigurationError("credential template has no items")
	}
	kind := tpl.Kind
	if kind == "" {
		kind = CredentialBasic
	}
	fields, err := resolveItems(creds, tpl.Items)
	if err != nil {
		return biclient.CredentialDetails{}, err
	}
	doc, err := json.Marshal(credentialDocument{CredentialData: fields})
	if err != nil {
		return biclient.CredentialDetails{}, core.NewConfigurationError(fmt.Sprintf("encode credential document: %v", err))
	}
	return biclient.CredentialDetails{
		CredentialType:      string(kind),
		Credentials:         string(doc),
		EncryptedConnection: "Encrypted",
		EncryptionAlgorithm: "None",
		PrivacyLevel:        "Organizational",
	}, nil
}

// BuildDatasourceParams resolves the parameter template into dataset
// parameter updates, preserving template order.
func BuildDatasourceParams(creds TenantCredentials, items []TemplateItem) ([]biclient.UpdateParameter, error) {
	fields, err := resolveItems(creds, items)
	if err != nil {
		return nil, err
	}
	out := make([]biclient.UpdateParameter, 0, len(fields))
	for _, f := range fields {
		out = append(out, biclient.UpdateParameter{Name: f.Name, NewValue: f.Value})
	}
	return out, nil
}

// TemplateLoader fetches the template package bytes named by a locator,
// typically a path under the worker's template root or a drive folder.
type TemplateLoader func(ctx context.Context, locator string) ([]byte, error)

// ConfigSpec is the raw input for one provisioning run.
type ConfigSpec struct {
	// Name is the workspace base name; the import and its dataset are
	// named after it verbatim, without any global prefix.
	Name            string
	TemplateGroupID string
	PackagePath     string
	Loader          TemplateLoader
	Tenant          TenantCredentials
	Template        Template
	ScheduleTimes   []string
	ScheduleDays    []string
	CapacityID      string
	// ImportFolderID is an optional destination folder for the imported
	// package. The engine never interprets it; callers resolve a folder
	// path through the drive client and record the id alongside the
	// provisioning.
	ImportFolderID string
}

// Config is an immutable, fully resolved provisioning configuration.
// All template resolution happens in NewConfig so that a bad template
// or an unmapped field type surfaces before any remote call is made.
type Config struct {
	name            string
	templateGroupID string
	packagePath     string
	loader          TemplateLoader
	credentials     biclient.CredentialDetails
	params          []biclient.UpdateParameter
	scheduleTimes   []string
	scheduleDays    []string
	capacityID      string
	importFolderID  string

	loadOnce sync.Once
	pkg      []byte
	pkgErr   error
}

func NewConfig(spec ConfigSpec) (*Config, error) {
	if spec.Name == "" {
		return nil, core.NewMissingParameterError("name")
	}
	if spec.TemplateGroupID == "" {
		return nil, core.NewMissingParameterError("templateGroupID")
	}
	if spec.PackagePath == "" {
		return nil, core.NewMissingParameterError("packagePath")
	}
	if spec.Loader == nil {
		return nil, core.NewConfigurationError("template loader is required")
	}
	creds, err := BuildCredentials(spec.Tenant, spec.Template.Credential)
	if err != nil {
		return nil, err
	}
	params, err := BuildDatasourceParams(spec.Tenant, spec.Template.Parameters)
	if err != nil {
		return nil, err
	}
	return &Config{
		name:            spec.Name,
		templateGroupID: spec.TemplateGroupID,
		packagePath:     spec.PackagePath,
		loader:          spec.Loader,
		credentials:     creds,
		params:          params,
		scheduleTimes:   spec.ScheduleTimes,
		scheduleDays:    spec.ScheduleDays,
		capacityID:      spec.CapacityID,
		importFolderID:  spec.ImportFolderID,
	}, nil
}

// Name returns the workspace base name.
func (c *Config) Name() string { return c.name }

// ImportFolderID returns the opaque destination folder id, or "" when
// the provisioning has no folder attached.
func (c *Config) ImportFolderID() string { return c.importFolderID }

// Package returns the template package bytes. The loader runs at most
// once per Config; every later call reuses the first outcome, error
// included.
func (c *Config) Package(ctx context.Context) ([]byte, error) {
	c.loadOnce.Do(func() {
		c.pkg, c.pkgErr = c.loader(ctx, c.packagePath)
	})
	if c.pkgErr != nil {
		return nil, c.pkgErr
	}
	if len(c.pkg) == 0 {
		return nil, core.NewConfigurationError(fmt.Sprintf("template package %s is empty", c.packagePath))
	}
	return c.pkg, nil
}

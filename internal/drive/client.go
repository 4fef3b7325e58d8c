// Package drive manages folder hierarchies on the document-storage
// platform that accompanies provisioned workspaces. Folder ids are
// opaque strings; only the path walk below gives them meaning.
package drive

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/rest"
)

type Folder struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ParentID string `json:"parentId,omitempty"`
}

type Client struct {
	rest *rest.Client
	log  *zap.Logger
}

func New(rc *rest.Client, log *zap.Logger) *Client {
	return &Client{rest: rc, log: log}
}

// ListFolders returns the child folders of parentID; an empty parentID
// lists the root level.
func (c *Client) ListFolders(ctx context.Context, parentID string) ([]Folder, error) {
	req := rest.Request{Method: http.MethodGet, Path: "/folders"}
	if parentID != "" {
		req.Query = []rest.QueryParam{{Key: "parentId", Value: parentID}}
	}
	var out struct {
		Value []Folder `json:"value"`
	}
	if err := c.rest.Do(ctx, req, &out); err != nil {
		return nil, err
	}
	if out.Value == nil {
		return []Folder{}, nil
	}
	return out.Value, nil
}

// CreateFolder creates one folder under parentID; an empty parentID
// creates at the root level.
func (c *Client) CreateFolder(ctx context.Context, name, parentID string) (*Folder, error) {
	if name == "" {
		return nil, core.NewMissingParameterError("name")
	}
	body := map[string]string{"name": name}
	if parentID != "" {
		body["parentId"] = parentID
	}
	var folder Folder
	if err := c.rest.Do(ctx, rest.Request{
		Method: http.MethodPost,
		Path:   "/folders",
		Body:   body,
	}, &folder); err != nil {
		return nil, err
	}
	return &folder, nil
}

func (c *Client) DeleteFolder(ctx context.Context, folderID string) error {
	if folderID == "" {
		return core.NewMissingParameterError("folderID")
	}
	return c.rest.Do(ctx, rest.Request{
		Method:     http.MethodDelete,
		Path:       "/folders/:folderID",
		PathParams: map[string]string{"folderID": folderID},
	}, nil)
}

// GetOrCreateFolderByPath resolves a slash-separated folder path,
// creating only the missing links. The walk goes parent to child, so a
// second resolution of the same path returns the same leaf folder
// without creating anything.
func (c *Client) GetOrCreateFolderByPath(ctx context.Context, path string) (*Folder, error) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return nil, core.NewMissingParameterError("path")
	}
	var current *Folder
	parentID := ""
	for _, segment := range segments {
		folders, err := c.ListFolders(ctx, parentID)
		if err != nil {
			return nil, err
		}
		current = nil
		for i := range folders {
			if folders[i].Name == segment {
				current = &folders[i]
				break
			}
		}
		if current == nil {
			created, err := c.CreateFolder(ctx, segment, parentID)
			if err != nil {
				return nil, err
			}
			c.log.Info("folder created",
				zap.String("folder_id", created.ID),
				zap.String("name", segment))
			current = created
		}
		parentID = current.ID
	}
	return current, nil
}

// DeleteRecursive removes a folder and everything below it, children
// first.
func (c *Client) DeleteRecursive(ctx context.Context, folderID string) error {
	if folderID == "" {
		return core.NewMissingParameterError("folderID")
	}
	children, err := c.ListFolders(ctx, folderID)
	if err != nil {
		return err
	}
	for _, child := range children {
		if err := c.DeleteRecursive(ctx, child.ID); err != nil {
			return err
		}
	}
	return c.DeleteFolder(ctx, folderID)
}

func splitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

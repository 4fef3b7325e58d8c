package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/lzjever/mbos-wps/internal/core"
	"github.com/lzjever/mbos-wps/internal/rest"
)

type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

type fakeDrive struct {
	mu      sync.Mutex
	nodes   map[string]Folder
	nextID  int
	created []string
	deleted []string
}

func newFakeDrive() *fakeDrive {
	return &fakeDrive{nodes: map[string]Folder{}}
}

func (f *fakeDrive) seed(name, parentID string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := fmt.Sprintf("f-%d", f.nextID)
	f.nodes[id] = Folder{ID: id, Name: name, ParentID: parentID}
	return id
}

func (f *fakeDrive) handler() http.Handler {
	mux := newTestMux()

	mux.HandleFunc("GET /folders", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		parentID := r.URL.Query().Get("parentId")
		children := []Folder{}
		for _, n := range f.nodes {
			if n.ParentID == parentID {
				children = append(children, n)
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"value": children})
	})

	mux.HandleFunc("POST /folders", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body struct {
			Name     string `json:"name"`
			ParentID string `json:"parentId"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.nextID++
		id := fmt.Sprintf("f-%d", f.nextID)
		f.nodes[id] = Folder{ID: id, Name: body.Name, ParentID: body.ParentID}
		f.created = append(f.created, body.Name)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(f.nodes[id])
	})

	mux.HandleFunc("DELETE /folders/{folderID}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		id := pathValue(r, "folderID")
		delete(f.nodes, id)
		f.deleted = append(f.deleted, id)
		w.WriteHeader(http.StatusNoContent)
	})

	return mux
}

func newTestClient(t *testing.T, f *fakeDrive) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)
	return New(rest.New(srv.URL, staticToken("drive-token"), zap.NewNop()), zap.NewNop())
}

func TestGetOrCreateFolderByPath(t *testing.T) {
	f := newFakeDrive()
	c := newTestClient(t, f)
	ctx := context.Background()

	leaf, err := c.GetOrCreateFolderByPath(ctx, "Tenants/T1/Reports")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if leaf.Name != "Reports" {
		t.Errorf("expected leaf Reports, got %s", leaf.Name)
	}
	want := []string{"Tenants", "T1", "Reports"}
	if len(f.created) != 3 {
		t.Fatalf("expected 3 creations, got %v", f.created)
	}
	for i, name := range want {
		if f.created[i] != name {
			t.Errorf("expected creation %d to be %s, got %s", i, name, f.created[i])
		}
	}

	// Resolving the same path again touches nothing and returns the
	// same folder.
	again, err := c.GetOrCreateFolderByPath(ctx, "Tenants/T1/Reports")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if again.ID != leaf.ID {
		t.Errorf("expected same folder id %s, got %s", leaf.ID, again.ID)
	}
	if len(f.created) != 3 {
		t.Errorf("expected no further creations, got %v", f.created)
	}

	// A sibling path reuses the existing prefix.
	other, err := c.GetOrCreateFolderByPath(ctx, "Tenants/T2")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if other.Name != "T2" {
		t.Errorf("expected leaf T2, got %s", other.Name)
	}
	if len(f.created) != 4 {
		t.Errorf("expected exactly one more creation, got %v", f.created)
	}
}

func TestGetOrCreateFolderByPathNormalizesSlashes(t *testing.T) {
	f := newFakeDrive()
	c := newTestClient(t, f)

	leaf, err := c.GetOrCreateFolderByPath(context.Background(), "/Tenants//T1/")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if leaf.Name != "T1" || len(f.created) != 2 {
		t.Errorf("expected 2 segments created, got leaf %s with %v", leaf.Name, f.created)
	}

	if _, err := c.GetOrCreateFolderByPath(context.Background(), "///"); err == nil {
		t.Error("expected error for empty path")
	} else if core.CodeOf(err) != core.ErrConfiguration {
		t.Errorf("expected configuration error, got %s", core.CodeOf(err))
	}
}

func TestListFoldersScopedToParent(t *testing.T) {
	f := newFakeDrive()
	rootID := f.seed("Tenants", "")
	childID := f.seed("T1", rootID)
	c := newTestClient(t, f)
	ctx := context.Background()

	root, err := c.ListFolders(ctx, "")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(root) != 1 || root[0].ID != rootID {
		t.Errorf("expected root listing [Tenants], got %v", root)
	}

	children, err := c.ListFolders(ctx, rootID)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(children) != 1 || children[0].ID != childID {
		t.Errorf("expected [T1], got %v", children)
	}

	empty, err := c.ListFolders(ctx, childID)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(empty) != 0 {
		t.Errorf("expected no children, got %v", empty)
	}
}

func TestDeleteRecursive(t *testing.T) {
	f := newFakeDrive()
	a := f.seed("A", "")
	b := f.seed("B", a)
	cID := f.seed("C", a)
	d := f.seed("D", b)
	c := newTestClient(t, f)

	if err := c.DeleteRecursive(context.Background(), a); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if len(f.deleted) != 4 {
		t.Fatalf("expected 4 deletions, got %v", f.deleted)
	}
	pos := map[string]int{}
	for i, id := range f.deleted {
		pos[id] = i
	}
	if pos[d] > pos[b] || pos[b] > pos[a] || pos[cID] > pos[a] {
		t.Errorf("expected children deleted before parents, got %v", f.deleted)
	}
	if len(f.nodes) != 0 {
		t.Errorf("expected empty tree, got %v", f.nodes)
	}
}

func TestDeleteFolderValidation(t *testing.T) {
	c := New(rest.New("http://unreachable.invalid", staticToken("t"), zap.NewNop()), zap.NewNop())
	if err := c.DeleteFolder(context.Background(), ""); err == nil {
		t.Error("expected error for empty folder id")
	}
	if err := c.DeleteRecursive(context.Background(), ""); err == nil {
		t.Error("expected error for empty folder id")
	}
	if _, err := c.CreateFolder(context.Background(), "", ""); err == nil {
		t.Error("expected error for empty name")
	}
}

// testMux dispatches requests registered with the "METHOD /path/{wildcard}"
// patterns that net/http.ServeMux only understands from Go 1.22 on, so the
// fake keeps building with a Go 1.21 toolchain. It covers exactly the subset
// the fake uses: a literal method match plus single-segment wildcards exposed
// through pathValue.
type testMux struct {
	routes []testRoute
}

type testRoute struct {
	method   string
	segments []string
	handler  http.HandlerFunc
}

type pathParamsKey struct{}

func newTestMux() *testMux { return &testMux{} }

func (m *testMux) HandleFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	method, path, ok := strings.Cut(pattern, " ")
	if !ok {
		panic(`testMux: pattern must look like "METHOD /path"`)
	}
	m.routes = append(m.routes, testRoute{
		method:   method,
		segments: strings.Split(strings.TrimPrefix(path, "/"), "/"),
		handler:  handler,
	})
}

func (m *testMux) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	segments := strings.Split(strings.TrimPrefix(r.URL.Path, "/"), "/")
	for _, route := range m.routes {
		if route.method != r.Method || len(route.segments) != len(segments) {
			continue
		}
		params := map[string]string{}
		matched := true
		for i, want := range route.segments {
			if strings.HasPrefix(want, "{") && strings.HasSuffix(want, "}") && segments[i] != "" {
				params[want[1:len(want)-1]] = segments[i]
				continue
			}
			if want != segments[i] {
				matched = false
				break
			}
		}
		if !matched {
			continue
		}
		ctx := context.WithValue(r.Context(), pathParamsKey{}, params)
		route.handler(w, r.WithContext(ctx))
		return
	}
	http.NotFound(w, r)
}

// pathValue stands in for (*http.Request).PathValue, which Go 1.21 does not
// have yet.
func pathValue(r *http.Request, name string) string {
	params, _ := r.Context().Value(pathParamsKey{}).(map[string]string)
	return params[name]
}

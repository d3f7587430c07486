package kubernetes

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"

	"github.com/kloia/kubevirt-api-client/internal/apierrors"
	"github.com/kloia/kubevirt-api-client/internal/codec"
	"github.com/kloia/kubevirt-api-client/internal/locator"
)

// MockResourceAPI implements ResourceAPI in memory for testing
type MockResourceAPI struct {
	mu sync.Mutex

	// Objects holds stored resources keyed by request path
	Objects map[string]codec.Envelope
	// Errors makes a call fail; keyed by "METHOD path"
	Errors map[string]error
	// AcceptPatches answers patches with 202 semantics: stored, but the zero envelope is returned
	AcceptPatches bool
	// Reconcile, if set, runs after each patch and may rewrite the stored object
	Reconcile func(path string, obj map[string]interface{})

	Calls   []string
	Patches map[string][]string
	Lists   []ListOptions
}

// NewMockResourceAPI creates a new mock resource API
func NewMockResourceAPI() *MockResourceAPI {
	return &MockResourceAPI{
		Objects: make(map[string]codec.Envelope),
		Errors:  make(map[string]error),
		Patches: make(map[string][]string),
	}
}

// Add stores obj under the endpoint, which must carry a name
func (m *MockResourceAPI) Add(ep locator.Endpoint, obj map[string]interface{}) error {
	env, err := codec.NewEnvelope(obj)
	if err != nil {
		return err
	}
	path, err := ep.Path()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Objects[path] = env
	return nil
}

// Remove drops the object stored under the endpoint
func (m *MockResourceAPI) Remove(ep locator.Endpoint) {
	path, _ := ep.Path()
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.Objects, path)
}

// Fail makes every call of method against the endpoint return err
func (m *MockResourceAPI) Fail(method string, ep locator.Endpoint, err error) {
	path, _ := ep.Path()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[method+" "+path] = err
}

func (m *MockResourceAPI) record(method string, ep locator.Endpoint) (string, error) {
	path, err := ep.Path()
	if err != nil {
		return "", err
	}
	key := method + " " + path
	m.Calls = append(m.Calls, key)
	if err := m.Errors[key]; err != nil {
		return "", err
	}
	return path, nil
}

// Get returns the stored object or a 404 APIError
func (m *MockResourceAPI) Get(_ context.Context, ep locator.Endpoint) (codec.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, err := m.record(http.MethodGet, ep)
	if err != nil {
		return codec.Envelope{}, err
	}
	env, ok := m.Objects[path]
	if !ok {
		return codec.Envelope{}, apierrors.New(http.MethodGet, path, http.StatusNotFound, nil)
	}
	return env, nil
}

// List returns the stored objects of the collection, ordered by path
func (m *MockResourceAPI) List(_ context.Context, ep locator.Endpoint, opts ListOptions) ([]codec.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.record(http.MethodGet, ep); err != nil {
		return nil, err
	}
	m.Lists = append(m.Lists, opts)

	paths := make([]string, 0, len(m.Objects))
	for p := range m.Objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	items := []codec.Envelope{}
	for _, p := range paths {
		stored, err := locator.ParsePath(p)
		if err != nil {
			continue
		}
		if stored.Group != ep.Group || stored.Version != ep.Version || stored.Resource != ep.Resource {
			continue
		}
		if ep.Namespace != "" && stored.Namespace != ep.Namespace {
			continue
		}
		items = append(items, m.Objects[p])
	}
	return items, nil
}

// Patch merges the patch into the stored object
func (m *MockResourceAPI) Patch(_ context.Context, ep locator.Endpoint, patch codec.PatchRequest) (PatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, err := m.record(http.MethodPatch, ep)
	if err != nil {
		return PatchResult{}, err
	}
	body, err := patch.Encode()
	if err != nil {
		return PatchResult{}, err
	}
	m.Patches[path] = append(m.Patches[path], string(body))

	env, ok := m.Objects[path]
	if !ok {
		return PatchResult{}, apierrors.New(http.MethodPatch, path, http.StatusNotFound, nil)
	}
	merged, err := env.Preview(patch)
	if err != nil {
		return PatchResult{}, fmt.Errorf("mock patch: %w", err)
	}
	if m.Reconcile != nil {
		obj := merged.Object()
		m.Reconcile(path, obj)
		if merged, err = codec.NewEnvelope(obj); err != nil {
			return PatchResult{}, fmt.Errorf("mock reconcile: %w", err)
		}
	}
	m.Objects[path] = merged

	if m.AcceptPatches {
		return PatchResult{Accepted: true}, nil
	}
	return PatchResult{Envelope: merged}, nil
}

// Delete removes the stored object and acknowledges with 200
func (m *MockResourceAPI) Delete(_ context.Context, ep locator.Endpoint) (Ack, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path, err := m.record(http.MethodDelete, ep)
	if err != nil {
		return Ack{}, err
	}
	env, ok := m.Objects[path]
	if !ok {
		return Ack{}, apierrors.New(http.MethodDelete, path, http.StatusNotFound, nil)
	}
	delete(m.Objects, path)
	return Ack{StatusCode: http.StatusOK, Envelope: &env}, nil
}

// CallsFor returns the recorded calls for method, in order
func (m *MockResourceAPI) CallsFor(method string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, c := range m.Calls {
		if len(c) > len(method) && c[:len(method)+1] == method+" " {
			out = append(out, c)
		}
	}
	return out
}

package locator

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"k8s.io/apimachinery/pkg/runtime/schema"
)

var (
	// ErrEmptyVersion is returned when no API version is given
	ErrEmptyVersion = errors.New("api version must not be empty")
	// ErrEmptyResource is returned when no resource kind is given
	ErrEmptyResource = errors.New("resource must not be empty")
	// ErrInvalidSegment is returned when a path segment contains a slash or is otherwise unusable
	ErrInvalidSegment = errors.New("invalid path segment")
	// ErrScopeMismatch is returned when the namespace presence disagrees with the resource scope
	ErrScopeMismatch = errors.New("namespace does not match resource scope")
)

// Scope declares whether a resource lives inside a namespace
type Scope int

const (
	// Namespaced resources require a namespace for get, patch and delete
	Namespaced Scope = iota
	// Cluster resources must never carry a namespace
	Cluster
)

// Endpoint addresses a resource or a collection of resources on an API server
type Endpoint struct {
	// Base is the scheme and host, e.g. https://api.example.com:6443
	Base      string
	Group     string
	Version   string
	Resource  string
	Namespace string
	// Name is empty for list operations
	Name string
}

// BuildPath maps a group/version/resource/namespace/name tuple to a request path.
// An empty group selects the core API.
func BuildPath(group, version, resource, namespace, name string) (string, error) {
	if version == "" {
		return "", ErrEmptyVersion
	}
	if resource == "" {
		return "", ErrEmptyResource
	}
	for _, seg := range []string{group, version, resource, namespace, name} {
		if err := checkSegment(seg); err != nil {
			return "", err
		}
	}

	var b strings.Builder
	if group == "" {
		b.WriteString("/api/")
		b.WriteString(version)
	} else {
		b.WriteString("/apis/")
		b.WriteString(group)
		b.WriteString("/")
		b.WriteString(version)
	}
	if namespace != "" {
		b.WriteString("/namespaces/")
		b.WriteString(namespace)
	}
	b.WriteString("/")
	b.WriteString(resource)
	if name != "" {
		b.WriteString("/")
		b.WriteString(name)
	}
	return b.String(), nil
}

func checkSegment(seg string) error {
	if strings.ContainsAny(seg, "/?#") || seg == "." || seg == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidSegment, seg)
	}
	return nil
}

// ParsePath is the inverse of BuildPath
func ParsePath(path string) (Endpoint, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 3 {
		return Endpoint{}, fmt.Errorf("path %q is too short", path)
	}

	var ep Endpoint
	var rest []string
	switch parts[0] {
	case "api":
		ep.Version = parts[1]
		rest = parts[2:]
	case "apis":
		if len(parts) < 4 {
			return Endpoint{}, fmt.Errorf("path %q is too short for a group", path)
		}
		ep.Group = parts[1]
		ep.Version = parts[2]
		rest = parts[3:]
	default:
		return Endpoint{}, fmt.Errorf("path %q must start with /api or /apis", path)
	}

	// A namespaces/{ns} prefix only counts as a namespace when something follows it;
	// otherwise "namespaces" is the resource itself.
	if len(rest) >= 3 && rest[0] == "namespaces" {
		ep.Namespace = rest[1]
		rest = rest[2:]
	}

	switch len(rest) {
	case 1:
		ep.Resource = rest[0]
	case 2:
		ep.Resource = rest[0]
		ep.Name = rest[1]
	default:
		return Endpoint{}, fmt.Errorf("path %q has unexpected trailing segments", path)
	}
	if ep.Version == "" || ep.Resource == "" {
		return Endpoint{}, fmt.Errorf("path %q has empty segments", path)
	}
	return ep, nil
}

// Path returns the request path for the endpoint
func (e Endpoint) Path() (string, error) {
	return BuildPath(e.Group, e.Version, e.Resource, e.Namespace, e.Name)
}

// URL joins Base and Path
func (e Endpoint) URL() (string, error) {
	p, err := e.Path()
	if err != nil {
		return "", err
	}
	if e.Base == "" {
		return "", fmt.Errorf("endpoint base url is empty")
	}
	base, err := url.Parse(strings.TrimRight(e.Base, "/"))
	if err != nil {
		return "", fmt.Errorf("invalid base url %q: %w", e.Base, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("base url %q must include scheme and host", e.Base)
	}
	return base.String() + p, nil
}

// IsList reports whether the endpoint addresses a collection
func (e Endpoint) IsList() bool {
	return e.Name == ""
}

// WithName returns a copy of the endpoint addressing a single named resource
func (e Endpoint) WithName(name string) Endpoint {
	e.Name = name
	return e
}

// InNamespace returns a copy of the endpoint scoped to namespace
func (e Endpoint) InNamespace(namespace string) Endpoint {
	e.Namespace = namespace
	return e
}

// WithBase returns a copy of the endpoint targeting base
func (e Endpoint) WithBase(base string) Endpoint {
	e.Base = base
	return e
}

// Validate checks the endpoint against the scope declared by the caller.
// Listing a namespaced resource without a namespace is allowed (all namespaces).
func (e Endpoint) Validate(scope Scope) error {
	if _, err := e.Path(); err != nil {
		return err
	}
	switch scope {
	case Cluster:
		if e.Namespace != "" {
			return fmt.Errorf("%w: %s is cluster-scoped but namespace %q was given", ErrScopeMismatch, e.Resource, e.Namespace)
		}
	case Namespaced:
		if e.Namespace == "" && !e.IsList() {
			return fmt.Errorf("%w: %s %q requires a namespace", ErrScopeMismatch, e.Resource, e.Name)
		}
	}
	return nil
}

// GVR returns the group/version/resource triple of the endpoint
func (e Endpoint) GVR() schema.GroupVersionResource {
	return schema.GroupVersionResource{Group: e.Group, Version: e.Version, Resource: e.Resource}
}

// String renders a short human readable form for logs
func (e Endpoint) String() string {
	s := e.GVR().String()
	switch {
	case e.Namespace != "" && e.Name != "":
		return s + " " + e.Namespace + "/" + e.Name
	case e.Namespace != "":
		return s + " " + e.Namespace + "/*"
	case e.Name != "":
		return s + " " + e.Name
	}
	return s
}

package kubernetes

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/kloia/kubevirt-api-client/internal/apierrors"
	"github.com/kloia/kubevirt-api-client/internal/codec"
	"github.com/kloia/kubevirt-api-client/internal/locator"
	"github.com/kloia/kubevirt-api-client/internal/transport"
)

// Sender performs a single HTTP round trip. *transport.Transport implements it.
type Sender interface {
	Send(ctx context.Context, method, url string, header http.Header, body []byte) (*transport.Response, error)
}

// ResourceAPI is the generic get/list/patch/delete surface for any resource
type ResourceAPI interface {
	Get(ctx context.Context, ep locator.Endpoint) (codec.Envelope, error)
	List(ctx context.Context, ep locator.Endpoint, opts ListOptions) ([]codec.Envelope, error)
	Patch(ctx context.Context, ep locator.Endpoint, patch codec.PatchRequest) (PatchResult, error)
	Delete(ctx context.Context, ep locator.Endpoint) (Ack, error)
}

// ListOptions narrows a list request
type ListOptions struct {
	LabelSelector string
	FieldSelector string
}

func (o ListOptions) query() string {
	v := url.Values{}
	if o.LabelSelector != "" {
		v.Set("labelSelector", o.LabelSelector)
	}
	if o.FieldSelector != "" {
		v.Set("fieldSelector", o.FieldSelector)
	}
	return v.Encode()
}

// PatchResult is the outcome of a merge patch
type PatchResult struct {
	// Envelope is the object returned by the server. When Accepted is true it
	// may be zero or stale; it must not be read as the final state.
	Envelope codec.Envelope
	// Accepted is true when the server answered 202
	Accepted bool
}

// Ack acknowledges a delete
type Ack struct {
	StatusCode int
	// Envelope is the returned object when the server sent one, nil otherwise (e.g. 204)
	Envelope *codec.Envelope
}

// ResourceClient issues typed requests against a declarative HTTP resource API.
// It never retries; failures are returned to the caller as
// *transport.TransportError, *apierrors.APIError or *codec.DecodeError.
type ResourceClient struct {
	sender Sender
	logger *zap.Logger
}

// NewResourceClient creates a ResourceClient
func NewResourceClient(sender Sender, logger *zap.Logger) *ResourceClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ResourceClient{sender: sender, logger: logger}
}

// Get fetches a single named resource. Only 200 succeeds.
func (c *ResourceClient) Get(ctx context.Context, ep locator.Endpoint) (codec.Envelope, error) {
	if ep.IsList() {
		return codec.Envelope{}, fmt.Errorf("get %s: resource name is required", ep)
	}
	u, err := ep.URL()
	if err != nil {
		return codec.Envelope{}, fmt.Errorf("get %s: %w", ep, err)
	}

	resp, err := c.sender.Send(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return codec.Envelope{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return codec.Envelope{}, apierrors.New(http.MethodGet, u, resp.StatusCode, resp.Body)
	}
	return codec.Decode(resp.Body)
}

// List fetches a collection. Only 200 succeeds; an empty collection is not an error.
func (c *ResourceClient) List(ctx context.Context, ep locator.Endpoint, opts ListOptions) ([]codec.Envelope, error) {
	if !ep.IsList() {
		return nil, fmt.Errorf("list %s: endpoint must not carry a resource name", ep)
	}
	u, err := ep.URL()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", ep, err)
	}
	if q := opts.query(); q != "" {
		u += "?" + q
	}

	resp, err := c.sender.Send(ctx, http.MethodGet, u, nil, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apierrors.New(http.MethodGet, u, resp.StatusCode, resp.Body)
	}

	items, err := codec.DecodeList(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("Listed resources", zap.Stringer("endpoint", ep), zap.Int("count", len(items)))
	return items, nil
}

// Patch sends a merge patch. 200 and 202 succeed; on 202 the change is only
// accepted and PatchResult.Accepted is set.
func (c *ResourceClient) Patch(ctx context.Context, ep locator.Endpoint, patch codec.PatchRequest) (PatchResult, error) {
	if ep.IsList() {
		return PatchResult{}, fmt.Errorf("patch %s: resource name is required", ep)
	}
	u, err := ep.URL()
	if err != nil {
		return PatchResult{}, fmt.Errorf("patch %s: %w", ep, err)
	}
	body, err := patch.Encode()
	if err != nil {
		return PatchResult{}, err
	}

	header := http.Header{}
	header.Set("Content-Type", codec.MergePatchContentType)
	resp, err := c.sender.Send(ctx, http.MethodPatch, u, header, body)
	if err != nil {
		return PatchResult{}, err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		env, err := codec.Decode(resp.Body)
		if err != nil {
			return PatchResult{}, err
		}
		c.logger.Debug("Patched resource", zap.Stringer("endpoint", ep))
		return PatchResult{Envelope: env}, nil
	case http.StatusAccepted:
		c.logger.Debug("Patch accepted", zap.Stringer("endpoint", ep))
		// The body of a 202 is often a Status object; keep it only if it is the resource.
		env, _ := codec.Decode(resp.Body)
		return PatchResult{Envelope: env, Accepted: true}, nil
	default:
		return PatchResult{}, apierrors.New(http.MethodPatch, u, resp.StatusCode, resp.Body)
	}
}

// Delete removes a named resource. 200, 202 and 204 succeed.
func (c *ResourceClient) Delete(ctx context.Context, ep locator.Endpoint) (Ack, error) {
	if ep.IsList() {
		return Ack{}, fmt.Errorf("delete %s: resource name is required", ep)
	}
	u, err := ep.URL()
	if err != nil {
		return Ack{}, fmt.Errorf("delete %s: %w", ep, err)
	}

	resp, err := c.sender.Send(ctx, http.MethodDelete, u, nil, nil)
	if err != nil {
		return Ack{}, err
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		ack := Ack{StatusCode: resp.StatusCode}
		if env, err := codec.Decode(resp.Body); err == nil {
			ack.Envelope = &env
		}
		c.logger.Debug("Deleted resource", zap.Stringer("endpoint", ep), zap.Int("status", resp.StatusCode))
		return ack, nil
	case http.StatusNoContent:
		c.logger.Debug("Deleted resource", zap.Stringer("endpoint", ep), zap.Int("status", resp.StatusCode))
		return Ack{StatusCode: resp.StatusCode}, nil
	default:
		return Ack{}, apierrors.New(http.MethodDelete, u, resp.StatusCode, resp.Body)
	}
}

package kubernetes

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kloia/kubevirt-api-client/internal/codec"
	"github.com/kloia/kubevirt-api-client/internal/locator"
	"github.com/kloia/kubevirt-api-client/internal/poller"
)

// VM printable statuses reported by KubeVirt
const (
	VMStatusRunning = "Running"
	VMStatusStopped = "Stopped"
)

// DefaultPollInterval is used between status checks when waiting on a VM
const DefaultPollInterval = 5 * time.Second

// BaseClient provides common implementation for Kubernetes clients
type BaseClient struct {
	api          ResourceAPI
	server       string
	logger       *zap.Logger
	pollInterval time.Duration
	maxFailures  int
	clock        poller.Clock
}

// BaseClientOption configures a BaseClient
type BaseClientOption func(*BaseClient)

// WithPollInterval sets the interval between status checks
func WithPollInterval(d time.Duration) BaseClientOption {
	return func(c *BaseClient) { c.pollInterval = d }
}

// WithMaxPollFailures sets how many consecutive failed checks end a wait
func WithMaxPollFailures(n int) BaseClientOption {
	return func(c *BaseClient) { c.maxFailures = n }
}

// WithPollClock replaces the clock used by waits
func WithPollClock(clock poller.Clock) BaseClientOption {
	return func(c *BaseClient) { c.clock = clock }
}

// NewBaseClient creates a new BaseClient instance
func NewBaseClient(server string, api ResourceAPI, logger *zap.Logger, opts ...BaseClientOption) *BaseClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &BaseClient{
		api:          api,
		server:       server,
		logger:       logger,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *BaseClient) namespaced(tmpl locator.Endpoint, name, namespace string) (locator.Endpoint, error) {
	ep := tmpl.WithBase(c.server).InNamespace(namespace).WithName(name)
	if err := ep.Validate(locator.Namespaced); err != nil {
		return locator.Endpoint{}, err
	}
	return ep, nil
}

// ListVMs lists virtual machines in namespace, or in all namespaces when empty
func (c *BaseClient) ListVMs(ctx context.Context, namespace string) ([]codec.Envelope, error) {
	vms, err := c.api.List(ctx, locator.VirtualMachines.WithBase(c.server).InNamespace(namespace), ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list VMs: %w", err)
	}
	return vms, nil
}

// GetVM fetches a virtual machine
func (c *BaseClient) GetVM(ctx context.Context, vmName, namespace string) (codec.Envelope, error) {
	ep, err := c.namespaced(locator.VirtualMachines, vmName, namespace)
	if err != nil {
		return codec.Envelope{}, err
	}
	return c.api.Get(ctx, ep)
}

// GetVMStatus returns the printable status of a virtual machine
func (c *BaseClient) GetVMStatus(ctx context.Context, vmName, namespace string) (string, error) {
	vm, err := c.GetVM(ctx, vmName, namespace)
	if err != nil {
		return "", fmt.Errorf("failed to get VM status: %w", err)
	}
	status, ok := vm.NestedString("status", "printableStatus")
	if !ok {
		return "", fmt.Errorf("VM %s/%s reports no printableStatus", namespace, vmName)
	}
	return status, nil
}

// StartVM starts a virtual machine
func (c *BaseClient) StartVM(ctx context.Context, vmName, namespace string) error {
	if err := c.setRunning(ctx, vmName, namespace, true); err != nil {
		return fmt.Errorf("failed to start VM: %w", err)
	}
	return nil
}

// StopVM stops a virtual machine
func (c *BaseClient) StopVM(ctx context.Context, vmName, namespace string) error {
	if err := c.setRunning(ctx, vmName, namespace, false); err != nil {
		return fmt.Errorf("failed to stop VM: %w", err)
	}
	return nil
}

// setRunning patches spec.runStrategy when the VM declares one, spec.running otherwise
func (c *BaseClient) setRunning(ctx context.Context, vmName, namespace string, running bool) error {
	ep, err := c.namespaced(locator.VirtualMachines, vmName, namespace)
	if err != nil {
		return err
	}
	vm, err := c.api.Get(ctx, ep)
	if err != nil {
		return err
	}

	var patch codec.PatchRequest
	if vm.HasField("spec", "runStrategy") {
		strategy := "Halted"
		if running {
			strategy = "Always"
		}
		patch = codec.SpecPatch(map[string]interface{}{"runStrategy": strategy})
		c.logger.Info("Using runStrategy to change VM state", zap.String("vm", vmName), zap.String("runStrategy", strategy))
	} else {
		patch = codec.SpecPatch(map[string]interface{}{"running": running})
		c.logger.Info("Using running field to change VM state", zap.String("vm", vmName), zap.Bool("running", running))
	}

	res, err := c.api.Patch(ctx, ep, patch)
	if err != nil {
		return err
	}
	if res.Accepted {
		c.logger.Debug("VM patch accepted, state change pending", zap.String("vm", vmName))
	}
	return nil
}

// RestartVM stops a VM, waits for it to halt, starts it and waits for it to run.
// The steps run strictly in sequence on the calling goroutine.
func (c *BaseClient) RestartVM(ctx context.Context, vmName, namespace string, timeout time.Duration) error {
	c.logger.Info("Restarting VM", zap.String("vm", vmName), zap.String("namespace", namespace))

	if err := c.StopVM(ctx, vmName, namespace); err != nil {
		return err
	}
	if err := c.WaitForVMStatus(ctx, vmName, namespace, VMStatusStopped, timeout); err != nil {
		return fmt.Errorf("failed while waiting for VM to stop: %w", err)
	}
	if err := c.StartVM(ctx, vmName, namespace); err != nil {
		return err
	}
	if err := c.WaitForVMStatus(ctx, vmName, namespace, VMStatusRunning, timeout); err != nil {
		return fmt.Errorf("failed while waiting for VM to start: %w", err)
	}

	c.logger.Info("VM restarted", zap.String("vm", vmName))
	return nil
}

func (c *BaseClient) pollOptions(desc string) []poller.Option {
	opts := []poller.Option{poller.WithLogger(c.logger), poller.WithDescription(desc)}
	if c.clock != nil {
		opts = append(opts, poller.WithClock(c.clock))
	}
	return opts
}

func (c *BaseClient) pollConfig(timeout time.Duration, absenceSatisfies bool) poller.Config {
	return poller.Config{
		Interval:               c.pollInterval,
		Timeout:                timeout,
		MaxConsecutiveFailures: c.maxFailures,
		AbsenceSatisfies:       absenceSatisfies,
	}
}

// WaitForVMStatus waits for a VM to reach the specified status
func (c *BaseClient) WaitForVMStatus(ctx context.Context, vmName, namespace, expectedStatus string, timeout time.Duration) error {
	ep, err := c.namespaced(locator.VirtualMachines, vmName, namespace)
	if err != nil {
		return err
	}

	c.logger.Info("Waiting for VM to reach status",
		zap.String("vm", vmName),
		zap.String("namespace", namespace),
		zap.String("expected_status", expectedStatus),
		zap.Duration("timeout", timeout))

	predicate := func(vm codec.Envelope) bool {
		status, _ := vm.NestedString("status", "printableStatus")
		if status != expectedStatus {
			c.logger.Info("VM status check",
				zap.String("vm", vmName),
				zap.String("current", status),
				zap.String("expected", expectedStatus))
			return false
		}
		return true
	}

	accessor := func(ctx context.Context) (codec.Envelope, error) { return c.api.Get(ctx, ep) }
	if _, err := poller.Wait(ctx, accessor, predicate, c.pollConfig(timeout, false), c.pollOptions("vm status "+expectedStatus)...); err != nil {
		return fmt.Errorf("VM %s did not reach status %s: %w", vmName, expectedStatus, err)
	}

	c.logger.Info("VM reached expected status", zap.String("vm", vmName), zap.String("status", expectedStatus))
	return nil
}

// WaitForVMIRunning waits for the VM instance to report phase Running
func (c *BaseClient) WaitForVMIRunning(ctx context.Context, vmName, namespace string, timeout time.Duration) error {
	ep, err := c.namespaced(locator.VirtualMachineInstances, vmName, namespace)
	if err != nil {
		return err
	}
	predicate := func(vmi codec.Envelope) bool {
		phase, _ := vmi.NestedString("status", "phase")
		return phase == "Running"
	}
	accessor := func(ctx context.Context) (codec.Envelope, error) { return c.api.Get(ctx, ep) }
	if _, err := poller.Wait(ctx, accessor, predicate, c.pollConfig(timeout, false), c.pollOptions("vmi running")...); err != nil {
		return fmt.Errorf("VMI %s is not running: %w", vmName, err)
	}
	return nil
}

// WaitForVMIGone waits until the VM instance no longer exists, i.e. the VM is fully halted
func (c *BaseClient) WaitForVMIGone(ctx context.Context, vmName, namespace string, timeout time.Duration) error {
	ep, err := c.namespaced(locator.VirtualMachineInstances, vmName, namespace)
	if err != nil {
		return err
	}
	never := func(codec.Envelope) bool { return false }
	accessor := func(ctx context.Context) (codec.Envelope, error) { return c.api.Get(ctx, ep) }
	if _, err := poller.Wait(ctx, accessor, never, c.pollConfig(timeout, true), c.pollOptions("vmi deletion")...); err != nil {
		return fmt.Errorf("VMI %s still exists: %w", vmName, err)
	}
	return nil
}

// ListPlans lists migration plans in namespace
func (c *BaseClient) ListPlans(ctx context.Context, namespace string) ([]codec.Envelope, error) {
	plans, err := c.api.List(ctx, locator.MigrationPlans.WithBase(c.server).InNamespace(namespace), ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to list migration plans: %w", err)
	}
	return plans, nil
}

// GetPlan fetches a migration plan
func (c *BaseClient) GetPlan(ctx context.Context, planName, namespace string) (codec.Envelope, error) {
	ep, err := c.namespaced(locator.MigrationPlans, planName, namespace)
	if err != nil {
		return codec.Envelope{}, err
	}
	return c.api.Get(ctx, ep)
}

// ArchivePlan marks a migration plan as archived
func (c *BaseClient) ArchivePlan(ctx context.Context, planName, namespace string) (PatchResult, error) {
	ep, err := c.namespaced(locator.MigrationPlans, planName, namespace)
	if err != nil {
		return PatchResult{}, err
	}
	res, err := c.api.Patch(ctx, ep, codec.SpecPatch(map[string]interface{}{"archived": true}))
	if err != nil {
		return PatchResult{}, fmt.Errorf("failed to archive plan %s: %w", planName, err)
	}
	c.logger.Info("Migration plan archived", zap.String("plan", planName), zap.Bool("accepted", res.Accepted))
	return res, nil
}

// DeletePlan deletes a migration plan
func (c *BaseClient) DeletePlan(ctx context.Context, planName, namespace string) (Ack, error) {
	ep, err := c.namespaced(locator.MigrationPlans, planName, namespace)
	if err != nil {
		return Ack{}, err
	}
	ack, err := c.api.Delete(ctx, ep)
	if err != nil {
		return Ack{}, fmt.Errorf("failed to delete plan %s: %w", planName, err)
	}
	c.logger.Info("Migration plan deleted", zap.String("plan", planName), zap.Int("status", ack.StatusCode))
	return ack, nil
}

// ListNamespaces lists namespaces, optionally filtered server-side by a label selector
func (c *BaseClient) ListNamespaces(ctx context.Context, labelSelector string) ([]codec.Envelope, error) {
	namespaces, err := c.api.List(ctx, locator.Namespaces.WithBase(c.server), ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("failed to list namespaces: %w", err)
	}
	return namespaces, nil
}

// ListPods lists pods in namespace, or in all namespaces when empty
func (c *BaseClient) ListPods(ctx context.Context, namespace, labelSelector string) ([]codec.Envelope, error) {
	pods, err := c.api.List(ctx, locator.Pods.WithBase(c.server).InNamespace(namespace), ListOptions{LabelSelector: labelSelector})
	if err != nil {
		return nil, fmt.Errorf("failed to list pods: %w", err)
	}
	return pods, nil
}

// DiscoverMetricsURL returns the https URL of the cluster Prometheus, read from
// the prometheus-k8s route in openshift-monitoring
func (c *BaseClient) DiscoverMetricsURL(ctx context.Context) (string, error) {
	ep, err := c.namespaced(locator.Routes, locator.PrometheusRoute, locator.MonitoringNamespace)
	if err != nil {
		return "", err
	}
	route, err := c.api.Get(ctx, ep)
	if err != nil {
		return "", fmt.Errorf("failed to read route %s/%s: %w", locator.MonitoringNamespace, locator.PrometheusRoute, err)
	}
	host, _ := route.NestedString("spec", "host")
	if host == "" {
		return "", fmt.Errorf("route %s/%s has no spec.host", locator.MonitoringNamespace, locator.PrometheusRoute)
	}
	metricsURL := "https://" + host
	c.logger.Debug("Discovered metrics endpoint", zap.String("url", metricsURL))
	return metricsURL, nil
}

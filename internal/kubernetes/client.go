package kubernetes

import (
	"context"
	"time"

	"github.com/kloia/kubevirt-api-client/internal/codec"
)

// KubernetesClient defines a common interface for interacting with Kubernetes/OpenShift clusters
type KubernetesClient interface {
	// VM Management
	ListVMs(ctx context.Context, namespace string) ([]codec.Envelope, error)
	GetVM(ctx context.Context, vmName, namespace string) (codec.Envelope, error)
	GetVMStatus(ctx context.Context, vmName, namespace string) (string, error)
	StartVM(ctx context.Context, vmName, namespace string) error
	StopVM(ctx context.Context, vmName, namespace string) error
	RestartVM(ctx context.Context, vmName, namespace string, timeout time.Duration) error
	WaitForVMStatus(ctx context.Context, vmName, namespace, expectedStatus string, timeout time.Duration) error
	WaitForVMIRunning(ctx context.Context, vmName, namespace string, timeout time.Duration) error
	WaitForVMIGone(ctx context.Context, vmName, namespace string, timeout time.Duration) error

	// Migration Plan Management
	ListPlans(ctx context.Context, namespace string) ([]codec.Envelope, error)
	GetPlan(ctx context.Context, planName, namespace string) (codec.Envelope, error)
	ArchivePlan(ctx context.Context, planName, namespace string) (PatchResult, error)
	DeletePlan(ctx context.Context, planName, namespace string) (Ack, error)

	// Namespace Management
	ListNamespaces(ctx context.Context, labelSelector string) ([]codec.Envelope, error)

	// Pod Management
	ListPods(ctx context.Context, namespace, labelSelector string) ([]codec.Envelope, error)

	// Monitoring
	DiscoverMetricsURL(ctx context.Context) (string, error)
}

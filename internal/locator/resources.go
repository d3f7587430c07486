package locator

// Well-known resources used by kvctl. Base, Namespace and Name are filled in by callers.
var (
	VirtualMachines = Endpoint{Group: "kubevirt.io", Version: "v1", Resource: "virtualmachines"}

	VirtualMachineInstances = Endpoint{Group: "kubevirt.io", Version: "v1", Resource: "virtualmachineinstances"}

	// MigrationPlans are Forklift (MTV) migration plans
	MigrationPlans = Endpoint{Group: "forklift.konveyor.io", Version: "v1beta1", Resource: "plans"}

	Namespaces = Endpoint{Version: "v1", Resource: "namespaces"}

	Pods = Endpoint{Version: "v1", Resource: "pods"}

	// Routes are OpenShift routes
	Routes = Endpoint{Group: "route.openshift.io", Version: "v1", Resource: "routes"}
)

// The OpenShift route exposing the cluster Prometheus
const (
	MonitoringNamespace = "openshift-monitoring"
	PrometheusRoute     = "prometheus-k8s"
)

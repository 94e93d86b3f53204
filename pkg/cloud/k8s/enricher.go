// Package k8s gives the scan a live view inside one Kubernetes cluster:
// how many nodes actually joined and how many scheduled pods are real
// application workloads rather than cluster plumbing. EKS inventory carries
// -1 in its live fields until this enricher fills them, so scans without
// cluster access stay honest about what they could not see.
package k8s

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/client-go/informers"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/wastewatch/wastewatch/pkg/inventory"
)

// DefaultResync is how often informer caches reconcile with the API server.
const DefaultResync = 10 * time.Minute

// Live is the observed state of the cluster the client points at.
type Live struct {
	Nodes     int
	Workloads int
}

// Enricher reads one cluster through the informer cache so repeated scans
// put no listing load on the API server.
type Enricher struct {
	clientset kubernetes.Interface
	resync    time.Duration
	logger    *slog.Logger
}

// Option adjusts an Enricher.
type Option func(*Enricher)

// WithResync overrides the informer cache resync interval.
func WithResync(d time.Duration) Option {
	return func(e *Enricher) {
		if d > 0 {
			e.resync = d
		}
	}
}

// WithLogger routes enricher logging.
func WithLogger(l *slog.Logger) Option {
	return func(e *Enricher) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEnricher wraps an existing clientset.
func NewEnricher(clientset kubernetes.Interface, opts ...Option) *Enricher {
	e := &Enricher{
		clientset: clientset,
		resync:    DefaultResync,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FromKubeconfig builds an Enricher from a kubeconfig file. An empty path
// follows the usual loading rules (KUBECONFIG, ~/.kube/config); an empty
// context keeps the file's current one.
func FromKubeconfig(path, contextName string, opts ...Option) (*Enricher, error) {
	rules := clientcmd.NewDefaultClientConfigLoadingRules()
	if path != "" {
		rules.ExplicitPath = path
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: contextName}
	cfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, overrides).ClientConfig()
	if err != nil {
		return nil, fmt.Errorf("load kubeconfig: %w", err)
	}
	clientset, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("build kubernetes client: %w", err)
	}
	return NewEnricher(clientset, opts...), nil
}

// Observe lists nodes and pods from the informer cache and counts what is
// genuinely running. Pods that finished, DaemonSet members, mirror pods and
// anything in kube-system are plumbing, not workloads.
func (e *Enricher) Observe(ctx context.Context) (Live, error) {
	factory := informers.NewSharedInformerFactory(e.clientset, e.resync)
	nodeLister := factory.Core().V1().Nodes().Lister()
	podLister := factory.Core().V1().Pods().Lister()

	factory.Start(ctx.Done())
	for kind, ok := range factory.WaitForCacheSync(ctx.Done()) {
		if !ok {
			return Live{}, fmt.Errorf("sync informer cache for %v", kind)
		}
	}

	nodes, err := nodeLister.List(labels.Everything())
	if err != nil {
		return Live{}, fmt.Errorf("list nodes: %w", err)
	}
	pods, err := podLister.List(labels.Everything())
	if err != nil {
		return Live{}, fmt.Errorf("list pods: %w", err)
	}

	live := Live{Nodes: len(nodes)}
	for _, pod := range pods {
		if isWorkload(pod) {
			live.Workloads++
		}
	}
	return live, nil
}

// Enrich fills the live fields of the named cluster in the inventory. Other
// clusters keep their unknown sentinel; one kubeconfig speaks for one
// cluster only.
func (e *Enricher) Enrich(ctx context.Context, inv *inventory.Inventory, clusterName string) error {
	live, err := e.Observe(ctx)
	if err != nil {
		return err
	}
	for i := range inv.K8sClusters {
		if inv.K8sClusters[i].Name != clusterName {
			continue
		}
		inv.K8sClusters[i].LiveNodes = live.Nodes
		inv.K8sClusters[i].LiveWorkloads = live.Workloads
		e.logger.Info("cluster enriched",
			"cluster", clusterName, "live_nodes", live.Nodes, "live_workloads", live.Workloads)
		return nil
	}
	return fmt.Errorf("cluster %s not present in inventory", clusterName)
}

func isWorkload(pod *corev1.Pod) bool {
	if pod.Status.Phase == corev1.PodSucceeded || pod.Status.Phase == corev1.PodFailed {
		return false
	}
	for _, ref := range pod.OwnerReferences {
		if ref.Kind == "DaemonSet" {
			return false
		}
	}
	if _, mirror := pod.Annotations["kubernetes.io/config.mirror"]; mirror {
		return false
	}
	if pod.Namespace == "kube-system" {
		return false
	}
	return true
}

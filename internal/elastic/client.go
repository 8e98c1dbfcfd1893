package elastic

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	k8sV1 "k8s.io/api/core/v1"
	metaV1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	k8sClient "k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	// Used to load all auth plugins.
	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

// podClient is the slice of the typed core v1 pod API the controller needs
// from a cluster. The real implementation is typedV1.PodInterface.
type podClient interface {
	Create(ctx context.Context, pod *k8sV1.Pod, opts metaV1.CreateOptions) (*k8sV1.Pod, error)
	Get(ctx context.Context, name string, opts metaV1.GetOptions) (*k8sV1.Pod, error)
	List(ctx context.Context, opts metaV1.ListOptions) (*k8sV1.PodList, error)
	Delete(ctx context.Context, name string, opts metaV1.DeleteOptions) error
}

// clientFactory resolves a capacity policy to a pod client for the cluster
// and namespace the policy names.
type clientFactory interface {
	podsFor(policy CapacityPolicy) (podClient, error)
}

// kubernetesClientFactory caches one clientset per cluster endpoint so that
// instances sharing a profile share a connection.
type kubernetesClientFactory struct {
	mu         sync.Mutex
	clientSets map[string]*k8sClient.Clientset
	syslog     *logrus.Entry
}

func newClientFactory() *kubernetesClientFactory {
	return &kubernetesClientFactory{
		clientSets: make(map[string]*k8sClient.Clientset),
		syslog:     logrus.WithField("component", "k8s-client-factory"),
	}
}

func (f *kubernetesClientFactory) podsFor(policy CapacityPolicy) (podClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := policy.endpoint()
	if clientSet, ok := f.clientSets[key]; ok {
		return clientSet.CoreV1().Pods(policy.Namespace), nil
	}

	config, err := clientConfig(policy)
	if err != nil {
		return nil, errors.Wrap(err, "error building kubernetes config")
	}
	clientSet, err := k8sClient.NewForConfig(config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to initialize kubernetes clientSet")
	}
	f.clientSets[key] = clientSet
	f.syslog.Infof("kubernetes clientSet initialized for %s", key)
	return clientSet.CoreV1().Pods(policy.Namespace), nil
}

func clientConfig(policy CapacityPolicy) (*rest.Config, error) {
	if policy.ClusterURL == "" {
		// The default in-cluster case: client-go reads the service account
		// token and CA certificate mounted into the pod.
		return rest.InClusterConfig()
	}

	return &rest.Config{
		Host:        policy.ClusterURL,
		BearerToken: policy.SecurityToken,
		TLSClientConfig: rest.TLSClientConfig{
			CAData: []byte(policy.ClusterCACert),
		},
	}, nil
}

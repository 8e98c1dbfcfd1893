package elastic

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	k8sV1 "k8s.io/api/core/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metaV1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

type mockPodClient struct {
	pods map[string]*k8sV1.Pod
	// Simulates latency of the real k8s API server.
	operationalDelay time.Duration
	mux              sync.Mutex

	createErr error
	listErr   error
	getErr    error
	deleteErr error
}

func newMockPodClient(pods ...*k8sV1.Pod) *mockPodClient {
	m := &mockPodClient{pods: make(map[string]*k8sV1.Pod)}
	for _, pod := range pods {
		m.pods[pod.Name] = pod.DeepCopy()
	}
	return m
}

func (m *mockPodClient) Create(
	ctx context.Context, pod *k8sV1.Pod, opts metaV1.CreateOptions,
) (*k8sV1.Pod, error) {
	time.Sleep(m.operationalDelay)
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.createErr != nil {
		return nil, m.createErr
	}
	if _, present := m.pods[pod.Name]; present {
		return nil, errors.Errorf("pod with name %s already exists", pod.Name)
	}

	m.pods[pod.Name] = pod.DeepCopy()
	return m.pods[pod.Name], nil
}

func (m *mockPodClient) Get(
	ctx context.Context, name string, opts metaV1.GetOptions,
) (*k8sV1.Pod, error) {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.getErr != nil {
		return nil, m.getErr
	}
	pod, present := m.pods[name]
	if !present {
		return nil, k8serrors.NewNotFound(k8sV1.Resource("pods"), name)
	}
	return pod.DeepCopy(), nil
}

func (m *mockPodClient) List(
	ctx context.Context, opts metaV1.ListOptions,
) (*k8sV1.PodList, error) {
	time.Sleep(m.operationalDelay)
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.listErr != nil {
		return nil, m.listErr
	}

	podList := &k8sV1.PodList{}
	for _, pod := range m.pods {
		if opts.LabelSelector != "" && !matchesSelector(pod, opts.LabelSelector) {
			continue
		}
		podList.Items = append(podList.Items, *pod)
	}
	return podList, nil
}

func (m *mockPodClient) Delete(
	ctx context.Context, name string, opts metaV1.DeleteOptions,
) error {
	m.mux.Lock()
	defer m.mux.Unlock()

	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, present := m.pods[name]; !present {
		return k8serrors.NewNotFound(k8sV1.Resource("pods"), name)
	}
	delete(m.pods, name)
	return nil
}

func (m *mockPodClient) numPods() int {
	m.mux.Lock()
	defer m.mux.Unlock()

	return len(m.pods)
}

func matchesSelector(pod *k8sV1.Pod, selector string) bool {
	for _, term := range strings.Split(selector, ",") {
		kv := strings.SplitN(term, "=", 2)
		if len(kv) == 1 {
			if _, ok := pod.Labels[kv[0]]; !ok {
				return false
			}
			continue
		}
		if pod.Labels[kv[0]] != kv[1] {
			return false
		}
	}
	return true
}

type mockClientFactory struct {
	client     podClient
	byEndpoint map[string]podClient
	err        error
}

func (f *mockClientFactory) podsFor(policy CapacityPolicy) (podClient, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.byEndpoint != nil {
		if client, ok := f.byEndpoint[policy.endpoint()]; ok {
			return client, nil
		}
	}
	return f.client, nil
}

type fakeClock struct {
	mux sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mux.Lock()
	defer c.mux.Unlock()

	return c.now
}

func (c *fakeClock) set(t time.Time) {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.now = t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mux.Lock()
	defer c.mux.Unlock()

	c.now = c.now.Add(d)
}

type mockGateway struct {
	mux      sync.Mutex
	agents   Agents
	listErr  error
	disabled Agents
	deleted  Agents
}

func (g *mockGateway) ListAgents() (Agents, error) {
	g.mux.Lock()
	defer g.mux.Unlock()

	return g.agents, g.listErr
}

func (g *mockGateway) DisableAgents(agents Agents) error {
	g.mux.Lock()
	defer g.mux.Unlock()

	g.disabled = append(g.disabled, agents...)
	return nil
}

func (g *mockGateway) DeleteAgents(agents Agents) error {
	g.mux.Lock()
	defer g.mux.Unlock()

	g.deleted = append(g.deleted, agents...)
	return nil
}

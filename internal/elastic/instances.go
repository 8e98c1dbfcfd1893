package elastic

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metaV1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/gocd-contrib/kubernetes-elastic-agent/pkg/clock"
	"github.com/gocd-contrib/kubernetes-elastic-agent/pkg/set"
)

// AgentInstances tracks every elastic agent pod the controller has
// provisioned or adopted and gates the creation of new ones.
//
// The entire creation path (refresh, capacity check, pod creation,
// registration) runs under a single mutex: at most one creation decision is
// in flight at any time, so the capacity computation never races a
// concurrent create. Termination and sweep-triggered refreshes run outside
// that mutex; refresh is additive and idempotent, so the race is benign.
type AgentInstances struct {
	mu       sync.Mutex
	registry *registry

	clk     clock.Clock
	clients clientFactory
	specs   specBuilder

	// defaultPolicy names the cluster endpoint to reconcile against when the
	// registry holds no instances yet.
	defaultPolicy CapacityPolicy

	syslog *logrus.Entry
}

// NewAgentInstances returns an AgentInstances talking to real Kubernetes
// clusters. The default policy is used to bootstrap reconciliation before
// any instance is known.
func NewAgentInstances(defaultPolicy CapacityPolicy) *AgentInstances {
	return newAgentInstances(clock.System, newClientFactory(), podSpecBuilder{}, defaultPolicy)
}

func newAgentInstances(
	clk clock.Clock,
	clients clientFactory,
	specs specBuilder,
	defaultPolicy CapacityPolicy,
) *AgentInstances {
	return &AgentInstances{
		registry:      newRegistry(),
		clk:           clk,
		clients:       clients,
		specs:         specs,
		defaultPolicy: defaultPolicy,
		syslog:        logrus.WithField("component", "agent-instances"),
	}
}

// Create provisions one agent pod for the request under the given capacity
// policy. A nil instance with a nil error means the request was rejected as
// a normal outcome: either the policy's capacity is exhausted or another
// live instance already serves the same job. Backend failures during
// creation are hard errors and leave no local state behind.
func (a *AgentInstances) Create(
	ctx context.Context, req CreateAgentRequest, policy CapacityPolicy,
) (*Instance, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	// Reconcile first so the admission decision is made against current
	// cluster truth rather than stale local state.
	a.refresh(ctx)

	if available := policy.MaxPendingInstances - a.registry.len(); available < 1 {
		a.syslog.Warnf(
			"the number of pending agent pods is at the maximum permissible limit (%d), total pods (%d), not creating any more",
			policy.MaxPendingInstances, a.registry.len())
		return nil, nil
	}

	for _, in := range a.registry.snapshot() {
		if in.JobID == req.JobID {
			a.syslog.Warnf(
				"an agent for job %s has already been scheduled, skipping the request", req.JobID)
			return nil, nil
		}
	}

	pods, err := a.clients.podsFor(policy)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("k8s-ea-%s", uuid.NewString())
	spec, err := a.specs.buildPod(name, req, policy)
	if err != nil {
		return nil, errors.Wrapf(err, "error building pod spec for job %s", req.JobID)
	}

	created, err := pods.Create(ctx, spec, metaV1.CreateOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "error creating pod %s", name)
	}

	createdAt := created.CreationTimestamp.Time
	if createdAt.IsZero() {
		createdAt = a.clk.Now()
	}
	in := Instance{
		ID:        created.Name,
		JobID:     req.JobID,
		CreatedAt: createdAt,
		Policy:    policy,
	}
	a.registry.register(in)
	a.syslog.WithField("pod", in.ID).Infof("created agent pod for job %s", req.JobID)
	return &in, nil
}

// Refresh makes the registry converge towards cluster truth. It never
// removes entries and is idempotent; failures against one cluster endpoint
// are logged and skipped so the remaining endpoints still converge.
func (a *AgentInstances) Refresh(ctx context.Context) {
	a.refresh(ctx)
}

func (a *AgentInstances) refresh(ctx context.Context) {
	policies := []CapacityPolicy{a.defaultPolicy}
	for _, in := range a.registry.snapshot() {
		policies = append(policies, in.Policy)
	}

	// One list call per distinct endpoint per pass.
	seen := set.New[string]()
	for _, policy := range policies {
		if seen.Contains(policy.endpoint()) {
			continue
		}
		seen.Insert(policy.endpoint())

		pods, err := a.clients.podsFor(policy)
		if err != nil {
			a.syslog.WithError(err).Warnf("error connecting to %s, skipping sync", policy.endpoint())
			continue
		}
		list, err := pods.List(ctx, metaV1.ListOptions{LabelSelector: elasticAgentLabelSelector()})
		if err != nil {
			a.syslog.WithError(err).Warnf("error listing agent pods in %s, skipping sync", policy.endpoint())
			continue
		}

		for i := range list.Items {
			pod := &list.Items[i]
			a.registry.register(Instance{
				ID:        pod.Name,
				JobID:     pod.Labels[jobIDLabelKey],
				CreatedAt: pod.CreationTimestamp.Time,
				Policy:    policy,
			})
		}
	}
	a.syslog.Debugf("agent pod state synced, known pod count is %d", a.registry.len())
}

// Find returns the instance with the given id, if known.
func (a *AgentInstances) Find(id string) (Instance, bool) {
	return a.registry.find(id)
}

// All returns a snapshot of every known instance.
func (a *AgentInstances) All() []Instance {
	return a.registry.snapshot()
}

// Terminate deletes the instance's pod and forgets the instance. Terminating
// an unknown id is a benign no-op so callers may retry freely. The registry
// entry is removed even if the pod deletion fails: local state must not
// retain ghosts when the remote delete is uncertain.
func (a *AgentInstances) Terminate(ctx context.Context, id string) error {
	in, ok := a.registry.find(id)
	if !ok {
		a.syslog.Warnf("requested to terminate an instance that does not exist %s", id)
		return nil
	}
	defer a.registry.remove(id)

	pods, err := a.clients.podsFor(in.Policy)
	if err != nil {
		return errors.Wrapf(err, "error connecting to %s to terminate %s", in.Policy.endpoint(), id)
	}
	if err := pods.Delete(ctx, id, metaV1.DeleteOptions{}); err != nil && !k8serrors.IsNotFound(err) {
		return errors.Wrapf(err, "error deleting pod %s", id)
	}
	return nil
}

// AgentsExceedingRegisterTimeout returns the known agents whose instances
// are older than their policy's auto-register timeout. Agents without a
// matching local instance are not this function's concern. The comparison is
// strictly "after": an agent exactly at the boundary is not yet timed out.
func (a *AgentInstances) AgentsExceedingRegisterTimeout(known Agents) Agents {
	now := a.clk.Now()
	var old Agents
	for _, agent := range known {
		in, ok := a.registry.find(agent.ID)
		if !ok {
			continue
		}
		if now.After(in.CreatedAt.Add(in.Policy.AutoRegisterTimeout)) {
			old = append(old, agent)
		}
	}
	return old
}

// TerminateUnregistered deletes every instance that never checked in with
// the scheduling server and whose pod has outlived its auto-register
// timeout. Pods already gone from the cluster are treated as cleaned up.
func (a *AgentInstances) TerminateUnregistered(ctx context.Context, known Agents) error {
	ids := known.IDSet()
	now := a.clk.Now()

	var expired []string
	for _, in := range a.registry.snapshot() {
		if ids.Contains(in.ID) {
			continue
		}

		pods, err := a.clients.podsFor(in.Policy)
		if err != nil {
			a.syslog.WithError(err).Warnf("error connecting to %s, skipping %s", in.Policy.endpoint(), in.ID)
			continue
		}
		pod, err := pods.Get(ctx, in.ID, metaV1.GetOptions{})
		if k8serrors.IsNotFound(err) {
			a.syslog.Debugf("pod %s is already deleted", in.ID)
			continue
		}
		if err != nil {
			a.syslog.WithError(err).Warnf("failed to fetch pod %s information", in.ID)
			continue
		}

		if now.After(pod.CreationTimestamp.Time.Add(in.Policy.AutoRegisterTimeout)) {
			expired = append(expired, in.ID)
		}
	}
	if len(expired) == 0 {
		return nil
	}

	a.syslog.Warnf("terminating instances that did not register %v", expired)
	var merr *multierror.Error
	for _, id := range expired {
		if err := a.Terminate(ctx, id); err != nil {
			merr = multierror.Append(merr, err)
		}
	}
	return merr.ErrorOrNil()
}

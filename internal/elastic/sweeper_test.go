package elastic

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"gotest.tools/assert"
)

func TestSweepRetiresTimedOutAgents(t *testing.T) {
	policy := testPolicy(5, 10*time.Minute)
	client := newMockPodClient(
		managedPod("k8s-ea-old", "1", t0),
		managedPod("k8s-ea-unregistered", "2", t0),
	)
	clk := &fakeClock{now: t0.Add(10*time.Minute + time.Second)}
	instances := newTestInstances(clk, client, policy)

	gateway := &mockGateway{agents: Agents{{ID: "k8s-ea-old"}}}
	sweeper := NewSweeper(instances, gateway, time.Minute)

	require.NoError(t, sweeper.Sweep(context.Background()))

	// The registered-but-timed-out agent is retired on the scheduling side
	// and its pod deleted.
	require.Equal(t, len(gateway.disabled), 1)
	assert.Equal(t, gateway.disabled[0].ID, "k8s-ea-old")
	require.Equal(t, len(gateway.deleted), 1)
	assert.Equal(t, gateway.deleted[0].ID, "k8s-ea-old")

	// The never-registered pod is terminated as well.
	assert.Equal(t, client.numPods(), 0)
	assert.Equal(t, len(instances.All()), 0)
}

func TestSweepLeavesHealthyAgentsAlone(t *testing.T) {
	policy := testPolicy(5, 10*time.Minute)
	client := newMockPodClient(managedPod("k8s-ea-fresh", "1", t0))
	clk := &fakeClock{now: t0.Add(time.Minute)}
	instances := newTestInstances(clk, client, policy)

	gateway := &mockGateway{agents: Agents{{ID: "k8s-ea-fresh"}}}
	sweeper := NewSweeper(instances, gateway, time.Minute)

	require.NoError(t, sweeper.Sweep(context.Background()))

	assert.Equal(t, len(gateway.disabled), 0)
	assert.Equal(t, client.numPods(), 1)
	assert.Equal(t, len(instances.All()), 1)
}

func TestSweepGatewayFailure(t *testing.T) {
	policy := testPolicy(5, 10*time.Minute)
	client := newMockPodClient(managedPod("k8s-ea-old", "1", t0))
	clk := &fakeClock{now: t0.Add(time.Hour)}
	instances := newTestInstances(clk, client, policy)

	gateway := &mockGateway{listErr: errors.New("server unreachable")}
	sweeper := NewSweeper(instances, gateway, time.Minute)

	require.Error(t, sweeper.Sweep(context.Background()))
	assert.Equal(t, client.numPods(), 1, "nothing is terminated without the known-agents set")
}

// Package elastic manages the lifecycle of elastic agent pods provisioned on
// demand in a Kubernetes cluster. It decides whether a new agent may be
// created, keeps an in-memory registry converged with cluster state, and
// tears down agents that never completed registration in time.
package elastic

import (
	"fmt"
	"time"
)

const (
	elasticAgentLabelKey   = "kind"
	elasticAgentLabelValue = "kubernetes-elastic-agent"
	jobIDLabelKey          = "elastic-agent-job-id"

	pluginID = "cd.go.contrib.elasticagent.kubernetes"
)

func elasticAgentLabelSelector() string {
	return fmt.Sprintf("%s=%s", elasticAgentLabelKey, elasticAgentLabelValue)
}

// CapacityPolicy is the per-request admission configuration. Each creation
// request may carry a different policy, so none of these settings are global.
type CapacityPolicy struct {
	// MaxPendingInstances bounds how many instances may exist for this
	// policy's cluster before new creation requests are rejected.
	MaxPendingInstances int
	// AutoRegisterTimeout is how long an agent pod may exist without
	// registering with the scheduling server before it is considered dead.
	AutoRegisterTimeout time.Duration

	// ClusterURL is the Kubernetes API server address. Empty means the
	// in-cluster configuration.
	ClusterURL    string
	Namespace     string
	ClusterCACert string
	SecurityToken string
}

// endpoint identifies the cluster connection this policy resolves to.
// Reconciliation groups instances by endpoint to avoid duplicate list calls.
func (p CapacityPolicy) endpoint() string {
	return p.ClusterURL + "/" + p.Namespace
}

// Instance is one provisioned elastic agent pod. Instances have immutable
// value semantics: the registry replaces whole records, never mutates them.
type Instance struct {
	// ID is the pod name and the unique registry key.
	ID string
	// JobID identifies the job this instance was created to run. At most one
	// live instance exists per job.
	JobID string
	// CreatedAt is set at creation, or reconstructed from the pod's creation
	// timestamp when the instance is adopted during reconciliation.
	CreatedAt time.Time
	// Policy records the admission settings in force when the instance was
	// created.
	Policy CapacityPolicy
}

// CreateAgentRequest carries everything needed to build one agent pod.
type CreateAgentRequest struct {
	JobID string

	// AutoRegisterKey and Environment are handed to the agent so it can
	// register itself with the scheduling server.
	AutoRegisterKey string
	Environment     string

	// Profile-driven pod settings.
	Image                string
	MaxMemory            string
	MaxCPU               string
	EnvironmentVariables map[string]string

	// PodTemplate, when set, is a complete pod spec in YAML. It takes the
	// place of the profile-driven settings; the managed labels and agent
	// environment are overlaid onto it.
	PodTemplate string
}

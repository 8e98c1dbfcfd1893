package elastic

import "github.com/gocd-contrib/kubernetes-elastic-agent/pkg/set"

// Agent is the scheduling server's view of one elastic agent, keyed by the
// same id as the matching Instance. It carries no cluster state.
type Agent struct {
	ID string `json:"agent_id"`
}

// Agents is a collection of agents known to the scheduling server.
type Agents []Agent

// IDSet returns the ids of the agents as a set.
func (a Agents) IDSet() set.Set[string] {
	ids := make(set.Set[string], len(a))
	for _, agent := range a {
		ids.Insert(agent.ID)
	}
	return ids
}

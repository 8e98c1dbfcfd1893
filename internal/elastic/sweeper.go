package elastic

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SchedulerGateway is the controller's view of the scheduling server. It
// supplies the set of agents known to the server and receives the ids of
// agents that should be retired.
type SchedulerGateway interface {
	ListAgents() (Agents, error)
	DisableAgents(Agents) error
	DeleteAgents(Agents) error
}

// Sweeper periodically reconciles the registry against the cluster and tears
// down agents that outlived their registration deadline.
type Sweeper struct {
	instances *AgentInstances
	gateway   SchedulerGateway
	interval  time.Duration
	syslog    *logrus.Entry
}

// NewSweeper returns a sweeper running one pass every interval.
func NewSweeper(instances *AgentInstances, gateway SchedulerGateway, interval time.Duration) *Sweeper {
	return &Sweeper{
		instances: instances,
		gateway:   gateway,
		interval:  interval,
		syslog:    logrus.WithField("component", "sweeper"),
	}
}

// Run sweeps until the context is cancelled. Individual sweep failures are
// logged, never fatal: the next pass converges again.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil {
				s.syslog.WithError(err).Warn("sweep pass failed")
			}
		}
	}
}

// Sweep runs one pass: refresh, retire agents that exceeded their register
// timeout, then terminate instances the scheduling server never heard of.
func (s *Sweeper) Sweep(ctx context.Context) error {
	s.instances.Refresh(ctx)

	known, err := s.gateway.ListAgents()
	if err != nil {
		return errors.Wrap(err, "error listing agents from the scheduling server")
	}

	var merr *multierror.Error
	if old := s.instances.AgentsExceedingRegisterTimeout(known); len(old) > 0 {
		s.syslog.Warnf("agents %v exceeded the register timeout, retiring them", old)
		merr = multierror.Append(merr, s.gateway.DisableAgents(old))
		for _, agent := range old {
			merr = multierror.Append(merr, s.instances.Terminate(ctx, agent.ID))
		}
		merr = multierror.Append(merr, s.gateway.DeleteAgents(old))
	}

	merr = multierror.Append(merr, s.instances.TerminateUnregistered(ctx, known))
	return merr.ErrorOrNil()
}

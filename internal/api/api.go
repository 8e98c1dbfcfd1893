// Package api exposes the agent instance operations over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/gocd-contrib/kubernetes-elastic-agent/internal/config"
	"github.com/gocd-contrib/kubernetes-elastic-agent/internal/elastic"
	"github.com/gocd-contrib/kubernetes-elastic-agent/pkg/check"
)

// CreateRequest is the body of a creation request. The profile section, when
// present, overrides the controller's default elastic profile so different
// tenants can run with different capacity settings.
type CreateRequest struct {
	JobID                string                `json:"job_id"`
	AutoRegisterKey      string                `json:"auto_register_key"`
	Environment          string                `json:"environment"`
	Image                string                `json:"image"`
	MaxMemory            string                `json:"max_memory"`
	MaxCPU               string                `json:"max_cpu"`
	EnvironmentVariables map[string]string     `json:"environment_variables"`
	PodTemplate          string                `json:"pod_template"`
	Profile              *config.ProfileConfig `json:"profile"`
}

type instanceSummary struct {
	ID        string    `json:"id"`
	JobID     string    `json:"job_id"`
	CreatedAt time.Time `json:"created_at"`
}

func summarize(in elastic.Instance) instanceSummary {
	return instanceSummary{ID: in.ID, JobID: in.JobID, CreatedAt: in.CreatedAt}
}

// Handlers serves the instance routes.
type Handlers struct {
	instances     *elastic.AgentInstances
	defaultPolicy elastic.CapacityPolicy
	syslog        *logrus.Entry
}

// New returns handlers bound to the given instance manager.
func New(instances *elastic.AgentInstances, defaultPolicy elastic.CapacityPolicy) *Handlers {
	return &Handlers{
		instances:     instances,
		defaultPolicy: defaultPolicy,
		syslog:        logrus.WithField("component", "api"),
	}
}

// Register attaches the instance routes to the echo server.
func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/instances", h.listInstances)
	e.GET("/instances/:id", h.getInstance)
	e.POST("/instances", h.createInstance)
	e.DELETE("/instances/:id", h.deleteInstance)
}

func (h *Handlers) listInstances(c echo.Context) error {
	instances := h.instances.All()
	summaries := make([]instanceSummary, 0, len(instances))
	for _, in := range instances {
		summaries = append(summaries, summarize(in))
	}
	return c.JSON(http.StatusOK, summaries)
}

func (h *Handlers) getInstance(c echo.Context) error {
	in, ok := h.instances.Find(c.Param("id"))
	if !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown instance")
	}
	return c.JSON(http.StatusOK, summarize(in))
}

func (h *Handlers) createInstance(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.JobID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "job_id must be set")
	}

	policy := h.defaultPolicy
	if req.Profile != nil {
		if err := check.Validate(req.Profile); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		policy = req.Profile.CapacityPolicy()
	}

	in, err := h.instances.Create(c.Request().Context(), elastic.CreateAgentRequest{
		JobID:                req.JobID,
		AutoRegisterKey:      req.AutoRegisterKey,
		Environment:          req.Environment,
		Image:                req.Image,
		MaxMemory:            req.MaxMemory,
		MaxCPU:               req.MaxCPU,
		EnvironmentVariables: req.EnvironmentVariables,
		PodTemplate:          req.PodTemplate,
	}, policy)
	if err != nil {
		h.syslog.WithError(err).Error("error creating agent instance")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if in == nil {
		// Capacity exhausted or a duplicate job: a normal rejection.
		return echo.NewHTTPError(http.StatusConflict, "request rejected")
	}
	return c.JSON(http.StatusCreated, summarize(*in))
}

func (h *Handlers) deleteInstance(c echo.Context) error {
	if err := h.instances.Terminate(c.Request().Context(), c.Param("id")); err != nil {
		h.syslog.WithError(err).Error("error terminating agent instance")
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.NoContent(http.StatusNoContent)
}

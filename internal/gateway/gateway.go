// Package gateway implements the SchedulerGateway against the GoCD server
// agents API.
package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/gocd-contrib/kubernetes-elastic-agent/internal/elastic"
)

const acceptHeader = "application/vnd.go.cd.v7+json"

// Client talks to the GoCD server's agents API.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
	syslog  *logrus.Entry
}

// New returns a gateway client for the server at baseURL, authenticating
// with the given bearer token.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 30 * time.Second},
		syslog:  logrus.WithField("component", "scheduler-gateway"),
	}
}

// ListAgents returns the agents currently known to the server.
func (c *Client) ListAgents() (elastic.Agents, error) {
	req, err := c.newRequest(http.MethodGet, "/go/api/agents", nil)
	if err != nil {
		return nil, err
	}

	var body struct {
		Embedded struct {
			Agents []struct {
				UUID string `json:"uuid"`
			} `json:"agents"`
		} `json:"_embedded"`
	}
	if err := c.do(req, &body); err != nil {
		return nil, errors.Wrap(err, "error listing agents")
	}

	agents := make(elastic.Agents, 0, len(body.Embedded.Agents))
	for _, agent := range body.Embedded.Agents {
		agents = append(agents, elastic.Agent{ID: agent.UUID})
	}
	return agents, nil
}

// DisableAgents marks the agents as disabled so the server stops assigning
// work to them.
func (c *Client) DisableAgents(agents elastic.Agents) error {
	if len(agents) == 0 {
		return nil
	}
	req, err := c.newRequest(http.MethodPatch, "/go/api/agents", map[string]interface{}{
		"uuids":              agents.IDSet().ToSlice(),
		"agent_config_state": "Disabled",
	})
	if err != nil {
		return err
	}
	return errors.Wrap(c.do(req, nil), "error disabling agents")
}

// DeleteAgents removes the agents from the server.
func (c *Client) DeleteAgents(agents elastic.Agents) error {
	if len(agents) == 0 {
		return nil
	}
	req, err := c.newRequest(http.MethodDelete, "/go/api/agents", map[string]interface{}{
		"uuids": agents.IDSet().ToSlice(),
	})
	if err != nil {
		return err
	}
	return errors.Wrap(c.do(req, nil), "error deleting agents")
}

func (c *Client) newRequest(method, path string, body interface{}) (*http.Request, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, errors.Wrap(err, "error encoding request body")
		}
	}
	req, err := http.NewRequest(method, c.baseURL+path, &buf)
	if err != nil {
		return nil, errors.Wrapf(err, "error building %s request", path)
	}
	req.Header.Set("Accept", acceptHeader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.syslog.WithError(err).Debug("error closing response body")
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("server returned %s for %s", resp.Status, req.URL.Path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

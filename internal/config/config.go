// Package config holds the controller configuration, populated from the
// config file, environment variables, and command line flags.
package config

import (
	"time"

	"github.com/gocd-contrib/kubernetes-elastic-agent/internal/elastic"
	"github.com/gocd-contrib/kubernetes-elastic-agent/pkg/check"
	"github.com/gocd-contrib/kubernetes-elastic-agent/pkg/logger"
)

// DefaultConfig returns the default configuration of the controller.
func DefaultConfig() *Config {
	return &Config{
		Log:           *logger.DefaultConfig(),
		Port:          8153,
		SweepInterval: "1m",
		Profile: ProfileConfig{
			Namespace:           "default",
			MaxPendingPods:      10,
			AutoRegisterTimeout: "10m",
		},
	}
}

// Config is the configuration of the controller.
type Config struct {
	ConfigFile        string        `json:"config_file"`
	Log               logger.Config `json:"log"`
	Port              int           `json:"port"`
	GoServerURL       string        `json:"go_server_url"`
	GoServerAuthToken string        `json:"go_server_auth_token"`
	SweepInterval     string        `json:"sweep_interval"`
	Profile           ProfileConfig `json:"profile"`
}

// ProfileConfig is the default elastic profile: the cluster connection and
// the admission settings applied to requests that do not override them.
type ProfileConfig struct {
	ClusterURL          string `json:"cluster_url"`
	Namespace           string `json:"namespace"`
	ClusterCACert       string `json:"cluster_ca_cert"`
	SecurityToken       string `json:"security_token"`
	MaxPendingPods      int    `json:"max_pending_pods"`
	AutoRegisterTimeout string `json:"auto_register_timeout"`
}

// Validate implements the check.Validatable interface.
func (c Config) Validate() []error {
	errs := []error{
		check.True(c.Port > 0, "port must be positive, got %d", c.Port),
	}
	if _, err := time.ParseDuration(c.SweepInterval); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// Validate implements the check.Validatable interface.
func (p ProfileConfig) Validate() []error {
	errs := []error{
		check.NotEmpty(p.Namespace, "namespace must be set"),
		check.GreaterThanOrEqualTo(p.MaxPendingPods, 0,
			"max_pending_pods must not be negative, got %d", p.MaxPendingPods),
	}
	if _, err := time.ParseDuration(p.AutoRegisterTimeout); err != nil {
		errs = append(errs, err)
	}
	return errs
}

// CapacityPolicy converts the profile into the per-request policy form. The
// configuration must have been validated first.
func (p ProfileConfig) CapacityPolicy() elastic.CapacityPolicy {
	timeout, err := time.ParseDuration(p.AutoRegisterTimeout)
	check.Panic(err)
	return elastic.CapacityPolicy{
		MaxPendingInstances: p.MaxPendingPods,
		AutoRegisterTimeout: timeout,
		ClusterURL:          p.ClusterURL,
		Namespace:           p.Namespace,
		ClusterCACert:       p.ClusterCACert,
		SecurityToken:       p.SecurityToken,
	}
}

// ParsedSweepInterval returns the sweep interval as a duration. The
// configuration must have been validated first.
func (c Config) ParsedSweepInterval() time.Duration {
	interval, err := time.ParseDuration(c.SweepInterval)
	check.Panic(err)
	return interval
}

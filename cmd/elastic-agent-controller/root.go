package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/ghodss/yaml"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/gocd-contrib/kubernetes-elastic-agent/internal/api"
	"github.com/gocd-contrib/kubernetes-elastic-agent/internal/config"
	"github.com/gocd-contrib/kubernetes-elastic-agent/internal/elastic"
	"github.com/gocd-contrib/kubernetes-elastic-agent/internal/gateway"
	"github.com/gocd-contrib/kubernetes-elastic-agent/pkg/check"
	"github.com/gocd-contrib/kubernetes-elastic-agent/pkg/logger"
)

const defaultConfigPath = "/etc/elastic-agent/controller.yaml"

var rootCmd = &cobra.Command{
	Use: "elastic-agent-controller",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runRoot(); err != nil {
			log.Error(fmt.Sprintf("%+v", err))
			os.Exit(1)
		}
	},
}

func runRoot() error {
	conf, err := initializeConfig()
	if err != nil {
		return err
	}
	logger.SetLogrus(conf.Log)
	log.Infof("controller configuration loaded, default profile namespace %q", conf.Profile.Namespace)

	policy := conf.Profile.CapacityPolicy()
	instances := elastic.NewAgentInstances(policy)
	server := gateway.New(conf.GoServerURL, conf.GoServerAuthToken)
	sweeper := elastic.NewSweeper(instances, server, conf.ParsedSweepInterval())
	go sweeper.Run(context.Background())

	e := echo.New()
	e.HideBanner = true
	api.New(instances, policy).Register(e)
	return e.Start(fmt.Sprintf(":%d", conf.Port))
}

// initializeConfig returns the validated configuration populated from the
// config file, environment variables, and command line flags.
func initializeConfig() (*config.Config, error) {
	bs, err := readConfigFile(v.GetString("config_file"))
	if err != nil {
		return nil, err
	}
	if err = mergeConfigBytesIntoViper(bs); err != nil {
		return nil, err
	}

	conf, err := getConfig(v.AllSettings())
	if err != nil {
		return nil, err
	}
	if err := check.Validate(conf); err != nil {
		return nil, err
	}
	return conf, nil
}

func readConfigFile(configPath string) ([]byte, error) {
	isDefault := configPath == ""
	if isDefault {
		configPath = defaultConfigPath
	}

	if _, err := os.Stat(configPath); err != nil {
		if isDefault && os.IsNotExist(err) {
			log.Warnf("no configuration file at %s, skipping", configPath)
			return nil, nil
		}
		return nil, errors.Wrap(err, "error finding configuration file")
	}
	bs, err := os.ReadFile(configPath) // #nosec G304
	if err != nil {
		return nil, errors.Wrap(err, "error reading configuration file")
	}
	return bs, nil
}

func mergeConfigBytesIntoViper(bs []byte) error {
	var configMap map[string]interface{}
	if err := yaml.Unmarshal(bs, &configMap); err != nil {
		return errors.Wrap(err, "error unmarshaling yaml configuration file")
	}
	if err := v.MergeConfigMap(configMap); err != nil {
		return errors.Wrap(err, "error merging configuration into viper")
	}
	return nil
}

func getConfig(configMap map[string]interface{}) (*config.Config, error) {
	conf := config.DefaultConfig()
	bs, err := json.Marshal(configMap)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal configuration map into json bytes")
	}
	if err = yaml.Unmarshal(bs, &conf); err != nil {
		return nil, errors.Wrap(err, "cannot unmarshal configuration")
	}
	return conf, nil
}

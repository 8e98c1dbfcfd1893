package main

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var v *viper.Viper

// viperKeyDelimiter marks nested values in the configuration. ".." is used
// instead of "." so that keys containing dots are not misread as objects.
const viperKeyDelimiter = ".."

//nolint:gochecknoinit
func init() {
	registerConfig()
}

type configKey []string

func (c configKey) EnvName() string {
	return "EA_" + strings.ReplaceAll(strings.ToUpper(c.FlagName()), "-", "_")
}

func (c configKey) AccessPath() string {
	return strings.ReplaceAll(strings.Join(c, viperKeyDelimiter), "-", "_")
}

func (c configKey) FlagName() string {
	return strings.Join(c, "-")
}

func registerString(flags *pflag.FlagSet, name configKey, value string, usage string) {
	flags.String(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerBool(flags *pflag.FlagSet, name configKey, value bool, usage string) {
	flags.Bool(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerInt(flags *pflag.FlagSet, name configKey, value int, usage string) {
	flags.Int(name.FlagName(), value, usage)
	_ = v.BindEnv(name.AccessPath(), name.EnvName())
	_ = v.BindPFlag(name.AccessPath(), flags.Lookup(name.FlagName()))
	v.SetDefault(name.AccessPath(), value)
}

func registerConfig() {
	v = viper.NewWithOptions(viper.KeyDelimiter(viperKeyDelimiter))

	flags := rootCmd.Flags()

	registerString(flags, configKey{"config-file"}, "", "path to the configuration file")
	registerInt(flags, configKey{"port"}, 8153, "port the status api listens on")
	registerString(flags, configKey{"go-server-url"}, "", "base url of the scheduling server")
	registerString(flags, configKey{"go-server-auth-token"}, "", "bearer token for the scheduling server")
	registerString(flags, configKey{"sweep-interval"}, "1m", "how often to run the reconciliation sweep")

	registerString(flags, configKey{"log", "level"}, "info", "log level")
	registerBool(flags, configKey{"log", "color"}, true, "colorize log output")

	registerString(flags, configKey{"profile", "cluster-url"}, "",
		"kubernetes api server url, empty for in-cluster")
	registerString(flags, configKey{"profile", "namespace"}, "default",
		"namespace agent pods are created in")
	registerString(flags, configKey{"profile", "cluster-ca-cert"}, "",
		"pem encoded cluster ca certificate")
	registerString(flags, configKey{"profile", "security-token"}, "",
		"bearer token for the kubernetes api")
	registerInt(flags, configKey{"profile", "max-pending-pods"}, 10,
		"maximum number of agent pods that may exist at once")
	registerString(flags, configKey{"profile", "auto-register-timeout"}, "10m",
		"how long an agent pod may run without registering")
}

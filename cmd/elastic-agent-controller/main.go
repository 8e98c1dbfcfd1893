package main

import (
	log "github.com/sirupsen/logrus"

	"github.com/gocd-contrib/kubernetes-elastic-agent/pkg/logger"
)

func main() {
	logger.SetLogrus(*logger.DefaultConfig())

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Fatal("fatal error running the elastic agent controller")
	}
}

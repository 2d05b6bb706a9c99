package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/spf13/pflag"

	"dietpi-dashboard/internal/config"
	"dietpi-dashboard/internal/dashboard"
)

func main() {
	configPath := pflag.StringP("config", "c", "", "path to a YAML config file")
	listen := pflag.String("listen", "", "override the HTTP listen address")
	logLevel := pflag.String("log-level", "", "override the log level (debug, info, warn, error)")
	showVersion := pflag.BoolP("version", "v", false, "print the version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Println(config.HardcodedVersion)
		return
	}

	cfg, err := config.Load(*configPath, func(c *config.Config) {
		if *listen != "" {
			c.ListenAddr = *listen
		}
		if *logLevel != "" {
			c.LogLevel = *logLevel
		}
	})
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := dashboard.BuildLogger(cfg)
	d, err := dashboard.New(cfg, logger)
	if err != nil {
		logger.Error("dashboard initialization failed", "error", err)
		os.Exit(1)
	}

	if err := d.Run(context.Background()); err != nil {
		logger.Error("dashboard runtime failed", "error", err)
		os.Exit(1)
	}
}

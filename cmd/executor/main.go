// Copyright 2025 The rpc-proxy-framework Authors
// SPDX-License-Identifier: MIT

// Command executor runs the rpc-proxy executor: it binds the unix socket
// endpoint and serves controllers until interrupted.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	rpcproxy "github.com/kekxv/rpc-proxy-framework"
)

func main() {
	// Environment overrides from a project .env, if present.
	_ = godotenv.Load(".env")

	var cfgFile string

	v := viper.New()
	rootCmd := &cobra.Command{
		Use:          "executor",
		Short:        "expose dynamic libraries to remote controllers over a framed JSON channel",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rpcproxy.LoadConfig(v, cfgFile)
			if err != nil {
				return err
			}
			configureLogging(cfg)
			return run(cfg)
		},
	}

	flags := rootCmd.Flags()
	flags.String("socket-name", "rpc_proxy", "endpoint name; the socket is created at <socket-dir>/<socket-name>")
	flags.String("socket-dir", "/tmp", "directory holding the socket file")
	flags.String("debug-addr", "", "optional debug HTTP address (healthz, metrics)")
	flags.String("log-level", "info", "log level (trace..panic)")
	flags.StringVar(&cfgFile, "config", "", "optional YAML config file")

	for key, name := range map[string]string{
		"socket_name":   "socket-name",
		"socket_dir":    "socket-dir",
		"debug_addr":    "debug-addr",
		"logging.level": "log-level",
	} {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			log.WithError(err).Fatal("flag binding failed")
		}
	}

	if err := rootCmd.Execute(); err != nil {
		log.WithError(err).Error("executor failed")
		os.Exit(1)
	}
}

func configureLogging(cfg *rpcproxy.Config) {
	if level, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(level)
	} else {
		log.WithField("level", cfg.Logging.Level).Warn("unknown log level, keeping info")
	}
	if cfg.Logging.Format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func run(cfg *rpcproxy.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server := rpcproxy.NewServer(*cfg)
	go server.ServeDebug(ctx)
	return server.ListenAndServe(ctx)
}

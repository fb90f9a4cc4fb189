// Copyright 2025 The fcgiclient Authors. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

/*
Package main implements fcgiclient, a command line FastCGI client.

fcgiclient talks to FastCGI applications such as php-fpm directly, without a
web server in front. It can send a single request and print the answer, or
run as a MessagePack IPC gateway so that another process can send requests
over stdin/stdout.

# Usage

Run a script on a local php-fpm pool:

	fcgiclient exec --addr unix:/run/php/php-fpm.sock --script /var/www/index.php

POST a form and split the CGI headers from the body:

	fcgiclient exec --addr 127.0.0.1:9000 --script /var/www/form.php \
	    --method POST --data 'name=gopher' --parse

Reuse one connection for several requests:

	fcgiclient exec --script /var/www/ping.php --keep-conn --repeat 5

Start the gateway:

	fcgiclient serve --keep-conn

# Configuration

Defaults come from a TOML file in ~/.config/fcgiclient/config.toml, created on
first use:

	[client]
	network = "tcp"
	address = "127.0.0.1:9000"
	keep_conn = false
	multiplex = false
	dial_timeout_ms = 3000
	write_timeout_ms = 10000
	request_timeout_ms = 30000

	[params]
	document_root = "/var/www/html"
	server_name = "localhost"

	[params.extra]
	APP_ENV = "dev"

	[log]
	level = "info"

Flags override the file. Use --config to point at another file.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/bastiangx/fcgiclient/internal/logger"
	"github.com/bastiangx/fcgiclient/pkg/config"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
	AppName = "fcgiclient"
	gh      = "https://github.com/bastiangx/fcgiclient"
)

// app carries what the root command loaded for its subcommands.
type app struct {
	configFlag string
	debug      bool

	cfg        *config.Config
	configPath string
}

// sigContext is cancelled on the first interrupt. A second one exits.
func sigContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-c
		fmt.Fprintf(os.Stderr, "\nExiting...\n")
		cancel()
		<-c
		os.Exit(130)
	}()
	return ctx, cancel
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   AppName,
		Short: "Send requests to FastCGI applications",
		Long: `fcgiclient speaks the FastCGI protocol to applications such as php-fpm.

It sends one request with "exec", or serves requests from another process
over a MessagePack stdin/stdout gateway with "serve".`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.load()
		},
	}
	root.Version = Version
	root.SetVersionTemplate("{{printf \"%s\\n\" .Version}}")

	root.PersistentFlags().StringVar(&a.configFlag, "config", "", "Path to a config.toml")
	root.PersistentFlags().BoolVarP(&a.debug, "debug", "d", false, "Toggle debug mode")

	root.AddCommand(
		newExecCommand(a),
		newServeCommand(a),
		newConfigCommand(a),
		newVersionCommand(),
	)
	return root
}

// load reads the config and sets up logging for every subcommand.
func (a *app) load() error {
	if a.debug {
		log.SetLevel(log.DebugLevel)
	}
	cfg, path, err := config.LoadConfigWithPriority(a.configFlag)
	if err != nil {
		return err
	}
	a.cfg, a.configPath = cfg, path

	settings := cfg.Log.Settings()
	if a.debug {
		settings.Level = "debug"
		settings.Timestamps = true
	}
	logger.Setup(settings)
	log.Debugf("Using config file: (%s)", config.GetActiveConfigPath(path))
	return nil
}

func main() {
	ctx, cancel := sigContext()
	defer cancel()

	if err := newRootCommand(&app{}).ExecuteContext(ctx); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

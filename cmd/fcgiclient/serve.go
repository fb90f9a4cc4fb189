package main

import (
	"context"
	"os"

	"github.com/bastiangx/fcgiclient/pkg/cgi"
	"github.com/bastiangx/fcgiclient/pkg/fcgi"
	"github.com/bastiangx/fcgiclient/pkg/server"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

func newServeCommand(a *app) *cobra.Command {
	var network, addr string
	var keepConn bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the MessagePack gateway on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			f := &execFlags{network: network, addr: addr}
			target, address, err := f.target(a.cfg)
			if err != nil {
				return err
			}
			client := a.cfg.Client
			opts := append(client.Options(), fcgi.WithKeepConn(keepConn || client.KeepConn))

			dial := func(ctx context.Context) (*fcgi.Conn, error) {
				ctx, cancel := context.WithTimeout(ctx, client.DialTimeout())
				defer cancel()
				return fcgi.Dial(ctx, target, address, opts...)
			}
			base := a.cfg.Params.Apply(cgi.Default()).Params()

			showStartupInfo(target, address)
			srv := server.NewServer(dial,
				server.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()),
				server.WithBaseParams(base),
				server.WithRequestTimeout(client.RequestTimeout()),
			)
			return srv.Start(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&network, "network", "", "tcp, tcp4, tcp6 or unix (default from config)")
	cmd.Flags().StringVar(&addr, "addr", "", "Application address (default from config)")
	cmd.Flags().BoolVar(&keepConn, "keep-conn", false, "Keep one connection open across requests")
	return cmd
}

// showStartupInfo displays some basic info about the gateway on stderr.
func showStartupInfo(network, address string) {
	log.Debug("gateway",
		"version", Version,
		"pid", os.Getpid(),
		"network", network,
		"address", address,
	)
}

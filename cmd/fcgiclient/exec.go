package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/bastiangx/fcgiclient/pkg/cgi"
	"github.com/bastiangx/fcgiclient/pkg/config"
	"github.com/bastiangx/fcgiclient/pkg/fcgi"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

type execFlags struct {
	requestFlags
	network  string
	addr     string
	keepConn bool
	repeat   int
	format   string
	parse    bool
	timeout  time.Duration
}

func newExecCommand(a *app) *cobra.Command {
	f := &execFlags{}
	cmd := &cobra.Command{
		Use:   "exec",
		Short: "Send one request and print the response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExec(cmd.Context(), a.cfg, f, cmd)
		},
	}

	fl := cmd.Flags()
	fl.StringVar(&f.network, "network", "", "tcp, tcp4, tcp6 or unix (default from config)")
	fl.StringVar(&f.addr, "addr", "", "Application address, e.g. 127.0.0.1:9000 or unix:/run/php/php-fpm.sock")
	fl.StringVar(&f.script, "script", "", "SCRIPT_FILENAME to run")
	fl.StringVar(&f.method, "method", "GET", "REQUEST_METHOD")
	fl.StringVar(&f.query, "query", "", "QUERY_STRING without the leading '?'")
	fl.StringVar(&f.contentType, "content-type", "", "CONTENT_TYPE for the body")
	fl.StringVar(&f.data, "data", "", "Request body")
	fl.StringVar(&f.dataFile, "data-file", "", "Read the request body from a file, - for stdin")
	fl.StringArrayVar(&f.params, "param", nil, "Extra param NAME=value (repeatable)")
	fl.StringArrayVar(&f.headers, "header", nil, "HTTP header \"Name: value\", sent as HTTP_* (repeatable)")
	fl.StringArrayVar(&f.passEnv, "pass-env", nil, "Pass environment variables starting with PREFIX (repeatable)")
	fl.BoolVar(&f.keepConn, "keep-conn", false, "Keep the connection open between requests")
	fl.IntVar(&f.repeat, "repeat", 1, "Send the request N times")
	fl.StringVar(&f.format, "format", "text", "Output format: text, json or msgpack")
	fl.BoolVar(&f.parse, "parse", false, "Split CGI headers from the body")
	fl.DurationVar(&f.timeout, "timeout", 0, "Per request timeout (default from config)")
	return cmd
}

// target resolves where to dial from the flags, falling back to the config.
func (f *execFlags) target(cfg *config.Config) (network, address string, err error) {
	switch {
	case f.addr != "" && f.network != "":
		return f.network, f.addr, nil
	case f.addr != "":
		return fcgi.ParseAddress(f.addr)
	case f.network != "":
		return f.network, cfg.Client.Address, nil
	}
	return cfg.Client.Network, cfg.Client.Address, nil
}

func runExec(ctx context.Context, cfg *config.Config, f *execFlags, cmd *cobra.Command) error {
	if f.repeat < 1 {
		return fmt.Errorf("--repeat must be at least 1")
	}
	out, err := newPrinter(f.format, f.parse, cmd.OutOrStdout(), cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	network, address, err := f.target(cfg)
	if err != nil {
		return err
	}
	b, err := loadBody(&f.requestFlags, cmd.InOrStdin())
	if err != nil {
		return err
	}
	params, err := buildParams(&f.requestFlags, cfg, b, cgi.NewEnv(os.Environ()))
	if err != nil {
		return err
	}
	log.Debugf("params:\n%s", describe(params))

	keep := f.keepConn || cfg.Client.KeepConn
	timeout := f.timeout
	if timeout == 0 {
		timeout = cfg.Client.RequestTimeout()
	}
	opts := append(cfg.Client.Options(), fcgi.WithKeepConn(keep))

	var conn *fcgi.Conn
	defer func() {
		if conn != nil {
			conn.Close()
		}
	}()

	for i := 0; i < f.repeat; i++ {
		if conn == nil || conn.Err() != nil {
			if conn != nil {
				conn.Close()
			}
			dialCtx, cancel := context.WithTimeout(ctx, cfg.Client.DialTimeout())
			conn, err = fcgi.Dial(dialCtx, network, address, opts...)
			cancel()
			if err != nil {
				return err
			}
			log.Debug("connected", "network", network, "address", address, "keep_conn", keep)
		}

		resp, took, err := execOnce(ctx, conn, params, b, timeout)
		if err != nil {
			return err
		}
		log.Debug("response", "n", i+1, "app_status", resp.AppStatus, "protocol_status", resp.ProtocolStatus, "took", took)
		if err := out.print(resp, took.Microseconds()); err != nil {
			return err
		}
		if err := resp.Err(); err != nil {
			return err
		}
		if !keep {
			conn.Close()
			conn = nil
		}
	}
	return nil
}

func execOnce(ctx context.Context, conn *fcgi.Conn, params *fcgi.Params, b *body, timeout time.Duration) (*fcgi.Response, time.Duration, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	src, closer, err := b.source()
	if err != nil {
		return nil, 0, err
	}
	if closer != nil {
		defer closer.Close()
	}

	start := time.Now()
	resp, err := conn.Execute(ctx, &fcgi.Request{Params: params, Body: src})
	return resp, time.Since(start), err
}

/*
 * MIT License
 *
 * Copyright (c) 2025 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/nabbar/carbon/config"
	"github.com/nabbar/carbon/connector"
	"github.com/nabbar/carbon/loop"
	"github.com/nabbar/carbon/metrics"
	"github.com/nabbar/carbon/vep"
	"github.com/nabbar/carbon/vep/sysresp"
)

func newServeCmd() *cobra.Command {
	var (
		addr        string
		configFile  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Listen on --addr and echo back every application container received",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, addr, configFile, metricsAddr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:4242", "address to listen on")
	cmd.Flags().StringVar(&configFile, "config", "", "path to a json/yaml/toml file of connector settings (network, workers, send_timeout, recv_timeout); hot-reloaded on write")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address at /metrics")
	return cmd
}

func runServe(cmd *cobra.Command, addr, configFile, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := connector.Config{
		SysResp: sysresp.New(sysresp.Version{Major: 1, Minor: 0, Patch: 0}),
	}

	var watcher *config.Watcher
	if configFile != "" {
		watcher = config.New(nil)
		if err := watcher.Load(configFile); err != nil {
			return fmt.Errorf("carbon-echo: load config: %w", err)
		}

		settings := watcher.Current()
		cfg.Network = settings.Network
		cfg.Workers = settings.Workers
		cfg.SendTimeout = settings.SendTimeout
		cfg.RecvTimeout = settings.RecvTimeout
		if settings.ListenAddress != "" {
			addr = settings.ListenAddress
		}

		watcher.Watch()
		go func() {
			for s := range watcher.Changes() {
				fmt.Fprintf(cmd.ErrOrStderr(), "carbon-echo: config reloaded (network=%s workers=%d); restart to apply\n", s.Network, s.Workers)
			}
		}()
	}

	cn := connector.New(ctx, cfg)
	defer func() { _ = cn.Close() }()

	reg := prometheus.NewRegistry()
	col := metrics.New("carbon-echo", cn)
	if err := col.Register(reg); err != nil {
		return fmt.Errorf("carbon-echo: register metrics: %w", err)
	}
	col.Attach(cn)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsAddr, Handler: mux}

		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				fmt.Fprintln(cmd.ErrOrStderr(), "carbon-echo: metrics server:", err)
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	cn.Loop().Register(loop.ReceiverFunc(func(e loop.Event) bool {
		if e.Type != loop.EvNetConnRecv {
			return false
		}

		in, ok := e.Payload.(connector.Received)
		if !ok || in.Container.Type() != vep.ContainerApp {
			return false
		}

		conn, ok := cn.Conn(in.Addr)
		if !ok {
			return true
		}

		out := vep.NewContainer(vep.ContainerApp)
		for _, p := range in.Container.Packets() {
			if err := out.InsertPacket(p.Type(), p.Body()); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), "carbon-echo: build reply:", err)
				return true
			}
		}

		if err := cn.Send(out, conn); err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), "carbon-echo: send reply:", err)
		}
		return true
	}))

	if err := cn.StartListen(addr); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "carbon-echo: listening on %s\n", addr)
	<-ctx.Done()
	fmt.Fprintln(cmd.OutOrStdout(), "carbon-echo: shutting down")
	return nil
}

package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/chromux"
	"pkt.systems/chromux/core"
	"pkt.systems/chromux/httpapi"
	"pkt.systems/chromux/internal/appconfig"
	"pkt.systems/chromux/internal/cdpconn"
	"pkt.systems/chromux/internal/chromeproc"
	"pkt.systems/chromux/internal/display"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var headless bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the chromux daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())

			cfg, err := appconfig.Ensure(cfgPath)
			if err != nil {
				return err
			}
			if headless {
				cfg.Chrome.Headless = true
			}
			serviceCfg, err := cfg.ServiceConfig()
			if err != nil {
				return err
			}

			resolver := display.NewResolver(cfg.DisplayResolverConfig(), logger)
			launcher := chromeproc.NewLauncher(chromeproc.Config{
				ChromePath:     cfg.Chrome.Path,
				PollInterval:   serviceCfg.PollInterval,
				PollAttempts:   serviceCfg.PollAttempts,
				TerminateGrace: serviceCfg.TerminateGrace,
			}, resolver, logger)
			pool := cdpconn.NewPool(logger)

			server, err := chromux.New(chromux.ServerConfig{
				Service: serviceCfg,
				HTTP:    httpapi.Config{Addr: cfg.HTTP.Addr},
			}, chromux.ServerDeps{
				ServiceDeps: core.ServiceDeps{
					Launcher:    launcher,
					Connections: pool,
					Logger:      logger,
				},
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("http server listening", "addr", cfg.HTTP.Addr)
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&headless, "headless", false, "force headless browser launches")
	return cmd
}

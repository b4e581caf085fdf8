package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge"
	"pkt.systems/surveyforge/core"
	"pkt.systems/surveyforge/httpapi"
	"pkt.systems/surveyforge/internal/appconfig"
	"pkt.systems/surveyforge/internal/genclient"
	"pkt.systems/surveyforge/internal/persist"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	var disableAuditTrails bool
	var withMock bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the surveyforge HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			if disableAuditTrails {
				cfg.Logging.DisableAuditTrails = true
			}
			useMock := withMock || cfg.Mock.Addr != ""

			store, err := persist.Open(cmd.Context(), cfg.StoreOptions(), logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			logger.Info("storage selected", "driver", cfg.Storage.Driver, "state_dir", cfg.StateDir)

			serverCfg, err := toServerConfig(cfg)
			if err != nil {
				return err
			}
			deps := surveyforge.ServerDeps{
				ServiceDeps: core.ServiceDeps{
					Store:  store,
					Logger: logger,
				},
			}
			opts := []surveyforge.ServerOption{surveyforge.WithHTTP()}
			if useMock {
				opts = append(opts, surveyforge.WithMockBackend())
				logger.Info("generation backend selected", "backend", "mock", "scenario", serverCfg.Mock.Options.Scenario)
			} else {
				client, err := genclient.New(cfg.ClientOptions())
				if err != nil {
					return err
				}
				deps.ServiceDeps.Generator = client
				logger.Info("generation backend selected", "backend", client.Endpoint())
			}
			server, err := surveyforge.New(serverCfg, deps, opts...)
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
			if err := server.Start(ctx); err != nil {
				return err
			}
			logger.Info("http server listening", "addr", server.HTTPAddr(), "base_path", serverCfg.HTTP.BasePath)
			if useMock {
				logger.Info("mock backend listening", "addr", server.MockAddr())
			}
			return server.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().BoolVar(&disableAuditTrails, "disable-audit-trails", false, "disable audit trail logging for generation requests")
	cmd.Flags().BoolVar(&withMock, "mock", false, "generate against the embedded mock backend")
	return cmd
}

func toServerConfig(cfg appconfig.Config) (surveyforge.ServerConfig, error) {
	mockOpts, err := cfg.MockOptions()
	if err != nil {
		return surveyforge.ServerConfig{}, err
	}
	return surveyforge.ServerConfig{
		Service: cfg.ServiceConfig(),
		HTTP:    toHTTPConfig(cfg.HTTP),
		Mock: surveyforge.MockConfig{
			Addr:    cfg.Mock.Addr,
			Options: mockOpts,
		},
	}, nil
}

func toHTTPConfig(cfg appconfig.HTTPConfig) httpapi.Config {
	return httpapi.Config{
		Addr:       cfg.Addr,
		BasePath:   cfg.BasePath,
		HubHistory: cfg.HubHistory,
	}
}

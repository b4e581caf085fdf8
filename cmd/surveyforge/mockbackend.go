package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/httpapi"
	"pkt.systems/surveyforge/internal/appconfig"
	"pkt.systems/surveyforge/internal/mockgen"
)

const defaultMockAddr = "127.0.0.1:27491"

type mockBackendFlags struct {
	cfgPath  string
	addr     string
	delayMS  int
	seed     uint64
	scenario string
	maxChunk int
}

func newMockBackendCmd() *cobra.Command {
	var flags mockBackendFlags
	cmd := &cobra.Command{
		Use:   "mock-backend",
		Short: "Serve scripted generation streams on /api/ask for testing",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := appconfig.Load(flags.cfgPath)
			if err != nil {
				return err
			}
			addr, opts, err := resolveMockBackend(cmd, cfg, flags)
			if err != nil {
				return err
			}
			opts.Logger = logger

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			logger.Info("mock backend listening", "addr", addr, "scenario", opts.Scenario, "delay_ms", opts.Delay.Milliseconds())
			return httpapi.ListenAndServe(ctx, addr, mockgen.New(opts))
		},
	}
	cmd.Flags().StringVarP(&flags.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&flags.addr, "addr", "", "listen address (default mock.addr or "+defaultMockAddr+")")
	cmd.Flags().IntVar(&flags.delayMS, "delay-ms", 0, "delay between fragments in milliseconds")
	cmd.Flags().Uint64Var(&flags.seed, "seed", 0, "fixed fragmentation seed (default hashes each request)")
	cmd.Flags().StringVar(&flags.scenario, "scenario", "", "force a scenario: success, refusal, error, unmarked, partial, followup")
	cmd.Flags().IntVar(&flags.maxChunk, "max-chunk", mockgen.DefaultMaxChunk, "largest fragment size in bytes")
	return cmd
}

// resolveMockBackend layers explicitly set flags over the mock config section.
func resolveMockBackend(cmd *cobra.Command, cfg appconfig.Config, flags mockBackendFlags) (string, mockgen.Options, error) {
	changed := cmd.Flags().Changed
	if changed("delay-ms") {
		cfg.Mock.DelayMS = flags.delayMS
	}
	if changed("seed") {
		cfg.Mock.Seed = flags.seed
	}
	if changed("scenario") {
		cfg.Mock.Scenario = flags.scenario
	}
	opts, err := cfg.MockOptions()
	if err != nil {
		return "", mockgen.Options{}, err
	}
	if changed("seed") {
		opts.SeedSet = true
	}
	opts.MaxChunk = flags.maxChunk

	addr := cfg.Mock.Addr
	if changed("addr") || addr == "" {
		addr = flags.addr
	}
	if addr == "" {
		addr = defaultMockAddr
	}
	return addr, opts, nil
}

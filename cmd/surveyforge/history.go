package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pkt.systems/pslog"
	"pkt.systems/surveyforge/core"
	"pkt.systems/surveyforge/internal/appconfig"
	"pkt.systems/surveyforge/internal/persist"
	"pkt.systems/surveyforge/schema"
)

func newHistoryCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "history <project>",
		Short: "Print the prompt history of a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := pslog.Ctx(ctx)
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			store, err := persist.Open(ctx, cfg.StoreOptions(), logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			service, err := core.NewService(cfg.ServiceConfig(), core.ServiceDeps{Store: store, Logger: logger})
			if err != nil {
				return err
			}
			resp, err := service.GetHistory(ctx, schema.GetHistoryRequest{ProjectID: schema.ProjectID(args[0])})
			if err != nil {
				return err
			}
			return printHistory(cmd.OutOrStdout(), resp.Entries)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}

func printHistory(w io.Writer, entries []string) error {
	for i, entry := range entries {
		if _, err := fmt.Fprintf(w, "%3d  %s\n", i+1, entry); err != nil {
			return err
		}
	}
	return nil
}

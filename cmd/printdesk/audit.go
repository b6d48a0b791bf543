package main

import (
	"fmt"

	"github.com/pbimprenta/printdesk/internal/staff"
	"github.com/spf13/cobra"
)

func newAuditCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit recent conversations once and propose learning rules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}
			client, err := newLLM(cfg, log)
			if err != nil {
				return err
			}
			alerts, err := staff.New(cfg.Staff, log)
			if err != nil {
				return err
			}
			a, err := newAuditor(cfg, st, client, alerts, log)
			if err != nil {
				return err
			}
			rep, err := a.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Conversations: %d, analyzed: %d, rules proposed: %d, failed: %d\n",
				rep.Conversations, rep.Analyzed, rep.Proposed, rep.Failed)
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "path to printdesk config file")
	return cmd
}

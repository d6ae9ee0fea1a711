package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"stealthcompany.com/medicapi/internal/analytics"
)

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:       "report <name>",
		Short:     "Run an analytics report and print it as JSON",
		Long:      "Run an analytics report against the configured store. Reports: " + strings.Join(analytics.ReportNames(), ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: analytics.ReportNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			district, _ := cmd.Flags().GetString("district")

			cfg, err := loadConfig("medicapi-report")
			if err != nil {
				return err
			}
			storeClient, err := newStoreClient(cfg)
			if err != nil {
				return err
			}

			engine := analytics.NewEngine(storeClient, cfg.AnalyticsSettings())
			result, err := engine.Run(cmd.Context(), args[0], district)
			if err != nil {
				return fmt.Errorf("report %s failed: %w", args[0], err)
			}

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(result)
		},
	}
	cmd.Flags().String("district", "", "restrict the report to a district")
	return cmd
}

package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/turfline/velo/internal/acceptance"
)

func newGreenlightCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "greenlight",
		Short: "Run the eight acceptance gates and report the release verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			report := acceptance.Run(cmd.Context(), cfg)

			if asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				for _, c := range report.Checks {
					status := "PASS"
					if !c.Passed {
						status = "FAIL"
					}
					fmt.Printf("%-20s %-4s %s\n", c.Name, status, c.Detail)
				}
				verdict := "GREENLIT"
				if !report.Greenlit {
					verdict = "BLOCKED"
				}
				fmt.Printf("\nrelease: %s\n", verdict)
			}

			if !report.Greenlit {
				return fmt.Errorf("acceptance gates failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the report as JSON")
	return cmd
}

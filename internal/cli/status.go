package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon health and queue occupancy",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/health")
			if err != nil {
				return fmt.Errorf("health: %w", err)
			}
			var health map[string]any
			if err := json.Unmarshal(resp.Data, &health); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Printf("status:  %v\n", health["status"])
			fmt.Printf("version: %v\n", health["version"])
			fmt.Printf("uptime:  %v\n", health["uptime"])

			resp, err = client.Get("/api/v1/queues")
			if err != nil {
				return fmt.Errorf("queues: %w", err)
			}
			var queues []map[string]any
			if err := json.Unmarshal(resp.Data, &queues); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("\n%-16s  %8s  %8s  %8s\n", "QUEUE", "SLOTS", "RUNNING", "FREE")
			for _, q := range queues {
				fmt.Printf("%-16s  %8.0f  %8.0f  %8.0f\n",
					q["name"], q["slots"], q["running"], q["free"])
			}
			return nil
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

func newInstancesCmd() *cobra.Command {
	var (
		flagState string
		flagTask  string
		flagCycle string
		flagQueue string
		flagLimit int
	)

	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List job instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			if flagState != "" {
				q.Set("state", flagState)
			}
			if flagTask != "" {
				q.Set("task", flagTask)
			}
			if flagCycle != "" {
				q.Set("cycle", flagCycle)
			}
			if flagQueue != "" {
				q.Set("queue", flagQueue)
			}
			if flagLimit > 0 {
				q.Set("limit", fmt.Sprint(flagLimit))
			}

			resp, err := client.Get("/api/v1/instances/?" + q.Encode())
			if err != nil {
				return fmt.Errorf("list instances: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No instances found.")
				return nil
			}

			fmt.Printf("%-24s  %-16s  %-9s  %-7s  %-12s  %s\n",
				"TASK", "CYCLE", "STATE", "ATTEMPT", "CREATED", "REASON")
			for _, inst := range data {
				task, _ := inst["task_id"].(string)
				cycle, _ := inst["cycle_id"].(string)
				state, _ := inst["state"].(string)
				attempt, _ := inst["attempt"].(float64)
				reason, _ := inst["reason"].(string)
				created := ""
				if raw, _ := inst["created_at"].(string); raw != "" {
					if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
						created = humanize.Time(t)
					}
				}
				fmt.Printf("%-24s  %-16s  %-9s  %-7.0f  %-12s  %s\n",
					task, cycle, state, attempt, created, reason)
			}

			if resp.Pagination != nil && resp.Pagination.Total > len(data) {
				fmt.Printf("\n(%d of %d shown)\n", len(data), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&flagState, "state", "", "Filter by state (PENDING, WAITING, READY, RUNNING, SUCCEEDED, FAILED, KILLED, SKIPPED)")
	cmd.Flags().StringVar(&flagTask, "task", "", "Filter by task id")
	cmd.Flags().StringVar(&flagCycle, "cycle", "", "Filter by firing cycle id")
	cmd.Flags().StringVar(&flagQueue, "queue", "", "Filter by queue")
	cmd.Flags().IntVar(&flagLimit, "limit", 0, "Maximum instances to list")

	return cmd
}

func newCyclesCmd() *cobra.Command {
	var flagLimit int

	cmd := &cobra.Command{
		Use:   "cycles",
		Short: "List recent firing cycles",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/cycles/"
			if flagLimit > 0 {
				path += "?limit=" + fmt.Sprint(flagLimit)
			}
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list cycles: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No cycles yet.")
				return nil
			}

			fmt.Printf("%-16s  %s\n", "CYCLE", "FIRST FIRED")
			for _, c := range data {
				id, _ := c["id"].(string)
				created := ""
				if raw, _ := c["created_at"].(string); raw != "" {
					if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
						created = humanize.Time(t)
					}
				}
				fmt.Printf("%-16s  %s\n", id, created)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&flagLimit, "limit", 0, "Maximum cycles to list")
	return cmd
}

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/me/tempo/internal/catalog"
	"github.com/me/tempo/internal/graph"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <catalog.yaml>",
		Short: "Check a task catalog for integrity problems",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat := catalog.NewFileCatalog(args[0], 30*time.Minute, 2*time.Hour, logger)
			tasks, err := cat.Snapshot(context.Background())
			if err != nil {
				return err
			}

			problems := 0
			schedulable := tasks[:0]
			for _, t := range tasks {
				if ierr := catalog.ValidateTask(t); ierr != nil {
					fmt.Printf("INVALID  %s\n", ierr)
					problems++
					continue
				}
				schedulable = append(schedulable, t)
			}

			g, structuralErrs := graph.Build(schedulable)
			for _, ierr := range structuralErrs {
				fmt.Printf("INVALID  %s\n", ierr)
				problems++
			}

			if problems > 0 {
				return fmt.Errorf("%d of %d tasks excluded", problems, len(tasks))
			}
			fmt.Printf("OK  %d tasks, no integrity problems\n", g.Len())
			return nil
		},
	}
}

package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var logLimit int

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent reconciliation runs",
	Long:  `Display the audit history of reconciliation runs, most recent first, with the actions taken during each run.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if DLK == nil {
			return fmt.Errorf("app not initialized")
		}
		if DLK.Audit == nil {
			fmt.Println("Auditing is disabled (audit.enabled=false).")
			return nil
		}

		ctx := cmd.Context()
		runs, err := DLK.Audit.RecentRuns(ctx, logLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Println("No runs recorded yet.")
			return nil
		}

		// 颜色代码 (ANSI Escape Codes) - 为了好看
		const (
			colorYellow = "\033[33m"
			colorReset  = "\033[0m"
		)

		for _, run := range runs {
			fmt.Printf("%srun %d%s (%s)\n", colorYellow, run.ID, colorReset, run.Mode)
			fmt.Printf("Tree:    %s\n", run.SourceTree)
			if run.RootCID != "" {
				fmt.Printf("Root:    %s\n", run.RootCID)
			}
			fmt.Printf("Date:    %s\n", run.StartedAt.Format(time.RFC1123))
			fmt.Printf("Status:  %s\n", run.Status)
			if run.Error != "" {
				fmt.Printf("Error:   %s\n", run.Error)
			}

			events, err := DLK.Audit.RunEvents(ctx, run.ID)
			if err != nil {
				return err
			}
			for _, ev := range events {
				fmt.Printf("    %-12s %s/%s %s\n", ev.Action, ev.Algo, shorten(ev.Hash), ev.Path)
			}
			fmt.Println()
		}

		return nil
	},
}

func shorten(hash string) string {
	if len(hash) > 12 {
		return hash[:12] + "..."
	}
	return hash
}

func init() {
	logCmd.Flags().IntVarP(&logLimit, "limit", "n", 10, "number of runs to show")
	rootCmd.AddCommand(logCmd)
}

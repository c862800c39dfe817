package commands

import (
	"fmt"
	"text/tabwriter"

	"datalink/pkg/manifest"
	"datalink/pkg/types"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show object store contents per algorithm",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if DLK == nil {
			return fmt.Errorf("app not initialized")
		}

		m, err := manifest.Build(DLK.StorePath)
		if err != nil {
			return err
		}

		// 按算法聚合
		counts := make(map[string]int)
		sizes := make(map[string]int64)
		for _, e := range m.Entries {
			counts[e.Algo]++
			sizes[e.Algo] += e.Size
		}

		fmt.Printf("Object store: %s\n\n", DLK.StorePath)

		// 使用 tabwriter 对齐输出
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintf(tw, "ALGORITHM\tOBJECTS\tBYTES\n")
		for _, algo := range types.Order() {
			fmt.Fprintf(tw, "%s\t%d\t%d\n", algo.DirName(), counts[string(algo)], sizes[string(algo)])
		}
		tw.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

package commands

import (
	"fmt"
	"os"

	"datalink/pkg/types"

	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <cid>",
	Short: "Fetch a single object from the network into the store",
	Long:  `Fetch one object by its content identifier and place it under Objects/CID. Useful for repairing a single missing object without a full create run.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if DLK == nil {
			return fmt.Errorf("app not initialized")
		}

		ctx := cmd.Context()
		id := types.Hash(args[0])
		if id.IsZero() {
			return fmt.Errorf("empty identifier")
		}

		// 已经在库里就不用抓了 (幂等)
		exists, err := DLK.Store.Has(ctx, types.AlgoCID, id)
		if err != nil {
			return err
		}
		if exists {
			fmt.Printf("✅ Object CID/%s already in store\n", id)
			return nil
		}

		// 经由临时文件走原子 Put
		tmp, err := os.CreateTemp(DLK.Store.Root(), "fetch-*")
		if err != nil {
			return err
		}
		tmpPath := tmp.Name()
		tmp.Close()
		defer os.Remove(tmpPath)

		if err := DLK.Resolver.Fetch(ctx, id, tmpPath); err != nil {
			return fmt.Errorf("failed to fetch %s: %w", id, err)
		}

		f, err := os.Open(tmpPath)
		if err != nil {
			return err
		}
		defer f.Close()

		if err := DLK.Store.Put(ctx, types.AlgoCID, id, f); err != nil {
			return err
		}

		fmt.Printf("🌐 Fetched CID/%s into store\n", id)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fetchCmd)
}

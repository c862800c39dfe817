package commands

import (
	"fmt"
	"path/filepath"

	"datalink/pkg/manifest"

	"github.com/spf13/cobra"
)

var manifestOut string

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Write a canonical manifest of the object store",
	Long: `Build a canonical DAG-CBOR manifest of every object in the store and print its
fingerprint. The fingerprint is stable across runs for identical store contents,
so it can be quoted in release notes as the identity of the data snapshot.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if DLK == nil {
			return fmt.Errorf("app not initialized")
		}

		m, err := manifest.Build(DLK.StorePath)
		if err != nil {
			return err
		}

		out := manifestOut
		if out == "" {
			out = filepath.Join(filepath.Dir(DLK.StorePath), "manifest.cbor")
		}

		hash, err := m.WriteFile(out)
		if err != nil {
			return err
		}

		fmt.Printf("📦 %d objects\n", len(m.Entries))
		fmt.Printf("✅ Manifest written to %s\n", out)
		fmt.Printf("Fingerprint: %s\n", hash)
		return nil
	},
}

func init() {
	manifestCmd.Flags().StringVarP(&manifestOut, "output", "o", "", "manifest output path (default <store-parent>/manifest.cbor)")
	rootCmd.AddCommand(manifestCmd)
}

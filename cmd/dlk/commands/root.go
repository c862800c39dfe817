package commands

import (
	"fmt"
	"os"

	"datalink/pkg/app"
	"datalink/pkg/config"
	"datalink/pkg/ignore"
	"datalink/pkg/reconcile"
	"datalink/pkg/types"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile    string
	createMode bool
	rootCID    string

	// 全局应用实例，供子命令使用
	DLK *app.App
)

var rootCmd = &cobra.Command{
	Use:   "dlk [flags] <source-tree>",
	Short: "Reconcile content links against the object store and a published root CID",
	Long: `dlk walks a source tree for content link files (*.sha512, *.cid), checks that
every referenced object exists in the local object store (Objects/{SHA512,CID}),
cross-verifies each one against a published IPFS root, and materializes the
plain data files next to their links.

With --create it instead populates missing objects from the external object
cache or the network, and migrates legacy .sha512 links to .cid links.`,
	SilenceUsage: true,
	Args:         cobra.ExactArgs(1),
	// 【关键】PersistentPreRunE 会在所有子命令执行前运行
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		DLK, err = app.NewApp(cmd.Context())
		if err != nil {
			return fmt.Errorf("failed to initialize datalink: %w", err)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		sourceTree := args[0]

		mode := types.ModeVerify
		if createMode {
			mode = types.ModeCreate
		}

		// -r 优先，其次配置文件/环境变量里的 root_cid
		root := rootCID
		if root == "" {
			root = viper.GetString("root_cid")
		}

		matcher, err := ignore.NewMatcher(sourceTree)
		if err != nil {
			return err
		}

		rec := reconcile.New(reconcile.Config{
			SourceRoot: sourceTree,
			RootCID:    root,
			Mode:       mode,
		}, DLK.Store, DLK.Sources, DLK.Resolver, DLK.Audit, matcher)

		return rec.Run(cmd.Context())
	},
}

// Execute 是入口
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// 在初始化时，加载配置
	cobra.OnInitialize(initConfig)

	// 帮助文本意味着调用不完整：打印用法后以失败状态退出
	rootCmd.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(os.Stderr, cmd.Long)
		fmt.Fprintln(os.Stderr)
		fmt.Fprint(os.Stderr, cmd.UsageString())
		os.Exit(1)
	})

	// 1. 定义全局参数 --config
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dlk/config.yaml)")

	// 2. 运行模式参数
	rootCmd.Flags().BoolVarP(&createMode, "create", "c", false, "populate missing objects and migrate legacy links instead of verifying")
	rootCmd.Flags().StringVarP(&rootCID, "root-cid", "r", "", "root CID of the published object store snapshot")

	// 3. 定义 store.path 参数，并绑定到 Viper
	// 这样用户既可以在 yaml 里写，也可以用 --store-path 覆盖
	rootCmd.PersistentFlags().String("store-path", "", "Directory holding the object store (default <cwd>/Objects)")
	if err := viper.BindPFlag("store.path", rootCmd.PersistentFlags().Lookup("store-path")); err != nil {
		fmt.Println("Failed to bind flag:", err)
		os.Exit(1)
	}
}

// initConfig 读取配置文件和环境变量
func initConfig() {
	if err := config.Load(cfgFile); err != nil {
		fmt.Println("Config error:", err)
		os.Exit(1)
	}
}

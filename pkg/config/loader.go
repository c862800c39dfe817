package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Load 初始化 Viper 配置
// cfgFile: 可选，用户显式指定的配置文件路径
func Load(cfgFile string) error {
	// 1. 设置默认值 (Defaults)
	setDefaults()

	// 2. 配置搜索路径
	if cfgFile != "" {
		// 如果用户指定了文件，直接使用
		viper.SetConfigFile(cfgFile)
	} else {
		// 否则按优先级搜索
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}

		// 搜索顺序：
		// 1. 当前目录
		viper.AddConfigPath(".")
		// 2. 当前目录下的 .dlk
		viper.AddConfigPath(".dlk")
		// 3. 用户主目录下的 .dlk
		viper.AddConfigPath(filepath.Join(home, ".dlk"))

		viper.SetConfigType("yaml")
		viper.SetConfigName("config") // 找 config.yaml
	}

	// 3. 读取环境变量 (DLK_CACHE_PATH, DLK_ROOT_CID 等)
	// 原 shell 版本的外部缓存环境变量在这里归一成 DLK_CACHE_PATH
	viper.SetEnvPrefix("DLK")
	viper.AutomaticEnv()

	// 4. 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		// 如果只是没找到配置文件，但可能有环境变量，不一定算错
		// 但如果是配置文件格式错，那就是错
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("fatal error config file: %w", err)
		}
	} else {
		fmt.Println("🔧 Using config file:", viper.ConfigFileUsed())
	}

	return nil
}

func setDefaults() {
	// 对象库默认值：仓库根下的 Objects 目录
	wd, _ := os.Getwd()
	viper.SetDefault("store.path", filepath.Join(wd, "Objects"))

	// 外部对象缓存：默认不配置 (可选的后备来源)
	viper.SetDefault("cache.path", "")

	// S3 缓存默认值
	viper.SetDefault("cache.s3.bucket", "")
	viper.SetDefault("cache.s3.region", "us-east-1")
	viper.SetDefault("cache.s3.endpoint", "")

	// 解析器默认值
	viper.SetDefault("resolver.bin", "ipfs")
	viper.SetDefault("resolver.redis_url", "")
	viper.SetDefault("resolver.cache_ttl", 24*time.Hour)

	// 审计库默认值：对象库旁边的 .dlk/audit.db
	viper.SetDefault("audit.driver", "sqlite")
	viper.SetDefault("audit.dsn", filepath.Join(wd, ".dlk", "audit.db"))
	viper.SetDefault("audit.enabled", true)

	// 已发布根标识符 (通常由 -r 传入，也允许配置)
	viper.SetDefault("root_cid", "")
}

// pkg/app/app.go
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"datalink/pkg/audit"
	"datalink/pkg/ipfs"
	"datalink/pkg/rcache"
	"datalink/pkg/store"
	"datalink/pkg/store/disk"
	"datalink/pkg/store/s3"

	"github.com/spf13/viper"
)

// App 是整个应用程序的依赖容器 (Dependency Container)
// 它持有所有“单例”服务
type App struct {
	Store    *disk.Adapter
	Sources  []store.Source // 按优先级: 磁盘缓存 -> S3 缓存
	Resolver ipfs.Resolver
	Audit    *audit.Recorder // 可能为 nil (审计被关掉)

	StorePath string
}

// NewApp 是工厂函数，负责组装这一台机器
// 它遵循 Viper 的配置，但不知道具体的 CLI 命令
func NewApp(ctx context.Context) (*App, error) {
	// 1. 本地对象库 (Single Source of Truth)
	storePath := viper.GetString("store.path")
	if storePath == "" {
		return nil, fmt.Errorf("store path not set")
	}
	st, err := disk.NewAdapter(storePath)
	if err != nil {
		return nil, fmt.Errorf("failed to init object store: %w", err)
	}

	// 2. 后备对象来源 (可选，按优先级排列)
	var sources []store.Source

	if cachePath := viper.GetString("cache.path"); cachePath != "" {
		cache, err := disk.OpenAdapter(cachePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open object cache: %w", err)
		}
		sources = append(sources, cache)
	}

	if bucket := viper.GetString("cache.s3.bucket"); bucket != "" {
		s3cache, err := s3.NewAdapter(ctx, s3.Config{
			Endpoint:        viper.GetString("cache.s3.endpoint"),
			Region:          viper.GetString("cache.s3.region"),
			Bucket:          bucket,
			AccessKeyID:     viper.GetString("cache.s3.access_key"),
			SecretAccessKey: viper.GetString("cache.s3.secret_key"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to init s3 cache: %w", err)
		}
		sources = append(sources, s3cache)
	}

	// 3. 解析器：ipfs CLI，按需再包一层 Redis 缓存
	resolver, err := buildResolver()
	if err != nil {
		return nil, err
	}

	// 4. 审计库 (默认开，sqlite)
	var recorder *audit.Recorder
	if viper.GetBool("audit.enabled") {
		dsn := viper.GetString("audit.dsn")
		if viper.GetString("audit.driver") == "sqlite" {
			// sqlite 文件的父目录得先存在
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create audit dir: %w", err)
			}
		}
		recorder, err = audit.Open(ctx, audit.Config{
			Driver: viper.GetString("audit.driver"),
			DSN:    dsn,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open audit database: %w", err)
		}
	}

	return &App{
		Store:     st,
		Sources:   sources,
		Resolver:  resolver,
		Audit:     recorder,
		StorePath: storePath,
	}, nil
}

func buildResolver() (ipfs.Resolver, error) {
	cli, err := ipfs.NewCLI(viper.GetString("resolver.bin"))
	if err != nil {
		return nil, err
	}

	redisURL := viper.GetString("resolver.redis_url")
	if redisURL == "" {
		return cli, nil
	}

	cached, err := rcache.NewCachedResolver(cli, rcache.Config{
		RedisURL: redisURL,
		TTL:      viper.GetDuration("resolver.cache_ttl"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init resolve cache: %w", err)
	}
	return cached, nil
}

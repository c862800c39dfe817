package rcache

import (
	"context"
	"fmt"
	"time"

	"datalink/pkg/ipfs"
	"datalink/pkg/types"

	"github.com/redis/go-redis/v9"
)

// CachedResolver 是一个装饰器，它为底层的 ipfs.Resolver 添加 Redis 缓存层
// 发布树里经常有几千个内容链接，同一个哈希的解析结果在一次发布周期内不会变，
// 缓存住可以把第二次 verify 从几十分钟压到几秒
type CachedResolver struct {
	backend ipfs.Resolver // 被装饰的底层解析器
	client  *redis.Client // Redis 客户端
	ttl     time.Duration // 缓存过期时间 (例如 24h)
}

type Config struct {
	RedisURL string        // 标准连接字符串: redis://<user>:<password>@<host>:<port>/<db>
	TTL      time.Duration // 过期时间
}

// NewCachedResolver 接收 Config 结构体，而不是散乱的参数
func NewCachedResolver(backend ipfs.Resolver, cfg Config) (*CachedResolver, error) {
	// 解析 URL
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	// Fail-fast 连接检查
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &CachedResolver{
		backend: backend,
		client:  client,
		ttl:     cfg.TTL,
	}, nil
}

// cacheKey 生成 Redis Key，添加前缀防止冲突
func (r *CachedResolver) cacheKey(path string) string {
	return "dlk:resolve:" + path
}

// Resolve 优先查 Redis
func (r *CachedResolver) Resolve(ctx context.Context, path string) (types.Hash, error) {
	key := r.cacheKey(path)

	// 1. 查 Redis
	val, err := r.client.Get(ctx, key).Result()
	if err == nil && val != "" {
		// Cache Hit! 无需发起网络解析
		return types.Hash(val), nil
	}
	if err != nil && err != redis.Nil {
		// 架构决策：缓存故障降级 (Cache Failure Fallback)
		// 如果 Redis 挂了，不应该让发布校验崩溃，而是退化为直接解析
		fmt.Printf("WARN: Redis error: %v\n", err)
	}

	// 2. 缓存未命中 (Cache Miss)，走真实解析
	resolved, err := r.backend.Resolve(ctx, path)
	if err != nil {
		// 解析失败不缓存：失败可能是瞬时网络问题，缓存住会把后续运行也带坑里
		return "", err
	}

	// 3. 缓存回填 (Cache Fill)
	// Set 错误可以忽略，不影响主流程
	r.client.Set(ctx, key, resolved.String(), r.ttl)

	return resolved, nil
}

// Fetch 透传 - 我们不缓存对象数据
// 原因：数据集对象可能很大，Redis 内存极其宝贵，只缓存解析结果性价比最高
func (r *CachedResolver) Fetch(ctx context.Context, id types.Hash, dst string) error {
	return r.backend.Fetch(ctx, id, dst)
}

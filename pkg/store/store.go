package store

import (
	"context"
	"errors"
	"io"

	"datalink/pkg/types"
)

var (
	ErrNotFound = errors.New("object not found")
)

// Source 是对象的只读来源 (本地库、外部缓存、S3 桶都实现它)
// create 模式下按顺序探测各个 Source，把命中的对象补进本地库
type Source interface {
	// Has 检查对象是否存在 (用于去重/探测逻辑)
	Has(ctx context.Context, algo types.Algo, hash types.Hash) (bool, error)

	// Get 根据算法和哈希读取原始数据
	// 注意：这里返回的是 io.ReadCloser 而不是 []byte
	// 原因：数据集对象可能有几百 MB，必须支持流式读取
	Get(ctx context.Context, algo types.Algo, hash types.Hash) (io.ReadCloser, error)
}

// Store 是可写的本地对象库
// Layout 约定: {root}/{ALGO_DIR}/{hash}
type Store interface {
	Source

	// Put 把数据流持久化为 {algo}/{hash} 对象
	// 调用方负责保证 hash 与内容一致，Store 不做摘要校验
	Put(ctx context.Context, algo types.Algo, hash types.Hash, r io.Reader) error
}

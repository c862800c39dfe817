package disk

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"datalink/pkg/store"
	"datalink/pkg/types"
)

// Adapter 实现了 store.Store 接口
// 同一个实现既当本地对象库 (可写)，也当外部磁盘缓存 (只读 Source)
type Adapter struct {
	rootPath string // 比如: <repo>/Objects
}

// NewAdapter 创建一个新的磁盘对象库适配器
// 会预创建所有算法子目录 (包括空的 CID 目录，发布布局要求它存在)
func NewAdapter(root string) (*Adapter, error) {
	for _, algo := range types.Order() {
		if err := os.MkdirAll(filepath.Join(root, algo.DirName()), 0755); err != nil {
			return nil, fmt.Errorf("failed to create object store dir: %w", err)
		}
	}
	return &Adapter{rootPath: root}, nil
}

// OpenAdapter 打开一个已存在的目录作为只读来源，不创建任何东西
// 用于外部对象缓存：缓存目录不归我们管，不该在里面建目录
func OpenAdapter(root string) (*Adapter, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("object cache not accessible: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("object cache %s is not a directory", root)
	}
	return &Adapter{rootPath: root}, nil
}

// Root 返回物理根目录
func (s *Adapter) Root() string { return s.rootPath }

// ObjectPath 返回对象的物理路径
// Layout: root/SHA512/{hash}, root/CID/{hash} (不做 sharding，跟发布布局保持一致)
func (s *Adapter) ObjectPath(algo types.Algo, hash types.Hash) string {
	return filepath.Join(s.rootPath, algo.DirName(), string(hash))
}

func (s *Adapter) Put(ctx context.Context, algo types.Algo, hash types.Hash, r io.Reader) error {
	targetPath := s.ObjectPath(algo, hash)

	// 1. 检查是否存在 (幂等性)
	if _, err := os.Stat(targetPath); err == nil {
		return nil // 已经存在，直接跳过 (CAS 的好处)
	}

	// 2. 准备目录
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	// 3. 原子写入 (Atomic Write)
	// 技巧：先写到一个临时文件，然后 Rename。
	// 这样保证要么文件不存在，要么文件是完整的。
	tempFile, err := os.CreateTemp(dir, "temp-*")
	if err != nil {
		return err
	}
	// 确保临时文件会被清理（如果成功 Rename 了，这个删除会失效，或者无害）
	defer os.Remove(tempFile.Name())

	if _, err := io.Copy(tempFile, r); err != nil {
		tempFile.Close()
		return err
	}
	tempFile.Close() // 必须先关闭才能 Rename

	// 4. 移动到最终位置
	if err := os.Rename(tempFile.Name(), targetPath); err != nil {
		return err
	}

	return nil
}

func (s *Adapter) Get(ctx context.Context, algo types.Algo, hash types.Hash) (io.ReadCloser, error) {
	f, err := os.Open(s.ObjectPath(algo, hash))
	if os.IsNotExist(err) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Adapter) Has(ctx context.Context, algo types.Algo, hash types.Hash) (bool, error) {
	_, err := os.Stat(s.ObjectPath(algo, hash))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// CopyFrom 把另一个 Source 里的同一个对象复制进本地库
// 这是 create 模式“从外部缓存补齐”的核心动作
func (s *Adapter) CopyFrom(ctx context.Context, src store.Source, algo types.Algo, hash types.Hash) error {
	rc, err := src.Get(ctx, algo, hash)
	if err != nil {
		return err
	}
	defer rc.Close()
	return s.Put(ctx, algo, hash, rc)
}

// ExportTo 把对象从库里导出到任意目标文件 (创建父目录)
// verify 模式用它把数据文件落到源码树里
func (s *Adapter) ExportTo(ctx context.Context, algo types.Algo, hash types.Hash, dst string) error {
	rc, err := s.Get(ctx, algo, hash)
	if err != nil {
		return err
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	// 同样走临时文件 + Rename，防止半截数据文件混进发布
	tempFile, err := os.CreateTemp(filepath.Dir(dst), "temp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tempFile.Name())

	if _, err := io.Copy(tempFile, rc); err != nil {
		tempFile.Close()
		return err
	}
	tempFile.Close()

	return os.Rename(tempFile.Name(), dst)
}

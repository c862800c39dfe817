package ipfs

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"datalink/pkg/types"
)

// Resolver 抽象了分布式内容寻址网络的两个能力
// 接口刻意窄化：调和器只需要这两个动作，测试时可以用假实现替掉整个网络
type Resolver interface {
	// Resolve 解析已发布根下的一个路径，返回它指向的内容标识符
	// path 形如 "{root}/Objects/CID/{hash}" (不带 /ipfs/ 前缀)
	Resolve(ctx context.Context, path string) (types.Hash, error)

	// Fetch 按标识符抓取对象，写到目标路径
	Fetch(ctx context.Context, id types.Hash, dst string) error
}

// CLI 通过本机的 ipfs 可执行文件实现 Resolver
// 没有超时、没有重试：外部工具挂住整个运行就挂住，这是发布工具可接受的语义
type CLI struct {
	bin string
}

// NewCLI 检查 ipfs 可执行文件是否存在
// 找不到工具属于用法错误，直接在构造时失败
func NewCLI(bin string) (*CLI, error) {
	if bin == "" {
		bin = "ipfs"
	}
	path, err := exec.LookPath(bin)
	if err != nil {
		return nil, fmt.Errorf("ipfs executable %q not found in PATH: %w", bin, err)
	}
	return &CLI{bin: path}, nil
}

func (c *CLI) Resolve(ctx context.Context, path string) (types.Hash, error) {
	cmd := exec.CommandContext(ctx, c.bin, "resolve", "/ipfs/"+path)
	out, err := cmd.Output()
	if err != nil {
		// 解析失败本身就是致命错误，带上 stderr 方便操作员定位
		if ee, ok := err.(*exec.ExitError); ok && len(ee.Stderr) > 0 {
			return "", fmt.Errorf("ipfs resolve %s: %s", path, strings.TrimSpace(string(ee.Stderr)))
		}
		return "", fmt.Errorf("ipfs resolve %s: %w", path, err)
	}

	// 输出形如 "/ipfs/bafk...\n"，剥掉前缀只留标识符
	resolved := strings.TrimSpace(string(out))
	resolved = strings.TrimPrefix(resolved, "/ipfs/")
	if resolved == "" {
		return "", fmt.Errorf("ipfs resolve %s: empty result", path)
	}
	return types.Hash(resolved), nil
}

func (c *CLI) Fetch(ctx context.Context, id types.Hash, dst string) error {
	cmd := exec.CommandContext(ctx, c.bin, "get", string(id), "-o", dst)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("ipfs get %s: %s: %w", id, strings.TrimSpace(string(out)), err)
	}
	return nil
}

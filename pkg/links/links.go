package links

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"datalink/pkg/ignore"
	"datalink/pkg/types"
)

var ErrEmptyLink = errors.New("content link is empty")

// Link 代表源码树里的一个内容链接文件
// 身份 = (目录, 去掉算法扩展名的文件名, 算法)
// 例如 Testing/Data/brain.png.cid -> {Dir, "brain.png", cid}
type Link struct {
	Dir  string // 所在目录 (绝对路径)
	Base string // 数据文件名 (不含算法扩展名)
	Algo types.Algo
}

// Path 返回链接文件自己的路径
func (l Link) Path() string {
	return filepath.Join(l.Dir, l.Base+l.Algo.Ext())
}

// DataPath 返回对应数据文件的路径 (链接路径去掉算法扩展名)
func (l Link) DataPath() string {
	return filepath.Join(l.Dir, l.Base)
}

// Sibling 返回同一个数据文件在另一种算法下的链接
// 迁移时用: brain.png.sha512 -> brain.png.cid
func (l Link) Sibling(algo types.Algo) Link {
	return Link{Dir: l.Dir, Base: l.Base, Algo: algo}
}

// Read 读取并清洗链接里存的哈希值
// 空白内容是致命错误：一个空链接意味着数据登记流程出过问题
func (l Link) Read() (types.Hash, error) {
	data, err := os.ReadFile(l.Path())
	if err != nil {
		return "", fmt.Errorf("failed to read content link %s: %w", l.Path(), err)
	}
	hash := strings.TrimSpace(string(data))
	if hash == "" {
		return "", fmt.Errorf("%w: %s", ErrEmptyLink, l.Path())
	}
	return types.Hash(hash), nil
}

// Write 写入链接文件 (迁移时生成新的 .cid 链接)
// 内容只有哈希本身，带结尾换行，跟人手写的链接文件保持一致
func (l Link) Write(hash types.Hash) error {
	return os.WriteFile(l.Path(), []byte(hash.String()+"\n"), 0644)
}

// Remove 删除链接文件
// 迁移完成后被取代的 legacy 链接走这里
func (l Link) Remove() error {
	if err := os.Remove(l.Path()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove content link %s: %w", l.Path(), err)
	}
	return nil
}

// Scan 遍历源码树，按算法收集所有内容链接
// 遍历顺序就是文件系统枚举顺序，不做排序承诺
// matcher 可以为 nil (不忽略任何路径)
func Scan(root string, matcher *ignore.Matcher) (map[types.Algo][]Link, error) {
	found := make(map[types.Algo][]Link)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err // 权限错误等
		}

		// 相对路径用于忽略规则匹配
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		if rel == "." {
			return nil
		}

		if matcher != nil && matcher.Matches(filepath.ToSlash(rel)) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			return nil
		}

		algo, ok := types.AlgoFromExt(filepath.Ext(path))
		if !ok {
			return nil
		}

		base := strings.TrimSuffix(filepath.Base(path), algo.Ext())
		if base == "" {
			// 文件名只有扩展名 (".cid")，不是合法的内容链接，跳过
			return nil
		}

		found[algo] = append(found[algo], Link{
			Dir:  filepath.Dir(path),
			Base: base,
			Algo: algo,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}

	return found, nil
}

package manifest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"datalink/pkg/types"

	"github.com/fxamacker/cbor/v2"
)

// 定义符合 DAG-CBOR 规范的编码选项
// 发布清单的哈希要作为 release notes 里的指纹，编码必须是规范化的：
// 相同的库内容必须生成唯一的清单哈希
var encOptions = cbor.EncOptions{
	// 强制 Map Key 排序 (Canonical)
	Sort: cbor.SortCanonical,

	// 浮点数必须使用最短无损表示以外的规则时显式声明
	ShortestFloat: cbor.ShortestFloatNone,

	// 时间格式化为 Unix 整数，禁止 RFC 3339 Tag
	Time:    cbor.TimeUnix,
	TimeTag: cbor.EncTagNone,

	// 禁止不定长编码 (Indefinite Length)
	// IPLD 要求数组和 Map 必须在头部声明长度
	IndefLength: cbor.IndefLengthForbidden,

	BigIntConvert: cbor.BigIntConvertShortest,
}

// 全局复用的编码模式
var em, _ = encOptions.EncMode()

// Entry 是清单里的一条对象记录
type Entry struct {
	Algo string `cbor:"algo"`
	Hash string `cbor:"hash"`
	Size int64  `cbor:"size"`
}

// Manifest 是对象库的一份规范化快照
type Manifest struct {
	Entries []Entry `cbor:"entries"`
}

// Build 遍历对象库，生成清单
// 条目按 (algo, hash) 排序，跟文件系统枚举顺序解耦，保证确定性
func Build(storeRoot string) (*Manifest, error) {
	var entries []Entry

	for _, algo := range types.Order() {
		dir := filepath.Join(storeRoot, algo.DirName())
		items, err := os.ReadDir(dir)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", dir, err)
		}

		for _, item := range items {
			if item.IsDir() {
				continue
			}
			info, err := item.Info()
			if err != nil {
				return nil, err
			}
			entries = append(entries, Entry{
				Algo: string(algo),
				Hash: item.Name(),
				Size: info.Size(),
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Algo != entries[j].Algo {
			return entries[i].Algo < entries[j].Algo
		}
		return entries[i].Hash < entries[j].Hash
	})

	return &Manifest{Entries: entries}, nil
}

// Encode 返回清单的规范化 CBOR 编码和它的 SHA-256 指纹
func (m *Manifest) Encode() ([]byte, types.Hash, error) {
	data, err := em.Marshal(m)
	if err != nil {
		return nil, "", fmt.Errorf("failed to marshal manifest: %w", err)
	}
	sum := sha256.Sum256(data)
	return data, types.Hash(hex.EncodeToString(sum[:])), nil
}

// WriteFile 把编码后的清单落盘 (manifest.cbor)，返回指纹
func (m *Manifest) WriteFile(path string) (types.Hash, error) {
	data, hash, err := m.Encode()
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest: %w", err)
	}
	return hash, nil
}

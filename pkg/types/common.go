// pkg/types/common.go
package types

// Hash 代表一个内容地址标识符
// 对于 sha512 算法是十六进制摘要字符串，对于 cid 算法是 IPFS CID
// 这是一个“值对象”，应当是不可变的。
type Hash string

func (h Hash) String() string { return string(h) }

// 验证 Hash 合法性
func (h Hash) IsZero() bool { return h == "" }

// Algo 代表内容链接使用的哈希方案
// 处理顺序是固定的：先 legacy (sha512)，后 current (cid)
type Algo string

const (
	AlgoSHA512 Algo = "sha512" // legacy 方案，迁移来源
	AlgoCID    Algo = "cid"    // current 方案，自校验
)

// Order 返回算法的固定处理顺序 (legacy-first)
func Order() []Algo {
	return []Algo{AlgoSHA512, AlgoCID}
}

// DirName 返回对象库中对应的子目录名
// Layout: Objects/SHA512/{hash}, Objects/CID/{hash}
func (a Algo) DirName() string {
	switch a {
	case AlgoSHA512:
		return "SHA512"
	case AlgoCID:
		return "CID"
	}
	return ""
}

// Ext 返回内容链接文件的扩展名 (带点)
func (a Algo) Ext() string { return "." + string(a) }

// IsValid 检查算法是否受支持
func (a Algo) IsValid() bool { return a == AlgoSHA512 || a == AlgoCID }

// AlgoFromExt 根据链接文件扩展名识别算法
// 返回 false 表示这不是一个内容链接文件
func AlgoFromExt(ext string) (Algo, bool) {
	switch ext {
	case ".sha512":
		return AlgoSHA512, true
	case ".cid":
		return AlgoCID, true
	}
	return "", false
}

// Mode 代表一次调和运行的模式
type Mode string

const (
	ModeVerify Mode = "verify" // 只读校验 (发布门禁)
	ModeCreate Mode = "create" // 补齐缺失对象 + 迁移链接
)

func (m Mode) IsValid() bool { return m == ModeVerify || m == ModeCreate }

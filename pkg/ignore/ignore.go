package ignore

import (
	"os"
	"path/filepath"

	gitignore "github.com/sabhiram/go-gitignore"
)

// Matcher 封装了忽略逻辑
// 它负责判断源码树里的一个路径是否应该被扫描器跳过
type Matcher struct {
	ignorer *gitignore.GitIgnore
}

// NewMatcher 初始化忽略匹配器
// rootPath: 源码树根目录（用于查找 .dlkignore 文件）
func NewMatcher(rootPath string) (*Matcher, error) {
	// 1. 定义系统级默认忽略规则 (Hardcoded Defaults)
	// 这些规则强制生效，防止把仓库元数据当成数据树扫进去
	defaultRules := []string{
		// --- 关键系统目录 ---
		".git",    // 忽略 Git 仓库数据
		"Objects", // 对象库本身绝对不能被当成含内容链接的源码树扫描
		".dlk",    // 工具自己的元数据目录 (审计库等)

		// --- 安全与配置 ---
		"config.yaml", // 防止 S3 Secret Key 泄露
		".env",        // 防止环境变量文件泄露

		// --- 常见垃圾文件 ---
		".DS_Store", // macOS
		"Thumbs.db", // Windows
	}

	var ignorer *gitignore.GitIgnore
	var err error

	// 2. 检查用户是否有 .dlkignore 文件
	ignoreFilePath := filepath.Join(rootPath, ".dlkignore")

	if _, errStat := os.Stat(ignoreFilePath); errStat == nil {
		// 情况 A: 用户定义了 .dlkignore
		// 把“文件内容”和“默认规则”合并编译
		ignorer, err = gitignore.CompileIgnoreFileAndLines(ignoreFilePath, defaultRules...)
	} else {
		// 情况 B: 用户没定义 .dlkignore
		// 仅编译默认规则
		ignorer = gitignore.CompileIgnoreLines(defaultRules...)
	}

	if err != nil {
		return nil, err
	}

	return &Matcher{ignorer: ignorer}, nil
}

// Matches 检查给定的路径是否匹配忽略规则
// path: 应该是相对于源码树根目录的相对路径 (例如 "Testing/Data/brain.cid")
// 返回: true 表示应该忽略 (Skip), false 表示应该保留 (Keep)
func (m *Matcher) Matches(path string) bool {
	if m.ignorer == nil {
		return false
	}
	return m.ignorer.MatchesPath(path)
}

package audit

import (
	"time"

	"gorm.io/datatypes"
)

// Run 记录一次调和运行
// 发布流程要求可追溯：哪次运行、哪棵树、哪个 root CID、结果如何
type Run struct {
	ID         uint   `gorm:"primaryKey"`
	Mode       string `gorm:"index;type:varchar(16)"`
	SourceTree string `gorm:"type:text"`
	RootCID    string `gorm:"type:varchar(128)"`

	StartedAt  time.Time
	FinishedAt *time.Time

	// Status: running / ok / failed
	Status string `gorm:"index;type:varchar(16)"`
	// 第一个致命错误的文本 (整批运行就是在它这儿停的)
	Error string `gorm:"type:text"`
}

// Event 记录运行中对单个内容链接做过的动作
type Event struct {
	ID    uint `gorm:"primaryKey"`
	RunID uint `gorm:"index;not null"`

	// Action: verified / migrated / copied / fetched / materialized / gap
	Action string `gorm:"index;type:varchar(32)"`
	Algo   string `gorm:"type:varchar(16)"`
	Hash   string `gorm:"index;type:varchar(160)"`
	Path   string `gorm:"type:text"` // 链接文件相对源码树的路径

	// Detail: 动作相关的附加信息 (比如迁移后的新 CID、对象来源)
	Detail datatypes.JSON

	CreatedAt time.Time
}

// TableName 强制指定表名
func (Run) TableName() string { return "runs" }

func (Event) TableName() string { return "events" }

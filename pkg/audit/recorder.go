package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"datalink/pkg/types"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Config 审计数据库配置
type Config struct {
	Driver string // "sqlite" (默认) 或 "postgres"
	DSN    string // sqlite: 文件路径; postgres: 标准 DSN
}

// Recorder 封装所有对审计库的操作
// 它是可选依赖：上层拿到 nil Recorder 时直接跳过记录
type Recorder struct {
	db *gorm.DB
}

// Open 打开审计数据库并迁移表结构
func Open(ctx context.Context, cfg Config) (*Recorder, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case "", "sqlite":
		dialector = sqlite.Open(cfg.DSN)
	case "postgres":
		dialector = postgres.Open(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported audit driver: %s", cfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		// 审计写入不需要 SQL 日志刷屏
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// 自动迁移表结构
	if err := db.WithContext(ctx).AutoMigrate(&Run{}, &Event{}); err != nil {
		return nil, fmt.Errorf("audit auto migration failed: %w", err)
	}

	return &Recorder{db: db}, nil
}

// NewWithConn 允许使用现有的 GORM 连接初始化 Recorder
// 这对于依赖注入、复用连接池或单元测试非常有用
func NewWithConn(conn *gorm.DB) (*Recorder, error) {
	if err := conn.AutoMigrate(&Run{}, &Event{}); err != nil {
		return nil, err
	}
	return &Recorder{db: conn}, nil
}

// BeginRun 登记一次新的运行，返回 Run ID
func (r *Recorder) BeginRun(ctx context.Context, mode types.Mode, sourceTree, rootCID string) (uint, error) {
	run := Run{
		Mode:       string(mode),
		SourceTree: sourceTree,
		RootCID:    rootCID,
		StartedAt:  time.Now(),
		Status:     "running",
	}
	if err := r.db.WithContext(ctx).Create(&run).Error; err != nil {
		return 0, fmt.Errorf("failed to record run: %w", err)
	}
	return run.ID, nil
}

// FinishRun 收尾：成功置 ok，失败置 failed 并存下第一个致命错误
func (r *Recorder) FinishRun(ctx context.Context, runID uint, runErr error) error {
	now := time.Now()
	updates := map[string]any{
		"finished_at": &now,
		"status":      "ok",
	}
	if runErr != nil {
		updates["status"] = "failed"
		updates["error"] = runErr.Error()
	}
	return r.db.WithContext(ctx).Model(&Run{}).Where("id = ?", runID).Updates(updates).Error
}

// RecordEvent 记录对单个内容链接的一个动作
// detail 可以为 nil；非 nil 时序列化为 JSON 存进 Detail 列
func (r *Recorder) RecordEvent(ctx context.Context, runID uint, action string, algo types.Algo, hash types.Hash, path string, detail map[string]string) error {
	ev := Event{
		RunID:  runID,
		Action: action,
		Algo:   string(algo),
		Hash:   hash.String(),
		Path:   path,
	}
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			return err
		}
		ev.Detail = data
	}
	if err := r.db.WithContext(ctx).Create(&ev).Error; err != nil {
		return fmt.Errorf("failed to record event: %w", err)
	}
	return nil
}

// RecentRuns 返回最近的若干次运行 (dlk log 用)
func (r *Recorder) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	var runs []Run
	err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// RunEvents 返回一次运行的全部动作，按发生顺序
func (r *Recorder) RunEvents(ctx context.Context, runID uint) ([]Event, error) {
	var events []Event
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}

package reconcile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"datalink/pkg/audit"
	"datalink/pkg/ignore"
	"datalink/pkg/ipfs"
	"datalink/pkg/links"
	"datalink/pkg/store"
	"datalink/pkg/types"
)

var (
	ErrMissingObject = errors.New("object not found in store")
	ErrMismatch      = errors.New("resolved identifier does not match content link")
	ErrRootRequired  = errors.New("root CID is required")
)

// Config 是一次调和运行的全部外部输入
// 原 shell 版本里的全局环境变量在这里变成显式字段
type Config struct {
	SourceRoot string     // 要调和的源码树 (必填，必须存在)
	RootCID    string     // 已发布快照的根标识符 (verify 必填；create 仅迁移时必需)
	Mode       types.Mode // verify | create
}

// LocalStore 是调和器对本地对象库的全部要求
// disk.Adapter 实现它；拆成接口是为了让依赖方向保持向内
type LocalStore interface {
	store.Store

	// CopyFrom 从外部来源把对象补进库里
	CopyFrom(ctx context.Context, src store.Source, algo types.Algo, hash types.Hash) error

	// ExportTo 把对象导出为源码树里的数据文件
	ExportTo(ctx context.Context, algo types.Algo, hash types.Hash, dst string) error

	// Root 返回库的物理根目录 (网络抓取的临时文件放在这下面)
	Root() string
}

// Reconciler 按固定顺序走完源码树里的所有内容链接
// 严格串行，第一个致命错误中止整批运行：发布门禁没有“部分成功”这种状态
type Reconciler struct {
	cfg      Config
	store    LocalStore
	sources  []store.Source // 按优先级排列的后备对象来源 (磁盘缓存、S3 缓存)
	resolver ipfs.Resolver
	audit    *audit.Recorder // 可选，nil 表示不记审计
	matcher  *ignore.Matcher // 可选

	runID uint
	gaps  int // create 模式下容忍的缺口数
}

func New(cfg Config, st LocalStore, sources []store.Source, resolver ipfs.Resolver, rec *audit.Recorder, matcher *ignore.Matcher) *Reconciler {
	return &Reconciler{
		cfg:      cfg,
		store:    st,
		sources:  sources,
		resolver: resolver,
		audit:    rec,
		matcher:  matcher,
	}
}

// Run 执行一次完整的调和
// 返回 nil 表示整棵树一致；任何非 nil 错误都意味着运行在该处中止
func (r *Reconciler) Run(ctx context.Context) error {
	if err := r.validate(); err != nil {
		return err
	}

	// 1. 扫描源码树，按算法分组
	found, err := links.Scan(r.cfg.SourceRoot, r.matcher)
	if err != nil {
		return err
	}

	total := 0
	for _, ls := range found {
		total += len(ls)
	}
	fmt.Printf("📦 Reconciling %d content links (%s mode): sha512=%d cid=%d\n",
		total, r.cfg.Mode, len(found[types.AlgoSHA512]), len(found[types.AlgoCID]))

	// 2. 登记审计运行
	if r.audit != nil {
		r.runID, err = r.audit.BeginRun(ctx, r.cfg.Mode, r.cfg.SourceRoot, r.cfg.RootCID)
		if err != nil {
			return err
		}
	}

	// 3. 顺序处理：先 legacy 后 current，单个致命错误短路整批
	runErr := r.processAll(ctx, found)

	if r.audit != nil {
		if err := r.audit.FinishRun(ctx, r.runID, runErr); err != nil && runErr == nil {
			runErr = err
		}
	}

	if runErr != nil {
		return runErr
	}

	if r.gaps > 0 {
		fmt.Printf("⚠️  %d legacy links have no object anywhere yet (tolerated)\n", r.gaps)
	}
	fmt.Println("✅ Reconciliation complete")
	return nil
}

func (r *Reconciler) validate() error {
	if !r.cfg.Mode.IsValid() {
		return fmt.Errorf("invalid mode %q", r.cfg.Mode)
	}
	info, err := os.Stat(r.cfg.SourceRoot)
	if err != nil {
		return fmt.Errorf("source tree not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source tree %s is not a directory", r.cfg.SourceRoot)
	}
	// verify 模式没有根标识符就没法做任何交叉校验
	if r.cfg.Mode == types.ModeVerify && r.cfg.RootCID == "" {
		return fmt.Errorf("%w in verify mode", ErrRootRequired)
	}
	return nil
}

func (r *Reconciler) processAll(ctx context.Context, found map[types.Algo][]links.Link) error {
	for _, algo := range types.Order() {
		for _, link := range found[algo] {
			var err error
			switch r.cfg.Mode {
			case types.ModeVerify:
				err = r.verifyLink(ctx, link)
			case types.ModeCreate:
				err = r.createLink(ctx, link)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// resolvePath 拼出已发布根下的对象路径: {root}/Objects/{ALGO_DIR}/{hash}
func (r *Reconciler) resolvePath(algo types.Algo, hash types.Hash) string {
	return r.cfg.RootCID + "/Objects/" + algo.DirName() + "/" + string(hash)
}

// relPath 返回链接相对源码树的路径 (审计和输出用)
func (r *Reconciler) relPath(l links.Link) string {
	rel, err := filepath.Rel(r.cfg.SourceRoot, l.Path())
	if err != nil {
		return l.Path()
	}
	return filepath.ToSlash(rel)
}

func (r *Reconciler) record(ctx context.Context, action string, l links.Link, hash types.Hash, detail map[string]string) error {
	if r.audit == nil {
		return nil
	}
	return r.audit.RecordEvent(ctx, r.runID, action, l.Algo, hash, r.relPath(l), detail)
}

// verifyLink 是发布门禁的核心检查
// 任何不一致都是致命的：对象缺失、解析失败、标识符不匹配，全部立即中止
func (r *Reconciler) verifyLink(ctx context.Context, l links.Link) error {
	// 1. 读取并清洗哈希 (空链接立即失败)
	hash, err := l.Read()
	if err != nil {
		return err
	}

	// 2. 对象必须已经在本地库里 — verify 模式绝不自动修复
	exists, err := r.store.Has(ctx, l.Algo, hash)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: %s/%s (link %s)", ErrMissingObject, l.Algo.DirName(), hash, r.relPath(l))
	}

	// 3. 交叉校验已发布的根
	resolved, err := r.resolver.Resolve(ctx, r.resolvePath(l.Algo, hash))
	if err != nil {
		return fmt.Errorf("remote resolution failed for %s: %w", r.relPath(l), err)
	}

	switch l.Algo {
	case types.AlgoCID:
		// current 算法是自校验的：解析结果必须等于链接里的哈希
		if resolved != hash {
			return fmt.Errorf("%w: %s resolved to %s, link says %s", ErrMismatch, r.relPath(l), resolved, hash)
		}
		if err := r.record(ctx, "verified", l, hash, nil); err != nil {
			return err
		}

	case types.AlgoSHA512:
		// legacy 算法：解析结果是同一个对象的 CID，顺手完成迁移
		if err := r.migrateObject(ctx, hash, resolved); err != nil {
			return err
		}
		// 确保 .cid 同胞链接存在，然后删掉已被取代的 .sha512 链接
		sibling := l.Sibling(types.AlgoCID)
		if _, statErr := os.Stat(sibling.Path()); os.IsNotExist(statErr) {
			if err := sibling.Write(resolved); err != nil {
				return err
			}
		}
		if err := l.Remove(); err != nil {
			return err
		}
		fmt.Printf("🔄 Migrated %s -> CID/%s\n", r.relPath(l), resolved)
		if err := r.record(ctx, "migrated", l, hash, map[string]string{"cid": resolved.String()}); err != nil {
			return err
		}
	}

	// 4. 数据文件缺席的话从库里物化出来
	return r.materialize(ctx, l, hash)
}

// createLink 补齐缺失对象并迁移 legacy 链接
func (r *Reconciler) createLink(ctx context.Context, l links.Link) error {
	hash, err := l.Read()
	if err != nil {
		return err
	}

	exists, err := r.store.Has(ctx, l.Algo, hash)
	if err != nil {
		return err
	}

	if exists {
		if l.Algo == types.AlgoCID {
			// 对象在库里且已经是 current 方案，无事可做
			return nil
		}
		return r.migrateLink(ctx, l, hash)
	}

	// 对象不在库里：按优先级尝试各个后备来源
	for i, src := range r.sources {
		found, err := src.Has(ctx, l.Algo, hash)
		if err != nil {
			return fmt.Errorf("object source %d failed for %s: %w", i, hash, err)
		}
		if !found {
			continue
		}
		if err := r.store.CopyFrom(ctx, src, l.Algo, hash); err != nil {
			return fmt.Errorf("failed to copy %s from cache: %w", hash, err)
		}
		fmt.Printf("📥 Copied %s/%s from object cache\n", l.Algo.DirName(), hash)
		return r.record(ctx, "copied", l, hash, map[string]string{"source": fmt.Sprintf("%d", i)})
	}

	// current 算法可以直接按标识符从网络抓
	if l.Algo == types.AlgoCID {
		if err := r.fetchObject(ctx, hash); err != nil {
			return fmt.Errorf("failed to fetch %s: %w", hash, err)
		}
		fmt.Printf("🌐 Fetched CID/%s from network\n", hash)
		return r.record(ctx, "fetched", l, hash, nil)
	}

	// legacy 对象哪儿都没有：唯一被容忍的分支
	// 这些链接早于迁移流程，本地副本还没准备好是合法状态
	r.gaps++
	fmt.Printf("⚠️  %s: object %s not available anywhere, skipping\n", r.relPath(l), hash)
	return r.record(ctx, "gap", l, hash, nil)
}

// migrateLink 把库里已有对象的 legacy 链接迁到 current 方案
// 写新 .cid 链接、复制对象到 CID/、删掉被取代的 .sha512 链接
func (r *Reconciler) migrateLink(ctx context.Context, l links.Link, hash types.Hash) error {
	if r.cfg.RootCID == "" {
		return fmt.Errorf("%w to migrate %s", ErrRootRequired, r.relPath(l))
	}

	resolved, err := r.resolver.Resolve(ctx, r.resolvePath(types.AlgoSHA512, hash))
	if err != nil {
		return fmt.Errorf("remote resolution failed for %s: %w", r.relPath(l), err)
	}

	if err := r.migrateObject(ctx, hash, resolved); err != nil {
		return err
	}

	if err := l.Sibling(types.AlgoCID).Write(resolved); err != nil {
		return err
	}
	if err := l.Remove(); err != nil {
		return err
	}

	fmt.Printf("🔄 Migrated %s -> CID/%s\n", r.relPath(l), resolved)
	return r.record(ctx, "migrated", l, hash, map[string]string{"cid": resolved.String()})
}

// migrateObject 把 SHA512/{hash} 的对象复制为 CID/{cid}
func (r *Reconciler) migrateObject(ctx context.Context, hash, cid types.Hash) error {
	rc, err := r.store.Get(ctx, types.AlgoSHA512, hash)
	if err != nil {
		return fmt.Errorf("failed to read legacy object %s: %w", hash, err)
	}
	defer rc.Close()
	return r.store.Put(ctx, types.AlgoCID, cid, rc)
}

// fetchObject 从网络抓对象，经由临时文件走原子 Put
func (r *Reconciler) fetchObject(ctx context.Context, id types.Hash) error {
	tmp, err := os.CreateTemp(r.store.Root(), "fetch-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := r.resolver.Fetch(ctx, id, tmpPath); err != nil {
		return err
	}

	f, err := os.Open(tmpPath)
	if err != nil {
		return err
	}
	defer f.Close()
	return r.store.Put(ctx, types.AlgoCID, id, f)
}

// materialize 确保链接旁边的数据文件存在
func (r *Reconciler) materialize(ctx context.Context, l links.Link, hash types.Hash) error {
	dataPath := l.DataPath()
	if _, err := os.Stat(dataPath); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := r.store.ExportTo(ctx, l.Algo, hash, dataPath); err != nil {
		return fmt.Errorf("failed to materialize %s: %w", dataPath, err)
	}
	fmt.Printf("📄 Materialized %s\n", r.relPath(l))
	return r.record(ctx, "materialized", l, hash, nil)
}

// Gaps 返回本次运行容忍的缺口数 (create 模式)
func (r *Reconciler) Gaps() int { return r.gaps }

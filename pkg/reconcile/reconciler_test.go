package reconcile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"datalink/pkg/store"
	"datalink/pkg/store/disk"
	"datalink/pkg/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeResolver 用一张内存表模拟已发布的根，避免测试依赖真实 IPFS 节点
type fakeResolver struct {
	table   map[string]types.Hash // resolve path -> identifier
	objects map[types.Hash][]byte // fetchable network objects
	calls   []string
}

func (f *fakeResolver) Resolve(ctx context.Context, path string) (types.Hash, error) {
	f.calls = append(f.calls, "resolve:"+path)
	if h, ok := f.table[path]; ok {
		return h, nil
	}
	return "", fmt.Errorf("could not resolve %s", path)
}

func (f *fakeResolver) Fetch(ctx context.Context, id types.Hash, dst string) error {
	f.calls = append(f.calls, "fetch:"+string(id))
	data, ok := f.objects[id]
	if !ok {
		return fmt.Errorf("could not fetch %s", id)
	}
	return os.WriteFile(dst, data, 0644)
}

type env struct {
	tree     string
	store    *disk.Adapter
	resolver *fakeResolver
}

func newEnv(t *testing.T) *env {
	t.Helper()
	st, err := disk.NewAdapter(filepath.Join(t.TempDir(), "Objects"))
	require.NoError(t, err)
	return &env{
		tree:  t.TempDir(),
		store: st,
		resolver: &fakeResolver{
			table:   make(map[string]types.Hash),
			objects: make(map[types.Hash][]byte),
		},
	}
}

func (e *env) writeLink(t *testing.T, rel string, algo types.Algo, hash string) {
	t.Helper()
	path := filepath.Join(e.tree, rel+algo.Ext())
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(hash+"\n"), 0644))
}

func (e *env) putObject(t *testing.T, algo types.Algo, hash, content string) {
	t.Helper()
	require.NoError(t, e.store.Put(context.Background(), algo, types.Hash(hash),
		strReader(content)))
}

func (e *env) publish(algo types.Algo, hash string, resolved string) {
	e.resolver.table["bafyroot/Objects/"+algo.DirName()+"/"+hash] = types.Hash(resolved)
}

func (e *env) run(mode types.Mode, root string) error {
	cfg := Config{SourceRoot: e.tree, RootCID: root, Mode: mode}
	return New(cfg, e.store, nil, e.resolver, nil, nil).Run(context.Background())
}

func strReader(s string) io.Reader { return strings.NewReader(s) }

// snapshot 抓取一棵目录树的全部文件和内容，用于断言“没有任何变化”
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

func TestVerify_CurrentAlgoRoundTrip(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "Testing/Data/brain.png", types.AlgoCID, "bafkreia01")
	e.putObject(t, types.AlgoCID, "bafkreia01", "image bytes")
	e.publish(types.AlgoCID, "bafkreia01", "bafkreia01")

	require.NoError(t, e.run(types.ModeVerify, "bafyroot"))

	// 数据文件必须被物化到链接旁边
	content, err := os.ReadFile(filepath.Join(e.tree, "Testing/Data/brain.png"))
	require.NoError(t, err)
	assert.Equal(t, "image bytes", string(content))
}

func TestVerify_MissingObjectIsFatal(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "a.bin", types.AlgoCID, "bafkreia01")
	e.publish(types.AlgoCID, "bafkreia01", "bafkreia01")
	// 对象故意不放进库

	err := e.run(types.ModeVerify, "bafyroot")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingObject)
}

func TestVerify_AbortStopsLaterLinks(t *testing.T) {
	// 坏链接在前：后面的合法链接不能被处理 (批次在第一个错误处中止)
	e := newEnv(t)

	// sha512 先处理，所以让坏链接挂在 sha512 组里
	e.writeLink(t, "bad.bin", types.AlgoSHA512, "deadbeef") // 对象不存在

	e.writeLink(t, "good.bin", types.AlgoCID, "bafkreia01")
	e.putObject(t, types.AlgoCID, "bafkreia01", "good bytes")
	e.publish(types.AlgoCID, "bafkreia01", "bafkreia01")

	err := e.run(types.ModeVerify, "bafyroot")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingObject)

	// good.bin 的数据文件不该被物化：运行没走到它
	_, statErr := os.Stat(filepath.Join(e.tree, "good.bin"))
	assert.True(t, os.IsNotExist(statErr))
	// 也不该有任何针对 good 链接的网络解析
	for _, c := range e.resolver.calls {
		assert.NotContains(t, c, "bafkreia01")
	}
}

func TestVerify_BadLinkLast(t *testing.T) {
	// 坏链接在后：前面的链接正常完成，错误依然让整次运行失败
	e := newEnv(t)

	e.writeLink(t, "good.bin", types.AlgoSHA512, "feedface")
	e.putObject(t, types.AlgoSHA512, "feedface", "good bytes")
	e.publish(types.AlgoSHA512, "feedface", "bafkreia99")

	e.writeLink(t, "bad.bin", types.AlgoCID, "bafkreia01") // 对象不存在

	err := e.run(types.ModeVerify, "bafyroot")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMissingObject)

	// sha512 组先处理完：good.bin 已被迁移 + 物化
	_, statErr := os.Stat(filepath.Join(e.tree, "good.bin"))
	assert.NoError(t, statErr)
}

func TestVerify_MismatchIsFatal(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "a.bin", types.AlgoCID, "bafkreia01")
	e.putObject(t, types.AlgoCID, "bafkreia01", "bytes")
	// 已发布的根解析出了另一个标识符：库和源码树失步
	e.publish(types.AlgoCID, "bafkreia01", "bafkreiaXX")

	err := e.run(types.ModeVerify, "bafyroot")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestVerify_ResolutionErrorIsFatal(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "a.bin", types.AlgoCID, "bafkreia01")
	e.putObject(t, types.AlgoCID, "bafkreia01", "bytes")
	// 不发布：解析本身会失败

	err := e.run(types.ModeVerify, "bafyroot")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "remote resolution failed")
}

func TestVerify_EmptyHashGuard(t *testing.T) {
	e := newEnv(t)

	// 空白链接在 sha512 组，保证它先被碰到
	path := filepath.Join(e.tree, "empty.bin.sha512")
	require.NoError(t, os.WriteFile(path, []byte("   \n"), 0644))

	e.writeLink(t, "later.bin", types.AlgoCID, "bafkreia01")
	e.putObject(t, types.AlgoCID, "bafkreia01", "bytes")
	e.publish(types.AlgoCID, "bafkreia01", "bafkreia01")

	err := e.run(types.ModeVerify, "bafyroot")
	require.Error(t, err)

	// 批次中止：后面的链接没有任何网络动作
	assert.Empty(t, e.resolver.calls)
}

func TestVerify_LegacyMigrationSideEffects(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "heart.png", types.AlgoSHA512, "deadbeef")
	e.putObject(t, types.AlgoSHA512, "deadbeef", "heart bytes")
	e.publish(types.AlgoSHA512, "deadbeef", "bafkreia77")

	require.NoError(t, e.run(types.ModeVerify, "bafyroot"))

	ctx := context.Background()

	// 对象必须以 CID 身份出现在库里
	exists, err := e.store.Has(ctx, types.AlgoCID, "bafkreia77")
	require.NoError(t, err)
	assert.True(t, exists)

	// legacy 链接被删掉，.cid 同胞链接补上
	_, statErr := os.Stat(filepath.Join(e.tree, "heart.png.sha512"))
	assert.True(t, os.IsNotExist(statErr))
	cidLink, err := os.ReadFile(filepath.Join(e.tree, "heart.png.cid"))
	require.NoError(t, err)
	assert.Equal(t, "bafkreia77\n", string(cidLink))

	// 数据文件被物化
	content, err := os.ReadFile(filepath.Join(e.tree, "heart.png"))
	require.NoError(t, err)
	assert.Equal(t, "heart bytes", string(content))
}

func TestVerify_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "a.bin", types.AlgoCID, "bafkreia01")
	e.putObject(t, types.AlgoCID, "bafkreia01", "bytes")
	e.publish(types.AlgoCID, "bafkreia01", "bafkreia01")

	// 第一遍：物化数据文件
	require.NoError(t, e.run(types.ModeVerify, "bafyroot"))

	treeSnap := snapshot(t, e.tree)
	storeSnap := snapshot(t, e.store.Root())

	// 第二遍：已一致的树不产生任何变化，也不报错
	require.NoError(t, e.run(types.ModeVerify, "bafyroot"))

	assert.Equal(t, treeSnap, snapshot(t, e.tree))
	assert.Equal(t, storeSnap, snapshot(t, e.store.Root()))
}

func TestVerify_RequiresRoot(t *testing.T) {
	e := newEnv(t)
	err := e.run(types.ModeVerify, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRootRequired)
}

func TestCreate_LegacyMigration(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "heart.png", types.AlgoSHA512, "deadbeef")
	e.putObject(t, types.AlgoSHA512, "deadbeef", "heart bytes")
	e.publish(types.AlgoSHA512, "deadbeef", "bafkreia77")

	require.NoError(t, e.run(types.ModeCreate, "bafyroot"))

	// 新 .cid 链接写入了解析出的标识符
	cidLink, err := os.ReadFile(filepath.Join(e.tree, "heart.png.cid"))
	require.NoError(t, err)
	assert.Equal(t, "bafkreia77\n", string(cidLink))

	// 旧 .sha512 链接被移除
	_, statErr := os.Stat(filepath.Join(e.tree, "heart.png.sha512"))
	assert.True(t, os.IsNotExist(statErr))

	// 对象在 CID/{解析值} 下可用
	exists, err := e.store.Has(context.Background(), types.AlgoCID, "bafkreia77")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestCreate_MigrationRequiresRoot(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "heart.png", types.AlgoSHA512, "deadbeef")
	e.putObject(t, types.AlgoSHA512, "deadbeef", "heart bytes")

	// create 模式平时不要求 root CID，但碰到需要迁移的 legacy 链接就必须有
	err := e.run(types.ModeCreate, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRootRequired)
}

func TestCreate_CurrentPresentIsNoop(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "a.bin", types.AlgoCID, "bafkreia01")
	e.putObject(t, types.AlgoCID, "bafkreia01", "bytes")

	// 没有 root CID 也能过：current 对象在库里就无事可做
	require.NoError(t, e.run(types.ModeCreate, ""))
	assert.Empty(t, e.resolver.calls)
}

func TestCreate_CopyFromCache(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "a.bin", types.AlgoCID, "bafkreia01")

	// 外部磁盘缓存里有对象
	cache, err := disk.NewAdapter(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, cache.Put(context.Background(), types.AlgoCID, "bafkreia01", strReader("cached bytes")))

	cfg := Config{SourceRoot: e.tree, Mode: types.ModeCreate}
	rec := New(cfg, e.store, []store.Source{cache}, e.resolver, nil, nil)
	require.NoError(t, rec.Run(context.Background()))

	// 对象被补进本地库，而且没有走网络
	exists, err := e.store.Has(context.Background(), types.AlgoCID, "bafkreia01")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.Empty(t, e.resolver.calls)
}

func TestCreate_FetchFromNetwork(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "a.bin", types.AlgoCID, "bafkreia01")
	e.resolver.objects["bafkreia01"] = []byte("network bytes")

	require.NoError(t, e.run(types.ModeCreate, ""))

	rc, err := e.store.Get(context.Background(), types.AlgoCID, "bafkreia01")
	require.NoError(t, err)
	defer rc.Close()
	content, _ := io.ReadAll(rc)
	assert.Equal(t, "network bytes", string(content))
}

func TestCreate_FetchFailureIsFatal(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "a.bin", types.AlgoCID, "bafkreia01")
	// resolver.objects 里没有，Fetch 会失败

	err := e.run(types.ModeCreate, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to fetch")
}

func TestCreate_ToleratedGap(t *testing.T) {
	e := newEnv(t)
	// legacy 链接，对象在库、缓存、网络上都不存在
	e.writeLink(t, "old.bin", types.AlgoSHA512, "deadbeef")

	// 另一个正常的 current 链接，保证运行能整体成功
	e.writeLink(t, "a.bin", types.AlgoCID, "bafkreia01")
	e.putObject(t, types.AlgoCID, "bafkreia01", "bytes")

	cfg := Config{SourceRoot: e.tree, Mode: types.ModeCreate}
	rec := New(cfg, e.store, nil, e.resolver, nil, nil)

	// 整次运行成功 (exit 0 语义)，缺口只记一笔
	require.NoError(t, rec.Run(context.Background()))
	assert.Equal(t, 1, rec.Gaps())

	// legacy 链接原样保留，等数据到位后重跑
	_, statErr := os.Stat(filepath.Join(e.tree, "old.bin.sha512"))
	assert.NoError(t, statErr)
}

func TestCreate_Idempotent(t *testing.T) {
	e := newEnv(t)
	e.writeLink(t, "heart.png", types.AlgoSHA512, "deadbeef")
	e.putObject(t, types.AlgoSHA512, "deadbeef", "heart bytes")
	e.publish(types.AlgoSHA512, "deadbeef", "bafkreia77")

	require.NoError(t, e.run(types.ModeCreate, "bafyroot"))

	treeSnap := snapshot(t, e.tree)
	storeSnap := snapshot(t, e.store.Root())

	// 第二遍：迁移已完成，.cid 对象在库里，纯 no-op
	require.NoError(t, e.run(types.ModeCreate, "bafyroot"))
	assert.Equal(t, treeSnap, snapshot(t, e.tree))
	assert.Equal(t, storeSnap, snapshot(t, e.store.Root()))
}

func TestRun_MissingSourceTree(t *testing.T) {
	st, err := disk.NewAdapter(filepath.Join(t.TempDir(), "Objects"))
	require.NoError(t, err)

	cfg := Config{SourceRoot: "/no/such/tree", RootCID: "bafyroot", Mode: types.ModeVerify}
	err = New(cfg, st, nil, &fakeResolver{}, nil, nil).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "source tree not accessible")
}

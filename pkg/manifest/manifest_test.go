package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeObject(t *testing.T, root, algoDir, hash, content string) {
	t.Helper()
	dir := filepath.Join(root, algoDir)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, hash), []byte(content), 0644))
}

func TestBuild_Deterministic(t *testing.T) {
	// 两个库，同样的对象，不同的写入顺序
	rootA := t.TempDir()
	writeObject(t, rootA, "CID", "bafkreia0001", "one")
	writeObject(t, rootA, "CID", "bafkreia0002", "two2")
	writeObject(t, rootA, "SHA512", "deadbeef", "three")

	rootB := t.TempDir()
	writeObject(t, rootB, "SHA512", "deadbeef", "three")
	writeObject(t, rootB, "CID", "bafkreia0002", "two2")
	writeObject(t, rootB, "CID", "bafkreia0001", "one")

	mA, err := Build(rootA)
	require.NoError(t, err)
	mB, err := Build(rootB)
	require.NoError(t, err)

	_, hashA, err := mA.Encode()
	require.NoError(t, err)
	_, hashB, err := mB.Encode()
	require.NoError(t, err)

	// 相同内容 -> 相同指纹，不管文件系统枚举顺序如何
	assert.Equal(t, hashA, hashB)
	assert.Len(t, mA.Entries, 3)
}

func TestBuild_SensitiveToContent(t *testing.T) {
	rootA := t.TempDir()
	writeObject(t, rootA, "CID", "bafkreia0001", "one")

	rootB := t.TempDir()
	writeObject(t, rootB, "CID", "bafkreia0001", "one-longer") // size 变了

	mA, _ := Build(rootA)
	mB, _ := Build(rootB)

	_, hashA, err := mA.Encode()
	require.NoError(t, err)
	_, hashB, err := mB.Encode()
	require.NoError(t, err)

	assert.NotEqual(t, hashA, hashB)
}

func TestBuild_EmptyStore(t *testing.T) {
	m, err := Build(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, m.Entries)

	// 空库也要能编码出一个稳定指纹
	_, hash, err := m.Encode()
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
}

func TestWriteFile(t *testing.T) {
	root := t.TempDir()
	writeObject(t, root, "CID", "bafkreia0001", "one")

	m, err := Build(root)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "manifest.cbor")
	hash, err := m.WriteFile(out)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

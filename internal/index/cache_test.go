package index

import (
	"os"
	"path/filepath"
	"testing"

	"nmnist-viewer/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampleHash(t *testing.T) {
	h1 := SampleHash("train/7/00123.bin", 500)
	h2 := SampleHash("train/7/00123.bin", 500)
	h3 := SampleHash("train/7/00123.bin", 505)

	assert.Equal(t, h1, h2)
	assert.NotEqual(t, h1, h3)
	assert.Len(t, h1, 32) // md5 hex
}

func TestSaveLoadRoundtrip(t *testing.T) {
	SetCacheDir(t.TempDir())

	events := []models.Event{
		{T: 5, X: 1, Y: 2, P: 0},
		{T: 8202, X: 3, Y: 4, P: 1},
		{T: 150000, X: 33, Y: 33, P: 1},
	}

	require.False(t, CacheExists("train/7/00123.bin", 25))
	require.NoError(t, SaveCache("train/7/00123.bin", 25, events))
	require.True(t, CacheExists("train/7/00123.bin", 25))

	cache, err := LoadCache("train/7/00123.bin", 25)
	require.NoError(t, err)
	defer cache.Close()

	assert.Equal(t, 3, cache.Count)
	assert.Equal(t, events, cache.Events)
}

func TestLoadCacheMissing(t *testing.T) {
	SetCacheDir(t.TempDir())

	_, err := LoadCache("train/7/nothing.bin", 10)
	assert.Error(t, err)
}

func TestLoadCacheInvalidSize(t *testing.T) {
	dir := t.TempDir()
	SetCacheDir(dir)

	// 手工写一个长度不是 8 的倍数的缓存文件
	hash := SampleHash("train/1/bad.bin", 5)
	require.NoError(t, os.WriteFile(filepath.Join(dir, hash+".bin"), []byte{1, 2, 3}, 0644))

	_, err := LoadCache("train/1/bad.bin", 5)
	assert.Error(t, err)
}

func TestSaveCacheEmpty(t *testing.T) {
	SetCacheDir(t.TempDir())

	require.NoError(t, SaveCache("train/1/empty.bin", 0, nil))
	require.True(t, CacheExists("train/1/empty.bin", 0))

	cache, err := LoadCache("train/1/empty.bin", 0)
	require.NoError(t, err)
	defer cache.Close()

	assert.Equal(t, 0, cache.Count)
}

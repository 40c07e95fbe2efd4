package dataset

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArchive 在临时目录写一个测试归档
func writeArchive(t *testing.T, entries map[string][]byte) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "train.zip")
	f, err := os.Create(path)
	require.NoError(t, err)

	w := zip.NewWriter(f)
	for name, data := range entries {
		ew, err := w.Create(name)
		require.NoError(t, err)
		_, err = ew.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	return path
}

// event 构造一个 5 字节事件组
func event(x, y, p uint8, ts uint32) []byte {
	return []byte{x, y, p<<7 | uint8(ts>>16)&0x7F, uint8(ts >> 8), uint8(ts)}
}

func TestCatalogParse(t *testing.T) {
	path := writeArchive(t, map[string][]byte{
		"train/3/00001.bin": append(event(1, 2, 0, 5), event(3, 4, 1, 10)...),
		"train/3/00002.bin": event(5, 6, 0, 20),
		"train/7/00001.bin": event(7, 8, 1, 30),
		"readme.txt":        []byte("not a sample"),
		"train/bad/x.bin":   event(0, 0, 0, 0), // 标签无效, 跳过
	})

	c := NewCatalog(path)
	defer c.Close()
	require.NoError(t, c.Parse())

	assert.Equal(t, 3, c.Count())
	assert.Equal(t, []int{3, 7}, c.Labels())

	// 样本按路径排序
	assert.Equal(t, "train/3/00001.bin", c.Samples[0].Path)
	assert.Equal(t, 3, c.Samples[0].Label)
	assert.Equal(t, int64(10), c.Samples[0].Size)
}

func TestCatalogByLabel(t *testing.T) {
	path := writeArchive(t, map[string][]byte{
		"train/3/00001.bin": event(1, 2, 0, 5),
		"train/3/00002.bin": event(5, 6, 0, 20),
		"train/7/00001.bin": event(7, 8, 1, 30),
	})

	c := NewCatalog(path)
	defer c.Close()
	require.NoError(t, c.Parse())

	assert.Len(t, c.ByLabel(3), 2)
	assert.Len(t, c.ByLabel(7), 1)
	assert.Empty(t, c.ByLabel(9))
}

func TestCatalogReadSample(t *testing.T) {
	raw := append(event(1, 2, 0, 5), event(3, 4, 1, 10)...)
	path := writeArchive(t, map[string][]byte{
		"train/3/00001.bin": raw,
	})

	c := NewCatalog(path)
	defer c.Close()
	require.NoError(t, c.Parse())

	data, err := c.ReadSample("train/3/00001.bin")
	require.NoError(t, err)
	assert.Equal(t, raw, data)

	_, err = c.ReadSample("train/3/missing.bin")
	assert.Error(t, err)
}

func TestCatalogMissingArchive(t *testing.T) {
	c := NewCatalog(filepath.Join(t.TempDir(), "missing.zip"))
	assert.Error(t, c.Parse())
}

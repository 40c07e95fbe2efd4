package server

import (
	"archive/zip"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nmnist-viewer/internal/config"
	"nmnist-viewer/internal/index"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// event 构造一个 5 字节事件组
func event(x, y, p uint8, ts uint32) []byte {
	return []byte{x, y, p<<7 | uint8(ts>>16)&0x7F, uint8(ts >> 8), uint8(ts)}
}

// overflowMarker 构造溢出标记组
func overflowMarker() []byte {
	return event(0, config.OverflowY, 0, 0)
}

// writeArchiveFile 在指定路径写一个 zip 归档
func writeArchiveFile(t *testing.T, path string, entries map[string][]byte) {
	t.Helper()

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
}

// writeDataset 在临时目录写一个 train.zip, 返回目录
func writeDataset(t *testing.T, entries map[string][]byte) string {
	t.Helper()

	base := t.TempDir()
	writeArchiveFile(t, filepath.Join(base, config.TrainFilename), entries)
	return base
}

func newTestServer(t *testing.T) *DatasetServer {
	t.Helper()
	index.SetCacheDir(t.TempDir())

	base := writeDataset(t, map[string][]byte{
		"train/3/00001.bin": append(append(event(1, 2, 0, 5), overflowMarker()...), event(3, 4, 1, 10)...),
		"train/3/00002.bin": event(5, 6, 0, 20),
		"train/7/00001.bin": append(event(7, 8, 1, 50000), event(9, 10, 0, 150000)...),
	})

	ds := NewDatasetServer(base, true)
	t.Cleanup(ds.Close)
	return ds
}

func TestDatasetServerLoad(t *testing.T) {
	ds := newTestServer(t)

	assert.False(t, ds.IsLoaded())
	assert.Equal(t, "not_loaded", ds.GetCacheStatus().Status)

	require.NoError(t, ds.Load())

	assert.True(t, ds.IsLoaded())
	assert.Equal(t, 3, ds.GetConfig().SampleCount)
	assert.True(t, ds.GetConfig().Train)
}

func TestDatasetServerLoadMissingArchive(t *testing.T) {
	ds := NewDatasetServer(t.TempDir(), true)
	assert.Error(t, ds.Load())
}

func TestLoadAutoDownload(t *testing.T) {
	index.SetCacheDir(t.TempDir())

	ds := NewDatasetServer(t.TempDir(), true)
	defer ds.Close()
	ds.SetAutoDownload(true)

	// 归档缺失时用标准地址和 MD5 下载
	var gotURL, gotMD5 string
	ds.fetchFn = func(url, dest, md5hex string) error {
		gotURL, gotMD5 = url, md5hex
		writeArchiveFile(t, dest, map[string][]byte{
			"train/3/00001.bin": event(1, 2, 0, 5),
		})
		return nil
	}

	require.NoError(t, ds.Load())
	assert.Equal(t, config.TrainURL, gotURL)
	assert.Equal(t, config.TrainMD5, gotMD5)
	assert.Equal(t, 1, ds.GetConfig().SampleCount)
}

func TestLoadAutoDownloadFetchError(t *testing.T) {
	ds := NewDatasetServer(t.TempDir(), false)
	defer ds.Close()
	ds.SetAutoDownload(true)

	ds.fetchFn = func(url, dest, md5hex string) error {
		assert.Equal(t, config.TestURL, url)
		return errors.New("network down")
	}

	assert.Error(t, ds.Load())
	assert.False(t, ds.IsLoaded())
}

func TestBuildSampleCache(t *testing.T) {
	ds := newTestServer(t)
	require.NoError(t, ds.BuildSampleCache())

	status := ds.GetCacheStatus()
	assert.Equal(t, "ready", status.Status)
	assert.Equal(t, 100, status.Progress)
	assert.Equal(t, 3, status.Cached)

	entries := ds.GetSampleCache()
	require.Len(t, entries, 3)

	// 样本按路径排序, 第一个是 train/3/00001.bin (含一个溢出标记)
	assert.Equal(t, "train/3/00001.bin", entries[0].Path)
	assert.Equal(t, 3, entries[0].Label)
	assert.Equal(t, 2, entries[0].EventCount)
	assert.Equal(t, uint32(5), entries[0].FirstTs)
	assert.Equal(t, uint32(10+config.TimeIncrement), entries[0].LastTs)
}

func TestGetLabels(t *testing.T) {
	ds := newTestServer(t)
	require.NoError(t, ds.BuildSampleCache())

	labels := ds.GetLabels()
	require.Len(t, labels, 2)
	assert.Equal(t, LabelInfo{Label: 3, Count: 2}, labels[0])
	assert.Equal(t, LabelInfo{Label: 7, Count: 1}, labels[1])
}

func TestGetSamples(t *testing.T) {
	ds := newTestServer(t)
	require.NoError(t, ds.BuildSampleCache())

	all := ds.GetSamples(nil)
	assert.Len(t, all, 3)

	label := 7
	filtered := ds.GetSamples(&label)
	require.Len(t, filtered, 1)
	assert.Equal(t, "train/7/00001.bin", filtered[0].Path)
	assert.Equal(t, 2, filtered[0].EventCount)
	assert.Equal(t, int64(100000), filtered[0].DurationUs)
}

func TestGetEvents(t *testing.T) {
	ds := newTestServer(t)
	require.NoError(t, ds.BuildSampleCache())

	events := ds.GetEvents(0)
	require.Len(t, events, 2)
	assert.Equal(t, uint32(5), events[0].T)
	assert.Equal(t, uint32(10+config.TimeIncrement), events[1].T)

	assert.Nil(t, ds.GetEvents(-1))
	assert.Nil(t, ds.GetEvents(99))
}

func TestGetEventsOnDemand(t *testing.T) {
	// 不构建缓存也可以按需解码
	ds := newTestServer(t)
	require.NoError(t, ds.Load())

	events := ds.GetEvents(1)
	require.Len(t, events, 1)
	assert.Equal(t, uint8(5), events[0].X)
}

func TestGetEventsFiltered(t *testing.T) {
	ds := newTestServer(t)
	require.NoError(t, ds.BuildSampleCache())

	// train/7/00001.bin: 50000 和 150000, 扫视过滤只保留后者
	all := ds.GetEventsFiltered(2, false)
	require.Len(t, all, 2)

	filtered := ds.GetEventsFiltered(2, true)
	require.Len(t, filtered, 1)
	assert.Equal(t, uint32(150000), filtered[0].T)

	assert.Nil(t, ds.GetEventsFiltered(99, true))
}

func TestMmapCacheReuse(t *testing.T) {
	cacheDir := t.TempDir()
	index.SetCacheDir(cacheDir)

	base := writeDataset(t, map[string][]byte{
		"train/1/00001.bin": event(1, 2, 0, 5),
	})

	ds := NewDatasetServer(base, true)
	require.NoError(t, ds.BuildSampleCache())
	ds.Close()

	// 第二次构建从 mmap 缓存加载
	ds2 := NewDatasetServer(base, true)
	defer ds2.Close()
	require.NoError(t, ds2.BuildSampleCache())

	events := ds2.GetEvents(0)
	require.Len(t, events, 1)
	assert.Equal(t, uint8(1), events[0].X)
}

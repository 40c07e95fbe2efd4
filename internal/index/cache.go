package index

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"unsafe"

	"nmnist-viewer/internal/models"

	"golang.org/x/sys/unix"
)

const RecordSize = 8 // 每个事件记录 8 字节

// EventCache mmap 映射的解码事件缓存
type EventCache struct {
	data   []byte         // mmap 映射的原始数据
	Events []models.Event // 零拷贝切片视图
	Count  int
}

var cacheDir string

func init() {
	// 默认缓存目录：工作目录下的 .event_cache
	cwd, err := os.Getwd()
	if err != nil {
		cacheDir = ".event_cache"
	} else {
		cacheDir = filepath.Join(cwd, ".event_cache")
	}
}

// SetCacheDir 设置缓存目录
func SetCacheDir(dir string) {
	cacheDir = dir
	os.MkdirAll(cacheDir, 0755)
}

// GetCacheDir 获取当前缓存目录
func GetCacheDir() string {
	return cacheDir
}

// SampleHash 计算样本的唯一标识
//
// 样本是归档内条目而非磁盘文件, 用条目名和未压缩大小做标识。
func SampleHash(path string, size int64) string {
	identifier := fmt.Sprintf("%s:%d", path, size)
	hash := md5.Sum([]byte(identifier))
	return hex.EncodeToString(hash[:])
}

func getCachePath(hash string) string {
	return filepath.Join(cacheDir, hash+".bin")
}

// LoadCache 使用 mmap 加载事件缓存 (零拷贝)
func LoadCache(path string, size int64) (*EventCache, error) {
	cachePath := getCachePath(SampleHash(path, size))

	f, err := os.Open(cachePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}

	fileSize := int(info.Size())
	if fileSize%RecordSize != 0 {
		return nil, fmt.Errorf("invalid cache file size: %d", fileSize)
	}

	if fileSize == 0 {
		return &EventCache{}, nil
	}

	// mmap 映射文件
	data, err := unix.Mmap(int(f.Fd()), 0, fileSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	count := fileSize / RecordSize

	// 零拷贝: 直接将 mmap 内存解释为结构体切片
	events := unsafe.Slice((*models.Event)(unsafe.Pointer(&data[0])), count)

	return &EventCache{
		data:   data,
		Events: events,
		Count:  count,
	}, nil
}

// Close 释放 mmap 映射
func (c *EventCache) Close() error {
	if c.data != nil {
		return unix.Munmap(c.data)
	}
	return nil
}

// SaveCache 保存解码事件到缓存文件
func SaveCache(path string, size int64, events []models.Event) error {
	hash := SampleHash(path, size)
	cachePath := getCachePath(hash)

	f, err := os.Create(cachePath)
	if err != nil {
		return err
	}
	defer f.Close()

	if len(events) == 0 {
		return nil
	}

	// 直接写入结构体内存
	data := unsafe.Slice((*byte)(unsafe.Pointer(&events[0])), len(events)*RecordSize)
	_, err = f.Write(data)

	return err
}

// CacheExists 检查缓存是否存在
func CacheExists(path string, size int64) bool {
	_, err := os.Stat(getCachePath(SampleHash(path, size)))
	return err == nil
}

package server

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"nmnist-viewer/internal/aer"
	"nmnist-viewer/internal/config"
	"nmnist-viewer/internal/dataset"
	"nmnist-viewer/internal/download"
	"nmnist-viewer/internal/index"
	"nmnist-viewer/internal/models"
)

// DatasetServer 数据集服务器核心
type DatasetServer struct {
	basePath string
	train    bool
	loaded   bool

	// 归档缺失时自动下载
	autoDownload bool
	fetchFn      func(url, dest, md5hex string) error

	mu          sync.RWMutex
	catalog     *dataset.Catalog
	sampleCache []models.SampleCacheEntry
	eventCaches map[int]*index.EventCache // mmap 缓存
	eventLists  map[int][]models.Event    // 内存列表

	// 缓存构建状态
	cacheBuilding bool
	cacheProgress int
	cacheTotal    int
	cacheCurrent  int

	// 构建进度回调 (websocket 推送)
	progressFn func(CacheStatus)
}

// NewDatasetServer 创建数据集服务器
func NewDatasetServer(basePath string, train bool) *DatasetServer {
	return &DatasetServer{
		basePath:    basePath,
		train:       train,
		fetchFn:     download.Fetch,
		eventCaches: make(map[int]*index.EventCache),
		eventLists:  make(map[int][]models.Event),
	}
}

// SetAutoDownload 设置归档缺失时是否自动下载
func (s *DatasetServer) SetAutoDownload(enable bool) {
	s.autoDownload = enable
}

// SetProgressFn 设置缓存构建进度回调
func (s *DatasetServer) SetProgressFn(fn func(CacheStatus)) {
	s.mu.Lock()
	s.progressFn = fn
	s.mu.Unlock()
}

// Load 加载数据集归档
func (s *DatasetServer) Load() error {
	archive := filepath.Join(s.basePath, config.ArchiveFilename(s.train))
	if _, err := os.Stat(archive); os.IsNotExist(err) {
		if !s.autoDownload {
			return fmt.Errorf("归档文件不存在: %s", archive)
		}
		if err := s.fetchFn(config.ArchiveURL(s.train), archive, config.ArchiveMD5(s.train)); err != nil {
			return fmt.Errorf("归档下载失败: %v", err)
		}
	}

	// 确保缓存目录存在
	index.SetCacheDir(index.GetCacheDir())
	fmt.Printf("[Dataset] 缓存目录: %s\n", index.GetCacheDir())

	// 解析归档目录
	s.catalog = dataset.NewCatalog(archive)
	if err := s.catalog.Parse(); err != nil {
		return fmt.Errorf("归档解析失败: %v", err)
	}

	s.loaded = true
	fmt.Printf("[Dataset] ✓ 已加载 %d 个样本\n", s.catalog.Count())

	if expected := config.ExpectedSampleCount(s.train); s.catalog.Count() != expected {
		fmt.Printf("[Dataset] 警告: 样本数 %d 与标准子集的 %d 不一致\n", s.catalog.Count(), expected)
	}

	return nil
}

// BuildSampleCache 构建样本缓存
//
// 逐个解码样本, 记录标签/事件数/时间范围。已有 mmap 缓存的样本
// 直接映射, 否则解码后写入缓存。
func (s *DatasetServer) BuildSampleCache() error {
	if !s.loaded {
		if err := s.Load(); err != nil {
			return err
		}
	}

	total := s.catalog.Count()
	s.mu.Lock()
	s.cacheBuilding = true
	s.cacheTotal = total
	s.cacheCurrent = 0
	s.cacheProgress = 0
	s.mu.Unlock()

	fmt.Printf("[SampleCache] 开始构建，共 %d 个样本...\n", total)
	startTime := time.Now()

	var entries []models.SampleCacheEntry
	cachedCount := 0

	for i, info := range s.catalog.Samples {
		events, err := s.loadEvents(i, info)
		if err != nil {
			s.updateProgress(i + 1)
			continue
		}

		entry := models.SampleCacheEntry{
			SampleIndex: i,
			Path:        info.Path,
			Label:       info.Label,
			EventCount:  len(events),
		}
		if len(events) > 0 {
			entry.FirstTs = events[0].T
			entry.LastTs = events[len(events)-1].T
		}

		entries = append(entries, entry)
		cachedCount++

		s.updateProgress(i + 1)

		// 进度显示
		if (i+1)%1000 == 0 || i+1 == total {
			elapsed := time.Since(startTime)
			fmt.Printf("[SampleCache] 进度: %d/%d (%.1fs)\n", i+1, total, elapsed.Seconds())
		}
	}

	s.mu.Lock()
	s.sampleCache = entries
	s.cacheBuilding = false
	s.cacheProgress = 100
	s.mu.Unlock()

	s.notifyProgress()

	elapsed := time.Since(startTime)
	fmt.Printf("[SampleCache] ✓ 缓存完成: %d 个样本，耗时 %.1fs\n", cachedCount, elapsed.Seconds())

	return nil
}

func (s *DatasetServer) updateProgress(current int) {
	s.mu.Lock()
	s.cacheCurrent = current
	if s.cacheTotal > 0 {
		s.cacheProgress = current * 100 / s.cacheTotal
	}
	notify := current%1000 == 0 || current == s.cacheTotal
	s.mu.Unlock()

	if notify {
		s.notifyProgress()
	}
}

func (s *DatasetServer) notifyProgress() {
	s.mu.RLock()
	fn := s.progressFn
	s.mu.RUnlock()

	if fn != nil {
		fn(s.GetCacheStatus())
	}
}

// loadEvents 加载样本事件 (优先使用 mmap 缓存)
func (s *DatasetServer) loadEvents(sampleIndex int, info models.SampleInfo) ([]models.Event, error) {
	// 先尝试从 mmap 缓存加载
	if index.CacheExists(info.Path, info.Size) {
		cache, err := index.LoadCache(info.Path, info.Size)
		if err == nil {
			s.mu.Lock()
			s.eventCaches[sampleIndex] = cache
			s.mu.Unlock()
			return cache.Events, nil
		}
	}

	// 读取并解码样本
	raw, err := s.catalog.ReadSample(info.Path)
	if err != nil {
		return nil, err
	}
	events := aer.DecodeEvents(raw)

	// 保存到缓存
	if len(events) > 0 {
		if err := index.SaveCache(info.Path, info.Size, events); err != nil {
			fmt.Printf("[SampleCache] 保存失败: %v\n", err)
		}

		s.mu.Lock()
		s.eventLists[sampleIndex] = events
		s.mu.Unlock()
	}

	return events, nil
}

// ==================== 查询方法 ====================

// GetSampleCache 获取样本缓存
func (s *DatasetServer) GetSampleCache() []models.SampleCacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sampleCache
}

// GetEvents 获取样本的解码事件
func (s *DatasetServer) GetEvents(sampleIndex int) []models.Event {
	s.mu.RLock()

	// 先查 mmap 缓存
	if cache, ok := s.eventCaches[sampleIndex]; ok {
		s.mu.RUnlock()
		return cache.Events
	}

	// 再查内存列表
	if events, ok := s.eventLists[sampleIndex]; ok {
		s.mu.RUnlock()
		return events
	}

	catalog := s.catalog
	s.mu.RUnlock()

	// 未缓存则按需解码
	if catalog == nil || sampleIndex < 0 || sampleIndex >= catalog.Count() {
		return nil
	}

	events, err := s.loadEvents(sampleIndex, catalog.Samples[sampleIndex])
	if err != nil {
		return nil
	}
	return events
}

// GetEventsFiltered 获取样本事件, 可选丢弃第一次扫视窗口内的事件
func (s *DatasetServer) GetEventsFiltered(sampleIndex int, firstSaccade bool) []models.Event {
	events := s.GetEvents(sampleIndex)
	if events == nil {
		return nil
	}
	if firstSaccade {
		filtered := aer.Pipeline{aer.FirstSaccadeStage()}.Apply(events)
		if filtered == nil {
			filtered = []models.Event{}
		}
		return filtered
	}
	return events
}

// GetSample 获取样本缓存条目
func (s *DatasetServer) GetSample(sampleIndex int) (models.SampleCacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, entry := range s.sampleCache {
		if entry.SampleIndex == sampleIndex {
			return entry, true
		}
	}
	return models.SampleCacheEntry{}, false
}

// GetLabels 获取所有类别及样本数
func (s *DatasetServer) GetLabels() []LabelInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	countMap := make(map[int]int)
	for _, entry := range s.sampleCache {
		countMap[entry.Label]++
	}

	var labels []int
	for l := range countMap {
		labels = append(labels, l)
	}
	sort.Ints(labels)

	infos := make([]LabelInfo, 0, len(labels))
	for _, l := range labels {
		infos = append(infos, LabelInfo{Label: l, Count: countMap[l]})
	}
	return infos
}

// GetSamples 获取样本列表 (可按类别过滤)
func (s *DatasetServer) GetSamples(label *int) []SampleSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var samples []SampleSummary
	for _, entry := range s.sampleCache {
		if label != nil && entry.Label != *label {
			continue
		}
		samples = append(samples, SampleSummary{
			ID:         entry.SampleIndex,
			Path:       entry.Path,
			Label:      entry.Label,
			EventCount: entry.EventCount,
			FirstTs:    entry.FirstTs,
			LastTs:     entry.LastTs,
			DurationUs: int64(entry.LastTs) - int64(entry.FirstTs),
		})
	}

	sort.Slice(samples, func(i, j int) bool {
		return samples[i].ID < samples[j].ID
	})

	return samples
}

// GetCacheStatus 获取缓存构建状态
func (s *DatasetServer) GetCacheStatus() CacheStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.loaded {
		return CacheStatus{
			Status:   "not_loaded",
			Progress: 0,
			Total:    0,
			Current:  0,
			Cached:   0,
		}
	}

	if s.cacheBuilding {
		return CacheStatus{
			Status:   "building",
			Progress: s.cacheProgress,
			Total:    s.cacheTotal,
			Current:  s.cacheCurrent,
			Cached:   len(s.sampleCache),
		}
	}

	return CacheStatus{
		Status:   "ready",
		Progress: 100,
		Total:    s.catalog.Count(),
		Current:  s.catalog.Count(),
		Cached:   len(s.sampleCache),
	}
}

// GetConfig 获取配置
func (s *DatasetServer) GetConfig() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cfg := Config{
		DatasetPath: s.basePath,
		Train:       s.train,
		Loaded:      s.loaded,
	}

	if s.loaded && s.catalog != nil {
		cfg.SampleCount = s.catalog.Count()
		cfg.CachedCount = len(s.sampleCache)
	}

	return cfg
}

// IsLoaded 是否已加载
func (s *DatasetServer) IsLoaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loaded
}

// GetDatasetPath 获取数据集路径
func (s *DatasetServer) GetDatasetPath() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.basePath
}

// IsTrain 是否训练子集
func (s *DatasetServer) IsTrain() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.train
}

// Close 关闭服务器，释放 mmap 与归档资源
func (s *DatasetServer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, cache := range s.eventCaches {
		cache.Close()
	}
	if s.catalog != nil {
		s.catalog.Close()
	}
}

// ==================== 数据类型 ====================

// LabelInfo 类别信息
type LabelInfo struct {
	Label int `json:"label"`
	Count int `json:"count"`
}

// SampleSummary 样本摘要
type SampleSummary struct {
	ID         int    `json:"id"`
	Path       string `json:"path"`
	Label      int    `json:"label"`
	EventCount int    `json:"eventCount"`
	FirstTs    uint32 `json:"firstTs"`
	LastTs     uint32 `json:"lastTs"`
	DurationUs int64  `json:"durationUs"`
}

// CacheStatus 缓存状态
type CacheStatus struct {
	Status   string `json:"status"`
	Progress int    `json:"progress"`
	Total    int    `json:"total"`
	Current  int    `json:"current"`
	Cached   int    `json:"cached"`
}

// Config 配置
type Config struct {
	DatasetPath string `json:"datasetPath"`
	Train       bool   `json:"train"`
	Loaded      bool   `json:"loaded"`
	SampleCount int    `json:"sampleCount,omitempty"`
	CachedCount int    `json:"cachedCount,omitempty"`
}

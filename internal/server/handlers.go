package server

import (
	"strconv"
	"sync"

	"github.com/kataras/iris/v12"
)

// DatasetCache 单个路径的数据集缓存数据
type DatasetCache struct {
	ds   *DatasetServer
	hash string // sampleCount-train 用于验证缓存有效性
}

// Handlers API 处理器
type Handlers struct {
	ds *DatasetServer
	mu sync.RWMutex

	// 路径历史记录（最多保留 10 个）
	pathHistory []string

	// 路径 -> DatasetServer 缓存 Map
	dsCache map[string]*DatasetCache

	// 进度推送
	progress *ProgressHub
}

const maxPathHistory = 10

// NewHandlers 创建处理器
func NewHandlers(ds *DatasetServer) *Handlers {
	h := &Handlers{
		ds:          ds,
		pathHistory: []string{},
		dsCache:     make(map[string]*DatasetCache),
		progress:    NewProgressHub(),
	}
	ds.SetProgressFn(h.progress.Broadcast)
	return h
}

// computeDatasetHash 计算数据集缓存的 hash 值
func computeDatasetHash(ds *DatasetServer) string {
	cfg := ds.GetConfig()
	return strconv.Itoa(cfg.SampleCount) + "-" + strconv.FormatBool(cfg.Train)
}

// dataset 在读锁下取当前数据集实例，SetConfig 可能并发替换 h.ds
func (h *Handlers) dataset() *DatasetServer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.ds
}

// addToPathHistory 添加路径到历史记录
func (h *Handlers) addToPathHistory(path string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// 移除重复项
	var newHistory []string
	for _, p := range h.pathHistory {
		if p != path {
			newHistory = append(newHistory, p)
		}
	}

	// 添加到开头
	h.pathHistory = append([]string{path}, newHistory...)

	// 限制数量
	if len(h.pathHistory) > maxPathHistory {
		h.pathHistory = h.pathHistory[:maxPathHistory]
	}
}

// ==================== API (v1) ====================

// GetConfig 获取配置
// GET /api/v1/config
func (h *Handlers) GetConfig(ctx iris.Context) {
	ds := h.dataset()
	cfg := ds.GetConfig()

	h.mu.RLock()
	pathHistory := make([]string, len(h.pathHistory))
	copy(pathHistory, h.pathHistory)
	h.mu.RUnlock()

	result := iris.Map{
		"datasetPath": cfg.DatasetPath,
		"train":       cfg.Train,
		"loaded":      cfg.Loaded,
		"pathHistory": pathHistory,
	}

	if cfg.Loaded {
		result["sampleCount"] = cfg.SampleCount
		result["cachedCount"] = cfg.CachedCount
		result["cacheStatus"] = ds.GetCacheStatus()
	}

	ctx.JSON(result)
}

// SetConfig 设置配置
// POST /api/v1/config
func (h *Handlers) SetConfig(ctx iris.Context) {
	var req struct {
		DatasetPath string `json:"datasetPath"`
		Train       *bool  `json:"train"`
	}

	if err := ctx.ReadJSON(&req); err != nil {
		ctx.StatusCode(400)
		ctx.JSON(iris.Map{"error": "无效的 JSON"})
		return
	}

	result := iris.Map{}

	current := h.dataset()
	train := current.IsTrain()
	if req.Train != nil {
		train = *req.Train
	}

	// 更新数据集路径或子集
	if req.DatasetPath != "" || req.Train != nil {
		path := req.DatasetPath
		if path == "" {
			path = current.GetDatasetPath()
		}
		cacheKey := path + ":" + strconv.FormatBool(train)

		h.mu.Lock()

		// 保存当前数据集到缓存（如果已加载）
		if h.ds.IsLoaded() {
			currentKey := h.ds.GetDatasetPath() + ":" + strconv.FormatBool(h.ds.IsTrain())
			if currentKey != cacheKey {
				h.dsCache[currentKey] = &DatasetCache{
					ds:   h.ds,
					hash: computeDatasetHash(h.ds),
				}
			}
		}

		// 检查缓存中是否有目标路径的数据
		var newDs *DatasetServer
		var fromCache bool

		if cached, ok := h.dsCache[cacheKey]; ok {
			// 创建临时实例来获取当前文件系统的 hash
			tempDs := NewDatasetServer(path, train)
			if err := tempDs.Load(); err == nil {
				currentHash := computeDatasetHash(tempDs)
				if currentHash == cached.hash {
					// Hash 一致，使用缓存; 临时实例打开的归档要释放
					tempDs.Close()
					newDs = cached.ds
					fromCache = true
					// 从缓存中移除（因为即将成为当前实例）
					delete(h.dsCache, cacheKey)
				} else {
					// Hash 不一致，需要重新加载
					newDs = tempDs
				}
			} else {
				h.mu.Unlock()
				ctx.StatusCode(400)
				ctx.JSON(iris.Map{
					"datasetPath": path,
					"loaded":      false,
					"error":       "无法加载指定路径的数据集",
				})
				return
			}
		} else {
			// 缓存中没有，需要新加载
			newDs = NewDatasetServer(path, train)
			if err := newDs.Load(); err != nil {
				h.mu.Unlock()
				ctx.StatusCode(400)
				ctx.JSON(iris.Map{
					"datasetPath": path,
					"loaded":      false,
					"error":       "无法加载指定路径的数据集",
				})
				return
			}
		}

		// 替换当前实例（不关闭旧的，因为已经缓存了）
		newDs.SetProgressFn(h.progress.Broadcast)
		h.ds = newDs
		h.mu.Unlock()

		// 添加到路径历史
		h.addToPathHistory(path)

		// 如果不是从缓存恢复，需要构建样本缓存
		if !fromCache {
			go newDs.BuildSampleCache()
		}

		h.mu.RLock()
		pathHistory := make([]string, len(h.pathHistory))
		copy(pathHistory, h.pathHistory)
		h.mu.RUnlock()

		result["datasetPath"] = path
		result["train"] = train
		result["loaded"] = true
		result["sampleCount"] = newDs.GetConfig().SampleCount
		result["cacheStatus"] = newDs.GetCacheStatus()
		result["pathHistory"] = pathHistory
		result["fromCache"] = fromCache
	} else {
		cfg := current.GetConfig()
		result["datasetPath"] = cfg.DatasetPath
		result["train"] = cfg.Train
		result["loaded"] = cfg.Loaded
		if cfg.Loaded {
			result["sampleCount"] = cfg.SampleCount
			result["cachedCount"] = cfg.CachedCount
		}
	}

	ctx.JSON(result)
}

// GetCacheStatus 获取缓存构建状态
// GET /api/v1/cache/status
func (h *Handlers) GetCacheStatus(ctx iris.Context) {
	ctx.JSON(h.dataset().GetCacheStatus())
}

// GetLabels 获取类别列表
// GET /api/v1/labels
func (h *Handlers) GetLabels(ctx iris.Context) {
	labels := h.dataset().GetLabels()
	if labels == nil {
		labels = []LabelInfo{}
	}

	ctx.JSON(iris.Map{"labels": labels})
}

// GetSamples 获取样本列表
// GET /api/v1/samples?label=7
func (h *Handlers) GetSamples(ctx iris.Context) {
	labelStr := ctx.URLParam("label")
	var label *int
	if labelStr != "" {
		l, err := strconv.Atoi(labelStr)
		if err != nil {
			ctx.StatusCode(400)
			ctx.JSON(iris.Map{"error": "无效的 label 参数"})
			return
		}
		label = &l
	}

	samples := h.dataset().GetSamples(label)
	if samples == nil {
		samples = []SampleSummary{}
	}

	ctx.JSON(iris.Map{"samples": samples})
}

// GetSampleByID 获取样本摘要
// GET /api/v1/samples/{id}
func (h *Handlers) GetSampleByID(ctx iris.Context) {
	id, err := ctx.Params().GetInt("id")
	if err != nil {
		ctx.StatusCode(400)
		ctx.JSON(iris.Map{"error": "无效的样本 ID"})
		return
	}

	entry, ok := h.dataset().GetSample(id)
	if !ok {
		ctx.StatusCode(404)
		ctx.JSON(iris.Map{"error": "样本不存在"})
		return
	}

	ctx.JSON(SampleSummary{
		ID:         entry.SampleIndex,
		Path:       entry.Path,
		Label:      entry.Label,
		EventCount: entry.EventCount,
		FirstTs:    entry.FirstTs,
		LastTs:     entry.LastTs,
		DurationUs: int64(entry.LastTs) - int64(entry.FirstTs),
	})
}

// GetSampleEvents 获取样本事件
// GET /api/v1/samples/{id}/events?saccade=first
func (h *Handlers) GetSampleEvents(ctx iris.Context) {
	id, err := ctx.Params().GetInt("id")
	if err != nil {
		ctx.StatusCode(400)
		ctx.JSON(iris.Map{"error": "无效的样本 ID"})
		return
	}

	events := h.dataset().GetEventsFiltered(id, ctx.URLParam("saccade") == "first")
	if events == nil {
		ctx.StatusCode(404)
		ctx.JSON(iris.Map{"error": "样本不存在"})
		return
	}

	// 紧凑的并列数组表示, 避免逐事件对象的开销
	xs := make([]int, len(events))
	ys := make([]int, len(events))
	ts := make([]uint32, len(events))
	ps := make([]int, len(events))
	for i, e := range events {
		xs[i] = int(e.X)
		ys[i] = int(e.Y)
		ts[i] = e.T
		ps[i] = int(e.P)
	}

	ctx.JSON(iris.Map{
		"count": len(events),
		"x":     xs,
		"y":     ys,
		"t":     ts,
		"p":     ps,
	})
}

// ==================== 路由注册 ====================

// RegisterRoutes 注册路由
func RegisterRoutes(app *iris.Application, h *Handlers) {
	v1 := app.Party("/api/v1")
	{
		v1.Get("/config", h.GetConfig)
		v1.Post("/config", h.SetConfig)
		v1.Get("/cache/status", h.GetCacheStatus)
		v1.Get("/labels", h.GetLabels)
		v1.Get("/samples", h.GetSamples)
		v1.Get("/samples/{id:int}", h.GetSampleByID)
		v1.Get("/samples/{id:int}/events", h.GetSampleEvents)
		v1.Get("/stream", h.HandleWebSocket)      // WebSocket 事件回放
		v1.Get("/progress", h.progress.Handler()) // WebSocket 进度推送
	}
}

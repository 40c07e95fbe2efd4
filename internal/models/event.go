package models

// Event AER 事件记录 (8 bytes, 内存布局优化)
// 将 uint32 放在开头确保 4 字节对齐，显式填充避免隐式 padding
type Event struct {
	T uint32 // 时间戳 (微秒, 溢出校正后) - 放在开头确保对齐
	X uint8  // 横坐标 (0..33)
	Y uint8  // 纵坐标 (0..33)
	P uint8  // 极性: 0=变暗, 1=变亮
	_ uint8  // 填充到 8 字节
}

// Polarity 极性常量
const (
	PolarityOff = 0 // 亮度降低
	PolarityOn  = 1 // 亮度升高
)

// SampleInfo 样本条目 (归档内一个 .bin 文件)
type SampleInfo struct {
	Path  string // 归档内路径, 如 train/7/00123.bin
	Label int    // 类别标签 (倒数第二段路径)
	Size  int64  // 未压缩字节数
}

// SampleCacheEntry 样本缓存条目
type SampleCacheEntry struct {
	SampleIndex int    // 样本索引 (目录顺序)
	Path        string // 归档内路径
	Label       int    // 类别标签
	EventCount  int    // 事件数
	FirstTs     uint32 // 首个事件时间戳 (微秒)
	LastTs      uint32 // 末个事件时间戳 (微秒)
}

package config

const (
	// AER 事件常量
	EventSize     = 5       // 每个事件 5 字节
	OverflowY     = 240     // 时间戳溢出标记 (y == 240)
	TimeIncrement = 1 << 13 // 溢出补偿量 8192 (2^13)

	// 传感器分辨率 (N-MNIST)
	SensorWidth  = 34
	SensorHeight = 34

	// 第一次扫视结束时间 (微秒)
	FirstSaccadeEnd = 100000

	// 样本数量
	TrainSampleCount = 60000
	TestSampleCount  = 10000
)

// 下载地址 (Mendeley 数据集)
const (
	BaseURL       = "https://data.mendeley.com/public-files/datasets/468j46mzdv/files/"
	TrainURL      = BaseURL + "39c25547-014b-4137-a934-9d29fa53c7a0/file_downloaded"
	TrainFilename = "train.zip"
	TrainMD5      = "20959b8e626244a1b502305a9e6e2031"
	TestURL       = BaseURL + "05a4d654-7e03-4c15-bdfa-9bb2bcbea494/file_downloaded"
	TestFilename  = "test.zip"
	TestMD5       = "69ca8762b2fe404d9b9bad1103e97832"
)

var (
	// 默认配置
	DefaultDatasetPath = ""
	Host               = "0.0.0.0"
	Port               = 8000
)

// IsOverflowMarker 检查是否为时间戳溢出标记
func IsOverflowMarker(y uint8) bool {
	return y == OverflowY
}

// ArchiveFilename 返回子集对应的归档文件名
func ArchiveFilename(train bool) string {
	if train {
		return TrainFilename
	}
	return TestFilename
}

// ArchiveURL 返回子集对应的下载地址
func ArchiveURL(train bool) string {
	if train {
		return TrainURL
	}
	return TestURL
}

// ArchiveMD5 返回子集归档的 MD5
func ArchiveMD5(train bool) string {
	if train {
		return TrainMD5
	}
	return TestMD5
}

// ExpectedSampleCount 返回子集的标准样本数
func ExpectedSampleCount(train bool) int {
	if train {
		return TrainSampleCount
	}
	return TestSampleCount
}

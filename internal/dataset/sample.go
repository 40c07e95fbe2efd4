package dataset

import (
	"nmnist-viewer/internal/aer"
	"nmnist-viewer/internal/models"
)

// DecodeSample 解码一个训练样本: 事件序列 + 路径标签
//
// 标签解析失败时返回 ErrInvalidLabel, 不做部分解码。
func DecodeSample(data []byte, path string) ([]models.Event, int, error) {
	label, err := ExtractLabel(path)
	if err != nil {
		return nil, 0, err
	}
	return aer.DecodeEvents(data), label, nil
}

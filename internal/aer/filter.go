package aer

import (
	"nmnist-viewer/internal/config"
	"nmnist-viewer/internal/models"
)

// Stage 事件变换阶段 (纯函数, 不修改输入)
type Stage func([]models.Event) []models.Event

// Pipeline 按顺序应用的变换阶段列表
type Pipeline []Stage

// Apply 依次应用各阶段
func (p Pipeline) Apply(events []models.Event) []models.Event {
	for _, stage := range p {
		events = stage(events)
	}
	return events
}

// FilterSaccade 保留 t > threshold 的事件，顺序不变
func FilterSaccade(events []models.Event, threshold uint32) []models.Event {
	var out []models.Event
	for _, e := range events {
		if e.T > threshold {
			out = append(out, e)
		}
	}
	return out
}

// SaccadeStage 扫视过滤阶段
func SaccadeStage(threshold uint32) Stage {
	return func(events []models.Event) []models.Event {
		return FilterSaccade(events, threshold)
	}
}

// FirstSaccadeStage 丢弃第一次扫视窗口内的事件 (t <= 100000)
func FirstSaccadeStage() Stage {
	return SaccadeStage(config.FirstSaccadeEnd)
}

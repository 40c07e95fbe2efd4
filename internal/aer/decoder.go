// Package aer N-MNIST/N-Caltech101 事件流解码库
//
// 解析 AER 二进制事件格式并做时间戳溢出校正。
// 解码逻辑移植自 Python 版本的 nmnist.py (_bin_to_array)
package aer

import (
	"errors"

	"nmnist-viewer/internal/config"
	"nmnist-viewer/internal/models"
)

var (
	// ErrTruncatedRecord 缓冲区长度不是 5 的整数倍 (严格模式)
	ErrTruncatedRecord = errors.New("truncated event record")
	// ErrEmptyRecording 空缓冲区 (严格模式)
	ErrEmptyRecording = errors.New("empty recording")
)

// DecodeEvents 解码事件流
//
// 每 5 字节一个事件: x(1) + y(1) + p|t_high(1) + t_mid(1) + t_low(1)
//   - x = b0
//   - y = b1
//   - p = b2 的 bit7
//   - t = b2 低 7 位 << 16 | b3 << 8 | b4 (23 位原始时间戳)
//
// y == 240 为溢出标记: 硬件时钟回绕，本组及之后所有事件的时间戳
// 加 2^13。标记本身不是事件，校正后丢弃。末尾不足 5 字节静默丢弃。
func DecodeEvents(data []byte) []models.Event {
	count := len(data) / config.EventSize
	events := make([]models.Event, 0, count)

	var offset uint32
	for i := 0; i < count; i++ {
		g := data[i*config.EventSize : (i+1)*config.EventSize]

		x := g[0]
		y := g[1]
		p := (g[2] & 0x80) >> 7
		t := uint32(g[2]&0x7F)<<16 | uint32(g[3])<<8 | uint32(g[4])

		// 溢出标记: 先累加偏移再丢弃 (偏移同样作用于标记自身的时间戳,
		// 但标记不进入输出，顺序累加即等价于对后缀整体加偏移)
		if config.IsOverflowMarker(y) {
			offset += config.TimeIncrement
			continue
		}

		events = append(events, models.Event{
			T: t + offset,
			X: x,
			Y: y,
			P: p,
		})
	}

	return events
}

// DecodeEventsStrict 严格模式解码
//
// 空缓冲区返回 ErrEmptyRecording，长度不是 5 的整数倍返回
// ErrTruncatedRecord，其余行为与 DecodeEvents 一致。
func DecodeEventsStrict(data []byte) ([]models.Event, error) {
	if len(data) == 0 {
		return nil, ErrEmptyRecording
	}
	if len(data)%config.EventSize != 0 {
		return nil, ErrTruncatedRecord
	}
	return DecodeEvents(data), nil
}

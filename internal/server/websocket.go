package server

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"nmnist-viewer/internal/models"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 64 * 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// 回放帧率 (每秒批次数)
const playbackFPS = 30

// WSMessage WebSocket 消息
type WSMessage struct {
	Action    string  `json:"action"`
	Sample    int     `json:"sample"`
	Timestamp int64   `json:"timestamp"` // 微秒
	Speed     float64 `json:"speed"`
}

// StreamSession 回放会话
type StreamSession struct {
	ws       *websocket.Conn
	ds       *DatasetServer
	stopChan chan struct{}
	mu       sync.Mutex
	running  bool
}

// HandleWebSocket WebSocket 处理器
func (h *Handlers) HandleWebSocket(ctx iris.Context) {
	ws, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if err != nil {
		fmt.Printf("[WS] Upgrade error: %v\n", err)
		return
	}
	defer ws.Close()

	session := &StreamSession{
		ws:       ws,
		ds:       h.dataset(),
		stopChan: make(chan struct{}),
	}

	sessionID := fmt.Sprintf("%p", ws)
	fmt.Printf("[WS] 新连接: %s\n", sessionID)

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				fmt.Printf("[WS] Error: %v\n", err)
			}
			break
		}

		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			session.sendJSON(map[string]interface{}{"error": "无效的 JSON"})
			continue
		}

		switch msg.Action {
		case "play":
			session.stop()
			if msg.Speed == 0 {
				msg.Speed = 1.0
			}
			go session.streamEvents(msg.Sample, msg.Timestamp, msg.Speed)
			fmt.Printf("[WS] 开始回放: sample=%d, ts=%d, speed=%.1f\n",
				msg.Sample, msg.Timestamp, msg.Speed)

		case "pause":
			session.stop()
			fmt.Printf("[WS] 暂停\n")

		case "seek":
			session.stop()
			if msg.Speed == 0 {
				msg.Speed = 1.0
			}
			go session.streamEvents(msg.Sample, msg.Timestamp, msg.Speed)
			fmt.Printf("[WS] Seek: sample=%d, ts=%d\n", msg.Sample, msg.Timestamp)

		case "speed":
			fmt.Printf("[WS] 速度变更: %.1fx\n", msg.Speed)
		}
	}

	session.stop()
	fmt.Printf("[WS] 断开连接: %s\n", sessionID)
}

func (s *StreamSession) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		close(s.stopChan)
		s.stopChan = make(chan struct{})
		s.running = false
	}
}

func (s *StreamSession) sendJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteJSON(v)
}

func (s *StreamSession) sendBytes(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ws.WriteMessage(websocket.BinaryMessage, data)
}

// streamEvents 按时间戳回放样本事件
//
// 每个批次是一条二进制消息: 4 字节小端事件数 + N 个 8 字节事件
// (t u32 LE, x u8, y u8, p u8, 保留 u8)。批次按墙钟节拍发送,
// 每拍推进 speed 倍的模拟时间。
func (s *StreamSession) streamEvents(sampleIndex int, startTimestamp int64, speed float64) {
	s.mu.Lock()
	s.running = true
	stopChan := s.stopChan
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	events := s.ds.GetEvents(sampleIndex)
	if events == nil {
		s.sendJSON(map[string]interface{}{"error": "样本不存在"})
		return
	}
	if len(events) == 0 {
		s.sendJSON(map[string]interface{}{"error": "样本没有事件"})
		return
	}

	entry, _ := s.ds.GetSample(sampleIndex)

	// 查找起始事件
	startIdx := 0
	if startTimestamp > 0 {
		startIdx = sort.Search(len(events), func(i int) bool {
			return int64(events[i].T) >= startTimestamp
		})
		if startIdx >= len(events) {
			startIdx = len(events) - 1
		}
	}

	// 发送 stream_start
	s.sendJSON(map[string]interface{}{
		"type":       "stream_start",
		"sample":     sampleIndex,
		"label":      entry.Label,
		"eventCount": len(events),
		"firstTs":    events[0].T,
		"lastTs":     events[len(events)-1].T,
		"speed":      speed,
	})

	tickInterval := time.Second / playbackFPS
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// 每拍推进的模拟微秒数
	stepUs := int64(float64(tickInterval.Microseconds()) * speed)
	cursor := int64(events[startIdx].T)

	sent := 0
	lastLogTime := time.Now()

	i := startIdx
	for i < len(events) {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
		}

		cursor += stepUs

		// 收集本批次事件
		batchStart := i
		for i < len(events) && int64(events[i].T) <= cursor {
			i++
		}

		if i > batchStart {
			if err := s.sendBytes(encodeEventBatch(events[batchStart:i])); err != nil {
				return
			}
			sent += i - batchStart
		}

		// 日志
		if time.Since(lastLogTime) >= time.Second {
			fmt.Printf("[Stream] 事件: %d/%d (cursor=%dus)\n", sent, len(events)-startIdx, cursor)
			lastLogTime = time.Now()
		}
	}

	s.sendJSON(map[string]interface{}{
		"type":   "stream_end",
		"sample": sampleIndex,
		"sent":   sent,
	})
	fmt.Printf("[Stream] ✓ 回放完成: sample=%d, %d 个事件\n", sampleIndex, sent)
}

// encodeEventBatch 编码一个事件批次
func encodeEventBatch(events []models.Event) []byte {
	buf := make([]byte, 4+len(events)*8)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(events)))

	for i, e := range events {
		off := 4 + i*8
		binary.LittleEndian.PutUint32(buf[off:off+4], e.T)
		buf[off+4] = e.X
		buf[off+5] = e.Y
		buf[off+6] = e.P
	}

	return buf
}

package server

import (
	"encoding/json"
	"fmt"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/websocket"
	"github.com/kataras/neffos"
)

// ProgressHub 缓存构建进度推送
//
// UI 连接 cache 命名空间, 构建过程中服务端广播 progress 事件。
type ProgressHub struct {
	ws *neffos.Server
}

// NewProgressHub 创建进度推送服务
func NewProgressHub() *ProgressHub {
	h := &ProgressHub{}

	h.ws = websocket.New(websocket.DefaultGorillaUpgrader, websocket.Namespaces{
		"cache": websocket.Events{
			websocket.OnNamespaceConnected: func(c *neffos.NSConn, msg neffos.Message) error {
				fmt.Printf("[Progress] 客户端连接: %s\n", c.Conn.ID())
				return nil
			},
			websocket.OnNamespaceDisconnect: func(c *neffos.NSConn, msg neffos.Message) error {
				fmt.Printf("[Progress] 客户端断开: %s\n", c.Conn.ID())
				return nil
			},
		},
	})

	return h
}

// Broadcast 向所有连接广播缓存状态
func (h *ProgressHub) Broadcast(status CacheStatus) {
	body, err := json.Marshal(status)
	if err != nil {
		return
	}

	h.ws.Broadcast(nil, neffos.Message{
		Namespace: "cache",
		Event:     "progress",
		Body:      body,
	})
}

// Handler 返回 iris 路由处理器
func (h *ProgressHub) Handler() iris.Handler {
	return websocket.Handler(h.ws)
}

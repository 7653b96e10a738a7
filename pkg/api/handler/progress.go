package handler

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/stevelan1995/forgebuild/pkg/core/events"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// 进度流是只读的，跨域订阅放开
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ProgressHandler WebSocket进度流处理器
// 把事件总线上的构建/测试进度实时推送给订阅的客户端
type ProgressHandler struct {
	bus *events.Bus
}

// NewProgressHandler 创建ProgressHandler
func NewProgressHandler(bus *events.Bus) *ProgressHandler {
	return &ProgressHandler{bus: bus}
}

// Stream 升级到WebSocket并转发进度事件
// GET /ws/progress
func (h *ProgressHandler) Stream(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	messages, err := h.bus.Subscribe(ctx)
	if err != nil {
		log.Printf("subscribe progress events: %v", err)
		return
	}

	// 客户端不发数据，读循环只用于感知连接关闭
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				cancel()
				return
			}
		}
	}()

	for msg := range messages {
		ev, err := events.Decode(msg)
		msg.Ack()
		if err != nil {
			log.Printf("decode progress event: %v", err)
			continue
		}
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

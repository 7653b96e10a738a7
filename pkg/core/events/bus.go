// Package events 提供构建/测试进度事件总线
//
// 基于watermill的gochannel Pub/Sub：构建驱动和测试调度器发布
// 生命周期事件，进度渲染、WebSocket推送和运行记录器各自订阅，
// 互不感知。
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

// TopicProgress 进度事件主题（对外导出）
const TopicProgress = "forgebuild.progress"

// EventType 事件类型（对外导出）
type EventType string

const (
	EventRunStarted      EventType = "RUN_STARTED"
	EventRunFinished     EventType = "RUN_FINISHED"
	EventModuleQueued    EventType = "MODULE_QUEUED"
	EventModuleSucceeded EventType = "MODULE_SUCCEEDED"
	EventModuleFailed    EventType = "MODULE_FAILED"
	EventTestResult      EventType = "TEST_RESULT"
	EventFlakyRetry      EventType = "FLAKY_RETRY"
	EventWorkerStatus    EventType = "WORKER_STATUS"
)

// Event 进度事件（对外导出）
type Event struct {
	RunID   string        `json:"run_id"`
	Type    EventType     `json:"type"`
	Subject string        `json:"subject,omitempty"` // 模块名或测试名
	Message string        `json:"message,omitempty"`
	Elapsed time.Duration `json:"elapsed,omitempty"`
	Time    time.Time     `json:"time"`
}

// Bus 事件总线（对外导出）
type Bus struct {
	pubsub *gochannel.GoChannel
	logger watermill.LoggerAdapter
}

// NewBus 创建事件总线（对外导出）
func NewBus(debug bool) *Bus {
	logger := watermill.NewStdLogger(debug, false)
	pubsub := gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:                     false,
			BlockPublishUntilSubscriberAck: false,
		},
		logger,
	)
	return &Bus{pubsub: pubsub, logger: logger}
}

// Publish 发布一个进度事件（对外导出）
func (b *Bus) Publish(ev Event) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	return b.pubsub.Publish(TopicProgress, msg)
}

// Subscribe 订阅进度事件流（对外导出）
func (b *Bus) Subscribe(ctx context.Context) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, TopicProgress)
}

// Decode 从消息解出事件（对外导出）
func Decode(msg *message.Message) (Event, error) {
	var ev Event
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		return Event{}, fmt.Errorf("unmarshal event: %w", err)
	}
	return ev, nil
}

// Close 关闭总线（对外导出）
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

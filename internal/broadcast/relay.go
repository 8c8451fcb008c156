package broadcast

import (
	"context"
	"time"

	"github.com/segmentio/encoding/json"
	"go.uber.org/zap"
	"gopherdex.com/internal/engine"
	"gopherdex.com/pkg/logger"
	"gopherdex.com/pkg/metrics"
)

// WireEvent 对外发布的 JSON 结构
type WireEvent struct {
	Name string `json:"event"`
	engine.Event
}

func Encode(ev engine.Event) ([]byte, error) {
	return json.Marshal(WireEvent{Name: engine.EventName(ev.Type), Event: ev})
}

func Decode(payload []byte) (WireEvent, error) {
	var w WireEvent
	err := json.Unmarshal(payload, &w)
	return w, err
}

// Relay 把引擎事件转发到外部 broker
type Relay struct {
	name    string
	broker  Broker
	timeout time.Duration
}

func NewRelay(name string, b Broker) *Relay {
	return &Relay{name: name, broker: b, timeout: 3 * time.Second}
}

// Run 阻塞直到 ctx 结束或 events 关闭；单条失败只记日志，不中断
func (r *Relay) Run(ctx context.Context, events <-chan engine.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Type == engine.EvCmdEnd {
				continue
			}
			r.publish(ctx, ev)
		}
	}
}

func (r *Relay) publish(ctx context.Context, ev engine.Event) {
	payload, err := Encode(ev)
	if err != nil {
		metrics.BroadcastTotal.WithLabelValues(r.name, "encode_error").Inc()
		logger.Error(ctx, "encode event failed", zap.Uint64("seq", ev.Seq), zap.Error(err))
		return
	}
	topic := Topic(ev.Market.String(), engine.EventName(ev.Type))

	pctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.broker.Publish(pctx, topic, payload); err != nil {
		metrics.BroadcastTotal.WithLabelValues(r.name, "error").Inc()
		logger.Warn(ctx, "publish event failed",
			zap.String("broker", r.name),
			zap.String("topic", topic),
			zap.Uint64("seq", ev.Seq),
			zap.Error(err))
		return
	}
	metrics.BroadcastTotal.WithLabelValues(r.name, "ok").Inc()
}

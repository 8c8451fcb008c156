package broadcast

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gopherdex.com/pkg/logger"
)

const subjectHeader = "subject"

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"` // 订阅用；空则每个订阅者一个独立 group，从最新开始读
}

// KafkaBroker 所有事件写同一个 kafka topic，key = market 保证同市场有序
// 逻辑 topic 放在 header 里，订阅端按它过滤
type KafkaBroker struct {
	cfg    KafkaConfig
	writer *kafka.Writer
}

func NewKafkaBroker(cfg KafkaConfig) (*KafkaBroker, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" {
		return nil, errors.New("kafka: brokers and topic are required")
	}
	return &KafkaBroker{
		cfg: cfg,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}, nil
}

func (b *KafkaBroker) Publish(ctx context.Context, topic string, payload []byte) error {
	return b.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(marketOf(topic)),
		Value:   payload,
		Headers: []kafka.Header{{Key: subjectHeader, Value: []byte(topic)}},
	})
}

func (b *KafkaBroker) Subscribe(ctx context.Context, topics []string) (<-chan Message, error) {
	rc := kafka.ReaderConfig{
		Brokers:  b.cfg.Brokers,
		Topic:    b.cfg.Topic,
		GroupID:  b.cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	}
	if rc.GroupID == "" {
		// 不带 group 只能读单个分区，这里给每个订阅者一个临时 group
		rc.GroupID = "gopherdex-" + uuid.New().String()
		rc.StartOffset = kafka.LastOffset
	}
	r := kafka.NewReader(rc)
	out := make(chan Message, 8192)

	go func() {
		defer close(out)
		defer r.Close()
		for {
			m, err := r.ReadMessage(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn(ctx, "kafka read failed", zap.String("topic", b.cfg.Topic), zap.Error(err))
				}
				return
			}
			subj := headerValue(m.Headers, subjectHeader)
			if !matchAny(topics, subj) {
				continue
			}
			select {
			case out <- Message{Topic: subj, Payload: m.Value}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (b *KafkaBroker) Close() error {
	return b.writer.Close()
}

func headerValue(hs []kafka.Header, key string) string {
	for _, h := range hs {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

// marketOf dex.<market>.<event> -> <market>
func marketOf(topic string) string {
	const prefix = "dex."
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return topic
	}
	rest := topic[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '.' {
			return rest[:i]
		}
	}
	return rest
}

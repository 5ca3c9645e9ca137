package kafka

import (
	"context"
	"encoding/json"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/JoeShih716/go-credit-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-credit-ledger/internal/app/core/usecase"
)

const eventTypeTransactionApplied = "TransactionApplied"

// messageWriter 抽出 kafka.Writer 用到的方法，測試時可以替換
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Publisher 將已套用的交易發布到 Kafka
// 以客戶 ID 當 key，同一客戶的事件會落在同一個 partition，保持順序
type Publisher struct {
	writer messageWriter
	log    zerolog.Logger
}

// NewPublisher 建立非同步的 Kafka Publisher
//
// 參數:
//
//	brokers: Kafka broker 位址
//	topic: 發布的 topic
//	log: 非同步寫入失敗時記錄用
func NewPublisher(brokers []string, topic string, log zerolog.Logger) *Publisher {
	log = log.With().Str("component", "kafka").Str("topic", topic).Logger()
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 10 * time.Millisecond,
		// 非同步寫入不會阻塞交易的回應
		Async: true,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Error().Err(err).Int("messages", len(messages)).Msg("publish transaction event failed")
			}
		},
	}
	return newPublisher(w, log)
}

func newPublisher(w messageWriter, log zerolog.Logger) *Publisher {
	return &Publisher{writer: w, log: log}
}

// PublishTransactionApplied 發布交易事件
func (p *Publisher) PublishTransactionApplied(ctx context.Context, event domain.TransactionApplied) error {
	msg, err := buildMessage(event)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, msg)
}

// Close 送出尚未寫入的訊息並關閉連線
func (p *Publisher) Close() error {
	return p.writer.Close()
}

func buildMessage(event domain.TransactionApplied) (kafka.Message, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return kafka.Message{}, err
	}
	return kafka.Message{
		Key:   []byte(strconv.FormatInt(event.CustomerID, 10)),
		Value: data,
		Time:  event.OccurredAt,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventTypeTransactionApplied)},
		},
	}, nil
}

var _ usecase.EventPublisher = (*Publisher)(nil)

package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// ClientID: client.id соединений сервиса с брокером.
const ClientID = "auction-ledger"

// Message: готовое к отправке сообщение.
type Message struct {
	Topic   string
	Key     string
	Value   []byte
	Headers map[string]string
}

// Delivery: позиция записанного сообщения.
type Delivery struct {
	Partition int32
	Offset    int64
}

// NewSaramaConfig настраивает idempotent producer: события одного агрегата
// не дублируются и не переставляются при ретраях sarama.
func NewSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.ClientID = ClientID
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Idempotent = true
	config.Net.MaxOpenRequests = 1
	return config
}

// Producer публикует события леджера через sarama.SyncProducer.
type Producer struct {
	producer sarama.SyncProducer
	logger   *log.Entry
	now      func() time.Time
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, logger *log.Entry) (*Producer, error) {
	if len(brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	producer, err := sarama.NewSyncProducer(brokers, NewSaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return NewProducerFromSync(producer, logger), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer (в тестах mocks.SyncProducer).
func NewProducerFromSync(producer sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Producer{
		producer: producer,
		logger:   logger.WithField("component", "kafka-producer"),
		now:      time.Now,
	}
}

// PublishEvent сериализует event в JSON и отправляет его в topic с ключом партиции key.
func (p *Producer) PublishEvent(ctx context.Context, topic, key string, event any, headers map[string]string) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", topic, err)
	}
	_, err = p.Send(ctx, Message{Topic: topic, Key: key, Value: value, Headers: headers})
	return err
}

// Send отправляет сообщение и ждёт подтверждения от всех in-sync реплик.
func (p *Producer) Send(ctx context.Context, msg Message) (Delivery, error) {
	if err := ctx.Err(); err != nil {
		return Delivery{}, err
	}

	entry := p.logger.WithFields(log.Fields{"topic": msg.Topic, "key": msg.Key})
	partition, offset, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     msg.Topic,
		Key:       sarama.StringEncoder(msg.Key),
		Value:     sarama.ByteEncoder(msg.Value),
		Headers:   recordHeaders(msg.Headers),
		Timestamp: p.now(),
	})
	if err != nil {
		entry.WithError(err).Error("kafka send failed")
		return Delivery{}, fmt.Errorf("send to %s: %w", msg.Topic, err)
	}

	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message sent")
	return Delivery{Partition: partition, Offset: offset}, nil
}

// recordHeaders раскладывает заголовки в порядке имён, чтобы запись не зависела от обхода map.
func recordHeaders(headers map[string]string) []sarama.RecordHeader {
	if len(headers) == 0 {
		return nil
	}
	names := make([]string, 0, len(headers))
	for name := range headers {
		names = append(names, name)
	}
	sort.Strings(names)

	records := make([]sarama.RecordHeader, 0, len(names))
	for _, name := range names {
		records = append(records, sarama.RecordHeader{Key: []byte(name), Value: []byte(headers[name])})
	}
	return records
}

func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}

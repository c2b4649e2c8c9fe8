package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/domain"
	"github.com/vladislavdragonenkov/auctionledger/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/auctionledger/internal/service/outbox"
)

// dialKafka подключает producer к брокерам.
var dialKafka = kafka.NewProducer

// eventSink: куда outbox worker отдаёт события леджера.
// Без KAFKA_BROKERS или при недоступном брокере события пишутся в лог, а DLQ нет.
type eventSink struct {
	producer    *kafka.Producer
	events      domain.OutboxPublisher
	deadLetters domain.OutboxPublisher
}

func openEventSink(cfg Config, logger *log.Entry) eventSink {
	fallback := eventSink{events: logPublisher{logger: logger.WithField("component", "outbox-log-publisher")}}

	brokers := kafkaBrokerList(cfg.KafkaBrokers)
	if len(brokers) == 0 {
		return fallback
	}
	producer, err := dialKafka(brokers, logger)
	if err != nil {
		logger.WithError(err).Warn("kafka is unavailable, ledger events go to the log")
		return fallback
	}

	logger.WithFields(log.Fields{
		"brokers":   brokers,
		"topic":     cfg.KafkaTopic,
		"dlq_topic": cfg.KafkaDLQTopic,
	}).Info("kafka producer initialized")
	return eventSink{
		producer:    producer,
		events:      kafka.NewOutboxPublisher(producer, cfg.KafkaTopic),
		deadLetters: kafka.NewOutboxPublisher(producer, cfg.KafkaDLQTopic),
	}
}

// workerOptions добавляет DLQ, только если он есть.
func (s eventSink) workerOptions() []outbox.Option {
	if s.deadLetters == nil {
		return nil
	}
	return []outbox.Option{outbox.WithDLQPublisher(s.deadLetters)}
}

func (s eventSink) Close(logger *log.Entry) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}

// logPublisher пишет события в лог, когда брокер не настроен.
type logPublisher struct {
	logger *log.Entry
}

func (p logPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.WithFields(log.Fields{
		"event_id":     event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
	}).Debug("событие леджера")
	return nil
}

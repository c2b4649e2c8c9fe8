// Команда dlq-reprocess переигрывает события леджера из DLQ обратно в основной topic.
// По умолчанию работает в режиме dry-run и только логирует кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/auctionledger/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/auctionledger/internal/service/outbox"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

// replayMessage: восстановленное событие, готовое к повторной публикации.
type replayMessage struct {
	key          string
	envelope     kafka.Envelope
	headers      map[string]string
	publishError string
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionConsumerSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
	Close() error
}

// eventPublisher реализуется kafka.Producer.
type eventPublisher interface {
	PublishEvent(ctx context.Context, topic, key string, event any, headers map[string]string) error
	Close() error
}

type saramaConsumerAdapter struct {
	consumer sarama.Consumer
}

func (a saramaConsumerAdapter) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	pc, err := a.consumer.ConsumePartition(topic, partition, offset)
	if err != nil {
		return nil, err
	}
	return pc, nil
}

func (a saramaConsumerAdapter) Close() error {
	if a.consumer == nil {
		return nil
	}
	return a.consumer.Close()
}

// replayDeps: подключения к Kafka, которые открывает run.
type replayDeps struct {
	offsets   offsetClient
	source    partitionConsumerSource
	publisher eventPublisher
}

func (d replayDeps) Close() {
	if d.publisher != nil {
		_ = d.publisher.Close()
	}
	if d.source != nil {
		_ = d.source.Close()
	}
	if d.offsets != nil {
		_ = d.offsets.Close()
	}
}

var openReplayDeps = func(cfg config, logger *log.Entry) (replayDeps, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.ClientID = "auction-ledger-dlq-reprocess"
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return replayDeps{}, fmt.Errorf("create kafka client: %w", err)
	}

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps := replayDeps{offsets: client, source: saramaConsumerAdapter{consumer: consumer}}

	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers, logger)
		if err != nil {
			deps.Close()
			return replayDeps{}, err
		}
		deps.publisher = producer
	}
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	cfg, err := readConfig(os.Args[1:], os.LookupEnv, os.Stderr)
	if err != nil {
		fail("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log.WithField("component", "dlq-reprocess")); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(args []string, lookup func(string) (string, bool), output io.Writer) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(output)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers as comma-separated list (fallback: KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "DLQ topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicLedgerEvents, "ledger events topic to replay into")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of DLQ messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replayed events; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the newest messages of each partition (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "stop reading a partition after this idle period")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" && lookup != nil {
		brokersRaw, _ = lookup("KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)

	var errs []error
	if len(cfg.brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required (-brokers or KAFKA_BROKERS)"))
	}
	if cfg.sourceTopic == "" {
		errs = append(errs, errors.New("source-topic is required"))
	}
	if cfg.targetTopic == "" {
		errs = append(errs, errors.New("target-topic is required"))
	}
	if cfg.sourceTopic != "" && cfg.sourceTopic == cfg.targetTopic {
		errs = append(errs, errors.New("source-topic and target-topic must differ"))
	}
	if cfg.limit <= 0 {
		errs = append(errs, errors.New("limit must be > 0"))
	}
	if cfg.idleTimeout <= 0 {
		errs = append(errs, errors.New("idle-timeout must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config, logger *log.Entry) error {
	deps, err := openReplayDeps(cfg, logger)
	if err != nil {
		return err
	}
	defer deps.Close()

	r, err := newReplayer(cfg, deps, logger)
	if err != nil {
		return err
	}
	_, err = r.Run(ctx)
	return err
}

// replayStats: счётчики прохода по DLQ.
type replayStats struct {
	scanned  int
	replayed int
	skipped  int
}

func (s *replayStats) add(other replayStats) {
	s.scanned += other.scanned
	s.replayed += other.replayed
	s.skipped += other.skipped
}

type replayer struct {
	cfg       config
	offsets   offsetClient
	source    partitionConsumerSource
	publisher eventPublisher
	logger    *log.Entry
}

func newReplayer(cfg config, deps replayDeps, logger *log.Entry) (*replayer, error) {
	if deps.offsets == nil || deps.source == nil {
		return nil, errors.New("kafka client and consumer are required")
	}
	if cfg.execute && deps.publisher == nil {
		return nil, errors.New("publisher is required in execute mode")
	}
	if logger == nil {
		logger = log.WithField("component", "dlq-reprocess")
	}
	return &replayer{
		cfg:       cfg,
		offsets:   deps.offsets,
		source:    deps.source,
		publisher: deps.publisher,
		logger:    logger,
	}, nil
}

// Run проходит партиции source-topic по возрастанию номера, пока не исчерпан limit.
func (r *replayer) Run(ctx context.Context) (replayStats, error) {
	r.logger.WithFields(log.Fields{
		"source_topic": r.cfg.sourceTopic,
		"target_topic": r.cfg.targetTopic,
		"limit":        r.cfg.limit,
		"execute":      r.cfg.execute,
		"from_newest":  r.cfg.fromNewest,
	}).Info("starting dlq replay")

	var total replayStats

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", r.cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		r.logger.WithField("topic", r.cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		budget := r.cfg.limit - total.scanned
		if budget <= 0 {
			break
		}
		stats, err := r.replayPartition(ctx, partition, budget)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}

	mode := "dry-run"
	if r.cfg.execute {
		mode = "execute"
	}
	r.logger.WithFields(log.Fields{
		"mode":     mode,
		"scanned":  total.scanned,
		"replayed": total.replayed,
		"skipped":  total.skipped,
	}).Info("dlq replay finished")

	return total, nil
}

// window возвращает диапазон офсетов [start, end) для чтения партиции.
func (r *replayer) window(partition int32, budget int) (int64, int64, error) {
	oldest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return 0, 0, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(r.cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return 0, 0, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	start := oldest
	if r.cfg.fromNewest && newest-int64(budget) > oldest {
		start = newest - int64(budget)
	}
	return start, newest, nil
}

func (r *replayer) replayPartition(ctx context.Context, partition int32, budget int) (replayStats, error) {
	var stats replayStats

	start, end, err := r.window(partition, budget)
	if err != nil {
		return stats, err
	}
	if end <= start {
		return stats, nil
	}

	pc, err := r.source.ConsumePartition(r.cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	consumerErrs := pc.Errors()

	for stats.scanned < budget {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr, ok := <-consumerErrs:
			if !ok {
				consumerErrs = nil
				continue
			}
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= end {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(r.cfg.idleTimeout)

			stats.scanned++
			replayed, err := r.handle(ctx, msg)
			if err != nil {
				return stats, err
			}
			if replayed {
				stats.replayed++
			} else {
				stats.skipped++
			}

			if msg.Offset+1 >= end {
				return stats, nil
			}
		}
	}
	return stats, nil
}

// handle публикует одно DLQ-сообщение (или логирует его в dry-run).
// Нераспознанные сообщения пропускаются без ошибки.
func (r *replayer) handle(ctx context.Context, msg *sarama.ConsumerMessage) (bool, error) {
	entry := r.logger.WithFields(log.Fields{
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})

	replay, ok, err := extractReplayMessage(msg)
	if err != nil {
		entry.WithError(err).Warn("skip malformed dlq message")
		return false, nil
	}
	if !ok {
		entry.Debug("skip foreign dlq message")
		return false, nil
	}

	entry = entry.WithFields(log.Fields{
		"outbox_id":     replay.envelope.ID,
		"event_type":    replay.envelope.EventType,
		"key":           replay.key,
		"publish_error": replay.publishError,
	})
	if !r.cfg.execute {
		entry.Info("dlq replay candidate")
		return true, nil
	}

	if err := r.publisher.PublishEvent(ctx, r.cfg.targetTopic, replay.key, replay.envelope, replay.headers); err != nil {
		return false, fmt.Errorf("publish replay of %s: %w", replay.envelope.ID, err)
	}
	entry.Info("dlq event replayed")
	return true, nil
}

// extractReplayMessage восстанавливает исходное событие леджера из DLQ-конверта.
// ok=false означает, что сообщение не похоже на DLQ-конверт леджера.
func extractReplayMessage(msg *sarama.ConsumerMessage) (replayMessage, bool, error) {
	var outer kafka.Envelope
	if err := json.Unmarshal(msg.Value, &outer); err != nil {
		return replayMessage{}, false, nil
	}
	if len(outer.Payload) == 0 || string(outer.Payload) == "null" {
		return replayMessage{}, false, nil
	}

	payload, err := outbox.DecodeDeadLetter(outer.Payload)
	if err != nil {
		return replayMessage{}, false, err
	}

	envelope := kafka.Envelope{
		ID:            firstNonEmpty(payload.OutboxID, outer.ID),
		AggregateType: firstNonEmpty(payload.AggregateType, outer.AggregateType),
		AggregateID:   firstNonEmpty(payload.AggregateID, outer.AggregateID),
		EventType:     firstNonEmpty(payload.EventType, outer.EventType),
		Payload:       payload.Payload,
		PublishedAt:   time.Now().UTC(),
	}

	return replayMessage{
		key:      firstNonEmpty(envelope.AggregateID, envelope.ID),
		envelope: envelope,
		headers: map[string]string{
			kafka.HeaderEventType:     envelope.EventType,
			kafka.HeaderAggregateType: envelope.AggregateType,
			kafka.HeaderOutboxID:      envelope.ID,
		},
		publishError: payload.PublishError,
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

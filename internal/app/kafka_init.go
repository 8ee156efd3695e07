package app

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/messaging/kafka"
)

// kafkaPublishers — producer и публикаторы outbox-событий. Все поля nil,
// если Kafka не настроен или недоступен: приложение продолжает работу,
// события копятся в outbox до появления воркера с publisher-ом.
type kafkaPublishers struct {
	producer *kafka.Producer
	outbox   domain.OutboxPublisher
	dlq      domain.OutboxPublisher
}

// initKafka создаёт producer и публикаторы. Ошибка подключения не фатальна:
// логируется предупреждение, и приложение стартует без Kafka.
func initKafka(brokers []string, logger *log.Entry) kafkaPublishers {
	if len(brokers) == 0 {
		return kafkaPublishers{}
	}

	producer, err := kafka.NewProducer(brokers)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
		return kafkaPublishers{}
	}

	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return kafkaPublishers{
		producer: producer,
		outbox:   kafka.NewOutboxPublisher(producer, kafka.TopicOrderEvents, kafka.TopicStockEvents),
		dlq:      kafka.NewOutboxPublisher(producer, kafka.TopicDeadLetterQueue, kafka.TopicDeadLetterQueue),
	}
}

// startDLQMonitor запускает consumer, который следит за DLQ и логирует
// каждое отложенное сообщение: дежурный видит проблему в логах, не заходя
// в брокер. Возвращает nil, если consumer не удалось создать.
func startDLQMonitor(ctx context.Context, brokers []string, logger *log.Entry) *kafka.Consumer {
	monitorLogger := logger.WithField("layer", "dlq-monitor")
	handler := func(_ context.Context, message *sarama.ConsumerMessage) error {
		monitorLogger.WithFields(log.Fields{
			"partition": message.Partition,
			"offset":    message.Offset,
			"key":       string(message.Key),
		}).Warn("message landed in dead letter queue")
		return nil
	}

	consumer, err := kafka.NewConsumer(brokers, "storefront-dlq-monitor", []string{kafka.TopicDeadLetterQueue}, handler)
	if err != nil {
		logger.WithError(err).Warn("failed to create dlq monitor consumer")
		return nil
	}
	if err := consumer.Start(ctx); err != nil {
		logger.WithError(err).Warn("failed to start dlq monitor consumer")
		return nil
	}
	return consumer
}

// close закрывает producer, если он был создан.
func (k kafkaPublishers) close(logger *log.Entry) {
	if k.producer == nil {
		return
	}
	if err := k.producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
	} else {
		logger.Info("kafka producer closed")
	}
}

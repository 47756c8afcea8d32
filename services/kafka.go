package services

import (
	"context"
	"os"
	"strings"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const (
	KAFKA_SVC = "kafka_svc"

	defaultAlertTopic = "security-alerts"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaService publishes security alerts for downstream consumers
// (SIEM, notification workers). It is a no-op when KAFKA_BROKERS is unset.
type KafkaService struct {
	appContext.DefaultService

	brokers []string
	topic   string
	writer  messageWriter
}

func (svc KafkaService) Id() string {
	return KAFKA_SVC
}

func (svc *KafkaService) Configure(ctx *appContext.Context) error {
	for _, b := range strings.Split(os.Getenv("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			svc.brokers = append(svc.brokers, b)
		}
	}
	svc.topic = getEnv("KAFKA_ALERT_TOPIC", defaultAlertTopic)

	return svc.DefaultService.Configure(ctx)
}

func (svc *KafkaService) Start() error {
	if len(svc.brokers) == 0 {
		log.Info().Msg("Kafka alert publishing disabled")
		return nil
	}

	svc.writer = &kafka.Writer{
		Addr:                   kafka.TCP(svc.brokers...),
		Topic:                  svc.topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           5 * time.Second,
		AllowAutoTopicCreation: true,
	}
	log.Info().Strs("brokers", svc.brokers).Str("topic", svc.topic).Msg("Kafka alert publishing enabled")
	return nil
}

func (svc *KafkaService) Shutdown() {
	if svc.writer != nil {
		if err := svc.writer.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Kafka writer")
		}
	}
}

func (svc *KafkaService) Enabled() bool {
	return svc.writer != nil
}

// PublishAlert implements security.AlertPublisher. Messages are keyed by
// identifier so alerts for one client stay ordered within a partition.
func (svc *KafkaService) PublishAlert(ctx context.Context, alert model.SecurityAlert) error {
	if svc.writer == nil {
		return nil
	}

	payload, err := shared.JSON.Marshal(alert)
	if err != nil {
		return err
	}

	return svc.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(alert.Identifier),
		Value: payload,
		Time:  alert.CreatedAt,
		Headers: []kafka.Header{
			{Key: "rule_id", Value: []byte(alert.RuleID)},
			{Key: "severity", Value: []byte(alert.Severity)},
		},
	})
}

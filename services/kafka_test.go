package services

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lac-hong-legacy/lms_api/model"
	"github.com/lac-hong-legacy/lms_api/shared"
)

type captureWriter struct {
	messages []kafka.Message
	closed   bool
}

func (w *captureWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *captureWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaService_PublishAlert(t *testing.T) {
	writer := &captureWriter{}
	svc := &KafkaService{writer: writer}
	require.True(t, svc.Enabled())

	alert := model.SecurityAlert{
		ID:         "alert-1",
		RuleID:     "payment_failures",
		RuleName:   "Repeated payment failures",
		Identifier: "user:42",
		Severity:   model.SeverityHigh,
		Message:    "Repeated payment failures triggered for user:42",
		CreatedAt:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, svc.PublishAlert(context.Background(), alert))
	require.Len(t, writer.messages, 1)

	msg := writer.messages[0]
	assert.Equal(t, "user:42", string(msg.Key))
	assert.Equal(t, alert.CreatedAt, msg.Time)
	assert.Equal(t, []kafka.Header{
		{Key: "rule_id", Value: []byte("payment_failures")},
		{Key: "severity", Value: []byte("high")},
	}, msg.Headers)

	var decoded model.SecurityAlert
	require.NoError(t, shared.JSON.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, alert.ID, decoded.ID)
	assert.Equal(t, alert.RuleID, decoded.RuleID)

	svc.Shutdown()
	assert.True(t, writer.closed)
}

func TestKafkaService_DisabledIsNoop(t *testing.T) {
	svc := &KafkaService{}
	assert.False(t, svc.Enabled())
	assert.NoError(t, svc.PublishAlert(context.Background(), model.SecurityAlert{ID: "alert-1"}))
	svc.Shutdown()
}

package kafka

import (
	"errors"
	"testing"

	"FlowRadar/internal/config"
	"FlowRadar/internal/transport"

	sarama "github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriver_Send(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"overview":{}}` {
			return errors.New("unexpected payload: " + string(val))
		}
		return nil
	})

	d := NewDriver(producer, "flowradar-reports")
	require.NoError(t, d.Send([]byte("1709294400000"), []byte(`{"overview":{}}`)))
	require.NoError(t, d.Close())
}

func TestDriver_SendFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	d := NewDriver(producer, "flowradar-reports")
	err := d.Send([]byte("k"), []byte("v"))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, d.Close())
}

func TestDriver_InitValidation(t *testing.T) {
	d := &Driver{}
	assert.Error(t, d.Init(config.PublishConfig{Kafka: config.KafkaConfig{Topic: "t"}}))
	assert.Error(t, d.Init(config.PublishConfig{Kafka: config.KafkaConfig{Brokers: []string{"127.0.0.1:9092"}}}))
	assert.Error(t, d.Init(config.PublishConfig{Kafka: config.KafkaConfig{
		Brokers: []string{"127.0.0.1:9092"}, Topic: "t", Version: "not-a-version",
	}}))
}

func TestRegistered(t *testing.T) {
	assert.Contains(t, transport.Drivers(), "kafka")
}

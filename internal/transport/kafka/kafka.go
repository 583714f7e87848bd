// Package kafka publishes reports to a Kafka topic.
package kafka

import (
	"errors"
	"fmt"

	"FlowRadar/internal/config"
	"FlowRadar/internal/transport"

	sarama "github.com/Shopify/sarama"
	log "github.com/sirupsen/logrus"
)

// Driver produces each report synchronously so that a failed delivery is
// reported to the caller.
type Driver struct {
	topic    string
	producer sarama.SyncProducer
}

func init() {
	transport.RegisterDriver("kafka", func() transport.Driver { return &Driver{} })
}

// NewDriver creates a driver over an existing producer.
func NewDriver(producer sarama.SyncProducer, topic string) *Driver {
	return &Driver{producer: producer, topic: topic}
}

// Init connects the producer to the configured brokers.
func (d *Driver) Init(cfg config.PublishConfig) error {
	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("kafka brokers are not configured")
	}
	if cfg.Kafka.Topic == "" {
		return errors.New("kafka topic is not configured")
	}
	d.topic = cfg.Kafka.Topic

	version, err := sarama.ParseKafkaVersion(cfg.Kafka.Version)
	if err != nil {
		return err
	}

	kafkaConfig := sarama.NewConfig()
	kafkaConfig.Version = version
	kafkaConfig.ClientID = "flowradar"
	kafkaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	kafkaConfig.Producer.Return.Successes = true
	kafkaConfig.Producer.Return.Errors = true

	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaConfig)
	if err != nil {
		return fmt.Errorf("failed to create kafka producer: %w", err)
	}
	log.WithFields(log.Fields{"brokers": cfg.Kafka.Brokers, "topic": d.topic}).Info("Connected to Kafka")
	d.producer = producer
	return nil
}

// Send produces one message keyed by key.
func (d *Driver) Send(key, data []byte) error {
	_, _, err := d.producer.SendMessage(&sarama.ProducerMessage{
		Topic: d.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(data),
	})
	return err
}

// Close flushes and closes the producer.
func (d *Driver) Close() error {
	if d.producer == nil {
		return nil
	}
	return d.producer.Close()
}

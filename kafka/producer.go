// Package kafka publishes recording summaries to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"github.com/pkg/errors"

	"github.com/nvr-ai/go-motion/recording"
)

// Producer sends one message per processed recording, keyed by the
// recording name so that reruns of a recording land on the same partition.
type Producer struct {
	producer sarama.SyncProducer
	topic    string
}

// NewProducer connects a synchronous producer to brokers.
func NewProducer(brokers []string, topic string) (*Producer, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.ClientID = "go-motion"

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Kafka producer")
	}
	return NewProducerFrom(producer, topic), nil
}

// NewProducerFrom wraps an existing producer.
func NewProducerFrom(producer sarama.SyncProducer, topic string) *Producer {
	return &Producer{producer: producer, topic: topic}
}

// Name implements recording.Publisher.
func (p *Producer) Name() string { return "kafka" }

// Publish sends summary as JSON.
func (p *Producer) Publish(ctx context.Context, summary *recording.Summary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg, err := p.message(summary)
	if err != nil {
		return err
	}

	if _, _, err := p.producer.SendMessage(msg); err != nil {
		return errors.Wrapf(err, "failed to send summary of %s", summary.Recording)
	}
	return nil
}

func (p *Producer) message(summary *recording.Summary) (*sarama.ProducerMessage, error) {
	payload, err := json.Marshal(summary)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode summary")
	}
	return &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(summary.Recording),
		Value: sarama.ByteEncoder(payload),
		Headers: []sarama.RecordHeader{
			{Key: []byte("run_id"), Value: []byte(summary.RunID)},
		},
	}, nil
}

// Close flushes and closes the producer.
func (p *Producer) Close() error {
	if err := p.producer.Close(); err != nil {
		return errors.Wrap(err, "failed to close Kafka producer")
	}
	return nil
}

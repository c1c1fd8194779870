package events

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/segmentio/kafka-go"

	"example.com/recommendation/internal/domain"
	"example.com/recommendation/internal/synthesis"
)

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaProducer lazily manages writers per topic.
type KafkaProducer struct {
	brokers   []string
	mu        sync.Mutex
	writers   map[string]MessageWriter
	newWriter func(topic string) MessageWriter
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	p := &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]MessageWriter),
	}
	p.newWriter = p.kafkaWriter
	return p
}

// WriteMessages writes messages to the given topic, creating a writer if necessary.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerForTopic(topic).WriteMessages(ctx, msgs...)
}

func (p *KafkaProducer) writerForTopic(topic string) MessageWriter {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}
	writer := p.newWriter(topic)
	p.writers[topic] = writer
	return writer
}

func (p *KafkaProducer) kafkaWriter(topic string) MessageWriter {
	return &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		Compression:            kafka.Snappy,
		AllowAutoTopicCreation: true,
	}
}

// Close releases all writers.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, writer := range p.writers {
		if err := writer.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.writers, topic)
	}
	return firstErr
}

// Publisher emits recommendation.generated events keyed by user id.
type Publisher struct {
	producer *KafkaProducer
	topic    string
}

// NewPublisher constructs a Publisher for topic.
func NewPublisher(producer *KafkaProducer, topic string) *Publisher {
	return &Publisher{producer: producer, topic: topic}
}

// PublishRecommendation writes a RecommendationGenerated event for rec.
func (p *Publisher) PublishRecommendation(ctx context.Context, rec domain.Recommendation, source string) error {
	body, err := json.Marshal(RecommendationGenerated{
		RecommendationID: rec.ID,
		ActivityID:       rec.ActivityID,
		UserID:           rec.UserID,
		ActivityType:     rec.ActivityType,
		Source:           source,
		Defaulted:        synthesis.Source(source).Defaulted(),
		CreatedAt:        rec.CreatedAt,
	})
	if err != nil {
		return err
	}

	return p.producer.WriteMessages(ctx, p.topic, kafka.Message{
		Key:   []byte(rec.UserID),
		Value: body,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(RecommendationGeneratedType)},
			{Key: "activity_id", Value: []byte(rec.ActivityID)},
		},
		Time: rec.CreatedAt,
	})
}

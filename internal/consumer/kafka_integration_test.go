//go:build integration

package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	kafkaContainer "github.com/testcontainers/testcontainers-go/modules/kafka"

	"example.com/recommendation/internal/completion"
	"example.com/recommendation/internal/events"
	"example.com/recommendation/internal/synthesis"
)

func TestKafkaActivityProducesRecommendation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
	defer cancel()

	kafkaC, err := kafkaContainer.RunContainer(ctx, testcontainers.WithEnv(map[string]string{
		"KAFKA_AUTO_CREATE_TOPICS_ENABLE": "true",
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = kafkaC.Terminate(context.Background()) })

	brokers, err := kafkaC.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers)
	broker := brokers[0]

	const inbound, outbound = "activity.queue", "recommendation_events"
	conn, err := kafka.Dial("tcp", broker)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.CreateTopics(
		kafka.TopicConfig{Topic: inbound, NumPartitions: 1, ReplicationFactor: 1},
		kafka.TopicConfig{Topic: outbound, NumPartitions: 1, ReplicationFactor: 1},
	))

	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		payload := "```json\n{\"analysis\":{\"overall\":\"Strong ride\"},\"safety\":[\"Wear a helmet\"]}\n```"
		text, _ := json.Marshal(payload)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"text":%s}]}}]}`, text)
	}))
	defer gemini.Close()

	client, err := completion.New(completion.Config{PrimaryEndpoint: gemini.URL, APIKey: "k"}, completion.WithLogger(testLogger()))
	require.NoError(t, err)

	producer := events.NewKafkaProducer([]string{broker})
	defer producer.Close()

	saver := &recordingSaver{}
	handler := NewRecommendationHandler(synthesis.New(client, synthesis.WithLogger(testLogger())), saver,
		WithHandlerLogger(testLogger()),
		WithPublisher(events.NewPublisher(producer, outbound)),
		WithSynthesisTimeout(30*time.Second),
	)

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		GroupID:     "recommendation-integration",
		Topic:       inbound,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer reader.Close()

	consumerCtx, stop := context.WithCancel(ctx)
	defer stop()
	go func() {
		_ = NewProcessor(reader, handler, WithLogger(testLogger())).Run(consumerCtx)
	}()

	writer := &kafka.Writer{Addr: kafka.TCP(broker), Topic: inbound, BatchTimeout: 10 * time.Millisecond}
	defer writer.Close()
	require.NoError(t, writer.WriteMessages(ctx,
		kafka.Message{Key: []byte("act-int"), Value: []byte(`{"id":"act-int","userId":"user-int","type":"CYCLING","duration":45,"caloriesBurned":600}`)},
	))

	require.Eventually(t, func() bool {
		saver.mu.Lock()
		defer saver.mu.Unlock()
		return len(saver.saved) == 1
	}, 60*time.Second, 250*time.Millisecond)

	rec := saver.saved[0]
	require.Equal(t, "act-int", rec.ActivityID)
	require.Contains(t, rec.Recommendation, "Overall Analysis :Strong ride")
	require.Equal(t, []string{"Wear a helmet"}, rec.Safety)

	eventReader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       outbound,
		Partition:   0,
		MinBytes:    1,
		MaxBytes:    10e6,
		StartOffset: kafka.FirstOffset,
	})
	defer eventReader.Close()

	msg, err := eventReader.ReadMessage(ctx)
	require.NoError(t, err)
	var event events.RecommendationGenerated
	require.NoError(t, json.Unmarshal(msg.Value, &event))
	require.Equal(t, "act-int", event.ActivityID)
	require.Equal(t, "model", event.Source)
	require.False(t, event.Defaulted)
}

package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_shop/internal/domain"
	kafkaGo "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/kafka"
)

type MockOutboxRepository struct {
	mu          sync.Mutex
	Events      []*domain.OrderEvent
	GetErr      error
	MarkErr     error
	PublishedID []string
}

func (m *MockOutboxRepository) GetUnpublishedEvents(_ context.Context, limit int64) ([]*domain.OrderEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	n := len(m.Events)
	if int64(n) > limit {
		n = int(limit)
	}
	return append([]*domain.OrderEvent(nil), m.Events[:n]...), nil
}

func (m *MockOutboxRepository) MarkEventAsPublished(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.MarkErr != nil {
		return m.MarkErr
	}
	m.PublishedID = append(m.PublishedID, id)
	remaining := make([]*domain.OrderEvent, 0, len(m.Events))
	for _, e := range m.Events {
		if e.ID != id {
			remaining = append(remaining, e)
		}
	}
	m.Events = remaining
	return nil
}

func (m *MockOutboxRepository) Published() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.PublishedID...)
}

type fakeWriter struct {
	messages []kafkaGo.Message
	failOn   int
	calls    int
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkaGo.Message) error {
	f.calls++
	if f.failOn > 0 && f.calls == f.failOn {
		return errors.New("broker unavailable")
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newEvent(id, orderID string, eventType domain.OrderEventType) *domain.OrderEvent {
	return &domain.OrderEvent{
		ID:        id,
		OrderID:   orderID,
		Type:      eventType,
		Payload:   json.RawMessage(fmt.Sprintf(`{"order_id":%q}`, orderID)),
		CreatedAt: time.Now(),
	}
}

func TestProcessUnpublishedEvents_PublishesAndMarks(t *testing.T) {
	repo := &MockOutboxRepository{Events: []*domain.OrderEvent{
		newEvent("e1", "order-1", domain.OrderEventPlaced),
		newEvent("e2", "order-1", domain.OrderEventPaid),
	}}
	writer := &fakeWriter{}
	poller := NewOutboxPoller(repo, writer, time.Second, testLogger())

	published := poller.processUnpublishedEvents(context.Background())

	assert.Equal(t, 2, published)
	assert.Equal(t, []string{"e1", "e2"}, repo.PublishedID)
	require.Len(t, writer.messages, 2)
	assert.Equal(t, "order-1", string(writer.messages[0].Key))
	assert.Equal(t, "event_type", writer.messages[0].Headers[0].Key)
	assert.Equal(t, "order.placed", string(writer.messages[0].Headers[0].Value))
	assert.Equal(t, "order.paid", string(writer.messages[1].Headers[0].Value))
	assert.JSONEq(t, `{"order_id":"order-1"}`, string(writer.messages[0].Value))
}

func TestProcessUnpublishedEvents_StopsAtFirstFailure(t *testing.T) {
	repo := &MockOutboxRepository{Events: []*domain.OrderEvent{
		newEvent("e1", "order-1", domain.OrderEventPlaced),
		newEvent("e2", "order-1", domain.OrderEventPaid),
		newEvent("e3", "order-2", domain.OrderEventPlaced),
	}}
	writer := &fakeWriter{failOn: 2}
	poller := NewOutboxPoller(repo, writer, time.Second, testLogger())

	published := poller.processUnpublishedEvents(context.Background())
	assert.Equal(t, 1, published)
	assert.Equal(t, []string{"e1"}, repo.PublishedID)

	// the next tick retries from the failed event
	published = poller.processUnpublishedEvents(context.Background())
	assert.Equal(t, 2, published)
	assert.Equal(t, []string{"e1", "e2", "e3"}, repo.PublishedID)
}

func TestProcessUnpublishedEvents_RepositoryErrors(t *testing.T) {
	writer := &fakeWriter{}
	repo := &MockOutboxRepository{GetErr: errors.New("mongo down")}
	poller := NewOutboxPoller(repo, writer, time.Second, testLogger())

	assert.Equal(t, 0, poller.processUnpublishedEvents(context.Background()))
	assert.Empty(t, writer.messages)

	repo = &MockOutboxRepository{
		Events: []*domain.OrderEvent{
			newEvent("e1", "order-1", domain.OrderEventPlaced),
			newEvent("e2", "order-1", domain.OrderEventPaid),
		},
		MarkErr: errors.New("write conflict"),
	}
	poller = NewOutboxPoller(repo, writer, time.Second, testLogger())

	// the unmarked event blocks the rest of the batch
	assert.Equal(t, 0, poller.processUnpublishedEvents(context.Background()))
	require.Len(t, writer.messages, 1)
	assert.Equal(t, "e1", string(writer.messages[0].Headers[1].Value))
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	repo := &MockOutboxRepository{Events: []*domain.OrderEvent{newEvent("e1", "order-1", domain.OrderEventPlaced)}}
	poller := NewOutboxPoller(repo, &fakeWriter{}, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		poller.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("poller did not stop")
	}
	assert.Equal(t, []string{"e1"}, repo.Published())
}

func setupKafka(t *testing.T) (string, func()) {
	ctx := context.Background()

	kafkaContainer, err := kafka.Run(ctx, "confluentinc/confluent-local:7.5.0")
	require.NoError(t, err)

	brokers, err := kafkaContainer.Brokers(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, brokers, "broker address should not be empty")

	cleanup := func() {
		if err := kafkaContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate kafka container: %v", err)
		}
	}

	return brokers[0], cleanup
}

func createTopic(t *testing.T, brokerAddr, topic string) {
	conn, err := kafkaGo.Dial("tcp", brokerAddr)
	require.NoError(t, err)
	defer conn.Close()

	controller, err := conn.Controller()
	require.NoError(t, err)

	controllerConn, err := kafkaGo.Dial("tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	require.NoError(t, err)
	defer controllerConn.Close()

	err = controllerConn.CreateTopics(kafkaGo.TopicConfig{
		Topic:             topic,
		NumPartitions:     1,
		ReplicationFactor: 1,
	})
	if err != nil {
		t.Logf("topic creation error (may already exist): %v", err)
	}
}

func TestOutboxPoller_PublishesEventsToKafka(t *testing.T) {
	brokerAddr, cleanup := setupKafka(t)
	defer cleanup()

	createTopic(t, brokerAddr, "order-events")
	time.Sleep(5 * time.Second)

	repo := &MockOutboxRepository{Events: []*domain.OrderEvent{
		newEvent("e1", "order-123", domain.OrderEventPlaced),
	}}

	writer := NewKafkaWriter("order-events", brokerAddr)
	writer.WriteTimeout = 10 * time.Second
	defer writer.Close()

	poller := NewOutboxPoller(repo, writer, time.Second, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	go poller.Run(ctx)

	reader := kafkaGo.NewReader(kafkaGo.ReaderConfig{
		Brokers:  []string{brokerAddr},
		Topic:    "order-events",
		GroupID:  "test-consumer",
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	defer reader.Close()

	msg, err := reader.ReadMessage(ctx)
	require.NoError(t, err)

	assert.Equal(t, "order-123", string(msg.Key))
	assert.JSONEq(t, `{"order_id":"order-123"}`, string(msg.Value))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "order.placed", headers["event_type"])
	assert.Equal(t, "e1", headers["event_id"])

	assert.Eventually(t, func() bool {
		return len(repo.Published()) == 1
	}, 5*time.Second, 100*time.Millisecond)
}

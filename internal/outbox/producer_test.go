package outbox

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

func TestProducerReusesWriterPerTopic(t *testing.T) {
	p := NewKafkaProducer(ProducerConfig{Brokers: []string{"localhost:9092"}})
	t.Cleanup(func() { _ = p.Close() })

	first := p.writer("customer_rewards_changes")
	require.Same(t, first, p.writer("customer_rewards_changes"))
	require.NotSame(t, first, p.writer("recent_activities_changes"))

	require.Equal(t, "customer_rewards_changes", first.Topic)
	require.Equal(t, 50*time.Millisecond, first.BatchTimeout)
	require.IsType(t, &kafka.Hash{}, first.Balancer)
	require.Equal(t, kafka.RequireAll, first.RequiredAcks)
}

func TestProducerCloseForgetsWriters(t *testing.T) {
	p := NewKafkaProducer(ProducerConfig{Brokers: []string{"localhost:9092"}, BatchTimeout: time.Second})
	_ = p.writer("t")

	require.NoError(t, p.Close())
	require.Empty(t, p.writers)
}

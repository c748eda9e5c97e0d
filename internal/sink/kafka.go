// Package sink publishes completed analyses and metrics snapshots to Kafka
// for downstream consumers and dashboards.
package sink

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/sells-group/email-analyzer/internal/model"
	"github.com/sells-group/email-analyzer/internal/monitoring"
	"github.com/sells-group/email-analyzer/internal/pipeline"
)

// Message type header values.
const (
	TypeAnalysis = "analysis"
	TypeSnapshot = "metrics_snapshot"
)

// observeTimeout bounds a publish made from the pipeline observer hook.
const observeTimeout = 5 * time.Second

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes analyses and snapshots to their topics.
type KafkaPublisher struct {
	w             MessageWriter
	analysisTopic string
	metricsTopic  string
}

// NewKafkaWriter creates a synchronous writer for brokers. Messages carry
// their own topic.
func NewKafkaWriter(brokers []string) *kafka.Writer {
	var addrs []string
	for _, b := range brokers {
		for _, s := range strings.Split(b, ",") {
			if s = strings.TrimSpace(s); s != "" {
				addrs = append(addrs, s)
			}
		}
	}
	return &kafka.Writer{
		Addr:                   kafka.TCP(addrs...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

// NewKafkaPublisher creates a publisher. An empty metricsTopic disables
// snapshot publishing.
func NewKafkaPublisher(w MessageWriter, analysisTopic, metricsTopic string) *KafkaPublisher {
	return &KafkaPublisher{w: w, analysisTopic: analysisTopic, metricsTopic: metricsTopic}
}

// PublishAnalysis writes a, keyed by message id so every analysis of one
// message lands on the same partition.
func (p *KafkaPublisher) PublishAnalysis(ctx context.Context, a *model.Analysis) error {
	if p.analysisTopic == "" {
		return nil
	}
	value, err := json.Marshal(a)
	if err != nil {
		return eris.Wrapf(err, "sink: marshal analysis %s", a.MessageID)
	}
	msg := kafka.Message{
		Topic: p.analysisTopic,
		Key:   []byte(a.MessageID),
		Value: value,
		Headers: []kafka.Header{
			{Key: "type", Value: []byte(TypeAnalysis)},
			{Key: "final_phase", Value: []byte(a.FinalPhase().String())},
			{Key: "priority", Value: []byte(a.Priority())},
		},
		Time: a.CompletedAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return eris.Wrapf(err, "sink: publish analysis %s", a.MessageID)
	}
	return nil
}

// PublishSnapshot implements monitoring.SnapshotPublisher.
func (p *KafkaPublisher) PublishSnapshot(ctx context.Context, snap *monitoring.MetricsSnapshot) error {
	if p.metricsTopic == "" {
		return nil
	}
	value, err := json.Marshal(snap)
	if err != nil {
		return eris.Wrap(err, "sink: marshal snapshot")
	}
	msg := kafka.Message{
		Topic:   p.metricsTopic,
		Key:     []byte(TypeSnapshot),
		Value:   value,
		Headers: []kafka.Header{{Key: "type", Value: []byte(TypeSnapshot)}},
		Time:    snap.CollectedAt,
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return eris.Wrap(err, "sink: publish snapshot")
	}
	return nil
}

// Observer returns a pipeline hook that publishes every completed
// analysis. Publish failures are logged; they never fail the analysis.
func (p *KafkaPublisher) Observer() pipeline.Observer {
	return func(a *model.Analysis) {
		ctx, cancel := context.WithTimeout(context.Background(), observeTimeout)
		defer cancel()
		if err := p.PublishAnalysis(ctx, a); err != nil {
			zap.L().Warn("sink: publish failed",
				zap.String("message_id", a.MessageID),
				zap.Error(err),
			)
		}
	}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return eris.Wrap(p.w.Close(), "sink: close writer")
}

var _ monitoring.SnapshotPublisher = (*KafkaPublisher)(nil)

// Package redpanda publishes service-log entries to Kafka/Redpanda as a
// best-effort, non-authoritative telemetry sink (spec §3). Unlike the
// teacher's transactional job-queue producer, nothing in this system
// consumes this topic — it exists so an external pipeline can tail the
// stream — so there is no exactly-once machinery and no consumer group:
// a dropped publish is acceptable, a dropped job is not.
package redpanda

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/clipforge/clipforge/internal/domain"
)

// TopicServiceLog is the Kafka topic service-log entries are mirrored to.
const TopicServiceLog = "clipforge.service_log"

// Publisher fire-and-forgets ServiceLogEntry rows onto TopicServiceLog.
type Publisher struct {
	client *kgo.Client
	topic  string
	log    *slog.Logger
}

// NewPublisher constructs a Publisher. A connection failure is not fatal to
// the caller's startup: Publish logs and swallows every error, matching the
// non-authoritative contract of domain.ServiceLogRepository.
func NewPublisher(brokers []string, topic string, log *slog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("op=redpanda.NewPublisher: no seed brokers provided")
	}
	if topic == "" {
		topic = TopicServiceLog
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.RequestRetries(3),
		kgo.ProducerBatchMaxBytes(1_000_000),
	)
	if err != nil {
		return nil, fmt.Errorf("op=redpanda.NewPublisher: %w", err)
	}
	return &Publisher{client: client, topic: topic, log: log}, nil
}

// Publish enqueues an async, unacknowledged produce for entry. Errors are
// logged, never returned: a Kafka outage must never fail the job whose
// outcome this entry records (spec §3).
func (p *Publisher) Publish(ctx context.Context, entry domain.ServiceLogEntry) {
	if p == nil || p.client == nil {
		return
	}
	b, err := json.Marshal(entry)
	if err != nil {
		p.log.Warn("service log marshal failed", slog.String("job_id", entry.JobID), slog.Any("error", err))
		return
	}
	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(entry.BatchID),
		Value: b,
	}
	p.client.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			p.log.Warn("service log publish failed", slog.String("job_id", entry.JobID), slog.Any("error", err))
		}
	})
}

// Close flushes any buffered records and closes the underlying client.
func (p *Publisher) Close() {
	if p == nil || p.client == nil {
		return
	}
	_ = p.client.Flush(context.Background())
	p.client.Close()
}

// MirroredServiceLog wraps a domain.ServiceLogRepository and additionally
// mirrors every appended entry to Kafka. The wrapped repository's write is
// authoritative; the Kafka mirror is best-effort on top of it, so an
// Append call's error behavior is unchanged by wrapping it.
type MirroredServiceLog struct {
	Repo domain.ServiceLogRepository
	Pub  *Publisher
}

// Append writes through to Repo, then best-effort mirrors to Kafka.
func (m MirroredServiceLog) Append(ctx domain.Context, e domain.ServiceLogEntry) error {
	if err := m.Repo.Append(ctx, e); err != nil {
		return err
	}
	m.Pub.Publish(ctx, e)
	return nil
}

var _ domain.ServiceLogRepository = MirroredServiceLog{}

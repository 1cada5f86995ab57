// Kafka audit-trail sink, generalizing plugins/reporter/kafka/kafka.go
// from "SIP/RTP capture records" to "Link-Chat delivery events": same
// kafka.Writer/WriterConfig shape, same Brokers/Topic/BatchSize/
// BatchTimeout/Compression/MaxAttempts config surface, same atomic
// reported/error counters.
package sink

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/compress"
	"github.com/sirupsen/logrus"

	"firestige.xyz/linkchat/internal/wire"
)

// KafkaConfig configures the optional Kafka audit sink.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	Compression  string // none|gzip|snappy|lz4
	MaxAttempts  int
}

// DefaultKafkaConfig mirrors the teacher reporter's defaults.
func DefaultKafkaConfig() KafkaConfig {
	return KafkaConfig{
		BatchSize:    100,
		BatchTimeout: 50 * time.Millisecond,
		Compression:  "none",
		MaxAttempts:  3,
	}
}

// KafkaSink forwards completed chat messages, blobs and errors as an
// audit trail to a Kafka topic. It is entirely optional: the core's sink
// contract is backend-agnostic, and Kafka is one pluggable backend among
// several, never required for Link-Chat to function.
type KafkaSink struct {
	writer *kafka.Writer
	log    logrus.FieldLogger

	reportedCount atomic.Int64
	errorCount    atomic.Int64
}

// NewKafkaSink opens a Kafka writer per cfg. The compression codec is
// validated eagerly; the writer itself dials lazily.
func NewKafkaSink(cfg KafkaConfig, log logrus.FieldLogger) (*KafkaSink, error) {
	writerConfig := kafka.WriterConfig{
		Brokers:      cfg.Brokers,
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		MaxAttempts:  cfg.MaxAttempts,
		Async:        false,
	}

	switch cfg.Compression {
	case "none", "":
		writerConfig.CompressionCodec = nil
	case "gzip":
		writerConfig.CompressionCodec = compress.Gzip.Codec()
	case "snappy":
		writerConfig.CompressionCodec = compress.Snappy.Codec()
	case "lz4":
		writerConfig.CompressionCodec = compress.Lz4.Codec()
	default:
		return nil, fmt.Errorf("sink: invalid kafka compression %q", cfg.Compression)
	}

	return &KafkaSink{writer: kafka.NewWriter(writerConfig), log: log}, nil
}

// Close flushes and releases the Kafka writer.
func (s *KafkaSink) Close() error {
	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("sink: close kafka writer: %w", err)
	}
	s.log.WithField("reported", s.reportedCount.Load()).
		WithField("errors", s.errorCount.Load()).
		Info("kafka sink stopped")
	return nil
}

func (s *KafkaSink) OnChat(src wire.Address, text string) {
	s.write("chat", map[string]any{"src": src.String(), "text": text})
}

func (s *KafkaSink) OnBlob(src wire.Address, data []byte) {
	s.write("blob", map[string]any{
		"src":         src.String(),
		"length":      len(data),
		"data_base64": base64.StdEncoding.EncodeToString(data),
	})
}

func (s *KafkaSink) OnError(message string) {
	s.write("error", map[string]any{"message": message})
}

func (s *KafkaSink) write(kind string, fields map[string]any) {
	fields["kind"] = kind
	fields["ts"] = time.Now().UnixMilli()

	value, err := json.Marshal(fields)
	if err != nil {
		s.errorCount.Add(1)
		s.log.WithError(err).Error("sink: marshal kafka audit record")
		return
	}

	msg := kafka.Message{Key: []byte(kind), Value: value}
	if err := s.writer.WriteMessages(context.Background(), msg); err != nil {
		s.errorCount.Add(1)
		s.log.WithError(err).Error("sink: write kafka audit record")
		return
	}
	s.reportedCount.Add(1)
}

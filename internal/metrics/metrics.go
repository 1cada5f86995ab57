// Package metrics implements the Prometheus metrics Link-Chat exposes,
// generalizing internal/metrics/metrics.go + server.go from per-task
// packet-pipeline counters to the reliable-transport core's own
// fragment/ACK/neighbor lifecycle.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FragmentsSentTotal counts fragment transmissions, including retransmissions.
	FragmentsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkchat_fragments_sent_total",
			Help: "Total fragment transmissions, by reason (initial|retransmit).",
		},
		[]string{"reason"},
	)

	// FragmentsAckedTotal counts fragments that reached ACKED.
	FragmentsAckedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkchat_fragments_acked_total",
		Help: "Total fragments acknowledged by the peer.",
	})

	// FragmentsAbandonedTotal counts fragments that exhausted MaxRetries.
	FragmentsAbandonedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkchat_fragments_abandoned_total",
		Help: "Total fragments abandoned after exceeding the retry budget.",
	})

	// FragmentsDuplicateTotal counts duplicate fragment arrivals at the receiver.
	FragmentsDuplicateTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkchat_fragments_duplicate_total",
		Help: "Total duplicate fragment deliveries observed by the receiver.",
	})

	// CRCFailuresTotal counts fragments dropped for failing CRC verification.
	CRCFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkchat_crc_failures_total",
		Help: "Total fragments dropped due to CRC mismatch.",
	})

	// BlobsDeliveredTotal counts completed blob reassemblies.
	BlobsDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkchat_blobs_delivered_total",
		Help: "Total blobs successfully reassembled and delivered.",
	})

	// ChatDeliveredTotal counts chat messages sent by this node: a
	// single-frame chat once transmitted, a multi-fragment chat once every
	// fragment was ACKed or abandoned. Received chats are not counted.
	ChatDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "linkchat_chat_delivered_total",
		Help: "Total chat messages sent by this node.",
	})

	// NeighborsKnown tracks the current size of the live neighbor set.
	NeighborsKnown = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkchat_neighbors_known",
		Help: "Current number of neighbors within the discovery TTL.",
	})

	// OutstandingFragments tracks the sender's in-flight fragment count.
	OutstandingFragments = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkchat_outstanding_fragments",
		Help: "Current number of fragments awaiting ACK.",
	})

	// ReassemblyBuffersActive tracks open (incomplete) receiver transfers.
	ReassemblyBuffersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkchat_reassembly_buffers_active",
		Help: "Current number of in-progress reassembly buffers.",
	})

	// SinkErrorsTotal counts errors surfaced to the delivery sink, by source.
	SinkErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "linkchat_sink_errors_total",
			Help: "Total errors surfaced to the delivery sink, by source.",
		},
		[]string{"source"},
	)
)

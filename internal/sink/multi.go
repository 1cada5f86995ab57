package sink

import "firestige.xyz/linkchat/internal/wire"

// MultiSink fans one set of events out to several sinks, e.g. the channel
// sink the CLI prints from plus an optional Kafka audit trail, the same
// one-Sender-to-many-Reporters composition the teacher's ReporterWrapper
// performs per task.
type MultiSink struct {
	sinks []Sink
}

// NewMultiSink composes sinks into one. Each event is delivered to every
// sink in order; a slow or misbehaving sink must not block the others for
// long, same requirement as any individual Sink.
func NewMultiSink(sinks ...Sink) *MultiSink {
	return &MultiSink{sinks: sinks}
}

func (m *MultiSink) OnChat(src wire.Address, text string) {
	for _, s := range m.sinks {
		s.OnChat(src, text)
	}
}

func (m *MultiSink) OnBlob(src wire.Address, data []byte) {
	for _, s := range m.sinks {
		s.OnBlob(src, data)
	}
}

func (m *MultiSink) OnError(message string) {
	for _, s := range m.sinks {
		s.OnError(message)
	}
}

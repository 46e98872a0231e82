package ingest

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/pandamime100hp/iracingtelemotron/log"
)

// stats holds per-classification counters for the ingestion loop (error
// taxonomy of the wire protocol plus the happy path).
type stats struct {
	l             *log.Logger
	packets       atomic.Int64 // datagrams received
	malformed     atomic.Int64 // shorter than the framing header
	skipped       atomic.Int64 // valid non-telemetry packet types
	encoding      atomic.Int64 // body not valid UTF-8
	schema        atomic.Int64 // body not matching the expected schema
	unresolved    atomic.Int64 // player car not present in participants
	indexMismatch atomic.Int64 // participant/telemetry index out of range
	samples       atomic.Int64 // samples stored
}

func newStats(l *log.Logger) *stats {
	ret := &stats{l: l}
	ret.setupMetrics()
	return ret
}

func (st *stats) setupMetrics() {
	meter := otel.GetMeterProvider().Meter("itm.ingest")
	register := func(name, desc string, value *atomic.Int64) {
		if _, err := meter.Int64ObservableCounter(
			name,
			metric.WithDescription(desc),
			metric.WithUnit("{count}"),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(value.Load())
				return nil
			})); err != nil {
			st.l.Error("failed to register metric",
				log.String("metric", name),
				log.ErrorField(err))
		}
	}
	register("itm.ingest.packets", "Datagrams received", &st.packets)
	register("itm.ingest.malformed", "Datagrams below minimum length", &st.malformed)
	register("itm.ingest.skipped", "Non-telemetry packets dropped", &st.skipped)
	register("itm.ingest.encoding_errors", "Payloads with invalid UTF-8", &st.encoding)
	register("itm.ingest.schema_errors", "Payloads with unexpected schema", &st.schema)
	register("itm.ingest.unresolved", "Packets without the player car", &st.unresolved)
	register("itm.ingest.index_mismatch", "Participant/telemetry index mismatches", &st.indexMismatch)
	register("itm.ingest.samples", "Samples stored", &st.samples)
}

func (st *stats) logPeriodically(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st.l.Info("ingestion stats",
				log.Int64("packets", st.packets.Load()),
				log.Int64("samples", st.samples.Load()),
				log.Int64("skipped", st.skipped.Load()),
				log.Int64("malformed", st.malformed.Load()),
				log.Int64("encodingErrors", st.encoding.Load()),
				log.Int64("schemaErrors", st.schema.Load()),
				log.Int64("unresolved", st.unresolved.Load()),
				log.Int64("indexMismatch", st.indexMismatch.Load()),
			)
		}
	}
}

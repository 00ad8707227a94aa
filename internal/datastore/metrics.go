package datastore

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

func (k Kind) label() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindSerialization:
		return "serialization"
	case KindNotFound:
		return "not_found"
	default:
		return "command"
	}
}

func readCounter(collection string, state CacheState) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`datastore_reads_total{collection=%q,cache=%q}`, collection, state.label()))
}

func fallbackCounter(collection string) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`datastore_cache_fallbacks_total{collection=%q}`, collection))
}

func errorCounter(kind Kind) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`datastore_errors_total{kind=%q}`, kind.label()))
}

// ReadCount returns how many reads of collection ended in state since start.
func ReadCount(collection string, state CacheState) uint64 {
	return readCounter(collection, state).Get()
}

// WriteMetrics writes the datastore counters in Prometheus text format.
func WriteMetrics(w io.Writer) {
	metrics.WritePrometheus(w, true)
}

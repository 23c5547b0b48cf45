package metrics

import dto "github.com/prometheus/client_model/go"

// Snapshot returns a copy of all metric values keyed by name.
// Safe for concurrent use and immune to external mutation.
func (r *Registry) Snapshot() map[string]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]int64, len(r.metrics))
	for key, m := range r.metrics {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			continue
		}
		switch {
		case pb.GetCounter() != nil:
			out[string(key)] = int64(pb.GetCounter().GetValue())
		case pb.GetGauge() != nil:
			out[string(key)] = int64(pb.GetGauge().GetValue())
		}
	}
	return out
}

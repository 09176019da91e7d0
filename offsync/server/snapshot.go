package server

import (
	"encoding/json"
	"os"
	"sync"

	"github.com/rob-gra/synchrophasor-timesync/internal/clog"
	"github.com/rob-gra/synchrophasor-timesync/offsync/estimator"
)

// ClientSnapshot is one client's statistics as persisted to the
// snapshot file.
type ClientSnapshot struct {
	Endpoint    string  `json:"endpoint"`
	PacketCount int     `json:"packet_count"`
	MinUs       float64 `json:"min_us"`
	MaxUs       float64 `json:"max_us"`
	AvgUs       float64 `json:"avg_us"`
	StdDevUs    float64 `json:"stddev_us"`
}

// Snapshot is the full periodic statistics dump: per-client timing
// stats, written as plain JSON rather than any binary format, matching
// the out-of-process-plotting design note.
type Snapshot struct {
	Clients []ClientSnapshot `json:"clients"`
}

// SnapshotWriter periodically clones the registry's stats and writes
// them to a file. It owns no registry state itself; Write takes a
// read-only copy under the registry's lock each call.
type SnapshotWriter struct {
	path string
	log  clog.Clog
	mu   sync.Mutex
}

// NewSnapshotWriter returns a writer targeting path. An empty path
// disables Write (it becomes a no-op), matching SnapshotPath="" in
// Config.
func NewSnapshotWriter(path string) *SnapshotWriter {
	return &SnapshotWriter{path: path, log: clog.New("[snapshot] ")}
}

// Write clones reg's current stats and writes them to the configured
// path. A write failure is logged and never propagated: statistics
// persistence is best-effort and must not affect the receive loop.
func (w *SnapshotWriter) Write(reg *estimator.Registry) {
	if w.path == "" {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	stats := reg.Snapshot()
	snap := Snapshot{Clients: make([]ClientSnapshot, 0, len(stats))}
	for endpoint, s := range stats {
		snap.Clients = append(snap.Clients, ClientSnapshot{
			Endpoint:    endpoint,
			PacketCount: s.Count,
			MinUs:       s.Min,
			MaxUs:       s.Max,
			AvgUs:       s.Avg,
			StdDevUs:    s.StdDev,
		})
	}

	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		w.log.Error("marshal snapshot: %v", err)
		return
	}
	if err := os.WriteFile(w.path, raw, 0o644); err != nil {
		w.log.Warn("write snapshot to %s: %v", w.path, err)
	}
}

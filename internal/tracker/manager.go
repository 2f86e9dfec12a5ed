package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/openltescan/ltescan/internal/capture"
	"github.com/openltescan/ltescan/internal/lte"
	"github.com/openltescan/ltescan/internal/telemetry"
)

// Lifecycle mirrors a track's confirmation state.
type Lifecycle int

const (
	Tentative Lifecycle = iota
	Confirmed
	Lost
)

// managedTrack pairs a tracking worker with its lifecycle bookkeeping.
type managedTrack struct {
	worker    *Worker
	cancel    context.CancelFunc
	state     Lifecycle
	createdAt time.Time
	lastFed   time.Time
}

// Manager owns one Worker goroutine per tracked cell, matched by
// n_id_cell, and drops cells that go silent for too long. It is the LTE
// analogue of an angle-tracking manager that matches by steering angle
// instead of cell identity.
type Manager struct {
	mu       sync.Mutex
	tracks   map[int]*managedTrack
	maxTrack int
	timeout  time.Duration
	reporter telemetry.Reporter
	params   Params
}

// NewManager builds a track manager bounded to maxTracks concurrent cells,
// dropping a cell's worker if it receives no fed buffer for timeout.
func NewManager(maxTracks int, timeout time.Duration, reporter telemetry.Reporter, p Params) *Manager {
	if maxTracks <= 0 {
		maxTracks = 1
	}
	return &Manager{
		tracks:   make(map[int]*managedTrack),
		maxTrack: maxTracks,
		timeout:  timeout,
		reporter: reporter,
		params:   p,
	}
}

// Upsert starts tracking a newly found cell (or routes a fresh capture
// buffer to its existing worker), evicting the oldest track if at capacity.
func (m *Manager) Upsert(ctx context.Context, cell lte.Cell, buf capture.Buffer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := cell.NIDCell()
	t, ok := m.tracks[id]
	if !ok {
		if len(m.tracks) >= m.maxTrack {
			m.dropOldestLocked()
		}
		workerCtx, cancel := context.WithCancel(ctx)
		w := NewWorker(cell, m.reporter, m.params)
		t = &managedTrack{worker: w, cancel: cancel, state: Tentative, createdAt: time.Now()}
		m.tracks[id] = t
		go w.Run(workerCtx)
	}
	t.state = Confirmed
	t.lastFed = time.Now()
	t.worker.Feed(buf)
}

// Expire cancels and removes any track that has not been fed within the
// manager's timeout.
func (m *Manager) Expire() {
	if m.timeout <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for id, t := range m.tracks {
		if now.Sub(t.lastFed) > m.timeout {
			t.cancel()
			delete(m.tracks, id)
		}
	}
}

// NIDCells returns the n_id_cell of every currently tracked cell.
func (m *Manager) NIDCells() []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]int, 0, len(m.tracks))
	for id := range m.tracks {
		out = append(out, id)
	}
	return out
}

func (m *Manager) dropOldestLocked() {
	var oldestID int
	var oldestAt time.Time
	first := true
	for id, t := range m.tracks {
		if first || t.createdAt.Before(oldestAt) {
			oldestID, oldestAt, first = id, t.createdAt, false
		}
	}
	if !first {
		m.tracks[oldestID].cancel()
		delete(m.tracks, oldestID)
	}
}

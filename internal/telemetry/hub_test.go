package telemetry

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newTestHub() *Hub {
	return NewHub(10)
}

func sampleFor(nIDCell int) TrackSample {
	return TrackSample{NIDCell: nIDCell, FrameStart: 1234.5, MIBOK: true, SFN: 7}
}

func TestHubReportAppendsHistory(t *testing.T) {
	hub := newTestHub()
	hub.Report(sampleFor(12))
	hub.Report(sampleFor(13))

	hist := hub.History()
	if len(hist) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(hist))
	}
	if hist[1].NIDCell != 13 {
		t.Fatalf("expected second entry n_id_cell 13, got %d", hist[1].NIDCell)
	}
}

func TestHubHistoryLimitEvicts(t *testing.T) {
	hub := NewHub(2)
	hub.Report(sampleFor(1))
	hub.Report(sampleFor(2))
	hub.Report(sampleFor(3))

	hist := hub.History()
	if len(hist) != 2 {
		t.Fatalf("expected history capped at 2, got %d", len(hist))
	}
	if hist[0].NIDCell != 2 || hist[1].NIDCell != 3 {
		t.Fatalf("expected oldest entry evicted, got %+v", hist)
	}
}

func TestHubSubscribeReceivesLiveSamples(t *testing.T) {
	hub := newTestHub()
	ch, cancel := hub.Subscribe()
	defer cancel()

	hub.Report(sampleFor(99))

	select {
	case s := <-ch:
		if s.NIDCell != 99 {
			t.Fatalf("expected n_id_cell 99, got %d", s.NIDCell)
		}
	default:
		t.Fatal("expected a sample to be delivered to the subscriber")
	}
}

func TestLatestByCellReturnsMostRecentPerCellInFirstSeenOrder(t *testing.T) {
	hub := newTestHub()
	hub.Report(sampleFor(5))
	hub.Report(sampleFor(7))
	stale := sampleFor(5)
	stale.SFN = 99
	hub.Report(stale)

	latest := hub.LatestByCell()
	if len(latest) != 2 {
		t.Fatalf("expected 2 distinct cells, got %d", len(latest))
	}
	if latest[0].NIDCell != 5 || latest[0].SFN != 99 {
		t.Fatalf("expected cell 5 updated to its latest sample, got %+v", latest[0])
	}
	if latest[1].NIDCell != 7 {
		t.Fatalf("expected cell 7 second in first-seen order, got %+v", latest[1])
	}
}

func TestHandleCells(t *testing.T) {
	hub := newTestHub()
	hub.Report(sampleFor(11))

	req := httptest.NewRequest(http.MethodGet, "/api/cells", nil)
	rr := httptest.NewRecorder()
	hub.handleCells(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var got []TrackSample
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].NIDCell != 11 {
		t.Fatalf("unexpected cells payload: %+v", got)
	}
}

func TestHandleHistory(t *testing.T) {
	hub := newTestHub()
	hub.Report(sampleFor(5))

	req := httptest.NewRequest(http.MethodGet, "/api/history", nil)
	rr := httptest.NewRecorder()
	hub.handleHistory(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var got []TrackSample
	if err := json.NewDecoder(rr.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(got) != 1 || got[0].NIDCell != 5 {
		t.Fatalf("unexpected history payload: %+v", got)
	}
}

func TestHandleGetConfig(t *testing.T) {
	hub := newTestHub()
	req := httptest.NewRequest(http.MethodGet, "/api/config", nil)
	rr := httptest.NewRecorder()
	hub.handleGetConfig(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	var cfg Config
	if err := json.NewDecoder(rr.Body).Decode(&cfg); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if cfg.HistoryLimit != 10 {
		t.Fatalf("expected history limit 10, got %d", cfg.HistoryLimit)
	}
}

func TestHandleSetConfigRejectsInvalidBufferSize(t *testing.T) {
	hub := newTestHub()
	body := `{"sampleRateHz":1920000,"bufferSize":100,"historyLimit":10}`
	req := httptest.NewRequest(http.MethodPost, "/api/config/update", strings.NewReader(body))
	rr := httptest.NewRecorder()
	hub.handleSetConfig(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400 for non-power-of-two buffer size, got %d", rr.Code)
	}
}

func TestHandleSetConfigMethodNotAllowed(t *testing.T) {
	hub := newTestHub()
	req := httptest.NewRequest(http.MethodGet, "/api/config/update", nil)
	rr := httptest.NewRecorder()
	hub.handleSetConfig(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}
}

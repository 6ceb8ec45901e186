package api

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/taskstore"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	store, err := taskstore.New(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	cfg := config.Default().DevServer
	cfg.IngestDelay = config.Duration{}
	cfg.Requests = map[string][]config.SeedRequest{
		"go-upf": {{Number: 12, Title: "fix session release"}, {Number: 13, Title: "add metrics"}},
	}
	logger, _ := test.NewNullLogger()
	s := NewServer(store, cfg, logrus.NewEntry(logger))
	t.Cleanup(s.Stop)
	return s
}

func do(t *testing.T, s *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestShortlistIngest(t *testing.T) {
	s := newTestServer(t)

	if w := do(t, s, http.MethodGet, "/api/prs", ""); strings.TrimSpace(w.Body.String()) != "null" {
		t.Errorf("empty shortlist = %s, want null", w.Body.String())
	}

	w := do(t, s, http.MethodPost, "/api/prs/add_github", `{"owner": "free5gc", "repo": "go-upf"}`)
	if w.Code != http.StatusAccepted {
		t.Fatalf("ingest status = %d, want 202", w.Code)
	}

	var prs []ShortlistResponse
	json.NewDecoder(do(t, s, http.MethodGet, "/api/prs", "").Body).Decode(&prs)
	if len(prs) != 2 || prs[0].Number != 13 {
		t.Errorf("shortlist = %+v", prs)
	}

	do(t, s, http.MethodPost, "/api/prs/clear", "")
	if w := do(t, s, http.MethodGet, "/api/prs", ""); strings.TrimSpace(w.Body.String()) != "null" {
		t.Errorf("shortlist after clear = %s, want null", w.Body.String())
	}

	if w := do(t, s, http.MethodPost, "/api/prs/add_github", `{"owner": ""}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad ingest status = %d, want 400", w.Code)
	}
}

func TestSubmitAndQueue(t *testing.T) {
	s := newTestServer(t)

	if w := do(t, s, http.MethodGet, "/api/queue/list", ""); strings.TrimSpace(w.Body.String()) != "null" {
		t.Errorf("empty queue = %s, want null", w.Body.String())
	}

	w := do(t, s, http.MethodPost, "/api/queue/run-pr", `{"params": [["amf", "12"], ["go-upf", "3"]]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("submit status = %d: %s", w.Code, w.Body.String())
	}

	var queue []QueueResponse
	json.NewDecoder(do(t, s, http.MethodGet, "/api/queue/list", "").Body).Decode(&queue)
	if len(queue) != 1 {
		t.Fatalf("queue = %+v, want one task", queue)
	}
	if queue[0].Status != "queueing" || len(queue[0].Params) != 2 || queue[0].Params[1].NF != "go-upf" {
		t.Errorf("queue[0] = %+v", queue[0])
	}

	tests := []struct {
		body string
		code int
	}{
		{`{"params": []}`, http.StatusBadRequest},
		{`{"params": [["amf"]]}`, http.StatusBadRequest},
		{`{"params": [["amf", "x"]]}`, http.StatusBadRequest},
		{`not json`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		if w := do(t, s, http.MethodPost, "/api/queue/run-pr", tt.body); w.Code != tt.code {
			t.Errorf("submit %s status = %d, want %d", tt.body, w.Code, tt.code)
		}
	}
}

func TestDeleteQueued(t *testing.T) {
	s := newTestServer(t)
	do(t, s, http.MethodPost, "/api/queue/run-pr", `{"params": [["amf", "2"]]}`)
	do(t, s, http.MethodPost, "/api/queue/run-pr", `{"params": [["smf", "4"]]}`)
	s.Simulator().Step()

	tests := []struct {
		path string
		code int
	}{
		{"/api/queue/delete/1", http.StatusConflict},
		{"/api/queue/delete/2", http.StatusOK},
		{"/api/queue/delete/2", http.StatusNotFound},
		{"/api/queue/delete/abc", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := do(t, s, http.MethodDelete, tt.path, "")
		if w.Code != tt.code {
			t.Errorf("DELETE %s = %d, want %d", tt.path, w.Code, tt.code)
		}
		if tt.code != http.StatusOK {
			var payload map[string]string
			json.NewDecoder(w.Body).Decode(&payload)
			if payload["error"] == "" {
				t.Errorf("DELETE %s: missing error message", tt.path)
			}
		}
	}
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t)
	do(t, s, http.MethodPost, "/api/queue/run-pr", `{"params": [["amf", "7"], ["smf", "8"]]}`)

	s.Simulator().Step()
	var running []RunningResponse
	json.NewDecoder(do(t, s, http.MethodGet, "/api/running", "").Body).Decode(&running)
	if len(running) != 1 || running[0].Percent != 0 {
		t.Errorf("running = %+v", running)
	}

	if err := s.Simulator().Drain(10); err != nil {
		t.Fatal(err)
	}
	if w := do(t, s, http.MethodGet, "/api/running", ""); strings.TrimSpace(w.Body.String()) != "null" {
		t.Errorf("running after drain = %s, want null", w.Body.String())
	}

	var history []HistoryResponse
	json.NewDecoder(do(t, s, http.MethodGet, "/api/history", "").Body).Decode(&history)
	if len(history) != 1 || history[0].TaskName != "task 1" || history[0].Result != "failed" {
		t.Fatalf("history = %+v", history)
	}

	var detail TaskResponse
	json.NewDecoder(do(t, s, http.MethodGet, "/api/task/1", "").Body).Decode(&detail)
	if detail.Status != "failed" || len(detail.FailedTests) != 1 || detail.FailedTests[0] != "TestAMF_PR7" {
		t.Errorf("detail = %+v", detail)
	}
	if detail.Timestamp == 0 {
		t.Error("Timestamp = 0")
	}

	w := do(t, s, http.MethodGet, "/api/download/single/1/TestAMF_PR7", "")
	if w.Code != http.StatusOK {
		t.Fatalf("download single = %d", w.Code)
	}
	if got := w.Header().Get("Content-Disposition"); !strings.Contains(got, "TestAMF_PR7.log") {
		t.Errorf("Content-Disposition = %q", got)
	}

	w = do(t, s, http.MethodGet, "/api/download/1", "")
	zr, err := zip.NewReader(bytes.NewReader(w.Body.Bytes()), int64(w.Body.Len()))
	if err != nil {
		t.Fatalf("zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "TestAMF_PR7.log" {
		t.Errorf("zip entries = %d", len(zr.File))
	}

	w = do(t, s, http.MethodGet, "/api/task/99", "")
	var payload map[string]string
	json.NewDecoder(w.Body).Decode(&payload)
	if w.Code != http.StatusNotFound || payload["error"] != "Task result for ID 99 not found" {
		t.Errorf("missing task = %d %v", w.Code, payload)
	}
}

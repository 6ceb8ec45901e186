package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hochfrequenz/nf-ci-console/internal/config"
	"github.com/hochfrequenz/nf-ci-console/internal/domain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, config.Default().Endpoints, 2*time.Second, nil)
}

func TestClient_QueueNormalizesAliases(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/queue/list" {
			t.Errorf("path = %s, want /api/queue/list", r.URL.Path)
		}
		w.Write([]byte(`[
			{"task_id": "1", "status": "Queueing", "params": [{"nf": "amf", "pr_number": 12}]},
			{"taskId": 2, "status": "running", "Params": [{"NF": "smf", "prNumber": "7"}]},
			{"TaskID": "3", "status": "queueing", "queue_params": [{"component": "upf", "PRVersion": "31"}]},
			{"id": "4", "status": "queueing", "QueueParams": {"udm": "5", "ausf": "2"}},
			{"id": "5", "status": "queueing", "task_name": "legacy task"}
		]`))
	})

	list, err := client.Queue(context.Background())
	if err != nil {
		t.Fatalf("Queue: %v", err)
	}
	if list.Null {
		t.Fatal("Null = true, want false")
	}
	if len(list.Items) != 5 {
		t.Fatalf("Items = %d, want 5", len(list.Items))
	}

	want := []struct {
		id        string
		status    domain.Status
		component string
		number    string
	}{
		{"1", domain.StatusQueueing, "amf", "12"},
		{"2", domain.StatusRunning, "smf", "7"},
		{"3", domain.StatusQueueing, "upf", "31"},
		{"4", domain.StatusQueueing, "ausf", "2"},
	}
	for i, w := range want {
		got := list.Items[i]
		if got.ID != w.id {
			t.Errorf("[%d] ID = %q, want %q", i, got.ID, w.id)
		}
		if got.Status != w.status {
			t.Errorf("[%d] Status = %q, want %q", i, got.Status, w.status)
		}
		if len(got.Params) == 0 {
			t.Errorf("[%d] Params empty", i)
			continue
		}
		if got.Params[0].Component != w.component || got.Params[0].RequestNumber != w.number {
			t.Errorf("[%d] Params[0] = %+v, want {%s %s}", i, got.Params[0], w.component, w.number)
		}
	}
	if list.Items[0].RawStatus != "Queueing" {
		t.Errorf("RawStatus = %q, want original spelling", list.Items[0].RawStatus)
	}
	if got := list.Items[4].Lines(); len(got) != 1 || got[0] != "legacy task" {
		t.Errorf("name fallback Lines = %v, want [legacy task]", got)
	}
}

func TestClient_QueueNullVersusMalformed(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantNull  bool
		wantShape bool
		wantItems int
	}{
		{"null", "null", true, false, 0},
		{"empty array", "[]", false, false, 0},
		{"object", `{"error": "boom"}`, false, true, 0},
		{"string", `"queue"`, false, true, 0},
		{"one", `[{"id": "1", "status": "queueing"}]`, false, false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			list, err := client.Queue(context.Background())
			if domain.IsDataShape(err) != tt.wantShape {
				t.Fatalf("IsDataShape(%v) = %v, want %v", err, !tt.wantShape, tt.wantShape)
			}
			if !tt.wantShape && err != nil {
				t.Fatalf("Queue: %v", err)
			}
			if list.Null != tt.wantNull {
				t.Errorf("Null = %v, want %v", list.Null, tt.wantNull)
			}
			if len(list.Items) != tt.wantItems {
				t.Errorf("Items = %d, want %d", len(list.Items), tt.wantItems)
			}
		})
	}
}

func TestClient_HistoryAcceptsPagedObject(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"records": [{"time": "10:00:00", "task_name": "verify-case-42", "result": "failed"}], "current_page": 0}`))
	})

	list, err := client.History(context.Background())
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("Items = %d, want 1", len(list.Items))
	}
	rec := list.Items[0]
	if rec.Time != "10:00:00" || rec.TaskName != "verify-case-42" || rec.Result != "failed" {
		t.Errorf("record = %+v", rec)
	}
}

func TestClient_HistoryPagedNull(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantNull  bool
		wantShape bool
	}{
		{"null records", `{"records": null, "current_page": 0}`, true, false},
		{"empty records", `{"records": []}`, false, false},
		{"records not array", `{"records": "none"}`, false, true},
		{"no records key", `{"current_page": 0}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			list, err := client.History(context.Background())
			if domain.IsDataShape(err) != tt.wantShape {
				t.Fatalf("IsDataShape(%v) = %v, want %v", err, !tt.wantShape, tt.wantShape)
			}
			if list.Null != tt.wantNull {
				t.Errorf("Null = %v, want %v", list.Null, tt.wantNull)
			}
		})
	}
}

func TestClient_ErrorPayloadMessage(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "Task result for ID 9 not found"}`))
	})

	_, err := client.Task(context.Background(), "9")
	var netErr *domain.NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("err = %v, want *domain.NetworkError", err)
	}
	if netErr.StatusCode != http.StatusNotFound {
		t.Errorf("StatusCode = %d, want 404", netErr.StatusCode)
	}
	if netErr.Message != "Task result for ID 9 not found" {
		t.Errorf("Message = %q", netErr.Message)
	}
}

func TestClient_TransportFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, config.Default().Endpoints, time.Second, nil)
	_, err := client.History(context.Background())
	if !domain.IsNetwork(err) {
		t.Errorf("err = %v, want network error", err)
	}
}

func TestClient_SubmitBatchBody(t *testing.T) {
	var got SubmitRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get(RequestIDHeader) == "" {
			t.Error("missing request ID header")
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"reply": "ok"}`))
	})

	err := client.SubmitBatch(context.Background(), [][]string{{"amf", "12"}, {"upf", "3"}})
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if len(got.Params) != 2 || got.Params[1][0] != "upf" || got.Params[1][1] != "3" {
		t.Errorf("params = %v", got.Params)
	}
}

func TestClient_IngestAndClear(t *testing.T) {
	var paths []string
	var ingest IngestRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		if r.URL.Path == "/api/prs/add_github" {
			json.NewDecoder(r.Body).Decode(&ingest)
		}
		w.Write([]byte(`{"status": "ok"}`))
	})

	ctx := context.Background()
	if err := client.ClearShortlist(ctx); err != nil {
		t.Fatal(err)
	}
	if err := client.IngestRequests(ctx, "free5gc", "go-upf"); err != nil {
		t.Fatal(err)
	}
	if len(paths) != 2 || paths[0] != "/api/prs/clear" || paths[1] != "/api/prs/add_github" {
		t.Errorf("paths = %v", paths)
	}
	if ingest.Owner != "free5gc" || ingest.Repo != "go-upf" {
		t.Errorf("ingest = %+v", ingest)
	}
}

func TestClient_Shortlist(t *testing.T) {
	tests := []struct {
		body string
		want int
	}{
		{`null`, 0},
		{`[]`, 0},
		{`[{"number": 3, "title": "a"}, {"Number": "4", "Title": "b"}, {"title": "no number"}]`, 2},
	}

	for _, tt := range tests {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(tt.body))
		})
		prs, err := client.Shortlist(context.Background())
		if err != nil {
			t.Fatalf("Shortlist(%s): %v", tt.body, err)
		}
		if len(prs) != tt.want {
			t.Errorf("Shortlist(%s) = %d entries, want %d", tt.body, len(prs), tt.want)
		}
	}
}

func TestClient_DeleteQueuedEscapesID(t *testing.T) {
	var gotPath, gotMethod string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		gotMethod = r.Method
		w.Write([]byte(`{"status": "deleted"}`))
	})

	if err := client.DeleteQueued(context.Background(), "a/b"); err != nil {
		t.Fatal(err)
	}
	if gotMethod != http.MethodDelete {
		t.Errorf("method = %s, want DELETE", gotMethod)
	}
	if gotPath != "/api/queue/delete/a%2Fb" {
		t.Errorf("path = %s, want escaped id", gotPath)
	}
	if err := client.DeleteQueued(context.Background(), ""); !domain.IsUserInput(err) {
		t.Errorf("DeleteQueued(\"\") = %v, want user input error", err)
	}
}

func TestClient_RunningDisabled(t *testing.T) {
	endpoints := config.Default().Endpoints
	endpoints.Running = ""
	client := NewClient("http://127.0.0.1:1", endpoints, time.Second, nil)
	if client.RunningEnabled() {
		t.Fatal("RunningEnabled = true with empty endpoint")
	}
	list, err := client.Running(context.Background())
	if err != nil || !list.Null {
		t.Errorf("Running() = %+v, %v, want null list without a call", list, err)
	}
}

func TestClient_Running(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"task_id": 5, "task_name": "task 5 running", "percent": 40, "remaining": "90"}]`))
	}))
	defer server.Close()

	client := NewClient(server.URL, config.Default().Endpoints, time.Second, nil)
	if !client.RunningEnabled() {
		t.Fatal("RunningEnabled = false with default endpoints")
	}

	list, err := client.Running(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list.Items) != 1 {
		t.Fatalf("Items = %d, want 1", len(list.Items))
	}
	got := list.Items[0]
	if got.ID != "5" || got.Percent != 40 || got.Remaining != 90 {
		t.Errorf("running = %+v", got)
	}
}

func TestClient_TaskDetailShapes(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		wantTests int
		wantLogs  int
		wantTS    int64
	}{
		{"array logs", `{"status": "failed", "timestamp": 1700000000, "failed_tests": ["caseA", "caseB"], "logs": ["logA", "logB"]}`, 2, 2, 1700000000},
		{"string log", `{"status": "success", "timestamp": "1700000001", "logs": "all good"}`, 0, 1, 1700000001},
		{"camel case", `{"Status": "failed", "failedTests": ["x"], "Logs": ["y"]}`, 1, 1, 0},
		{"legacy single", `{"status": "failed", "failed_test": "TestAMF", "logs": "boom"}`, 1, 1, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			})
			detail, err := client.Task(context.Background(), "1")
			if err != nil {
				t.Fatal(err)
			}
			if len(detail.FailedTests) != tt.wantTests {
				t.Errorf("FailedTests = %v, want %d", detail.FailedTests, tt.wantTests)
			}
			if len(detail.Logs) != tt.wantLogs {
				t.Errorf("Logs = %v, want %d", detail.Logs, tt.wantLogs)
			}
			if detail.Timestamp != tt.wantTS {
				t.Errorf("Timestamp = %d, want %d", detail.Timestamp, tt.wantTS)
			}
		})
	}
}

func TestClient_DownloadSingle(t *testing.T) {
	var gotPath string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.EscapedPath()
		w.Header().Set("Content-Disposition", `attachment; filename="TestAMF_Register.log"`)
		w.Write([]byte("log body"))
	})

	art, err := client.DownloadSingle(context.Background(), "42", "TestAMF/Register")
	if err != nil {
		t.Fatal(err)
	}
	defer art.Body.Close()

	if gotPath != "/api/download/single/42/TestAMF%2FRegister" {
		t.Errorf("path = %s", gotPath)
	}
	if art.Filename != "TestAMF_Register.log" {
		t.Errorf("Filename = %q", art.Filename)
	}
	body, _ := io.ReadAll(art.Body)
	if string(body) != "log body" {
		t.Errorf("body = %q", body)
	}
}

func TestFilenameFromDisposition(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{`attachment; filename="a.log"`, "a.log"},
		{`attachment; filename=task_1_logs.zip`, "task_1_logs.zip"},
		{`attachment; filename="bad name.log`, "bad name.log"},
		{`attachment`, ""},
		{``, ""},
		{`attachment; filename=`, ""},
	}

	for _, tt := range tests {
		if got := FilenameFromDisposition(tt.header); got != tt.want {
			t.Errorf("FilenameFromDisposition(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

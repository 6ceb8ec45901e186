package api

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/preview"
	"github.com/hochfrequenz/nf-ci-console/internal/taskstore"
)

// ParamResponse is one {component, request} pair
type ParamResponse struct {
	NF       string `json:"nf"`
	PRNumber string `json:"pr_number"`
}

// QueueResponse is a queue entry
type QueueResponse struct {
	TaskID   int64           `json:"task_id"`
	TaskName string          `json:"task_name"`
	Status   string          `json:"status"`
	Params   []ParamResponse `json:"params"`
}

// RunningResponse is a progress entry
type RunningResponse struct {
	TaskID    int64  `json:"task_id"`
	TaskName  string `json:"task_name"`
	Percent   int    `json:"percent"`
	Remaining int    `json:"remaining"`
}

// HistoryResponse is a history record
type HistoryResponse struct {
	Time     string          `json:"time"`
	TaskName string          `json:"task_name"`
	Result   string          `json:"result"`
	Params   []ParamResponse `json:"params,omitempty"`
}

// TaskResponse is the full detail of a finished task
type TaskResponse struct {
	Status      string   `json:"status"`
	Timestamp   int64    `json:"timestamp"`
	FailedTests []string `json:"failed_tests"`
	Logs        []string `json:"logs"`
}

// ShortlistResponse is a cached review request
type ShortlistResponse struct {
	Number int    `json:"number"`
	Title  string `json:"title"`
}

type ingestRequest struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

type submitRequest struct {
	Params [][]string `json:"params"`
}

func paramsToResponse(params []domain.TaskParam) []ParamResponse {
	out := make([]ParamResponse, len(params))
	for i, p := range params {
		out[i] = ParamResponse{NF: p.Component, PRNumber: p.RequestNumber}
	}
	return out
}

func (s *Server) clearShortlistHandler(c *gin.Context) {
	if err := s.store.ClearShortlist(); err != nil {
		s.internalError(c, "clear shortlist", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cleared"})
}

func (s *Server) ingestHandler(c *gin.Context) {
	var req ingestRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Owner == "" || req.Repo == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner and repo are required"})
		return
	}

	s.mu.Lock()
	s.ingestSeq++
	seq := s.ingestSeq
	s.mu.Unlock()

	prs := s.seedRequests(req.Repo)
	load := func() {
		s.mu.Lock()
		latest := s.ingestSeq == seq
		s.mu.Unlock()
		if !latest {
			return
		}
		if err := s.store.AddShortlist(prs); err != nil {
			s.log.WithError(err).WithField("repo", req.Repo).Error("ingest review requests")
			return
		}
		s.log.WithField("repo", req.Owner+"/"+req.Repo).Infof("ingested %d review requests", len(prs))
	}

	if delay := s.cfg.IngestDelay.Duration; delay > 0 {
		s.mu.Lock()
		s.timers = append(s.timers, time.AfterFunc(delay, load))
		s.mu.Unlock()
	} else {
		load()
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "fetching"})
}

func (s *Server) seedRequests(repo string) []domain.ReviewRequest {
	if seeds, ok := s.cfg.Requests[repo]; ok {
		prs := make([]domain.ReviewRequest, len(seeds))
		for i, r := range seeds {
			prs[i] = domain.ReviewRequest{Number: r.Number, Title: r.Title}
		}
		return prs
	}
	prs := make([]domain.ReviewRequest, 7)
	for i := range prs {
		n := 100 + i
		prs[i] = domain.ReviewRequest{Number: n, Title: fmt.Sprintf("%s: sample change %d", repo, n)}
	}
	return prs
}

func (s *Server) shortlistHandler(c *gin.Context) {
	prs, err := s.store.Shortlist()
	if err != nil {
		s.internalError(c, "read shortlist", err)
		return
	}
	var out []ShortlistResponse
	for _, pr := range prs {
		out = append(out, ShortlistResponse{Number: pr.Number, Title: pr.Title})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) submitHandler(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Params) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "params must be a non-empty list of [component, number] pairs"})
		return
	}

	params := make([]domain.TaskParam, 0, len(req.Params))
	for i, pair := range req.Params {
		if len(pair) != 2 || pair[0] == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("params[%d] must be [component, number]", i)})
			return
		}
		if n, err := strconv.Atoi(pair[1]); err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("params[%d]: invalid request number %q", i, pair[1])})
			return
		}
		params = append(params, domain.TaskParam{Component: pair[0], RequestNumber: pair[1]})
	}

	id, err := s.store.Enqueue(params)
	if err != nil {
		s.internalError(c, "enqueue", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": fmt.Sprintf("task %d queued", id), "task_id": id})
}

func (s *Server) queueHandler(c *gin.Context) {
	tasks, err := s.store.Queue()
	if err != nil {
		s.internalError(c, "read queue", err)
		return
	}
	var out []QueueResponse
	for _, t := range tasks {
		out = append(out, QueueResponse{
			TaskID:   t.ID,
			TaskName: t.Name(),
			Status:   string(t.Status),
			Params:   paramsToResponse(t.Params),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) deleteHandler(c *gin.Context) {
	id, ok := taskID(c)
	if !ok {
		return
	}
	err := s.store.DeleteQueued(id)
	switch {
	case errors.Is(err, taskstore.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Task ID %d not found in queue", id)})
	case errors.Is(err, taskstore.ErrNotQueueing):
		c.JSON(http.StatusConflict, gin.H{"error": fmt.Sprintf("Task ID %d is already running", id)})
	case err != nil:
		s.internalError(c, "delete task", err)
	default:
		c.JSON(http.StatusOK, gin.H{"status": "deleted"})
	}
}

func (s *Server) runningHandler(c *gin.Context) {
	t, err := s.store.Running()
	if err != nil {
		s.internalError(c, "read running task", err)
		return
	}
	if t == nil {
		c.JSON(http.StatusOK, nil)
		return
	}
	c.JSON(http.StatusOK, []RunningResponse{{
		TaskID:    t.ID,
		TaskName:  t.Name(),
		Percent:   t.Progress,
		Remaining: s.sim.Remaining(t.Progress),
	}})
}

func (s *Server) historyHandler(c *gin.Context) {
	results, err := s.store.History(100)
	if err != nil {
		s.internalError(c, "read history", err)
		return
	}
	var out []HistoryResponse
	for _, r := range results {
		out = append(out, HistoryResponse{
			Time:     r.FinishedAt.Format("2006-01-02 15:04:05"),
			TaskName: r.TaskName,
			Result:   string(r.Status),
			Params:   paramsToResponse(r.Params),
		})
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) taskHandler(c *gin.Context) {
	r, ok := s.result(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, TaskResponse{
		Status:      string(r.Status),
		Timestamp:   r.FinishedAt.Unix(),
		FailedTests: r.FailedTests,
		Logs:        r.Logs,
	})
}

func (s *Server) downloadAllHandler(c *gin.Context) {
	r, ok := s.result(c)
	if !ok {
		return
	}

	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for i, content := range r.Logs {
		name := fmt.Sprintf("log_%d.txt", i+1)
		if i < len(r.FailedTests) && r.FailedTests[i] != "" {
			name = preview.SanitizeName(r.FailedTests[i]) + ".log"
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		if err != nil {
			s.internalError(c, "create zip entry", err)
			return
		}
		if _, err := w.Write([]byte(content)); err != nil {
			s.internalError(c, "write zip entry", err)
			return
		}
	}
	if err := zw.Close(); err != nil {
		s.internalError(c, "close zip", err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"task_%d_logs.zip\"", r.TaskID))
	c.Data(http.StatusOK, "application/zip", buf.Bytes())
}

func (s *Server) downloadSingleHandler(c *gin.Context) {
	r, ok := s.result(c)
	if !ok {
		return
	}
	test := c.Param("failedTest")

	index := -1
	for i, name := range r.FailedTests {
		if name == test {
			index = i
			break
		}
	}
	if index < 0 || index >= len(r.Logs) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Log for test %q not found", test)})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s.log\"", preview.SanitizeName(test)))
	c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(r.Logs[index]))
}

func (s *Server) result(c *gin.Context) (*taskstore.Result, bool) {
	id, ok := taskID(c)
	if !ok {
		return nil, false
	}
	r, err := s.store.GetResult(id)
	if errors.Is(err, taskstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("Task result for ID %d not found", id)})
		return nil, false
	}
	if err != nil {
		s.internalError(c, "read result", err)
		return nil, false
	}
	return r, true
}

func taskID(c *gin.Context) (int64, bool) {
	raw := c.Param("taskID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid task ID"})
		return 0, false
	}
	return id, true
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.log.WithError(err).Error(op)
	c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("%s failed", op)})
}

package gateway

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
)

// IngestRequest is the body of the ingest call
type IngestRequest struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

// SubmitRequest is the body of the batch submission: ordered
// [component, requestNumber] pairs
type SubmitRequest struct {
	Params [][]string `json:"params"`
}

// ClearShortlist clears the backend's cached review-request list
func (c *Client) ClearShortlist(ctx context.Context) error {
	_, err := c.Call(ctx, http.MethodPost, c.endpoints.ClearShortlist, nil)
	return err
}

// IngestRequests asks the backend to fetch review requests of owner/repo
func (c *Client) IngestRequests(ctx context.Context, owner, repo string) error {
	_, err := c.Call(ctx, http.MethodPost, c.endpoints.IngestRequests, IngestRequest{Owner: owner, Repo: repo})
	return err
}

// Shortlist returns the cached review requests. A null or empty body is a
// valid "none yet" answer and yields an empty slice.
func (c *Client) Shortlist(ctx context.Context) ([]domain.ReviewRequest, error) {
	path := c.endpoints.Shortlist
	data, err := c.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return decodeShortlist("GET "+path, data)
}

// SubmitBatch enqueues one batch of [component, requestNumber] pairs
func (c *Client) SubmitBatch(ctx context.Context, params [][]string) error {
	_, err := c.Call(ctx, http.MethodPost, c.endpoints.SubmitBatch, SubmitRequest{Params: params})
	return err
}

// Queue returns the backend queue
func (c *Client) Queue(ctx context.Context) (List[domain.RemoteTask], error) {
	path := c.endpoints.Queue
	data, err := c.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return List[domain.RemoteTask]{}, err
	}
	return decodeQueue("GET "+path, data)
}

// DeleteQueued removes a queued task
func (c *Client) DeleteQueued(ctx context.Context, id string) error {
	if id == "" {
		return &domain.UserInputError{Prompt: "task has no identifier"}
	}
	_, err := c.Call(ctx, http.MethodDelete, expand(c.endpoints.DeleteQueued, id, ""), nil)
	return err
}

// RunningEnabled reports whether a running collection endpoint is configured
func (c *Client) RunningEnabled() bool {
	return c.endpoints.Running != ""
}

// Running returns the running-task progress collection
func (c *Client) Running(ctx context.Context) (List[domain.RunningTask], error) {
	path := c.endpoints.Running
	if path == "" {
		return List[domain.RunningTask]{Null: true}, nil
	}
	data, err := c.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return List[domain.RunningTask]{}, err
	}
	return decodeRunning("GET "+path, data)
}

// History returns the result history
func (c *Client) History(ctx context.Context) (List[domain.HistoryRecord], error) {
	path := c.endpoints.History
	data, err := c.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return List[domain.HistoryRecord]{}, err
	}
	return decodeHistory("GET "+path, data)
}

// Task returns the full detail of one task. A non-success status carries the
// payload's error message in the returned *domain.NetworkError.
func (c *Client) Task(ctx context.Context, id string) (domain.TaskDetail, error) {
	path := expand(c.endpoints.Task, id, "")
	data, err := c.Call(ctx, http.MethodGet, path, nil)
	if err != nil {
		return domain.TaskDetail{}, err
	}
	return decodeTaskDetail("GET "+path, data)
}

// Artifact is a streamed binary download. The caller closes Body.
type Artifact struct {
	Body     io.ReadCloser
	Filename string // from Content-Disposition; empty when absent or unparsable
	Size     int64  // -1 when unknown
}

// Download streams all logs of a task
func (c *Client) Download(ctx context.Context, id string) (*Artifact, error) {
	return c.stream(ctx, expand(c.endpoints.Download, id, ""))
}

// DownloadSingle streams the log of one failed test
func (c *Client) DownloadSingle(ctx context.Context, id, testName string) (*Artifact, error) {
	if testName == "" {
		return nil, &domain.UserInputError{Prompt: "no failed test selected"}
	}
	return c.stream(ctx, expand(c.endpoints.DownloadSingle, id, testName))
}

func (c *Client) stream(ctx context.Context, path string) (*Artifact, error) {
	op := "GET " + path
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		return nil, &domain.NetworkError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return &Artifact{
		Body:     resp.Body,
		Filename: FilenameFromDisposition(resp.Header.Get("Content-Disposition")),
		Size:     resp.ContentLength,
	}, nil
}

// FilenameFromDisposition extracts the filename parameter of a
// Content-Disposition header. Malformed headers fall back to a lenient scan;
// anything unusable yields "".
func FilenameFromDisposition(header string) string {
	if header == "" {
		return ""
	}
	if _, params, err := mime.ParseMediaType(header); err == nil {
		if name := params["filename"]; name != "" {
			return name
		}
	}
	for _, part := range strings.Split(header, ";") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "filename") {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		if value != "" {
			return value
		}
	}
	return ""
}

// String implements fmt.Stringer for log lines
func (a *Artifact) String() string {
	return fmt.Sprintf("artifact(%q, %d bytes)", a.Filename, a.Size)
}

package submit

import (
	"context"
	"errors"
	"testing"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/staging"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

type mockGateway struct {
	calls  int
	params [][]string
	err    error
}

func (m *mockGateway) SubmitBatch(ctx context.Context, params [][]string) error {
	m.calls++
	m.params = params
	return m.err
}

func newFlow(gw *mockGateway) (*Flow, *staging.List, *test.Hook) {
	logger, hook := test.NewNullLogger()
	list := staging.New()
	return New(gw, list, logrus.NewEntry(logger)), list, hook
}

func TestFlow_EmptyListMakesNoCall(t *testing.T) {
	gw := &mockGateway{}
	f, _, _ := newFlow(gw)

	refresh, err := f.Submit(context.Background())
	if !domain.IsUserInput(err) {
		t.Errorf("Submit() error = %v, want user input error", err)
	}
	if refresh {
		t.Error("refresh = true, want false")
	}
	if gw.calls != 0 {
		t.Errorf("calls = %d, want 0", gw.calls)
	}
	if f.Busy() || f.Message() != "" {
		t.Errorf("state changed: busy=%v message=%q", f.Busy(), f.Message())
	}
}

func TestFlow_SuccessClearsList(t *testing.T) {
	gw := &mockGateway{}
	f, list, _ := newFlow(gw)
	list.Add("amf", 12, "a")
	list.Add("go-upf", 3, "b")

	refresh, err := f.Submit(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !refresh {
		t.Error("refresh = false, want true")
	}
	if list.Len() != 0 {
		t.Errorf("Len = %d, want 0", list.Len())
	}
	want := [][]string{{"amf", "12"}, {"go-upf", "3"}}
	if len(gw.params) != 2 || gw.params[0][0] != want[0][0] || gw.params[0][1] != want[0][1] || gw.params[1][1] != want[1][1] {
		t.Errorf("params = %v, want %v", gw.params, want)
	}
	if f.Message() != "sent 2 request(s)" {
		t.Errorf("Message = %q", f.Message())
	}
	if f.Busy() {
		t.Error("Busy after finish")
	}
}

func TestFlow_FailureKeepsList(t *testing.T) {
	gw := &mockGateway{err: &domain.NetworkError{Op: "POST /api/queue/run-pr", Message: "queue full"}}
	f, list, hook := newFlow(gw)
	list.Add("amf", 12, "a")

	refresh, err := f.Submit(context.Background())
	if err == nil || refresh {
		t.Fatalf("Submit() = %v, %v, want error and no refresh", refresh, err)
	}
	if list.Len() != 1 {
		t.Errorf("Len = %d, want 1", list.Len())
	}
	if f.Busy() {
		t.Error("Busy after failure")
	}
	if got := f.Message(); got != "error: "+err.Error() {
		t.Errorf("Message = %q", got)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != logrus.ErrorLevel {
		t.Error("failure not logged")
	}
}

func TestFlow_ReentrancyGuard(t *testing.T) {
	gw := &mockGateway{}
	f, list, _ := newFlow(gw)
	list.Add("amf", 1, "")

	b, err := f.Begin()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.Begin(); !domain.IsUserInput(err) {
		t.Errorf("second Begin() = %v, want busy prompt", err)
	}
	if f.Message() != SendingText {
		t.Errorf("Message = %q, want %q", f.Message(), SendingText)
	}
	f.Finish(b, errors.New("boom"))
	if _, err := f.Begin(); err != nil {
		t.Errorf("Begin() after Finish = %v", err)
	}
}

func TestFlow_KeepsEntriesAddedDuringSubmission(t *testing.T) {
	gw := &mockGateway{}
	f, list, _ := newFlow(gw)
	list.Add("amf", 1, "")

	b, _ := f.Begin()
	late, _ := list.Add("smf", 2, "")
	f.Finish(b, f.Send(context.Background(), b))

	got := list.List()
	if len(got) != 1 || got[0].LocalID != late.LocalID {
		t.Errorf("List = %+v, want only the late entry", got)
	}
}

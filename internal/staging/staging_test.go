package staging

import (
	"math/rand"
	"testing"

	"github.com/hochfrequenz/nf-ci-console/internal/domain"
	"github.com/hochfrequenz/nf-ci-console/internal/requests"
)

func TestList_AddValidation(t *testing.T) {
	tests := []struct {
		name      string
		component string
		number    int
		wantErr   bool
	}{
		{"valid", "amf", 12, false},
		{"missing component", "", 12, true},
		{"missing number", "amf", 0, true},
		{"negative number", "amf", -3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			_, err := l.Add(tt.component, tt.number, "title")
			if (err != nil) != tt.wantErr {
				t.Fatalf("Add() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !domain.IsUserInput(err) {
				t.Errorf("Add() error = %T, want *domain.UserInputError", err)
			}
			if tt.wantErr && l.Len() != 0 {
				t.Errorf("Len = %d after rejected add, want 0", l.Len())
			}
		})
	}
}

func TestList_AddSelectionRejectsSentinels(t *testing.T) {
	tests := []struct {
		name string
		opt  requests.Option
		ok   bool
	}{
		{"request", requests.Option{Kind: requests.KindRequest, Request: domain.ReviewRequest{Number: 4, Title: "fix"}}, true},
		{"loading", requests.Option{Kind: requests.KindLoading}, false},
		{"none", requests.Option{Kind: requests.KindNone}, false},
		{"prompt", requests.Option{Kind: requests.KindPrompt}, false},
		{"placeholder", requests.Option{Kind: requests.KindPlaceholder}, false},
		{"load more", requests.Option{Kind: requests.KindLoadMore}, false},
		{"failed", requests.Option{Kind: requests.KindFailed}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New()
			task, err := l.AddSelection("amf", tt.opt)
			if tt.ok {
				if err != nil {
					t.Fatalf("AddSelection: %v", err)
				}
				if task.RequestNumber != 4 || task.RequestTitle != "fix" {
					t.Errorf("task = %+v", task)
				}
				return
			}
			if !domain.IsUserInput(err) {
				t.Errorf("AddSelection() error = %v, want user input error", err)
			}
			if l.Len() != 0 {
				t.Errorf("Len = %d, want 0", l.Len())
			}
		})
	}
}

func TestList_InsertionOrderAndRows(t *testing.T) {
	l := New()
	l.Add("amf", 1, "one")
	l.Add("smf", 2, "two")
	l.Add("upf", 3, "three")

	rows := l.Rows()
	want := []Row{
		{LocalID: 1, Component: "amf", Request: "#1: one"},
		{LocalID: 2, Component: "smf", Request: "#2: two"},
		{LocalID: 3, Component: "upf", Request: "#3: three"},
	}
	if len(rows) != len(want) {
		t.Fatalf("len(Rows) = %d, want %d", len(rows), len(want))
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("Rows[%d] = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestList_IDsNeverReused(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	l := New()
	seen := map[uint64]bool{}

	for i := 0; i < 500; i++ {
		if l.Len() > 0 && rng.Intn(3) == 0 {
			tasks := l.List()
			if !l.Remove(tasks[rng.Intn(len(tasks))].LocalID) {
				t.Fatal("Remove of a listed ID returned false")
			}
		} else {
			task, err := l.Add("amf", 1+rng.Intn(50), "t")
			if err != nil {
				t.Fatal(err)
			}
			if seen[task.LocalID] {
				t.Fatalf("LocalID %d reused", task.LocalID)
			}
			seen[task.LocalID] = true
		}
		if len(l.Rows()) != l.Len() {
			t.Fatalf("len(Rows) = %d, Len = %d", len(l.Rows()), l.Len())
		}
	}
}

func TestList_RemoveAll(t *testing.T) {
	l := New()
	a, _ := l.Add("amf", 1, "")
	b, _ := l.Add("smf", 2, "")
	c, _ := l.Add("upf", 3, "")

	if n := l.RemoveAll([]uint64{a.LocalID, c.LocalID, 99}); n != 2 {
		t.Errorf("RemoveAll = %d, want 2", n)
	}
	got := l.List()
	if len(got) != 1 || got[0].LocalID != b.LocalID {
		t.Errorf("List = %+v, want only %d", got, b.LocalID)
	}
	if l.Remove(a.LocalID) {
		t.Error("Remove of removed ID returned true")
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"12", 12, false},
		{"0", 0, true},
		{"-1", 0, true},
		{"abc", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseNumber(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseNumber(%q) = %d, %v, want %d, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}

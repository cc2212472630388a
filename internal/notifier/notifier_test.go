package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/good-yellow-bee/blazereport/internal/apperr"
	"github.com/good-yellow-bee/blazereport/internal/batch"
)

type recordingNotifier struct {
	name string
	err  error

	mu     sync.Mutex
	sent   []*Summary
	ctxErr error
}

func (n *recordingNotifier) Name() string { return n.name }

func (n *recordingNotifier) Send(ctx context.Context, s *Summary) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, s)
	n.ctxErr = ctx.Err()
	return n.err
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type stubRunner struct {
	res *batch.Result
	err error
}

func (r *stubRunner) Run(ctx context.Context, req batch.Request) (*batch.Result, error) {
	return r.res, r.err
}

func testResult() *batch.Result {
	start := time.Date(2026, 3, 9, 12, 0, 0, 0, time.UTC)
	return &batch.Result{
		ID:        "batch-1",
		StartTime: start,
		EndTime:   start.Add(90 * time.Second),
		Duration:  90 * time.Second,
		Requested: 3,
		Documents: []*batch.Document{
			{TenantID: "a", FileName: "A.pdf", Size: 1000},
			{TenantID: "b", FileName: "B.pdf", Size: 500},
		},
		Failures: []apperr.Failure{{TenantID: "c", Message: "upstream down"}},
	}
}

func TestFromResult(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*batch.Result)
		want   Status
	}{
		{"partial", func(*batch.Result) {}, StatusPartial},
		{"succeeded", func(r *batch.Result) { r.Failures = nil }, StatusSucceeded},
		{"canceled", func(r *batch.Result) { r.Canceled = true }, StatusCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := testResult()
			tt.mutate(res)
			s := FromResult("Wirespeed", res)
			if s.Status != tt.want {
				t.Errorf("Status = %q, want %q", s.Status, tt.want)
			}
			if s.Documents != 2 || s.Requested != 3 {
				t.Errorf("Documents/Requested = %d/%d, want 2/3", s.Documents, s.Requested)
			}
			if s.TotalBytes != 1500 {
				t.Errorf("TotalBytes = %d, want 1500", s.TotalBytes)
			}
			if s.BatchID != "batch-1" {
				t.Errorf("BatchID = %q", s.BatchID)
			}
		})
	}
}

func TestFromError(t *testing.T) {
	at := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	s := FromError("Wirespeed", 4, apperr.Aggregate([]apperr.Failure{{TenantID: "a", Message: "x"}}), at)
	if s.Status != StatusFailed {
		t.Errorf("Status = %q, want failed", s.Status)
	}
	if s.Error != "Batch generation failed for all selected clients." {
		t.Errorf("Error = %q", s.Error)
	}
	if !s.FinishedAt.Equal(at) {
		t.Errorf("FinishedAt = %v", s.FinishedAt)
	}
}

func TestHeadline(t *testing.T) {
	tests := []struct {
		summary Summary
		want    string
	}{
		{Summary{Platform: "Acme", Status: StatusSucceeded, Documents: 3, Requested: 3}, "Acme bulk reports ready: 3 of 3"},
		{Summary{Platform: "Acme", Status: StatusPartial, Documents: 2, Requested: 3}, "Acme bulk reports partially ready: 2 of 3"},
		{Summary{Platform: "Acme", Status: StatusCanceled, Documents: 1, Requested: 3}, "Acme bulk run canceled after 1 of 3"},
		{Summary{Platform: "Acme", Status: StatusFailed, Requested: 1}, "Acme bulk run failed for 1 tenant"},
		{Summary{Platform: "Acme", Status: StatusFailed, Requested: 2}, "Acme bulk run failed for 2 tenants"},
	}

	for _, tt := range tests {
		if got := tt.summary.Headline(); got != tt.want {
			t.Errorf("Headline() = %q, want %q", got, tt.want)
		}
	}
}

func TestDispatcher(t *testing.T) {
	ok := &recordingNotifier{name: "slack"}
	bad := &recordingNotifier{name: "teams", err: errors.New("status 500")}

	d := NewDispatcher(nil)
	d.Register(ok)
	d.Register(bad)
	if d.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", d.Len())
	}

	err := d.Dispatch(context.Background(), &Summary{BatchID: "b"})
	if err == nil || !strings.Contains(err.Error(), "teams: status 500") {
		t.Errorf("Dispatch() error = %v, want teams failure", err)
	}
	if ok.count() != 1 || bad.count() != 1 {
		t.Errorf("sent = %d/%d, want 1/1", ok.count(), bad.count())
	}

	d.Register(&recordingNotifier{name: "slack"})
	if d.Len() != 2 {
		t.Errorf("Len() after re-register = %d, want 2", d.Len())
	}
}

func TestRunner(t *testing.T) {
	tests := []struct {
		name      string
		runner    *stubRunner
		wantSent  int
		wantState Status
	}{
		{"partial result", &stubRunner{res: testResult()}, 1, StatusPartial},
		{"aggregate failure", &stubRunner{err: apperr.Aggregate(nil)}, 1, StatusFailed},
		{"critical failure", &stubRunner{err: apperr.Critical(errors.New("no renderer"))}, 1, StatusFailed},
		{"validation failure", &stubRunner{err: apperr.Configuration("At least one tenant must be selected.")}, 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := &recordingNotifier{name: "slack"}
			d := NewDispatcher(nil)
			d.Register(n)

			r := NewRunner(tt.runner, d, "Wirespeed", time.Second, nil)
			res, err := r.Run(context.Background(), batch.Request{TenantIDs: []string{"a", "b"}})
			if res != tt.runner.res || !errors.Is(err, tt.runner.err) {
				t.Errorf("Run() = %v, %v; want passthrough", res, err)
			}
			if n.count() != tt.wantSent {
				t.Fatalf("sent %d notifications, want %d", n.count(), tt.wantSent)
			}
			if tt.wantSent > 0 && n.sent[0].Status != tt.wantState {
				t.Errorf("Status = %q, want %q", n.sent[0].Status, tt.wantState)
			}
		})
	}
}

func TestRunnerNotifiesAfterCancel(t *testing.T) {
	n := &recordingNotifier{name: "slack"}
	d := NewDispatcher(nil)
	d.Register(n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := testResult()
	res.Canceled = true
	r := NewRunner(&stubRunner{res: res}, d, "Wirespeed", time.Second, nil)
	if _, err := r.Run(ctx, batch.Request{}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n.count() != 1 {
		t.Fatalf("sent %d notifications, want 1", n.count())
	}
	if err := n.ctxErr; err != nil {
		t.Errorf("notification context already done: %v", err)
	}
}

func TestRunnerWithoutChannels(t *testing.T) {
	r := NewRunner(&stubRunner{res: testResult()}, NewDispatcher(nil), "Wirespeed", 0, nil)
	if _, err := r.Run(context.Background(), batch.Request{}); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

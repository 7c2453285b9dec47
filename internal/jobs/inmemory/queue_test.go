package inmemory

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/budgetsync/internal/jobs"
)

func waitForStatus(t *testing.T, store *Store, id string, want jobs.JobStatus) *jobs.ReportJob {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), id)
		if err == nil && job.Status == want {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), id)
	t.Fatalf("job %s did not reach %s, last state %+v", id, want, job)
	return nil
}

func startQueue(t *testing.T, handler jobs.JobHandler) (*Queue, *Store) {
	t.Helper()
	store := NewStore()
	q := NewQueue(10, 1, store)
	q.backoff = func(int) time.Duration { return time.Millisecond }

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(func() {
		cancel()
		_ = q.Stop(context.Background())
	})
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return q, store
}

func TestQueue_Completes(t *testing.T) {
	q, store := startQueue(t, func(_ context.Context, job jobs.Job) error {
		job.(*jobs.ReportJob).ReportID = "r-42"
		return nil
	})

	job := &jobs.ReportJob{UserID: "u1", Consent: true}
	if err := q.PublishReport(context.Background(), job); err != nil {
		t.Fatalf("PublishReport: %v", err)
	}
	if job.JobID == "" || job.MaxRetries != defaultMaxRetries {
		t.Fatalf("defaults not applied: %+v", job)
	}

	got := waitForStatus(t, store, job.JobID, jobs.JobStatusCompleted)
	if got.ReportID != "r-42" || got.StartedAt == nil || got.CompletedAt == nil {
		t.Errorf("completed job = %+v", got)
	}
}

func TestQueue_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	q, store := startQueue(t, func(context.Context, jobs.Job) error {
		if calls.Add(1) < 3 {
			return errors.New("model unavailable")
		}
		return nil
	})

	job := &jobs.ReportJob{JobID: "j1", UserID: "u1"}
	if err := q.PublishReport(context.Background(), job); err != nil {
		t.Fatalf("PublishReport: %v", err)
	}

	got := waitForStatus(t, store, "j1", jobs.JobStatusCompleted)
	if got.RetryCount != 2 || calls.Load() != 3 {
		t.Errorf("retry count = %d calls = %d, want 2 and 3", got.RetryCount, calls.Load())
	}
	if got.Error != "" {
		t.Errorf("error = %q, want cleared", got.Error)
	}
}

func TestQueue_PermanentFailureNotRetried(t *testing.T) {
	var calls atomic.Int32
	q, store := startQueue(t, func(context.Context, jobs.Job) error {
		calls.Add(1)
		return jobs.Permanent(errors.New("consent required"))
	})

	if err := q.PublishReport(context.Background(), &jobs.ReportJob{JobID: "j1"}); err != nil {
		t.Fatalf("PublishReport: %v", err)
	}

	got := waitForStatus(t, store, "j1", jobs.JobStatusFailed)
	time.Sleep(20 * time.Millisecond)
	if calls.Load() != 1 || got.RetryCount != 0 {
		t.Errorf("calls = %d retries = %d, want 1 and 0", calls.Load(), got.RetryCount)
	}
	if got.Error != "consent required" {
		t.Errorf("error = %q", got.Error)
	}
}

func TestQueue_GivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	q, store := startQueue(t, func(context.Context, jobs.Job) error {
		calls.Add(1)
		return errors.New("still down")
	})

	if err := q.PublishReport(context.Background(), &jobs.ReportJob{JobID: "j1", MaxRetries: 2}); err != nil {
		t.Fatalf("PublishReport: %v", err)
	}

	got := waitForStatus(t, store, "j1", jobs.JobStatusFailed)
	if calls.Load() != 3 || got.RetryCount != 2 {
		t.Errorf("calls = %d retries = %d, want 3 and 2", calls.Load(), got.RetryCount)
	}
}

func TestQueue_PublishAfterStop(t *testing.T) {
	q := NewQueue(1, 1, NewStore())
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	err := q.PublishReport(context.Background(), &jobs.ReportJob{})
	if !errors.Is(err, jobs.ErrQueueClosed) {
		t.Fatalf("err = %v, want ErrQueueClosed", err)
	}
	if err := q.Start(context.Background(), nil); !errors.Is(err, jobs.ErrQueueClosed) {
		t.Fatalf("Start err = %v, want ErrQueueClosed", err)
	}
}

func TestStore_ListJobs(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	for i, j := range []jobs.ReportJob{
		{JobID: "a", UserID: "u1", Status: jobs.JobStatusCompleted},
		{JobID: "b", UserID: "u1", Status: jobs.JobStatusFailed},
		{JobID: "c", UserID: "u2", Status: jobs.JobStatusCompleted},
		{JobID: "d", UserID: "u1", Status: jobs.JobStatusCompleted},
	} {
		j.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := s.SaveJob(ctx, &j); err != nil {
			t.Fatalf("SaveJob: %v", err)
		}
	}

	tests := []struct {
		name   string
		filter jobs.JobFilter
		want   []string
	}{
		{name: "all", filter: jobs.JobFilter{}, want: []string{"d", "c", "b", "a"}},
		{name: "by user", filter: jobs.JobFilter{UserID: "u1"}, want: []string{"d", "b", "a"}},
		{name: "by status", filter: jobs.JobFilter{Status: jobs.JobStatusCompleted}, want: []string{"d", "c", "a"}},
		{name: "paged", filter: jobs.JobFilter{Offset: 1, Limit: 2}, want: []string{"c", "b"}},
		{name: "offset past end", filter: jobs.JobFilter{Offset: 9}, want: []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListJobs(ctx, tt.filter)
			if err != nil {
				t.Fatalf("ListJobs: %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("got %d jobs, want %d", len(got), len(tt.want))
			}
			for i := range got {
				if got[i].JobID != tt.want[i] {
					t.Errorf("jobs[%d] = %s, want %s", i, got[i].JobID, tt.want[i])
				}
			}
		})
	}

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Errorf("GetJob missing err = %v", err)
	}
	if err := s.UpdateJobStatus(ctx, "a", jobs.JobStatusFailed, "manual"); err != nil {
		t.Fatalf("UpdateJobStatus: %v", err)
	}
	a, _ := s.GetJob(ctx, "a")
	if a.Status != jobs.JobStatusFailed || a.Error != "manual" {
		t.Errorf("updated job = %+v", a)
	}
}

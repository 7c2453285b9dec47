package report

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"google.golang.org/api/iterator"
)

// HistoryStore persists reports as opaque records.
type HistoryStore interface {
	Save(ctx context.Context, userID string, r Report) error

	// List returns at most limit reports, most recent first.
	List(ctx context.Context, userID string, limit int) ([]Report, error)
}

// MemoryHistory keeps reports in process.
type MemoryHistory struct {
	mu      sync.Mutex
	reports map[string][]Report
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{reports: make(map[string][]Report)}
}

func (m *MemoryHistory) Save(_ context.Context, userID string, r Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reports[userID] = append(m.reports[userID], r)
	return nil
}

func (m *MemoryHistory) List(_ context.Context, userID string, limit int) ([]Report, error) {
	m.mu.Lock()
	out := append([]Report(nil), m.reports[userID]...)
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// BigQueryHistory stores reports in `{project}.{dataset}.financial_reports`.
type BigQueryHistory struct {
	client  *bigquery.Client
	project string
	dataset string
}

// NewBigQueryHistory creates a BigQuery client for project.
func NewBigQueryHistory(ctx context.Context, project, dataset string) (*BigQueryHistory, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryHistory: creating client: %w", err)
	}
	return &BigQueryHistory{client: client, project: project, dataset: dataset}, nil
}

func (h *BigQueryHistory) Close() error {
	if h.client != nil {
		return h.client.Close()
	}
	return nil
}

// EnsureSchema applies pending migrations to the dataset.
func (h *BigQueryHistory) EnsureSchema(ctx context.Context, appliedBy string) (int, error) {
	return Migrate(ctx, h.client, MigrateOptions{Project: h.project, Dataset: h.dataset, AppliedBy: appliedBy})
}

func (h *BigQueryHistory) table() string {
	return fmt.Sprintf("`%s.%s.financial_reports`", h.project, h.dataset)
}

// Save uses DML INSERT so the row is immediately visible to List.
func (h *BigQueryHistory) Save(ctx context.Context, userID string, r Report) error {
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("Save: encode report: %w", err)
	}

	q := h.client.Query(`
		INSERT INTO ` + h.table() + ` (report_id, user_id, created_ts, report_month, score, body)
		VALUES (@report_id, @user_id, @created_ts, @report_month, @score, PARSE_JSON(@body))
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "report_id", Value: r.ID},
		{Name: "user_id", Value: userID},
		{Name: "created_ts", Value: r.Timestamp},
		{Name: "report_month", Value: civil.DateOf(r.Timestamp)},
		{Name: "score", Value: int64(r.Score)},
		{Name: "body", Value: string(body)},
	}

	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("Save: running insert query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("Save: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("Save: job error: %w", err)
	}
	return nil
}

func (h *BigQueryHistory) List(ctx context.Context, userID string, limit int) ([]Report, error) {
	q := h.client.Query(`
		SELECT TO_JSON_STRING(body) AS body
		FROM ` + h.table() + `
		WHERE user_id = @user_id
		ORDER BY created_ts DESC
		LIMIT @limit
	`)
	q.Parameters = []bigquery.QueryParameter{
		{Name: "user_id", Value: userID},
		{Name: "limit", Value: int64(limit)},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: reading query: %w", err)
	}

	var out []Report
	for {
		var row struct {
			Body string `bigquery:"body"`
		}
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List: iterating: %w", err)
		}
		var r Report
		if err := json.Unmarshal([]byte(row.Body), &r); err != nil {
			return nil, fmt.Errorf("List: decode report: %w", err)
		}
		out = append(out, r)
	}
	return out, nil
}

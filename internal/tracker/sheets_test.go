package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/pkg/logger"
)

// fakeSheets is an in-memory spreadsheet speaking the subset of the Sheets v4 REST API used by the tracker
type fakeSheets struct {
	mu     sync.Mutex
	sheets map[string][][]any
	order  []string
}

func (f *fakeSheets) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	path := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/sheet-id")
	switch {
	case path == "" && r.Method == http.MethodGet:
		var list []map[string]any
		for _, name := range f.order {
			list = append(list, map[string]any{"properties": map[string]any{"title": name}})
		}
		writeJSON(w, map[string]any{"spreadsheetId": "sheet-id", "sheets": list})

	case path == ":batchUpdate":
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, rq := range req.Requests {
			f.sheets[rq.AddSheet.Properties.Title] = nil
			f.order = append(f.order, rq.AddSheet.Properties.Title)
		}
		writeJSON(w, map[string]any{"spreadsheetId": "sheet-id"})

	case strings.HasPrefix(path, "/values/"):
		rng := strings.TrimPrefix(path, "/values/")
		appendRows := strings.HasSuffix(rng, ":append")
		rng = strings.TrimSuffix(rng, ":append")
		name, cells, _ := strings.Cut(rng, "!")

		switch {
		case appendRows:
			var vr struct {
				Values [][]any `json:"values"`
			}
			_ = json.NewDecoder(r.Body).Decode(&vr)
			f.sheets[name] = append(f.sheets[name], vr.Values...)
			writeJSON(w, map[string]any{"spreadsheetId": "sheet-id"})
		case r.Method == http.MethodPut:
			var vr struct {
				Values [][]any `json:"values"`
			}
			_ = json.NewDecoder(r.Body).Decode(&vr)
			row, _ := strconv.Atoi(strings.TrimPrefix(cells, "A"))
			for len(f.sheets[name]) < row {
				f.sheets[name] = append(f.sheets[name], nil)
			}
			f.sheets[name][row-1] = vr.Values[0]
			writeJSON(w, map[string]any{"spreadsheetId": "sheet-id"})
		default:
			rows := f.sheets[name]
			if strings.HasPrefix(cells, "A1:") && len(rows) > 0 {
				rows = rows[:1]
			}
			var out [][]any
			for _, row := range rows {
				if cells == "A:A" && len(row) > 0 {
					out = append(out, row[:1])
					continue
				}
				out = append(out, row)
			}
			writeJSON(w, map[string]any{"range": rng, "values": out})
		}

	default:
		http.NotFound(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newTracker(t *testing.T, fake *fakeSheets) *SheetsTracker {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	tr, err := NewSheetsTracker(context.Background(), config.TrackerConfig{SpreadsheetID: "sheet-id"}, logger.Nop(),
		option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())
	require.NoError(t, err)
	return tr
}

func TestNewSheetsTracker_RequiresCredentials(t *testing.T) {
	_, err := NewSheetsTracker(context.Background(), config.TrackerConfig{SpreadsheetID: "x"}, logger.Nop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no Google credentials")
}

func TestSheetsTracker_Initialize(t *testing.T) {
	fake := &fakeSheets{sheets: map[string][][]any{"Topics": {{"External ID"}}}, order: []string{"Topics"}}
	tr := newTracker(t, fake)

	require.NoError(t, tr.Initialize(context.Background()))
	assert.Contains(t, fake.order, "Replies")
	require.Len(t, fake.sheets["Replies"], 1)
	assert.Equal(t, "ID", fake.sheets["Replies"][0][0])
	assert.Len(t, fake.sheets["Topics"], 1, "existing headers are kept")
}

func TestSheetsTracker_SaveAnalysis(t *testing.T) {
	fake := &fakeSheets{sheets: map[string][][]any{}}
	tr := newTracker(t, fake)

	err := tr.SaveAnalysis(context.Background(), &models.AnalysisRecord{
		Topic: models.Topic{
			ExternalID: "ext-1",
			Title:      "租房踩坑",
			SourceType: "page",
			SourceName: "explore",
			Engagement: models.Engagement{Likes: 1200, Comments: 80, Collects: 300},
		},
		PainPoints: []string{"押金", "中介"},
		Priority:   7.5,
		AnalyzedAt: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	rows := fake.sheets["Topics"]
	require.Len(t, rows, 2)
	assert.Equal(t, "ext-1", rows[1][0])
	assert.Equal(t, "page/explore", rows[1][3])
	assert.InDelta(t, 7.5, rows[1][7], 1e-9)
	assert.Equal(t, "押金; 中介", rows[1][11])
	assert.Equal(t, "2026-03-02T10:00:00Z", rows[1][12])
}

func TestSheetsTracker_SaveReplyRecordUpserts(t *testing.T) {
	fake := &fakeSheets{sheets: map[string][][]any{}}
	tr := newTracker(t, fake)
	ctx := context.Background()

	rec := &models.ReplyRecord{ID: "r1", TopicTitle: "t", Status: models.ReplyStatusStaged, Method: "stage", Content: "hi"}
	require.NoError(t, tr.SaveReplyRecord(ctx, rec))
	require.NoError(t, tr.SaveReplyRecord(ctx, &models.ReplyRecord{ID: "r2", Status: models.ReplyStatusFailed}))

	sent := time.Date(2026, 3, 2, 11, 0, 0, 0, time.UTC)
	rec.Status = models.ReplyStatusSent
	rec.SentAt = &sent
	require.NoError(t, tr.SaveReplyRecord(ctx, rec))

	rows := fake.sheets["Replies"]
	require.Len(t, rows, 3)
	assert.Equal(t, "r1", rows[1][0])
	assert.Equal(t, "sent", rows[1][6])
	assert.Equal(t, "2026-03-02T11:00:00Z", rows[1][11])
	assert.Equal(t, "r2", rows[2][0])

	require.NoError(t, tr.SaveTopics(ctx, nil))
	require.NoError(t, tr.SaveReplySet(ctx, &models.ReplySet{}))
}

func TestColumnLetter(t *testing.T) {
	assert.Equal(t, "A", columnLetter(1))
	assert.Equal(t, "M", columnLetter(13))
	assert.Equal(t, "Z", columnLetter(26))
	assert.Equal(t, "AA", columnLetter(27))
}

package tracker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/models"
	"github.com/xhs-agent/internal/storage"
	"github.com/xhs-agent/pkg/logger"
)

// TopicsSheetColumns defines the column headers for the Topics sheet
var TopicsSheetColumns = []string{
	"External ID",
	"Title",
	"URL",
	"Source",
	"Likes",
	"Comments",
	"Collects",
	"Priority",
	"Commercial Value",
	"Urgency",
	"Feasibility",
	"Pain Points",
	"Analyzed At",
}

// RepliesSheetColumns defines the column headers for the Replies sheet
var RepliesSheetColumns = []string{
	"ID",
	"Topic Title",
	"Topic URL",
	"Version",
	"Angle",
	"Score",
	"Status",
	"Method",
	"Content",
	"Error",
	"Created At",
	"Sent At",
}

// maxCell caps free text written to a single cell
const maxCell = 500

// SheetsTracker mirrors analyses and reply records into a Google spreadsheet
type SheetsTracker struct {
	service       *sheets.Service
	spreadsheetID string
	topicsSheet   string
	repliesSheet  string
	log           *logger.Logger

	initOnce sync.Once
	initErr  error
}

// NewSheetsTracker creates a new Google Sheets tracker. Extra options are passed to
// the Sheets client after the credentials.
func NewSheetsTracker(ctx context.Context, cfg config.TrackerConfig, log *logger.Logger, opts ...option.ClientOption) (*SheetsTracker, error) {
	var creds option.ClientOption
	// Try service account JSON first (for env var injection)
	switch {
	case cfg.ServiceAccountJSON != "":
		creds = option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON))
	case cfg.CredentialsFile != "":
		creds = option.WithCredentialsFile(cfg.CredentialsFile)
	case len(opts) == 0:
		return nil, fmt.Errorf("no Google credentials provided: set credentials_file or service_account_json")
	}
	if creds != nil {
		opts = append([]option.ClientOption{creds}, opts...)
	}

	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	topics, replies := cfg.TopicsSheet, cfg.RepliesSheet
	if topics == "" {
		topics = "Topics"
	}
	if replies == "" {
		replies = "Replies"
	}

	return &SheetsTracker{
		service:       srv,
		spreadsheetID: cfg.SpreadsheetID,
		topicsSheet:   topics,
		repliesSheet:  replies,
		log:           log.WithComponent("sheets-tracker"),
	}, nil
}

// Initialize creates both sheets and their headers if they don't exist
func (t *SheetsTracker) Initialize(ctx context.Context) error {
	t.initOnce.Do(func() {
		for name, headers := range map[string][]string{t.topicsSheet: TopicsSheetColumns, t.repliesSheet: RepliesSheetColumns} {
			if err := t.ensureSheet(ctx, name, headers); err != nil {
				t.initErr = err
				return
			}
		}
	})
	return t.initErr
}

// SaveTopics does nothing, topics are tracked once analyzed
func (t *SheetsTracker) SaveTopics(context.Context, []*models.Topic) error {
	return nil
}

// SaveAnalysis appends a topic row with its scores
func (t *SheetsTracker) SaveAnalysis(ctx context.Context, record *models.AnalysisRecord) error {
	if err := t.Initialize(ctx); err != nil {
		return err
	}
	topic := record.Topic
	row := []any{
		topic.ExternalID,
		topic.Title,
		topic.URL,
		fmt.Sprintf("%s/%s", topic.SourceType, topic.SourceName),
		topic.Engagement.Likes,
		topic.Engagement.Comments,
		topic.Engagement.Collects,
		record.Priority,
		record.CommercialValue,
		record.DemandUrgency,
		record.DemandFeasibility,
		preview(strings.Join(record.PainPoints, "; ")),
		formatTime(record.AnalyzedAt),
	}
	if err := t.appendRow(ctx, t.topicsSheet, row); err != nil {
		return err
	}
	t.log.Debug().Str("title", topic.Title).Float64("priority", record.Priority).Msg("Tracked analysis")
	return nil
}

// SaveReplySet does nothing, the chosen reply is tracked through its record
func (t *SheetsTracker) SaveReplySet(context.Context, *models.ReplySet) error {
	return nil
}

// SaveReplyRecord appends the record or rewrites the row with the same id
func (t *SheetsTracker) SaveReplyRecord(ctx context.Context, record *models.ReplyRecord) error {
	if err := t.Initialize(ctx); err != nil {
		return err
	}
	row := []any{
		record.ID,
		record.TopicTitle,
		record.TopicURL,
		record.Version,
		record.Angle,
		record.Score,
		string(record.Status),
		record.Method,
		preview(record.Content),
		record.ErrorMessage,
		formatTime(record.CreatedAt),
		"",
	}
	if record.SentAt != nil {
		row[11] = formatTime(*record.SentAt)
	}

	rowNum, err := t.findRow(ctx, t.repliesSheet, record.ID)
	if err != nil {
		return err
	}
	if rowNum == 0 {
		return t.appendRow(ctx, t.repliesSheet, row)
	}
	return t.updateRow(ctx, t.repliesSheet, rowNum, row)
}

// ensureSheet creates the sheet if needed and writes headers to an empty first row
func (t *SheetsTracker) ensureSheet(ctx context.Context, name string, headers []string) error {
	spreadsheet, err := t.service.Spreadsheets.Get(t.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	exists := false
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == name {
			exists = true
			break
		}
	}

	if !exists {
		t.log.Info().Str("sheet", name).Msg("Creating new sheet")
		req := &sheets.BatchUpdateSpreadsheetRequest{
			Requests: []*sheets.Request{
				{
					AddSheet: &sheets.AddSheetRequest{
						Properties: &sheets.SheetProperties{
							Title: name,
						},
					},
				},
			},
		}
		if _, err := t.service.Spreadsheets.BatchUpdate(t.spreadsheetID, req).Context(ctx).Do(); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, fmt.Sprintf("%s!A1:%s1", name, columnLetter(len(headers)))).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to read sheet %s: %w", name, err)
	}
	if len(resp.Values) > 0 {
		return nil
	}

	headerRow := make([]any, 0, len(headers))
	for _, col := range headers {
		headerRow = append(headerRow, col)
	}
	_, err = t.service.Spreadsheets.Values.Update(t.spreadsheetID, name+"!A1", &sheets.ValueRange{Values: [][]any{headerRow}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write %s headers: %w", name, err)
	}
	t.log.Info().Str("sheet", name).Msg("Sheet headers initialized")
	return nil
}

// findRow returns the 1-indexed row holding id in column A, 0 when absent
func (t *SheetsTracker) findRow(ctx context.Context, sheet, id string) (int, error) {
	resp, err := t.service.Spreadsheets.Values.Get(t.spreadsheetID, sheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("failed to search %s: %w", sheet, err)
	}
	for i, row := range resp.Values {
		if i == 0 || len(row) == 0 {
			continue // Skip header
		}
		if fmt.Sprintf("%v", row[0]) == id {
			return i + 1, nil
		}
	}
	return 0, nil
}

// appendRow appends a new row to the sheet
func (t *SheetsTracker) appendRow(ctx context.Context, sheet string, row []any) error {
	_, err := t.service.Spreadsheets.Values.Append(t.spreadsheetID, sheet+"!A:A", &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to append row to %s: %w", sheet, err)
	}
	return nil
}

// updateRow overwrites a full row
func (t *SheetsTracker) updateRow(ctx context.Context, sheet string, rowNum int, row []any) error {
	cellRange := fmt.Sprintf("%s!A%d", sheet, rowNum)
	_, err := t.service.Spreadsheets.Values.Update(t.spreadsheetID, cellRange, &sheets.ValueRange{Values: [][]any{row}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", cellRange, err)
	}
	return nil
}

// columnLetter converts a 1-based column number to its letter name
func columnLetter(n int) string {
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= maxCell {
		return s
	}
	return string(r[:maxCell]) + "..."
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

var _ storage.Sink = (*SheetsTracker)(nil)

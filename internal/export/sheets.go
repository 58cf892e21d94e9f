package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"gagyebu/internal/log"
)

// SheetsConfig selects the spreadsheet and the service account used to write it.
type SheetsConfig struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
	// ClientOptions replace the credential options when set.
	ClientOptions []goption.ClientOption
}

// SheetsSink keeps one tab per month, named "YYYY-MM <sheet>".
type SheetsSink struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

var _ Sink = (*SheetsSink)(nil)

func NewSheetsSink(ctx context.Context, cfg SheetsConfig, logger *log.Logger) (*SheetsSink, error) {
	if logger == nil {
		logger = log.Discard()
	}
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(cfg.SheetName) == "" {
		cfg.SheetName = "가계부"
	}

	opts := cfg.ClientOptions
	if len(opts) == 0 {
		creds, err := serviceAccountJSON(cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{
			goption.WithCredentialsJSON(creds),
			goption.WithScopes(gsheet.SpreadsheetsScope),
		}
	}
	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return &SheetsSink{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		logger:        logger.WithComponent(log.ComponentExport),
	}, nil
}

func serviceAccountJSON(cfg SheetsConfig) ([]byte, error) {
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		return []byte(cfg.CredentialsJSON), nil
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		b, err := os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

func (s *SheetsSink) Name() string { return "sheets" }

// TabName is the tab a month is written to.
func (s *SheetsSink) TabName(snap Snapshot) string {
	return snap.Label() + " " + s.sheetName
}

func (s *SheetsSink) Write(ctx context.Context, snap Snapshot) error {
	tab := s.TabName(snap)
	if err := s.ensureTab(ctx, tab); err != nil {
		return err
	}

	quoted := quoteTab(tab)
	if _, err := s.svc.Spreadsheets.Values.Clear(s.spreadsheetID, quoted+"!A:F", &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", tab, err)
	}

	vr := &gsheet.ValueRange{Values: sheetValues(snap)}
	if _, err := s.svc.Spreadsheets.Values.Update(s.spreadsheetID, quoted+"!A1", vr).
		ValueInputOption("RAW").Context(ctx).Do(); err != nil {
		return fmt.Errorf("update sheet %s: %w", tab, err)
	}
	s.logger.DebugContext(ctx, "Wrote month tab", "tab", tab, log.FieldCount, len(snap.Records))
	return nil
}

func (s *SheetsSink) ensureTab(ctx context.Context, tab string) error {
	ss, err := s.svc.Spreadsheets.Get(s.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == tab {
			return nil
		}
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{Requests: []*gsheet.Request{{
		AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: tab}},
	}}}
	if _, err := s.svc.Spreadsheets.BatchUpdate(s.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}
	s.logger.InfoContext(ctx, "Added month tab", "tab", tab)
	return nil
}

// sheetValues keeps amounts numeric so the sheet can sum them.
func sheetValues(snap Snapshot) [][]any {
	rows := snap.Rows()
	out := make([][]any, len(rows))
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, cell := range row {
			vals[j] = cell
		}
		if i > 0 {
			if n, err := strconv.ParseInt(row[3], 10, 64); err == nil {
				vals[3] = n
			}
		}
		out[i] = vals
	}
	return out
}

func quoteTab(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

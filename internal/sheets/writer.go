package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/Veraticus/rollcall/internal/common"
	"github.com/Veraticus/rollcall/internal/report"
)

const (
	maxTabTitle    = 100
	detailsHeading = "Student Details"
)

// Writer implements report.Writer for Google Sheets.
type Writer struct {
	service *sheets.Service
	logger  *slog.Logger
	config  Config
}

// NewWriter creates a new Google Sheets report writer.
func NewWriter(ctx context.Context, config Config, logger *slog.Logger) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// Create the Sheets service
	service, err := createSheetsService(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &Writer{
		config:  config,
		service: service,
		logger:  logger,
	}, nil
}

// Write implements report.Writer.
func (w *Writer) Write(ctx context.Context, r report.Report) error {
	w.logger.Info("starting report export",
		"session_id", r.Session.ID,
		"rows", len(r.Rows))

	// Get or create spreadsheet
	spreadsheetID, err := w.getOrCreateSpreadsheet(ctx)
	if err != nil {
		return fmt.Errorf("failed to get spreadsheet: %w", err)
	}

	retryOpts := common.RetryOptions{
		MaxAttempts:  w.config.RetryAttempts,
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	tab := ""
	var sheetID int64
	if w.config.OneTabPerSession {
		tab = TabTitle(r)
		err = common.WithRetry(ctx, func() error {
			id, tabErr := w.ensureTab(ctx, spreadsheetID, tab)
			sheetID = id
			return classify(tabErr)
		}, retryOpts)
		if err != nil {
			return fmt.Errorf("failed to prepare tab %q: %w", tab, err)
		}
	}

	// Clear existing data
	if clearErr := w.clearSheet(ctx, spreadsheetID, tab); clearErr != nil {
		return fmt.Errorf("failed to clear sheet: %w", clearErr)
	}

	// Prepare the data
	values := prepareReportData(r)

	err = common.WithRetry(ctx, func() error {
		return classify(w.writeData(ctx, spreadsheetID, tab, values))
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	// Apply formatting if enabled
	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return classify(w.applyFormatting(ctx, spreadsheetID, sheetID, len(values)))
		}, retryOpts)
		if err != nil {
			w.logger.Warn("failed to apply formatting", "error", err)
			// Don't fail the whole operation if formatting fails
		}
	}

	w.logger.Info("report export completed",
		"spreadsheet_id", spreadsheetID,
		"tab", tab,
		"rows_written", len(values))

	return nil
}

// classify marks rate limited and server side API errors as retryable.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	retryable := errors.As(err, &apiErr) &&
		(apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError)
	return &common.RetryableError{Err: err, Retryable: retryable}
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		// Use service account authentication
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		// Use OAuth2 authentication
		client := &oauth2.Config{
			ClientID:     config.ClientID,
			ClientSecret: config.ClientSecret,
			Endpoint:     google.Endpoint,
			Scopes:       []string{sheets.SpreadsheetsScope},
		}

		token := &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		}

		tokenSource = client.TokenSource(ctx, token)
	}

	httpClient := oauth2.NewClient(ctx, tokenSource)
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// getOrCreateSpreadsheet gets an existing spreadsheet or creates a new one.
func (w *Writer) getOrCreateSpreadsheet(ctx context.Context) (string, error) {
	if w.config.SpreadsheetID != "" {
		// Verify the spreadsheet exists and is accessible
		_, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
		}
		return w.config.SpreadsheetID, nil
	}

	name := w.config.SpreadsheetName
	if name == "" {
		name = DefaultSpreadsheetName
	}
	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    name,
			TimeZone: w.config.TimeZone,
		},
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	return created.SpreadsheetId, nil
}

// ensureTab returns the sheet id of the tab titled title, adding it when missing.
func (w *Writer) ensureTab(ctx context.Context, spreadsheetID, title string) (int64, error) {
	spreadsheet, err := w.service.Spreadsheets.Get(spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title == title {
			return sheet.Properties.SheetId, nil
		}
	}

	resp, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil {
		return 0, fmt.Errorf("add sheet %q returned no properties", title)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// clearSheet clears all data from the sheet.
func (w *Writer) clearSheet(ctx context.Context, spreadsheetID, tab string) error {
	_, err := w.service.Spreadsheets.Values.Clear(spreadsheetID, a1(tab, "A:Z"), &sheets.ClearValuesRequest{}).Context(ctx).Do()
	return err
}

// TabTitle names the tab of a session report.
func TabTitle(r report.Report) string {
	parts := make([]string, 0, 3)
	if r.Session.Date != "" {
		parts = append(parts, r.Session.Date)
	}
	parts = append(parts, r.Session.Title())
	if r.Session.StartTime != "" {
		parts = append(parts, r.Session.StartTime)
	}
	title := strings.Map(func(c rune) rune {
		if strings.ContainsRune(`[]*?/\:'`, c) {
			return '-'
		}
		return c
	}, strings.Join(parts, " "))
	if runes := []rune(title); len(runes) > maxTabTitle {
		title = string(runes[:maxTabTitle])
	}
	return title
}

func a1(tab, cells string) string {
	if tab == "" {
		return cells
	}
	return "'" + tab + "'!" + cells
}

// prepareReportData lays out the heading, summary and student rows.
func prepareReportData(r report.Report) [][]any {
	summary := r.SummaryLines()
	values := make([][]any, 0, 7+len(summary)+len(r.Rows))

	schedule := r.Session.Date
	if r.Session.StartTime != "" {
		schedule = strings.TrimSpace(fmt.Sprintf("%s %s-%s", schedule, r.Session.StartTime, r.Session.EndTime))
	}
	values = append(values,
		[]any{"Attendance Report", r.Session.Title()},
		[]any{"Session", r.Session.ID, schedule},
		[]any{}, // Empty row
		[]any{"Summary"},
	)
	for _, line := range summary {
		values = append(values, []any{line[0], line[1]})
	}

	header := make([]any, len(report.Columns))
	for i, c := range report.Columns {
		header[i] = c
	}
	values = append(values,
		[]any{}, // Empty row
		[]any{detailsHeading},
		header,
	)

	for _, row := range r.Rows {
		cells := row.Values()
		line := make([]any, len(cells))
		for i, c := range cells {
			line[i] = c
		}
		values = append(values, line)
	}

	return values
}

// writeData writes the data to the spreadsheet.
func (w *Writer) writeData(ctx context.Context, spreadsheetID, tab string, values [][]any) error {
	batchSize := w.config.BatchSize
	if batchSize <= 0 {
		batchSize = len(values)
	}

	// Write in batches to avoid API limits
	for i := 0; i < len(values); i += batchSize {
		end := i + batchSize
		if end > len(values) {
			end = len(values)
		}

		batch := values[i:end]
		valueRange := &sheets.ValueRange{
			Values: batch,
		}

		_, err := w.service.Spreadsheets.Values.Update(spreadsheetID, a1(tab, fmt.Sprintf("A%d", i+1)), valueRange).
			ValueInputOption("RAW").
			Context(ctx).
			Do()

		if err != nil {
			return fmt.Errorf("failed to write batch starting at row %d: %w", i+1, err)
		}

		w.logger.Debug("wrote batch", "start_row", i+1, "rows", len(batch))
	}

	return nil
}

// applyFormatting bolds headings and freezes the title rows.
func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, sheetID int64, totalRows int) error {
	bold := func(startRow, endRow, endCol, size int64) *sheets.Request {
		return &sheets.Request{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    startRow,
					EndRowIndex:      endRow,
					StartColumnIndex: 0,
					EndColumnIndex:   endCol,
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat: &sheets.TextFormat{Bold: true, FontSize: size},
					},
				},
				Fields: "userEnteredFormat.textFormat",
			},
		}
	}

	requests := []*sheets.Request{
		// Title
		bold(0, 1, 2, 16),
		// Section labels
		bold(2, int64(totalRows), 1, 10),
		// Auto-resize columns
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(len(report.Columns)),
				},
			},
		},
		// Freeze header rows
		{
			UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
				Properties: &sheets.SheetProperties{
					SheetId: sheetID,
					GridProperties: &sheets.GridProperties{
						FrozenRowCount: 2,
					},
				},
				Fields: "gridProperties.frozenRowCount",
			},
		},
	}

	batchUpdate := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID, batchUpdate).Context(ctx).Do()
	return err
}

package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"budget/internal/core"
	ports "budget/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Client writes budget summaries to one spreadsheet, one tab per budget.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	now           func() time.Time

	mu   sync.Mutex
	tabs map[string]struct{} // tabs known to exist
}

// Ensure interface conformance
var _ ports.SummaryExporter = (*Client)(nil)

// Credentials picks inline service account JSON over a file path.
func Credentials(inlineJSON, file string) ([]byte, error) {
	inlineJSON = strings.TrimSpace(inlineJSON)
	file = strings.TrimSpace(file)

	switch {
	case inlineJSON != "":
		return []byte(inlineJSON), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON or GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
}

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, spreadsheetID string, credentialsJSON []byte) (*Client, error) {
	slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
		"credentials_size", len(credentialsJSON),
		"scope", gsheet.SpreadsheetsScope)

	return NewWithOptions(ctx, spreadsheetID,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
}

// NewWithOptions builds a client from raw API options.
func NewWithOptions(ctx context.Context, spreadsheetID string, opts ...goption.ClientOption) (*Client, error) {
	spreadsheetID = strings.TrimSpace(spreadsheetID)
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		now:           time.Now,
		tabs:          make(map[string]struct{}),
	}, nil
}

// ExportSummary replaces the content of the budget's tab with its summary.
func (c *Client) ExportSummary(ctx context.Context, b core.Budget, s core.Summary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	tab := ports.TabName(b.ID)
	if err := c.ensureTab(ctx, tab); err != nil {
		return err
	}

	clearRange := fmt.Sprintf("'%s'!A:Z", tab)
	_, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to clear %s: %w", clearRange, err)
	}

	table := ports.SummaryTable(b, s, c.now())
	vr := &gsheet.ValueRange{Values: toValues(table)}
	dataRange := fmt.Sprintf("'%s'!A1", tab)
	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to update %s: %w", dataRange, err)
	}

	slog.DebugContext(ctx, "Exported budget summary",
		"budget_id", b.ID,
		"tab", tab,
		"rows", len(table))
	return nil
}

// ensureTab creates the tab unless it is already in the spreadsheet.
func (c *Client) ensureTab(ctx context.Context, tab string) error {
	c.mu.Lock()
	_, known := c.tabs[tab]
	c.mu.Unlock()
	if known {
		return nil
	}

	ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("read spreadsheet: %w", err)
	}

	exists := false
	c.mu.Lock()
	for _, sh := range ss.Sheets {
		if sh.Properties == nil {
			continue
		}
		c.tabs[sh.Properties.Title] = struct{}{}
		if sh.Properties.Title == tab {
			exists = true
		}
	}
	c.mu.Unlock()
	if exists {
		return nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{
				Properties: &gsheet.SheetProperties{Title: tab},
			},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add sheet %s: %w", tab, err)
	}

	c.mu.Lock()
	c.tabs[tab] = struct{}{}
	c.mu.Unlock()

	slog.InfoContext(ctx, "Created sheet tab", "tab", tab)
	return nil
}

func toValues(t ports.Table) [][]any {
	out := make([][]any, len(t))
	for i, row := range t {
		cells := make([]any, len(row))
		for j, v := range row {
			cells[j] = v
		}
		out[i] = cells
	}
	return out
}

// Package google stores the tracker document in a Google Sheets spreadsheet,
// one tab for transactions and one for budgets.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"tally/internal/core"
	ports "tally/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const (
	DefaultTransactionsSheet = "Transactions"
	DefaultBudgetsSheet      = "Budgets"
)

type Client struct {
	svc               *gsheet.Service
	spreadsheetID     string
	transactionsSheet string
	budgetsSheet      string
}

var _ ports.DocumentStore = (*Client)(nil)

// Config names the spreadsheet and its tabs. Empty tab names take defaults.
type Config struct {
	SpreadsheetID     string
	TransactionsSheet string
	BudgetsSheet      string
}

// New wraps an existing Sheets service.
func New(svc *gsheet.Service, cfg Config) (*Client, error) {
	id := strings.TrimSpace(cfg.SpreadsheetID)
	if id == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	c := &Client{
		svc:               svc,
		spreadsheetID:     id,
		transactionsSheet: strings.TrimSpace(cfg.TransactionsSheet),
		budgetsSheet:      strings.TrimSpace(cfg.BudgetsSheet),
	}
	if c.transactionsSheet == "" {
		c.transactionsSheet = DefaultTransactionsSheet
	}
	if c.budgetsSheet == "" {
		c.budgetsSheet = DefaultBudgetsSheet
	}
	return c, nil
}

// NewFromConfig creates a client authenticated with service account or
// OAuth user credentials from the environment.
func NewFromConfig(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return New(svc, cfg)
}

// NewFromEnv reads GOOGLE_SPREADSHEET_ID, GOOGLE_TRANSACTIONS_SHEET and
// GOOGLE_BUDGETS_SHEET and then behaves like NewFromConfig.
func NewFromEnv(ctx context.Context) (*Client, error) {
	return NewFromConfig(ctx, Config{
		SpreadsheetID:     os.Getenv("GOOGLE_SPREADSHEET_ID"),
		TransactionsSheet: os.Getenv("GOOGLE_TRANSACTIONS_SHEET"),
		BudgetsSheet:      os.Getenv("GOOGLE_BUDGETS_SHEET"),
	})
}

var errNoServiceAccount = errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")

// newSheetsService prefers service account credentials and falls back to a
// stored OAuth user token when no service account is configured.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	credentialsJSON, err := serviceAccountCredentials()
	switch {
	case err == nil:
		slog.InfoContext(ctx, "Creating Google Sheets service with Service Account",
			"credentials_size", len(credentialsJSON),
			"scope", gsheet.SpreadsheetsScope)
		service, err := gsheet.NewService(ctx,
			goption.WithCredentialsJSON(credentialsJSON),
			goption.WithScopes(gsheet.SpreadsheetsScope))
		if err != nil {
			return nil, fmt.Errorf("create sheets service: %w", err)
		}
		return service, nil
	case !errors.Is(err, errNoServiceAccount):
		return nil, err
	}

	ts, oerr := oauthTokenSource(ctx)
	if errors.Is(oerr, ErrNoOAuthClient) {
		return nil, err
	}
	if oerr != nil {
		return nil, oerr
	}
	slog.InfoContext(ctx, "Creating Google Sheets service with OAuth user token",
		"scope", gsheet.SpreadsheetsScope)
	service, serr := gsheet.NewService(ctx, goption.WithTokenSource(ts))
	if serr != nil {
		return nil, fmt.Errorf("create sheets service: %w", serr)
	}
	return service, nil
}

func serviceAccountCredentials() ([]byte, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return b, nil
	default:
		return nil, errNoServiceAccount
	}
}

func (c *Client) transactionsRange() string { return fmt.Sprintf("%s!A:H", c.transactionsSheet) }
func (c *Client) budgetsRange() string      { return fmt.Sprintf("%s!A:C", c.budgetsSheet) }

// Load reads both tabs in one request.
func (c *Client) Load(ctx context.Context) (core.Document, error) {
	if c.svc == nil {
		return core.Document{}, ports.ErrNotConfigured
	}
	resp, err := c.svc.Spreadsheets.Values.BatchGet(c.spreadsheetID).
		Ranges(c.transactionsRange(), c.budgetsRange()).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return core.Document{}, fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
	}
	doc := core.Document{Budgets: []core.BudgetEntry{}, Transactions: []core.Transaction{}}
	for i, vr := range resp.ValueRanges {
		switch i {
		case 0:
			doc.Transactions = parseTransactions(vr.Values)
		case 1:
			doc.Budgets = parseBudgets(vr.Values)
		}
	}
	return doc, nil
}

// Save clears both tabs and writes the document back. The two steps are not
// atomic; a failure between them leaves the tabs empty until the next save.
func (c *Client) Save(ctx context.Context, doc core.Document) error {
	if c.svc == nil {
		return ports.ErrNotConfigured
	}
	clearReq := &gsheet.BatchClearValuesRequest{Ranges: []string{c.transactionsRange(), c.budgetsRange()}}
	if _, err := c.svc.Spreadsheets.Values.BatchClear(c.spreadsheetID, clearReq).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear spreadsheet %s: %w", c.spreadsheetID, err)
	}
	update := &gsheet.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data: []*gsheet.ValueRange{
			{Range: fmt.Sprintf("%s!A1", c.transactionsSheet), Values: transactionRows(doc.Transactions)},
			{Range: fmt.Sprintf("%s!A1", c.budgetsSheet), Values: budgetRows(doc.Budgets)},
		},
	}
	if _, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, update).Context(ctx).Do(); err != nil {
		return fmt.Errorf("write spreadsheet %s: %w", c.spreadsheetID, err)
	}
	return nil
}

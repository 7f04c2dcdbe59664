package sheets

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/jwt"
	sheetsapi "google.golang.org/api/sheets/v4"
	"google.golang.org/api/option"

	"github.com/noah-isme/pbl-teams-api/pkg/config"
)

const spreadsheetScope = "https://www.googleapis.com/auth/spreadsheets"

// GoogleClient talks to the Google Sheets v4 API with service-account
// credentials.
type GoogleClient struct {
	svc           *sheetsapi.Service
	spreadsheetID string
}

// NewGoogleClient builds a client from config. Credentials come either from
// a service-account JSON key file or from the email/private-key pair in the
// environment (with literal "\n" sequences unescaped). When the spreadsheet
// ID or credentials are missing it returns (nil, nil): the sync engine then
// reports every run as skipped instead of failing.
func NewGoogleClient(ctx context.Context, cfg config.SheetsConfig) (*GoogleClient, error) {
	if cfg.SpreadsheetID == "" {
		return nil, nil
	}

	var opts []option.ClientOption
	switch {
	case cfg.ServiceAccountJSONPath != "":
		raw, err := os.ReadFile(cfg.ServiceAccountJSONPath)
		if err != nil {
			return nil, fmt.Errorf("read service account key: %w", err)
		}
		jwtCfg, err := google.JWTConfigFromJSON(raw, spreadsheetScope)
		if err != nil {
			return nil, fmt.Errorf("parse service account key: %w", err)
		}
		opts = append(opts, option.WithTokenSource(jwtCfg.TokenSource(ctx)))
	case cfg.ServiceAccountEmail != "" && cfg.ServiceAccountKey != "":
		jwtCfg := &jwt.Config{
			Email:      cfg.ServiceAccountEmail,
			PrivateKey: []byte(strings.ReplaceAll(cfg.ServiceAccountKey, `\n`, "\n")),
			Scopes:     []string{spreadsheetScope},
			TokenURL:   google.JWTTokenURL,
		}
		opts = append(opts, option.WithTokenSource(jwtCfg.TokenSource(ctx)))
	default:
		return nil, nil
	}

	svc, err := sheetsapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init sheets service: %w", err)
	}

	return &GoogleClient{svc: svc, spreadsheetID: cfg.SpreadsheetID}, nil
}

// TabTitles returns the titles of all tabs in the spreadsheet.
func (c *GoogleClient) TabTitles(ctx context.Context) ([]string, error) {
	meta, err := c.svc.Spreadsheets.Get(c.spreadsheetID).
		Fields("sheets.properties.title").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get spreadsheet metadata: %w", err)
	}

	titles := make([]string, 0, len(meta.Sheets))
	for _, sheet := range meta.Sheets {
		if sheet.Properties != nil && sheet.Properties.Title != "" {
			titles = append(titles, sheet.Properties.Title)
		}
	}
	return titles, nil
}

// AddTabs creates the named tabs in a single batch update.
func (c *GoogleClient) AddTabs(ctx context.Context, titles []string) error {
	if len(titles) == 0 {
		return nil
	}

	requests := make([]*sheetsapi.Request, 0, len(titles))
	for _, title := range titles {
		requests = append(requests, &sheetsapi.Request{
			AddSheet: &sheetsapi.AddSheetRequest{
				Properties: &sheetsapi.SheetProperties{Title: title},
			},
		})
	}

	_, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, &sheetsapi.BatchUpdateSpreadsheetRequest{
		Requests: requests,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("add tabs: %w", err)
	}
	return nil
}

// Read returns the cell values of an A1 range as strings.
func (c *GoogleClient) Read(ctx context.Context, rangeA1 string) ([][]string, error) {
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rangeA1).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read range %s: %w", rangeA1, err)
	}

	rows := make([][]string, 0, len(resp.Values))
	for _, raw := range resp.Values {
		row := make([]string, 0, len(raw))
		for _, cell := range raw {
			if cell == nil {
				row = append(row, "")
				continue
			}
			row = append(row, fmt.Sprint(cell))
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Write replaces the cell values of an A1 range using raw input semantics.
func (c *GoogleClient) Write(ctx context.Context, rangeA1 string, values [][]string) error {
	converted := make([][]interface{}, 0, len(values))
	for _, row := range values {
		cells := make([]interface{}, 0, len(row))
		for _, cell := range row {
			cells = append(cells, cell)
		}
		converted = append(converted, cells)
	}

	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rangeA1, &sheetsapi.ValueRange{
		Values: converted,
	}).ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("write range %s: %w", rangeA1, err)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// GoogleValues adapts the Sheets v4 API to SheetValues.
type GoogleValues struct {
	svc           *sheets.Service
	spreadsheetID string
}

var _ SheetValues = (*GoogleValues)(nil)

// NewGoogleValues authorises with a service-account credentials file.
func NewGoogleValues(ctx context.Context, spreadsheetID, credentialsFile string) (*GoogleValues, error) {
	svc, err := sheets.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	return &GoogleValues{svc: svc, spreadsheetID: spreadsheetID}, nil
}

// EnsureSheet adds the worksheet when the spreadsheet does not have it yet.
func (g *GoogleValues) EnsureSheet(ctx context.Context, title string) error {
	spreadsheet, err := g.svc.Spreadsheets.Get(g.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("get spreadsheet: %w", err)
	}

	for _, sh := range spreadsheet.Sheets {
		if sh.Properties != nil && sh.Properties.Title == title {
			return nil
		}
	}

	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{
				Properties: &sheets.SheetProperties{Title: title},
			},
		}},
	}
	if _, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("add worksheet %s: %w", title, err)
	}

	return nil
}

func (g *GoogleValues) Get(ctx context.Context, rng string) ([][]any, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", rng, err)
	}
	return resp.Values, nil
}

func (g *GoogleValues) Append(ctx context.Context, rng string, rows [][]any) error {
	_, err := g.svc.Spreadsheets.Values.
		Append(g.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append %s: %w", rng, err)
	}
	return nil
}

func (g *GoogleValues) Update(ctx context.Context, rng string, rows [][]any) error {
	_, err := g.svc.Spreadsheets.Values.
		Update(g.spreadsheetID, rng, &sheets.ValueRange{Values: rows}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update %s: %w", rng, err)
	}
	return nil
}

// Package sheet reads and writes the contacts tab of a Google spreadsheet.
package sheet

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/LeventeLantos/loyalty-outreach/internal/model"
)

type Client struct {
	svc           *sheets.Service
	spreadsheetID string
	tab           string
}

// New builds a client from explicit API options. Production code uses
// NewWithCredentials; tests point the options at a fake endpoint.
func New(ctx context.Context, spreadsheetID, tab string, opts ...option.ClientOption) (*Client, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("sheet: create service: %w", err)
	}
	return &Client{svc: svc, spreadsheetID: spreadsheetID, tab: tab}, nil
}

// NewWithCredentials authenticates with a service account JSON document.
func NewWithCredentials(ctx context.Context, spreadsheetID, tab string, credentialsJSON []byte) (*Client, error) {
	return New(ctx, spreadsheetID, tab,
		option.WithCredentialsJSON(credentialsJSON),
		option.WithScopes(sheets.SpreadsheetsScope),
	)
}

// ReadRows returns every row of the tab in the A:Z range, header included.
func (c *Client) ReadRows(ctx context.Context) ([][]string, error) {
	rng, err := ColumnRange(c.tab, 0, model.MaxColumns-1)
	if err != nil {
		return nil, err
	}
	resp, err := c.svc.Spreadsheets.Values.
		Get(c.spreadsheetID, rng).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("sheet: read %s: %w", c.tab, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, raw := range resp.Values {
		row := make([]string, len(raw))
		for j, v := range raw {
			if s, ok := v.(string); ok {
				row[j] = s
			} else if v != nil {
				row[j] = fmt.Sprint(v)
			}
		}
		rows[i] = row
	}
	return rows, nil
}

// UpdateCells writes all cells of one row in a single request.
func (c *Client) UpdateCells(ctx context.Context, row int, cells ...model.CellUpdate) error {
	if len(cells) == 0 {
		return nil
	}

	data := make([]*sheets.ValueRange, 0, len(cells))
	for _, cell := range cells {
		a1, err := CellRef(c.tab, row, cell.Column)
		if err != nil {
			return err
		}
		data = append(data, &sheets.ValueRange{
			Range:  a1,
			Values: [][]interface{}{{cell.Value}},
		})
	}

	_, err := c.svc.Spreadsheets.Values.BatchUpdate(c.spreadsheetID, &sheets.BatchUpdateValuesRequest{
		ValueInputOption: "RAW",
		Data:             data,
	}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("sheet: update row %d: %w", row, err)
	}
	return nil
}

// ColumnLetter converts a 0-based column index in A..Z to its letter.
func ColumnLetter(col int) (string, error) {
	if col < 0 || col >= model.MaxColumns {
		return "", fmt.Errorf("sheet: column %d outside A:Z", col)
	}
	return string(rune('A' + col)), nil
}

// CellRef returns the A1 reference of a cell, e.g. Sheet1!I5.
func CellRef(tab string, row, col int) (string, error) {
	if row < 1 {
		return "", fmt.Errorf("sheet: row %d must be >= 1", row)
	}
	letter, err := ColumnLetter(col)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s!%s%d", quoteTab(tab), letter, row), nil
}

// ColumnRange returns a whole-column range such as Sheet1!A:Z.
func ColumnRange(tab string, from, to int) (string, error) {
	if from > to {
		return "", fmt.Errorf("sheet: column range %d:%d is reversed", from, to)
	}
	a, err := ColumnLetter(from)
	if err != nil {
		return "", err
	}
	b, err := ColumnLetter(to)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s!%s:%s", quoteTab(tab), a, b), nil
}

func quoteTab(tab string) string {
	plain := tab != ""
	for _, r := range tab {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			plain = false
			break
		}
	}
	if plain {
		return tab
	}
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

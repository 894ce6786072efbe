package model

import (
	"fmt"
	"strings"
	"time"
)

// Column positions in the contacts tab (0-indexed, A = 0).
const (
	ColFullName = iota
	ColFirstName
	ColEmail
	ColPhone
	ColMoveDate
	ColMovers
	ColRate
	ColContactID
	ColStatus
	ColDateSent
)

// MaxColumns is the width of the A:Z read range.
const MaxColumns = 26

// HeaderRows is the number of leading rows that never hold contacts.
const HeaderRows = 1

const defaultGreeting = "there"

type Contact struct {
	// Row is the sheet row number; the header is row 1.
	Row int

	FullName  string
	FirstName string
	Email     string
	Phone     string
	MoveDate  string
	Movers    string
	Rate      string
	ContactID string

	Status Status
}

// Greeting is the name used in message templates.
func (c Contact) Greeting() string {
	if c.FirstName == "" {
		return defaultGreeting
	}
	return c.FirstName
}

// DecodeRow builds a Contact from the raw cells of one sheet row. Missing
// trailing cells read as empty.
func DecodeRow(row int, cells []string, loc *time.Location) (Contact, error) {
	if row <= HeaderRows {
		return Contact{}, fmt.Errorf("row %d: header rows hold no contact", row)
	}
	if len(cells) > MaxColumns {
		return Contact{}, fmt.Errorf("row %d: %d cells exceeds %d columns", row, len(cells), MaxColumns)
	}

	cell := func(i int) string {
		if i < len(cells) {
			return strings.TrimSpace(cells[i])
		}
		return ""
	}

	return Contact{
		Row:       row,
		FullName:  cell(ColFullName),
		FirstName: cell(ColFirstName),
		Email:     cell(ColEmail),
		Phone:     cell(ColPhone),
		MoveDate:  cell(ColMoveDate),
		Movers:    cell(ColMovers),
		Rate:      cell(ColRate),
		ContactID: cell(ColContactID),
		Status:    ParseStatus(cell(ColStatus), cell(ColDateSent), loc),
	}, nil
}

// DecodeSheet decodes every data row of a tab, skipping the header. Rows come
// back in sheet order.
func DecodeSheet(values [][]string, loc *time.Location) ([]Contact, error) {
	if len(values) <= HeaderRows {
		return nil, nil
	}

	contacts := make([]Contact, 0, len(values)-HeaderRows)
	for i := HeaderRows; i < len(values); i++ {
		c, err := DecodeRow(i+1, values[i], loc)
		if err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, nil
}

// CellUpdate is one cell write within a contact row.
type CellUpdate struct {
	Column int
	Value  string
}

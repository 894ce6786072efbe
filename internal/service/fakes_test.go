package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/LeventeLantos/loyalty-outreach/internal/model"
	"github.com/LeventeLantos/loyalty-outreach/internal/templates"
)

var testNow = time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)

var header = []string{"Full name", "First name", "Email", "Phone", "Move date", "Movers", "Rate", "Contact ID", "Status", "Date Email Sent"}

func row(first, contactID, status, dateSent string) []string {
	return []string{first + " Doe", first, "", "", "", "", "", contactID, status, dateSent}
}

type fakeSheet struct {
	mu      sync.Mutex
	rows    [][]string
	readErr error
	// writeErrs fails writes to the given sheet rows.
	writeErrs map[int]error
	writes    []sheetWrite
	reads     int
}

type sheetWrite struct {
	Row   int
	Cells []model.CellUpdate
}

func newFakeSheet(rows ...[]string) *fakeSheet {
	all := append([][]string{header}, rows...)
	return &fakeSheet{rows: all, writeErrs: map[int]error{}}
}

func (f *fakeSheet) ReadRows(ctx context.Context) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.reads++
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([][]string, len(f.rows))
	for i, r := range f.rows {
		out[i] = append([]string(nil), r...)
	}
	return out, nil
}

func (f *fakeSheet) UpdateCells(ctx context.Context, row int, cells ...model.CellUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := f.writeErrs[row]; err != nil {
		return err
	}
	f.writes = append(f.writes, sheetWrite{Row: row, Cells: cells})

	r := f.rows[row-1]
	for _, c := range cells {
		for len(r) <= c.Column {
			r = append(r, "")
		}
		r[c.Column] = c.Value
	}
	f.rows[row-1] = r
	return nil
}

func (f *fakeSheet) cell(row, col int) string {
	f.mu.Lock()
	defer f.mu.Unlock()

	r := f.rows[row-1]
	if col < len(r) {
		return r[col]
	}
	return ""
}

type fakeClient struct {
	mu    sync.Mutex
	sent  []model.OutboundMessage
	fails map[string]error
	// afterSend runs once the message counts as delivered.
	afterSend func()
}

func (f *fakeClient) Send(ctx context.Context, msg model.OutboundMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sent = append(f.sent, msg)
	if err := f.fails[msg.ContactID]; err != nil {
		return "", err
	}
	if f.afterSend != nil {
		f.afterSend()
	}
	return "remote-" + msg.ContactID, nil
}

func (f *fakeClient) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeNotifier struct {
	messages []string
	err      error
}

func (f *fakeNotifier) Notify(ctx context.Context, message string) error {
	f.messages = append(f.messages, message)
	return f.err
}

type fakeRecorder struct {
	runs []model.RunSummary
	err  error
}

func (f *fakeRecorder) SaveRun(ctx context.Context, s model.RunSummary) error {
	f.runs = append(f.runs, s)
	return f.err
}

var errProvider = errors.New("failed to send: unexpected status code: 400")

type harness struct {
	sheet    *fakeSheet
	client   *fakeClient
	notifier *fakeNotifier
	proc     *Processor
}

func newHarness(sheet *fakeSheet, batchSize int) *harness {
	h := &harness{
		sheet:    sheet,
		client:   &fakeClient{fails: map[string]error{}},
		notifier: &fakeNotifier{},
	}
	h.proc = NewProcessor(h.sheet, h.client, h.notifier, templates.Default(), Options{
		BatchSize: batchSize,
		Delay:     24 * time.Hour,
		Location:  time.UTC,
	}).
		WithClock(func() time.Time { return testNow }).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return h
}

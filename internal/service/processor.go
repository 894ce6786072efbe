package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/LeventeLantos/loyalty-outreach/internal/cache"
	"github.com/LeventeLantos/loyalty-outreach/internal/model"
	"github.com/LeventeLantos/loyalty-outreach/internal/templates"
)

var ErrRunInProgress = errors.New("another run is in progress")

type Sheet interface {
	ReadRows(ctx context.Context) ([][]string, error)
	UpdateCells(ctx context.Context, row int, cells ...model.CellUpdate) error
}

type SendClient interface {
	Send(ctx context.Context, msg model.OutboundMessage) (remoteMessageID string, err error)
}

type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type RunRecorder interface {
	SaveRun(ctx context.Context, s model.RunSummary) error
}

type Options struct {
	BatchSize int
	Delay     time.Duration
	// Location is used for sheet dates written without a zone.
	Location *time.Location
}

// Processor advances the outreach pipeline by one stage per Run.
type Processor struct {
	sheet    Sheet
	client   SendClient
	notifier Notifier
	tmpl     *templates.Set

	batchSize int
	delay     time.Duration
	loc       *time.Location

	ledger   cache.SendLedger
	lock     cache.RunLock
	recorder RunRecorder
	limiter  *rate.Limiter
	now      func() time.Time
	log      *slog.Logger

	// mu keeps runs inside one process from overlapping.
	mu sync.Mutex
}

func NewProcessor(sheet Sheet, client SendClient, notifier Notifier, tmpl *templates.Set, opts Options) *Processor {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Processor{
		sheet:     sheet,
		client:    client,
		notifier:  notifier,
		tmpl:      tmpl,
		batchSize: opts.BatchSize,
		delay:     opts.Delay,
		loc:       opts.Location,
		ledger:    cache.Nop{},
		lock:      cache.Nop{},
		now:       time.Now,
		log:       slog.Default(),
	}
}

func (p *Processor) WithLedger(l cache.SendLedger) *Processor {
	p.ledger = l
	return p
}

func (p *Processor) WithRunLock(l cache.RunLock) *Processor {
	p.lock = l
	return p
}

func (p *Processor) WithRecorder(r RunRecorder) *Processor {
	p.recorder = r
	return p
}

func (p *Processor) WithLimiter(l *rate.Limiter) *Processor {
	p.limiter = l
	return p
}

func (p *Processor) WithClock(now func() time.Time) *Processor {
	p.now = now
	return p
}

func (p *Processor) WithLogger(l *slog.Logger) *Processor {
	p.log = l
	return p
}

// Run performs one invocation: advance the active SMS batch if there is one,
// otherwise start a new Email batch. Row-level problems never fail the run;
// the returned error covers reading the sheet, the run lock and cancellation.
func (p *Processor) Run(ctx context.Context, dryRun bool) (model.RunSummary, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	summary := model.RunSummary{
		RunID:     uuid.NewString(),
		Branch:    model.BranchNone,
		DryRun:    dryRun,
		StartedAt: p.now(),
	}
	log := p.log.With("run_id", summary.RunID)
	log.Info("starting loyalty flow", "dry_run", dryRun)

	if !dryRun {
		if err := p.lock.Acquire(ctx, summary.RunID); err != nil {
			summary.FinishedAt = p.now()
			if errors.Is(err, cache.ErrLockHeld) {
				summary.Branch = model.BranchLocked
				log.Warn("another run holds the lock, skipping")
				return summary, ErrRunInProgress
			}
			return summary, err
		}
		defer func() {
			if err := p.lock.Release(context.WithoutCancel(ctx), summary.RunID); err != nil {
				log.Error("failed to release run lock", "error", err)
			}
		}()
	}

	err := p.run(ctx, log, &summary)
	summary.FinishedAt = p.now()
	p.record(ctx, log, summary)
	return summary, err
}

func (p *Processor) run(ctx context.Context, log *slog.Logger, summary *model.RunSummary) error {
	rows, err := p.sheet.ReadRows(ctx)
	if err != nil {
		return fmt.Errorf("read contacts: %w", err)
	}
	contacts, err := model.DecodeSheet(rows, p.loc)
	if err != nil {
		return fmt.Errorf("decode contacts: %w", err)
	}
	if len(contacts) == 0 {
		log.Info("no rows found")
		return nil
	}

	var message string
	if active := activeBatch(contacts); len(active) > 0 {
		summary.Branch = model.BranchSMS
		log.Info("found active batch", "contacts", len(active))
		if err := p.eachRow(ctx, active, summary, func(c model.Contact) (model.RowResult, error) {
			return p.advanceRow(ctx, log.With("row", c.Row), c, summary.DryRun)
		}); err != nil {
			return err
		}
		message = fmt.Sprintf("Completed SMS batch for %d contacts.", summary.Processed)
	} else {
		log.Info("no active batch found, starting new batch")
		batch := selectNewBatch(contacts, p.batchSize)
		if len(batch) == 0 {
			log.Info("no new contacts found to process")
			return nil
		}
		summary.Branch = model.BranchEmail
		log.Info("targeting new contacts", "contacts", len(batch))
		if err := p.eachRow(ctx, batch, summary, func(c model.Contact) (model.RowResult, error) {
			return p.startRow(ctx, log.With("row", c.Row), c, summary.DryRun)
		}); err != nil {
			return err
		}
		message = fmt.Sprintf("Started new batch. Sent Email to %d contacts.", summary.Processed)
	}

	if summary.Processed > 0 {
		summary.Notification = message
		log.Info(message)
		if !summary.DryRun {
			if err := p.notifier.Notify(ctx, message); err != nil {
				log.Error("failed to send notification", "error", err)
			}
		}
	}
	return nil
}

func (p *Processor) eachRow(ctx context.Context, contacts []model.Contact, summary *model.RunSummary, fn func(model.Contact) (model.RowResult, error)) error {
	for _, c := range contacts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted: %w", err)
		}
		res, err := fn(c)
		if err != nil {
			return err
		}
		summary.Record(res)
	}
	return nil
}

// advanceRow handles one row of the active batch (the SMS stage).
func (p *Processor) advanceRow(ctx context.Context, log *slog.Logger, c model.Contact, dryRun bool) (model.RowResult, error) {
	res := model.RowResult{Row: c.Row, ContactID: c.ContactID, Channel: model.ChannelSMS}

	if c.ContactID == "" {
		log.Info("missing contact id, skipping")
		return skipped(res, "missing contact id"), nil
	}

	var sentAt time.Time
	switch s := c.Status.(type) {
	case model.EmailSent:
		sentAt = s.SentAt
	case model.EmailSentUndated:
		if s.RawDate == "" {
			log.Info("status is 'Email Sent' but no date found, skipping")
			return skipped(res, "missing date sent"), nil
		}
		log.Info("invalid date format, skipping", "date_sent", s.RawDate)
		return skipped(res, fmt.Sprintf("invalid date %q", s.RawDate)), nil
	default:
		return skipped(res, "not in active batch"), nil
	}

	elapsed := p.now().Sub(sentAt)
	if elapsed < p.delay {
		log.Info("delay not reached, waiting", "elapsed", elapsed.Round(time.Second).String())
		res.Outcome = model.OutcomeWaiting
		return res, nil
	}

	body, err := p.tmpl.SMS(templates.Data{FirstName: c.Greeting()})
	if err != nil {
		log.Error("failed to render sms", "error", err)
		return skipped(res, err.Error()), nil
	}

	log.Info("sending SMS", "first_name", c.Greeting(), "contact_id", c.ContactID)
	msg := model.OutboundMessage{ContactID: c.ContactID, Channel: model.ChannelSMS, Body: body}

	return p.deliver(ctx, log, c, msg, dryRun, model.LabelSMSFailed, func() []model.CellUpdate {
		return []model.CellUpdate{{Column: model.ColStatus, Value: model.LabelDone}}
	})
}

// startRow handles one row of a new batch (the Email stage).
func (p *Processor) startRow(ctx context.Context, log *slog.Logger, c model.Contact, dryRun bool) (model.RowResult, error) {
	res := model.RowResult{Row: c.Row, ContactID: c.ContactID, Channel: model.ChannelEmail}

	if c.ContactID == "" {
		log.Info("missing contact id, skipping")
		return skipped(res, "missing contact id"), nil
	}

	body, err := p.tmpl.Email(templates.Data{FirstName: c.Greeting()})
	if err != nil {
		log.Error("failed to render email", "error", err)
		return skipped(res, err.Error()), nil
	}

	log.Info("sending Email", "first_name", c.Greeting(), "contact_id", c.ContactID)
	msg := model.OutboundMessage{
		ContactID: c.ContactID,
		Channel:   model.ChannelEmail,
		Subject:   p.tmpl.EmailSubject(),
		Body:      body,
	}

	return p.deliver(ctx, log, c, msg, dryRun, model.LabelEmailFailed, func() []model.CellUpdate {
		return []model.CellUpdate{
			{Column: model.ColStatus, Value: model.LabelEmailSent},
			{Column: model.ColDateSent, Value: model.FormatSentAt(p.now())},
		}
	})
}

// deliver sends msg unless the ledger says it already went out, then writes
// the success cells. A rejected send marks the row with failedLabel.
func (p *Processor) deliver(
	ctx context.Context,
	log *slog.Logger,
	c model.Contact,
	msg model.OutboundMessage,
	dryRun bool,
	failedLabel string,
	successCells func() []model.CellUpdate,
) (model.RowResult, error) {
	res := model.RowResult{Row: c.Row, ContactID: c.ContactID, Channel: msg.Channel}

	if dryRun {
		res.Outcome = model.OutcomeDryRun
		return res, nil
	}

	rec, seen, err := p.ledger.LookupSent(ctx, c.ContactID, msg.Channel)
	if err != nil {
		log.Warn("send ledger lookup failed", "error", err)
	}

	// Write-back after a send attempt ignores cancellation.
	wctx := context.WithoutCancel(ctx)

	if seen {
		log.Warn("already sent, retrying status write only", "remote_message_id", rec.RemoteMessageID, "sent_at", rec.SentAt)
		res.Detail = "send already recorded"
	} else {
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return res, fmt.Errorf("run interrupted: %w", err)
			}
		}

		remoteID, err := p.client.Send(ctx, msg)
		if err != nil {
			if ctx.Err() != nil {
				return res, fmt.Errorf("run interrupted: %w", ctx.Err())
			}
			log.Error("failed to send", "channel", msg.Channel, "error", err)
			res.Outcome = model.OutcomeFailed
			res.Detail = err.Error()
			if werr := p.sheet.UpdateCells(wctx, c.Row, model.CellUpdate{Column: model.ColStatus, Value: failedLabel}); werr != nil {
				log.Error("failed to mark row", "status", failedLabel, "error", werr)
				res.WriteError = werr.Error()
			} else {
				log.Info("marked row to unblock pipeline", "status", failedLabel)
			}
			return res, nil
		}

		if err := p.ledger.StoreSent(wctx, c.ContactID, msg.Channel, remoteID, p.now()); err != nil {
			log.Warn("failed to record send in ledger", "error", err)
		}
	}

	res.Outcome = model.OutcomeSent
	if err := p.sheet.UpdateCells(wctx, c.Row, successCells()...); err != nil {
		log.Error("failed to update row after send", "error", err)
		res.WriteError = err.Error()
	}
	return res, nil
}

func (p *Processor) record(ctx context.Context, log *slog.Logger, s model.RunSummary) {
	if p.recorder == nil {
		return
	}
	if err := p.recorder.SaveRun(context.WithoutCancel(ctx), s); err != nil {
		log.Error("failed to record run", "error", err)
	}
}

func skipped(res model.RowResult, detail string) model.RowResult {
	res.Outcome = model.OutcomeSkipped
	res.Detail = detail
	return res
}

package model

import (
	"errors"
	"strings"
	"time"
)

// Raw status labels as they appear in the sheet.
const (
	LabelNew         = "New"
	LabelEmailSent   = "Email Sent"
	LabelDone        = "Done"
	LabelEmailFailed = "Email Failed"
	LabelSMSFailed   = "SMS Failed"
)

// Status is the closed set of outreach states a contact row can be in.
type Status interface {
	Label() string
	isStatus()
}

// New is an untouched row: status cell empty or "New".
type New struct{}

// EmailSent is a row waiting for its SMS step.
type EmailSent struct {
	SentAt time.Time
}

// EmailSentUndated says "Email Sent" but carries no usable date. It still
// counts as part of the active batch and is never advanced automatically.
type EmailSentUndated struct {
	RawDate string
}

type Done struct{}

type EmailFailed struct{}

type SMSFailed struct{}

// Unrecognized holds any other status text. Such rows are left alone.
type Unrecognized struct {
	Raw string
}

func (New) Label() string              { return LabelNew }
func (EmailSent) Label() string        { return LabelEmailSent }
func (EmailSentUndated) Label() string { return LabelEmailSent }
func (Done) Label() string             { return LabelDone }
func (EmailFailed) Label() string      { return LabelEmailFailed }
func (SMSFailed) Label() string        { return LabelSMSFailed }
func (u Unrecognized) Label() string   { return u.Raw }

func (New) isStatus()              {}
func (EmailSent) isStatus()        {}
func (EmailSentUndated) isStatus() {}
func (Done) isStatus()             {}
func (EmailFailed) isStatus()      {}
func (SMSFailed) isStatus()        {}
func (Unrecognized) isStatus()     {}

var ErrMissingDate = errors.New("date sent is empty")

// sentAtLayouts are tried in order. Layouts without a zone are read in the
// caller's location.
var sentAtLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseStatus maps the raw status and date cells to a Status. Comparison is
// exact after trimming surrounding whitespace.
func ParseStatus(rawStatus, rawDate string, loc *time.Location) Status {
	switch strings.TrimSpace(rawStatus) {
	case "", LabelNew:
		return New{}
	case LabelEmailSent:
		sentAt, err := ParseSentAt(rawDate, loc)
		if err != nil {
			return EmailSentUndated{RawDate: strings.TrimSpace(rawDate)}
		}
		return EmailSent{SentAt: sentAt}
	case LabelDone:
		return Done{}
	case LabelEmailFailed:
		return EmailFailed{}
	case LabelSMSFailed:
		return SMSFailed{}
	default:
		return Unrecognized{Raw: strings.TrimSpace(rawStatus)}
	}
}

// ParseSentAt parses an ISO-8601 timestamp as written by this job or by hand.
func ParseSentAt(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrMissingDate
	}
	if loc == nil {
		loc = time.Local
	}

	var firstErr error
	for _, layout := range sentAtLayouts {
		t, err := time.ParseInLocation(layout, raw, loc)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// FormatSentAt renders the value written to the date column.
func FormatSentAt(t time.Time) string {
	return t.Format(time.RFC3339)
}

// IsActive reports whether the row belongs to the in-flight batch.
func IsActive(s Status) bool {
	switch s.(type) {
	case EmailSent, EmailSentUndated:
		return true
	}
	return false
}

// IsUntouched reports whether the row is eligible for a new batch.
func IsUntouched(s Status) bool {
	_, ok := s.(New)
	return ok
}

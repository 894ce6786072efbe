package cache

import (
	"context"
	"errors"
	"time"

	"github.com/LeventeLantos/loyalty-outreach/internal/model"
)

var ErrLockHeld = errors.New("run lock held by another process")

// SentRecord is what the ledger remembers about an accepted send.
type SentRecord struct {
	RemoteMessageID string    `json:"remoteMessageId"`
	SentAt          time.Time `json:"sentAt"`
}

// SendLedger remembers which contact/channel pairs the provider already
// accepted, so a failed sheet write never turns into a second send.
type SendLedger interface {
	StoreSent(ctx context.Context, contactID string, ch model.Channel, remoteMessageID string, sentAt time.Time) error
	LookupSent(ctx context.Context, contactID string, ch model.Channel) (SentRecord, bool, error)
}

// RunLock keeps two runs from working the same sheet at once.
type RunLock interface {
	Acquire(ctx context.Context, owner string) error
	Release(ctx context.Context, owner string) error
}

// Nop satisfies both interfaces when Redis is not configured.
type Nop struct{}

func (Nop) StoreSent(context.Context, string, model.Channel, string, time.Time) error { return nil }

func (Nop) LookupSent(context.Context, string, model.Channel) (SentRecord, bool, error) {
	return SentRecord{}, false, nil
}

func (Nop) Acquire(context.Context, string) error { return nil }
func (Nop) Release(context.Context, string) error { return nil }

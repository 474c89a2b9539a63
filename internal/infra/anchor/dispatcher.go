package anchor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"zkpad/internal/domain"
)

const (
	backoffBase    = 500 * time.Millisecond
	backoffFactor  = 2
	maxAttempts    = 5
	maxElapsed     = 30 * time.Second
	attemptTimeout = 30 * time.Second
)

// Dispatcher submits anchor notes through a ledger adapter, retrying
// transient failures with exponential backoff. Permanent failures are
// returned for recording; the dispatcher never retries them.
type Dispatcher struct {
	Adapter domain.LedgerAdapter
	Log     *logrus.Entry

	// Sleep is swappable for tests.
	Sleep func(time.Duration)
}

func NewDispatcher(adapter domain.LedgerAdapter, log *logrus.Entry) *Dispatcher {
	return &Dispatcher{Adapter: adapter, Log: log, Sleep: time.Sleep}
}

// Submit returns the adapter's record on success. On failure the record
// carries the error string and the returned error classifies it.
func (d *Dispatcher) Submit(ctx context.Context, attestationID string, note Note) (domain.AnchorRecord, error) {
	if d.Adapter == nil {
		return domain.AnchorRecord{}, fmt.Errorf("%w: no ledger adapter configured", domain.ErrAnchorPermanent)
	}

	start := time.Now()
	delay := backoffBase
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		record, err := d.Adapter.Submit(attemptCtx, note.Canonical)
		cancel()
		if err == nil {
			record.NoteDigest = note.DigestHex
			if record.Chain == "" {
				record.Chain = d.Adapter.ChainName()
			}
			return record, nil
		}
		lastErr = err

		if errors.Is(err, domain.ErrAnchorPermanent) {
			return failedRecord(d.Adapter.ChainName(), note, err), err
		}
		if ctx.Err() != nil {
			lastErr = fmt.Errorf("%w: %v", domain.ErrAnchorPermanent, ctx.Err())
			return failedRecord(d.Adapter.ChainName(), note, lastErr), lastErr
		}

		d.logf(attestationID, attempt, err)
		if attempt == maxAttempts || time.Since(start)+delay > maxElapsed {
			break
		}
		d.sleep(delay)
		delay *= backoffFactor
	}

	err := fmt.Errorf("%w: retries exhausted: %v", domain.ErrAnchorPermanent, lastErr)
	return failedRecord(d.Adapter.ChainName(), note, err), err
}

func failedRecord(chain string, note Note, err error) domain.AnchorRecord {
	return domain.AnchorRecord{
		Chain:      chain,
		NoteDigest: note.DigestHex,
		Error:      err.Error(),
	}
}

func (d *Dispatcher) sleep(delay time.Duration) {
	if d.Sleep != nil {
		d.Sleep(delay)
		return
	}
	time.Sleep(delay)
}

func (d *Dispatcher) logf(attestationID string, attempt int, err error) {
	if d.Log == nil {
		return
	}
	d.Log.WithFields(logrus.Fields{
		"claim_id": attestationID,
		"attempt":  attempt,
	}).WithError(err).Warn("anchor submission failed, will retry")
}

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"zkpad/internal/domain"
	"zkpad/internal/infra/anchor"
	"zkpad/internal/infra/webhook"
	"zkpad/internal/usecase"
)

// Engine drives attestations through the pipeline states on a bounded
// worker pool. Each worker processes one attestation end to end, pausing
// at every state boundary, which is also where cancellation takes effect.
type Engine struct {
	Store     domain.StateStore
	Proof     *usecase.BuildProof
	Assembler *usecase.AssemblePackage
	Anchor    *anchor.Dispatcher
	Webhooks  *webhook.Dispatcher
	Log       *logrus.Entry
	Clock     func() time.Time
	FastDemo  bool

	queue chan string
	stop  chan struct{}
	wg    sync.WaitGroup
	once  sync.Once
}

const (
	defaultWorkers = 8
	queueDepth     = 512
	demoStepPause  = 50 * time.Millisecond
	sweepInterval  = time.Minute
)

func NewEngine(store domain.StateStore, proof *usecase.BuildProof, assembler *usecase.AssemblePackage, anchorDispatcher *anchor.Dispatcher, webhooks *webhook.Dispatcher, log *logrus.Entry) *Engine {
	return &Engine{
		Store:     store,
		Proof:     proof,
		Assembler: assembler,
		Anchor:    anchorDispatcher,
		Webhooks:  webhooks,
		Log:       log,
		Clock:     time.Now,
		queue:     make(chan string, queueDepth),
		stop:      make(chan struct{}),
	}
}

// Start launches the worker pool and the two singleton sweepers.
func (e *Engine) Start(workers int) {
	if workers <= 0 {
		workers = defaultWorkers
	}
	for i := 0; i < workers; i++ {
		e.wg.Add(1)
		go e.worker()
	}
	e.wg.Add(2)
	go e.runSweeper(e.sweepExpired)
	go e.runSweeper(e.sweepIdempotency)
}

func (e *Engine) Close() {
	e.once.Do(func() { close(e.stop) })
	e.wg.Wait()
}

// Enqueue schedules one attestation for background processing.
func (e *Engine) Enqueue(id string) {
	select {
	case e.queue <- id:
	case <-e.stop:
	}
}

// Cancel flags a non-terminal attestation; the flag is observed at the
// next step boundary. In-flight crypto and anchor submissions complete
// first.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	_, err := e.Store.UpdateWith(ctx, id, func(a *domain.Attestation) error {
		if a.State.Terminal() {
			return domain.ErrInvalidTransition
		}
		a.RequestCancel()
		return nil
	})
	return err
}

// Revoke moves a valid attestation to revoked and records who and why.
func (e *Engine) Revoke(ctx context.Context, id, reason, revokedBy string) (*domain.Attestation, error) {
	now := e.now()
	updated, err := e.Store.UpdateWith(ctx, id, func(a *domain.Attestation) error {
		if err := a.Transition(domain.StateRevoked, now, reason); err != nil {
			return err
		}
		a.Revocation = &domain.RevocationRecord{
			RevokedAt: now,
			Reason:    reason,
			RevokedBy: revokedBy,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.notify(updated)
	return updated, nil
}

func (e *Engine) worker() {
	defer e.wg.Done()
	for {
		select {
		case <-e.stop:
			return
		case id := <-e.queue:
			e.Process(context.Background(), id)
		}
	}
}

// Process runs one attestation from its current state to a terminal one.
func (e *Engine) Process(ctx context.Context, id string) {
	a, err := e.Store.Get(ctx, id)
	if err != nil {
		e.logger().WithField("claim_id", id).WithError(err).Error("attestation vanished before processing")
		return
	}
	if a.State.Terminal() {
		return
	}
	if e.cancelledAtBoundary(ctx, id) {
		return
	}

	if a.State == domain.StateComputingCommitment {
		if a, err = e.advance(ctx, id, domain.StateGeneratingProof, ""); err != nil {
			return
		}
	}
	e.pause()

	if a.State == domain.StateGeneratingProof {
		if a = e.generateProof(ctx, a); a == nil {
			return
		}
	}
	e.pause()
	if e.cancelledAtBoundary(ctx, id) {
		return
	}

	if a.State == domain.StateAssemblingPackage {
		if a = e.assemblePackage(ctx, a); a == nil {
			return
		}
	}
	e.pause()

	if a.State == domain.StateAnchoring {
		e.anchorPackage(ctx, a)
	}
}

func (e *Engine) generateProof(ctx context.Context, a *domain.Attestation) *domain.Attestation {
	proof, err := e.Proof.Execute(a.Evidence, a.Interpret, a.Control, a.Metadata.Policy)
	if err != nil {
		e.fail(ctx, a.ID, domain.StateFailedProof, err)
		return nil
	}
	updated, err := e.update(ctx, a.ID, domain.StateAssemblingPackage, "", func(next *domain.Attestation) {
		next.Proof = proof
	})
	if err != nil {
		return nil
	}
	return updated
}

func (e *Engine) assemblePackage(ctx context.Context, a *domain.Attestation) *domain.Attestation {
	pkg, err := e.Assembler.Execute(a)
	if err != nil {
		e.fail(ctx, a.ID, domain.StateFailed, err)
		return nil
	}
	next := domain.StateValid
	if e.Anchor != nil {
		next = domain.StateAnchoring
	}
	// A cancel requested while the package was being assembled is observed
	// here, before the attestation can reach valid or start anchoring.
	now := e.now()
	updated, err := e.Store.UpdateWith(ctx, a.ID, func(n *domain.Attestation) error {
		n.Package = pkg
		if n.CancelRequested() {
			return n.ForceFail(now, "cancelled")
		}
		return n.Transition(next, now, "")
	})
	if err != nil {
		e.logger().WithFields(logrus.Fields{"claim_id": a.ID, "to": next}).WithError(err).Error("state transition rejected")
		return nil
	}
	e.notify(updated)
	return updated
}

func (e *Engine) anchorPackage(ctx context.Context, a *domain.Attestation) {
	note, err := anchor.BuildNote(a.ID, a.Evidence.MerkleRoot, a.Package.Digest, e.now())
	if err != nil {
		e.fail(ctx, a.ID, domain.StateFailedAnchor, fmt.Errorf("%w: %v", domain.ErrAnchorPermanent, err))
		return
	}

	record, submitErr := e.Anchor.Submit(ctx, a.ID, note)

	if submitErr != nil {
		_, err = e.update(ctx, a.ID, domain.StateFailedAnchor, submitErr.Error(), func(n *domain.Attestation) {
			n.Anchor = &record
			n.ErrorReason = submitErr.Error()
		})
		if err == nil {
			e.logger().WithField("claim_id", a.ID).WithError(submitErr).Warn("anchor submission failed permanently")
		}
		return
	}

	// A mid-flight cancel lets the submission finish and records its
	// outcome, but the attestation ends failed rather than valid.
	now := e.now()
	updated, err := e.Store.UpdateWith(ctx, a.ID, func(n *domain.Attestation) error {
		n.Anchor = &record
		if n.CancelRequested() {
			return n.ForceFail(now, "cancelled")
		}
		return n.Transition(domain.StateValid, now, "")
	})
	if err != nil {
		e.logger().WithField("claim_id", a.ID).WithError(err).Error("could not finalize anchored attestation")
		return
	}
	e.notify(updated)
}

// advance transitions without payload mutation.
func (e *Engine) advance(ctx context.Context, id string, to domain.State, reason string) (*domain.Attestation, error) {
	return e.update(ctx, id, to, reason, nil)
}

func (e *Engine) update(ctx context.Context, id string, to domain.State, reason string, mutate func(*domain.Attestation)) (*domain.Attestation, error) {
	now := e.now()
	updated, err := e.Store.UpdateWith(ctx, id, func(a *domain.Attestation) error {
		if mutate != nil {
			mutate(a)
		}
		return a.Transition(to, now, reason)
	})
	if err != nil {
		e.logger().WithFields(logrus.Fields{"claim_id": id, "to": to}).WithError(err).Error("state transition rejected")
		return nil, err
	}
	e.notify(updated)
	return updated, nil
}

func (e *Engine) fail(ctx context.Context, id string, to domain.State, cause error) {
	_, err := e.update(ctx, id, to, cause.Error(), func(a *domain.Attestation) {
		a.ErrorReason = cause.Error()
	})
	if err == nil {
		e.logger().WithFields(logrus.Fields{"claim_id": id, "state": to}).WithError(cause).Warn("attestation failed")
	}
}

// cancelledAtBoundary checks the cooperative flag and, when set, force
// fails the attestation with reason cancelled.
func (e *Engine) cancelledAtBoundary(ctx context.Context, id string) bool {
	a, err := e.Store.Get(ctx, id)
	if err != nil || !a.CancelRequested() || a.State.Terminal() {
		return false
	}
	now := e.now()
	updated, err := e.Store.UpdateWith(ctx, id, func(n *domain.Attestation) error {
		if n.State.Terminal() {
			return domain.ErrInvalidTransition
		}
		return n.ForceFail(now, "cancelled")
	})
	if err != nil {
		return errors.Is(err, domain.ErrInvalidTransition)
	}
	e.notify(updated)
	return true
}

func (e *Engine) runSweeper(sweep func(context.Context)) {
	defer e.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stop:
			return
		case <-ticker.C:
			sweep(context.Background())
		}
	}
}

// sweepExpired moves valid attestations whose validity window has passed
// to expired.
func (e *Engine) sweepExpired(ctx context.Context) {
	now := e.now()
	valid, _, err := e.Store.List(ctx, domain.ListFilter{State: domain.StateValid})
	if err != nil {
		return
	}
	for _, a := range valid {
		if !now.After(a.Metadata.ValidUntil) {
			continue
		}
		updated, err := e.Store.UpdateWith(ctx, a.ID, func(n *domain.Attestation) error {
			if n.State != domain.StateValid || !now.After(n.Metadata.ValidUntil) {
				return domain.ErrInvalidTransition
			}
			return n.Transition(domain.StateExpired, now, "validity window elapsed")
		})
		if err != nil {
			continue
		}
		e.notify(updated)
	}
}

// SweepExpiredNow runs one expiry pass immediately. Demo and test hook.
func (e *Engine) SweepExpiredNow(ctx context.Context) {
	e.sweepExpired(ctx)
}

func (e *Engine) sweepIdempotency(ctx context.Context) {
	e.Store.ExpireIdempotency(ctx, e.now())
}

func (e *Engine) notify(a *domain.Attestation) {
	if a == nil || len(a.Events) == 0 {
		return
	}
	last := a.Events[len(a.Events)-1]
	e.logger().WithFields(logrus.Fields{
		"claim_id": a.ID,
		"from":     last.From,
		"to":       last.To,
	}).Info("attestation state changed")
	if e.Webhooks == nil || a.Metadata.CallbackURL == "" {
		return
	}
	e.Webhooks.Enqueue(webhook.Delivery{
		URL: a.Metadata.CallbackURL,
		Payload: webhook.Payload{
			Event:   webhook.EventStatusChanged,
			ClaimID: a.ID,
			From:    string(last.From),
			To:      string(last.To),
			At:      last.At.UTC().Format(time.RFC3339Nano),
		},
	})
}

func (e *Engine) pause() {
	if e.FastDemo {
		time.Sleep(demoStepPause)
	}
}

func (e *Engine) now() time.Time {
	if e.Clock != nil {
		return e.Clock().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) logger() *logrus.Entry {
	if e.Log != nil {
		return e.Log
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

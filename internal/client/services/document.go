package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/docsync/internal/client/client"
	"github.com/dmitrijs2005/docsync/internal/client/integrity"
	"github.com/dmitrijs2005/docsync/internal/client/models"
	"github.com/dmitrijs2005/docsync/internal/client/patch"
	"github.com/dmitrijs2005/docsync/internal/common"
	"github.com/dmitrijs2005/docsync/internal/logging"
	"github.com/dmitrijs2005/docsync/internal/metrics"
	"github.com/dmitrijs2005/docsync/internal/timex"
	"github.com/google/uuid"
)

// DocumentService edits single records of the shared document with
// optimistic concurrency: every operation reads the document, computes and
// verifies the new version, and writes it conditioned on the hash it read,
// restarting the whole cycle when the document changed in between.
type DocumentService interface {
	Update(ctx context.Context, cred client.Credential, id string, changes models.Changes) (Result, error)
	Delete(ctx context.Context, cred client.Credential, id string) (Result, error)
	Get(ctx context.Context, cred client.Credential, id string) (models.Record, error)
	List(ctx context.Context, cred client.Credential) (client.Document, error)
}

// Result describes a successful operation.
type Result struct {
	// Hash is the document hash acknowledged by the store for the write.
	Hash string
	// Attempts is the number of read-modify-write cycles started.
	Attempts int
	// Warning is set when the write succeeded but could not be confirmed
	// by reading the document back. It never means the write failed.
	Warning error
}

// Options tune a DocumentService. Zero values select the defaults.
type Options struct {
	// MaxRetries bounds the retries after write conflicts.
	MaxRetries int
	// TransferRetries bounds the retries after transfer failures. It is
	// counted independently of conflicts and defaults to MaxRetries.
	TransferRetries int
	Backoff         Backoff

	// VerifyAfterWrite re-reads the document after a successful write.
	VerifyAfterWrite bool

	Clock  timex.Clock
	Logger logging.Logger
}

type documentService struct {
	client          client.Client
	maxRetries      int
	transferRetries int
	backoff         Backoff
	verifyAfter     bool
	clock           timex.Clock
	logger          logging.Logger
}

func NewDocumentService(c client.Client, opts Options) DocumentService {
	s := &documentService{
		client:          c,
		maxRetries:      opts.MaxRetries,
		transferRetries: opts.TransferRetries,
		backoff:         opts.Backoff,
		verifyAfter:     opts.VerifyAfterWrite,
		clock:           opts.Clock,
		logger:          opts.Logger,
	}
	if s.maxRetries <= 0 {
		s.maxRetries = DefaultMaxRetries
	}
	if s.transferRetries <= 0 {
		s.transferRetries = s.maxRetries
	}
	if s.backoff.Base <= 0 {
		s.backoff = DefaultBackoff()
	}
	if s.clock == nil {
		s.clock = timex.Real()
	}
	if s.logger == nil {
		s.logger = logging.Nop()
	}
	s.logger = s.logger.With("module", "document_service")
	return s
}

type state string

const (
	stateFetching  state = "fetching"
	statePatching  state = "patching"
	stateVerifying state = "verifying"
	stateWriting   state = "writing"
	stateConflict  state = "conflict"
	stateDone      state = "done"
	stateFailed    state = "failed"
)

// operation is one logical edit driven through the state machine.
type operation struct {
	name   string
	expect integrity.Expectation
	apply  func(records []models.Record) ([]models.Record, error)
}

func (s *documentService) Update(ctx context.Context, cred client.Credential, id string, changes models.Changes) (Result, error) {
	if err := changes.Validate(); err != nil {
		return Result{}, s.finish(ctx, "update", id, 0, common.ErrInvalidChange, err)
	}
	op := operation{
		name:   "update",
		expect: integrity.Expectation{Kind: integrity.Patch, TargetID: id, Changes: changes},
		apply: func(records []models.Record) ([]models.Record, error) {
			return patch.ApplyPatch(records, id, changes, s.clock.Now())
		},
	}
	return s.run(ctx, cred, op)
}

func (s *documentService) Delete(ctx context.Context, cred client.Credential, id string) (Result, error) {
	op := operation{
		name:   "delete",
		expect: integrity.Expectation{Kind: integrity.Delete, TargetID: id},
		apply: func(records []models.Record) ([]models.Record, error) {
			return patch.ApplyDelete(records, id)
		},
	}
	return s.run(ctx, cred, op)
}

func (s *documentService) run(ctx context.Context, cred client.Credential, op operation) (Result, error) {
	id := op.expect.TargetID
	log := s.logger.With("op_id", newOpID(), "op", op.name, "record_id", id)
	ctx = client.WithMessage(ctx, fmt.Sprintf("docsync: %s %s", op.name, id))

	var (
		attempts  int
		conflicts int
		transfers int
		// ambiguous is set once a write failed in transit; the store may
		// have applied it anyway.
		ambiguous bool
	)

	// retry sleeps before the next cycle. It returns false when ctx ended.
	retry := func(n int) bool {
		d := s.backoff.Delay(n)
		log.Debug(ctx, "backing off", "delay", d)
		return timex.Sleep(ctx, s.clock, d) == nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, s.canceled(op.name, id, attempts, err)
		}
		attempts++
		log.Debug(ctx, "state", "state", stateFetching, "attempt", attempts)

		doc, err := s.client.FetchDocument(ctx, cred)
		if err != nil {
			switch {
			case errors.Is(err, common.ErrPermission):
				return Result{}, s.finish(ctx, op.name, id, attempts, common.ErrPermission, err)
			case ctx.Err() != nil:
				return Result{}, s.canceled(op.name, id, attempts, ctx.Err())
			}
			transfers++
			if transfers > s.transferRetries {
				log.Warn(ctx, "store unavailable", "state", stateFailed, "transfer_failures", transfers, "error", err)
				return Result{}, s.finish(ctx, op.name, id, attempts, common.ErrUnavailable, err)
			}
			log.Info(ctx, "fetch failed, retrying", "transfer_failures", transfers, "error", err)
			if !retry(transfers) {
				return Result{}, s.canceled(op.name, id, attempts, ctx.Err())
			}
			continue
		}

		log.Debug(ctx, "state", "state", statePatching, "hash", doc.Hash, "records", len(doc.Records))
		after, err := op.apply(doc.Records)
		if err != nil {
			if ambiguous && op.expect.Kind == integrity.Delete && errors.Is(err, common.ErrNotFound) {
				res := Result{Hash: doc.Hash, Attempts: attempts,
					Warning: fmt.Errorf("record %s was already gone after an unacknowledged write", id)}
				log.Warn(ctx, "delete already applied", "hash", doc.Hash)
				s.observe(op.name, attempts, nil)
				return res, nil
			}
			return Result{}, s.finish(ctx, op.name, id, attempts, kindOf(err), err)
		}

		log.Debug(ctx, "state", "state", stateVerifying)
		if err := integrity.Verify(doc.Records, after, op.expect); err != nil {
			log.Error(ctx, "integrity check failed, not writing", "state", stateFailed, "error", err)
			return Result{}, s.finish(ctx, op.name, id, attempts, common.ErrCorruptionRisk, err)
		}

		log.Debug(ctx, "state", "state", stateWriting, "precondition", doc.Hash)
		newHash, err := s.client.WriteDocument(ctx, cred, doc.Hash, after)
		switch {
		case err == nil:
			log.Info(ctx, "document updated", "state", stateDone, "hash", newHash, "attempts", attempts)
			res := Result{Hash: newHash, Attempts: attempts}
			if s.verifyAfter {
				res.Warning = s.confirm(ctx, cred, newHash, op.expect, log)
			}
			s.observe(op.name, attempts, nil)
			return res, nil

		case errors.Is(err, common.ErrConflict):
			conflicts++
			metrics.Conflicts.WithLabelValues(op.name).Inc()
			if conflicts > s.maxRetries {
				log.Warn(ctx, "giving up after repeated conflicts", "state", stateFailed, "conflicts", conflicts)
				return Result{}, s.finish(ctx, op.name, id, attempts, common.ErrConcurrencyExhausted, err)
			}
			log.Info(ctx, "document changed since read, restarting", "state", stateConflict, "conflicts", conflicts, "hash", doc.Hash)
			if !retry(conflicts) {
				return Result{}, s.canceled(op.name, id, attempts, ctx.Err())
			}

		case errors.Is(err, common.ErrPermission):
			return Result{}, s.finish(ctx, op.name, id, attempts, common.ErrPermission, err)

		default:
			if ctx.Err() != nil {
				return Result{}, s.canceled(op.name, id, attempts, ctx.Err())
			}
			ambiguous = true
			transfers++
			if transfers > s.transferRetries {
				log.Warn(ctx, "store unavailable", "state", stateFailed, "transfer_failures", transfers, "error", err)
				return Result{}, s.finish(ctx, op.name, id, attempts, common.ErrUnavailable, err)
			}
			log.Info(ctx, "write failed in transit, restarting", "transfer_failures", transfers, "error", err)
			if !retry(transfers) {
				return Result{}, s.canceled(op.name, id, attempts, ctx.Err())
			}
		}
	}
}

// confirm reads the document back after a write. Any problem is returned
// as a warning.
func (s *documentService) confirm(ctx context.Context, cred client.Credential, hash string, exp integrity.Expectation, log logging.Logger) error {
	doc, err := s.client.FetchDocument(ctx, cred)
	var warn error
	switch {
	case err != nil:
		warn = fmt.Errorf("write acknowledged as %s but reading it back failed: %w", hash, err)
	case doc.Hash != hash:
		warn = fmt.Errorf("write acknowledged as %s but the store serves %s", hash, doc.Hash)
	default:
		if err := integrity.VerifyEcho(doc.Records, exp); err != nil {
			warn = fmt.Errorf("write acknowledged as %s but reads back differently: %w", hash, err)
		}
	}
	if warn != nil {
		log.Warn(ctx, "post-write check failed", "error", warn)
	}
	return warn
}

func (s *documentService) Get(ctx context.Context, cred client.Credential, id string) (models.Record, error) {
	doc, attempts, err := s.fetch(ctx, cred, "get", id)
	if err != nil {
		return models.Record{}, err
	}
	i := patch.Index(doc.Records, id)
	if i < 0 {
		return models.Record{}, s.finish(ctx, "get", id, attempts, common.ErrNotFound, nil)
	}
	s.observe("get", attempts, nil)
	return doc.Records[i], nil
}

func (s *documentService) List(ctx context.Context, cred client.Credential) (client.Document, error) {
	doc, attempts, err := s.fetch(ctx, cred, "list", "")
	if err != nil {
		return client.Document{}, err
	}
	s.observe("list", attempts, nil)
	return doc, nil
}

// fetch reads the document with the transfer retry budget.
func (s *documentService) fetch(ctx context.Context, cred client.Credential, name, id string) (client.Document, int, error) {
	log := s.logger.With("op_id", newOpID(), "op", name)
	for attempt := 1; ; attempt++ {
		doc, err := s.client.FetchDocument(ctx, cred)
		if err == nil {
			return doc, attempt, nil
		}
		switch {
		case errors.Is(err, common.ErrPermission):
			return client.Document{}, attempt, s.finish(ctx, name, id, attempt, common.ErrPermission, err)
		case ctx.Err() != nil:
			return client.Document{}, attempt, s.canceled(name, id, attempt, ctx.Err())
		case attempt > s.transferRetries:
			return client.Document{}, attempt, s.finish(ctx, name, id, attempt, common.ErrUnavailable, err)
		}
		log.Info(ctx, "fetch failed, retrying", "attempt", attempt, "error", err)
		if err := timex.Sleep(ctx, s.clock, s.backoff.Delay(attempt)); err != nil {
			return client.Document{}, attempt, s.canceled(name, id, attempt, err)
		}
	}
}

func (s *documentService) finish(ctx context.Context, op, id string, attempts int, kind, cause error) error {
	err := &common.OperationError{Op: op, RecordID: id, Attempts: attempts, Kind: kind, Err: cause}
	s.observe(op, attempts, err)
	s.logger.Debug(ctx, "operation failed", "op", op, "record_id", id, "class", common.Classify(err), "error", err)
	return err
}

func (s *documentService) canceled(op, id string, attempts int, err error) error {
	s.observe(op, attempts, err)
	return fmt.Errorf("%s %s: abandoned after %d attempts: %w", op, id, attempts, err)
}

func (s *documentService) observe(op string, attempts int, err error) {
	outcome := "ok"
	if err != nil {
		outcome = common.Classify(err).String()
	}
	metrics.Operations.WithLabelValues(op, outcome).Inc()
	if attempts > 0 {
		metrics.Attempts.WithLabelValues(op).Observe(float64(attempts))
	}
}

// kindOf maps a patch engine error to its taxonomy sentinel.
func kindOf(err error) error {
	switch {
	case errors.Is(err, common.ErrNotFound):
		return common.ErrNotFound
	case errors.Is(err, common.ErrInvalidChange):
		return common.ErrInvalidChange
	case errors.Is(err, common.ErrIntegrity):
		return common.ErrCorruptionRisk
	default:
		return common.ErrCorruptionRisk
	}
}

func newOpID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Package progress moves fabricated assemblies through the manufacturing
// sequence, holding each step until its quality checks are signed off and no
// critical non-compliance is open.
package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"fabprogress/internal/lock"
	"fabprogress/internal/storage"
)

// Store is the persistence the engine needs. Calls made with the ctx handed
// to WithTx's callback run in that transaction.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error

	CreateAssembly(ctx context.Context, a *storage.Assembly) error
	GetAssembly(ctx context.Context, id string) (*storage.Assembly, error)
	SetAssemblyStep(ctx context.Context, id string, step storage.ManufacturingStep) error

	CreateProgress(ctx context.Context, p *storage.ProgressState) error
	GetProgress(ctx context.Context, id string) (*storage.ProgressState, error)
	GetProgressByAssembly(ctx context.Context, assemblyID string) (*storage.ProgressState, error)
	UpdateProgress(ctx context.Context, p *storage.ProgressState) error
	ListProgressAtStep(ctx context.Context, step storage.ManufacturingStep) ([]*storage.ProgressState, error)
	ListReadyForOutsourcing(ctx context.Context) ([]*storage.ProgressState, error)
	ListAwaitingReturn(ctx context.Context) ([]*storage.ProgressState, error)

	CreateChecks(ctx context.Context, checks []*storage.QualityCheck) error
	GetCheck(ctx context.Context, id string) (*storage.QualityCheck, error)
	UpdateCheck(ctx context.Context, c *storage.QualityCheck) error
	ListChecks(ctx context.Context, progressID string, step *storage.ManufacturingStep) ([]*storage.QualityCheck, error)

	NextNCRSequence(ctx context.Context, year int) (int, error)
	CreateNCR(ctx context.Context, n *storage.NonComplianceRecord) error
	GetNCR(ctx context.Context, id string) (*storage.NonComplianceRecord, error)
	UpdateNCR(ctx context.Context, n *storage.NonComplianceRecord) error
	ListOpenNCRs(ctx context.Context) ([]*storage.NonComplianceRecord, error)
	ListAssemblyNCRs(ctx context.Context, assemblyID string) ([]*storage.NonComplianceRecord, error)
	ListBlockingNCRs(ctx context.Context, assemblyID string) ([]*storage.NonComplianceRecord, error)

	AppendHistory(ctx context.Context, h *storage.StepHistoryEntry) error
	ListHistory(ctx context.Context, assemblyID string) ([]*storage.StepHistoryEntry, error)

	CreateCoatingRecord(ctx context.Context, c *storage.OutsourcedCoatingRecord) error
	GetActiveCoatingRecord(ctx context.Context, assemblyID string) (*storage.OutsourcedCoatingRecord, error)
	MarkCoatingReturned(ctx context.Context, c *storage.OutsourcedCoatingRecord) error
	ListCoatingRecords(ctx context.Context, assemblyID string) ([]*storage.OutsourcedCoatingRecord, error)

	EnqueueOutbox(ctx context.Context, topic, key, eventType string, payload []byte) error
}

// Locker serialises mutations of one assembly.
type Locker interface {
	Lock(ctx context.Context, key string) (lock.Unlock, error)
}

type Options struct {
	// Topic receives engine events through the outbox. Empty disables events.
	Topic string
	// ConflictRetries is how often a transaction is replayed after a version conflict.
	ConflictRetries int
	// LockTimeout bounds the wait for the per-assembly lock.
	LockTimeout time.Duration
	Now         func() time.Time
}

type Service struct {
	log         *slog.Logger
	store       Store
	locker      Locker
	topic       string
	retries     int
	lockTimeout time.Duration
	now         func() time.Time
}

func NewService(log *slog.Logger, store Store, locker Locker, opts Options) *Service {
	s := &Service{
		log:         log.With(slog.String("component", "progress")),
		store:       store,
		locker:      locker,
		topic:       opts.Topic,
		retries:     opts.ConflictRetries,
		lockTimeout: opts.LockTimeout,
		now:         opts.Now,
	}
	if s.retries < 0 {
		s.retries = 0
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = 5 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// mutate runs fn in a transaction while holding the assembly's lock. fn is
// replayed from scratch when the store reports a version conflict, so it must
// load everything it writes.
func (s *Service) mutate(ctx context.Context, assemblyID string, fn func(ctx context.Context) error) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	unlock, err := s.locker.Lock(lockCtx, assemblyID)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, lock.ErrNotAcquired) {
			return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}
		return fmt.Errorf("lock %s: %w", assemblyID, err)
	}
	defer unlock()

	for attempt := 0; ; attempt++ {
		err := s.store.WithTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) && !errors.Is(err, storage.ErrDuplicate) {
			return err
		}
		if attempt >= s.retries {
			return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
		}

		s.log.Debug("retrying after conflict",
			slog.String("assembly_id", assemblyID),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
	}
}

func requireActor(actor string) error {
	if strings.TrimSpace(actor) == "" {
		return ErrActorRequired
	}
	return nil
}

func checkVersion(expected *int64, actual int64) error {
	if expected != nil && *expected != actual {
		return fmt.Errorf("%w: expected version %d, stored %d", ErrConcurrencyConflict, *expected, actual)
	}
	return nil
}

// mapNotFound replaces storage.ErrNotFound with the engine's kind for the record.
func mapNotFound(err, kind error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return kind
	}
	return err
}

func (s *Service) loadProgress(ctx context.Context, assemblyID string) (*storage.ProgressState, error) {
	p, err := s.store.GetProgressByAssembly(ctx, assemblyID)
	if err != nil {
		return nil, mapNotFound(err, ErrNoProgressTracking)
	}
	return p, nil
}

package progress

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabprogress/internal/lock"
	"fabprogress/internal/storage"
	"fabprogress/internal/storage/sqlstore"
)

const testTopic = "fabprogress.events"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	svc   *Service
	store *sqlstore.Storage
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	st, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return newFixtureWithStore(t, st, st)
}

func newFixtureWithStore(t *testing.T, st *sqlstore.Storage, engineStore Store) *fixture {
	t.Helper()

	clock := &fakeClock{now: time.Date(2025, 5, 12, 7, 0, 0, 0, time.UTC)}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(log, engineStore, lock.NewLocal(), Options{
		Topic:           testTopic,
		ConflictRetries: 3,
		LockTimeout:     5 * time.Second,
		Now:             clock.Now,
	})

	return &fixture{svc: svc, store: st, clock: clock}
}

func (f *fixture) newAssembly(t *testing.T, mark string) string {
	t.Helper()

	a, err := f.svc.RegisterAssembly(context.Background(), RegisterAssemblyInput{Mark: mark, ProjectRef: "P-2025-014"})
	require.NoError(t, err)
	return a.ID
}

func (f *fixture) tracked(t *testing.T, mark string) string {
	t.Helper()

	id := f.newAssembly(t, mark)
	_, err := f.svc.Initialize(context.Background(), id, "anna")
	require.NoError(t, err)
	return id
}

func (f *fixture) currentChecks(t *testing.T, assemblyID string) []*storage.QualityCheck {
	t.Helper()
	ctx := context.Background()

	p, err := f.svc.GetProgress(ctx, assemblyID)
	require.NoError(t, err)
	step := p.CurrentStep
	checks, err := f.svc.ListChecks(ctx, assemblyID, &step)
	require.NoError(t, err)
	return checks
}

func (f *fixture) checkOf(t *testing.T, assemblyID string, typ storage.CheckType) *storage.QualityCheck {
	t.Helper()

	for _, c := range f.currentChecks(t, assemblyID) {
		if c.CheckType == typ {
			return c
		}
	}
	t.Fatalf("no %s check at current step", typ)
	return nil
}

func (f *fixture) perform(t *testing.T, checkID string, status storage.CheckStatus) *CheckOutcome {
	t.Helper()

	out, err := f.svc.PerformCheck(context.Background(), PerformCheckInput{
		CheckID:   checkID,
		Status:    status,
		CheckedBy: "otto",
		Results:   "ok",
	})
	require.NoError(t, err)
	return out
}

func (f *fixture) passCurrent(t *testing.T, assemblyID string) {
	t.Helper()

	for _, c := range f.currentChecks(t, assemblyID) {
		if !c.Status.Satisfied() {
			f.perform(t, c.ID, storage.CheckPassed)
		}
	}
}

func (f *fixture) advanceTo(t *testing.T, assemblyID string, target storage.ManufacturingStep) {
	t.Helper()
	ctx := context.Background()

	for {
		p, err := f.svc.GetProgress(ctx, assemblyID)
		require.NoError(t, err)
		if p.CurrentStep == target {
			return
		}
		f.passCurrent(t, assemblyID)
		f.clock.Advance(time.Hour)
		_, err = f.svc.AdvanceToNextStep(ctx, assemblyID, "anna", "")
		require.NoError(t, err)
	}
}

func (f *fixture) pendingEvents(t *testing.T) []string {
	t.Helper()

	msgs, err := f.store.ListPendingOutbox(context.Background(), 1000, 10)
	require.NoError(t, err)
	types := make([]string, len(msgs))
	for i, m := range msgs {
		types[i] = m.EventType
	}
	return types
}

func TestInitializeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.newAssembly(t, "C-12")

	first, err := f.svc.Initialize(ctx, id, "anna")
	require.NoError(t, err)
	assert.Equal(t, storage.StepNotStarted, first.CurrentStep)
	assert.Nil(t, first.PreviousStep)
	assert.True(t, first.CurrentStepStartedAt.Equal(f.clock.Now()))

	f.clock.Advance(3 * time.Hour)

	second, err := f.svc.Initialize(ctx, id, "bert")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.True(t, first.CurrentStepStartedAt.Equal(second.CurrentStepStartedAt))
	assert.Equal(t, "anna", second.UpdatedBy)
	assert.Equal(t, first.Version, second.Version)

	assert.Equal(t, []string{EventProgressInitialized}, f.pendingEvents(t))
}

func TestInitializeUnknownAssembly(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Initialize(context.Background(), "nope", "anna")
	assert.ErrorIs(t, err, ErrAssemblyNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMutationsRequireActor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "C-1")

	_, err := f.svc.Initialize(ctx, id, "")
	assert.ErrorIs(t, err, ErrActorRequired)
	_, err = f.svc.AdvanceToNextStep(ctx, id, "  ", "")
	assert.ErrorIs(t, err, ErrActorRequired)
	_, err = f.svc.CompleteCurrentStep(ctx, id, "", "")
	assert.ErrorIs(t, err, ErrActorRequired)
	_, err = f.svc.OpenNCR(ctx, OpenNCRInput{AssemblyID: id, Description: "dent"})
	assert.ErrorIs(t, err, ErrActorRequired)
	_, err = f.svc.RecordCoatingReturn(ctx, id, "", "")
	assert.ErrorIs(t, err, ErrActorRequired)
}

func TestAdvanceWithoutTracking(t *testing.T) {
	f := newFixture(t)
	id := f.newAssembly(t, "C-2")

	_, err := f.svc.AdvanceToNextStep(context.Background(), id, "anna", "")
	assert.ErrorIs(t, err, ErrNoProgressTracking)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQualityGateScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "B-7")

	f.advanceTo(t, id, storage.StepAssembled)
	checks := f.currentChecks(t, id)
	require.Len(t, checks, 3)
	for _, c := range checks {
		assert.Equal(t, storage.CheckPending, c.Status)
		assert.True(t, c.IsRequired)
	}

	f.perform(t, f.checkOf(t, id, storage.CheckVisualTesting).ID, storage.CheckPassed)
	f.perform(t, f.checkOf(t, id, storage.CheckDimensional).ID, storage.CheckPassed)

	before, err := f.svc.GetProgress(ctx, id)
	require.NoError(t, err)

	_, err = f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	require.ErrorIs(t, err, ErrQualityGateBlocked)
	var gateErr *GateError
	require.True(t, errors.As(err, &gateErr))
	assert.Equal(t, storage.StepAssembled, gateErr.Step)
	assert.Equal(t, []storage.CheckType{storage.CheckQualityAssurance}, gateErr.Missing)

	after, err := f.svc.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	f.perform(t, f.checkOf(t, id, storage.CheckQualityAssurance).ID, storage.CheckPassed)
	f.clock.Advance(90 * time.Minute)

	p, err := f.svc.AdvanceToNextStep(ctx, id, "anna", "welding released")
	require.NoError(t, err)
	assert.Equal(t, storage.StepWelded, p.CurrentStep)
	require.NotNil(t, p.PreviousStep)
	assert.Equal(t, storage.StepAssembled, *p.PreviousStep)
	assert.Nil(t, p.CurrentStepCompletedAt)

	welded := f.currentChecks(t, id)
	require.Len(t, welded, 3)
	types := map[storage.CheckType]bool{}
	for _, c := range welded {
		assert.Equal(t, storage.CheckPending, c.Status)
		assert.Equal(t, storage.StepWelded, c.ForStep)
		types[c.CheckType] = true
	}
	assert.Equal(t, map[storage.CheckType]bool{
		storage.CheckVisualTesting:    true,
		storage.CheckWeldQuality:      true,
		storage.CheckQualityAssurance: true,
	}, types)

	a, err := f.svc.GetAssembly(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StepWelded, a.CurrentStep)

	hist, err := f.svc.ListHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	assert.Equal(t, storage.StepAssembled, hist[1].Step)
	assert.Equal(t, 90*time.Minute, hist[1].Duration)
	assert.Equal(t, "welding released", hist[1].Notes)
}

func TestFailedWeldCheckOpensOneMajorNCR(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "B-8")
	f.advanceTo(t, id, storage.StepWelded)

	weld := f.checkOf(t, id, storage.CheckWeldQuality)
	out, err := f.svc.PerformCheck(ctx, PerformCheckInput{
		CheckID:      weld.ID,
		Status:       storage.CheckFailed,
		CheckedBy:    "otto",
		DefectsFound: "porosity in fillet weld W3",
	})
	require.NoError(t, err)
	require.NotNil(t, out.NCR)
	assert.Equal(t, storage.SeverityMajor, out.NCR.Severity)
	assert.Equal(t, storage.NCROpen, out.NCR.Status)
	require.NotNil(t, out.NCR.QualityCheckID)
	assert.Equal(t, weld.ID, *out.NCR.QualityCheckID)
	assert.Equal(t, storage.StepWelded, out.NCR.Step)
	assert.Equal(t, "NCR-2025-0001", out.NCR.Number)
	assert.Contains(t, out.NCR.Description, "porosity")

	// recording the same failure again does not open a second NCR
	again := f.perform(t, weld.ID, storage.CheckFailed)
	assert.Nil(t, again.NCR)

	ncrs, err := f.svc.ListAssemblyNCRs(ctx, id)
	require.NoError(t, err)
	require.Len(t, ncrs, 1)

	f.perform(t, f.checkOf(t, id, storage.CheckVisualTesting).ID, storage.CheckPassed)
	f.perform(t, f.checkOf(t, id, storage.CheckQualityAssurance).ID, storage.CheckPassed)

	_, err = f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	require.ErrorIs(t, err, ErrQualityGateBlocked)

	accepted := f.perform(t, weld.ID, storage.CheckFailedAccepted)
	assert.Equal(t, storage.CheckFailedAccepted, accepted.Check.Status)
	assert.Nil(t, accepted.NCR)

	p, err := f.svc.AdvanceToNextStep(ctx, id, "anna", "accepted by welding coordinator")
	require.NoError(t, err)
	assert.Equal(t, storage.StepReadyForCoating, p.CurrentStep)
}

func TestPerformCheckStatusRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "B-9")
	f.advanceTo(t, id, storage.StepAssembled)
	vt := f.checkOf(t, id, storage.CheckVisualTesting)

	_, err := f.svc.PerformCheck(ctx, PerformCheckInput{CheckID: vt.ID, Status: storage.CheckPending, CheckedBy: "otto"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.PerformCheck(ctx, PerformCheckInput{CheckID: vt.ID, Status: "Great", CheckedBy: "otto"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.PerformCheck(ctx, PerformCheckInput{CheckID: vt.ID, Status: storage.CheckFailedAccepted, CheckedBy: "otto"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.PerformCheck(ctx, PerformCheckInput{CheckID: "missing", Status: storage.CheckPassed, CheckedBy: "otto"})
	assert.ErrorIs(t, err, ErrCheckNotFound)

	_, err = f.svc.PerformCheck(ctx, PerformCheckInput{CheckID: vt.ID, Status: storage.CheckPassed})
	assert.ErrorIs(t, err, ErrActorRequired)

	stale := vt.Version - 1
	_, err = f.svc.PerformCheck(ctx, PerformCheckInput{CheckID: vt.ID, Status: storage.CheckPassed, CheckedBy: "otto", ExpectedVersion: &stale})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	current := vt.Version
	out, err := f.svc.PerformCheck(ctx, PerformCheckInput{CheckID: vt.ID, Status: storage.CheckInProgress, CheckedBy: "otto", ExpectedVersion: &current})
	require.NoError(t, err)
	assert.Equal(t, current+1, out.Check.Version)
	require.NotNil(t, out.Check.CheckedAt)
}

func TestChecksOfPastStepsAreFrozen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "B-10")
	f.advanceTo(t, id, storage.StepAssembled)
	vt := f.checkOf(t, id, storage.CheckVisualTesting)
	f.advanceTo(t, id, storage.StepWelded)

	_, err := f.svc.PerformCheck(ctx, PerformCheckInput{CheckID: vt.ID, Status: storage.CheckFailed, CheckedBy: "otto"})
	assert.ErrorIs(t, err, ErrWrongStep)

	ncrs, err := f.svc.ListAssemblyNCRs(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, ncrs)
}

func TestCriticalNCRBlocksAdvance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "B-11")
	f.advanceTo(t, id, storage.StepAssembled)
	f.passCurrent(t, id)

	ncr, err := f.svc.OpenNCR(ctx, OpenNCRInput{
		AssemblyID:   id,
		Description:  "wrong steel grade delivered",
		DiscoveredBy: "otto",
		Severity:     storage.SeverityCritical,
	})
	require.NoError(t, err)
	assert.Equal(t, storage.StepAssembled, ncr.Step)

	gate, err := f.svc.GateStatus(ctx, id)
	require.NoError(t, err)
	assert.False(t, gate.CanAdvance)
	assert.Empty(t, gate.MissingChecks)
	assert.Equal(t, []string{ncr.Number}, gate.BlockingNCRs)

	_, err = f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	require.ErrorIs(t, err, ErrCriticalNCRBlocked)

	// leaving Open lifts the block even before closure
	review := storage.NCRUnderReview
	_, err = f.svc.UpdateNCR(ctx, UpdateNCRInput{NCRID: ncr.ID, Status: &review, UpdatedBy: "qa-lead"})
	require.NoError(t, err)

	reopen := storage.NCROpen
	_, err = f.svc.UpdateNCR(ctx, UpdateNCRInput{NCRID: ncr.ID, Status: &reopen, UpdatedBy: "qa-lead"})
	require.NoError(t, err)
	_, err = f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	require.ErrorIs(t, err, ErrCriticalNCRBlocked)

	closed := storage.NCRClosed
	rootCause := "mill certificate mix-up"
	f.clock.Advance(24 * time.Hour)
	updated, err := f.svc.UpdateNCR(ctx, UpdateNCRInput{NCRID: ncr.ID, Status: &closed, RootCause: &rootCause, UpdatedBy: "qa-lead"})
	require.NoError(t, err)
	require.NotNil(t, updated.ActualResolutionDate)
	assert.True(t, updated.ActualResolutionDate.Equal(f.clock.Now()))
	assert.Equal(t, rootCause, updated.RootCause)

	p, err := f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	require.NoError(t, err)
	assert.Equal(t, storage.StepWelded, p.CurrentStep)
}

func TestMinorAndMajorNCRsDoNotBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "B-12")

	for _, sev := range []storage.NCRSeverity{storage.SeverityMinor, storage.SeverityMajor} {
		_, err := f.svc.OpenNCR(ctx, OpenNCRInput{AssemblyID: id, Description: "scratch", DiscoveredBy: "otto", Severity: sev})
		require.NoError(t, err)
	}

	_, err := f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	require.NoError(t, err)
}

func TestUpdateNCR(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "B-13")

	ncr, err := f.svc.OpenNCR(ctx, OpenNCRInput{AssemblyID: id, Description: "bent flange", DiscoveredBy: "otto"})
	require.NoError(t, err)
	assert.Equal(t, storage.SeverityMajor, ncr.Severity)

	_, err = f.svc.UpdateNCR(ctx, UpdateNCRInput{NCRID: "missing", UpdatedBy: "qa"})
	assert.ErrorIs(t, err, ErrNCRNotFound)

	bad := storage.NCRStatus("Forgotten")
	_, err = f.svc.UpdateNCR(ctx, UpdateNCRInput{NCRID: ncr.ID, Status: &bad, UpdatedBy: "qa"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	critical := storage.SeverityCritical
	assignee := "werner"
	target := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	updated, err := f.svc.UpdateNCR(ctx, UpdateNCRInput{
		NCRID: ncr.ID, Severity: &critical, AssignedTo: &assignee, TargetDate: &target, UpdatedBy: "qa",
	})
	require.NoError(t, err)
	assert.Equal(t, storage.SeverityCritical, updated.Severity)
	assert.Equal(t, storage.NCROpen, updated.Status)
	assert.Equal(t, "werner", updated.AssignedTo)
	assert.Nil(t, updated.ActualResolutionDate)

	stale := ncr.Version
	_, err = f.svc.UpdateNCR(ctx, UpdateNCRInput{NCRID: ncr.ID, Severity: &critical, UpdatedBy: "qa", ExpectedVersion: &stale})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	concession := storage.NCRClosedWithConcession
	closed, err := f.svc.UpdateNCR(ctx, UpdateNCRInput{NCRID: ncr.ID, Status: &concession, UpdatedBy: "qa"})
	require.NoError(t, err)
	require.NotNil(t, closed.ActualResolutionDate)

	open := storage.NCROpen
	_, err = f.svc.UpdateNCR(ctx, UpdateNCRInput{NCRID: ncr.ID, Status: &open, UpdatedBy: "qa"})
	assert.ErrorIs(t, err, ErrNCRClosed)

	got, err := f.svc.GetNCR(ctx, ncr.ID)
	require.NoError(t, err)
	assert.Equal(t, storage.NCRClosedWithConcession, got.Status)

	list, err := f.svc.ListOpenNCRs(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestOpenNCRValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "B-14")
	other := f.tracked(t, "B-15")
	f.advanceTo(t, other, storage.StepAssembled)
	foreign := f.checkOf(t, other, storage.CheckVisualTesting)

	_, err := f.svc.OpenNCR(ctx, OpenNCRInput{AssemblyID: id, DiscoveredBy: "otto"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.OpenNCR(ctx, OpenNCRInput{AssemblyID: id, Description: "x", DiscoveredBy: "otto", Severity: "Apocalyptic"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.OpenNCR(ctx, OpenNCRInput{AssemblyID: "nope", Description: "x", DiscoveredBy: "otto"})
	assert.ErrorIs(t, err, ErrAssemblyNotFound)

	_, err = f.svc.OpenNCR(ctx, OpenNCRInput{AssemblyID: id, QualityCheckID: &foreign.ID, Description: "x", DiscoveredBy: "otto"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	step := storage.StepWelded
	ncr, err := f.svc.OpenNCR(ctx, OpenNCRInput{AssemblyID: id, Step: &step, Description: "x", DiscoveredBy: "otto"})
	require.NoError(t, err)
	assert.Equal(t, storage.StepWelded, ncr.Step)
}

func TestListOpenNCRsNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "B-16")

	var numbers []string
	for i := 0; i < 3; i++ {
		n, err := f.svc.OpenNCR(ctx, OpenNCRInput{AssemblyID: id, Description: "finding", DiscoveredBy: "otto"})
		require.NoError(t, err)
		numbers = append(numbers, n.Number)
		f.clock.Advance(time.Minute)
	}

	open, err := f.svc.ListOpenNCRs(ctx)
	require.NoError(t, err)
	require.Len(t, open, 3)
	assert.Equal(t, numbers[2], open[0].Number)
	assert.Equal(t, numbers[0], open[2].Number)
}

func TestConcurrentNCRNumbersAreUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const n = 12
	ids := make([]string, 4)
	for i := range ids {
		ids[i] = f.tracked(t, "K-"+string(rune('A'+i)))
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[string]int{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ncr, err := f.svc.OpenNCR(ctx, OpenNCRInput{AssemblyID: ids[i%len(ids)], Description: "finding", DiscoveredBy: "otto"})
			if !assert.NoError(t, err) {
				return
			}
			mu.Lock()
			numbers[ncr.Number] = ncr.Sequence
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	require.Len(t, numbers, n)
	seen := map[int]bool{}
	for number, seq := range numbers {
		assert.Equal(t, FormatNCRNumber(2025, seq), number)
		seen[seq] = true
	}
	for seq := 1; seq <= n; seq++ {
		assert.True(t, seen[seq], "sequence %d missing", seq)
	}
}

func TestWalkToDeliveredKeepsOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "S-1")

	f.advanceTo(t, id, storage.StepDelivered)

	p, err := f.svc.GetProgress(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, p.PreviousStep)
	assert.Equal(t, storage.StepReadyForDelivery, *p.PreviousStep)

	_, err = f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	assert.ErrorIs(t, err, ErrAlreadyTerminal)

	hist, err := f.svc.ListHistory(ctx, id)
	require.NoError(t, err)
	require.Len(t, hist, 6)
	for i, h := range hist {
		assert.Equal(t, storage.Steps[i], h.Step)
		assert.Equal(t, time.Hour, h.Duration)
		if i > 0 {
			assert.True(t, h.StartedAt.Equal(hist[i-1].CompletedAt))
		}
	}

	delivered := f.currentChecks(t, id)
	assert.Empty(t, delivered)

	gate, err := f.svc.GateStatus(ctx, id)
	require.NoError(t, err)
	assert.False(t, gate.CanAdvance)
	assert.Nil(t, gate.NextStep)
}

func TestTransitionToRejectsAnythingButTheSuccessor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "S-2")

	_, err := f.svc.TransitionTo(ctx, id, storage.StepWelded, "anna", "")
	assert.ErrorIs(t, err, ErrInvalidProgression)
	_, err = f.svc.TransitionTo(ctx, id, storage.StepNotStarted, "anna", "")
	assert.ErrorIs(t, err, ErrInvalidProgression)

	p, err := f.svc.TransitionTo(ctx, id, storage.StepAssembled, "anna", "")
	require.NoError(t, err)
	assert.Equal(t, storage.StepAssembled, p.CurrentStep)

	_, err = f.svc.TransitionTo(ctx, id, storage.StepNotStarted, "anna", "")
	assert.ErrorIs(t, err, ErrInvalidProgression)
	_, err = f.svc.TransitionTo(ctx, id, storage.ManufacturingStep(42), "anna", "")
	assert.ErrorIs(t, err, ErrInvalidProgression)
}

func TestCompleteCurrentStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "S-3")
	f.advanceTo(t, id, storage.StepAssembled)

	f.clock.Advance(30 * time.Minute)
	p, err := f.svc.CompleteCurrentStep(ctx, id, "anna", "tack welds done")
	require.NoError(t, err)
	require.NotNil(t, p.CurrentStepCompletedAt)
	stamp := *p.CurrentStepCompletedAt
	assert.Equal(t, storage.StepAssembled, p.CurrentStep)
	assert.Equal(t, "tack welds done", p.Notes)

	f.clock.Advance(time.Minute)
	p, err = f.svc.CompleteCurrentStep(ctx, id, "bert", "")
	require.NoError(t, err)
	assert.True(t, stamp.Equal(*p.CurrentStepCompletedAt))

	// completion does not lift the gate
	_, err = f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	assert.ErrorIs(t, err, ErrQualityGateBlocked)
}

func TestCoatingRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "G-1")
	f.advanceTo(t, id, storage.StepReadyForCoating)
	f.passCurrent(t, id)

	ready, err := f.svc.ListReadyForOutsourcing(ctx)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, id, ready[0].AssemblyID)

	rec, err := f.svc.SendOutCoating(ctx, SendOutInput{
		AssemblyID:     id,
		SupplierID:     "galva-nord",
		ExpectedReturn: f.clock.Now().Add(72 * time.Hour),
		Actor:          "anna",
	})
	require.NoError(t, err)
	assert.Equal(t, storage.CoatingSent, rec.Status)

	_, err = f.svc.SendOutCoating(ctx, SendOutInput{
		AssemblyID: id, SupplierID: "other", ExpectedReturn: f.clock.Now().Add(time.Hour), Actor: "anna",
	})
	assert.ErrorIs(t, err, ErrAlreadyOutsourced)

	ready, err = f.svc.ListReadyForOutsourcing(ctx)
	require.NoError(t, err)
	assert.Empty(t, ready)
	waiting, err := f.svc.ListAwaitingReturn(ctx)
	require.NoError(t, err)
	require.Len(t, waiting, 1)

	_, err = f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	assert.ErrorIs(t, err, ErrAwaitingCoatingReturn)

	f.clock.Advance(48 * time.Hour)
	p, err := f.svc.RecordCoatingReturn(ctx, id, "otto", "HDG 85µm")
	require.NoError(t, err)
	assert.Equal(t, storage.StepCoatingDone, p.CurrentStep)
	require.NotNil(t, p.ActualReturnAt)
	assert.True(t, p.ActualReturnAt.Equal(f.clock.Now()))
	assert.Len(t, f.currentChecks(t, id), 3)

	_, err = f.svc.RecordCoatingReturn(ctx, id, "otto", "")
	assert.ErrorIs(t, err, ErrNotOutsourced)

	waiting, err = f.svc.ListAwaitingReturn(ctx)
	require.NoError(t, err)
	assert.Empty(t, waiting)

	hist, err := f.svc.ListHistory(ctx, id)
	require.NoError(t, err)
	var coatingEntries int
	for _, h := range hist {
		if h.Step == storage.StepReadyForCoating {
			coatingEntries++
			assert.Equal(t, "otto", h.Actor)
		}
	}
	assert.Equal(t, 1, coatingEntries)

	records, err := f.svc.ListCoatingRecords(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, storage.CoatingReturned, records[0].Status)
	assert.Equal(t, "otto", records[0].ReturnedBy)
}

func TestRecordReturnWithoutSendOut(t *testing.T) {
	f := newFixture(t)
	id := f.tracked(t, "G-2")
	f.advanceTo(t, id, storage.StepReadyForCoating)

	_, err := f.svc.RecordCoatingReturn(context.Background(), id, "otto", "")
	assert.ErrorIs(t, err, ErrNotOutsourced)
}

func TestSendOutOnlyAtReadyForCoating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "G-3")
	f.advanceTo(t, id, storage.StepWelded)

	_, err := f.svc.SendOutCoating(ctx, SendOutInput{
		AssemblyID: id, SupplierID: "galva-nord", ExpectedReturn: f.clock.Now().Add(time.Hour), Actor: "anna",
	})
	assert.ErrorIs(t, err, ErrWrongStep)

	f.advanceTo(t, id, storage.StepReadyForCoating)
	_, err = f.svc.SendOutCoating(ctx, SendOutInput{
		AssemblyID: id, SupplierID: "galva-nord", ExpectedReturn: f.clock.Now().Add(-72 * time.Hour), Actor: "anna",
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.SendOutCoating(ctx, SendOutInput{AssemblyID: id, ExpectedReturn: f.clock.Now(), Actor: "anna"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestBlockedReturnLeavesCoatingOpen(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "G-4")
	f.advanceTo(t, id, storage.StepReadyForCoating)

	_, err := f.svc.SendOutCoating(ctx, SendOutInput{
		AssemblyID: id, SupplierID: "galva-nord", ExpectedReturn: f.clock.Now().Add(24 * time.Hour), Actor: "anna",
	})
	require.NoError(t, err)

	_, err = f.svc.RecordCoatingReturn(ctx, id, "otto", "")
	require.ErrorIs(t, err, ErrQualityGateBlocked)

	p, err := f.svc.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StepReadyForCoating, p.CurrentStep)
	assert.True(t, p.AwaitingCoatingReturn())

	records, err := f.svc.ListCoatingRecords(ctx, id)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, storage.CoatingSent, records[0].Status)

	f.passCurrent(t, id)
	p, err = f.svc.RecordCoatingReturn(ctx, id, "otto", "")
	require.NoError(t, err)
	assert.Equal(t, storage.StepCoatingDone, p.CurrentStep)
}

func TestQueriesByStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.tracked(t, "Q-1")
	f.tracked(t, "Q-2")
	f.advanceTo(t, a, storage.StepAssembled)

	at, err := f.svc.ListProgressAtStep(ctx, storage.StepAssembled)
	require.NoError(t, err)
	require.Len(t, at, 1)
	assert.Equal(t, a, at[0].AssemblyID)

	_, err = f.svc.ListProgressAtStep(ctx, storage.ManufacturingStep(-1))
	assert.ErrorIs(t, err, ErrInvalidInput)

	d, err := f.svc.GetDetail(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "Q-1", d.Assembly.Mark)
	assert.Len(t, d.Checks, 3)
	assert.False(t, d.Gate.CanAdvance)
	assert.Len(t, d.Gate.MissingChecks, 3)
}

func TestEventsAreQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.tracked(t, "E-1")
	f.advanceTo(t, id, storage.StepAssembled)

	dim := f.checkOf(t, id, storage.CheckDimensional)
	f.perform(t, dim.ID, storage.CheckFailed)
	_, err := f.svc.CompleteCurrentStep(ctx, id, "anna", "")
	require.NoError(t, err)

	assert.Equal(t, []string{
		EventProgressInitialized,
		EventStepAdvanced,
		EventNCROpened,
		EventCheckPerformed,
		EventStepCompleted,
	}, f.pendingEvents(t))
}

// flakyStore fails the first progress updates with a version conflict.
type flakyStore struct {
	*sqlstore.Storage
	mu        sync.Mutex
	failures  int
	attempted int
}

func (s *flakyStore) UpdateProgress(ctx context.Context, p *storage.ProgressState) error {
	s.mu.Lock()
	s.attempted++
	fail := s.failures > 0
	if fail {
		s.failures--
	}
	s.mu.Unlock()

	if fail {
		return storage.ErrVersionConflict
	}
	return s.Storage.UpdateProgress(ctx, p)
}

func TestVersionConflictIsRetried(t *testing.T) {
	st, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	flaky := &flakyStore{Storage: st, failures: 2}
	f := newFixtureWithStore(t, st, flaky)
	ctx := context.Background()
	id := f.tracked(t, "R-1")

	p, err := f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	require.NoError(t, err)
	assert.Equal(t, storage.StepAssembled, p.CurrentStep)
	assert.Equal(t, 3, flaky.attempted)

	hist, err := f.svc.ListHistory(ctx, id)
	require.NoError(t, err)
	assert.Len(t, hist, 1)

	f.passCurrent(t, id)
	flaky.failures = 10
	_, err = f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, 7, flaky.attempted)

	flaky.failures = 0
	p, err = f.svc.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StepAssembled, p.CurrentStep)
}

type failingLocker struct {
	err error
}

func (l failingLocker) Lock(context.Context, string) (lock.Unlock, error) {
	return nil, l.err
}

func TestLockerOutageIsNotAConflict(t *testing.T) {
	f := newFixture(t)
	id := f.newAssembly(t, "L-1")

	outage := errors.New("dial tcp 10.0.0.5:6379: connect: connection refused")
	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), f.store, failingLocker{err: outage}, Options{
		Topic:       testTopic,
		LockTimeout: time.Second,
		Now:         f.clock.Now,
	})

	_, err := svc.Initialize(context.Background(), id, "anna")
	require.Error(t, err)
	assert.ErrorIs(t, err, outage)
	assert.NotErrorIs(t, err, ErrConcurrencyConflict)
}

func TestLockTimeoutIsAConflict(t *testing.T) {
	f := newFixture(t)
	id := f.newAssembly(t, "L-2")

	locker := lock.NewLocal()
	unlock, err := locker.Lock(context.Background(), id)
	require.NoError(t, err)
	defer unlock()

	svc := NewService(slog.New(slog.NewTextHandler(io.Discard, nil)), f.store, locker, Options{
		Topic:       testTopic,
		LockTimeout: 20 * time.Millisecond,
		Now:         f.clock.Now,
	})

	_, err = svc.Initialize(context.Background(), id, "anna")
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

// brokenChecksStore fails check creation once armed, after the history row
// and the step change of an advance have been written.
type brokenChecksStore struct {
	*sqlstore.Storage
	armed bool
}

var errChecksWrite = errors.New("disk I/O error")

func (s *brokenChecksStore) CreateChecks(ctx context.Context, checks []*storage.QualityCheck) error {
	if s.armed {
		return errChecksWrite
	}
	return s.Storage.CreateChecks(ctx, checks)
}

func TestAdvanceRollsBackWhenCheckCreationFails(t *testing.T) {
	st, err := sqlstore.OpenSQLite(filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	broken := &brokenChecksStore{Storage: st}
	f := newFixtureWithStore(t, st, broken)
	ctx := context.Background()
	id := f.tracked(t, "R-2")

	broken.armed = true
	_, err = f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	require.ErrorIs(t, err, errChecksWrite)
	assert.NotErrorIs(t, err, ErrConcurrencyConflict)

	p, err := f.svc.GetProgress(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StepNotStarted, p.CurrentStep)
	assert.Nil(t, p.PreviousStep)

	a, err := f.svc.GetAssembly(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, storage.StepNotStarted, a.CurrentStep)

	hist, err := f.svc.ListHistory(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, hist)

	assembled := storage.StepAssembled
	checks, err := f.svc.ListChecks(ctx, id, &assembled)
	require.NoError(t, err)
	assert.Empty(t, checks)

	assert.Equal(t, []string{EventProgressInitialized}, f.pendingEvents(t))

	broken.armed = false
	p, err = f.svc.AdvanceToNextStep(ctx, id, "anna", "")
	require.NoError(t, err)
	assert.Equal(t, storage.StepAssembled, p.CurrentStep)
	assert.Len(t, f.currentChecks(t, id), 3)
}

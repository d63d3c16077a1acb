package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/lotline-backend/internal/data/repos"
	repotest "github.com/yungbote/lotline-backend/internal/data/repos/testutil"
	domainagg "github.com/yungbote/lotline-backend/internal/domain/aggregates"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/observability"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
)

type traceFixture struct {
	db      *gorm.DB
	set     repos.Set
	svc     TraceService
	metrics *observability.Metrics

	raw1, raw2, deb, mix, fg *production.Lot
}

func kg(v float64) *float64 { return &v }

// raw1 -> deb -> mix -> fg, with raw2 -> mix as a second parent.
func newTraceFixture(t *testing.T) *traceFixture {
	t.Helper()
	ctx := context.Background()
	db := repotest.DB(t)
	f := &traceFixture{db: db, set: repos.NewSet(db, repotest.Logger(t)), metrics: observability.NewMetrics()}
	f.raw1 = repotest.SeedLot(t, ctx, db, "RAW", production.LotConsumed, kg(100))
	f.raw2 = repotest.SeedLot(t, ctx, db, "RAW", production.LotConsumed, kg(50))
	f.deb = repotest.SeedLot(t, ctx, db, "DEB", production.LotConsumed, kg(90))
	f.mix = repotest.SeedLot(t, ctx, db, "MIX", production.LotConsumed, kg(130))
	f.fg = repotest.SeedLot(t, ctx, db, "FG15", production.LotHold, kg(120))
	repotest.SeedLink(t, ctx, db, f.raw1.ID, f.deb.ID, kg(90))
	repotest.SeedLink(t, ctx, db, f.deb.ID, f.mix.ID, kg(90))
	repotest.SeedLink(t, ctx, db, f.raw2.ID, f.mix.ID, kg(40))
	repotest.SeedLink(t, ctx, db, f.mix.ID, f.fg.ID, kg(120))

	f.svc = NewTraceService(TraceServiceDeps{
		Log:          repotest.Logger(t),
		Lots:         f.set.Lots,
		Genealogy:    f.set.Genealogy,
		Inspections:  f.set.Inspections,
		Temperatures: f.set.Temperatures,
		Metrics:      f.metrics,
		Now:          func() time.Time { return time.Date(2026, 1, 24, 12, 0, 0, 0, time.UTC) },
	})
	return f
}

func hopCodes(hops []TraceHop) map[string]int {
	out := map[string]int{}
	for _, h := range hops {
		out[h.Lot.LotCode] = h.Depth
	}
	return out
}

func TestTraceBackDefaultsToOneHop(t *testing.T) {
	f := newTraceFixture(t)
	res, err := f.svc.TraceBack(context.Background(), f.fg.LotCode, 0)
	require.NoError(t, err)
	require.Equal(t, 1, res.Depth)
	require.Equal(t, map[string]int{f.mix.LotCode: 1}, hopCodes(res.Hops))
	require.Equal(t, f.fg.ID, res.Hops[0].ViaLotID)
	require.Equal(t, 120.0, *res.Hops[0].QuantityKg)
}

func TestTraceBackAndForwardAreInverse(t *testing.T) {
	f := newTraceFixture(t)
	ctx := context.Background()

	back, err := f.svc.TraceBack(ctx, f.fg.LotCode, 10)
	require.NoError(t, err)
	require.Equal(t, map[string]int{
		f.mix.LotCode:  1,
		f.deb.LotCode:  2,
		f.raw2.LotCode: 2,
		f.raw1.LotCode: 3,
	}, hopCodes(back.Hops))

	// Every ancestor sees fg when tracing forward far enough.
	for _, h := range back.Hops {
		fwd, err := f.svc.TraceForward(ctx, h.Lot.LotCode, 10)
		require.NoError(t, err)
		depth, ok := hopCodes(fwd.Hops)[f.fg.LotCode]
		require.True(t, ok, "forward from %s misses %s", h.Lot.LotCode, f.fg.LotCode)
		require.Equal(t, h.Depth, depth)
	}
}

func TestTraceTree(t *testing.T) {
	f := newTraceFixture(t)
	tree, err := f.svc.TraceTree(context.Background(), f.deb.LotCode, 0)
	require.NoError(t, err)
	require.Equal(t, 3, tree.Depth)
	require.Equal(t, map[string]int{f.raw1.LotCode: 1}, hopCodes(tree.Ancestors))
	require.Equal(t, map[string]int{f.mix.LotCode: 1, f.fg.LotCode: 2}, hopCodes(tree.Descendants))
	require.Equal(t, uint64(1), f.metrics.TraceCount(DirectionTree))
}

func TestTraceValidation(t *testing.T) {
	f := newTraceFixture(t)
	ctx := context.Background()

	_, err := f.svc.TraceBack(ctx, f.fg.LotCode, 11)
	require.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)
	_, err = f.svc.TraceTree(ctx, f.fg.LotCode, 6)
	require.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)
	_, err = f.svc.TraceBack(ctx, "RAW-20261399-DUNA-0001", 1)
	require.True(t, domainagg.IsKind(err, domainagg.KindValidation), "got %v", err)
	_, err = f.svc.TraceForward(ctx, "RAW-20260124-DUNA-0999", 1)
	require.True(t, domainagg.IsKind(err, domainagg.KindNotFound), "got %v", err)
}

func TestTraceCancelled(t *testing.T) {
	f := newTraceFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.svc.TraceTree(ctx, f.mix.LotCode, 5)
	require.Error(t, err)
}

func TestTraceConcurrentCallersAgree(t *testing.T) {
	f := newTraceFixture(t)
	var wg sync.WaitGroup
	results := make([]*TraceResult, 8)
	errs := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.TraceBack(context.Background(), f.fg.LotCode, 3)
		}(i)
	}
	wg.Wait()
	for i := range results {
		require.NoError(t, errs[i])
		require.Len(t, results[i].Hops, 4)
	}
}

// gatedLots blocks lot lookups until release is closed.
type gatedLots struct {
	repos.LotRepo
	entered chan struct{}
	release chan struct{}
	once    sync.Once
	calls   atomic.Int32
}

func (g *gatedLots) GetByCode(dbc dbctx.Context, code string) (*production.Lot, error) {
	g.calls.Add(1)
	g.once.Do(func() { close(g.entered) })
	<-g.release
	return g.LotRepo.GetByCode(dbc, code)
}

func TestCancelledCallerDoesNotFailSharedFill(t *testing.T) {
	f := newTraceFixture(t)
	gate := &gatedLots{LotRepo: f.set.Lots, entered: make(chan struct{}), release: make(chan struct{})}
	svc := NewTraceService(TraceServiceDeps{
		Log:          repotest.Logger(t),
		Lots:         gate,
		Genealogy:    f.set.Genealogy,
		Inspections:  f.set.Inspections,
		Temperatures: f.set.Temperatures,
		Metrics:      f.metrics,
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := svc.TraceBack(firstCtx, f.fg.LotCode, 3)
		firstErr <- err
	}()
	<-gate.entered

	type result struct {
		res *TraceResult
		err error
	}
	second := make(chan result, 1)
	go func() {
		res, err := svc.TraceBack(context.Background(), f.fg.LotCode, 3)
		second <- result{res, err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		require.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled caller kept waiting on the fill")
	}

	// Let the second caller join the flight before the lookup proceeds.
	time.Sleep(50 * time.Millisecond)
	close(gate.release)

	select {
	case got := <-second:
		require.NoError(t, got.err)
		require.Len(t, got.res.Hops, 4)
	case <-time.After(5 * time.Second):
		t.Fatal("second caller never returned")
	}
	require.EqualValues(t, 1, gate.calls.Load(), "both callers share one fill")
}

func TestBuildReport(t *testing.T) {
	f := newTraceFixture(t)
	ctx := context.Background()
	repotest.SeedTemperatureViolation(t, ctx, f.db, f.fg.ID, "CORE", -12.5)

	rep, err := f.svc.GenealogyReport(ctx, f.deb.LotCode)
	require.NoError(t, err)
	require.Equal(t, f.deb.LotCode, rep.LotCode)
	require.Len(t, rep.Tree.Ancestors, 1)
	require.Len(t, rep.Tree.Descendants, 2)
	require.Equal(t, []string{f.fg.LotCode}, rep.HeldLots)
	require.Len(t, rep.TemperatureViolations, 1)
	require.Equal(t, time.Date(2026, 1, 24, 12, 0, 0, 0, time.UTC), rep.GeneratedAt)
}

type stubRunner struct{ calls int }

func (s *stubRunner) RunGenealogyReport(_ context.Context, lotCode string) (*GenealogyReport, error) {
	s.calls++
	return &GenealogyReport{LotCode: lotCode}, nil
}

func TestGenealogyReportUsesRunner(t *testing.T) {
	f := newTraceFixture(t)
	r := &stubRunner{}
	f.svc.SetReportRunner(r)
	rep, err := f.svc.GenealogyReport(context.Background(), f.mix.LotCode)
	require.NoError(t, err)
	require.Equal(t, 1, r.calls)
	require.Equal(t, f.mix.LotCode, rep.LotCode)
}

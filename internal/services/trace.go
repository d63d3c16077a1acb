package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/lotline-backend/internal/cache"
	"github.com/yungbote/lotline-backend/internal/data/repos"
	"github.com/yungbote/lotline-backend/internal/data/repos/lots"
	"github.com/yungbote/lotline-backend/internal/domain/compliance"
	"github.com/yungbote/lotline-backend/internal/domain/production"
	"github.com/yungbote/lotline-backend/internal/observability"
	"github.com/yungbote/lotline-backend/internal/platform/dbctx"
	"github.com/yungbote/lotline-backend/internal/platform/logger"
)

// traceFillTimeout bounds a shared cache fill once no caller owns it.
const traceFillTimeout = 30 * time.Second

const (
	DirectionBack    = "back"
	DirectionForward = "forward"
	DirectionTree    = "tree"
)

// TraceHop is one lot reached by a genealogy walk. ViaLotID is the lot one
// hop closer to the root through which it was first reached.
type TraceHop struct {
	Lot        *production.Lot `json:"lot"`
	Depth      int             `json:"depth"`
	QuantityKg *float64        `json:"quantity_kg,omitempty"`
	ViaLotID   uuid.UUID       `json:"via_lot_id"`
}

type TraceResult struct {
	Root      *production.Lot `json:"root"`
	Direction string          `json:"direction"`
	Depth     int             `json:"depth"`
	Hops      []TraceHop      `json:"hops"`
}

type TraceTree struct {
	Root        *production.Lot `json:"root"`
	Depth       int             `json:"depth"`
	Ancestors   []TraceHop      `json:"ancestors"`
	Descendants []TraceHop      `json:"descendants"`
}

// GenealogyReport is the deep two-way traversal kept for recalls.
type GenealogyReport struct {
	LotCode               string                       `json:"lot_code"`
	GeneratedAt           time.Time                    `json:"generated_at"`
	Tree                  TraceTree                    `json:"tree"`
	Inspections           []*production.QCInspection   `json:"inspections"`
	TemperatureViolations []*production.TemperatureLog `json:"temperature_violations"`
	HeldLots              []string                     `json:"held_lots"`
}

// ReportRunner computes reports out of process (the Temporal workflow).
type ReportRunner interface {
	RunGenealogyReport(ctx context.Context, lotCode string) (*GenealogyReport, error)
}

type TraceService interface {
	TraceBack(ctx context.Context, lotCode string, depth int) (*TraceResult, error)
	TraceForward(ctx context.Context, lotCode string, depth int) (*TraceResult, error)
	TraceTree(ctx context.Context, lotCode string, maxDepth int) (*TraceTree, error)
	// GenealogyReport returns the stored report, computing it when absent.
	GenealogyReport(ctx context.Context, lotCode string) (*GenealogyReport, error)
	// BuildReport always computes and stores a fresh report.
	BuildReport(ctx context.Context, lotCode string) (*GenealogyReport, error)
	SetReportRunner(r ReportRunner)
}

type TraceServiceDeps struct {
	Log          *logger.Logger
	Lots         repos.LotRepo
	Genealogy    repos.GenealogyLinkRepo
	Inspections  repos.QCInspectionRepo
	Temperatures repos.TemperatureLogRepo
	Cache        *cache.TraceCache
	Policy       compliance.Source
	Metrics      *observability.Metrics
	Now          func() time.Time
}

type traceService struct {
	deps   TraceServiceDeps
	log    *logger.Logger
	fill   singleflight.Group
	runner ReportRunner
}

func NewTraceService(deps TraceServiceDeps) TraceService {
	if deps.Policy == nil {
		deps.Policy = compliance.Static(compliance.DefaultPolicy())
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &traceService{deps: deps, log: deps.Log.With("service", "TraceService")}
}

func (s *traceService) SetReportRunner(r ReportRunner) { s.runner = r }

func (s *traceService) limits() compliance.GenealogyLimits {
	return s.deps.Policy.Current().Normalize().Genealogy
}

func resolveDepth(op string, depth, def, max int) (int, error) {
	if depth == 0 {
		return def, nil
	}
	if depth < 1 || depth > max {
		return 0, invalid(op, "depth must be between 1 and %d", max)
	}
	return depth, nil
}

func (s *traceService) TraceBack(ctx context.Context, lotCode string, depth int) (*TraceResult, error) {
	return s.trace(ctx, "Production.Trace.TraceBack", lotCode, DirectionBack, depth)
}

func (s *traceService) TraceForward(ctx context.Context, lotCode string, depth int) (*TraceResult, error) {
	return s.trace(ctx, "Production.Trace.TraceForward", lotCode, DirectionForward, depth)
}

func (s *traceService) trace(ctx context.Context, op, lotCode, direction string, depth int) (*TraceResult, error) {
	lim := s.limits()
	depth, err := resolveDepth(op, depth, lim.DefaultDepth, lim.MaxDepth)
	if err != nil {
		return nil, err
	}
	var out TraceResult
	err = s.cached(ctx, op, lotCode, direction, depth, &out, func(ctx context.Context, root *production.Lot) (any, error) {
		hops, err := s.walk(ctx, root, direction, depth)
		if err != nil {
			return nil, err
		}
		return &TraceResult{Root: root, Direction: direction, Depth: depth, Hops: hops}, nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *traceService) TraceTree(ctx context.Context, lotCode string, maxDepth int) (*TraceTree, error) {
	const op = "Production.Trace.TraceTree"
	lim := s.limits()
	depth, err := resolveDepth(op, maxDepth, lim.TreeDefaultDepth, lim.TreeMaxDepth)
	if err != nil {
		return nil, err
	}
	var out TraceTree
	err = s.cached(ctx, op, lotCode, DirectionTree, depth, &out, func(ctx context.Context, root *production.Lot) (any, error) {
		return s.tree(ctx, root, depth)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// tree walks both directions concurrently; either failure cancels the other.
func (s *traceService) tree(ctx context.Context, root *production.Lot, depth int) (*TraceTree, error) {
	out := &TraceTree{Root: root, Depth: depth}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hops, err := s.walk(gctx, root, DirectionBack, depth)
		out.Ancestors = hops
		return err
	})
	g.Go(func() error {
		hops, err := s.walk(gctx, root, DirectionForward, depth)
		out.Descendants = hops
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// cached serves a query from the trace cache, de-duplicating concurrent
// fills of the same key. Cache failures degrade to a direct computation.
func (s *traceService) cached(
	ctx context.Context,
	op, lotCode, direction string,
	depth int,
	dst any,
	compute func(ctx context.Context, root *production.Lot) (any, error),
) (err error) {
	start := time.Now()
	cacheStatus := "off"
	lotCode = strings.ToUpper(strings.TrimSpace(lotCode))

	ctx, span := observability.Tracer().Start(ctx, op)
	span.SetAttributes(
		attribute.String("lot.code", lotCode),
		attribute.String("trace.direction", direction),
		attribute.Int("trace.depth", depth),
	)
	defer func() {
		span.SetAttributes(attribute.String("trace.cache", cacheStatus))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		s.deps.Metrics.ObserveTrace(direction, cacheStatus, time.Since(start))
	}()

	if _, perr := production.ParseCode(lotCode); perr != nil {
		return storageErr(op, perr)
	}

	key := ""
	if s.deps.Cache.Enabled() {
		gen, gerr := s.deps.Cache.Generation(ctx)
		if gerr != nil {
			s.log.Warn("Trace cache generation unavailable", "error", gerr)
		} else {
			key = cache.TraceKey(lotCode, direction, depth, gen)
			found, cerr := s.deps.Cache.Get(ctx, key, dst)
			if cerr != nil {
				s.log.Warn("Trace cache read failed", "key", key, "error", cerr)
			}
			if found {
				cacheStatus = "hit"
				return nil
			}
			cacheStatus = "miss"
		}
	}

	flightKey := key
	if flightKey == "" {
		flightKey = fmt.Sprintf("%s:%s:%d", lotCode, direction, depth)
	}
	if err := ctx.Err(); err != nil {
		return storageErr(op, err)
	}
	// The fill is shared by every caller of flightKey and runs detached from
	// the one that started it. Each caller stops waiting when its own
	// context ends.
	ch := s.fill.DoChan(flightKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), traceFillTimeout)
		defer cancel()
		root, err := s.deps.Lots.GetByCode(dbctx.With(fctx), lotCode)
		if err != nil {
			return nil, storageErr(op, err)
		}
		if root == nil {
			return nil, notFound(op, "lot %s not found", lotCode)
		}
		res, err := compute(fctx, root)
		if err != nil {
			return nil, storageErr(op, err)
		}
		if key != "" {
			if err := s.deps.Cache.Set(fctx, key, res, s.deps.Policy.Current().Normalize().TraceabilityCacheTTL); err != nil {
				s.log.Warn("Trace cache write failed", "key", key, "error", err)
			}
		}
		return res, nil
	})
	var v any
	select {
	case <-ctx.Done():
		return storageErr(op, ctx.Err())
	case r := <-ch:
		if r.Err != nil {
			return r.Err
		}
		v = r.Val
	}
	return assign(dst, v)
}

func assign(dst, v any) error {
	switch d := dst.(type) {
	case *TraceResult:
		*d = *v.(*TraceResult)
	case *TraceTree:
		*d = *v.(*TraceTree)
	default:
		return fmt.Errorf("unsupported trace result %T", dst)
	}
	return nil
}

// walk is a level-order traversal with a visited set, so diamonds in the DAG
// report each lot once at its shallowest depth.
func (s *traceService) walk(ctx context.Context, root *production.Lot, direction string, depth int) ([]TraceHop, error) {
	dbc := dbctx.With(ctx)
	hops := []TraceHop{}
	visited := map[uuid.UUID]bool{root.ID: true}
	frontier := []uuid.UUID{root.ID}

	for level := 1; level <= depth && len(frontier) > 0; level++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var (
			links []*production.GenealogyLink
			err   error
		)
		if direction == DirectionBack {
			links, err = s.deps.Genealogy.ListByChildren(dbc, frontier)
		} else {
			links, err = s.deps.Genealogy.ListByParents(dbc, frontier)
		}
		if err != nil {
			return nil, err
		}

		type reach struct {
			via uuid.UUID
			qty *float64
		}
		next := []uuid.UUID{}
		reached := map[uuid.UUID]reach{}
		for _, l := range links {
			from, to := l.ChildLotID, l.ParentLotID
			if direction != DirectionBack {
				from, to = l.ParentLotID, l.ChildLotID
			}
			if visited[to] {
				continue
			}
			visited[to] = true
			reached[to] = reach{via: from, qty: l.QuantityKg}
			next = append(next, to)
		}
		if len(next) == 0 {
			break
		}
		rows, err := s.deps.Lots.GetByIDs(dbc, next)
		if err != nil {
			return nil, err
		}
		for _, l := range rows {
			r := reached[l.ID]
			hops = append(hops, TraceHop{Lot: l, Depth: level, QuantityKg: r.qty, ViaLotID: r.via})
		}
		frontier = next
	}
	return hops, nil
}

func (s *traceService) GenealogyReport(ctx context.Context, lotCode string) (*GenealogyReport, error) {
	lotCode = strings.ToUpper(strings.TrimSpace(lotCode))
	if key := s.reportKey(ctx, lotCode); key != "" {
		var rep GenealogyReport
		found, err := s.deps.Cache.Get(ctx, key, &rep)
		if err != nil {
			s.log.Warn("Report cache read failed", "lot_code", lotCode, "error", err)
		}
		if found {
			return &rep, nil
		}
	}
	if s.runner == nil {
		return s.BuildReport(ctx, lotCode)
	}
	// Resolve caller errors here; a failed workflow only surfaces as internal.
	const op = "Production.Trace.GenealogyReport"
	if _, err := production.ParseCode(lotCode); err != nil {
		return nil, storageErr(op, err)
	}
	root, err := s.deps.Lots.GetByCode(dbctx.With(ctx), lotCode)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if root == nil {
		return nil, notFound(op, "lot %s not found", lotCode)
	}
	return s.runner.RunGenealogyReport(ctx, lotCode)
}

func (s *traceService) BuildReport(ctx context.Context, lotCode string) (*GenealogyReport, error) {
	const op = "Production.Trace.BuildReport"
	lotCode = strings.ToUpper(strings.TrimSpace(lotCode))
	if _, err := production.ParseCode(lotCode); err != nil {
		return nil, storageErr(op, err)
	}
	ctx, span := observability.Tracer().Start(ctx, op)
	defer span.End()
	span.SetAttributes(attribute.String("lot.code", lotCode))

	// Read before building so a change committed mid-build retires the entry.
	key := s.reportKey(ctx, lotCode)
	dbc := dbctx.With(ctx)
	root, err := s.deps.Lots.GetByCode(dbc, lotCode)
	if err != nil {
		return nil, storageErr(op, err)
	}
	if root == nil {
		return nil, notFound(op, "lot %s not found", lotCode)
	}
	tree, err := s.tree(ctx, root, s.limits().MaxDepth)
	if err != nil {
		return nil, storageErr(op, err)
	}

	rep := &GenealogyReport{
		LotCode:               lotCode,
		GeneratedAt:           s.deps.Now().UTC(),
		Tree:                  *tree,
		Inspections:           []*production.QCInspection{},
		TemperatureViolations: []*production.TemperatureLog{},
		HeldLots:              []string{},
	}
	all := append([]*production.Lot{root}, hopLots(tree.Ancestors)...)
	all = append(all, hopLots(tree.Descendants)...)
	for _, l := range all {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.Status == production.LotHold {
			rep.HeldLots = append(rep.HeldLots, l.LotCode)
		}
		ins, err := s.deps.Inspections.ListByLot(dbc, l.ID)
		if err != nil {
			return nil, storageErr(op, err)
		}
		rep.Inspections = append(rep.Inspections, ins...)
		temps, err := s.deps.Temperatures.List(dbc, lots.TemperatureLogFilter{LotID: l.ID, ViolationOnly: true})
		if err != nil {
			return nil, storageErr(op, err)
		}
		rep.TemperatureViolations = append(rep.TemperatureViolations, temps...)
	}

	if key != "" {
		if err := s.deps.Cache.Set(ctx, key, rep, s.deps.Policy.Current().Normalize().TraceabilityCacheTTL); err != nil {
			s.log.Warn("Report cache write failed", "lot_code", lotCode, "error", err)
		}
	}
	return rep, nil
}

// reportKey is the report cache key for the current generation, or "" when
// the cache is off or unreachable.
func (s *traceService) reportKey(ctx context.Context, lotCode string) string {
	if !s.deps.Cache.Enabled() {
		return ""
	}
	gen, err := s.deps.Cache.Generation(ctx)
	if err != nil {
		s.log.Warn("Trace cache generation unavailable", "error", err)
		return ""
	}
	return cache.ReportKey(lotCode, gen)
}

func hopLots(hops []TraceHop) []*production.Lot {
	out := make([]*production.Lot, 0, len(hops))
	for _, h := range hops {
		out = append(out, h.Lot)
	}
	return out
}

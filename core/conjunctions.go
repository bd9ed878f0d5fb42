package core

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"slices"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/conjunction-screener/internal/logging"
	"github.com/signalsfoundry/conjunction-screener/internal/observability"
	"github.com/signalsfoundry/conjunction-screener/model"
	"github.com/signalsfoundry/conjunction-screener/timectrl"
)

const tracerName = "conjunction-screener/core"

var (
	ErrInvalidThreshold   = errors.New("invalid conjunction threshold")
	ErrThresholdOverflow  = errors.New("conjunction threshold overflow")
	ErrInvalidInterval    = errors.New("invalid conjunction detection interval")
	ErrInvalidObjectTypes = errors.New("invalid object types")
)

// Config holds the parameters of a conjunction detection run.
type Config struct {
	// ConjThresh is the distance below which a close approach is reported.
	ConjThresh float64
	// ConjDetInterval is the width of a conjunction detection step.
	ConjDetInterval float64
	// OTypes assigns a role to every object. Nil means all primary.
	OTypes []model.ObjectType
	// Workers bounds the number of steps processed concurrently. Values
	// <= 0 select runtime.NumCPU().
	Workers int
}

// Validate checks cfg against a polyjectory with nobjs objects.
func (cfg Config) Validate(nobjs int) error {
	thresh := cfg.ConjThresh
	if !(thresh > 0) || math.IsInf(thresh, 1) {
		return fmt.Errorf("%w: the conjunction threshold must be finite and positive, but instead a value of %v was provided",
			ErrInvalidThreshold, thresh)
	}
	if math.IsInf(thresh*thresh, 1) || thresh > math.MaxFloat32 {
		return fmt.Errorf("%w: the conjunction threshold value %v is too large and results in an overflow error",
			ErrThresholdOverflow, thresh)
	}

	interval := cfg.ConjDetInterval
	if !(interval > 0) || math.IsInf(interval, 1) {
		return fmt.Errorf("%w: the conjunction detection interval must be finite and positive, but instead a value of %v was provided",
			ErrInvalidInterval, interval)
	}

	if cfg.OTypes == nil {
		return nil
	}
	if len(cfg.OTypes) != nobjs {
		return fmt.Errorf("%w: invalid array of object types passed to the constructor of a conjunctions object: the expected size is %d, but the actual size is %d instead",
			ErrInvalidObjectTypes, nobjs, len(cfg.OTypes))
	}
	for _, ot := range cfg.OTypes {
		if !ot.Valid() {
			return fmt.Errorf("%w: the value of an object type must be one of [1, 2, 4], but a value of %d was detected instead",
				ErrInvalidObjectTypes, uint8(ot))
		}
	}
	return nil
}

// Option customises a run.
type Option func(*options)

type options struct {
	log       logging.Logger
	collector *observability.EngineCollector
	tracer    trace.Tracer
}

// WithLogger sets the logger used for run and step summaries.
func WithLogger(log logging.Logger) Option {
	return func(o *options) {
		if log != nil {
			o.log = log
		}
	}
}

// WithCollector records run metrics on c.
func WithCollector(c *observability.EngineCollector) Option {
	return func(o *options) { o.collector = c }
}

// WithTracer overrides the tracer taken from the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) {
		if t != nil {
			o.tracer = t
		}
	}
}

// stepData is the write-once output of one conjunction detection step.
type stepData struct {
	aabbs  []AABB   // nobjs+1, global box last
	codes  []uint64 // nobjs
	sorted sortedStep
	tree   []model.BVHNode
	colls  []model.AABBCollision
	conjs  []model.Conjunction
}

// Conjunctions is the immutable result of a conjunction detection run over
// a polyjectory.
type Conjunctions struct {
	pj       *model.Polyjectory
	thresh   float64
	interval float64
	otypes   []model.ObjectType
	sched    *timectrl.Schedule
	steps    []stepData
	conjs    []model.Conjunction
}

// New validates cfg and runs conjunction detection over pj. Steps are
// computed concurrently; the call returns once every step is done or ctx
// is cancelled.
func New(ctx context.Context, pj *model.Polyjectory, cfg Config, opts ...Option) (*Conjunctions, error) {
	o := options{log: logging.Noop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.tracer == nil {
		o.tracer = observability.Tracer(tracerName)
	}
	if pj == nil {
		return nil, fmt.Errorf("%w: nil polyjectory", model.ErrInvalidPolyjectory)
	}

	ctx, log := logging.WithRunLogger(ctx, o.log)
	nobjs := pj.NumObjects()

	if err := cfg.Validate(nobjs); err != nil {
		o.collector.ObserveRun(0, observability.OutcomeInvalid, nobjs)
		log.Warn(ctx, "invalid conjunction configuration", logging.Err(err))
		return nil, err
	}
	sched, err := timectrl.NewSchedule(pj.MaxTime(), cfg.ConjDetInterval)
	if err != nil {
		o.collector.ObserveRun(0, observability.OutcomeInvalid, nobjs)
		log.Warn(ctx, "invalid conjunction schedule", logging.Err(err))
		return nil, err
	}

	otypes := cfg.OTypes
	if otypes == nil {
		otypes = make([]model.ObjectType, nobjs)
		for i := range otypes {
			otypes[i] = model.ObjectPrimary
		}
	} else {
		otypes = slices.Clone(otypes)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	c := &Conjunctions{
		pj:       pj,
		thresh:   cfg.ConjThresh,
		interval: cfg.ConjDetInterval,
		otypes:   otypes,
		sched:    sched,
		steps:    make([]stepData, sched.Len()),
	}

	ctx, span := o.tracer.Start(ctx, "conjunctions.run", trace.WithAttributes(
		attribute.Int("conj.objects", nobjs),
		attribute.Int("conj.steps", sched.Len()),
		attribute.Float64("conj.threshold", c.thresh),
	))
	defer span.End()

	log.Info(ctx, "conjunction detection started",
		logging.Int("objects", nobjs),
		logging.Int("steps", sched.Len()),
		logging.Float64("conj_thresh", c.thresh),
		logging.Float64("conj_det_interval", c.interval),
		logging.Int("workers", workers),
	)
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	sched.Each(func(i int, t0, t1 float64) {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			stepStart := time.Now()
			_, stepSpan := observability.StartStepSpan(gctx, o.tracer, i, t0, t1)
			c.steps[i] = c.detect(t0, t1)
			sd := &c.steps[i]
			stepSpan.SetAttributes(
				attribute.Int("conj.aabb_collisions", len(sd.colls)),
				attribute.Int("conj.conjunctions", len(sd.conjs)),
			)
			stepSpan.End()

			o.collector.ObserveStep(time.Since(stepStart), len(sd.colls), len(sd.conjs))
			log.Debug(gctx, "conjunction step done",
				logging.Int("step", i),
				logging.Float64("t0", t0),
				logging.Float64("t1", t1),
				logging.Int("live_objects", sd.sorted.nLive),
				logging.Int("bvh_nodes", len(sd.tree)),
				logging.Int("aabb_collisions", len(sd.colls)),
				logging.Int("conjunctions", len(sd.conjs)),
			)
			return nil
		})
	})
	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.collector.ObserveRun(time.Since(start), observability.OutcomeCanceled, nobjs)
		log.Warn(ctx, "conjunction detection aborted", logging.Err(err))
		return nil, err
	}

	total := 0
	for i := range c.steps {
		total += len(c.steps[i].conjs)
	}
	c.conjs = make([]model.Conjunction, 0, total)
	for i := range c.steps {
		c.conjs = append(c.conjs, c.steps[i].conjs...)
	}
	slices.SortFunc(c.conjs, compareConjunctions)

	elapsed := time.Since(start)
	o.collector.ObserveRun(elapsed, observability.OutcomeOK, nobjs)
	span.SetAttributes(attribute.Int("conj.conjunctions", len(c.conjs)))
	log.Info(ctx, "conjunction detection finished",
		logging.Int("conjunctions", len(c.conjs)),
		logging.Duration("elapsed", elapsed),
	)
	return c, nil
}

// detect runs the full pipeline for the step [t0, t1).
func (c *Conjunctions) detect(t0, t1 float64) stepData {
	n := c.pj.NumObjects()

	aabbs := make([]AABB, n+1)
	for i := 0; i < n; i++ {
		tr, err := c.pj.Object(i)
		if err != nil {
			aabbs[i] = EmptyAABB()
			continue
		}
		aabbs[i] = objectAABB(tr, t0, t1, c.thresh)
	}
	aabbs[n] = globalAABB(aabbs[:n])

	keys := make([]uint64, n)
	for i := range keys {
		keys[i] = mortonCode(aabbs[i], aabbs[n])
	}

	sorted := sortByMorton(aabbs, keys)
	tree := buildBVH(sorted.codes, sorted.aabbs, sorted.nLive)
	colls := broadPhase(sorted, tree, c.otypes)
	return stepData{
		aabbs:  aabbs,
		codes:  keys,
		sorted: sorted,
		tree:   tree,
		colls:  colls,
		conjs:  narrowPhase(c.pj, colls, t0, t1, c.thresh),
	}
}

func compareConjunctions(a, b model.Conjunction) int {
	if c := cmp.Compare(a.TCA, b.TCA); c != 0 {
		return c
	}
	if c := cmp.Compare(a.I, b.I); c != 0 {
		return c
	}
	return cmp.Compare(a.J, b.J)
}

func (c *Conjunctions) step(step int, what string) (*stepData, error) {
	if step < 0 || step >= len(c.steps) {
		return nil, fmt.Errorf("%w: cannot fetch the %s for the conjunction timestep at index %d: the total number of conjunction steps is only %d",
			model.ErrIndexOutOfRange, what, step, len(c.steps))
	}
	return &c.steps[step], nil
}

// NumSteps returns the number of conjunction detection steps.
func (c *Conjunctions) NumSteps() int { return len(c.steps) }

// CDEndTimes returns the end time of every step.
func (c *Conjunctions) CDEndTimes() []float64 { return c.sched.EndTimes() }

func (c *Conjunctions) ConjThresh() float64      { return c.thresh }
func (c *Conjunctions) ConjDetInterval() float64 { return c.interval }

// Polyjectory returns the screened polyjectory.
func (c *Conjunctions) Polyjectory() *model.Polyjectory { return c.pj }

// OTypes returns the object types the run was configured with.
func (c *Conjunctions) OTypes() []model.ObjectType { return slices.Clone(c.otypes) }

// AABBs returns the boxes of a step in object order. The row at index
// NumObjects() is the global box.
func (c *Conjunctions) AABBs(step int) ([]AABB, error) {
	sd, err := c.step(step, "AABBs")
	if err != nil {
		return nil, err
	}
	return slices.Clone(sd.aabbs), nil
}

// SrtAABBs returns the boxes of a step in Morton order, global box last.
func (c *Conjunctions) SrtAABBs(step int) ([]AABB, error) {
	sd, err := c.step(step, "sorted AABBs")
	if err != nil {
		return nil, err
	}
	return slices.Clone(sd.sorted.aabbs), nil
}

// MortonCodes returns the keys of a step in object order.
func (c *Conjunctions) MortonCodes(step int) ([]uint64, error) {
	sd, err := c.step(step, "Morton codes")
	if err != nil {
		return nil, err
	}
	return slices.Clone(sd.codes), nil
}

// SrtMortonCodes returns the keys of a step in sorted order.
func (c *Conjunctions) SrtMortonCodes(step int) ([]uint64, error) {
	sd, err := c.step(step, "sorted Morton codes")
	if err != nil {
		return nil, err
	}
	return slices.Clone(sd.sorted.codes), nil
}

// SrtIdx returns the permutation that sorts the objects of a step.
func (c *Conjunctions) SrtIdx(step int) ([]uint32, error) {
	sd, err := c.step(step, "sorted indices")
	if err != nil {
		return nil, err
	}
	return slices.Clone(sd.sorted.idx), nil
}

// BVHTree returns the nodes of a step's tree, root first.
func (c *Conjunctions) BVHTree(step int) ([]model.BVHNode, error) {
	sd, err := c.step(step, "BVH tree")
	if err != nil {
		return nil, err
	}
	return slices.Clone(sd.tree), nil
}

// AABBCollisions returns the broad-phase pairs of a step.
func (c *Conjunctions) AABBCollisions(step int) ([]model.AABBCollision, error) {
	sd, err := c.step(step, "list of AABB collisions")
	if err != nil {
		return nil, err
	}
	return slices.Clone(sd.colls), nil
}

// Conjunctions returns every detected conjunction ordered by (TCA, I, J).
func (c *Conjunctions) Conjunctions() []model.Conjunction { return slices.Clone(c.conjs) }

// ObjectAABB returns the box of object obj in a step. The boolean is false
// when the object has no data in that step or either index is out of range.
func (c *Conjunctions) ObjectAABB(step, obj int) (AABB, bool) {
	if step < 0 || step >= len(c.steps) || obj < 0 || obj >= c.pj.NumObjects() {
		return AABB{}, false
	}
	box := c.steps[step].aabbs[obj]
	return box, box.IsFinite()
}

// ObjectMortonCode is the key counterpart of ObjectAABB.
func (c *Conjunctions) ObjectMortonCode(step, obj int) (uint64, bool) {
	if step < 0 || step >= len(c.steps) || obj < 0 || obj >= c.pj.NumObjects() {
		return 0, false
	}
	code := c.steps[step].codes[obj]
	return code, c.steps[step].aabbs[obj].IsFinite()
}

package kb

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/signalsfoundry/conjunction-screener/core"
	"github.com/signalsfoundry/conjunction-screener/model"
)

var (
	ErrDuplicateObject = errors.New("duplicate object")
	ErrCatalogMismatch = errors.New("catalog does not match the screened polyjectory")
)

// EventType indicates what kind of change happened in the catalog.
type EventType int

const (
	EventObjectAdded EventType = iota
	EventConjunction
)

// Event is emitted to subscribers when something interesting happens.
type Event struct {
	Type   EventType
	Index  int
	Object ObjectRecord
	Report Report
}

// ObjectRecord describes one screened object. A zero Type means primary.
type ObjectRecord struct {
	Name    string
	NoradID string
	Type    model.ObjectType
}

// Report is a conjunction joined with catalog metadata.
type Report struct {
	I, J        int
	ObjectI     ObjectRecord
	ObjectJ     ObjectRecord
	TCA         time.Time
	TCAOffset   float64 // polyjectory time units since the epoch
	DCA         float64
	RelSpeed    float64
	Conjunction model.Conjunction
}

// Catalog is an in-memory, thread-safe list of screened objects. Object
// indices match the polyjectory built from the same inputs.
type Catalog struct {
	mu sync.RWMutex

	timeUnit time.Duration
	objects  []ObjectRecord
	byNorad  map[string]int

	nextSub int
	subs    map[int]func(Event)
}

// NewCatalog constructs an empty catalog. timeUnit is the length of one
// polyjectory time unit; values <= 0 select minutes.
func NewCatalog(timeUnit time.Duration) *Catalog {
	if timeUnit <= 0 {
		timeUnit = time.Minute
	}
	return &Catalog{
		timeUnit: timeUnit,
		byNorad:  make(map[string]int),
		subs:     make(map[int]func(Event)),
	}
}

// AddObject appends an object and returns its index. NORAD ids, when set,
// must be unique.
func (c *Catalog) AddObject(rec ObjectRecord) (int, error) {
	if rec.Type == 0 {
		rec.Type = model.ObjectPrimary
	}
	if !rec.Type.Valid() {
		return -1, fmt.Errorf("object %q has invalid type %v", rec.Name, rec.Type)
	}

	c.mu.Lock()
	if rec.NoradID != "" {
		if _, exists := c.byNorad[rec.NoradID]; exists {
			c.mu.Unlock()
			return -1, fmt.Errorf("%w: NORAD id %q already exists", ErrDuplicateObject, rec.NoradID)
		}
	}
	idx := len(c.objects)
	c.objects = append(c.objects, rec)
	if rec.NoradID != "" {
		c.byNorad[rec.NoradID] = idx
	}
	subs := c.snapshotSubs()
	c.mu.Unlock()

	notify(subs, Event{Type: EventObjectAdded, Index: idx, Object: rec})
	return idx, nil
}

// Object returns the record at index i.
func (c *Catalog) Object(i int) (ObjectRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i < 0 || i >= len(c.objects) {
		return ObjectRecord{}, fmt.Errorf("%w: object index %d, catalog size %d", model.ErrIndexOutOfRange, i, len(c.objects))
	}
	return c.objects[i], nil
}

// Lookup returns the index of the object with the given NORAD id.
func (c *Catalog) Lookup(noradID string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.byNorad[noradID]
	return i, ok
}

// Len returns the number of objects.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.objects)
}

// OTypes returns the object types in index order, ready for core.Config.
func (c *Catalog) OTypes() []model.ObjectType {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]model.ObjectType, len(c.objects))
	for i, rec := range c.objects {
		out[i] = rec.Type
	}
	return out
}

// Publish joins the conjunctions of run with the catalog, notifies
// subscribers of each one in TCA order, and returns the reports.
func (c *Catalog) Publish(run *core.Conjunctions, epoch time.Time) ([]Report, error) {
	c.mu.RLock()
	if n := run.Polyjectory().NumObjects(); n != len(c.objects) {
		c.mu.RUnlock()
		return nil, fmt.Errorf("%w: %d objects screened, %d in the catalog", ErrCatalogMismatch, n, len(c.objects))
	}
	conjs := run.Conjunctions()
	reports := make([]Report, len(conjs))
	for k, cj := range conjs {
		reports[k] = Report{
			I:           int(cj.I),
			J:           int(cj.J),
			ObjectI:     c.objects[cj.I],
			ObjectJ:     c.objects[cj.J],
			TCA:         epoch.Add(time.Duration(cj.TCA * float64(c.timeUnit))),
			TCAOffset:   cj.TCA,
			DCA:         cj.DCA,
			RelSpeed:    floats.Distance(cj.VI[:], cj.VJ[:], 2),
			Conjunction: cj,
		}
	}
	subs := c.snapshotSubs()
	c.mu.RUnlock()

	for _, r := range reports {
		notify(subs, Event{Type: EventConjunction, Index: r.I, Object: r.ObjectI, Report: r})
	}
	return reports, nil
}

// Subscribe registers a callback for catalog events. It returns an
// unsubscribe function.
func (c *Catalog) Subscribe(fn func(Event)) (unsubscribe func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// snapshotSubs copies the subscribers in registration order. Callers hold
// c.mu.
func (c *Catalog) snapshotSubs() []func(Event) {
	out := make([]func(Event), 0, len(c.subs))
	for id := 0; id < c.nextSub; id++ {
		if fn, ok := c.subs[id]; ok {
			out = append(out, fn)
		}
	}
	return out
}

// notify runs outside the lock so callbacks may call back into the catalog.
func notify(subs []func(Event), ev Event) {
	for _, sub := range subs {
		sub(ev)
	}
}

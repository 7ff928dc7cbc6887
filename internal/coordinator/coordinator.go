// Package coordinator implements the persistence coordinator: it absorbs
// editor-side mutation bursts, classifies each one (debounce, immediate,
// batch, or defer), serializes them into the node service's CAS-based
// writes, and tracks each node's ephemeral/pending/persisted state.
package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kittclouds/nodespace/internal/eventbus"
	"github.com/kittclouds/nodespace/internal/node"
)

// MutationKind classifies the editing action that produced a pending write.
type MutationKind int

const (
	ContentEdit MutationKind = iota
	StructuralEdit
	BulkPatternConversion
	ReferenceToEphemeral
)

// Class is the scheduling policy a MutationKind maps to.
type Class int

const (
	ClassDebounce Class = iota
	ClassImmediate
	ClassBatch
	ClassDefer
)

// ClassifyMutation maps an editing action onto its scheduling policy:
// typing debounces, structural edits flush immediately, bulk pattern
// conversions batch, and references to ephemeral targets are parked.
func ClassifyMutation(kind MutationKind) Class {
	switch kind {
	case StructuralEdit:
		return ClassImmediate
	case BulkPatternConversion:
		return ClassBatch
	case ReferenceToEphemeral:
		return ClassDefer
	default:
		return ClassDebounce
	}
}

// Config tunes the coordinator's timers; zero values fall back to the
// defaults (500ms debounce, 2000ms batch, 5s shutdown grace).
type Config struct {
	DebounceWindow time.Duration
	BatchWindow    time.Duration
	ShutdownGrace  time.Duration
}

func (c Config) withDefaults() Config {
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = 500 * time.Millisecond
	}
	if c.BatchWindow <= 0 {
		c.BatchWindow = 2000 * time.Millisecond
	}
	if c.ShutdownGrace <= 0 {
		c.ShutdownGrace = 5 * time.Second
	}
	return c
}

// deferredUpdate is one update parked on a still-ephemeral target. The
// whole patch is carried, so a deferred structural edit keeps its Move
// payload through the park-and-replay cycle.
type deferredUpdate struct {
	nodeID string
	patch  node.Patch
}

// nodeRecord tracks a single node's lifecycle state and any in-flight
// timer. At most one of debounceTimer/batchTimer is armed at a time: the
// later-firing timer absorbs the earlier one's pending write, so a
// debounced write never races a batch commit for the same node.
type nodeRecord struct {
	mu      sync.Mutex
	state   node.PersistenceState
	pending node.Patch
	hasEdit bool

	debounceTimer *time.Timer
	batchTimer    *time.Timer
}

// Coordinator is the stateful scheduler described above.
type Coordinator struct {
	svc    *node.Service
	bus    *eventbus.Bus
	cfg    Config
	log    *zap.Logger

	mu          sync.Mutex
	nodes       map[string]*nodeRecord
	batches     map[string][]string // batch key -> node ids coalesced into the open batch
	batchTimers map[string]*time.Timer

	deferredMu sync.Mutex
	deferred   map[string][]deferredUpdate // target node id -> queued updates

	pendingCount  atomic.Int64
	batchesOpen   atomic.Int64
	deferredCount atomic.Int64

	flushMu        sync.Mutex
	flushLatencies []time.Duration
}

// New builds a Coordinator bound to svc and bus.
func New(svc *node.Service, bus *eventbus.Bus, cfg Config, log *zap.Logger) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Coordinator{
		svc:         svc,
		bus:         bus,
		cfg:         cfg.withDefaults(),
		log:         log,
		nodes:       make(map[string]*nodeRecord),
		batches:     make(map[string][]string),
		batchTimers: make(map[string]*time.Timer),
		deferred:    make(map[string][]deferredUpdate),
	}
}

func (c *Coordinator) record(id string) *nodeRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.nodes[id]
	if !ok {
		r = &nodeRecord{state: node.Ephemeral}
		c.nodes[id] = r
	}
	return r
}

// Observe reports whether id is known to the coordinator and its last
// observed state (ephemeral if the coordinator has never seen it before).
func (c *Coordinator) Observe(id string) node.PersistenceState {
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok := c.nodes[id]; ok {
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.state
	}
	return node.Ephemeral
}

// Counters is a read-only snapshot of the coordinator's observability
// counters.
type Counters struct {
	PendingCount    int64
	BatchesOpen     int64
	DeferredCount   int64
	OCCRetriesTotal int64
}

func (c *Coordinator) Counters() Counters {
	return Counters{
		PendingCount:    c.pendingCount.Load(),
		BatchesOpen:     c.batchesOpen.Load(),
		DeferredCount:   c.deferredCount.Load(),
		OCCRetriesTotal: c.svc.OCCRetries(),
	}
}

// FlushLatencies returns a copy of every observed commit latency, the raw
// material for a flush-latency histogram.
func (c *Coordinator) FlushLatencies() []time.Duration {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return append([]time.Duration(nil), c.flushLatencies...)
}

func (c *Coordinator) emitCounters() {
	c.bus.Publish(eventbus.Event{
		Type: "coordination:counters", Namespace: eventbus.NamespaceCoordination, Payload: c.Counters(),
	})
}

// SubmitEdit schedules a mutation to id according to kind's classification.
// For ClassDefer, targetEphemeral must be the id of the still-ephemeral
// node this update actually depends on; for every other class it is
// ignored.
func (c *Coordinator) SubmitEdit(ctx context.Context, id string, kind MutationKind, patch node.Patch, batchKey, targetEphemeral string) error {
	switch ClassifyMutation(kind) {
	case ClassImmediate:
		return c.flushNow(ctx, id, patch)
	case ClassDebounce:
		c.scheduleDebounce(id, patch)
		return nil
	case ClassBatch:
		c.scheduleBatch(id, patch, batchKey)
		return nil
	case ClassDefer:
		c.deferUpdate(targetEphemeral, id, patch)
		return nil
	}
	return nil
}

func mergePatch(existing *node.Patch, incoming node.Patch) {
	if incoming.Content != nil {
		existing.Content = incoming.Content
	}
	if incoming.Properties != nil {
		if existing.Properties == nil {
			existing.Properties = make(map[string]any, len(incoming.Properties))
		}
		for k, v := range incoming.Properties {
			existing.Properties[k] = v
		}
	}
	if incoming.Move != nil {
		existing.Move = incoming.Move
	}
}

// SubmitMove schedules a reparent/reorder of id as a ClassImmediate
// StructuralEdit, the coordinator-tracked counterpart to calling
// node.Service.MoveNode directly: id's nodeRecord observes the write and
// transitions like any other commit, instead of the move bypassing the
// per-node state machine entirely.
func (c *Coordinator) SubmitMove(ctx context.Context, id, newParentID string, pos node.Position) error {
	return c.SubmitEdit(ctx, id, StructuralEdit, node.Patch{Move: &node.MovePatch{NewParentID: newParentID, Position: pos}}, "", "")
}

// scheduleDebounce arms or resets id's debounce timer, merging patch into
// whatever edit is already pending, so rapid conflicting edits coalesce
// to one write with the final state.
func (c *Coordinator) scheduleDebounce(id string, patch node.Patch) {
	r := c.record(id)
	r.mu.Lock()
	defer r.mu.Unlock()

	wasIdle := !r.hasEdit
	mergePatch(&r.pending, patch)
	r.hasEdit = true
	if r.state == node.Ephemeral || r.state == node.Persisted {
		r.state = node.Pending
	}
	if wasIdle {
		c.pendingCount.Add(1)
		c.emitCounters()
	}

	// If a batch timer already covers this node, let it win; don't arm
	// a competing debounce timer.
	if r.batchTimer != nil {
		return
	}
	if r.debounceTimer == nil {
		r.debounceTimer = time.AfterFunc(c.cfg.DebounceWindow, func() { c.fireDebounce(id) })
	} else {
		r.debounceTimer.Reset(c.cfg.DebounceWindow)
	}
}

func (c *Coordinator) fireDebounce(id string) {
	r := c.record(id)
	r.mu.Lock()
	if r.batchTimer != nil {
		// a batch timer was armed after this one fired concurrently;
		// batch wins, skip this flush.
		r.mu.Unlock()
		return
	}
	patch := r.pending
	hadEdit := r.hasEdit
	r.pending = node.Patch{}
	r.hasEdit = false
	r.debounceTimer = nil
	r.mu.Unlock()

	if !hadEdit {
		return
	}
	c.pendingCount.Add(-1)
	c.commit(context.Background(), id, patch)
}

// scheduleBatch adds id to the open batch keyed by batchKey, merging patch,
// and arms the batch's window timer on first use. The shared timer is also
// stored on id's record so a debounce edit arriving mid-window sees it and
// yields.
func (c *Coordinator) scheduleBatch(id string, patch node.Patch, batchKey string) {
	r := c.record(id)
	r.mu.Lock()
	wasIdle := !r.hasEdit
	mergePatch(&r.pending, patch)
	r.hasEdit = true
	if r.state == node.Ephemeral || r.state == node.Persisted {
		r.state = node.Pending
	}
	if r.debounceTimer != nil {
		r.debounceTimer.Stop()
		r.debounceTimer = nil
	}
	r.mu.Unlock()

	if wasIdle {
		c.pendingCount.Add(1)
	}

	c.mu.Lock()
	firstInBatch := len(c.batches[batchKey]) == 0
	c.batches[batchKey] = append(c.batches[batchKey], id)
	if firstInBatch {
		c.batchTimers[batchKey] = time.AfterFunc(c.cfg.BatchWindow, func() { c.fireBatch(batchKey) })
	}
	timer := c.batchTimers[batchKey]
	c.mu.Unlock()

	r.mu.Lock()
	r.batchTimer = timer
	r.mu.Unlock()

	if firstInBatch {
		c.batchesOpen.Add(1)
	}
	c.emitCounters()
}

func (c *Coordinator) fireBatch(batchKey string) {
	c.mu.Lock()
	ids := c.batches[batchKey]
	delete(c.batches, batchKey)
	delete(c.batchTimers, batchKey)
	c.mu.Unlock()
	if len(ids) == 0 {
		return
	}
	c.batchesOpen.Add(-1)

	for _, id := range ids {
		r := c.record(id)
		r.mu.Lock()
		patch := r.pending
		hadEdit := r.hasEdit
		r.pending = node.Patch{}
		r.hasEdit = false
		r.batchTimer = nil
		r.mu.Unlock()
		if hadEdit {
			c.pendingCount.Add(-1)
			c.commit(context.Background(), id, patch)
		}
	}
	c.emitCounters()
}

// flushNow performs an immediate structural-edit write (no debounce).
func (c *Coordinator) flushNow(ctx context.Context, id string, patch node.Patch) error {
	return c.commit(ctx, id, patch)
}

// commit performs the actual storage write, consulting persistence_state
// (not the presence of a local id) to decide create vs. update,
// tracks flush latency, and drains any deferred updates once id leaves the
// ephemeral state. A Move payload takes a separate path: it presupposes id
// already exists, so it calls node.Service.MoveNode directly rather than
// going through the create/update branch below.
func (c *Coordinator) commit(ctx context.Context, id string, patch node.Patch) error {
	start := time.Now()
	r := c.record(id)

	r.mu.Lock()
	state := r.state
	r.mu.Unlock()

	var err error
	switch {
	case patch.Move != nil:
		_, err = c.svc.MoveNode(ctx, id, patch.Move.NewParentID, patch.Move.Position)
	case state == node.Ephemeral:
		n := &node.Node{ID: id, NodeType: "text"}
		if patch.Content != nil {
			n.Content = *patch.Content
		}
		n.Properties = patch.Properties
		_, err = c.svc.CreateNode(ctx, n)
	default:
		existing, getErr := c.svc.GetNode(ctx, id)
		if getErr != nil {
			err = getErr
			break
		}
		if existing == nil {
			n := &node.Node{ID: id, NodeType: "text"}
			if patch.Content != nil {
				n.Content = *patch.Content
			}
			n.Properties = patch.Properties
			_, err = c.svc.CreateNode(ctx, n)
		} else {
			_, err = c.svc.UpdateNode(ctx, id, existing.Version, patch)
		}
	}

	r.mu.Lock()
	if err == nil {
		r.state = node.Persisted
	}
	r.mu.Unlock()

	c.flushMu.Lock()
	c.flushLatencies = append(c.flushLatencies, time.Since(start))
	c.flushMu.Unlock()

	if err != nil {
		c.log.Warn("coordinator commit failed", zap.String("node_id", id), zap.Error(err))
		return err
	}

	c.drainDeferred(ctx, id)
	return nil
}

// deferUpdate parks patch on targetEphemeral's deferred queue; it is
// replayed, in FIFO order, the moment targetEphemeral's own write commits.
func (c *Coordinator) deferUpdate(targetEphemeral, nodeID string, patch node.Patch) {
	c.deferredMu.Lock()
	defer c.deferredMu.Unlock()
	c.deferred[targetEphemeral] = append(c.deferred[targetEphemeral],
		deferredUpdate{nodeID: nodeID, patch: patch})
	c.deferredCount.Add(1)
	c.emitCounters()
}

func (c *Coordinator) drainDeferred(ctx context.Context, targetID string) {
	c.deferredMu.Lock()
	queued := c.deferred[targetID]
	delete(c.deferred, targetID)
	c.deferredMu.Unlock()
	if len(queued) == 0 {
		return
	}
	c.deferredCount.Add(-int64(len(queued)))
	for _, u := range queued {
		c.commit(ctx, u.nodeID, u.patch)
	}
	c.emitCounters()
}

// ShutdownReport is the structured result of a graceful shutdown drain.
type ShutdownReport struct {
	PendingNodes  []string
	DeferredNodes []string
	TimedOut      bool
}

// Shutdown flushes every pending debounce/batch write and drains deferred
// updates within the configured grace period, reporting whatever could
// not be flushed in time rather than silently dropping it.
func (c *Coordinator) Shutdown(ctx context.Context) ShutdownReport {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.ShutdownGrace)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	c.mu.Lock()
	pendingIDs := make([]string, 0, len(c.nodes))
	for id, r := range c.nodes {
		r.mu.Lock()
		hasEdit := r.hasEdit
		patch := r.pending
		if r.debounceTimer != nil {
			r.debounceTimer.Stop()
		}
		if r.batchTimer != nil {
			r.batchTimer.Stop()
		}
		r.mu.Unlock()
		if hasEdit {
			pendingIDs = append(pendingIDs, id)
			id, patch := id, patch
			g.Go(func() error { return c.commit(gctx, id, patch) })
		}
	}
	c.batches = make(map[string][]string)
	c.batchTimers = make(map[string]*time.Timer)
	c.mu.Unlock()

	c.deferredMu.Lock()
	deferredIDs := make([]string, 0, len(c.deferred))
	for target := range c.deferred {
		deferredIDs = append(deferredIDs, target)
	}
	c.deferredMu.Unlock()

	err := g.Wait()
	return ShutdownReport{
		PendingNodes:  pendingIDs,
		DeferredNodes: deferredIDs,
		TimedOut:      errors.Is(err, context.DeadlineExceeded),
	}
}

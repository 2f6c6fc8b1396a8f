// Package measure is the measurement/sweep engine: it maps nested
// sweep/measure sequences onto positional action addresses, lazily builds
// data arrays matched to the loop geometry, dispatches measured values to
// the dataset as they arrive, and guarantees that temporary device overrides
// are reverted even when a sequence aborts.
//
// A measurement runs on a single goroutine; pause, resume and stop may be
// called from anywhere and are observed cooperatively at suspend points (the
// top of each sweep step and each Measure call).
package measure

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/sweep.report/internal/dataset"
	"github.com/banshee-data/sweep.report/internal/monitoring"
	"github.com/banshee-data/sweep.report/internal/param"
	"github.com/banshee-data/sweep.report/internal/timeutil"
)

// DefaultMaxArrays caps how many arrays one dataset may accumulate before
// array creation fails with ErrTooManyArrays.
const DefaultMaxArrays = 100

// DefaultPollInterval is how often a paused measurement re-checks its flags.
const DefaultPollInterval = 100 * time.Millisecond

// Observer is notified once, when the outermost session finishes. A nil
// error means the measurement completed (or was stopped on request).
type Observer interface {
	Finished(name string, err error)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(name string, err error)

func (f ObserverFunc) Finished(name string, err error) { f(name, err) }

// Option configures a session at Begin time. Options are ignored on nested
// entries, which inherit everything from the running session.
type Option func(*config)

type config struct {
	clock     timeutil.Clock
	poll      time.Duration
	maxArrays int
	station   *param.Station
	observer  Observer
}

// WithClock substitutes the wall clock, letting tests control timestamps
// and pause polling.
func WithClock(c timeutil.Clock) Option { return func(cfg *config) { cfg.clock = c } }

// WithPollInterval sets the pause re-check interval.
func WithPollInterval(d time.Duration) Option { return func(cfg *config) { cfg.poll = d } }

// WithMaxArrays overrides the array ceiling.
func WithMaxArrays(n int) Option { return func(cfg *config) { cfg.maxArrays = n } }

// WithStation records the station's snapshot in the dataset metadata at
// session start.
func WithStation(st *param.Station) Option { return func(cfg *config) { cfg.station = st } }

// WithObserver registers a completion observer.
func WithObserver(o Observer) Option { return func(cfg *config) { cfg.observer = o } }

// sessionCore is the state shared by a session tree. Nested sessions mirror
// the outermost one by holding the same core, so loop geometry, addressing
// and the mask stack are shared by reference, not copied.
type sessionCore struct {
	ds    dataset.Dataset
	clock timeutil.Clock
	poll  time.Duration

	loopShape   []int
	loopIndices []int
	addr        Address

	actions    *actionRegistry
	dataArrays map[string]*DataArray
	setArrays  map[string]*DataArray
	dataGroups map[string]*Session

	masks maskStack

	paused  atomic.Bool
	stopped atomic.Bool

	goid      uint64
	tStart    time.Time
	maxArrays int
	station   *param.Station
	observer  Observer
}

// suspend is the cooperative scheduling point: it enforces goroutine
// affinity, blocks (by polling) while paused, and surfaces a stop request
// as ErrStopped.
func (c *sessionCore) suspend() error {
	if curGoID() != c.goid {
		return ErrConcurrencyViolation
	}
	for c.paused.Load() && !c.stopped.Load() {
		c.clock.Sleep(c.poll)
	}
	if c.stopped.Load() {
		return ErrStopped
	}
	return nil
}

// Session is one level of a running measurement. The outermost session owns
// the dataset lifecycle; nested sessions are data groups registered at their
// parent's current action address.
type Session struct {
	core *sessionCore
	name string

	parent *Session
	root   bool
	closed bool

	// maskBase is the mask stack depth at entry; exit pops back to it.
	maskBase int

	// entryIndices snapshots the loop position at entry, used to decide
	// whether a callable produced its results at the current position.
	entryIndices []int

	finalActions  []func()
	exceptActions []func()
}

var (
	runningMu sync.Mutex
	running   *Session
)

// Running returns the outermost running session, or nil.
func Running() *Session {
	runningMu.Lock()
	defer runningMu.Unlock()
	return running
}

// Global final/except actions run when the outermost session finishes,
// regardless of which measurement is running.
var (
	globalActionsMu     sync.Mutex
	globalFinalActions  []func()
	globalExceptActions []func()
)

// AddGlobalFinalAction registers an action run at every outermost session
// exit.
func AddGlobalFinalAction(f func()) {
	globalActionsMu.Lock()
	defer globalActionsMu.Unlock()
	globalFinalActions = append(globalFinalActions, f)
}

// AddGlobalExceptAction registers an action run at outermost session exit
// when an error is in flight.
func AddGlobalExceptAction(f func()) {
	globalActionsMu.Lock()
	defer globalActionsMu.Unlock()
	globalExceptActions = append(globalExceptActions, f)
}

// ClearGlobalActions drops all registered global actions. Intended for
// tests.
func ClearGlobalActions() {
	globalActionsMu.Lock()
	defer globalActionsMu.Unlock()
	globalFinalActions = nil
	globalExceptActions = nil
}

func globalActions(except bool) []func() {
	globalActionsMu.Lock()
	defer globalActionsMu.Unlock()
	src := globalFinalActions
	if except {
		src = globalExceptActions
	}
	out := make([]func(), len(src))
	copy(out, src)
	return out
}

// applyActions runs each action, logging failures instead of aborting:
// cleanup must not be derailed by one bad hook.
func applyActions(actions []func(), label string) {
	for _, action := range actions {
		func() {
			defer func() {
				if r := recover(); r != nil {
					monitoring.Logf("measure: %s action panicked: %v", label, r)
				}
			}()
			action()
		}()
	}
}

// Begin enters a measurement session. The first Begin on an idle process
// becomes the outermost session: it binds the calling goroutine, opens the
// dataset and initializes empty loop geometry. A Begin while a measurement
// is running on the same goroutine registers a nested data group instead
// (ds and opts are ignored); on a different goroutine it fails with
// ErrConcurrencyViolation.
func Begin(name string, ds dataset.Dataset, opts ...Option) (*Session, error) {
	runningMu.Lock()
	defer runningMu.Unlock()

	if running != nil {
		return beginNested(name)
	}

	if ds == nil {
		return nil, fmt.Errorf("measurement %q needs a dataset", name)
	}

	cfg := config{
		clock:     timeutil.RealClock{},
		poll:      DefaultPollInterval,
		maxArrays: DefaultMaxArrays,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	core := &sessionCore{
		ds:         ds,
		clock:      cfg.clock,
		poll:       cfg.poll,
		addr:       Address{0},
		actions:    newActionRegistry(),
		dataArrays: make(map[string]*DataArray),
		setArrays:  make(map[string]*DataArray),
		dataGroups: make(map[string]*Session),
		goid:       curGoID(),
		maxArrays:  cfg.maxArrays,
		station:    cfg.station,
		observer:   cfg.observer,
	}
	core.tStart = cfg.clock.Now()

	s := &Session{core: core, name: name, root: true}

	ds.SetActive(true)
	md := map[string]any{
		"measurement_type": "sweep",
		"t_start":          core.tStart.UTC().Format(time.RFC3339Nano),
	}
	if cfg.station != nil {
		md["station"] = cfg.station.Snapshot()
	}
	ds.AddMetadata(md)
	if err := ds.SaveMetadata(); err != nil {
		ds.SetActive(false)
		return nil, fmt.Errorf("saving initial metadata: %w", err)
	}

	running = s
	monitoring.Logf("measure: measurement started - %s", name)
	return s, nil
}

// beginNested registers a data group under the running session. Caller
// holds runningMu.
func beginNested(name string) (*Session, error) {
	c := running.core
	if curGoID() != c.goid {
		return nil, ErrConcurrencyViolation
	}

	s := &Session{
		core:         c,
		name:         name,
		parent:       running,
		maskBase:     c.masks.depth(),
		entryIndices: append([]int(nil), c.loopIndices...),
	}

	c.dataGroups[c.addr.String()] = s
	groups := make([][2]string, 0, len(c.dataGroups))
	for key, grp := range c.dataGroups {
		groups = append(groups, [2]string{key, grp.name})
	}
	c.ds.AddMetadata(map[string]any{"data_groups": groups})

	c.addr = c.addr.Child()
	return s, nil
}

// End exits the session. cause is the error in flight, or nil. For the
// outermost session End finalizes the dataset; for a nested session it
// steps addressing back out to the parent. End is idempotent in effect but
// returns ErrClosed on reuse.
func (s *Session) End(cause error) error {
	runningMu.Lock()
	if s.closed {
		runningMu.Unlock()
		return ErrClosed
	}
	s.closed = true
	isRoot := s.root
	if isRoot && running == s {
		// Unregister immediately so a failure during final actions can
		// never leave a stale running pointer.
		running = nil
	}
	runningMu.Unlock()

	c := s.core

	if cause != nil && !errors.Is(cause, ErrStopped) {
		monitoring.Logf("measure: measurement error %v - %s", cause, s.name)
		applyActions(s.exceptActions, "except")
		s.exceptActions = nil
		if isRoot {
			applyActions(globalActions(true), "global except")
		}
	}

	applyActions(s.finalActions, "final")
	s.finalActions = nil

	c.masks.popToDepth(s.maskBase)

	if !isRoot {
		s.stepOut(false)
		return nil
	}

	applyActions(globalActions(false), "global final")

	if c.observer != nil {
		func() {
			defer func() {
				if r := recover(); r != nil {
					monitoring.Logf("measure: could not notify observer: %v", r)
				}
			}()
			notifyErr := cause
			if errors.Is(cause, ErrStopped) {
				notifyErr = nil
			}
			c.observer.Finished(s.name, notifyErr)
		}()
	}

	c.ds.AddMetadata(map[string]any{
		"t_stop": c.clock.Now().UTC().Format(time.RFC3339Nano),
	})

	// A dataset holding nothing but setpoints is not finalized; it is
	// saved and deactivated as-is.
	if len(c.dataArrays) == 0 {
		if err := c.ds.SaveMetadata(); err != nil {
			monitoring.Logf("measure: saving metadata on close: %v", err)
		}
		c.ds.SetActive(false)
		monitoring.Logf("measure: measurement closed without data - %s", s.name)
		return nil
	}

	if err := c.ds.Finalize(); err != nil {
		return fmt.Errorf("finalizing dataset: %w", err)
	}
	c.ds.SetActive(false)
	monitoring.Logf("measure: measurement finished - %s", s.name)
	return nil
}

// stepOut leaves one nesting level: drop the trailing address component and
// advance the one before it, optionally shrinking the loop geometry (sweeps
// do, data groups don't).
func (s *Session) stepOut(reduceDimension bool) {
	c := s.core
	if reduceDimension {
		c.loopShape = c.loopShape[:len(c.loopShape)-1]
		c.loopIndices = c.loopIndices[:len(c.loopIndices)-1]
	}
	c.addr = c.addr.Parent().Skip(1)
}

// Run executes fn inside a session and guarantees the exit path: except and
// final actions, mask reversal, and dataset finalization all happen whether
// fn returns cleanly, fails, or panics. A stop requested via Stop is
// reported as success.
func Run(name string, ds dataset.Dataset, fn func(*Session) error, opts ...Option) error {
	s, err := Begin(name, ds, opts...)
	if err != nil {
		return err
	}

	var fnErr error
	var panicked any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = r
				fnErr = fmt.Errorf("measurement panic: %v", r)
			}
		}()
		fnErr = fn(s)
	}()

	endErr := s.End(fnErr)
	if panicked != nil {
		panic(panicked)
	}
	if fnErr == nil {
		fnErr = endErr
	}
	if errors.Is(fnErr, ErrStopped) {
		return nil
	}
	return fnErr
}

// Group runs fn as a nested measurement registered at the current action
// address. Results measured inside land in a data group that shares the
// outer loop geometry by reference.
func (s *Session) Group(name string, fn func(*Session) error) error {
	if s.closed {
		return ErrClosed
	}
	child, err := Begin(name, nil)
	if err != nil {
		return err
	}

	var fnErr error
	var panicked any
	func() {
		defer func() {
			if r := recover(); r != nil {
				panicked = r
				fnErr = fmt.Errorf("measurement panic: %v", r)
			}
		}()
		fnErr = fn(child)
	}()

	if err := child.End(fnErr); err != nil && fnErr == nil {
		fnErr = err
	}
	if panicked != nil {
		panic(panicked)
	}
	return fnErr
}

// Name returns the session name.
func (s *Session) Name() string { return s.name }

// Dataset returns the dataset the session tree writes into.
func (s *Session) Dataset() dataset.Dataset { return s.core.ds }

// Elapsed returns time since the outermost session started.
func (s *Session) Elapsed() time.Duration { return s.core.clock.Since(s.core.tStart) }

// LoopShape returns the extents of the currently open sweep dimensions.
func (s *Session) LoopShape() []int {
	return append([]int(nil), s.core.loopShape...)
}

// LoopIndices returns the current position in each open sweep dimension.
func (s *Session) LoopIndices() []int {
	return append([]int(nil), s.core.loopIndices...)
}

// ActionAddress returns the current action address.
func (s *Session) ActionAddress() Address { return s.core.addr.Clone() }

// Pause suspends the measurement at its next suspend point. Safe to call
// from any goroutine.
func (s *Session) Pause() { s.core.paused.Store(true) }

// Resume releases a pause.
func (s *Session) Resume() { s.core.paused.Store(false) }

// Stop requests termination. The measurement goroutine observes it at the
// next suspend point and unwinds through the normal exit path, so masks are
// reverted and the dataset is finalized. Safe to call from any goroutine.
func (s *Session) Stop() {
	s.core.stopped.Store(true)
	s.core.paused.Store(false)
}

// Paused reports whether a pause is asserted.
func (s *Session) Paused() bool { return s.core.paused.Load() }

// Stopped reports whether a stop has been requested.
func (s *Session) Stopped() bool { return s.core.stopped.Load() }

// Skip advances the current action address by n positions. Useful when a
// measurement is only sometimes taken, to keep later actions at stable
// addresses.
func (s *Session) Skip(n int) Address {
	s.core.addr = s.core.addr.Skip(n)
	return s.core.addr.Clone()
}

// Revert moves the current action address back by n positions, to redo a
// measurement. Re-storing at a reverted address overwrites the earlier
// value.
func (s *Session) Revert(n int) Address {
	s.core.addr = s.core.addr.Revert(n)
	return s.core.addr.Clone()
}

// AddFinalAction registers an action run when this session exits,
// regardless of outcome.
func (s *Session) AddFinalAction(f func()) {
	s.finalActions = append(s.finalActions, f)
}

// AddExceptAction registers an action run when this session exits with an
// error in flight.
func (s *Session) AddExceptAction(f func()) {
	s.exceptActions = append(s.exceptActions, f)
}

// Mask temporarily overrides the target's value for the rest of this
// session; the original value is recorded and restored at exit (or by
// Unmask), even if the measurement aborts. Returns the original value.
func (s *Session) Mask(t MaskTarget, value any) (any, error) {
	if s.closed {
		return nil, ErrClosed
	}
	return s.core.masks.push(t, value)
}

// MaskParam is shorthand for masking a device parameter's value.
func (s *Session) MaskParam(p *param.Parameter, value any) (any, error) {
	return s.Mask(ParamTarget(p), value)
}

// Unmask restores every masked slot matching the target, newest first.
// Pass OwnerTarget to release all masks on an owner at once.
func (s *Session) Unmask(t MaskTarget) {
	s.core.masks.popMatching(t)
}

// UnmaskAll restores every mask this session pushed, newest first. Calling
// it twice is a no-op the second time.
func (s *Session) UnmaskAll() {
	s.core.masks.popToDepth(s.maskBase)
}

package interpreter

import (
	"fmt"
	"io"
	"sort"

	"github.com/emirpasic/gods/queues/priorityqueue"
	"github.com/sirupsen/logrus"

	"dataflowvm/interpreter-go/pkg/ast"
	"dataflowvm/interpreter-go/pkg/runtime"
)

// Policy selects how blocked threads get back to work.
type Policy int

const (
	// PolicyWakeList parks a blocked thread on the variables it waits for and
	// requeues it when one of them is bound.
	PolicyWakeList Policy = iota
	// PolicyBusyRetry keeps blocked threads in the pool and re-examines them
	// on every turn they are picked.
	PolicyBusyRetry
)

func (p Policy) String() string {
	switch p {
	case PolicyWakeList:
		return "wake"
	case PolicyBusyRetry:
		return "retry"
	default:
		return fmt.Sprintf("policy_%d", int(p))
	}
}

// ParsePolicy accepts the names produced by Policy.String.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "wake":
		return PolicyWakeList, nil
	case "retry":
		return PolicyBusyRetry, nil
	default:
		return PolicyWakeList, fmt.Errorf("unknown scheduling policy %q", name)
	}
}

// Options configures an Engine.
type Options struct {
	Policy Policy
	// MaxSteps bounds the number of reductions; zero means unbounded.
	MaxSteps int
	// Output receives one line per executed Print instruction.
	Output io.Writer
	Logger *logrus.Logger
}

type queued struct {
	thread *Thread
	seq    uint64
}

func byPriority(a, b interface{}) int {
	qa := a.(queued)
	qb := b.(queued)
	switch {
	case qa.thread.Priority < qb.thread.Priority:
		return -1
	case qa.thread.Priority > qb.thread.Priority:
		return 1
	case qa.seq < qb.seq:
		return -1
	case qa.seq > qb.seq:
		return 1
	default:
		return 0
	}
}

// Engine owns the single-assignment store and interleaves logical threads
// over it, one reduction per scheduling turn.
type Engine struct {
	opts  Options
	log   *logrus.Logger
	out   io.Writer
	store *runtime.Store
	vars  runtime.VariableGenerator

	pool     *priorityqueue.Queue
	seq      uint64
	threadID int

	waiters map[runtime.Variable][]*Thread
	parked  map[int]*Thread

	steps int
	err   error
}

// New returns an engine with an empty store and no threads.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	out := opts.Output
	if out == nil {
		out = io.Discard
	}
	return &Engine{
		opts:    opts,
		log:     logger,
		out:     out,
		store:   runtime.NewStore(),
		pool:    priorityqueue.NewWith(byPriority),
		waiters: make(map[runtime.Variable][]*Thread),
		parked:  make(map[int]*Thread),
	}
}

// Store exposes the shared store for observation.
func (e *Engine) Store() *runtime.Store { return e.store }

// Steps reports how many reductions have run.
func (e *Engine) Steps() int { return e.steps }

// Err returns the fatal error that stopped the engine, if any.
func (e *Engine) Err() error { return e.err }

// Done reports whether no thread is left, runnable or blocked.
func (e *Engine) Done() bool {
	return e.pool.Empty() && len(e.parked) == 0
}

// Spawn adds a thread running body under env and returns its id.
func (e *Engine) Spawn(priority int, body []ast.Instruction, env *runtime.Environment) int {
	if env == nil {
		env = runtime.NewEnvironment()
	}
	e.threadID++
	t := &Thread{
		ID:       e.threadID,
		Priority: priority,
		State:    ThreadReady,
		stack:    NewSemanticStack(Frame{Instructions: body, Env: env}),
	}
	e.enqueue(t)
	e.log.WithFields(logrus.Fields{
		"thread":   t.ID,
		"priority": priority,
	}).Debug("spawn")
	return t.ID
}

// Threads lists every live thread: pooled threads in scheduling order, then
// parked threads by id.
func (e *Engine) Threads() []ThreadInfo {
	pooled := make([]queued, 0, e.pool.Size())
	for _, raw := range e.pool.Values() {
		pooled = append(pooled, raw.(queued))
	}
	sort.Slice(pooled, func(i, j int) bool { return byPriority(pooled[i], pooled[j]) < 0 })
	out := make([]ThreadInfo, 0, len(pooled)+len(e.parked))
	for _, q := range pooled {
		out = append(out, q.thread.info())
	}
	for _, id := range e.parkedIDs() {
		out = append(out, e.parked[id].info())
	}
	return out
}

// Run drives the engine until no thread is left or a fatal error occurs.
func (e *Engine) Run() error {
	for {
		progressed, err := e.Step()
		if err != nil {
			return err
		}
		if !progressed {
			return nil
		}
	}
}

// Step performs one scheduling turn. It reports false once there is nothing
// left to run.
func (e *Engine) Step() (bool, error) {
	if e.err != nil {
		return false, e.err
	}
	if e.Done() {
		return false, nil
	}
	if e.opts.MaxSteps > 0 && e.steps >= e.opts.MaxSteps {
		return false, e.fail(&RuntimeError{Kind: ErrorStepLimit, Err: ErrStepLimit})
	}

	t := e.next()
	if t == nil {
		blocked := e.blockedIDs()
		return false, e.fail(&RuntimeError{Kind: ErrorDeadlock, Blocked: blocked, Err: ErrDeadlock})
	}

	e.log.WithFields(logrus.Fields{
		"thread":   t.ID,
		"priority": t.Priority,
		"state":    t.State,
		"pool":     e.pool.Size(),
		"parked":   len(e.parked),
	}).Debug("schedule")

	t.Priority++
	if !t.stack.Empty() {
		if err := e.reduce(t); err != nil {
			return false, e.fail(err)
		}
		e.steps++
	}
	e.requeue(t)
	return true, nil
}

func (e *Engine) fail(err error) error {
	e.err = err
	e.log.WithError(err).Debug("halt")
	return err
}

func (e *Engine) enqueue(t *Thread) {
	e.seq++
	e.pool.Enqueue(queued{thread: t, seq: e.seq})
}

// next removes the best runnable thread from the pool. Under busy retry,
// blocked threads whose operands are still unbound are skipped and put back
// with their original position.
func (e *Engine) next() *Thread {
	var skipped []queued
	defer func() {
		for _, q := range skipped {
			e.pool.Enqueue(q)
		}
	}()
	for {
		raw, ok := e.pool.Dequeue()
		if !ok {
			return nil
		}
		q := raw.(queued)
		if q.thread.State != ThreadBlocked {
			return q.thread
		}
		if e.dependenciesBound(q.thread) {
			q.thread.ready()
			return q.thread
		}
		skipped = append(skipped, q)
	}
}

func (e *Engine) dependenciesBound(t *Thread) bool {
	for _, v := range t.waitingOn {
		if e.store.IsBound(v) {
			return true
		}
	}
	return false
}

func (e *Engine) requeue(t *Thread) {
	if t.stack.Empty() {
		e.log.WithField("thread", t.ID).Debug("finish")
		return
	}
	if t.State == ThreadBlocked && e.opts.Policy == PolicyWakeList {
		e.park(t)
		return
	}
	e.enqueue(t)
}

func (e *Engine) park(t *Thread) {
	e.parked[t.ID] = t
	for _, v := range t.waitingOn {
		e.waiters[v] = append(e.waiters[v], t)
	}
	e.log.WithFields(logrus.Fields{
		"thread":  t.ID,
		"waiting": t.waitingOn,
	}).Debug("park")
}

// wake requeues every thread parked on v.
func (e *Engine) wake(v runtime.Variable) {
	threads := e.waiters[v]
	if len(threads) == 0 {
		return
	}
	delete(e.waiters, v)
	for _, t := range threads {
		if _, ok := e.parked[t.ID]; !ok {
			continue
		}
		delete(e.parked, t.ID)
		for _, other := range t.waitingOn {
			if other != v {
				e.waiters[other] = removeThread(e.waiters[other], t)
				if len(e.waiters[other]) == 0 {
					delete(e.waiters, other)
				}
			}
		}
		t.ready()
		e.enqueue(t)
		e.log.WithFields(logrus.Fields{
			"thread":   t.ID,
			"variable": v.String(),
		}).Debug("wake")
	}
}

func removeThread(list []*Thread, t *Thread) []*Thread {
	out := list[:0]
	for _, candidate := range list {
		if candidate != t {
			out = append(out, candidate)
		}
	}
	return out
}

func (e *Engine) parkedIDs() []int {
	ids := make([]int, 0, len(e.parked))
	for id := range e.parked {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

func (e *Engine) blockedIDs() []int {
	ids := e.parkedIDs()
	for _, raw := range e.pool.Values() {
		if q := raw.(queued); q.thread.State == ThreadBlocked {
			ids = append(ids, q.thread.ID)
		}
	}
	sort.Ints(ids)
	return ids
}

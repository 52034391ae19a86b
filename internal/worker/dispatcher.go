package worker

import (
	"container/list"
	"context"
	"errors"
	"sync"
	"time"

	"companion/internal/models"
)

var (
	ErrDispatcherBusy   = errors.New("dispatcher queue is full")
	ErrDispatcherClosed = errors.New("dispatcher is closed")
)

const (
	defaultMinWorkers = 1
	defaultMaxWorkers = 4
	defaultQueueSize  = 64
)

type DispatcherConfig struct {
	MinWorkers int
	MaxWorkers int
	// QueueSize bounds jobs accepted but not yet finished, running ones included.
	QueueSize   int
	IdleTimeout time.Duration
}

type scopeQueue struct {
	jobs     []Job
	enqueued bool // scope is in the ready list
	running  bool // a job of this scope is on a worker
}

// Dispatcher runs jobs on a bounded pool. Jobs of one scope run one at a time in
// submission order; scopes take turns round-robin.
type Dispatcher struct {
	pool     *jobChannelPool
	JobQueue chan Job

	mu        sync.Mutex
	queues    map[models.Scope]*scopeQueue
	ready     *list.List
	positions map[models.Scope]*list.Element
	pending   int
	limit     int
	closed    bool

	wake chan struct{}
	quit chan struct{}
}

func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	if cfg.MinWorkers < 0 {
		cfg.MinWorkers = 0
	}
	if cfg.MinWorkers == 0 && cfg.MaxWorkers == 0 {
		cfg.MinWorkers = defaultMinWorkers
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}

	d := &Dispatcher{
		pool:      newJobChannelPool(cfg.MinWorkers, cfg.MaxWorkers, cfg.IdleTimeout),
		JobQueue:  make(chan Job, cfg.QueueSize),
		queues:    make(map[models.Scope]*scopeQueue),
		ready:     list.New(),
		positions: make(map[models.Scope]*list.Element),
		limit:     cfg.QueueSize,
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
	}
	d.pool.warmUp()

	go d.run()
	return d
}

// Do runs fn on a worker and waits for it. fn is skipped when ctx ends while the
// job is still queued.
func (d *Dispatcher) Do(ctx context.Context, scope models.Scope, fn func(ctx context.Context) error) error {
	result, err := d.Submit(ctx, scope, fn)
	if err != nil {
		return err
	}
	return wait(ctx, result)
}

// wait returns the job result, preferring one that is already available over
// ctx.Err when both are ready.
func wait(ctx context.Context, result <-chan error) error {
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		select {
		case err := <-result:
			return err
		default:
		}
		return ctx.Err()
	}
}

// Submit queues fn without waiting. The returned channel yields the job result.
func (d *Dispatcher) Submit(ctx context.Context, scope models.Scope, fn func(ctx context.Context) error) (<-chan error, error) {
	if fn == nil {
		return nil, errors.New("job function required")
	}
	result := make(chan error, 1)
	job := Job{
		Type:   Run,
		Scope:  scope,
		ctx:    ctx,
		fn:     fn,
		result: result,
	}
	job.done = func() { d.complete(scope) }

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, ErrDispatcherClosed
	}
	if d.pending >= d.limit {
		return nil, ErrDispatcherBusy
	}
	d.pending++
	// Sent under mu so Close cannot drain the queue between the closed check
	// and the send. pending never exceeds the channel capacity, so this does
	// not block.
	d.JobQueue <- job
	return result, nil
}

func (d *Dispatcher) run() {
	for {
		if d.dispatchOne() {
			select {
			case job := <-d.JobQueue:
				d.enqueueJob(job)
			default:
			}
			continue
		}
		select {
		case job := <-d.JobQueue:
			d.enqueueJob(job)
		case <-d.wake:
		case <-d.quit:
			return
		}
	}
}

func (d *Dispatcher) enqueueJob(job Job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		job.result <- ErrDispatcherClosed
		return
	}

	q := d.queues[job.Scope]
	if q == nil {
		q = &scopeQueue{}
		d.queues[job.Scope] = q
	}
	q.jobs = append(q.jobs, job)
	d.markReadyLocked(job.Scope, q)
}

func (d *Dispatcher) markReadyLocked(scope models.Scope, q *scopeQueue) {
	if q.enqueued || q.running || len(q.jobs) == 0 {
		return
	}
	q.enqueued = true
	d.positions[scope] = d.ready.PushBack(scope)
}

// dispatchOne hands the head job of the first ready scope to a worker.
func (d *Dispatcher) dispatchOne() bool {
	d.mu.Lock()
	elem := d.ready.Front()
	if elem == nil {
		d.mu.Unlock()
		return false
	}
	scope := elem.Value.(models.Scope)
	q := d.queues[scope]
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	q.enqueued = false
	q.running = true
	d.ready.Remove(elem)
	delete(d.positions, scope)
	d.mu.Unlock()

	workerChan := d.pool.acquire()
	if workerChan == nil {
		job.done()
		job.result <- ErrDispatcherClosed
		return false
	}
	debugLog("dispatch job", "scope", string(scope), "worker", d.pool.workerID(workerChan))
	workerChan <- job
	return true
}

// complete re-admits the scope once its running job has finished.
func (d *Dispatcher) complete(scope models.Scope) {
	d.mu.Lock()
	d.pending--
	if q := d.queues[scope]; q != nil {
		q.running = false
		if len(q.jobs) == 0 {
			delete(d.queues, scope)
		} else {
			d.markReadyLocked(scope, q)
		}
	}
	d.mu.Unlock()

	select {
	case d.wake <- struct{}{}:
	default:
	}
}

// Close stops accepting jobs and shuts down the workers. Queued jobs fail with
// ErrDispatcherClosed.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	var dropped []Job
	for _, q := range d.queues {
		dropped = append(dropped, q.jobs...)
		q.jobs = nil
	}
	d.ready.Init()
	d.positions = make(map[models.Scope]*list.Element)
	d.mu.Unlock()

	close(d.quit)
	d.pool.close()

drain:
	for {
		select {
		case job := <-d.JobQueue:
			dropped = append(dropped, job)
		default:
			break drain
		}
	}
	for _, job := range dropped {
		job.result <- ErrDispatcherClosed
	}
}

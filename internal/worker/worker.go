package worker

import (
	"context"
	"fmt"
	"runtime/debug"

	"companion/internal/models"
)

type JobType int

const (
	Run JobType = iota
	Stop
)

// Job is one unit of work for a scope. result receives exactly one value.
type Job struct {
	Type   JobType
	Scope  models.Scope
	ctx    context.Context
	fn     func(ctx context.Context) error
	result chan error
	done   func()
}

type Worker struct {
	id         int
	pool       *jobChannelPool
	jobChannel chan Job
}

func NewWorker(id int, pool *jobChannelPool) *Worker {
	return &Worker{
		id:         id,
		pool:       pool,
		jobChannel: make(chan Job),
	}
}

func (w *Worker) Start() {
	go func() {
		for job := range w.jobChannel {
			if job.Type == Stop {
				debugLog("worker stopped", "worker", w.id)
				w.pool.retire(w.jobChannel)
				return
			}
			w.run(job)
			if !w.pool.Release(w.jobChannel) {
				w.pool.retire(w.jobChannel)
				return
			}
		}
	}()
}

// run releases the scope before publishing the result so a waiting caller can
// resubmit immediately.
func (w *Worker) run(job Job) {
	err := job.ctx.Err()
	if err == nil {
		err = w.call(job)
	}
	if job.done != nil {
		job.done()
	}
	job.result <- err
}

func (w *Worker) call(job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v\n%s", r, debug.Stack())
		}
	}()
	return job.fn(job.ctx)
}

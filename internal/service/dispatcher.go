package service

import (
	"errors"
	"sync"

	"wapool/internal/constants"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"
)

// Dispatcher runs fire-and-forget side effects (audit writes, notifications)
// off the caller's path. Callers never wait on a dispatched task.
type Dispatcher struct {
	pool   *ants.Pool
	wg     sync.WaitGroup
	logger *logrus.Entry
}

func NewDispatcher(workers int, logger *logrus.Logger) (*Dispatcher, error) {
	if workers <= 0 {
		workers = constants.DefaultNotifyWorkers
	}
	d := &Dispatcher{logger: componentLogger(logger, "dispatcher")}

	pool, err := ants.NewPool(workers,
		ants.WithNonblocking(true),
		ants.WithPanicHandler(func(p interface{}) {
			d.logger.WithField("panic", p).Error("Side effect task panicked")
		}),
	)
	if err != nil {
		return nil, err
	}
	d.pool = pool
	return d, nil
}

// Go schedules task. When every worker is busy the task gets its own goroutine
// rather than being dropped.
func (d *Dispatcher) Go(task func()) {
	d.wg.Add(1)
	wrapped := func() {
		defer d.wg.Done()
		task()
	}

	err := d.pool.Submit(wrapped)
	if err == nil {
		return
	}
	if !errors.Is(err, ants.ErrPoolOverload) {
		d.logger.WithError(err).Warn("Dispatcher pool unavailable, running task inline goroutine")
	}
	go func() {
		defer func() {
			if p := recover(); p != nil {
				d.logger.WithField("panic", p).Error("Side effect task panicked")
			}
		}()
		wrapped()
	}()
}

// Wait blocks until every dispatched task has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Close drains outstanding tasks and releases the workers.
func (d *Dispatcher) Close() {
	d.wg.Wait()
	d.pool.Release()
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/yourusername/voicenote-transcription/internal/logger"
)

// ErrPoolClosed is returned for work submitted after Close.
var ErrPoolClosed = errors.New("worker pool is closed")

// Task is one unit of work. Tasks are never cancelled once dispatched.
type Task func()

// Pool runs tasks on a fixed number of goroutines. Tasks beyond capacity wait
// in FIFO order.
type Pool struct {
	size  int
	queue *Queue[Task]
	wg    sync.WaitGroup
	once  sync.Once
	log   *logger.ContextLogger
}

// NewPool starts size workers.
func NewPool(size int, log *logger.Logger) *Pool {
	if size <= 0 {
		size = 1
	}
	if log == nil {
		log = logger.Discard()
	}

	p := &Pool{
		size:  size,
		queue: NewQueue[Task](),
		log:   log.With("worker"),
	}
	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.run(i)
	}
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// Pending returns the number of queued tasks not yet picked up by a worker.
func (p *Pool) Pending() int {
	return p.queue.Len()
}

// Submit queues a task.
func (p *Pool) Submit(task Task) error {
	if !p.queue.Enqueue(task) {
		return ErrPoolClosed
	}
	return nil
}

// Close stops accepting tasks and waits for every queued one to finish.
func (p *Pool) Close() {
	p.once.Do(func() {
		p.queue.Close()
	})
	p.wg.Wait()
}

func (p *Pool) run(id int) {
	defer p.wg.Done()
	for {
		task, ok := p.queue.Dequeue()
		if !ok {
			return
		}
		p.execute(id, task)
	}
}

func (p *Pool) execute(id int, task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.log.ErrorWithFields("Task panicked", map[string]interface{}{
				"worker": id,
				"panic":  fmt.Sprint(r),
				"stack":  string(debug.Stack()),
			})
		}
	}()
	task()
}

// Future is the pending result of work submitted with Go.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Done is closed when the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the result is ready or ctx ends. Giving up on the wait
// does not cancel the work.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Go submits fn to the pool and returns a future for its value. A panic in fn
// resolves the future with an error.
func Go[T any](p *Pool, fn func() T) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	task := func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = fmt.Errorf("task panicked: %v", r)
				panic(r)
			}
		}()
		f.value = fn()
	}

	if err := p.Submit(task); err != nil {
		f.err = err
		close(f.done)
	}
	return f
}

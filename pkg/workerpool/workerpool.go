// Package workerpool bounds the number of concurrently-handled connections
// while still giving each one its own goroutine for its full lifetime: a
// task's Execute runs the entire per-connection read loop, not a single
// request, and occupies its worker until the connection closes.
package workerpool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

var (
	ErrPoolNotRunning = errors.New("worker pool is not running")
	ErrQueueFull      = errors.New("task queue is full")
)

// Task is one unit of work — for the TCP acceptor, one accepted
// connection's entire lifetime.
type Task struct {
	ID      string
	Execute func(ctx context.Context)
}

type Config struct {
	MaxWorkers int
	QueueSize  int
}

// Pool runs at most MaxWorkers tasks concurrently; additional accepted
// connections queue until a worker frees up.
type Pool struct {
	cfg       Config
	log       *logrus.Logger
	taskQueue chan Task
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu        sync.Mutex
	running   bool
	active    int64
	completed int64
}

func New(cfg Config, log *logrus.Logger) *Pool {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 64
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = cfg.MaxWorkers * 4
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{cfg: cfg, log: log, taskQueue: make(chan Task, cfg.QueueSize), ctx: ctx, cancel: cancel}
}

func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return
	}
	p.running = true
	for i := 0; i < p.cfg.MaxWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	for {
		select {
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			atomic.AddInt64(&p.active, 1)
			task.Execute(p.ctx)
			atomic.AddInt64(&p.active, -1)
			atomic.AddInt64(&p.completed, 1)
		case <-p.ctx.Done():
			return
		}
	}
}

// Submit enqueues task, returning ErrQueueFull if every worker is busy and
// the backlog is also full — callers (the acceptor) close the connection
// in that case rather than blocking the accept loop.
func (p *Pool) Submit(task Task) error {
	p.mu.Lock()
	running := p.running
	p.mu.Unlock()
	if !running {
		return ErrPoolNotRunning
	}
	select {
	case p.taskQueue <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) ActiveCount() int64 { return atomic.LoadInt64(&p.active) }

func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()
	p.cancel()
	close(p.taskQueue)
	p.wg.Wait()
}

// Package worker provides a parallel metatile-rendering worker pool, used
// by the seed command to pre-populate a cache over a zoom/bbox range
// without waiting for the first request to each tile to pay the render
// cost (spec.md §4.5's metatile assembly is the unit of work; seeding
// drives it directly instead of through a tile request).
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/mapcache-go/mapcache/internal/tile"
)

// Generator renders and caches everything under one metatile. Task.Meta is
// handed to it unchanged; implementations typically wrap a
// metatile.Assembler.
type Generator interface {
	Generate(ctx context.Context, mc tile.MetaCoords, dimensions map[string]string) error
}

// Task is a single metatile to render.
type Task struct {
	Meta       tile.MetaCoords
	Dimensions map[string]string
}

// Result is the outcome of one Task.
type Result struct {
	Task    Task
	Err     error
	Elapsed time.Duration
}

// ProgressFunc is called after each task completes.
type ProgressFunc func(completed, total, failed int)

// Config configures the worker pool.
type Config struct {
	Workers    int
	Generator  Generator
	OnProgress ProgressFunc
}

// Pool renders a set of metatiles in parallel across a fixed worker count.
type Pool struct {
	workers    int
	generator  Generator
	onProgress ProgressFunc
}

// New creates a new worker pool.
func New(cfg Config) *Pool {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:    workers,
		generator:  cfg.Generator,
		onProgress: cfg.OnProgress,
	}
}

// Run executes all tasks and returns results. Tasks are processed in
// parallel by the configured number of workers. Blocks until all tasks
// complete or the context is cancelled.
func (p *Pool) Run(ctx context.Context, tasks []Task) []Result {
	if len(tasks) == 0 {
		return nil
	}

	taskCh := make(chan Task, len(tasks))
	resultCh := make(chan Result, len(tasks))

	var (
		completed int
		failed    int
		mu        sync.Mutex
	)

	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, taskCh, resultCh)
		}()
	}

	go func() {
		for _, task := range tasks {
			select {
			case taskCh <- task:
			case <-ctx.Done():
				break
			}
		}
		close(taskCh)
	}()

	results := make([]Result, 0, len(tasks))
	done := make(chan struct{})

	go func() {
		for result := range resultCh {
			results = append(results, result)

			mu.Lock()
			completed++
			if result.Err != nil {
				failed++
			}
			c, f := completed, failed
			mu.Unlock()

			if p.onProgress != nil {
				p.onProgress(c, len(tasks), f)
			}
		}
		close(done)
	}()

	wg.Wait()
	close(resultCh)
	<-done

	return results
}

func (p *Pool) worker(ctx context.Context, tasks <-chan Task, results chan<- Result) {
	for task := range tasks {
		select {
		case <-ctx.Done():
			results <- Result{Task: task, Err: ctx.Err()}
			continue
		default:
		}

		start := time.Now()
		err := p.generator.Generate(ctx, task.Meta, task.Dimensions)
		results <- Result{Task: task, Err: err, Elapsed: time.Since(start)}
	}
}

package raster

import (
	"context"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/koios/trmnl-renderer/pkg/models"
	"go.uber.org/zap"
)

// rasterJob is a capture request waiting for a worker
type rasterJob struct {
	HTML   string
	Width  int
	Height int
	Result chan *rasterResult
}

type rasterResult struct {
	Image *image.Gray
	Error error
}

type captureResult struct {
	img image.Image
	err error
}

// Pool bounds the number of concurrent rasterizations. Each worker owns one
// engine and serializes its captures; an engine that overruns the timeout is
// replaced for the next job and closed once its capture finally returns.
type Pool struct {
	workers  int
	jobQueue chan *rasterJob
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	factory  EngineFactory
	timeout  time.Duration
}

// NewPool creates a pool of workers engines. Workers default to 1.
func NewPool(workers int, factory EngineFactory, timeout time.Duration, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Pool{
		workers:  workers,
		jobQueue: make(chan *rasterJob, workers*2),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		factory:  factory,
		timeout:  timeout,
	}
}

// Start launches all worker goroutines
func (p *Pool) Start() {
	p.logger.Info("Starting raster worker pool",
		zap.Int("workers", p.workers),
		zap.Duration("timeout", p.timeout))

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}
}

// Stop shuts the workers and their engines down
func (p *Pool) Stop() {
	p.logger.Info("Stopping raster worker pool")
	p.cancel()
	p.wg.Wait()
	p.logger.Info("Raster worker pool stopped")
}

// Rasterize queues html for capture and waits for the greyscale result
func (p *Pool) Rasterize(ctx context.Context, html string, width, height int) (*image.Gray, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: invalid viewport %dx%d", models.ErrRasterizationFailed, width, height)
	}

	job := &rasterJob{
		HTML:   html,
		Width:  width,
		Height: height,
		Result: make(chan *rasterResult, 1),
	}

	select {
	case p.jobQueue <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, fmt.Errorf("raster pool is shutting down")
	}

	select {
	case result := <-job.Result:
		return result.Image, result.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.ctx.Done():
		return nil, fmt.Errorf("raster pool is shutting down")
	}
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	var engine Engine
	defer func() {
		if engine != nil {
			engine.Close()
		}
	}()

	p.logger.Debug("Raster worker started", zap.Int("worker_id", id))

	for {
		select {
		case job := <-p.jobQueue:
			engine = p.processJob(id, engine, job)
		case <-p.ctx.Done():
			p.logger.Debug("Raster worker stopping", zap.Int("worker_id", id))
			return
		}
	}
}

// processJob runs one capture and returns the engine the worker should keep
func (p *Pool) processJob(workerID int, engine Engine, job *rasterJob) Engine {
	if engine == nil {
		var err error
		engine, err = p.factory()
		if err != nil {
			job.Result <- &rasterResult{Error: fmt.Errorf("%w: %v", models.ErrRasterizationFailed, err)}
			return nil
		}
	}

	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	done := make(chan captureResult, 1)
	go func() {
		img, err := engine.Capture(ctx, job.HTML, job.Width, job.Height)
		done <- captureResult{img: img, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			p.logger.Warn("Rasterization failed",
				zap.Int("worker_id", workerID),
				zap.Error(res.err))
			job.Result <- &rasterResult{Error: fmt.Errorf("%w: %v", models.ErrRasterizationFailed, res.err)}
			return engine
		}
		job.Result <- &rasterResult{Image: toGray(res.img, job.Width, job.Height)}
		return engine

	case <-ctx.Done():
		p.logger.Error("Rasterization timed out, restarting engine",
			zap.Int("worker_id", workerID),
			zap.Duration("timeout", p.timeout))
		// The engine is still inside Capture; close it only once that returns.
		go func() {
			<-done
			engine.Close()
		}()
		job.Result <- &rasterResult{Error: fmt.Errorf("%w: timed out after %s", models.ErrRasterizationFailed, p.timeout)}
		return nil
	}
}
